package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/relvacode/iso8601"
)

var timestampLayouts = []string{
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"20060102T150405",
	"20060102",
}

// ParseTimestamp parses the created_at formats seen in telemetry exports.
// ISO-8601 is tried first, then the space-separated ThingSpeak forms.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	// iso8601 reads a basic-format date such as 20240101 as a bare year
	if t, err := iso8601.ParseString(s); err == nil && t.Year() <= 9999 {
		return t, true
	}
	for _, l := range timestampLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// WallClock drops the zone of t while keeping its clock reading, so instants
// from different offsets compare by their local hour and calendar day.
func WallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// ParseNumeric converts a raw cell into a float. Empty, unparseable and
// non-finite cells are missing.
func ParseNumeric(s string) (float64, bool) {
	raw := strings.TrimSpace(strings.Trim(s, `"`))
	if raw == "" {
		return 0, false
	}
	// comma-decimal exports carry no dot
	if strings.Contains(raw, ",") && !strings.Contains(raw, ".") {
		raw = strings.ReplaceAll(raw, ",", ".")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// DateRange bounds readings by wall-clock time. Either side may be open.
type DateRange struct {
	// Start is inclusive.
	Start time.Time
	// Until is exclusive. A date-only end bound covers its whole day.
	Until time.Time
}

// NewDateRange parses optional start and end bounds. Date-only values
// (YYYY-MM-DD) select whole days; full timestamps are exact.
func NewDateRange(start, end string) (DateRange, error) {
	var r DateRange
	if start = strings.TrimSpace(start); start != "" {
		t, ok := ParseTimestamp(start)
		if !ok {
			return r, fmt.Errorf("invalid start date %q", start)
		}
		r.Start = WallClock(t)
	}
	if end = strings.TrimSpace(end); end != "" {
		t, ok := ParseTimestamp(end)
		if !ok {
			return r, fmt.Errorf("invalid end date %q", end)
		}
		w := WallClock(t)
		if isDateOnly(end) {
			r.Until = w.AddDate(0, 0, 1)
		} else {
			r.Until = w.Add(time.Nanosecond)
		}
	}
	if !r.Start.IsZero() && !r.Until.IsZero() && !r.Start.Before(r.Until) {
		return r, fmt.Errorf("start date %s is after end date %s", start, end)
	}
	return r, nil
}

// IsZero reports whether neither bound is set.
func (r DateRange) IsZero() bool { return r.Start.IsZero() && r.Until.IsZero() }

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	w := WallClock(t)
	if !r.Start.IsZero() && w.Before(r.Start) {
		return false
	}
	if !r.Until.IsZero() && !w.Before(r.Until) {
		return false
	}
	return true
}

func (r DateRange) String() string {
	s, e := "*", "*"
	if !r.Start.IsZero() {
		s = r.Start.Format("2006-01-02 15:04:05")
	}
	if !r.Until.IsZero() {
		e = r.Until.Format("2006-01-02 15:04:05")
	}
	return "[" + s + ", " + e + ")"
}

func isDateOnly(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}
