package telemetry

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"time"

	"github.com/KaramelBytes/airlens-cli/internal/dataset"
	"github.com/KaramelBytes/airlens-cli/internal/utils"
)

// CSVHeader is written by WriteCSV: raw ThingSpeak fields followed by their
// semantic copies.
var CSVHeader = []string{
	dataset.TimestampColumn, "entry_id",
	"field1", "field2", "field3", "field4",
	"humidity", "temperature", "pm25", "pm10",
}

// WriteCSV writes feeds in CSVHeader order.
func WriteCSV(w io.Writer, feeds []Feed) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, f := range feeds {
		fields := []string{f.Field1.Value, f.Field2.Value, f.Field3.Value, f.Field4.Value}
		row := []string{f.CreatedAt, strconv.FormatInt(f.EntryID, 10)}
		row = append(row, fields...)
		// field1..4 carry humidity, temperature, pm25, pm10
		row = append(row, fields...)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// DateSpan is the first and last entry timestamp of a fetch.
type DateSpan struct {
	Start *string `json:"start"`
	End   *string `json:"end"`
}

// FetchResult reports a fetch run. It is printed as JSON by the fetch command.
type FetchResult struct {
	Success     bool     `json:"success"`
	Records     int      `json:"records"`
	OutputFile  string   `json:"output_file"`
	ElapsedTime float64  `json:"elapsed_time"`
	DateRange   DateSpan `json:"date_range"`
	CheckOnly   bool     `json:"check_only,omitempty"`
	Error       *string  `json:"error"`
}

// FetchOptions selects the window and destination of FetchAndSave.
type FetchOptions struct {
	Span       time.Duration
	MaxResults int
	Output     string
	CheckOnly  bool
	Now        time.Time
}

// FetchAndSave downloads the trailing Span of feeds and writes them to
// Output unless CheckOnly is set. Failures are reported in the result.
func (c *Client) FetchAndSave(ctx context.Context, opt FetchOptions) *FetchResult {
	started := time.Now()
	res := &FetchResult{OutputFile: opt.Output, CheckOnly: opt.CheckOnly}
	fail := func(err error) *FetchResult {
		msg := err.Error()
		res.Error = &msg
		res.ElapsedTime = elapsed(started)
		c.log.Error("fetch failed", "channel", c.channelID, "err", err)
		return res
	}
	now := opt.Now
	if now.IsZero() {
		now = time.Now()
	}
	span := opt.Span
	if span <= 0 {
		span = 7 * 24 * time.Hour
	}
	fr, err := c.Feeds(ctx, FeedRequest{Start: now.Add(-span), End: now, Results: opt.MaxResults})
	if err != nil {
		return fail(err)
	}
	if len(fr.Feeds) == 0 {
		return fail(ErrNoFeeds)
	}
	res.Records = len(fr.Feeds)
	res.DateRange = feedSpan(fr.Feeds)
	if !opt.CheckOnly {
		if err := saveFeeds(opt.Output, fr.Feeds); err != nil {
			return fail(err)
		}
		c.log.Info("feeds saved", "file", opt.Output, "records", res.Records)
	}
	res.Success = true
	res.ElapsedTime = elapsed(started)
	return res
}

func saveFeeds(path string, feeds []Feed) error {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, feeds); err != nil {
		return fmt.Errorf("encode csv: %w", err)
	}
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return utils.SafeWriteFile(path, buf.Bytes())
}

func feedSpan(feeds []Feed) DateSpan {
	var first, last time.Time
	for _, f := range feeds {
		t, ok := dataset.ParseTimestamp(f.CreatedAt)
		if !ok {
			continue
		}
		if first.IsZero() || t.Before(first) {
			first = t
		}
		if last.IsZero() || t.After(last) {
			last = t
		}
	}
	if first.IsZero() {
		return DateSpan{}
	}
	s, e := first.Format("2006-01-02 15:04:05"), last.Format("2006-01-02 15:04:05")
	return DateSpan{Start: &s, End: &e}
}

func elapsed(since time.Time) float64 {
	return math.Round(time.Since(since).Seconds()*100) / 100
}
