package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Reading is one timestamped row with a value slot per metric. Present marks
// which slots were parsed from a non-empty numeric cell.
type Reading struct {
	Time    time.Time
	Values  [NumMetrics]float64
	Present [NumMetrics]bool
}

// Value returns the metric value and whether it is present.
func (r Reading) Value(m Metric) (float64, bool) { return r.Values[m], r.Present[m] }

// Any reports whether at least one metric is present.
func (r Reading) Any() bool {
	for _, p := range r.Present {
		if p {
			return true
		}
	}
	return false
}

// Dataset is a time-sorted, filtered table of readings.
type Dataset struct {
	Name     string
	Mapping  FieldMapping
	Readings []Reading
	// RawCount counts data rows read from the file.
	RawCount int
	// Dropped counts rows whose timestamp could not be parsed.
	Dropped int
	// Filtered counts rows excluded by the date range.
	Filtered  int
	Truncated bool
	Range     DateRange
}

// Len returns the number of readings kept.
func (d *Dataset) Len() int { return len(d.Readings) }

// Values returns the non-missing values of a metric in time order.
func (d *Dataset) Values(m Metric) []float64 {
	out := make([]float64, 0, len(d.Readings))
	for _, r := range d.Readings {
		if r.Present[m] {
			out = append(out, r.Values[m])
		}
	}
	return out
}

// Pairs returns the pairwise-complete values of two metrics.
func (d *Dataset) Pairs(a, b Metric) (xs, ys []float64) {
	for _, r := range d.Readings {
		if r.Present[a] && r.Present[b] {
			xs = append(xs, r.Values[a])
			ys = append(ys, r.Values[b])
		}
	}
	return xs, ys
}

// Span returns the first and last timestamps.
func (d *Dataset) Span() (first, last time.Time, ok bool) {
	if len(d.Readings) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return d.Readings[0].Time, d.Readings[len(d.Readings)-1].Time, true
}

// Filter returns a new dataset keeping readings inside r. Filtering is
// idempotent: applying the same range twice yields the same readings.
func (d *Dataset) Filter(r DateRange) *Dataset {
	out := *d
	out.Range = r
	out.Readings = make([]Reading, 0, len(d.Readings))
	for _, rd := range d.Readings {
		if r.Contains(rd.Time) {
			out.Readings = append(out.Readings, rd)
		} else {
			out.Filtered++
		}
	}
	return &out
}

// LoadOptions controls how a CSV file becomes a Dataset.
type LoadOptions struct {
	Range DateRange
	// MaxRows limits data rows read; 0 means unlimited.
	MaxRows int
	// Delimiter for CSV. If 0, sniffed from the file extension.
	Delimiter rune
	Logger    *slog.Logger
}

// Load reads, parses, filters and sorts a telemetry CSV. On ErrEmptyDataset
// the partially populated Dataset is still returned so callers can report
// the mapping and raw counts.
func Load(path string, opt LoadOptions) (*Dataset, error) {
	sc, err := Open(path, opt.Delimiter)
	if err != nil {
		return nil, err
	}
	defer sc.Close()
	return load(sc, filepath.Base(path), opt)
}

// Read is Load over an arbitrary reader.
func Read(r io.Reader, name string, opt LoadOptions) (*Dataset, error) {
	sc, err := NewScanner(r, opt.Delimiter)
	if err != nil {
		return nil, err
	}
	return load(sc, name, opt)
}

func load(sc *Scanner, name string, opt LoadOptions) (*Dataset, error) {
	ds := &Dataset{Name: name, Mapping: sc.Mapping, Range: opt.Range}
	for sc.Next() {
		if opt.MaxRows > 0 && sc.Rows() > opt.MaxRows {
			ds.Truncated = true
			break
		}
		rd, ok := sc.Reading()
		if !ok {
			ds.Dropped++
			continue
		}
		if !opt.Range.Contains(rd.Time) {
			ds.Filtered++
			continue
		}
		ds.Readings = append(ds.Readings, rd)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	ds.RawCount = ds.Dropped + ds.Filtered + len(ds.Readings)
	sort.SliceStable(ds.Readings, func(i, j int) bool { return ds.Readings[i].Time.Before(ds.Readings[j].Time) })
	if opt.Logger != nil {
		opt.Logger.Debug("dataset loaded",
			"file", name,
			"raw_rows", ds.RawCount,
			"kept", len(ds.Readings),
			"dropped", ds.Dropped,
			"filtered", ds.Filtered,
			"truncated", ds.Truncated)
	}
	if len(ds.Readings) == 0 {
		if ds.RawCount == 0 {
			return ds, fmt.Errorf("%w: no data found in CSV file", ErrEmptyDataset)
		}
		if !opt.Range.IsZero() {
			return ds, fmt.Errorf("%w: no data found for the specified date range", ErrEmptyDataset)
		}
		return ds, fmt.Errorf("%w: no rows with a parseable timestamp", ErrEmptyDataset)
	}
	return ds, nil
}

// Scanner walks a telemetry CSV row by row with the header already resolved.
// It holds one record at a time so callers can stream arbitrarily large files.
type Scanner struct {
	Mapping FieldMapping
	Header  []string

	r       *csv.Reader
	closer  io.Closer
	rec     []string
	rows    int
	dropped int
	err     error
}

// Open opens path and resolves its header.
func Open(path string, delim rune) (*Scanner, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("open csv: %w", err)
	}
	if delim == 0 {
		delim = sniffDelimiter(path)
	}
	sc, err := NewScanner(f, delim)
	if err != nil {
		f.Close()
		return nil, err
	}
	sc.closer = f
	return sc, nil
}

// NewScanner reads and resolves the header from r.
func NewScanner(r io.Reader, delim rune) (*Scanner, error) {
	if delim == 0 {
		delim = ','
	}
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comma = delim

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: no data found in CSV file", ErrEmptyDataset)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	header = append([]string(nil), header...)
	fm, err := ResolveFields(header)
	if err != nil {
		return nil, err
	}
	return &Scanner{Mapping: fm, Header: header, r: cr}, nil
}

// Next advances to the next data row.
func (s *Scanner) Next() bool {
	if s.err != nil {
		return false
	}
	rec, err := s.r.Read()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			s.err = err
		}
		s.rec = nil
		return false
	}
	s.rec = rec
	s.rows++
	return true
}

// Record returns the raw cells of the current row.
func (s *Scanner) Record() []string { return s.rec }

// Reading parses the current row. ok is false when the timestamp cannot be parsed.
func (s *Scanner) Reading() (Reading, bool) {
	rd, ok := parseRow(s.rec, s.Mapping)
	if !ok {
		s.dropped++
	}
	return rd, ok
}

// NextChunk reads up to size data rows and appends the parseable ones to dst.
// It returns io.EOF once the input is exhausted; the final chunk may carry
// readings alongside io.EOF.
func (s *Scanner) NextChunk(dst []Reading, size int) ([]Reading, error) {
	if size <= 0 {
		size = 1
	}
	for i := 0; i < size; i++ {
		if !s.Next() {
			if s.err != nil {
				return dst, s.err
			}
			return dst, io.EOF
		}
		if rd, ok := s.Reading(); ok {
			dst = append(dst, rd)
		}
	}
	return dst, nil
}

// Rows counts data rows read so far.
func (s *Scanner) Rows() int { return s.rows }

// Dropped counts rows whose timestamp failed to parse via Reading.
func (s *Scanner) Dropped() int { return s.dropped }

func (s *Scanner) Err() error { return s.err }

// Close releases the underlying file, if any.
func (s *Scanner) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// parseRow fills every metric slot and reports whether the timestamp parsed.
func parseRow(rec []string, fm FieldMapping) (Reading, bool) {
	var rd Reading
	for _, m := range Metrics {
		idx := fm.Index[m]
		if idx < 0 || idx >= len(rec) {
			continue
		}
		if v, ok := ParseNumeric(rec[idx]); ok {
			rd.Values[m] = v
			rd.Present[m] = true
		}
	}
	if fm.Timestamp < 0 || fm.Timestamp >= len(rec) {
		return rd, false
	}
	t, ok := ParseTimestamp(rec[fm.Timestamp])
	if !ok {
		return rd, false
	}
	rd.Time = t
	return rd, true
}

func sniffDelimiter(path string) rune {
	name := strings.ToLower(path)
	if strings.HasSuffix(name, ".tsv") {
		return '\t'
	}
	return ','
}
