package analysis

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/KaramelBytes/airlens-cli/internal/dataset"
)

// DefaultChunkSize is the number of rows folded per chunk.
const DefaultChunkSize = 50000

// StreamOptions controls the chunked aggregation pass.
type StreamOptions struct {
	ChunkSize int
	Range     dataset.DateRange
	Delimiter rune
	Logger    *slog.Logger
}

// StreamResult holds the merged accumulators of a streaming pass. Memory use
// is independent of file size.
type StreamResult struct {
	Name    string
	Mapping dataset.FieldMapping
	// Rows counts data rows read; Dropped those with an unparseable timestamp.
	Rows    int
	Dropped int
	// Valid counts rows inside the range with at least one metric present.
	Valid   int
	Chunks  int
	Skipped int
	Start   time.Time
	End     time.Time
	Moments [dataset.NumMetrics]Moments
	Pairs   []PairMoments
}

type chunkAcc struct {
	valid      int
	start, end time.Time
	moments    [dataset.NumMetrics]Moments
	pairs      []PairMoments
}

// Stream aggregates path chunk by chunk without materializing its rows.
func Stream(path string, opt StreamOptions) (*StreamResult, error) {
	sc, err := dataset.Open(path, opt.Delimiter)
	if err != nil {
		return nil, err
	}
	defer sc.Close()
	return stream(sc, filepath.Base(path), opt)
}

// StreamReader is Stream over an arbitrary reader.
func StreamReader(r io.Reader, name string, opt StreamOptions) (*StreamResult, error) {
	sc, err := dataset.NewScanner(r, opt.Delimiter)
	if err != nil {
		return nil, err
	}
	return stream(sc, name, opt)
}

func stream(sc *dataset.Scanner, name string, opt StreamOptions) (*StreamResult, error) {
	size := opt.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	res := &StreamResult{Name: name, Mapping: sc.Mapping, Pairs: make([]PairMoments, len(DeclaredPairs))}
	buf := make([]dataset.Reading, 0, size)
	for {
		chunk, err := sc.NextChunk(buf[:0], size)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		if len(chunk) > 0 {
			res.Chunks++
			part := foldChunk(chunk, sc.Mapping, opt.Range)
			if part.valid == 0 {
				res.Skipped++
			} else {
				res.merge(part)
			}
		}
		if err != nil {
			break
		}
	}
	res.Rows = sc.Rows()
	res.Dropped = sc.Dropped()
	if opt.Logger != nil {
		opt.Logger.Debug("stream complete",
			"file", name,
			"rows", res.Rows,
			"valid", res.Valid,
			"chunks", res.Chunks,
			"skipped", res.Skipped)
	}
	return res, nil
}

func foldChunk(chunk []dataset.Reading, fm dataset.FieldMapping, r dataset.DateRange) chunkAcc {
	part := chunkAcc{pairs: make([]PairMoments, len(DeclaredPairs))}
	for _, rd := range chunk {
		if !r.Contains(rd.Time) || !rd.Any() {
			continue
		}
		part.valid++
		if part.start.IsZero() || rd.Time.Before(part.start) {
			part.start = rd.Time
		}
		if rd.Time.After(part.end) {
			part.end = rd.Time
		}
		for _, m := range dataset.Metrics {
			if rd.Present[m] && fm.Available(m) {
				part.moments[m].Add(rd.Values[m])
			}
		}
		for i, p := range DeclaredPairs {
			if rd.Present[p.A] && rd.Present[p.B] {
				part.pairs[i].Add(rd.Values[p.A], rd.Values[p.B])
			}
		}
	}
	return part
}

func (s *StreamResult) merge(part chunkAcc) {
	s.Valid += part.valid
	if s.Start.IsZero() || part.start.Before(s.Start) {
		s.Start = part.start
	}
	if part.end.After(s.End) {
		s.End = part.end
	}
	for m := range s.Moments {
		s.Moments[m].Merge(part.moments[m])
	}
	for i := range s.Pairs {
		s.Pairs[i].Merge(part.pairs[i])
	}
}

// NoData reports whether no row inside the range carried a value.
func (s *StreamResult) NoData() bool { return s.Valid == 0 }

// Summary returns the streaming summary of m. Median is NaN.
func (s *StreamResult) Summary(m dataset.Metric) Summary { return s.Moments[m].Summary() }

// Pair returns the accumulator for a declared pair key.
func (s *StreamResult) Pair(key string) (PairMoments, bool) {
	for i, p := range DeclaredPairs {
		if p.Key == key {
			return s.Pairs[i], true
		}
	}
	return PairMoments{}, false
}

// Correlations mirrors the in-memory Correlations on the merged accumulators.
func (s *StreamResult) Correlations() CorrelationSet {
	var cs CorrelationSet
	for i, p := range DeclaredPairs {
		if !s.Mapping.Available(p.A) || !s.Mapping.Available(p.B) {
			continue
		}
		r := s.Pairs[i].Pearson()
		cs = append(cs, Correlation{Pair: p, R: round(r, 3), Raw: r, N: int(s.Pairs[i].N)})
	}
	return cs
}

// Statistics converts the stream into the same shape Summarize produces.
func (s *StreamResult) Statistics() Statistics {
	st := Statistics{
		Count:     s.Valid,
		Start:     s.Start,
		End:       s.End,
		Mapping:   s.Mapping,
		Summaries: make(map[dataset.Metric]Summary, dataset.NumMetrics),
	}
	for _, m := range s.Mapping.AvailableMetrics() {
		st.Summaries[m] = s.Summary(m)
	}
	return st
}
