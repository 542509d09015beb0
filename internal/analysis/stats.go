package analysis

import (
	"encoding/json"
	"log/slog"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/KaramelBytes/airlens-cli/internal/dataset"
)

// Summary describes one metric over its non-missing values.
type Summary struct {
	Count  int
	Mean   float64
	Median float64
	Min    float64
	Max    float64
	Std    float64
}

// Available reports whether the summary was computed from at least one value.
func (s Summary) Available() bool { return s.Count > 0 }

// MarshalJSON emits null for every statistic of an unavailable summary and
// for any NaN field.
func (s Summary) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.fields())
}

func (s Summary) fields() map[string]any {
	out := map[string]any{"count": s.Count}
	vals := map[string]float64{"mean": s.Mean, "median": s.Median, "min": s.Min, "max": s.Max, "std": s.Std}
	for k, v := range vals {
		if s.Available() {
			out[k] = finite(v)
		} else {
			out[k] = nil
		}
	}
	return out
}

// Describe summarizes values. Std is the sample standard deviation.
func Describe(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	s := Summary{
		Count:  len(values),
		Median: quantile(sorted, 0.5),
		Min:    floats.Min(values),
		Max:    floats.Max(values),
	}
	if len(values) == 1 {
		s.Mean = values[0]
		return s
	}
	s.Mean, s.Std = stat.MeanStdDev(values, nil)
	return s
}

// Statistics is the per-metric description of a dataset.
type Statistics struct {
	Count     int
	Start     time.Time
	End       time.Time
	Mapping   dataset.FieldMapping
	Summaries map[dataset.Metric]Summary
}

// Summarize computes a Summary for every available metric of ds.
func Summarize(ds *dataset.Dataset, log *slog.Logger) Statistics {
	st := Statistics{
		Count:     ds.Len(),
		Mapping:   ds.Mapping,
		Summaries: make(map[dataset.Metric]Summary, dataset.NumMetrics),
	}
	st.Start, st.End, _ = ds.Span()
	for _, m := range ds.Mapping.AvailableMetrics() {
		s := Describe(ds.Values(m))
		if !s.Available() && log != nil {
			log.Warn("metric has no valid values", "metric", m.String(), "column", ds.Mapping.Column(m))
		}
		st.Summaries[m] = s
	}
	return st
}

// Summary returns the summary of m; ok is false when m is unavailable or empty.
func (s Statistics) Summary(m dataset.Metric) (Summary, bool) {
	sum, ok := s.Summaries[m]
	return sum, ok && sum.Available()
}

// Level classifies the mean of a pollutant.
func (s Statistics) Level(m dataset.Metric) Level {
	sum, ok := s.Summary(m)
	if !ok {
		return LevelUnknown
	}
	return Classify(m, sum.Mean)
}

// MarshalJSON renders the nested statistics object used by visualization results.
func (s Statistics) MarshalJSON() ([]byte, error) {
	out := map[string]any{"count": s.Count}
	if s.Count > 0 {
		out["date_range"] = map[string]string{
			"start": s.Start.Format(time.RFC3339),
			"end":   s.End.Format(time.RFC3339),
		}
	}
	for _, m := range dataset.Metrics {
		sum, ok := s.Summaries[m]
		if !ok {
			continue
		}
		mj := sum.fields()
		if m.IsPollutant() {
			mj["air_quality"] = s.Level(m)
		}
		out[m.String()] = mj
	}
	return json.Marshal(out)
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}

func finite(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func round(x float64, places int) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}
