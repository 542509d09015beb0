package analysis

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/KaramelBytes/airlens-cli/internal/dataset"
)

// Version is reported as analysis_version by extended results.
const Version = 2

const dateLayout = "2006-01-02 15:04:05"

// Options controls an in-memory analysis run.
type Options struct {
	Load     dataset.LoadOptions
	Extended bool
	Logger   *slog.Logger
}

// Analysis bundles every aggregate computed from one dataset.
type Analysis struct {
	Dataset  *dataset.Dataset
	Stats    Statistics
	Extended bool
	Hourly   *PatternTable
	Daily    *PatternTable
	Heatmap  *Heatmap
	Corr     CorrelationSet
	Matrix   *CorrMatrix
	Quality  *Quality
}

// Run loads path and computes statistics, plus patterns, correlations and
// quality when opt.Extended is set. On ErrEmptyDataset the returned Analysis
// still carries the (empty) dataset.
func Run(path string, opt Options) (*Analysis, error) {
	if opt.Load.Logger == nil {
		opt.Load.Logger = opt.Logger
	}
	ds, err := dataset.Load(path, opt.Load)
	if err != nil {
		if ds != nil {
			return &Analysis{Dataset: ds, Stats: Statistics{Mapping: ds.Mapping}}, err
		}
		return nil, err
	}
	return FromDataset(ds, opt.Extended, opt.Logger), nil
}

// FromDataset computes the analysis of an already loaded dataset.
func FromDataset(ds *dataset.Dataset, extended bool, log *slog.Logger) *Analysis {
	a := &Analysis{Dataset: ds, Stats: Summarize(ds, log), Extended: extended}
	if !extended {
		return a
	}
	hourly := HourlyPattern(ds)
	daily := DailyPattern(ds)
	hm := BuildHeatmap(ds, dataset.PM25)
	if !ds.Mapping.Available(dataset.PM25) {
		hm = BuildHeatmap(ds, dataset.PM10)
	}
	matrix := CorrelationMatrix(ds)
	quality := AssessQuality(ds)
	a.Hourly, a.Daily, a.Heatmap, a.Matrix, a.Quality = &hourly, &daily, &hm, &matrix, &quality
	a.Corr = Correlations(ds)
	if log != nil {
		log.Debug("extended analysis complete",
			"hours", len(hourly.Buckets),
			"days", len(daily.Buckets),
			"correlations", len(a.Corr))
	}
	return a
}

// DateSpan is the first and last timestamp of the analyzed readings.
type DateSpan struct {
	Start *string `json:"start"`
	End   *string `json:"end"`
}

// ChartRef points at a rendered artifact.
type ChartRef struct {
	Kind        string `json:"kind"`
	Path        string `json:"path"`
	Description string `json:"description,omitempty"`
}

// Result is the flat analysis record printed by analyze. Numeric fields are
// zero when unavailable so consumers never see missing keys.
type Result struct {
	RunID              string            `json:"run_id,omitempty"`
	AveragePM25        float64           `json:"average_pm25"`
	AveragePM10        float64           `json:"average_pm10"`
	AverageTemperature float64           `json:"average_temperature"`
	AverageHumidity    float64           `json:"average_humidity"`
	MaxPM25            float64           `json:"max_pm25"`
	MaxPM10            float64           `json:"max_pm10"`
	MinPM25            float64           `json:"min_pm25"`
	MinPM10            float64           `json:"min_pm10"`
	RecordCount        int               `json:"record_count"`
	RawRecordCount     int               `json:"raw_record_count"`
	DateRange          DateSpan          `json:"date_range"`
	FieldMapping       map[string]string `json:"field_mapping,omitempty"`
	HourlyPatterns     *PatternTable     `json:"hourly_patterns,omitempty"`
	DailyPatterns      *PatternTable     `json:"daily_patterns,omitempty"`
	Heatmap            *Heatmap          `json:"heatmap,omitempty"`
	Correlations       CorrelationSet    `json:"correlations,omitempty"`
	CorrelationMatrix  *CorrMatrix       `json:"correlation_matrix,omitempty"`
	DataQuality        *Quality          `json:"data_quality,omitempty"`
	AnalysisVersion    int               `json:"analysis_version,omitempty"`
	Charts             []ChartRef        `json:"charts,omitempty"`
	Error              string            `json:"error,omitempty"`
}

// Result flattens the analysis into the legacy record.
func (a *Analysis) Result() *Result {
	r := &Result{}
	if a.Dataset != nil {
		r.RecordCount = a.Dataset.Len()
		r.RawRecordCount = a.Dataset.RawCount
		r.FieldMapping = a.Dataset.Mapping.Describe()
		if first, last, ok := a.Dataset.Span(); ok {
			s, e := first.Format(dateLayout), last.Format(dateLayout)
			r.DateRange = DateSpan{Start: &s, End: &e}
		}
	}
	if s, ok := a.Stats.Summary(dataset.PM25); ok {
		r.AveragePM25, r.MaxPM25, r.MinPM25 = s.Mean, s.Max, s.Min
	}
	if s, ok := a.Stats.Summary(dataset.PM10); ok {
		r.AveragePM10, r.MaxPM10, r.MinPM10 = s.Mean, s.Max, s.Min
	}
	if s, ok := a.Stats.Summary(dataset.Temperature); ok {
		r.AverageTemperature = s.Mean
	}
	if s, ok := a.Stats.Summary(dataset.Humidity); ok {
		r.AverageHumidity = s.Mean
	}
	if a.Extended {
		r.HourlyPatterns = a.Hourly
		r.DailyPatterns = a.Daily
		r.Heatmap = a.Heatmap
		r.Correlations = a.Corr
		r.CorrelationMatrix = a.Matrix
		r.DataQuality = a.Quality
		r.AnalysisVersion = Version
	}
	return r
}

// FailedResult builds the zeroed record for a fatal error. When a is non-nil
// its counts and mapping are kept.
func FailedResult(err error, a *Analysis) *Result {
	r := &Result{}
	if a != nil {
		r = a.Result()
	}
	r.Error = ErrorMessage(err)
	return r
}

// ErrorMessage renders err the way result records report it.
func ErrorMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, dataset.ErrFileNotFound):
		return fmt.Sprintf("File not found: %s", unwrapDetail(err, dataset.ErrFileNotFound))
	case errors.Is(err, dataset.ErrEmptyDataset):
		return capitalize(unwrapDetail(err, dataset.ErrEmptyDataset))
	case errors.Is(err, dataset.ErrMissingRequiredColumns):
		return capitalize(unwrapDetail(err, dataset.ErrMissingRequiredColumns))
	}
	return fmt.Sprintf("Error analyzing data: %v", err)
}

// unwrapDetail strips the "<sentinel>: " prefix added by wrapping.
func unwrapDetail(err, sentinel error) string {
	msg := err.Error()
	prefix := sentinel.Error() + ": "
	if i := strings.Index(msg, prefix); i >= 0 {
		return msg[i+len(prefix):]
	}
	return msg
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Visualization describes the artifact produced by a visualize run.
type Visualization struct {
	Type        string  `json:"type"`
	Path        *string `json:"path"`
	Description *string `json:"description"`
}

// VisualizationResult is the optional JSON printed after the two-line output.
type VisualizationResult struct {
	RunID         string        `json:"run_id,omitempty"`
	Success       bool          `json:"success"`
	Statistics    *Statistics   `json:"statistics"`
	Visualization Visualization `json:"visualization"`
	Error         *string       `json:"error"`
}

// NewVisualizationResult fills a result for kind. err marks it failed.
func NewVisualizationResult(kind string, st *Statistics, path, desc string, err error) *VisualizationResult {
	vr := &VisualizationResult{Success: err == nil, Statistics: st, Visualization: Visualization{Type: kind}}
	if path != "" {
		vr.Visualization.Path = &path
	}
	if desc != "" {
		vr.Visualization.Description = &desc
	}
	if err != nil {
		msg := ErrorMessage(err)
		vr.Error = &msg
	}
	return vr
}
