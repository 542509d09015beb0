package render

import (
	"errors"
	"fmt"
	"strings"

	"github.com/KaramelBytes/airlens-cli/internal/dataset"
)

// Kind names a chart type. It prefixes the written file name and is the
// value accepted by --viz-type.
type Kind string

const (
	KindTimeSeries   Kind = "time_series"
	KindDailyPattern Kind = "daily_pattern"
	KindHeatmap      Kind = "heatmap"
	KindCorrelation  Kind = "correlation"
	KindMatrix       Kind = "correlation_matrix"
	KindScatter      Kind = "scatter"
	KindHistogram    Kind = "histogram"
	KindTrend        Kind = "trend"
	KindError        Kind = "error"
)

// Kinds lists the chart types Visualize accepts, core types first.
var Kinds = []Kind{
	KindTimeSeries, KindDailyPattern, KindHeatmap, KindCorrelation,
	KindMatrix, KindScatter, KindHistogram, KindTrend,
}

// ExtendedKinds are rendered alongside analyze --extended.
var ExtendedKinds = []Kind{KindScatter, KindHistogram, KindMatrix}

// ParseKind validates a --viz-type value.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	names := make([]string, len(Kinds))
	for i, known := range Kinds {
		names[i] = string(known)
	}
	return "", fmt.Errorf("unknown visualization type %q (want one of %s)", s, strings.Join(names, ", "))
}

// Visualize renders kind for ds.
func Visualize(c *Context, kind Kind, ds *dataset.Dataset) (Artifact, error) {
	c.log().Debug("rendering chart", "kind", kind, "rows", ds.Len())
	switch kind {
	case KindTimeSeries:
		return TimeSeries(c, ds)
	case KindDailyPattern:
		return DailyPattern(c, ds)
	case KindHeatmap:
		return Heatmap(c, ds)
	case KindCorrelation:
		return Correlation(c, ds)
	case KindMatrix:
		return CorrelationMatrix(c, ds)
	case KindScatter:
		return Scatter(c, ds)
	case KindHistogram:
		return Histograms(c, ds)
	case KindTrend:
		return Trend(c, ds)
	}
	return Artifact{}, &RenderError{Kind: kind, Err: errors.New("unsupported chart type")}
}
