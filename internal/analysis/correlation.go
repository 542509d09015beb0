package analysis

import (
	"encoding/json"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/KaramelBytes/airlens-cli/internal/dataset"
)

// Pair names two metrics whose correlation is reported.
type Pair struct {
	A, B dataset.Metric
	Key  string
}

// DeclaredPairs is the fixed set of correlations reported by analyze and correlate.
var DeclaredPairs = []Pair{
	{dataset.PM25, dataset.Temperature, "pm25_temp"},
	{dataset.PM25, dataset.Humidity, "pm25_humidity"},
	{dataset.PM10, dataset.Temperature, "pm10_temp"},
	{dataset.PM10, dataset.Humidity, "pm10_humidity"},
	{dataset.PM25, dataset.PM10, "pm25_pm10"},
}

// Correlation is Pearson's r for one pair. R is rounded to 3 decimals; Raw is not.
type Correlation struct {
	Pair
	R   float64
	Raw float64
	N   int
}

// CorrelationSet is ordered like DeclaredPairs, skipping pairs with an
// unavailable metric.
type CorrelationSet []Correlation

// Get returns the correlation stored under key.
func (cs CorrelationSet) Get(key string) (Correlation, bool) {
	for _, c := range cs {
		if c.Key == key {
			return c, true
		}
	}
	return Correlation{}, false
}

func (cs CorrelationSet) MarshalJSON() ([]byte, error) {
	out := make(map[string]float64, len(cs))
	for _, c := range cs {
		out[c.Key] = c.R
	}
	return json.Marshal(out)
}

// Correlations computes Pearson's r on pairwise-complete rows.
func Correlations(ds *dataset.Dataset) CorrelationSet {
	var cs CorrelationSet
	for _, p := range DeclaredPairs {
		if !ds.Mapping.Available(p.A) || !ds.Mapping.Available(p.B) {
			continue
		}
		xs, ys := ds.Pairs(p.A, p.B)
		r := pearson(xs, ys)
		cs = append(cs, Correlation{Pair: p, R: round(r, 3), Raw: r, N: len(xs)})
	}
	return cs
}

// pearson returns 0 for fewer than two points or zero variance.
func pearson(xs, ys []float64) float64 {
	if len(xs) < 2 || len(xs) != len(ys) {
		return 0
	}
	if stat.Variance(xs, nil) == 0 || stat.Variance(ys, nil) == 0 {
		return 0
	}
	return clampCorr(stat.Correlation(xs, ys, nil))
}

// CorrMatrix is a symmetric correlation matrix over the available metrics.
type CorrMatrix struct {
	Metrics []dataset.Metric
	Values  [][]float64
}

// CorrelationMatrix computes pairwise-complete r for every metric pair.
func CorrelationMatrix(ds *dataset.Dataset) CorrMatrix {
	ms := ds.Mapping.AvailableMetrics()
	cm := CorrMatrix{Metrics: ms, Values: make([][]float64, len(ms))}
	for i := range ms {
		cm.Values[i] = make([]float64, len(ms))
		cm.Values[i][i] = 1
	}
	for i := range ms {
		for j := i + 1; j < len(ms); j++ {
			xs, ys := ds.Pairs(ms[i], ms[j])
			r := round(pearson(xs, ys), 3)
			cm.Values[i][j], cm.Values[j][i] = r, r
		}
	}
	return cm
}

func (cm CorrMatrix) MarshalJSON() ([]byte, error) {
	names := make([]string, len(cm.Metrics))
	for i, m := range cm.Metrics {
		names[i] = m.String()
	}
	return json.Marshal(map[string]any{"metrics": names, "values": cm.Values})
}

// Regression fits y = Alpha + Beta·x on pairwise-complete rows of a and b.
type Regression struct {
	Alpha, Beta float64
	N           int
}

func FitLine(ds *dataset.Dataset, a, b dataset.Metric) (Regression, bool) {
	xs, ys := ds.Pairs(a, b)
	if len(xs) < 2 || stat.Variance(xs, nil) == 0 {
		return Regression{}, false
	}
	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	if math.IsNaN(alpha) || math.IsNaN(beta) {
		return Regression{}, false
	}
	return Regression{Alpha: alpha, Beta: beta, N: len(xs)}, true
}

// Relationship describes r in words, e.g. "Moderate positive".
func Relationship(r float64) string {
	a := math.Abs(r)
	word := "Weak"
	switch {
	case a > 0.7:
		word = "Strong"
	case a > 0.3:
		word = "Moderate"
	}
	if r > 0 {
		return word + " positive"
	}
	return word + " negative"
}
