package analysis

import (
	"math"

	"github.com/KaramelBytes/airlens-cli/internal/dataset"
)

// Quality reports completeness and outlier share per metric, in percent.
type Quality struct {
	RecordCount  int                `json:"record_count"`
	Completeness map[string]float64 `json:"completeness"`
	Outliers     map[string]float64 `json:"outliers"`
}

// AssessQuality measures how complete each metric is and how many values sit
// more than three standard deviations from the mean. Both shares are relative
// to the total row count.
func AssessQuality(ds *dataset.Dataset) Quality {
	q := Quality{
		RecordCount:  ds.Len(),
		Completeness: make(map[string]float64, dataset.NumMetrics),
		Outliers:     make(map[string]float64, dataset.NumMetrics),
	}
	total := float64(ds.Len())
	for _, m := range dataset.Metrics {
		if !ds.Mapping.Available(m) || total == 0 {
			q.Completeness[m.String()] = 0
			continue
		}
		vals := ds.Values(m)
		q.Completeness[m.String()] = round(float64(len(vals))/total*100, 2)
		s := Describe(vals)
		if !s.Available() {
			q.Outliers[m.String()] = 0
			continue
		}
		n := 0
		for _, v := range vals {
			if math.Abs(v-s.Mean) > 3*s.Std {
				n++
			}
		}
		q.Outliers[m.String()] = round(float64(n)/total*100, 2)
	}
	return q
}
