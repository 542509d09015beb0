package analysis

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/airlens-cli/internal/dataset"
)

// Markdown renders a compact human-readable report of the analysis.
func (a *Analysis) Markdown() string {
	var b strings.Builder
	ds := a.Dataset
	b.WriteString("[DATASET SUMMARY]\n")
	if ds != nil {
		if ds.Name != "" {
			b.WriteString(fmt.Sprintf("File: %s\n", ds.Name))
		}
		b.WriteString(fmt.Sprintf("Rows: %d (read %d, unparseable timestamps %d, outside range %d)\n",
			ds.Len(), ds.RawCount, ds.Dropped, ds.Filtered))
		if ds.Truncated {
			b.WriteString("Input truncated at the configured row limit\n")
		}
		if first, last, ok := ds.Span(); ok {
			b.WriteString(fmt.Sprintf("Period: %s → %s\n", first.Format(dateLayout), last.Format(dateLayout)))
		}
	}
	b.WriteString("\n[FIELD MAPPING]\n")
	for _, m := range dataset.Metrics {
		col := a.Stats.Mapping.Column(m)
		if col == "" {
			col = "unavailable"
		}
		b.WriteString(fmt.Sprintf("- %s: %s\n", m.Label(), col))
	}

	b.WriteString("\n[STATISTICS]\n")
	for _, m := range dataset.Metrics {
		s, ok := a.Stats.Summary(m)
		if !ok {
			continue
		}
		b.WriteString(fmt.Sprintf("- %s [%s] (n=%d): mean %.2f, median %.2f, min %.2f, max %.2f, std %.2f\n",
			m.Label(), m.Unit(), s.Count, s.Mean, s.Median, s.Min, s.Max, s.Std))
	}

	b.WriteString("\n[AIR QUALITY]\n")
	for _, m := range []dataset.Metric{dataset.PM25, dataset.PM10} {
		lvl := a.Stats.Level(m)
		b.WriteString(fmt.Sprintf("- %s: %s (%s)\n", m.Label(), lvl.Label, lvl.Color))
	}

	if a.Hourly != nil && len(a.Hourly.Buckets) > 0 {
		b.WriteString("\n[HOURLY PATTERN]\n")
		writePattern(&b, *a.Hourly)
	}
	if a.Daily != nil && len(a.Daily.Buckets) > 0 {
		b.WriteString("\n[DAILY PATTERN]\n")
		writePattern(&b, *a.Daily)
	}
	if a.Heatmap != nil {
		if worst, ok := a.Heatmap.Worst(); ok {
			best, _ := a.Heatmap.Best()
			b.WriteString("\n[WEEKLY HEATMAP]\n")
			b.WriteString(fmt.Sprintf("- Worst slot: %s %02d:00 (%.2f)\n", worst.DayName(), worst.Hour, worst.Value))
			b.WriteString(fmt.Sprintf("- Best slot: %s %02d:00 (%.2f)\n", best.DayName(), best.Hour, best.Value))
		}
	}
	if len(a.Corr) > 0 {
		b.WriteString("\n[CORRELATIONS]\n")
		for _, c := range a.Corr {
			b.WriteString(fmt.Sprintf("- %s ~ %s: r=%.3f (n=%d, %s)\n",
				c.A.Label(), c.B.Label(), c.R, c.N, strings.ToLower(Relationship(c.R))))
		}
	}
	if a.Quality != nil {
		b.WriteString("\n[DATA QUALITY]\n")
		for _, m := range dataset.Metrics {
			b.WriteString(fmt.Sprintf("- %s: completeness %.2f%%", m.Label(), a.Quality.Completeness[m.String()]))
			if o, ok := a.Quality.Outliers[m.String()]; ok {
				b.WriteString(fmt.Sprintf(", outliers %.2f%%", o))
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func writePattern(b *strings.Builder, p PatternTable) {
	for _, m := range []dataset.Metric{dataset.PM25, dataset.PM10} {
		peak, ok := p.Peak(m)
		if !ok {
			continue
		}
		trough, _ := p.Trough(m)
		b.WriteString(fmt.Sprintf("- %s peaks at %v (%.2f), lowest at %v (%.2f)\n",
			m.Label(), p.KeyLabel(peak.Key), peak.Means[m], p.KeyLabel(trough.Key), trough.Means[m]))
	}
	b.WriteString(fmt.Sprintf("- %d of %d buckets observed\n", len(p.Buckets), patternSize(p.Kind)))
}

func patternSize(k PatternKind) int {
	if k == DayOfWeek {
		return 7
	}
	return 24
}
