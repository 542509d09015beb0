package dataset

import (
	"fmt"
	"strings"
)

// Metric identifies one of the semantic sensor channels.
type Metric int

const (
	PM25 Metric = iota
	PM10
	Temperature
	Humidity
)

// NumMetrics is the number of semantic channels a Reading carries.
const NumMetrics = 4

// TimestampColumn is the only column every input file must carry.
const TimestampColumn = "created_at"

// Metrics lists every semantic channel in canonical order.
var Metrics = [NumMetrics]Metric{PM25, PM10, Temperature, Humidity}

var metricNames = [NumMetrics]string{"pm25", "pm10", "temperature", "humidity"}
var metricLabels = [NumMetrics]string{"PM2.5", "PM10", "Temperature", "Humidity"}
var metricUnits = [NumMetrics]string{"μg/m³", "μg/m³", "°C", "%"}

// legacyColumns maps each metric to the ThingSpeak field code that feeds it.
var legacyColumns = [NumMetrics]string{"field3", "field4", "field2", "field1"}

func (m Metric) String() string {
	if m < 0 || int(m) >= NumMetrics {
		return fmt.Sprintf("metric(%d)", int(m))
	}
	return metricNames[m]
}

// Label is the human-facing name used in charts and reports.
func (m Metric) Label() string { return metricLabels[m] }

// Unit is the measurement unit of the channel.
func (m Metric) Unit() string { return metricUnits[m] }

// LegacyColumn returns the fieldN code used by the raw telemetry export.
func (m Metric) LegacyColumn() string { return legacyColumns[m] }

// IsPollutant reports whether the metric has an air-quality threshold table.
func (m Metric) IsPollutant() bool { return m == PM25 || m == PM10 }

// ParseMetric resolves a semantic or legacy column name to a Metric.
func ParseMetric(s string) (Metric, bool) {
	s = normalizeColumn(s)
	for i := range metricNames {
		if s == metricNames[i] || s == legacyColumns[i] {
			return Metric(i), true
		}
	}
	return 0, false
}

// FieldMapping records which raw column feeds each metric. It is resolved once
// from the header and shared by every downstream stage.
type FieldMapping struct {
	Timestamp int
	Columns   [NumMetrics]string
	Index     [NumMetrics]int
}

// Available reports whether a raw column feeds the metric.
func (f FieldMapping) Available(m Metric) bool { return f.Index[m] >= 0 }

// Column returns the raw column name feeding the metric, or "".
func (f FieldMapping) Column(m Metric) string { return f.Columns[m] }

// AvailableMetrics returns the resolved metrics in canonical order.
func (f FieldMapping) AvailableMetrics() []Metric {
	out := make([]Metric, 0, NumMetrics)
	for _, m := range Metrics {
		if f.Available(m) {
			out = append(out, m)
		}
	}
	return out
}

// Describe renders the mapping as metric name -> raw column ("" when unavailable).
func (f FieldMapping) Describe() map[string]string {
	out := make(map[string]string, NumMetrics+1)
	out["timestamp"] = TimestampColumn
	for _, m := range Metrics {
		out[m.String()] = f.Columns[m]
	}
	return out
}

// ResolveFields maps a raw header onto the semantic metrics. The semantic name
// wins over the legacy fieldN code when both are present.
func ResolveFields(header []string) (FieldMapping, error) {
	fm := FieldMapping{Timestamp: -1}
	for i := range fm.Index {
		fm.Index[i] = -1
	}
	pos := make(map[string]int, len(header))
	raw := make(map[string]string, len(header))
	for i, h := range header {
		key := normalizeColumn(h)
		if _, dup := pos[key]; dup {
			continue
		}
		pos[key] = i
		raw[key] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	if idx, ok := pos[TimestampColumn]; ok {
		fm.Timestamp = idx
	}
	for _, m := range Metrics {
		for _, name := range []string{m.String(), m.LegacyColumn()} {
			if idx, ok := pos[name]; ok {
				fm.Index[m] = idx
				fm.Columns[m] = raw[name]
				break
			}
		}
	}
	if fm.Timestamp < 0 {
		return fm, fmt.Errorf("%w: %q column not found", ErrMissingRequiredColumns, TimestampColumn)
	}
	if !fm.Available(PM25) && !fm.Available(PM10) {
		return fm, fmt.Errorf("%w: could not find PM2.5 or PM10 columns in the data", ErrMissingRequiredColumns)
	}
	return fm, nil
}

func normalizeColumn(s string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(s, "\ufeff")))
}
