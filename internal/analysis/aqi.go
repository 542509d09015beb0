package analysis

import (
	"math"

	"github.com/KaramelBytes/airlens-cli/internal/dataset"
)

// Level is an air-quality category with its display color.
type Level struct {
	Label string `json:"level"`
	Color string `json:"color"`
}

var (
	LevelUnknown = Level{Label: "Unknown", Color: "gray"}
	LevelExtreme = Level{Label: "Extremely Hazardous", Color: "black"}
)

type threshold struct {
	max   float64
	level Level
}

var levels = []Level{
	{"Good", "green"},
	{"Moderate", "yellow"},
	{"Unhealthy for Sensitive Groups", "orange"},
	{"Unhealthy", "red"},
	{"Very Unhealthy", "purple"},
	{"Hazardous", "maroon"},
}

var pm25Thresholds = buildThresholds(12, 35.4, 55.4, 150.4, 250.4, 500)
var pm10Thresholds = buildThresholds(54, 154, 254, 354, 424, 604)

func buildThresholds(maxes ...float64) []threshold {
	out := make([]threshold, len(maxes))
	for i, m := range maxes {
		out[i] = threshold{max: m, level: levels[i]}
	}
	return out
}

// ClassifyPM25 buckets a PM2.5 concentration (µg/m³).
func ClassifyPM25(v float64) Level { return classify(pm25Thresholds, v) }

// ClassifyPM10 buckets a PM10 concentration (µg/m³).
func ClassifyPM10(v float64) Level { return classify(pm10Thresholds, v) }

// Classify buckets v for a pollutant metric; other metrics are Unknown.
func Classify(m dataset.Metric, v float64) Level {
	switch m {
	case dataset.PM25:
		return ClassifyPM25(v)
	case dataset.PM10:
		return ClassifyPM10(v)
	}
	return LevelUnknown
}

func classify(table []threshold, v float64) Level {
	if math.IsNaN(v) {
		return LevelUnknown
	}
	for _, t := range table {
		if v <= t.max {
			return t.level
		}
	}
	return LevelExtreme
}
