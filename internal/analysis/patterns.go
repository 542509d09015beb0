package analysis

import (
	"encoding/json"
	"math"
	"time"

	"github.com/KaramelBytes/airlens-cli/internal/dataset"
)

// Weekdays names the day-of-week buckets, Monday first.
var Weekdays = [7]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// WeekdayIndex maps t to 0 (Monday) .. 6 (Sunday) using t's own clock.
func WeekdayIndex(t time.Time) int { return (int(t.Weekday()) + 6) % 7 }

type PatternKind string

const (
	HourOfDay PatternKind = "hour"
	DayOfWeek PatternKind = "day"
)

// Bucket holds per-metric means for one hour or weekday.
type Bucket struct {
	Key   int
	Count int
	Means [dataset.NumMetrics]float64
	Has   [dataset.NumMetrics]bool
}

// Mean returns the bucket mean of m.
func (b Bucket) Mean(m dataset.Metric) (float64, bool) { return b.Means[m], b.Has[m] }

// PatternTable is an ordered list of non-empty buckets.
type PatternTable struct {
	Kind    PatternKind
	Metrics []dataset.Metric
	Buckets []Bucket
}

// HourlyPattern groups readings by hour of day (0..23).
func HourlyPattern(ds *dataset.Dataset) PatternTable {
	return groupBy(ds, HourOfDay, 24, func(t time.Time) int { return t.Hour() })
}

// DailyPattern groups readings by weekday (Monday=0).
func DailyPattern(ds *dataset.Dataset) PatternTable {
	return groupBy(ds, DayOfWeek, 7, WeekdayIndex)
}

func groupBy(ds *dataset.Dataset, kind PatternKind, size int, key func(time.Time) int) PatternTable {
	metrics := ds.Mapping.AvailableMetrics()
	acc := make([][dataset.NumMetrics]Moments, size)
	counts := make([]int, size)
	for _, r := range ds.Readings {
		k := key(r.Time)
		counts[k]++
		for _, m := range metrics {
			if r.Present[m] {
				acc[k][m].Add(r.Values[m])
			}
		}
	}
	pt := PatternTable{Kind: kind, Metrics: metrics}
	for k := 0; k < size; k++ {
		if counts[k] == 0 {
			continue
		}
		b := Bucket{Key: k, Count: counts[k]}
		for _, m := range metrics {
			if acc[k][m].N > 0 {
				b.Means[m] = acc[k][m].Mean()
				b.Has[m] = true
			}
		}
		pt.Buckets = append(pt.Buckets, b)
	}
	return pt
}

// Peak returns the bucket with the highest mean of m; ties keep the first.
func (p PatternTable) Peak(m dataset.Metric) (Bucket, bool) {
	return p.extreme(m, func(a, b float64) bool { return a > b })
}

// Trough returns the bucket with the lowest mean of m; ties keep the first.
func (p PatternTable) Trough(m dataset.Metric) (Bucket, bool) {
	return p.extreme(m, func(a, b float64) bool { return a < b })
}

func (p PatternTable) extreme(m dataset.Metric, better func(a, b float64) bool) (Bucket, bool) {
	var best Bucket
	found := false
	for _, b := range p.Buckets {
		if !b.Has[m] {
			continue
		}
		if !found || better(b.Means[m], best.Means[m]) {
			best, found = b, true
		}
	}
	return best, found
}

// KeyLabel renders a bucket key as an hour number or weekday name.
func (p PatternTable) KeyLabel(k int) any {
	if p.Kind == DayOfWeek {
		return Weekdays[k]
	}
	return k
}

// MarshalJSON emits aligned lists: {"hours": [...], "pm25": [...], ...}.
func (p PatternTable) MarshalJSON() ([]byte, error) {
	keyName := "hours"
	if p.Kind == DayOfWeek {
		keyName = "days"
	}
	keys := make([]any, 0, len(p.Buckets))
	series := make(map[string][]*float64, len(p.Metrics))
	for _, b := range p.Buckets {
		keys = append(keys, p.KeyLabel(b.Key))
		for _, m := range p.Metrics {
			var v *float64
			if b.Has[m] {
				v = finite(round(b.Means[m], 2))
			}
			series[m.String()] = append(series[m.String()], v)
		}
	}
	out := map[string]any{keyName: keys}
	for k, v := range series {
		out[k] = v
	}
	return json.Marshal(out)
}

// Slot is one (weekday, hour) cell of a Heatmap.
type Slot struct {
	Day   int
	Hour  int
	Value float64
}

func (s Slot) DayName() string { return Weekdays[s.Day] }

func (s Slot) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"day": s.DayName(), "hour": s.Hour, "value": round(s.Value, 2)})
}

// Heatmap is a weekday × hour grid of one metric's means.
type Heatmap struct {
	Metric dataset.Metric
	Cells  [7][24]float64
	Counts [7][24]int
}

// BuildHeatmap averages m into (weekday, hour) cells.
func BuildHeatmap(ds *dataset.Dataset, m dataset.Metric) Heatmap {
	h := Heatmap{Metric: m}
	var acc [7][24]Moments
	for _, r := range ds.Readings {
		if !r.Present[m] {
			continue
		}
		acc[WeekdayIndex(r.Time)][r.Time.Hour()].Add(r.Values[m])
	}
	for d := range acc {
		for hr := range acc[d] {
			if acc[d][hr].N > 0 {
				h.Cells[d][hr] = acc[d][hr].Mean()
				h.Counts[d][hr] = int(acc[d][hr].N)
			}
		}
	}
	return h
}

// Has reports whether the cell holds at least one value.
func (h Heatmap) Has(day, hour int) bool { return h.Counts[day][hour] > 0 }

// Empty reports whether no cell holds a value.
func (h Heatmap) Empty() bool {
	_, ok := h.Best()
	return !ok
}

// Range returns the smallest and largest cell means.
func (h Heatmap) Range() (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for d := 0; d < 7; d++ {
		for hr := 0; hr < 24; hr++ {
			if h.Has(d, hr) {
				lo = math.Min(lo, h.Cells[d][hr])
				hi = math.Max(hi, h.Cells[d][hr])
			}
		}
	}
	return lo, hi
}

// Best returns the lowest cell in row-major order (first occurrence wins).
func (h Heatmap) Best() (Slot, bool) {
	return h.scan(func(a, b float64) bool { return a < b })
}

// Worst returns the highest cell in row-major order (first occurrence wins).
func (h Heatmap) Worst() (Slot, bool) {
	return h.scan(func(a, b float64) bool { return a > b })
}

func (h Heatmap) scan(better func(a, b float64) bool) (Slot, bool) {
	var s Slot
	found := false
	for d := 0; d < 7; d++ {
		for hr := 0; hr < 24; hr++ {
			if !h.Has(d, hr) {
				continue
			}
			v := h.Cells[d][hr]
			if !found || better(v, s.Value) {
				s, found = Slot{Day: d, Hour: hr, Value: v}, true
			}
		}
	}
	return s, found
}

// MarshalJSON emits only populated cells plus the best and worst slots.
func (h Heatmap) MarshalJSON() ([]byte, error) {
	cells := make([]Slot, 0, 7*24)
	for d := 0; d < 7; d++ {
		for hr := 0; hr < 24; hr++ {
			if h.Has(d, hr) {
				cells = append(cells, Slot{Day: d, Hour: hr, Value: h.Cells[d][hr]})
			}
		}
	}
	out := map[string]any{"metric": h.Metric.String(), "cells": cells}
	if s, ok := h.Best(); ok {
		out["best"] = s
	}
	if s, ok := h.Worst(); ok {
		out["worst"] = s
	}
	return json.Marshal(out)
}
