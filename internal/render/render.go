// Package render draws analysis results as PNG charts.
//
// Every chart function takes a *Context carrying the output directory, web
// prefix, canvas size and clock; there is no global plotting state. Files are
// written whole (temp file + rename) and named <kind>_<YYYYMMDDHHMMSS>.png.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"math"
	"path"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/KaramelBytes/airlens-cli/internal/utils"
)

const (
	DefaultWidth     = 1200
	DefaultHeight    = 600
	DefaultWebPrefix = "/images"
	// FallbackErrorPath is printed when even the error image cannot be written.
	FallbackErrorPath = "/images/error.png"
)

var (
	colorPM25     = drawing.ColorFromHex("4CAF50")
	colorPM10     = drawing.ColorFromHex("F44336")
	colorTrend    = chart.ColorRed
	colorScatter  = chart.ColorBlue
	colorGuide    = chart.ColorAlternateGray
	guideDash     = []float64{6, 4}
	errNoValues   = errors.New("no values to plot")
	errNoEnvirons = errors.New("temperature and humidity data not available for correlation analysis")
)

// Context carries everything a chart needs besides its data.
type Context struct {
	OutputDir string
	WebPrefix string
	Width     int
	Height    int
	Now       func() time.Time
	Logger    *slog.Logger
}

// NewContext returns a Context writing into dir with default sizing.
func NewContext(dir string, log *slog.Logger) *Context {
	return &Context{
		OutputDir: dir,
		WebPrefix: DefaultWebPrefix,
		Width:     DefaultWidth,
		Height:    DefaultHeight,
		Now:       time.Now,
		Logger:    log,
	}
}

// Artifact is a written chart.
type Artifact struct {
	Kind        Kind
	File        string
	WebPath     string
	Description string
}

// RenderError wraps a failure to draw or write a chart.
type RenderError struct {
	Kind Kind
	Err  error
}

func (e *RenderError) Error() string { return fmt.Sprintf("render %s: %v", e.Kind, e.Err) }
func (e *RenderError) Unwrap() error { return e.Err }

func (c *Context) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

func (c *Context) log() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c.Logger
}

func (c *Context) size() (int, int) {
	w, h := c.Width, c.Height
	if w <= 0 {
		w = DefaultWidth
	}
	if h <= 0 {
		h = DefaultHeight
	}
	return w, h
}

func (c *Context) webPath(name string) string {
	prefix := c.WebPrefix
	if prefix == "" {
		prefix = DefaultWebPrefix
	}
	return path.Join(prefix, name)
}

// save encodes img and writes it under a fresh name for kind.
func (c *Context) save(kind Kind, img image.Image, desc string) (Artifact, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Artifact{}, &RenderError{Kind: kind, Err: fmt.Errorf("encode png: %w", err)}
	}
	if err := utils.EnsureDir(c.OutputDir); err != nil {
		return Artifact{}, &RenderError{Kind: kind, Err: fmt.Errorf("create output dir: %w", err)}
	}
	name := utils.UniqueName(c.OutputDir, string(kind), ".png", c.now())
	file := filepath.Join(c.OutputDir, name)
	if err := utils.SafeWriteFile(file, buf.Bytes()); err != nil {
		return Artifact{}, &RenderError{Kind: kind, Err: err}
	}
	c.log().Debug("chart written", "kind", kind, "file", file, "bytes", buf.Len())
	return Artifact{Kind: kind, File: file, WebPath: c.webPath(name), Description: desc}, nil
}

type renderable interface {
	Render(rp chart.RendererProvider, w io.Writer) error
}

// rasterize renders a go-chart value. Panics inside the library become errors.
func rasterize(r renderable) (img image.Image, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("chart panicked: %v", p)
		}
	}()
	var buf bytes.Buffer
	if err := r.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return png.Decode(&buf)
}

// pointStyle renders points only, no connecting line.
func pointStyle(col drawing.Color) chart.Style {
	return chart.Style{
		StrokeWidth: chart.Disabled,
		DotWidth:    3,
		DotColor:    col.WithAlpha(140),
	}
}

func lineStyle(col drawing.Color, width float64) chart.Style {
	return chart.Style{StrokeColor: col, StrokeWidth: width}
}

func padding(bottom int) chart.Style {
	return chart.Style{Padding: chart.Box{Top: 14, Left: 16, Right: 12, Bottom: bottom}}
}

func niceAxisBounds(min, max float64) (float64, float64) {
	if math.IsNaN(min) || math.IsNaN(max) {
		return 0, 1
	}
	if max <= min {
		max = min + 1
	}
	span := max - min
	pad := span * 0.05
	a, b := min-pad, max+pad
	mag := math.Pow(10, math.Floor(math.Log10(span)))
	if !math.IsInf(mag, 0) && mag > 0 {
		a = math.Floor(a/mag) * mag
		b = math.Ceil(b/mag) * mag
	}
	return a, b
}

// niceTicks generates up to n tick marks between [min, max] on 1/2/2.5/5 steps.
func niceTicks(min, max float64, n int) []chart.Tick {
	if n < 2 || math.IsNaN(min) || math.IsNaN(max) {
		return nil
	}
	if max <= min {
		max = min + 1
	}
	mag := math.Pow(10, math.Floor(math.Log10((max-min)/float64(n-1))))
	best, bestScore := mag, math.MaxFloat64
	for _, c := range []float64{1, 2, 2.5, 5, 10} {
		step := c * mag
		count := math.Max(math.Ceil((max-min)/step), 2)
		if score := math.Abs(count - float64(n)); score < bestScore {
			best, bestScore = step, score
		}
	}
	var ticks []chart.Tick
	for v := math.Floor(min/best) * best; v <= math.Ceil(max/best)*best+best/2; v += best {
		ticks = append(ticks, chart.Tick{Value: v, Label: formatTick(v)})
		if len(ticks) > n+2 {
			break
		}
	}
	return ticks
}

func formatTick(v float64) string {
	av := math.Abs(v)
	switch {
	case v == 0:
		return "0"
	case av >= 100:
		return fmt.Sprintf("%.0f", v)
	case av >= 10:
		return fmt.Sprintf("%.1f", v)
	default:
		return fmt.Sprintf("%.2f", v)
	}
}

// axisRange returns a non-degenerate range spanning values, starting at zero
// when zeroBase is set and all values are non-negative.
func axisRange(values []float64, zeroBase bool) *chart.ContinuousRange {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	if math.IsInf(lo, 0) {
		return &chart.ContinuousRange{Min: 0, Max: 1}
	}
	if zeroBase && lo >= 0 {
		_, b := niceAxisBounds(0, hi)
		return &chart.ContinuousRange{Min: 0, Max: b}
	}
	a, b := niceAxisBounds(lo, hi)
	return &chart.ContinuousRange{Min: a, Max: b}
}

func yAxis(name string, r *chart.ContinuousRange) chart.YAxis {
	return chart.YAxis{Name: name, Range: r, Ticks: clipTicks(niceTicks(r.Min, r.Max, 6), r)}
}

func xAxis(name string, r *chart.ContinuousRange) chart.XAxis {
	return chart.XAxis{Name: name, Range: r, Ticks: clipTicks(niceTicks(r.Min, r.Max, 8), r)}
}

func clipTicks(ticks []chart.Tick, r *chart.ContinuousRange) []chart.Tick {
	eps := (r.Max - r.Min) * 1e-9
	out := ticks[:0]
	for _, t := range ticks {
		if t.Value >= r.Min-eps && t.Value <= r.Max+eps {
			out = append(out, t)
		}
	}
	return out
}
