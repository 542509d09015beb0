package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strconv"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/KaramelBytes/airlens-cli/internal/analysis"
	"github.com/KaramelBytes/airlens-cli/internal/dataset"
)

var (
	white       = rgb(255, 255, 255)
	ink         = rgb(33, 33, 33)
	missingCell = rgb(232, 232, 232)

	// ylOrRd is the yellow-orange-red ramp for concentration grids.
	ylOrRd = []color.RGBA{
		rgb(255, 255, 204), rgb(255, 237, 160), rgb(254, 217, 118),
		rgb(254, 178, 76), rgb(253, 141, 60), rgb(252, 78, 42),
		rgb(227, 26, 28), rgb(189, 0, 38), rgb(128, 0, 38),
	}
	// coolwarm maps -1..1 from blue through gray to red.
	coolwarm = []color.RGBA{
		rgb(59, 76, 192), rgb(141, 176, 254), rgb(221, 221, 221),
		rgb(244, 154, 123), rgb(180, 4, 38),
	}

	errCanvasTooSmall = errors.New("canvas too small for grid")
)

var face = basicfont.Face7x13

// Heatmap draws the weekday × hour grid of PM2.5 means, falling back to PM10
// when the file has no PM2.5 column.
func Heatmap(c *Context, ds *dataset.Dataset) (Artifact, error) {
	m := dataset.PM25
	if !ds.Mapping.Available(m) {
		m = dataset.PM10
	}
	return HeatmapGrid(c, analysis.BuildHeatmap(ds, m))
}

// HeatmapGrid renders an already built heatmap.
func HeatmapGrid(c *Context, hm analysis.Heatmap) (Artifact, error) {
	worst, ok := hm.Worst()
	if !ok {
		return Artifact{}, &RenderError{Kind: KindHeatmap, Err: errNoValues}
	}
	best, _ := hm.Best()
	w, h := c.size()
	const left, top, right, bottom = 90, 44, 110, 52
	cw, ch := (w-left-right)/24, (h-top-bottom)/7
	if cw < 2 || ch < 2 {
		return Artifact{}, &RenderError{Kind: KindHeatmap, Err: errCanvasTooSmall}
	}
	img := canvas(w, h)
	lo, hi := hm.Range()
	drawText(img, fmt.Sprintf("%s Levels by Day of Week and Hour", hm.Metric.Label()), w/2, 24, 0, ink)
	for d := 0; d < 7; d++ {
		y0 := top + d*ch
		drawText(img, analysis.Weekdays[d], left-8, y0+ch/2+5, 1, ink)
		for hr := 0; hr < 24; hr++ {
			x0 := left + hr*cw
			col := missingCell
			if hm.Has(d, hr) {
				col = ramp(ylOrRd, normalize(hm.Cells[d][hr], lo, hi))
			}
			fill(img, image.Rect(x0, y0, x0+cw-1, y0+ch-1), col)
		}
	}
	gridBottom := top + 7*ch
	for hr := 0; hr < 24; hr++ {
		drawText(img, strconv.Itoa(hr), left+hr*cw+cw/2, gridBottom+16, 0, ink)
	}
	drawText(img, "Hour of Day (24h)", left+12*cw, gridBottom+38, 0, ink)
	colorBar(img, ylOrRd, left+24*cw+24, top, gridBottom, formatTick(lo), formatTick(hi))
	drawText(img, hm.Metric.Unit(), left+24*cw+24, top-10, -1, ink)

	desc := fmt.Sprintf("Heatmap showing %s concentration patterns by day of week and hour. "+
		"Air quality tends to be worst on %ss at %d:00 hours. "+
		"The best air quality typically occurs on %ss at %d:00 hours.",
		hm.Metric.Label(), worst.DayName(), worst.Hour, best.DayName(), best.Hour)
	return c.save(KindHeatmap, img, desc)
}

// CorrelationMatrix draws the annotated pairwise correlation matrix.
func CorrelationMatrix(c *Context, ds *dataset.Dataset) (Artifact, error) {
	cm := analysis.CorrelationMatrix(ds)
	n := len(cm.Metrics)
	if n < 2 {
		return Artifact{}, &RenderError{Kind: KindMatrix, Err: errors.New("need at least two metrics")}
	}
	w, h := c.size()
	const left, top = 110, 50
	size := min(w-left-140, h-top-60) / n
	if size < 16 {
		return Artifact{}, &RenderError{Kind: KindMatrix, Err: errCanvasTooSmall}
	}
	img := canvas(w, h)
	drawText(img, "Correlation Matrix", w/2, 24, 0, ink)
	si, sj, strongest := 0, 1, -1.0
	for i := 0; i < n; i++ {
		drawText(img, cm.Metrics[i].Label(), left-8, top+i*size+size/2+5, 1, ink)
		drawText(img, cm.Metrics[i].Label(), left+i*size+size/2, top+n*size+18, 0, ink)
		for j := 0; j < n; j++ {
			v := cm.Values[i][j]
			x0, y0 := left+j*size, top+i*size
			fill(img, image.Rect(x0, y0, x0+size-1, y0+size-1), ramp(coolwarm, (v+1)/2))
			txt := ink
			if math.Abs(v) > 0.6 {
				txt = white
			}
			drawText(img, fmt.Sprintf("%.2f", v), x0+size/2, y0+size/2+5, 0, txt)
			if j > i && math.Abs(v) > strongest {
				si, sj, strongest = i, j, math.Abs(v)
			}
		}
	}
	colorBar(img, coolwarm, left+n*size+24, top, top+n*size, "-1", "1")

	r := cm.Values[si][sj]
	desc := fmt.Sprintf("Correlation matrix of %d metrics. Strongest relationship: %s and %s (r=%.3f, %s).",
		n, cm.Metrics[si].Label(), cm.Metrics[sj].Label(), r, analysis.Relationship(r))
	return c.save(KindMatrix, img, desc)
}

// ErrorImage writes a text-only placeholder reading "Error: msg".
func ErrorImage(c *Context, msg string) (Artifact, error) {
	text := "Error: " + msg
	return c.save(KindError, textPanel(800, 600, "", text), text)
}

// textPanel is a white canvas with an optional title and a wrapped,
// vertically centered message.
func textPanel(w, h int, title, body string) *image.RGBA {
	img := canvas(w, h)
	if title != "" {
		drawText(img, title, w/2, 24, 0, ink)
	}
	lines := wrap(body, w-80)
	const lineHeight = 18
	y := h/2 - (len(lines)-1)*lineHeight/2
	for _, ln := range lines {
		drawText(img, ln, w/2, y, 0, ink)
		y += lineHeight
	}
	return img
}

// compose tiles panels left to right, top to bottom, cols per row.
func compose(panels []image.Image, cols int) image.Image {
	if len(panels) == 1 {
		return panels[0]
	}
	cols = max(cols, 1)
	var cw, ch int
	for _, p := range panels {
		b := p.Bounds()
		cw, ch = max(cw, b.Dx()), max(ch, b.Dy())
	}
	rows := (len(panels) + cols - 1) / cols
	out := canvas(cw*cols, ch*rows)
	for i, p := range panels {
		b := p.Bounds()
		at := image.Pt((i%cols)*cw, (i/cols)*ch)
		draw.Draw(out, image.Rectangle{Min: at, Max: at.Add(b.Size())}, p, b.Min, draw.Over)
	}
	return out
}

func colorBar(img *image.RGBA, stops []color.RGBA, x, top, bottom int, loLabel, hiLabel string) {
	height := max(bottom-top, 1)
	for y := 0; y < height; y++ {
		t := 1 - float64(y)/float64(max(height-1, 1))
		fill(img, image.Rect(x, top+y, x+18, top+y+1), ramp(stops, t))
	}
	drawText(img, hiLabel, x+24, top+10, -1, ink)
	drawText(img, loLabel, x+24, bottom, -1, ink)
}

func rgb(r, g, b uint8) color.RGBA { return color.RGBA{R: r, G: g, B: b, A: 255} }

func canvas(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(white), image.Point{}, draw.Src)
	return img
}

func fill(img *image.RGBA, r image.Rectangle, c color.Color) {
	draw.Draw(img, r, image.NewUniform(c), image.Point{}, draw.Src)
}

func normalize(v, lo, hi float64) float64 {
	if hi <= lo {
		return 0.5
	}
	return (v - lo) / (hi - lo)
}

// ramp interpolates linearly between evenly spaced color stops; t in [0,1].
func ramp(stops []color.RGBA, t float64) color.RGBA {
	if math.IsNaN(t) || t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	pos := t * float64(len(stops)-1)
	i := int(pos)
	if i >= len(stops)-1 {
		return stops[len(stops)-1]
	}
	f := pos - float64(i)
	a, b := stops[i], stops[i+1]
	mix := func(x, y uint8) uint8 { return uint8(math.Round(float64(x) + f*(float64(y)-float64(x)))) }
	return color.RGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: 255}
}

// drawText draws s with its baseline at y. align -1 puts x at the left edge,
// 0 centers on x, 1 puts x at the right edge.
func drawText(img *image.RGBA, s string, x, y, align int, c color.Color) {
	s = bitmapSafe(s)
	switch align {
	case 0:
		x -= textWidth(s) / 2
	case 1:
		x -= textWidth(s)
	}
	d := &font.Drawer{Dst: img, Src: image.NewUniform(c), Face: face, Dot: fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)}}
	d.DrawString(s)
}

func textWidth(s string) int { return font.MeasureString(face, s).Ceil() }

// bitmapSafe maps runes outside Latin-1, which the 7x13 face lacks.
func bitmapSafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == 'μ':
			return 'u'
		case r > 0xff:
			return '?'
		}
		return r
	}, s)
}

// wrap greedily breaks text into lines no wider than width pixels.
func wrap(text string, width int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	var lines []string
	cur := words[0]
	for _, w := range words[1:] {
		if textWidth(bitmapSafe(cur+" "+w)) > width {
			lines = append(lines, cur)
			cur = w
			continue
		}
		cur += " " + w
	}
	return append(lines, cur)
}
