package render

import (
	"fmt"
	"image"
	"math"
	"strconv"
	"strings"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/KaramelBytes/airlens-cli/internal/analysis"
	"github.com/KaramelBytes/airlens-cli/internal/dataset"
)

// maxPlotPoints bounds the vertices handed to go-chart per series.
const maxPlotPoints = 4000

const concentrationAxis = "Concentration (μg/m³)"

var pollutants = []dataset.Metric{dataset.PM25, dataset.PM10}

// environment pairs each environmental factor with the wording used in
// correlation descriptions.
var environment = []struct {
	metric    dataset.Metric
	key       string
	condition string
}{
	{dataset.Temperature, "pm25_temp", "warmer"},
	{dataset.Humidity, "pm25_humidity", "humid"},
}

func metricColor(m dataset.Metric) drawing.Color {
	switch m {
	case dataset.PM25:
		return colorPM25
	case dataset.PM10:
		return colorPM10
	case dataset.Temperature:
		return chart.ColorOrange
	default:
		return colorScatter
	}
}

func axisLabel(m dataset.Metric) string { return fmt.Sprintf("%s (%s)", m.Label(), m.Unit()) }

// TimeSeries plots PM2.5 and PM10 over time against the WHO guideline levels.
func TimeSeries(c *Context, ds *dataset.Dataset) (Artifact, error) {
	first, last, ok := ds.Span()
	if !ok {
		return Artifact{}, &RenderError{Kind: KindTimeSeries, Err: errNoValues}
	}
	end := last
	if !end.After(first) {
		end = first.Add(time.Hour)
	}
	var series []chart.Series
	var all []float64
	for _, m := range pollutants {
		ts, ys := timeValues(ds, m)
		if len(ts) == 0 {
			continue
		}
		ts, ys = padSingle(downsampleTimes(ts, ys, maxPlotPoints))
		all = append(all, ys...)
		series = append(series, chart.TimeSeries{Name: m.Label(), XValues: ts, YValues: ys, Style: lineStyle(metricColor(m), 1.5)})
	}
	if len(series) == 0 {
		return Artifact{}, &RenderError{Kind: KindTimeSeries, Err: errNoValues}
	}
	for _, g := range []struct {
		m     dataset.Metric
		level float64
	}{{dataset.PM25, 10}, {dataset.PM10, 20}} {
		st := lineStyle(metricColor(g.m), 1)
		st.StrokeDashArray = guideDash
		series = append(series, chart.TimeSeries{
			Name:    fmt.Sprintf("WHO %s guideline (%g %s)", g.m.Label(), g.level, g.m.Unit()),
			XValues: []time.Time{first, end},
			YValues: []float64{g.level, g.level},
			Style:   st,
		})
		all = append(all, g.level)
	}
	layout := "01-02 15:04"
	if last.Sub(first) > 30*24*time.Hour {
		layout = "2006-01-02"
	}
	w, h := c.size()
	ch := chart.Chart{
		Title:      "Air Quality Measurements Over Time",
		Width:      w,
		Height:     h,
		Background: padding(48),
		XAxis: chart.XAxis{
			Name:           "Date",
			ValueFormatter: chart.TimeValueFormatterWithFormat(layout),
			Range: &chart.ContinuousRange{
				Min: chart.TimeToFloat64(first),
				Max: chart.TimeToFloat64(end),
			},
		},
		YAxis:  yAxis(concentrationAxis, axisRange(all, true)),
		Series: series,
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}
	img, err := rasterize(ch)
	if err != nil {
		return Artifact{}, &RenderError{Kind: KindTimeSeries, Err: err}
	}
	return c.save(KindTimeSeries, img, timeSeriesDescription(ds, first, last))
}

func timeSeriesDescription(ds *dataset.Dataset, first, last time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Time series analysis of air quality data from %s to %s. ",
		first.Format("2006-01-02"), last.Format("2006-01-02"))
	var avgs []string
	level := analysis.LevelUnknown
	for _, m := range pollutants {
		s := analysis.Describe(ds.Values(m))
		if !s.Available() {
			continue
		}
		avgs = append(avgs, fmt.Sprintf("Average %s: %.2f %s", m.Label(), s.Mean, m.Unit()))
		if m == dataset.PM25 {
			level = analysis.ClassifyPM25(s.Mean)
		}
	}
	if len(avgs) > 0 {
		b.WriteString(strings.Join(avgs, ", ") + ". ")
	}
	fmt.Fprintf(&b, "Overall air quality based on PM2.5: %s.", level.Label)
	return b.String()
}

// DailyPattern draws PM2.5 hourly means as bars and PM10 as a line.
func DailyPattern(c *Context, ds *dataset.Dataset) (Artifact, error) {
	p := analysis.HourlyPattern(ds)
	var series []chart.Series
	var all []float64
	if xs, ys := bucketValues(p, dataset.PM25); len(xs) > 0 {
		bx, by := barOutline(xs, ys, 0.35)
		series = append(series, chart.ContinuousSeries{
			Name:    dataset.PM25.Label(),
			XValues: bx,
			YValues: by,
			Style:   chart.Style{StrokeColor: colorPM25, StrokeWidth: 1, FillColor: colorPM25.WithAlpha(180)},
		})
		all = append(all, ys...)
	}
	if xs, ys := bucketValues(p, dataset.PM10); len(xs) > 0 {
		st := lineStyle(colorPM10, 2.5)
		st.DotWidth, st.DotColor = 4, colorPM10
		series = append(series, chart.ContinuousSeries{Name: dataset.PM10.Label(), XValues: xs, YValues: ys, Style: st})
		all = append(all, ys...)
	}
	if len(series) == 0 {
		return Artifact{}, &RenderError{Kind: KindDailyPattern, Err: errNoValues}
	}
	ticks := make([]chart.Tick, 0, 24)
	for hr := 0; hr < 24; hr++ {
		ticks = append(ticks, chart.Tick{Value: float64(hr), Label: strconv.Itoa(hr)})
	}
	w, h := c.size()
	ch := chart.Chart{
		Title:      "Average Air Quality by Hour of Day",
		Width:      w,
		Height:     h,
		Background: padding(32),
		XAxis:      chart.XAxis{Name: "Hour of Day (24h)", Range: &chart.ContinuousRange{Min: -0.5, Max: 23.5}, Ticks: ticks},
		YAxis:      yAxis(concentrationAxis, axisRange(all, true)),
		Series:     series,
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}
	img, err := rasterize(ch)
	if err != nil {
		return Artifact{}, &RenderError{Kind: KindDailyPattern, Err: err}
	}
	return c.save(KindDailyPattern, img, dailyPatternDescription(p))
}

func dailyPatternDescription(p analysis.PatternTable) string {
	type extremes struct {
		label     string
		peak, low int
	}
	var found []extremes
	for _, m := range pollutants {
		peak, ok := p.Peak(m)
		if !ok {
			continue
		}
		low, _ := p.Trough(m)
		found = append(found, extremes{m.Label(), peak.Key, low.Key})
	}
	var b strings.Builder
	b.WriteString("Daily pattern analysis showing air quality variations throughout the day. ")
	switch len(found) {
	case 2:
		fmt.Fprintf(&b, "Peak %s levels occur at %02d:00 hours, while %s peaks at %02d:00 hours. ",
			found[0].label, found[0].peak, found[1].label, found[1].peak)
		fmt.Fprintf(&b, "The cleanest air quality is observed at %02d:00 hours (for %s) and %02d:00 hours (for %s).",
			found[0].low, found[0].label, found[1].low, found[1].label)
	case 1:
		fmt.Fprintf(&b, "Peak %s levels occur at %02d:00 hours. ", found[0].label, found[0].peak)
		fmt.Fprintf(&b, "The cleanest air quality is observed at %02d:00 hours (for %s).", found[0].low, found[0].label)
	}
	return strings.TrimSpace(b.String())
}

// Correlation plots PM2.5 against temperature and humidity with a least
// squares fit per panel.
func Correlation(c *Context, ds *dataset.Dataset) (Artifact, error) {
	w, h := c.size()
	cs := analysis.Correlations(ds)
	var panels []image.Image
	var sentences []string
	for _, f := range environment {
		xs, ys := ds.Pairs(f.metric, dataset.PM25)
		if len(xs) == 0 {
			continue
		}
		corr, _ := cs.Get(f.key)
		p := scatterPanel{
			title: fmt.Sprintf("PM2.5 vs. %s (Correlation: %.2f)", f.metric.Label(), corr.Raw),
			xName: axisLabel(f.metric),
			yName: axisLabel(dataset.PM25),
			xs:    xs,
			ys:    ys,
		}
		if fit, ok := analysis.FitLine(ds, f.metric, dataset.PM25); ok {
			p.fit = &fit
		}
		img, err := p.render(w/2, h)
		if err != nil {
			return Artifact{}, &RenderError{Kind: KindCorrelation, Err: err}
		}
		panels = append(panels, img)
		sentences = append(sentences, factorSentence(corr.Raw, strings.ToLower(f.metric.Label()), f.condition))
	}
	if len(panels) == 0 {
		return Artifact{}, &RenderError{Kind: KindCorrelation, Err: errNoEnvirons}
	}
	desc := "Correlation analysis between air quality (PM2.5) and environmental factors. " + strings.Join(sentences, " ")
	return c.save(KindCorrelation, compose(panels, len(panels)), desc)
}

func factorSentence(r float64, factor, condition string) string {
	switch {
	case r > 0.5:
		return fmt.Sprintf("Strong positive correlation with %s, suggesting PM2.5 levels increase in %s conditions.", factor, condition)
	case r > 0.2:
		return fmt.Sprintf("Moderate positive correlation with %s.", factor)
	case r > -0.2:
		return fmt.Sprintf("Weak or no correlation with %s.", factor)
	case r > -0.5:
		return fmt.Sprintf("Moderate negative correlation with %s, suggesting PM2.5 levels decrease in %s conditions.", factor, condition)
	default:
		return fmt.Sprintf("Strong negative correlation with %s, suggesting PM2.5 levels significantly decrease in %s conditions.", factor, condition)
	}
}

// CorrelationTrend draws the streaming correlation result. Without raw
// points each panel shows the implied regression line through the means.
func CorrelationTrend(c *Context, sr *analysis.StreamResult) (Artifact, error) {
	w, h := c.size()
	if sr.NoData() {
		var panels []image.Image
		for _, f := range environment {
			panels = append(panels, textPanel(w/2, h, fmt.Sprintf("PM2.5 vs %s", f.metric.Label()), "No data available for the selected period"))
		}
		return c.save(KindCorrelation, compose(panels, len(panels)), "No data available for the selected period.")
	}
	cs := sr.Correlations()
	var panels []image.Image
	var parts []string
	for _, f := range environment {
		corr, ok := cs.Get(f.key)
		pm, _ := sr.Pair(f.key)
		title := fmt.Sprintf("PM2.5 vs %s (Correlation: %.3f)", f.metric.Label(), corr.R)
		if !ok || pm.N < 2 {
			panels = append(panels, textPanel(w/2, h, fmt.Sprintf("PM2.5 vs %s", f.metric.Label()), "Not enough paired readings"))
			continue
		}
		img, err := trendPanel(title, f.metric, pm, corr.Raw, w/2, h)
		if err != nil {
			return Artifact{}, &RenderError{Kind: KindCorrelation, Err: err}
		}
		panels = append(panels, img)
		parts = append(parts, fmt.Sprintf("%s correlation: %.3f - %s relationship.", f.metric.Label(), corr.R, analysis.Relationship(corr.R)))
	}
	desc := fmt.Sprintf("Correlation analysis of PM2.5 with environmental factors based on %s data points.", groupDigits(sr.Valid))
	if len(parts) > 0 {
		desc += " " + strings.Join(parts, " ")
	}
	return c.save(KindCorrelation, compose(panels, len(panels)), desc)
}

// trendPanel plots pm25 = mean25 + r·σ25/σf·(f - meanf) across two standard
// deviations of the factor. The pair accumulates (pm25, factor).
func trendPanel(title string, factor dataset.Metric, pm analysis.PairMoments, r float64, w, h int) (image.Image, error) {
	mx, my := pm.MeanY(), pm.MeanX()
	sx, sy := pm.StdY(), pm.StdX()
	slope := 0.0
	if sx > 0 {
		slope = r * sy / sx
	}
	spread := 2 * sx
	if spread == 0 {
		spread = 1
	}
	xs := []float64{mx - spread, mx + spread}
	ys := []float64{my - slope*spread, my + slope*spread}
	ch := chart.Chart{
		Title:      title,
		Width:      w,
		Height:     h,
		Background: padding(32),
		XAxis:      xAxis(axisLabel(factor), axisRange(xs, false)),
		YAxis:      yAxis(axisLabel(dataset.PM25), axisRange(append(ys, my), false)),
		Series: []chart.Series{
			chart.ContinuousSeries{Name: "trend", XValues: xs, YValues: ys, Style: lineStyle(colorTrend, 2)},
			chart.ContinuousSeries{Name: "mean", XValues: []float64{mx}, YValues: []float64{my}, Style: chart.Style{StrokeWidth: chart.Disabled, DotWidth: 6, DotColor: colorScatter}},
		},
	}
	return rasterize(ch)
}

// Scatter plots both pollutants against both environmental factors.
func Scatter(c *Context, ds *dataset.Dataset) (Artifact, error) {
	w, h := c.size()
	cs := analysis.Correlations(ds)
	var panels []image.Image
	var parts []string
	for _, pair := range analysis.DeclaredPairs {
		if !pair.A.IsPollutant() || pair.B.IsPollutant() {
			continue
		}
		xs, ys := ds.Pairs(pair.B, pair.A)
		if len(xs) == 0 {
			continue
		}
		corr, _ := cs.Get(pair.Key)
		p := scatterPanel{
			title: fmt.Sprintf("%s vs %s (r = %.3f)", pair.A.Label(), pair.B.Label(), corr.R),
			xName: axisLabel(pair.B),
			yName: axisLabel(pair.A),
			xs:    xs,
			ys:    ys,
		}
		img, err := p.render(w/2, h/2)
		if err != nil {
			return Artifact{}, &RenderError{Kind: KindScatter, Err: err}
		}
		panels = append(panels, img)
		parts = append(parts, fmt.Sprintf("%s vs %s r=%.3f (%s)", pair.A.Label(), pair.B.Label(), corr.R, analysis.Relationship(corr.R)))
	}
	if len(panels) == 0 {
		return Artifact{}, &RenderError{Kind: KindScatter, Err: errNoEnvirons}
	}
	desc := "Scatter plots of particulate matter against environmental factors: " + strings.Join(parts, "; ") + "."
	return c.save(KindScatter, compose(panels, 2), desc)
}

type scatterPanel struct {
	title, xName, yName string
	xs, ys              []float64
	// fit, when set, is drawn instead of letting go-chart regress the
	// thinned points.
	fit *analysis.Regression
}

func (p scatterPanel) render(w, h int) (image.Image, error) {
	px, py := thin(p.xs, p.ys, maxPlotPoints)
	xr := axisRange(p.xs, false)
	yvals := p.ys
	series := []chart.Series{
		chart.ContinuousSeries{Name: "readings", XValues: px, YValues: py, Style: pointStyle(colorScatter)},
	}
	switch {
	case p.fit != nil:
		lx := []float64{xr.Min, xr.Max}
		ly := []float64{p.fit.Alpha + p.fit.Beta*xr.Min, p.fit.Alpha + p.fit.Beta*xr.Max}
		yvals = append(append([]float64(nil), p.ys...), ly...)
		series = append(series, chart.ContinuousSeries{Name: "linear fit", XValues: lx, YValues: ly, Style: lineStyle(colorTrend, 2)})
	case varies(px):
		series = append(series, &chart.LinearRegressionSeries{
			Name:        "linear fit",
			InnerSeries: chart.ContinuousSeries{XValues: px, YValues: py},
			Style:       lineStyle(colorTrend, 2),
		})
	}
	ch := chart.Chart{
		Title:      p.title,
		Width:      w,
		Height:     h,
		Background: padding(32),
		XAxis:      xAxis(p.xName, xr),
		YAxis:      yAxis(p.yName, axisRange(yvals, true)),
		Series:     series,
	}
	return rasterize(ch)
}

// Histograms draws the value distribution of every metric with data.
func Histograms(c *Context, ds *dataset.Dataset) (Artifact, error) {
	w, h := c.size()
	var panels []image.Image
	var parts []string
	for _, m := range dataset.Metrics {
		vals := ds.Values(m)
		if len(vals) == 0 {
			continue
		}
		img, err := histogramPanel(m, analysis.Histogram(vals, 12), w/2, h/2)
		if err != nil {
			return Artifact{}, &RenderError{Kind: KindHistogram, Err: err}
		}
		panels = append(panels, img)
		s := analysis.Describe(vals)
		parts = append(parts, fmt.Sprintf("%s mean %.2f %s (range %.2f to %.2f)", m.Label(), s.Mean, m.Unit(), s.Min, s.Max))
	}
	if len(panels) == 0 {
		return Artifact{}, &RenderError{Kind: KindHistogram, Err: errNoValues}
	}
	desc := fmt.Sprintf("Distribution of %d measured channels: %s.", len(panels), strings.Join(parts, "; "))
	return c.save(KindHistogram, compose(panels, 2), desc)
}

func histogramPanel(m dataset.Metric, bins []analysis.Bin, w, h int) (image.Image, error) {
	bars := make([]chart.Value, len(bins))
	peak := 0
	for i, b := range bins {
		bars[i] = chart.Value{
			Label: formatTick(b.Lo),
			Value: float64(b.Count),
			Style: chart.Style{FillColor: metricColor(m).WithAlpha(200), StrokeColor: metricColor(m), StrokeWidth: 1},
		}
		peak = max(peak, b.Count)
	}
	yr := axisRange([]float64{0, float64(peak)}, true)
	barWidth := max((w-120)/max(len(bins), 1)-6, 4)
	bc := chart.BarChart{
		Title:      fmt.Sprintf("%s distribution (%s)", m.Label(), m.Unit()),
		Width:      w,
		Height:     h,
		Background: padding(24),
		BarWidth:   barWidth,
		BarSpacing: 6,
		YAxis:      yAxis("Readings", yr),
		Bars:       bars,
	}
	return rasterize(bc)
}

// Trend smooths the primary pollutant with a trailing 24-reading mean.
func Trend(c *Context, ds *dataset.Dataset) (Artifact, error) {
	m := dataset.PM25
	ts, ys := timeValues(ds, m)
	if len(ts) == 0 {
		m = dataset.PM10
		ts, ys = timeValues(ds, m)
	}
	if len(ts) == 0 {
		return Artifact{}, &RenderError{Kind: KindTrend, Err: errNoValues}
	}
	window := min(24, len(ys))
	rolling := analysis.RollingMean(ys, window)
	rt, ry := ts[window-1:], rolling[window-1:]
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range ry {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	rawT, rawY := padSingle(downsampleTimes(ts, ys, maxPlotPoints))
	rt, ry = padSingle(downsampleTimes(rt, ry, maxPlotPoints))
	end := ts[len(ts)-1]
	if !end.After(ts[0]) {
		end = ts[0].Add(time.Hour)
	}
	w, h := c.size()
	ch := chart.Chart{
		Title:      fmt.Sprintf("%s Trend (rolling mean of %d readings)", m.Label(), window),
		Width:      w,
		Height:     h,
		Background: padding(48),
		XAxis: chart.XAxis{
			Name:           "Date",
			ValueFormatter: chart.TimeValueFormatterWithFormat("01-02 15:04"),
			Range:          &chart.ContinuousRange{Min: chart.TimeToFloat64(ts[0]), Max: chart.TimeToFloat64(end)},
		},
		YAxis: yAxis(axisLabel(m), axisRange(rawY, true)),
		Series: []chart.Series{
			chart.TimeSeries{Name: m.Label(), XValues: rawT, YValues: rawY, Style: lineStyle(colorGuide, 1)},
			chart.TimeSeries{Name: "rolling mean", XValues: rt, YValues: ry, Style: lineStyle(metricColor(m), 2.5)},
		},
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}
	img, err := rasterize(ch)
	if err != nil {
		return Artifact{}, &RenderError{Kind: KindTrend, Err: err}
	}
	desc := fmt.Sprintf("Rolling %d-reading mean of %s from %s to %s. The smoothed level ranges from %.2f to %.2f %s.",
		window, m.Label(), ts[0].Format("2006-01-02"), ts[len(ts)-1].Format("2006-01-02"), lo, hi, m.Unit())
	return c.save(KindTrend, img, desc)
}

func timeValues(ds *dataset.Dataset, m dataset.Metric) ([]time.Time, []float64) {
	var ts []time.Time
	var ys []float64
	for _, r := range ds.Readings {
		if v, ok := r.Value(m); ok {
			ts = append(ts, r.Time)
			ys = append(ys, v)
		}
	}
	return ts, ys
}

func bucketValues(p analysis.PatternTable, m dataset.Metric) (xs, ys []float64) {
	for _, b := range p.Buckets {
		if v, ok := b.Mean(m); ok {
			xs = append(xs, float64(b.Key))
			ys = append(ys, v)
		}
	}
	return xs, ys
}

// barOutline turns (x, y) points into a closed step outline that go-chart
// fills down to the axis, one rectangle per point.
func barOutline(xs, ys []float64, half float64) (bx, by []float64) {
	for i := range xs {
		bx = append(bx, xs[i]-half, xs[i]-half, xs[i]+half, xs[i]+half)
		by = append(by, 0, ys[i], ys[i], 0)
	}
	return bx, by
}

// downsampleTimes averages consecutive blocks so at most limit points remain.
func downsampleTimes(ts []time.Time, ys []float64, limit int) ([]time.Time, []float64) {
	if len(ys) <= limit {
		return ts, ys
	}
	step := (len(ys) + limit - 1) / limit
	outT := make([]time.Time, 0, limit)
	outY := make([]float64, 0, limit)
	for i := 0; i < len(ys); i += step {
		end := min(i+step, len(ys))
		var sum float64
		for _, v := range ys[i:end] {
			sum += v
		}
		outT = append(outT, ts[i])
		outY = append(outY, sum/float64(end-i))
	}
	return outT, outY
}

// padSingle duplicates a lone point one hour later so the series has extent.
func padSingle(ts []time.Time, ys []float64) ([]time.Time, []float64) {
	if len(ts) != 1 {
		return ts, ys
	}
	return []time.Time{ts[0], ts[0].Add(time.Hour)}, []float64{ys[0], ys[0]}
}

// thin keeps every k-th point so at most limit remain.
func thin(xs, ys []float64, limit int) ([]float64, []float64) {
	if len(xs) <= limit {
		return xs, ys
	}
	step := (len(xs) + limit - 1) / limit
	px := make([]float64, 0, limit)
	py := make([]float64, 0, limit)
	for i := 0; i < len(xs); i += step {
		px = append(px, xs[i])
		py = append(py, ys[i])
	}
	return px, py
}

func varies(xs []float64) bool {
	for _, x := range xs {
		if x != xs[0] {
			return true
		}
	}
	return false
}

var digits = message.NewPrinter(language.English)

// groupDigits formats n with thousands separators, e.g. 120,000.
func groupDigits(n int) string { return digits.Sprintf("%d", n) }
