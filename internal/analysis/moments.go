package analysis

import "math"

// Moments accumulates a series as sums of deviations from a shift (the first
// value seen). Keeping the sums small relative to the data avoids the
// cancellation of the textbook Σx² − (Σx)²/n form on large files.
type Moments struct {
	N     int64
	shift float64
	sum   float64
	sumSq float64
	min   float64
	max   float64
}

// Add folds one value into the accumulator.
func (m *Moments) Add(x float64) {
	if m.N == 0 {
		m.shift = x
		m.min, m.max = x, x
	}
	d := x - m.shift
	m.N++
	m.sum += d
	m.sumSq += d * d
	if x < m.min {
		m.min = x
	}
	if x > m.max {
		m.max = x
	}
}

// Merge folds o into m, re-basing o's sums onto m's shift.
func (m *Moments) Merge(o Moments) {
	if o.N == 0 {
		return
	}
	if m.N == 0 {
		*m = o
		return
	}
	n := float64(o.N)
	delta := o.shift - m.shift
	m.sumSq += o.sumSq + 2*delta*o.sum + n*delta*delta
	m.sum += o.sum + n*delta
	m.N += o.N
	if o.min < m.min {
		m.min = o.min
	}
	if o.max > m.max {
		m.max = o.max
	}
}

func (m Moments) Mean() float64 {
	if m.N == 0 {
		return math.NaN()
	}
	return m.shift + m.sum/float64(m.N)
}

// Variance is the sample variance; a single value has variance 0.
func (m Moments) Variance() float64 {
	if m.N < 2 {
		if m.N == 1 {
			return 0
		}
		return math.NaN()
	}
	n := float64(m.N)
	v := (m.sumSq - m.sum*m.sum/n) / (n - 1)
	if v < 0 {
		return 0
	}
	return v
}

func (m Moments) Std() float64 { return math.Sqrt(m.Variance()) }

func (m Moments) Min() float64 {
	if m.N == 0 {
		return math.NaN()
	}
	return m.min
}

func (m Moments) Max() float64 {
	if m.N == 0 {
		return math.NaN()
	}
	return m.max
}

// Summary converts the accumulator into a Summary. The median cannot be
// derived from running sums and is left NaN.
func (m Moments) Summary() Summary {
	if m.N == 0 {
		return Summary{}
	}
	return Summary{
		Count:  int(m.N),
		Mean:   m.Mean(),
		Median: math.NaN(),
		Min:    m.min,
		Max:    m.max,
		Std:    m.Std(),
	}
}

// PairMoments accumulates the shifted cross sums needed for Pearson's r.
type PairMoments struct {
	N             int64
	kx, ky        float64
	sx, sy        float64
	sxx, syy, sxy float64
}

// Add folds one complete (x, y) observation.
func (p *PairMoments) Add(x, y float64) {
	if p.N == 0 {
		p.kx, p.ky = x, y
	}
	dx, dy := x-p.kx, y-p.ky
	p.N++
	p.sx += dx
	p.sy += dy
	p.sxx += dx * dx
	p.syy += dy * dy
	p.sxy += dx * dy
}

// Merge folds o into p, re-basing o's sums onto p's shifts.
func (p *PairMoments) Merge(o PairMoments) {
	if o.N == 0 {
		return
	}
	if p.N == 0 {
		*p = o
		return
	}
	n := float64(o.N)
	ax, ay := o.kx-p.kx, o.ky-p.ky
	p.sxy += o.sxy + ay*o.sx + ax*o.sy + n*ax*ay
	p.sxx += o.sxx + 2*ax*o.sx + n*ax*ax
	p.syy += o.syy + 2*ay*o.sy + n*ay*ay
	p.sx += o.sx + n*ax
	p.sy += o.sy + n*ay
	p.N += o.N
}

// Pearson evaluates r on the shifted sums. Fewer than two observations or a
// non-positive denominator yields 0.
func (p PairMoments) Pearson() float64 {
	if p.N < 2 {
		return 0
	}
	n := float64(p.N)
	vx := n*p.sxx - p.sx*p.sx
	vy := n*p.syy - p.sy*p.sy
	if vx <= 0 || vy <= 0 {
		return 0
	}
	return clampCorr((n*p.sxy - p.sx*p.sy) / math.Sqrt(vx*vy))
}

// MeanX and MeanY return the means of the paired observations.
func (p PairMoments) MeanX() float64 {
	if p.N == 0 {
		return math.NaN()
	}
	return p.kx + p.sx/float64(p.N)
}

func (p PairMoments) MeanY() float64 {
	if p.N == 0 {
		return math.NaN()
	}
	return p.ky + p.sy/float64(p.N)
}

// StdX and StdY return the sample standard deviations of the paired observations.
func (p PairMoments) StdX() float64 { return pairStd(p.N, p.sx, p.sxx) }
func (p PairMoments) StdY() float64 { return pairStd(p.N, p.sy, p.syy) }

func pairStd(n int64, s, ss float64) float64 {
	if n < 2 {
		return 0
	}
	fn := float64(n)
	v := (ss - s*s/fn) / (fn - 1)
	if v < 0 {
		return 0
	}
	return math.Sqrt(v)
}

func clampCorr(r float64) float64 {
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	if r > 1 {
		return 1
	}
	if r < -1 {
		return -1
	}
	return r
}
