package dsp

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/integrate"
)

// Trim returns the part of the spectrum with lo <= f <= hi.
func Trim(freqs, values []float64, lo, hi float64) (f, v []float64) {
	for i, fr := range freqs {
		if fr >= lo && fr <= hi {
			f = append(f, fr)
			v = append(v, values[i])
		}
	}
	return f, v
}

// Integrate approximates the area under values sampled at x using Simpson's
// rule, falling back to the trapezoid rule for two points.
func Integrate(x, values []float64) float64 {
	switch {
	case len(x) >= 3:
		return integrate.Simpsons(x, values)
	case len(x) == 2:
		return integrate.Trapezoidal(x, values)
	}
	return 0
}

// Percentile uses linear interpolation between closest ranks, so Percentile(x, 50)
// of an even-length sample averages the two middle values.
func Percentile(x []float64, p float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	s := append([]float64(nil), x...)
	sort.Float64s(s)
	pos := p / 100 * float64(len(s)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return s[lo]
	}
	return s[lo] + (s[hi]-s[lo])*(pos-float64(lo))
}

func Median(x []float64) float64 {
	return Percentile(x, 50)
}
