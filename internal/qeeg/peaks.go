package qeeg

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/tedpearson/cerebro/internal/dsp"
	"github.com/tedpearson/cerebro/internal/params"
)

// Peak is a periodic component found above the aperiodic (1/f) background.
// Power is the height above the background in log10 units and Bandwidth is
// twice the gaussian standard deviation.
type Peak struct {
	Channel   string  `json:"channel"`
	Freq      float64 `json:"freq"`
	Power     float64 `json:"power"`
	Bandwidth float64 `json:"bandwidth"`
	QFactor   float64 `json:"q_factor"`
}

type PeakOptions struct {
	Range        params.Band
	MaxPeaks     int
	Threshold    float64 // relative to the std of the flattened spectrum
	MinWidth     float64
	MaxWidth     float64
	EdgeStd      float64
	APPercentile float64
}

func DefaultPeakOptions() PeakOptions {
	return PeakOptions{
		Range:        params.AlphaBand,
		MaxPeaks:     6,
		Threshold:    2,
		MinWidth:     0.5,
		MaxWidth:     12,
		EdgeStd:      1,
		APPercentile: 0.025,
	}
}

// DetectPeaks fits the aperiodic background of each 10-20 channel within the
// configured range and extracts gaussian peaks from what remains.
func DetectPeaks(s *Spectrum, o PeakOptions) ([]Peak, error) {
	if s == nil {
		return nil, ErrNoSpectrum
	}
	var out []Peak
	for _, ch := range present(s) {
		psd, _ := s.Channel(ch)
		freqs, power := dsp.Trim(s.Freqs, psd, o.Range.Low, o.Range.High)
		for _, p := range fitPeaks(freqs, power, o) {
			p.Channel = ch
			out = append(out, p)
		}
	}
	return out, nil
}

type gaussian struct {
	center, height, std float64
}

func (g gaussian) at(f float64) float64 {
	d := f - g.center
	return g.height * math.Exp(-d*d/(2*g.std*g.std))
}

func fitPeaks(freqs, power []float64, o PeakOptions) []Peak {
	if len(freqs) < 3 {
		return nil
	}
	logF := make([]float64, len(freqs))
	logP := make([]float64, len(power))
	for i := range freqs {
		if freqs[i] <= 0 || power[i] <= 0 {
			return nil
		}
		logF[i] = math.Log10(freqs[i])
		logP[i] = math.Log10(power[i])
	}
	aperiodic := fitAperiodic(logF, logP, o.APPercentile)

	flat := make([]float64, len(logP))
	floats.SubTo(flat, logP, aperiodic)
	guesses := peakGuesses(freqs, flat, o)

	out := make([]Peak, 0, len(guesses))
	for _, g := range guesses {
		idx := nearest(freqs, g.center)
		var height float64
		for _, other := range guesses {
			height += other.at(freqs[idx])
		}
		bw := 2 * g.std
		out = append(out, Peak{
			Freq:      g.center,
			Power:     height,
			Bandwidth: bw,
			QFactor:   height / bw,
		})
	}
	return out
}

// fitAperiodic fits logP = b - chi*logF, then refits on the points lying
// closest to or below the first fit so peaks do not pull the background up.
func fitAperiodic(logF, logP []float64, percentile float64) []float64 {
	b, slope := stat.LinearRegression(logF, logP, nil, false)
	flat := make([]float64, len(logP))
	for i := range logP {
		flat[i] = math.Max(logP[i]-(b+slope*logF[i]), 0)
	}
	thresh := dsp.Percentile(flat, percentile)
	var xs, ys []float64
	for i, v := range flat {
		if v <= thresh {
			xs = append(xs, logF[i])
			ys = append(ys, logP[i])
		}
	}
	if len(xs) >= 2 && xs[0] != xs[len(xs)-1] {
		b, slope = stat.LinearRegression(xs, ys, nil, false)
	}
	fit := make([]float64, len(logF))
	for i, x := range logF {
		fit[i] = b + slope*x
	}
	return fit
}

func peakGuesses(freqs, flat []float64, o PeakOptions) []gaussian {
	res := freqs[1] - freqs[0]
	iter := append([]float64(nil), flat...)
	var guesses []gaussian
	for len(guesses) < o.MaxPeaks {
		maxIdx := floats.MaxIdx(iter)
		height := iter[maxIdx]
		_, std := stat.PopMeanStdDev(iter, nil)
		if height <= 0 || height <= o.Threshold*std {
			break
		}
		half := height / 2
		left := maxIdx
		for left > 0 && iter[left] > half {
			left--
		}
		right := maxIdx
		for right < len(iter)-1 && iter[right] > half {
			right++
		}
		short := min(maxIdx-left, right-maxIdx)
		if maxIdx-left == 0 || right-maxIdx == 0 {
			short = max(maxIdx-left, right-maxIdx)
		}
		fwhm := float64(short) * 2 * res
		sd := fwhm / (2 * math.Sqrt(2*math.Ln2))
		sd = math.Min(math.Max(sd, o.MinWidth/2), o.MaxWidth/2)

		g := gaussian{center: freqs[maxIdx], height: height, std: sd}
		guesses = append(guesses, g)
		for i, f := range freqs {
			iter[i] -= g.at(f)
		}
	}

	lo, hi := freqs[0], freqs[len(freqs)-1]
	kept := guesses[:0]
	for _, g := range guesses {
		if math.Abs(g.center-lo) > o.EdgeStd*g.std && math.Abs(g.center-hi) > o.EdgeStd*g.std {
			kept = append(kept, g)
		}
	}
	return kept
}

func nearest(freqs []float64, f float64) int {
	best := 0
	for i, v := range freqs {
		if math.Abs(v-f) < math.Abs(freqs[best]-f) {
			best = i
		}
	}
	return best
}
