package dsp

import (
	"errors"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

var ErrTooShort = errors.New("signal too short")

type Window int

const (
	Hann Window = iota
	Hamming
)

// Coefficients returns the periodic window of length n.
func (w Window) Coefficients(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		c := math.Cos(2 * math.Pi * float64(i) / float64(n))
		switch w {
		case Hamming:
			out[i] = 0.54 - 0.46*c
		default:
			out[i] = 0.5 - 0.5*c
		}
	}
	return out
}

type WelchOptions struct {
	SegmentLength int
	Overlap       int
	Window        Window
}

// Segments holds the windowed, mean-detrended Fourier coefficients of each
// Welch segment of a signal.
type Segments struct {
	Freqs  []float64
	Coeffs [][]complex128
	// Scale converts |X|^2 into a two-sided power density (V^2/Hz).
	Scale float64
	NFFT  int
}

// SegmentSpectra splits x into overlapping segments and transforms each one.
// Segments longer than the signal are shortened to the signal length.
func SegmentSpectra(x []float64, fs float64, o WelchOptions) (*Segments, error) {
	n := len(x)
	if n < 2 {
		return nil, ErrTooShort
	}
	seg := o.SegmentLength
	if seg <= 0 || seg > n {
		seg = n
	}
	overlap := o.Overlap
	if overlap < 0 || overlap >= seg {
		overlap = seg / 2
	}
	win := o.Window.Coefficients(seg)
	fft := fourier.NewFFT(seg)

	s := &Segments{
		Scale: 1 / (fs * floats.Dot(win, win)),
		NFFT:  seg,
	}
	s.Freqs = make([]float64, seg/2+1)
	for k := range s.Freqs {
		s.Freqs[k] = fft.Freq(k) * fs
	}

	buf := make([]float64, seg)
	step := seg - overlap
	for start := 0; start+seg <= n; start += step {
		chunk := x[start : start+seg]
		mean := floats.Sum(chunk) / float64(seg)
		for i, v := range chunk {
			buf[i] = (v - mean) * win[i]
		}
		s.Coeffs = append(s.Coeffs, fft.Coefficients(nil, buf))
	}
	return s, nil
}

// OneSided returns the factor that folds negative frequencies into bin k.
func (s *Segments) OneSided(k int) float64 {
	if k == 0 || (s.NFFT%2 == 0 && k == s.NFFT/2) {
		return 1
	}
	return 2
}

// Power averages the one-sided power density across segments.
func (s *Segments) Power() []float64 {
	psd := make([]float64, len(s.Freqs))
	for _, c := range s.Coeffs {
		for k, v := range c {
			re, im := real(v), imag(v)
			psd[k] += re*re + im*im
		}
	}
	for k := range psd {
		psd[k] *= s.Scale * s.OneSided(k) / float64(len(s.Coeffs))
	}
	return psd
}

// Cross averages conj(X)*Y across segments of two equally segmented signals.
func Cross(x, y *Segments) []complex128 {
	out := make([]complex128, len(x.Freqs))
	segs := min(len(x.Coeffs), len(y.Coeffs))
	for i := 0; i < segs; i++ {
		for k := range out {
			out[k] += cmplx.Conj(x.Coeffs[i][k]) * y.Coeffs[i][k]
		}
	}
	for k := range out {
		out[k] *= complex(x.Scale*x.OneSided(k)/float64(segs), 0)
	}
	return out
}

// Welch estimates the one-sided power spectral density of x.
func Welch(x []float64, fs float64, o WelchOptions) (freqs, psd []float64, err error) {
	s, err := SegmentSpectra(x, fs, o)
	if err != nil {
		return nil, nil, err
	}
	return s.Freqs, s.Power(), nil
}

// Coherence returns the magnitude squared coherence of x and y.
func Coherence(x, y []float64, fs float64, o WelchOptions) (freqs, coh []float64, err error) {
	sx, err := SegmentSpectra(x, fs, o)
	if err != nil {
		return nil, nil, err
	}
	sy, err := SegmentSpectra(y, fs, o)
	if err != nil {
		return nil, nil, err
	}
	pxx, pyy := sx.Power(), sy.Power()
	pxy := Cross(sx, sy)
	coh = make([]float64, len(pxx))
	for k := range coh {
		den := pxx[k] * pyy[k]
		if den == 0 {
			continue
		}
		m := cmplx.Abs(pxy[k])
		coh[k] = m * m / den
	}
	return sx.Freqs, coh, nil
}
