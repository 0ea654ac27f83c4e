// Package dsp implements the signal processing primitives the analyses are
// built on: IIR filter design and application, spectral estimation, analytic
// signals and resampling.
package dsp

import (
	"fmt"
	"math"
	"math/cmplx"
)

// Section is one second-order IIR section with A[0] normalized to 1.
type Section struct {
	B [3]float64
	A [3]float64
}

// SOS is a cascade of second-order sections.
type SOS []Section

func checkCutoff(f, fs float64) error {
	if fs <= 0 {
		return fmt.Errorf("invalid sampling rate %v", fs)
	}
	if f <= 0 || f >= fs/2 {
		return fmt.Errorf("cutoff %v Hz outside (0, %v)", f, fs/2)
	}
	return nil
}

// ButterLowpass designs a digital Butterworth lowpass filter.
func ButterLowpass(order int, cutoff, fs float64) (SOS, error) {
	return butter(order, cutoff, fs, false)
}

// ButterHighpass designs a digital Butterworth highpass filter.
func ButterHighpass(order int, cutoff, fs float64) (SOS, error) {
	return butter(order, cutoff, fs, true)
}

// ButterBandpass cascades a highpass at low and a lowpass at high, each of the
// given order.
func ButterBandpass(order int, low, high, fs float64) (SOS, error) {
	if low >= high {
		return nil, fmt.Errorf("band edges out of order: %v >= %v", low, high)
	}
	hp, err := ButterHighpass(order, low, fs)
	if err != nil {
		return nil, err
	}
	lp, err := ButterLowpass(order, high, fs)
	if err != nil {
		return nil, err
	}
	return append(hp, lp...), nil
}

func butter(order int, cutoff, fs float64, highpass bool) (SOS, error) {
	if order < 1 {
		return nil, fmt.Errorf("invalid filter order %d", order)
	}
	if err := checkCutoff(cutoff, fs); err != nil {
		return nil, err
	}
	warped := 2 * fs * math.Tan(math.Pi*cutoff/fs)
	fs2 := complex(2*fs, 0)

	var sos SOS
	for k := 0; k < order; k++ {
		m := float64(-order + 1 + 2*k)
		proto := -cmplx.Exp(complex(0, math.Pi*m/float64(2*order)))
		var analog complex128
		if highpass {
			analog = complex(warped, 0) / proto
		} else {
			analog = complex(warped, 0) * proto
		}
		p := (fs2 + analog) / (fs2 - analog)

		var sec Section
		switch {
		case imag(p) > 1e-12:
			sec.A = [3]float64{1, -2 * real(p), real(p)*real(p) + imag(p)*imag(p)}
			if highpass {
				sec.B = [3]float64{1, -2, 1}
			} else {
				sec.B = [3]float64{1, 2, 1}
			}
		case math.Abs(imag(p)) <= 1e-12:
			sec.A = [3]float64{1, -real(p), 0}
			if highpass {
				sec.B = [3]float64{1, -1, 0}
			} else {
				sec.B = [3]float64{1, 1, 0}
			}
		default:
			// conjugate of a pole already paired
			continue
		}
		normalize(&sec, highpass)
		sos = append(sos, sec)
	}
	return sos, nil
}

// normalize scales B so the section has unit gain at DC (lowpass) or Nyquist
// (highpass).
func normalize(sec *Section, highpass bool) {
	var num, den float64
	if highpass {
		num = sec.B[0] - sec.B[1] + sec.B[2]
		den = sec.A[0] - sec.A[1] + sec.A[2]
	} else {
		num = sec.B[0] + sec.B[1] + sec.B[2]
		den = sec.A[0] + sec.A[1] + sec.A[2]
	}
	g := den / num
	for i := range sec.B {
		sec.B[i] *= g
	}
}

// Notch designs a second-order IIR notch at f0 with quality factor q.
func Notch(f0, q, fs float64) (SOS, error) {
	if err := checkCutoff(f0, fs); err != nil {
		return nil, err
	}
	if q <= 0 {
		return nil, fmt.Errorf("invalid quality factor %v", q)
	}
	w0 := f0 / (fs / 2)
	bw := w0 / q * math.Pi
	w0 *= math.Pi
	beta := math.Tan(bw / 2)
	gain := 1 / (1 + beta)
	return SOS{{
		B: [3]float64{gain, -2 * gain * math.Cos(w0), gain},
		A: [3]float64{1, -2 * gain * math.Cos(w0), 2*gain - 1},
	}}, nil
}

// Response evaluates the magnitude of the filter's frequency response at f.
func (s SOS) Response(f, fs float64) float64 {
	z := cmplx.Exp(complex(0, -2*math.Pi*f/fs))
	h := complex(1, 0)
	for _, sec := range s {
		num := complex(sec.B[0], 0) + complex(sec.B[1], 0)*z + complex(sec.B[2], 0)*z*z
		den := complex(sec.A[0], 0) + complex(sec.A[1], 0)*z + complex(sec.A[2], 0)*z*z
		h *= num / den
	}
	return cmplx.Abs(h)
}

// Filter applies the cascade causally with zero initial state.
func (s SOS) Filter(x []float64) []float64 {
	return s.filter(x, make([][2]float64, len(s)))
}

func (s SOS) filter(x []float64, zi [][2]float64) []float64 {
	y := append([]float64(nil), x...)
	for k, sec := range s {
		z1, z2 := zi[k][0], zi[k][1]
		for i, v := range y {
			out := sec.B[0]*v + z1
			z1 = sec.B[1]*v - sec.A[1]*out + z2
			z2 = sec.B[2]*v - sec.A[2]*out
			y[i] = out
		}
	}
	return y
}

// steadyState returns the initial conditions that make the cascade's response
// to a unit step start in steady state.
func (s SOS) steadyState() [][2]float64 {
	zi := make([][2]float64, len(s))
	scale := 1.0
	for k, sec := range s {
		g := (sec.B[0] + sec.B[1] + sec.B[2]) / (sec.A[0] + sec.A[1] + sec.A[2])
		z2 := sec.B[2] - sec.A[2]*g
		z1 := sec.B[1] - sec.A[1]*g + z2
		zi[k] = [2]float64{scale * z1, scale * z2}
		scale *= g
	}
	return zi
}

func scaled(zi [][2]float64, v float64) [][2]float64 {
	out := make([][2]float64, len(zi))
	for i, z := range zi {
		out[i] = [2]float64{z[0] * v, z[1] * v}
	}
	return out
}

func (s SOS) padLength() int {
	var zb, za int
	for _, sec := range s {
		if sec.B[2] == 0 {
			zb++
		}
		if sec.A[2] == 0 {
			za++
		}
	}
	return 3 * (2*len(s) + 1 - min(zb, za))
}

// FiltFilt applies the cascade forward and backward for zero phase distortion.
// The signal is extended by odd reflection at both ends to limit transients.
func (s SOS) FiltFilt(x []float64) []float64 {
	n := len(x)
	if n < 2 || len(s) == 0 {
		return append([]float64(nil), x...)
	}
	pad := min(s.padLength(), n-1)
	ext := make([]float64, 0, n+2*pad)
	for i := pad; i > 0; i-- {
		ext = append(ext, 2*x[0]-x[i])
	}
	ext = append(ext, x...)
	for i := n - 2; i >= n-1-pad; i-- {
		ext = append(ext, 2*x[n-1]-x[i])
	}

	zi := s.steadyState()
	y := s.filter(ext, scaled(zi, ext[0]))
	reverse(y)
	y = s.filter(y, scaled(zi, y[0]))
	reverse(y)
	return y[pad : pad+n]
}

func reverse(x []float64) {
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
	}
}
