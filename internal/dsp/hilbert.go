package dsp

import (
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Analytic returns the analytic signal of x. The transform runs on x zero
// padded to the next power of two and is truncated back to len(x).
func Analytic(x []float64) []complex128 {
	n := len(x)
	if n == 0 {
		return nil
	}
	m := nextPow2(n)
	seq := make([]complex128, m)
	for i, v := range x {
		seq[i] = complex(v, 0)
	}
	fft := fourier.NewCmplxFFT(m)
	c := fft.Coefficients(nil, seq)
	for k := 1; k < m; k++ {
		switch {
		case k < m/2:
			c[k] *= 2
		case k > m/2:
			c[k] = 0
		}
	}
	out := fft.Sequence(nil, c)
	scale := complex(1/float64(m), 0)
	for i := range out {
		out[i] *= scale
	}
	return out[:n]
}

// Envelope returns the instantaneous amplitude of x.
func Envelope(x []float64) []float64 {
	a := Analytic(x)
	env := make([]float64, len(a))
	for i, v := range a {
		env[i] = cmplx.Abs(v)
	}
	return env
}

// Resample changes the length of x to num samples with the Fourier method.
func Resample(x []float64, num int) []float64 {
	nx := len(x)
	if nx == 0 || num <= 0 {
		return nil
	}
	if num == nx {
		return append([]float64(nil), x...)
	}
	X := fourier.NewFFT(nx).Coefficients(nil, x)
	Y := make([]complex128, num/2+1)
	n := min(num, nx)
	copy(Y, X[:n/2+1])
	if n%2 == 0 {
		if num < nx {
			Y[n/2] *= 2
		} else {
			Y[n/2] *= 0.5
		}
	}
	y := fourier.NewFFT(num).Sequence(nil, Y)
	for i := range y {
		y[i] /= float64(nx)
	}
	return y
}
