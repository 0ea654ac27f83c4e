package dsp

import (
	"math"
	"math/rand"
	"testing"
)

func sine(freq, amp, fs float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/fs)
	}
	return out
}

func rms(x []float64) float64 {
	var s float64
	for _, v := range x {
		s += v * v
	}
	return math.Sqrt(s / float64(len(x)))
}

func near(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestButterworthResponse(t *testing.T) {
	const fs = 256.0
	for _, order := range []int{1, 2, 3, 4} {
		lp, err := ButterLowpass(order, 25, fs)
		if err != nil {
			t.Fatal(err)
		}
		if r := lp.Response(0, fs); !near(r, 1, 1e-9) {
			t.Errorf("order %d lowpass DC gain = %v", order, r)
		}
		if r := lp.Response(25, fs); !near(r, 1/math.Sqrt2, 1e-6) {
			t.Errorf("order %d lowpass cutoff gain = %v", order, r)
		}
		if r := lp.Response(100, fs); r > 0.2 {
			t.Errorf("order %d lowpass stopband gain = %v", order, r)
		}

		hp, err := ButterHighpass(order, 1, fs)
		if err != nil {
			t.Fatal(err)
		}
		if r := hp.Response(fs/2, fs); !near(r, 1, 1e-9) {
			t.Errorf("order %d highpass Nyquist gain = %v", order, r)
		}
		if r := hp.Response(1, fs); !near(r, 1/math.Sqrt2, 1e-6) {
			t.Errorf("order %d highpass cutoff gain = %v", order, r)
		}
		if r := hp.Response(0, fs); r > 1e-9 {
			t.Errorf("order %d highpass DC gain = %v", order, r)
		}
	}
}

func TestButterRejectsBadCutoff(t *testing.T) {
	if _, err := ButterLowpass(4, 200, 256); err == nil {
		t.Error("expected error above Nyquist")
	}
	if _, err := ButterBandpass(4, 30, 10, 256); err == nil {
		t.Error("expected error for inverted band")
	}
	if _, err := ButterHighpass(0, 1, 256); err == nil {
		t.Error("expected error for zero order")
	}
}

func TestNotch(t *testing.T) {
	sos, err := Notch(50, 30, 250)
	if err != nil {
		t.Fatal(err)
	}
	if r := sos.Response(50, 250); r > 1e-6 {
		t.Errorf("gain at notch = %v", r)
	}
	if r := sos.Response(10, 250); !near(r, 1, 0.01) {
		t.Errorf("gain away from notch = %v", r)
	}
}

func TestFiltFiltSeparatesTones(t *testing.T) {
	const fs = 256.0
	n := 2048
	low := sine(5, 1, fs, n)
	high := sine(60, 1, fs, n)
	mixed := make([]float64, n)
	for i := range mixed {
		mixed[i] = low[i] + high[i]
	}
	lp, err := ButterLowpass(4, 25, fs)
	if err != nil {
		t.Fatal(err)
	}
	out := lp.FiltFilt(mixed)
	if len(out) != n {
		t.Fatalf("len = %d", len(out))
	}
	mid := out[256 : n-256]
	diff := make([]float64, len(mid))
	for i := range mid {
		diff[i] = mid[i] - low[256+i]
	}
	if e := rms(diff); e > 0.02 {
		t.Errorf("residual after lowpass = %v", e)
	}
}

func TestFiltFiltKeepsConstant(t *testing.T) {
	lp, _ := ButterLowpass(4, 10, 100)
	x := make([]float64, 300)
	for i := range x {
		x[i] = 3
	}
	for i, v := range lp.FiltFilt(x) {
		if !near(v, 3, 1e-9) {
			t.Fatalf("sample %d = %v", i, v)
		}
	}
}

func TestFiltFiltDoesNotMutateInput(t *testing.T) {
	lp, _ := ButterLowpass(2, 10, 100)
	x := sine(3, 1, 100, 200)
	orig := append([]float64(nil), x...)
	lp.FiltFilt(x)
	for i := range x {
		if x[i] != orig[i] {
			t.Fatal("input modified")
		}
	}
}

func TestWelchSinePeak(t *testing.T) {
	const fs = 256.0
	x := sine(10, 2, fs, 256*8)
	freqs, psd, err := Welch(x, fs, WelchOptions{SegmentLength: 512, Overlap: 256})
	if err != nil {
		t.Fatal(err)
	}
	best := 0
	for k := range psd {
		if psd[k] > psd[best] {
			best = k
		}
	}
	if freqs[best] != 10 {
		t.Errorf("peak at %v Hz", freqs[best])
	}
	df := freqs[1] - freqs[0]
	var total float64
	for _, p := range psd {
		total += p * df
	}
	if !near(total, 2.0, 0.05) {
		t.Errorf("integrated power = %v, want signal variance 2", total)
	}
}

func TestWelchWhiteNoiseVariance(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	x := make([]float64, 20000)
	for i := range x {
		x[i] = rng.NormFloat64() * 3
	}
	freqs, psd, err := Welch(x, 100, WelchOptions{SegmentLength: 256, Overlap: 128, Window: Hamming})
	if err != nil {
		t.Fatal(err)
	}
	df := freqs[1] - freqs[0]
	var total float64
	for _, p := range psd {
		total += p * df
	}
	if !near(total, 9, 0.9) {
		t.Errorf("integrated power = %v, want ~9", total)
	}
}

func TestWelchShortSignal(t *testing.T) {
	if _, _, err := Welch([]float64{1}, 100, WelchOptions{SegmentLength: 512}); err == nil {
		t.Error("expected error")
	}
	freqs, _, err := Welch(sine(5, 1, 100, 100), 100, WelchOptions{SegmentLength: 512, Overlap: 256})
	if err != nil {
		t.Fatal(err)
	}
	if len(freqs) != 51 {
		t.Errorf("segment should shrink to the signal, got %d bins", len(freqs))
	}
}

func TestCoherence(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	x := make([]float64, 8192)
	y := make([]float64, 8192)
	for i := range x {
		x[i] = rng.NormFloat64()
		y[i] = rng.NormFloat64()
	}
	_, self, err := Coherence(x, x, 256, WelchOptions{SegmentLength: 1024, Overlap: 512})
	if err != nil {
		t.Fatal(err)
	}
	for k := 1; k < len(self)-1; k++ {
		if !near(self[k], 1, 1e-9) {
			t.Fatalf("self coherence at bin %d = %v", k, self[k])
		}
	}
	_, indep, _ := Coherence(x, y, 256, WelchOptions{SegmentLength: 1024, Overlap: 512})
	var mean float64
	for _, c := range indep {
		mean += c
	}
	mean /= float64(len(indep))
	if mean > 0.3 {
		t.Errorf("independent noise coherence = %v", mean)
	}
}

func TestEnvelope(t *testing.T) {
	x := sine(16, 2, 1024, 1024)
	env := Envelope(x)
	for i := 100; i < 900; i++ {
		if !near(env[i], 2, 1e-6) {
			t.Fatalf("envelope[%d] = %v", i, env[i])
		}
	}
}

func TestResample(t *testing.T) {
	x := sine(5, 1, 200, 400)
	y := Resample(x, 200)
	want := sine(5, 1, 100, 200)
	for i := range y {
		if !near(y[i], want[i], 1e-9) {
			t.Fatalf("sample %d = %v want %v", i, y[i], want[i])
		}
	}
	up := Resample(x, 800)
	wantUp := sine(5, 1, 400, 800)
	for i := range up {
		if !near(up[i], wantUp[i], 1e-9) {
			t.Fatalf("upsampled %d = %v want %v", i, up[i], wantUp[i])
		}
	}
}

func TestPercentile(t *testing.T) {
	x := []float64{4, 1, 3, 2}
	if got := Median(x); got != 2.5 {
		t.Errorf("median = %v", got)
	}
	if got := Percentile(x, 75); !near(got, 3.25, 1e-12) {
		t.Errorf("p75 = %v", got)
	}
	if x[0] != 4 {
		t.Error("input sorted in place")
	}
	if !math.IsNaN(Percentile(nil, 50)) {
		t.Error("empty percentile should be NaN")
	}
}

func TestIntegrateAndTrim(t *testing.T) {
	x := []float64{0, 0.5, 1, 1.5, 2}
	f := make([]float64, len(x))
	for i, v := range x {
		f[i] = v * v
	}
	if got := Integrate(x, f); !near(got, 8.0/3, 1e-9) {
		t.Errorf("integral = %v", got)
	}
	tf, tv := Trim(x, f, 0.5, 1.5)
	if len(tf) != 3 || tv[0] != 0.25 {
		t.Errorf("trim = %v %v", tf, tv)
	}
	if Integrate([]float64{1}, []float64{1}) != 0 {
		t.Error("single point integral should be zero")
	}
}
