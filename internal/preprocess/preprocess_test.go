package preprocess

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/stat"

	"github.com/tedpearson/cerebro/internal/dsp"
	"github.com/tedpearson/cerebro/internal/eeg"
)

const fs = 256.0

func sine(n int, f, amp float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*f*float64(i)/fs)
	}
	return out
}

func recording(rows ...[]float64) *eeg.Recording {
	rec := &eeg.Recording{SampleRate: fs}
	for i, row := range rows {
		rec.Channels = append(rec.Channels, eeg.Channel{Name: string(rune('A' + i)), Type: eeg.EEG, Unit: "V"})
		rec.Data = append(rec.Data, row)
	}
	return rec
}

// bandPower integrates the Welch spectrum of x between lo and hi.
func bandPower(t *testing.T, x []float64, lo, hi float64) float64 {
	t.Helper()
	f, p, err := dsp.Welch(x, fs, dsp.WelchOptions{SegmentLength: 512, Overlap: 256, Window: dsp.Hann})
	if err != nil {
		t.Fatal(err)
	}
	f, p = dsp.Trim(f, p, lo, hi)
	return dsp.Integrate(f, p)
}

func TestFilter(t *testing.T) {
	n := int(fs) * 20
	x := make([]float64, n)
	slow, alpha, fast := sine(n, 0.2, 1e-5), sine(n, 10, 1e-5), sine(n, 60, 1e-5)
	for i := range x {
		x[i] = slow[i] + alpha[i] + fast[i]
	}
	stim := make([]float64, n)
	rec := recording(x, stim)
	rec.Channels[1].Type = eeg.Stim
	stim[0] = 1

	out, err := Filter(rec, 1, 25)
	if err != nil {
		t.Fatal(err)
	}
	before := bandPower(t, rec.Data[0], 9, 11)
	after := bandPower(t, out.Data[0], 9, 11)
	if math.Abs(after/before-1) > 0.05 {
		t.Errorf("alpha power changed by %.3f", after/before)
	}
	if p := bandPower(t, out.Data[0], 55, 65); p > bandPower(t, rec.Data[0], 55, 65)*1e-3 {
		t.Errorf("60 Hz not attenuated: %g", p)
	}
	if out.Data[1][0] != 1 {
		t.Error("non-EEG channel was filtered")
	}
	if rec.Data[0][0] != x[0] || &rec.Data[0][0] == &out.Data[0][0] {
		t.Error("input recording was modified or aliased")
	}
}

func TestFilterDisabled(t *testing.T) {
	rec := recording(sine(512, 10, 1))
	out, err := Filter(rec, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if out.Data[0][100] != rec.Data[0][100] {
		t.Error("zero cutoffs should leave data untouched")
	}
}

func TestRemovePowerline(t *testing.T) {
	n := int(fs) * 30
	rnd := rand.New(rand.NewSource(1))
	var rows [][]float64
	for c := 0; c < 4; c++ {
		hum := sine(n, 50, 2e-5)
		row := make([]float64, n)
		for i := range row {
			row[i] = hum[i] + rnd.NormFloat64()*1e-6
		}
		rows = append(rows, row)
	}
	rec := recording(rows...)
	out, detected := RemovePowerline(rec)
	if !detected {
		t.Fatal("50 Hz hum not detected")
	}
	before := bandPower(t, rec.Data[0], 49, 51)
	after := bandPower(t, out.Data[0], 49, 51)
	if after > before*0.01 {
		t.Errorf("50 Hz power %g -> %g", before, after)
	}
}

func TestRemovePowerlineClean(t *testing.T) {
	n := int(fs) * 30
	rec := recording(sine(n, 10, 1e-5), sine(n, 6, 1e-5))
	out, detected := RemovePowerline(rec)
	if detected {
		t.Error("false powerline detection")
	}
	if out.Data[0][10] != rec.Data[0][10] {
		t.Error("clean recording changed")
	}
}

func TestRemovePowerlineLowRate(t *testing.T) {
	rec := recording(sine(1000, 10, 1))
	rec.SampleRate = 100
	out, detected := RemovePowerline(rec)
	if detected || out != rec {
		t.Error("expected unchanged input when 50/60 Hz bins are missing")
	}
}

func ecgFixture() *eeg.Recording {
	n := int(fs) * 40
	rnd := rand.New(rand.NewSource(3))
	heart := make([]float64, n)
	period := int(math.Floor(fs / 1.2))
	for i := range heart {
		d := float64(i%period - period/2)
		heart[i] = math.Exp(-d * d / 8)
	}
	alpha, theta := sine(n, 10, 1), sine(n, 5.5, 1)
	noise := make([]float64, n)
	for i := range noise {
		noise[i] = rnd.NormFloat64()
	}
	sources := [][]float64{heart, alpha, theta, noise}
	mixing := [][]float64{
		{0.9, 1.0, 0.3, 0.2},
		{0.6, 0.4, 1.0, 0.3},
		{0.3, 0.7, 0.5, 1.0},
		{1.2, 0.2, 0.6, 0.5},
	}
	var rows [][]float64
	for _, m := range mixing {
		row := make([]float64, n)
		for s, src := range sources {
			for i, v := range src {
				row[i] += m[s] * v * 1e-5
			}
		}
		rows = append(rows, row)
	}
	ecg := make([]float64, n)
	for i, v := range heart {
		ecg[i] = v * 1e-3
	}
	rec := recording(append(rows, ecg)...)
	rec.Channels[4] = eeg.Channel{Name: "ECG", Type: eeg.ECG, Unit: "V"}
	return rec
}

func TestRemoveECG(t *testing.T) {
	rec := ecgFixture()
	orig := append([]float64(nil), rec.Data[0]...)
	out, detected := RemoveECG(rec, DefaultECGOptions())
	if !detected {
		t.Fatal("cardiac component not detected")
	}
	ecg := rec.Data[4]
	for c := 0; c < 4; c++ {
		before := math.Abs(stat.Correlation(rec.Data[c], ecg, nil))
		after := math.Abs(stat.Correlation(out.Data[c], ecg, nil))
		if after > 0.2 || after >= before {
			t.Errorf("channel %d correlation with ECG %.3f -> %.3f", c, before, after)
		}
	}
	for i, v := range orig {
		if rec.Data[0][i] != v {
			t.Fatal("input recording was modified")
		}
	}
}

func TestRemoveECGWithoutECGChannel(t *testing.T) {
	rec := ecgFixture()
	rec.PickTypes(eeg.EEG)
	out, detected := RemoveECG(rec, DefaultECGOptions())
	if detected || out != rec {
		t.Error("expected the input back when no ECG channel exists")
	}
}

func TestResample(t *testing.T) {
	rec := recording(sine(2560, 5, 1))
	out, err := Resample(rec, 128)
	if err != nil {
		t.Fatal(err)
	}
	if out.SampleRate != 128 || out.Samples() != 1280 {
		t.Errorf("got %v Hz, %d samples", out.SampleRate, out.Samples())
	}
	if rec.Samples() != 2560 {
		t.Error("input resampled in place")
	}
	if _, err := Resample(rec, 0); err == nil {
		t.Error("expected error for zero rate")
	}
}

func TestRun(t *testing.T) {
	rec := ecgFixture()
	o := DefaultOptions()
	o.ResampleRate = 128
	out, report, err := Run(rec, o)
	if err != nil {
		t.Fatal(err)
	}
	if !report.ECGNoiseDetected {
		t.Error("ECG noise not reported")
	}
	if report.PowerlineNoiseDetected {
		t.Error("unexpected powerline report")
	}
	if out.SampleRate != 128 {
		t.Errorf("sample rate = %v", out.SampleRate)
	}
	if rec.SampleRate != fs || rec.Samples() != int(fs)*40 {
		t.Error("input recording changed")
	}
}

func TestRunFiltersBeforePowerlineDetection(t *testing.T) {
	n := int(fs) * 30
	rnd := rand.New(rand.NewSource(5))
	var rows [][]float64
	for c := 0; c < 4; c++ {
		hum, alpha := sine(n, 50, 2e-5), sine(n, 10, 1e-5)
		row := make([]float64, n)
		for i := range row {
			// slow drift on top, removed by the highpass
			row[i] = hum[i] + alpha[i] + 5e-5*float64(i)/float64(n) + rnd.NormFloat64()*1e-7
		}
		rows = append(rows, row)
	}
	rec := recording(rows...)
	if _, detected := RemovePowerline(rec); !detected {
		t.Fatal("hum should be detected in the unfiltered recording")
	}

	o := DefaultOptions()
	o.RemoveECG = false
	out, report, err := Run(rec, o)
	if err != nil {
		t.Fatal(err)
	}
	if report.PowerlineNoiseDetected {
		t.Error("the 1-25 Hz passband removes the hum before detection runs")
	}
	if alpha := bandPower(t, out.Data[0], 9, 11); alpha < bandPower(t, out.Data[0], 49, 51)*10 {
		t.Error("alpha should dominate the hum after filtering")
	}

	// with the lowpass disabled the hum reaches the detector
	o.HFreq = 0
	if _, report, err = Run(rec, o); err != nil {
		t.Fatal(err)
	}
	if !report.PowerlineNoiseDetected {
		t.Error("hum inside the passband should be detected")
	}
}
