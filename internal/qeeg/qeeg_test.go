package qeeg

import (
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/tedpearson/cerebro/internal/eeg"
	"github.com/tedpearson/cerebro/internal/params"
)

const fs = 256.0

// synthetic builds a 10-20 recording of white noise plus a 10 Hz alpha
// rhythm whose amplitude (in volts) is chosen per channel.
func synthetic(seconds int, noise float64, alpha func(ch string) float64) *eeg.Recording {
	n := int(fs) * seconds
	rnd := rand.New(rand.NewSource(11))
	rec := &eeg.Recording{SampleRate: fs}
	for _, ch := range params.Channels1020 {
		amp := alpha(ch)
		row := make([]float64, n)
		for i := range row {
			row[i] = amp*math.Sin(2*math.Pi*10*float64(i)/fs) + rnd.NormFloat64()*noise
		}
		rec.Channels = append(rec.Channels, eeg.Channel{Name: ch, Type: eeg.EEG, Unit: "V"})
		rec.Data = append(rec.Data, row)
	}
	return rec
}

func constant(v float64) func(string) float64 {
	return func(string) float64 { return v }
}

func TestComputePSD(t *testing.T) {
	rec := synthetic(30, 1e-6, constant(20e-6))
	psd, err := ComputePSD(rec)
	if err != nil {
		t.Fatal(err)
	}
	if len(psd.Channels) != 19 {
		t.Fatalf("channels = %d", len(psd.Channels))
	}
	if psd.Freqs[0] != 0 || psd.Freqs[len(psd.Freqs)-1] != 100 {
		t.Errorf("freq range %v..%v", psd.Freqs[0], psd.Freqs[len(psd.Freqs)-1])
	}
	if got := psd.Freqs[1] - psd.Freqs[0]; got != 0.5 {
		t.Errorf("resolution = %v", got)
	}
	table := psd.Table()
	if len(table) != 20 || len(table["freq"]) != len(psd.Freqs) {
		t.Errorf("table has %d columns", len(table))
	}
}

func TestComputePSDNoEEG(t *testing.T) {
	rec := synthetic(2, 1e-6, constant(0))
	for i := range rec.Channels {
		rec.Channels[i].Type = eeg.Misc
	}
	if _, err := ComputePSD(rec); !errors.Is(err, eeg.ErrChannelNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestBandPowers(t *testing.T) {
	amp := 20e-6
	rec := synthetic(60, 1e-6, constant(amp))
	psd, err := ComputePSD(rec)
	if err != nil {
		t.Fatal(err)
	}
	abs, err := AbsolutePower(psd)
	if err != nil {
		t.Fatal(err)
	}
	want := amp * amp / 2
	if got := abs["alpha"]["O1"]; math.Abs(got/want-1) > 0.1 {
		t.Errorf("alpha power = %g, want %g", got, want)
	}
	rel, err := RelativePower(psd)
	if err != nil {
		t.Fatal(err)
	}
	if got := rel["alpha"]["Cz"]; got < 90 || got > 101 {
		t.Errorf("relative alpha = %v%%", got)
	}
	ratios, err := PowerRatios(psd)
	if err != nil {
		t.Fatal(err)
	}
	if got := ratios["theta_beta_ratio"]["Fz"]; math.Abs(got-1) > 0.3 {
		t.Errorf("theta/beta of white noise = %v", got)
	}
	if got := ratios["alpha_theta_ratio"]["Fz"]; got < 10 {
		t.Errorf("alpha/theta = %v", got)
	}
}

func TestBandMask(t *testing.T) {
	mask := BandMask([]float64{7.5, 8, 8.5, 13, 13.5}, params.AlphaBand)
	want := []bool{false, false, true, true, false}
	for i := range want {
		if mask[i] != want[i] {
			t.Errorf("mask = %v", mask)
			break
		}
	}
}

func TestFrontalGenerator(t *testing.T) {
	frontal := map[string]bool{"F3": true, "Fz": true, "F4": true}
	rec := synthetic(30, 5e-6, func(ch string) float64 {
		if frontal[ch] {
			return 30e-6
		}
		return 5e-6
	})
	psd, _ := ComputePSD(rec)
	rel, _ := RelativePower(psd)
	r, err := FrontalGenerator(rel)
	if err != nil {
		t.Fatal(err)
	}
	if !r.FrontalGenerator || r.Ratio <= 1 {
		t.Errorf("result = %+v", r)
	}

	delete(rel["alpha"], "Pz")
	if _, err := FrontalGenerator(rel); !errors.Is(err, eeg.ErrChannelNotFound) {
		t.Errorf("missing sensor err = %v", err)
	}
}

func TestLowVoltage(t *testing.T) {
	for name, tc := range map[string]struct {
		amp  float64
		want bool
	}{
		"normal": {20e-6, false},
		"flat":   {0.2e-6, true},
	} {
		t.Run(name, func(t *testing.T) {
			psd, _ := ComputePSD(synthetic(30, tc.amp/20, constant(tc.amp)))
			mag, err := Magnitude(psd)
			if err != nil {
				t.Fatal(err)
			}
			amp, low, err := LowVoltage(mag)
			if err != nil {
				t.Fatal(err)
			}
			if low != tc.want {
				t.Errorf("low voltage = %v at %.3f uV", low, amp)
			}
		})
	}
	if _, _, err := LowVoltage(nil); !errors.Is(err, ErrNoSpectrum) {
		t.Errorf("err = %v", err)
	}
}

func TestRegionalPSD(t *testing.T) {
	psd, _ := ComputePSD(synthetic(10, 1e-6, constant(10e-6)))
	regions, err := RegionalPSD(psd)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range []string{"frontal", "central", "posterior"} {
		if len(regions[r]) != len(psd.Freqs) {
			t.Errorf("region %s has %d bins", r, len(regions[r]))
		}
	}
}

func TestDetectPeaks(t *testing.T) {
	psd, _ := ComputePSD(synthetic(60, 1e-6, constant(10e-6)))
	peaks, err := DetectPeaks(psd, DefaultPeakOptions())
	if err != nil {
		t.Fatal(err)
	}
	seen := make(map[string]bool)
	for _, p := range peaks {
		if math.Abs(p.Freq-10) <= 0.5 {
			seen[p.Channel] = true
			if p.Power <= 0 || p.Bandwidth <= 0 || p.QFactor != p.Power/p.Bandwidth {
				t.Errorf("peak = %+v", p)
			}
		}
	}
	if len(seen) != 19 {
		t.Errorf("alpha peak found on %d channels", len(seen))
	}
}

func TestAnalyze(t *testing.T) {
	r, psd, err := Analyze(synthetic(30, 1e-6, constant(15e-6)))
	if err != nil {
		t.Fatal(err)
	}
	if psd == nil || len(r.PowerSpectralDensity["freq"]) == 0 {
		t.Error("missing PSD")
	}
	if r.LowVoltage {
		t.Error("unexpected low voltage")
	}
	if len(r.AbsolutePower) != 4 || len(r.RelativePower["beta"]) != 19 {
		t.Errorf("band powers incomplete: %v", r.RelativePower)
	}
}

func TestResultJSONFlattensFrontalGenerator(t *testing.T) {
	r := Result{FrontalGeneratorResult: FrontalGeneratorResult{
		FrontalAlphaRelativePower:   30,
		PosteriorAlphaRelativePower: 20,
		Ratio:                       1.5,
		FrontalGenerator:            true,
	}}
	b, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatal(err)
	}
	if v, ok := doc["frontal_generator"].(bool); !ok || !v {
		t.Errorf("frontal_generator = %#v, want top-level true", doc["frontal_generator"])
	}
	if v := doc["frontal_posterior_relative_power_ratio"]; v != 1.5 {
		t.Errorf("ratio = %#v", v)
	}
	if v := doc["posterior_alpha_relative_power"]; v != 20.0 {
		t.Errorf("posterior alpha = %#v", v)
	}
}
