// Package heart derives heart rate and heart rate variability from an ECG
// channel recorded alongside the EEG.
package heart

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/stat"

	"github.com/tedpearson/cerebro/internal/dsp"
	"github.com/tedpearson/cerebro/internal/eeg"
	"github.com/tedpearson/cerebro/internal/logger"
	"github.com/tedpearson/cerebro/internal/params"
)

var ErrNoECGChannel = errors.New("no ECG channel found")

// Physiological RR bounds in milliseconds (30 to 200 BPM).
const (
	MinRR = 300.0
	MaxRR = 2000.0
)

// HRV frequency bands in Hz, lower bound inclusive.
var (
	LFBand = params.Band{Name: "lf", Low: 0.04, High: 0.15}
	HFBand = params.Band{Name: "hf", Low: 0.15, High: 0.4}
)

// resampleRate is the rate the RR tachogram is interpolated to.
const resampleRate = 4.0

type Options struct {
	// Threshold is relative to the maximum of the normalized QRS signal.
	Threshold float64 `yaml:"threshold"`
	// MinDistance between R-peaks in seconds.
	MinDistance float64 `yaml:"min_distance"`
}

func DefaultOptions() Options {
	return Options{Threshold: 0.5, MinDistance: 0.3}
}

type Result struct {
	Channel      string  `json:"channel"`
	HeartRateBPM float64 `json:"heart_rate_bpm"`
	RMSSD        float64 `json:"rmssd_ms"`
	SDNN         float64 `json:"sdnn_ms"`
	PNN50        float64 `json:"pnn50_percent"`
	PNN20        float64 `json:"pnn20_percent"`
	LFPower      float64 `json:"lf_power"`
	HFPower      float64 `json:"hf_power"`
	LFHFRatio    float64 `json:"lf_hf_ratio"`
	NRRIntervals int     `json:"n_rr_intervals"`
}

// FindECGChannel returns the first channel whose name mentions ECG or EKG,
// falling back to the first EOG channel.
func FindECGChannel(rec *eeg.Recording) (string, error) {
	for _, ch := range rec.Channels {
		name := strings.ToLower(ch.Name)
		if strings.Contains(name, "ecg") || strings.Contains(name, "ekg") {
			return ch.Name, nil
		}
	}
	for _, ch := range rec.Channels {
		if strings.Contains(strings.ToLower(ch.Name), "eog") {
			return ch.Name, nil
		}
	}
	return "", ErrNoECGChannel
}

// DetectPeaks band-passes x to the QRS range, z-normalizes it and returns the
// samples above threshold times the maximum, at least minDistance seconds
// apart.
func DetectPeaks(x []float64, fs, threshold, minDistance float64) ([]int, error) {
	sos, err := dsp.ButterBandpass(4, 5, 45, fs)
	if err != nil {
		return nil, fmt.Errorf("QRS filter: %w", err)
	}
	filtered := sos.FiltFilt(x)
	mean, sd := stat.PopMeanStdDev(filtered, nil)
	peak := math.Inf(-1)
	for i, v := range filtered {
		filtered[i] = (v - mean) / (sd + 1e-10)
		peak = math.Max(peak, filtered[i])
	}
	cut := threshold * peak
	gap := int(minDistance * fs)
	var peaks []int
	for i, v := range filtered {
		if v <= cut {
			continue
		}
		if len(peaks) == 0 || i-peaks[len(peaks)-1] >= gap {
			peaks = append(peaks, i)
		}
	}
	return peaks, nil
}

// RRIntervals converts successive peak positions to intervals in ms.
func RRIntervals(peaks []int, fs float64) []float64 {
	if len(peaks) < 2 {
		return nil
	}
	rr := make([]float64, len(peaks)-1)
	for i := range rr {
		rr[i] = float64(peaks[i+1]-peaks[i]) / fs * 1000
	}
	return rr
}

// HeartRate is the mean rate in BPM over physiologically plausible intervals.
func HeartRate(rr []float64) float64 {
	var valid []float64
	for _, v := range rr {
		if v > MinRR && v < MaxRR {
			valid = append(valid, v)
		}
	}
	if len(valid) == 0 {
		return 0
	}
	return 60000 / stat.Mean(valid, nil)
}

func RMSSD(rr []float64) float64 {
	if len(rr) < 2 {
		return 0
	}
	var sum float64
	for i := 1; i < len(rr); i++ {
		d := rr[i] - rr[i-1]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(rr)-1))
}

func SDNN(rr []float64) float64 {
	if len(rr) < 2 {
		return 0
	}
	_, sd := stat.PopMeanStdDev(rr, nil)
	return sd
}

// PNN is the percentage of successive differences larger than ms.
func PNN(rr []float64, ms float64) float64 {
	if len(rr) < 2 {
		return 0
	}
	count := 0
	for i := 1; i < len(rr); i++ {
		if math.Abs(rr[i]-rr[i-1]) > ms {
			count++
		}
	}
	return float64(count) / float64(len(rr)-1) * 100
}

type Frequency struct {
	LF        float64 `json:"lf"`
	HF        float64 `json:"hf"`
	LFHFRatio float64 `json:"lf_hf_ratio"`
}

// FrequencyDomain interpolates the tachogram to 4 Hz with a natural cubic
// spline and integrates its Welch spectrum over the LF and HF bands. Fewer
// than ten intervals give zeros.
func FrequencyDomain(rr []float64) (Frequency, error) {
	if len(rr) < 10 {
		return Frequency{}, nil
	}
	times := make([]float64, len(rr))
	var run float64
	for i, v := range rr {
		run += v / 1000
		times[i] = run
	}
	start := times[0]
	for i := range times {
		times[i] -= start
	}
	var spline interp.NaturalCubic
	if err := spline.Fit(times, rr); err != nil {
		return Frequency{}, fmt.Errorf("interpolate RR intervals: %w", err)
	}
	n := int(math.Ceil(times[len(times)-1] * resampleRate))
	regular := make([]float64, n)
	for i := range regular {
		regular[i] = spline.Predict(float64(i) / resampleRate)
	}

	seg := min(256, n)
	freqs, psd, err := dsp.Welch(regular, resampleRate, dsp.WelchOptions{SegmentLength: seg, Overlap: seg / 2, Window: dsp.Hann})
	if err != nil {
		return Frequency{}, err
	}
	lf := bandArea(freqs, psd, LFBand)
	hf := bandArea(freqs, psd, HFBand)
	return Frequency{LF: lf, HF: hf, LFHFRatio: lf / (hf + 1e-10)}, nil
}

func bandArea(freqs, psd []float64, band params.Band) float64 {
	var f, p []float64
	for i, fr := range freqs {
		if fr >= band.Low && fr < band.High {
			f = append(f, fr)
			p = append(p, psd[i])
		}
	}
	if len(f) < 2 {
		return 0
	}
	return integrate.Trapezoidal(f, p)
}

// ComputeAll runs peak detection on channel, or on the discovered ECG channel
// when channel is empty, and derives every heart metric.
func ComputeAll(rec *eeg.Recording, channel string, o Options) (*Result, error) {
	if channel == "" {
		var err error
		if channel, err = FindECGChannel(rec); err != nil {
			return nil, err
		}
	}
	x, err := rec.Channel(channel)
	if err != nil {
		return nil, err
	}
	peaks, err := DetectPeaks(x, rec.SampleRate, o.Threshold, o.MinDistance)
	if err != nil {
		return nil, err
	}
	rr := RRIntervals(peaks, rec.SampleRate)
	freq, err := FrequencyDomain(rr)
	if err != nil {
		return nil, err
	}
	res := &Result{
		Channel:      channel,
		HeartRateBPM: params.Finite(HeartRate(rr)),
		RMSSD:        RMSSD(rr),
		SDNN:         SDNN(rr),
		PNN50:        PNN(rr, 50),
		PNN20:        PNN(rr, 20),
		LFPower:      params.Finite(freq.LF),
		HFPower:      params.Finite(freq.HF),
		LFHFRatio:    params.Finite(freq.LFHFRatio),
		NRRIntervals: len(rr),
	}
	logger.Log().Debug().Str("channel", channel).Int("peaks", len(peaks)).
		Float64("bpm", res.HeartRateBPM).Msg("heart rate computed")
	return res, nil
}
