// Package preprocess removes non-neural contamination from EEG recordings:
// out-of-band activity, powerline hum and cardiac interference.
package preprocess

import (
	"fmt"
	"math"

	"github.com/tedpearson/cerebro/internal/dsp"
	"github.com/tedpearson/cerebro/internal/eeg"
	"github.com/tedpearson/cerebro/internal/logger"
)

const (
	filterOrder = 4
	notchQ      = 30.0
)

// Options configures Run. Zero cutoffs disable that edge of the band.
type Options struct {
	LFreq           float64    `yaml:"l_freq"`
	HFreq           float64    `yaml:"h_freq"`
	RemovePowerline bool       `yaml:"powerline"`
	RemoveECG       bool       `yaml:"ecg"`
	ResampleRate    float64    `yaml:"resample"`
	ECG             ECGOptions `yaml:"ecg_ica"`
}

func DefaultOptions() Options {
	return Options{
		LFreq:           1,
		HFreq:           25,
		RemovePowerline: true,
		RemoveECG:       true,
		ECG:             DefaultECGOptions(),
	}
}

// Report records which artifacts were found while preprocessing.
type Report struct {
	PowerlineNoiseDetected bool `json:"powerline_noise_detected"`
	ECGNoiseDetected       bool `json:"ecg_noise_detected"`
}

// Run band-pass filters a copy of rec, then removes powerline noise and ECG
// interference from the filtered data, and finally resamples. Powerline
// detection therefore only sees what survives the passband.
func Run(rec *eeg.Recording, o Options) (*eeg.Recording, Report, error) {
	var report Report
	out, err := Filter(rec, o.LFreq, o.HFreq)
	if err != nil {
		return nil, report, err
	}
	if o.RemovePowerline {
		out, report.PowerlineNoiseDetected = RemovePowerline(out)
	}
	if o.RemoveECG {
		out, report.ECGNoiseDetected = RemoveECG(out, o.ECG)
	}
	if o.ResampleRate > 0 && o.ResampleRate != out.SampleRate {
		if out, err = Resample(out, o.ResampleRate); err != nil {
			return nil, report, err
		}
	}
	return out, report, nil
}

// Filter band-passes the EEG channels of rec with a zero-phase Butterworth
// filter and returns the result as a new recording. An lFreq of zero gives a
// lowpass, an hFreq of zero (or at or above Nyquist) gives a highpass.
func Filter(rec *eeg.Recording, lFreq, hFreq float64) (*eeg.Recording, error) {
	fs := rec.SampleRate
	if hFreq >= fs/2 {
		hFreq = 0
	}
	var (
		sos dsp.SOS
		err error
	)
	switch {
	case lFreq > 0 && hFreq > 0:
		sos, err = dsp.ButterBandpass(filterOrder, lFreq, hFreq, fs)
	case lFreq > 0:
		sos, err = dsp.ButterHighpass(filterOrder, lFreq, fs)
	case hFreq > 0:
		sos, err = dsp.ButterLowpass(filterOrder, hFreq, fs)
	default:
		return rec.Clone(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("designing %g-%g Hz filter: %w", lFreq, hFreq, err)
	}
	logger.Log().Debug().Float64("l_freq", lFreq).Float64("h_freq", hFreq).
		Int("sections", len(sos)).Msg("filtering EEG channels")
	out := rec.Clone()
	for _, i := range out.Indices(eeg.EEG) {
		out.Data[i] = sos.FiltFilt(out.Data[i])
	}
	return out, nil
}

var powerlineWelch = dsp.WelchOptions{SegmentLength: 256, Overlap: 0, Window: dsp.Hamming}

// RemovePowerline notches 50 Hz and/or 60 Hz when the channel-averaged
// spectrum peaks there above everything else between 4 and 100 Hz. Failures
// are logged and the input is returned unchanged.
func RemovePowerline(rec *eeg.Recording) (*eeg.Recording, bool) {
	log := logger.Log()
	notches, err := powerlineFrequencies(rec)
	if err != nil {
		log.Error().Err(err).Msg("removing powerline noise failed, returning original recording")
		return rec, false
	}
	if len(notches) == 0 {
		log.Info().Msg("no powerline noise detected in the EEG")
		return rec.Clone(), false
	}
	log.Info().Floats64("freqs", notches).Msg("powerline noise detected, applying notch filter")
	out := rec.Clone()
	eegIdx := out.Indices(eeg.EEG)
	for _, f0 := range notches {
		sos, err := dsp.Notch(f0, notchQ, out.SampleRate)
		if err != nil {
			log.Error().Err(err).Float64("freq", f0).Msg("removing powerline noise failed, returning original recording")
			return rec, false
		}
		for _, i := range eegIdx {
			out.Data[i] = sos.FiltFilt(out.Data[i])
		}
	}
	return out, true
}

func powerlineFrequencies(rec *eeg.Recording) ([]float64, error) {
	idx := rec.Indices(eeg.EEG)
	if len(idx) == 0 {
		return nil, fmt.Errorf("%w: no EEG channels", eeg.ErrChannelNotFound)
	}
	var freqs, avg []float64
	for _, i := range idx {
		f, psd, err := dsp.Welch(rec.Data[i], rec.SampleRate, powerlineWelch)
		if err != nil {
			return nil, err
		}
		f, psd = dsp.Trim(f, psd, 4, 100)
		if avg == nil {
			freqs, avg = f, make([]float64, len(psd))
		}
		for k, v := range psd {
			avg[k] += v / float64(len(idx))
		}
	}

	max50, max60, rest := math.Inf(-1), math.Inf(-1), math.Inf(-1)
	for k, f := range freqs {
		switch {
		case f >= 48 && f <= 52:
			max50 = math.Max(max50, avg[k])
		case f >= 58 && f <= 62:
			max60 = math.Max(max60, avg[k])
		default:
			rest = math.Max(rest, avg[k])
		}
	}
	if math.IsInf(max50, -1) || math.IsInf(max60, -1) || math.IsInf(rest, -1) {
		return nil, fmt.Errorf("sampling rate %g Hz too low to inspect powerline bins", rec.SampleRate)
	}
	var notches []float64
	if max50 > rest {
		notches = append(notches, 50)
	}
	if max60 > rest {
		notches = append(notches, 60)
	}
	return notches, nil
}

// Resample changes the sampling rate of every channel using FFT resampling.
func Resample(rec *eeg.Recording, rate float64) (*eeg.Recording, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("invalid resampling rate %g", rate)
	}
	n := rec.Samples()
	num := int(math.Round(float64(n) * rate / rec.SampleRate))
	if num < 1 {
		return nil, fmt.Errorf("resampling %d samples to %g Hz leaves no data", n, rate)
	}
	out := rec.Clone()
	for i, row := range out.Data {
		out.Data[i] = dsp.Resample(row, num)
	}
	out.SampleRate = rate
	logger.Log().Debug().Int("from", n).Int("to", num).Float64("rate", rate).Msg("resampled recording")
	return out, nil
}
