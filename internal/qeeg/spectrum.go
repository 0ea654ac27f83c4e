// Package qeeg computes quantitative EEG metrics from power spectra: band
// powers, ratios, regional summaries and alpha peak parameters.
package qeeg

import (
	"errors"
	"fmt"
	"math"

	"github.com/tedpearson/cerebro/internal/dsp"
	"github.com/tedpearson/cerebro/internal/eeg"
	"github.com/tedpearson/cerebro/internal/params"
)

var ErrNoSpectrum = errors.New("power spectrum not computed")

// PSDOptions is the Welch configuration used for every QEEG spectrum.
var PSDOptions = dsp.WelchOptions{SegmentLength: 512, Overlap: 256, Window: dsp.Hamming}

// Spectrum holds one spectrum per channel over a shared frequency axis.
// Values are V^2/Hz for power spectra and uV/sqrt(Hz) for magnitude spectra.
type Spectrum struct {
	Freqs    []float64
	Channels []string
	Values   [][]float64
}

// ComputePSD estimates the power spectral density of every EEG channel
// between 0 Hz and the Nyquist limit.
func ComputePSD(rec *eeg.Recording) (*Spectrum, error) {
	idx := rec.Indices(eeg.EEG)
	if len(idx) == 0 {
		return nil, fmt.Errorf("%w: no EEG channels", eeg.ErrChannelNotFound)
	}
	s := &Spectrum{}
	for _, i := range idx {
		f, psd, err := dsp.Welch(rec.Data[i], rec.SampleRate, PSDOptions)
		if err != nil {
			return nil, fmt.Errorf("PSD of %s: %w", rec.Channels[i].Name, err)
		}
		f, psd = dsp.Trim(f, psd, 0, params.NyquistLimit)
		s.Freqs = f
		s.Channels = append(s.Channels, rec.Channels[i].Name)
		s.Values = append(s.Values, psd)
	}
	return s, nil
}

// Channel returns the spectrum of one channel.
func (s *Spectrum) Channel(name string) ([]float64, error) {
	for i, ch := range s.Channels {
		if ch == name {
			return s.Values[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", eeg.ErrChannelNotFound, name)
}

// Table lays the spectrum out as columns keyed by channel, plus "freq".
func (s *Spectrum) Table() map[string][]float64 {
	out := make(map[string][]float64, len(s.Channels)+1)
	out["freq"] = s.Freqs
	for i, ch := range s.Channels {
		out[ch] = s.Values[i]
	}
	return out
}

// Magnitude converts a power spectrum to microvolt amplitude, restricted to
// the 10-20 channels.
func Magnitude(psd *Spectrum) (*Spectrum, error) {
	if psd == nil {
		return nil, ErrNoSpectrum
	}
	out := &Spectrum{Freqs: psd.Freqs}
	for _, ch := range params.Channels1020 {
		values, err := psd.Channel(ch)
		if err != nil {
			continue
		}
		mag := make([]float64, len(values))
		for k, v := range values {
			mag[k] = math.Sqrt(v * 1e12)
		}
		out.Channels = append(out.Channels, ch)
		out.Values = append(out.Values, mag)
	}
	if len(out.Channels) == 0 {
		return nil, fmt.Errorf("%w: no 10-20 channels in spectrum", eeg.ErrChannelNotFound)
	}
	return out, nil
}

// BandMask selects frequencies with band.Low < f <= band.High.
func BandMask(freqs []float64, band params.Band) []bool {
	mask := make([]bool, len(freqs))
	for i, f := range freqs {
		mask[i] = f > band.Low && f <= band.High
	}
	return mask
}
