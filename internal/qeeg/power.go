package qeeg

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/tedpearson/cerebro/internal/dsp"
	"github.com/tedpearson/cerebro/internal/eeg"
	"github.com/tedpearson/cerebro/internal/params"
)

// BandPowers maps band (or ratio) name to channel to value.
type BandPowers map[string]map[string]float64

// present returns the 10-20 channels the spectrum carries, in 10-20 order.
func present(s *Spectrum) []string {
	var out []string
	for _, ch := range params.Channels1020 {
		if _, err := s.Channel(ch); err == nil {
			out = append(out, ch)
		}
	}
	return out
}

// ratio rounds a/b to the default precision; undefined ratios are zero.
func ratio(a, b float64) float64 {
	return params.Round(params.Finite(a/b), params.DefaultFloatPrecision)
}

// absolute sums the inclusive band and scales by the frequency resolution.
func absolute(freqs, psd []float64, band params.Band) float64 {
	if len(freqs) < 2 {
		return 0
	}
	_, p := dsp.Trim(freqs, psd, band.Low, band.High)
	return floats.Sum(p) * (freqs[1] - freqs[0])
}

func meanPower(freqs, psd []float64, band params.Band) float64 {
	_, p := dsp.Trim(freqs, psd, band.Low, band.High)
	if len(p) == 0 {
		return math.NaN()
	}
	return stat.Mean(p, nil)
}

// AbsolutePower is the power of each canonical band for every 10-20 channel.
func AbsolutePower(s *Spectrum) (BandPowers, error) {
	if s == nil {
		return nil, ErrNoSpectrum
	}
	out := make(BandPowers, len(params.SpectrumBands))
	for _, band := range params.SpectrumBands {
		out[band.Name] = make(map[string]float64)
		for _, ch := range present(s) {
			psd, _ := s.Channel(ch)
			out[band.Name][ch] = absolute(s.Freqs, psd, band)
		}
	}
	return out, nil
}

// RelativePower is each band's absolute power as a percentage of the power
// between the bottom of delta and the top of beta.
func RelativePower(s *Spectrum) (BandPowers, error) {
	if s == nil {
		return nil, ErrNoSpectrum
	}
	norm := params.Band{Low: params.DeltaBand.Low, High: params.BetaBand.High}
	out := make(BandPowers, len(params.SpectrumBands))
	for _, band := range params.SpectrumBands {
		out[band.Name] = make(map[string]float64)
	}
	for _, ch := range present(s) {
		psd, _ := s.Channel(ch)
		total := absolute(s.Freqs, psd, norm)
		for _, band := range params.SpectrumBands {
			out[band.Name][ch] = ratio(absolute(s.Freqs, psd, band)*100, total)
		}
	}
	return out, nil
}

// PowerRatios computes theta/beta and alpha/theta ratios of mean band power.
func PowerRatios(s *Spectrum) (BandPowers, error) {
	if s == nil {
		return nil, ErrNoSpectrum
	}
	out := BandPowers{
		"theta_beta_ratio":  make(map[string]float64),
		"alpha_theta_ratio": make(map[string]float64),
	}
	for _, ch := range present(s) {
		psd, _ := s.Channel(ch)
		theta := meanPower(s.Freqs, psd, params.ThetaBand)
		out["theta_beta_ratio"][ch] = ratio(theta, meanPower(s.Freqs, psd, params.BetaBand))
		out["alpha_theta_ratio"][ch] = ratio(meanPower(s.Freqs, psd, params.AlphaBand), theta)
	}
	return out, nil
}

type FrontalGeneratorResult struct {
	FrontalAlphaRelativePower   float64 `json:"frontal_alpha_relative_power"`
	PosteriorAlphaRelativePower float64 `json:"posterior_alpha_relative_power"`
	Ratio                       float64 `json:"frontal_posterior_relative_power_ratio"`
	FrontalGenerator            bool    `json:"frontal_generator"`
}

// FrontalGenerator compares mean frontal and posterior alpha relative power.
// Alpha is considered frontally generated when the ratio reaches
// params.FrontalGeneratorThreshold.
func FrontalGenerator(relative BandPowers) (FrontalGeneratorResult, error) {
	var r FrontalGeneratorResult
	alpha, ok := relative[params.AlphaBand.Name]
	if !ok {
		return r, fmt.Errorf("relative alpha power: %w", ErrNoSpectrum)
	}
	mean := func(sensors []string) (float64, error) {
		values := make([]float64, 0, len(sensors))
		for _, s := range sensors {
			v, ok := alpha[s]
			if !ok {
				return 0, fmt.Errorf("%w: %s", eeg.ErrChannelNotFound, s)
			}
			values = append(values, v)
		}
		return stat.Mean(values, nil), nil
	}
	var err error
	if r.FrontalAlphaRelativePower, err = mean(params.StableFrontalSensors); err != nil {
		return r, err
	}
	if r.PosteriorAlphaRelativePower, err = mean(params.StablePosteriorSensors); err != nil {
		return r, err
	}
	r.Ratio = ratio(r.FrontalAlphaRelativePower, r.PosteriorAlphaRelativePower)
	r.FrontalGenerator = r.Ratio >= params.FrontalGeneratorThreshold
	return r, nil
}

// LowVoltage reports the largest 4-30 Hz magnitude across channels and
// whether it stays under params.LowVoltageThreshold.
func LowVoltage(magnitude *Spectrum) (maxAmp float64, low bool, err error) {
	if magnitude == nil {
		return 0, false, ErrNoSpectrum
	}
	maxAmp = math.Inf(-1)
	for _, values := range magnitude.Values {
		_, v := dsp.Trim(magnitude.Freqs, values, params.ThetaBand.Low, params.BetaBand.High)
		for _, a := range v {
			maxAmp = math.Max(maxAmp, a)
		}
	}
	if math.IsInf(maxAmp, -1) {
		return 0, false, fmt.Errorf("%w: no 4-30 Hz bins", ErrNoSpectrum)
	}
	return maxAmp, maxAmp < params.LowVoltageThreshold, nil
}

// RegionalPSD averages the stable frontal, central and posterior sensors.
// Regions with none of their sensors present are omitted.
func RegionalPSD(s *Spectrum) (map[string][]float64, error) {
	if s == nil {
		return nil, ErrNoSpectrum
	}
	regions := map[string][]string{
		"frontal":   params.StableFrontalSensors,
		"central":   params.StableCentralSensors,
		"posterior": params.StablePosteriorSensors,
	}
	out := make(map[string][]float64, len(regions))
	for region, sensors := range regions {
		avg := make([]float64, len(s.Freqs))
		n := 0
		for _, sensor := range sensors {
			psd, err := s.Channel(sensor)
			if err != nil {
				continue
			}
			n++
			for k, v := range psd {
				avg[k] += v
			}
		}
		if n == 0 {
			continue
		}
		for k := range avg {
			avg[k] /= float64(n)
		}
		out[region] = avg
	}
	return out, nil
}
