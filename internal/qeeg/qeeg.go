package qeeg

import (
	"github.com/tedpearson/cerebro/internal/eeg"
	"github.com/tedpearson/cerebro/internal/logger"
)

// Result holds the spectral QEEG metrics of one recording. The frontal
// generator fields sit at the top level of its JSON encoding.
type Result struct {
	PowerSpectralDensity     map[string][]float64 `json:"power_spectral_density"`
	MagnitudeSpectralDensity map[string][]float64 `json:"magnitude_spectral_density"`
	AbsolutePower            BandPowers           `json:"absolute_power"`
	RelativePower            BandPowers           `json:"relative_power"`
	PowerRatios              BandPowers           `json:"power_ratios"`
	FrontalGeneratorResult
	MaxAmpMicrovolts float64              `json:"max_amp_microvolts"`
	LowVoltage       bool                 `json:"low_voltage"`
	RegionalPSD      map[string][]float64 `json:"regional_psd"`
	Peaks            []Peak               `json:"peaks"`
}

// Analyze computes the full set of spectral QEEG metrics for rec. The
// returned spectrum can be reused by callers that need the raw PSD.
func Analyze(rec *eeg.Recording) (*Result, *Spectrum, error) {
	log := logger.Log()
	psd, err := ComputePSD(rec)
	if err != nil {
		return nil, nil, err
	}
	mag, err := Magnitude(psd)
	if err != nil {
		return nil, nil, err
	}
	r := &Result{
		PowerSpectralDensity:     psd.Table(),
		MagnitudeSpectralDensity: mag.Table(),
	}
	if r.AbsolutePower, err = AbsolutePower(psd); err != nil {
		return nil, nil, err
	}
	if r.RelativePower, err = RelativePower(psd); err != nil {
		return nil, nil, err
	}
	if r.PowerRatios, err = PowerRatios(psd); err != nil {
		return nil, nil, err
	}
	if r.FrontalGeneratorResult, err = FrontalGenerator(r.RelativePower); err != nil {
		log.Warn().Err(err).Msg("skipping frontal generator estimate")
	}
	if r.MaxAmpMicrovolts, r.LowVoltage, err = LowVoltage(mag); err != nil {
		return nil, nil, err
	}
	if r.RegionalPSD, err = RegionalPSD(psd); err != nil {
		return nil, nil, err
	}
	if r.Peaks, err = DetectPeaks(psd, DefaultPeakOptions()); err != nil {
		return nil, nil, err
	}
	log.Debug().Int("channels", len(psd.Channels)).Int("peaks", len(r.Peaks)).
		Float64("max_amp_uv", r.MaxAmpMicrovolts).Msg("QEEG analysis complete")
	return r, psd, nil
}
