package cerebro

import (
	"github.com/tedpearson/cerebro/internal/hdf5io"
	"github.com/tedpearson/cerebro/internal/qeeg"
)

func bandTree(bp qeeg.BandPowers) map[string]any {
	out := make(map[string]any, len(bp))
	for band, channels := range bp {
		out[band] = channels
	}
	return out
}

// numericTree collects the numeric parts of the analysis. Provenance strings
// stay in the JSON document.
func (a *Analysis) numericTree() map[string]any {
	tree := map[string]any{"sampling_rate": a.SamplingRate}
	if a.PowerlineNoiseDetected != nil {
		tree["powerline_noise_detected"] = *a.PowerlineNoiseDetected
	}
	if a.ECGNoiseDetected != nil {
		tree["ecg_noise_detected"] = *a.ECGNoiseDetected
	}
	if r := a.Result; r != nil {
		tree["power_spectral_density"] = r.PowerSpectralDensity
		tree["magnitude_spectral_density"] = r.MagnitudeSpectralDensity
		tree["absolute_power"] = bandTree(r.AbsolutePower)
		tree["relative_power"] = bandTree(r.RelativePower)
		tree["power_ratios"] = bandTree(r.PowerRatios)
		tree["regional_psd"] = r.RegionalPSD
		tree["max_amp_microvolts"] = r.MaxAmpMicrovolts
		tree["low_voltage"] = r.LowVoltage
		fg := r.FrontalGeneratorResult
		tree["frontal_alpha_relative_power"] = fg.FrontalAlphaRelativePower
		tree["posterior_alpha_relative_power"] = fg.PosteriorAlphaRelativePower
		tree["frontal_posterior_relative_power_ratio"] = fg.Ratio
		tree["frontal_generator"] = fg.FrontalGenerator
		// one row of freq, power, bandwidth and q factor per peak
		peaks := map[string][][]float64{}
		for _, p := range r.Peaks {
			peaks[p.Channel] = append(peaks[p.Channel], []float64{p.Freq, p.Power, p.Bandwidth, p.QFactor})
		}
		pt := make(map[string]any, len(peaks))
		for ch, rows := range peaks {
			pt[ch] = rows
		}
		tree["peaks"] = pt
	}
	if c := a.CoherenceResult; c != nil {
		tree["coherence"] = c.Coherence.Keyed()
		tree["median_frontal_coherence"] = c.MedianFrontalCoherence
		if g := c.GraphMeasures; g != nil {
			tree["graph_measures"] = map[string]any{
				"degree":                 g.Degree,
				"betweenness_centrality": g.Betweenness,
				"closeness_centrality":   g.Closeness,
			}
		}
	}
	if len(a.Bursts) > 0 {
		bursts := map[string]any{}
		for _, r := range a.Bursts {
			bursts[r.Channel] = map[string]float64{
				"n_bursts":          float64(r.NBursts),
				"burst_fraction":    r.BurstFraction,
				"n_cycles":          r.NCycles,
				"mean_duration":     r.MeanDuration,
				"alpha_power_ratio": r.AlphaPowerRatio,
			}
		}
		tree["bursts"] = bursts
	}
	if len(a.Complexity) > 0 {
		rows := map[string]any{}
		for _, r := range a.Complexity {
			rows[r.Channel] = map[string]float64{
				"sample_entropy":        r.SampleEntropy,
				"approximate_entropy":   r.ApproximateEntropy,
				"hurst_exponent":        r.HurstExponent,
				"fractal_dimension":     r.FractalDimension,
				"lempel_ziv_complexity": r.LempelZivComplexity,
				"dfa_alpha":             r.DFAAlpha,
				"permutation_entropy":   r.PermutationEntropy,
			}
		}
		tree["complexity"] = rows
	}
	if sc := a.SpectralConnectivity; sc != nil {
		bands := map[string]any{}
		for name, bc := range sc.Bands {
			bands[name] = map[string]any{
				"wpli":      [][]float64(bc.WPLI),
				"coherence": [][]float64(bc.Coherence),
				"plv":       [][]float64(bc.PLV),
				"psi":       [][]float64(bc.PSI),
			}
		}
		tree["spectral_connectivity"] = bands
	}
	if len(a.TransferEntropy) > 0 {
		te := map[string]float64{}
		for _, r := range a.TransferEntropy {
			te[r.Source+"->"+r.Target] = r.TransferEntropy
		}
		tree["transfer_entropy"] = te
	}
	if h := a.HeartRate; h != nil {
		tree["heart_rate"] = map[string]float64{
			"heart_rate_bpm": h.HeartRateBPM,
			"rmssd_ms":       h.RMSSD,
			"sdnn_ms":        h.SDNN,
			"pnn50_percent":  h.PNN50,
			"pnn20_percent":  h.PNN20,
			"lf_power":       h.LFPower,
			"hf_power":       h.HFPower,
			"lf_hf_ratio":    h.LFHFRatio,
			"n_rr_intervals": float64(h.NRRIntervals),
		}
	}
	return tree
}

// WriteHDF5 stores the numeric results in an HDF5 file with one group per
// result section.
func (s *Session) WriteHDF5(path string) error {
	datasets, err := hdf5io.Flatten(s.Analysis.numericTree())
	if err != nil {
		return err
	}
	return hdf5io.Write(path, datasets)
}
