package cerebro

import (
	"context"
	"errors"
	"fmt"

	"github.com/tedpearson/cerebro/internal/burst"
	"github.com/tedpearson/cerebro/internal/complexity"
	"github.com/tedpearson/cerebro/internal/connectivity"
	"github.com/tedpearson/cerebro/internal/heart"
	"github.com/tedpearson/cerebro/internal/logger"
	"github.com/tedpearson/cerebro/internal/params"
	"github.com/tedpearson/cerebro/internal/preprocess"
	"github.com/tedpearson/cerebro/internal/writer"
)

// Toggles selects the analyses RunFullAnalysis performs.
type Toggles struct {
	QEEG         bool `yaml:"qeeg"`
	Bursts       bool `yaml:"bursts"`
	Complexity   bool `yaml:"complexity"`
	Connectivity bool `yaml:"connectivity"`
	Heart        bool `yaml:"heart"`
}

func AllAnalyses() Toggles {
	return Toggles{QEEG: true, Bursts: true, Complexity: true, Connectivity: true, Heart: true}
}

// Pipeline runs every analysis over a preprocessed session.
type Pipeline struct {
	Session          *Session
	Bursts           burst.Options
	Heart            heart.Options
	ComplexityWindow int
}

func NewPipeline() *Pipeline {
	return &Pipeline{
		Session:          NewSession(),
		Bursts:           burst.DefaultOptions(),
		Heart:            heart.DefaultOptions(),
		ComplexityWindow: complexity.DefaultWindow,
	}
}

// RunFullAnalysis requires a preprocessed session. The context is checked
// between analyses.
func (p *Pipeline) RunFullAnalysis(ctx context.Context, t Toggles) (*Analysis, error) {
	s := p.Session
	if s.Filtered == nil {
		return nil, ErrNotPreprocessed
	}
	rec := s.Filtered
	log := logger.Log()

	steps := []struct {
		name    string
		enabled bool
		run     func() error
	}{
		{"qeeg", t.QEEG, func() error {
			_, err := s.Analyze()
			return err
		}},
		{"bursts", t.Bursts, func() (err error) {
			s.Analysis.Bursts, err = burst.Detect(rec, p.Bursts)
			return err
		}},
		{"complexity", t.Complexity, func() (err error) {
			s.Analysis.Complexity, err = complexity.ComputeAll(rec, p.ComplexityWindow)
			return err
		}},
		{"connectivity", t.Connectivity, func() (err error) {
			if s.Analysis.SpectralConnectivity, err = connectivity.Spectral(rec, params.ConnectivityBands); err != nil {
				return err
			}
			s.Analysis.TransferEntropy, err = connectivity.TransferEntropyAll(rec, connectivity.DefaultLag, connectivity.DefaultBins)
			return err
		}},
		{"heart", t.Heart, func() error {
			res, err := heart.ComputeAll(rec, "", p.Heart)
			if errors.Is(err, heart.ErrNoECGChannel) {
				log.Info().Msg("no ECG channel, skipping heart rate")
				return nil
			}
			s.Analysis.HeartRate = res
			return err
		}},
	}
	for _, step := range steps {
		if !step.enabled {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		log.Debug().Str("analysis", step.name).Msg("running")
		if err := step.run(); err != nil {
			return nil, fmt.Errorf("%s: %w", step.name, err)
		}
	}
	return &s.Analysis, nil
}

type Summary struct {
	QEEG         *QEEGSummary         `json:"qeeg,omitempty"`
	Bursts       *BurstSummary        `json:"bursts,omitempty"`
	Complexity   *ComplexitySummary   `json:"complexity,omitempty"`
	Connectivity *ConnectivitySummary `json:"connectivity,omitempty"`
	Heart        *HeartSummary        `json:"heart_rate,omitempty"`
}

type QEEGSummary struct {
	NChannels int      `json:"n_channels"`
	Bands     []string `json:"bands"`
}

type BurstSummary struct {
	TotalBursts      int     `json:"total_bursts"`
	AvgBurstFraction float64 `json:"avg_burst_fraction"`
}

type ComplexitySummary struct {
	NChannels int      `json:"n_channels"`
	Features  []string `json:"features"`
}

type ConnectivitySummary struct {
	Bands   []string `json:"bands"`
	Metrics []string `json:"metrics"`
}

type HeartSummary struct {
	HeartRateBPM float64 `json:"heart_rate_bpm"`
	RMSSD        float64 `json:"rmssd_ms"`
}

var complexityFeatures = []string{
	"sample_entropy", "approximate_entropy", "hurst_exponent", "fractal_dimension",
	"lempel_ziv_complexity", "dfa_alpha", "permutation_entropy",
}

// Summary digests whichever analyses have run.
func (p *Pipeline) Summary() Summary {
	a := &p.Session.Analysis
	var out Summary
	if a.Result != nil {
		q := &QEEGSummary{}
		for _, b := range params.SpectrumBands {
			if _, ok := a.AbsolutePower[b.Name]; ok {
				q.Bands = append(q.Bands, b.Name)
			}
		}
		if len(q.Bands) > 0 {
			q.NChannels = len(a.AbsolutePower[q.Bands[0]])
		}
		out.QEEG = q
	}
	if a.Bursts != nil {
		b := &BurstSummary{}
		var sum float64
		for _, r := range a.Bursts {
			b.TotalBursts += r.NBursts
			sum += r.BurstFraction
		}
		if len(a.Bursts) > 0 {
			b.AvgBurstFraction = sum / float64(len(a.Bursts))
		}
		out.Bursts = b
	}
	if a.Complexity != nil {
		out.Complexity = &ComplexitySummary{NChannels: len(a.Complexity), Features: complexityFeatures}
	}
	if a.SpectralConnectivity != nil {
		c := &ConnectivitySummary{Metrics: []string{"wpli", "coherence", "plv", "psi"}}
		for _, b := range params.ConnectivityBands {
			if _, ok := a.SpectralConnectivity.Bands[b.Name]; ok {
				c.Bands = append(c.Bands, b.Name)
			}
		}
		out.Connectivity = c
	}
	if a.HeartRate != nil {
		out.Heart = &HeartSummary{HeartRateBPM: a.HeartRate.HeartRateBPM, RMSSD: a.HeartRate.RMSSD}
	}
	return out
}

// SaveResults writes the analysis as JSON, compressed by extension.
func (p *Pipeline) SaveResults(path string) error {
	return writer.WriteJSON(path, &p.Session.Analysis)
}

// RunOptions configures RunPipeline.
type RunOptions struct {
	Source     string
	Preprocess preprocess.Options
	Analyses   Toggles
	// Heart overrides the default R-peak detection when set.
	Heart heart.Options
	// Output, when set, receives the JSON results.
	Output string
	// HDF5, when set, receives the numeric results.
	HDF5 string
}

// RunPipeline loads, preprocesses and analyses one file.
func RunPipeline(ctx context.Context, path string, o RunOptions) (*Pipeline, error) {
	p := NewPipeline()
	if o.Heart != (heart.Options{}) {
		p.Heart = o.Heart
	}
	if _, err := p.Session.Load(path, o.Source); err != nil {
		return nil, err
	}
	if _, err := p.Session.Preprocess(o.Preprocess); err != nil {
		return nil, fmt.Errorf("preprocess: %w", err)
	}
	if _, err := p.RunFullAnalysis(ctx, o.Analyses); err != nil {
		return nil, err
	}
	if o.Output != "" {
		if err := p.SaveResults(o.Output); err != nil {
			return nil, err
		}
	}
	if o.HDF5 != "" {
		if err := p.Session.WriteHDF5(o.HDF5); err != nil {
			return nil, fmt.Errorf("hdf5: %w", err)
		}
	}
	return p, nil
}
