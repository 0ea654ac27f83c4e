// Package cerebro ties parsing, preprocessing and analysis of a single EEG
// recording together and records where every result came from.
package cerebro

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/tedpearson/cerebro/internal/burst"
	"github.com/tedpearson/cerebro/internal/complexity"
	"github.com/tedpearson/cerebro/internal/connectivity"
	"github.com/tedpearson/cerebro/internal/eeg"
	"github.com/tedpearson/cerebro/internal/heart"
	"github.com/tedpearson/cerebro/internal/logger"
	"github.com/tedpearson/cerebro/internal/parser"
	"github.com/tedpearson/cerebro/internal/preprocess"
	"github.com/tedpearson/cerebro/internal/qeeg"
	"github.com/tedpearson/cerebro/internal/writer"
)

// Version is stamped into every analysis. main overrides it from ldflags.
var Version = "development"

var (
	ErrNoData          = errors.New("no raw or processed EEG data to analyze")
	ErrNotPreprocessed = errors.New("recording has not been preprocessed")
)

// CoherenceResult gives the embedded coherence summary its own field name.
type CoherenceResult = connectivity.Result

// Analysis is the persisted result of a session. QEEG and coherence results
// are flattened into the top level of the JSON document.
type Analysis struct {
	ID            string  `json:"id"`
	Filepath      string  `json:"filepath"`
	Source        string  `json:"source"`
	Subject       string  `json:"subject,omitempty"`
	MeasuringDate string  `json:"measuring_date"`
	ProcessedDate string  `json:"processed_date"`
	Version       string  `json:"version"`
	SamplingRate  float64 `json:"sampling_rate"`

	PowerlineNoiseDetected *bool `json:"powerline_noise_detected,omitempty"`
	ECGNoiseDetected       *bool `json:"ecg_noise_detected,omitempty"`

	*qeeg.Result
	*CoherenceResult

	Bursts               []burst.Row                  `json:"bursts,omitempty"`
	Complexity           []complexity.Row             `json:"complexity,omitempty"`
	SpectralConnectivity *connectivity.SpectralResult `json:"spectral_connectivity,omitempty"`
	TransferEntropy      []connectivity.TransferRow   `json:"transfer_entropy,omitempty"`
	HeartRate            *heart.Result                `json:"heart_rate,omitempty"`
}

// Session holds one recording through loading, preprocessing and analysis.
type Session struct {
	Raw      *eeg.Recording
	Filtered *eeg.Recording
	Analysis Analysis

	now func() time.Time
}

func NewSession() *Session {
	return &Session{now: time.Now}
}

// Load reads path with the parser registered for source, records provenance
// and re-references the EEG channels to their average.
func (s *Session) Load(path, source string) (*eeg.Recording, error) {
	p, err := parser.ForSource(source)
	if err != nil {
		return nil, err
	}
	rec, err := p.ReadEEG(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := rec.SetAverageReference(); err != nil {
		return nil, err
	}
	s.Raw = rec
	s.Filtered = nil
	s.Analysis = Analysis{
		ID:            uuid.New().String(),
		Filepath:      filepath.Base(path),
		Source:        source,
		Subject:       rec.SubjectID,
		ProcessedDate: s.now().Format(time.RFC3339),
		Version:       Version,
		SamplingRate:  rec.SampleRate,
	}
	if !rec.MeasDate.IsZero() {
		s.Analysis.MeasuringDate = rec.MeasDate.Format(time.RFC3339)
	}
	logger.Log().Info().Str("file", s.Analysis.Filepath).Str("source", source).
		Int("channels", len(rec.Channels)).Dur("duration", rec.Duration()).Msg("recording loaded")
	return rec, nil
}

// Preprocess cleans a copy of the raw recording. The raw recording is kept.
func (s *Session) Preprocess(o preprocess.Options) (*eeg.Recording, error) {
	if s.Raw == nil {
		return nil, ErrNoData
	}
	filtered, report, err := preprocess.Run(s.Raw, o)
	if err != nil {
		return nil, err
	}
	s.Filtered = filtered
	s.Analysis.PowerlineNoiseDetected = &report.PowerlineNoiseDetected
	s.Analysis.ECGNoiseDetected = &report.ECGNoiseDetected
	s.Analysis.SamplingRate = filtered.SampleRate
	return filtered, nil
}

// Data returns the preprocessed recording when there is one, else the raw one.
func (s *Session) Data() (*eeg.Recording, error) {
	switch {
	case s.Filtered != nil:
		return s.Filtered, nil
	case s.Raw != nil:
		return s.Raw, nil
	}
	return nil, ErrNoData
}

// Analyze runs the spectral QEEG metrics and alpha coherence.
func (s *Session) Analyze() (*Analysis, error) {
	rec, err := s.Data()
	if err != nil {
		return nil, err
	}
	res, _, err := qeeg.Analyze(rec)
	if err != nil {
		return nil, fmt.Errorf("qeeg: %w", err)
	}
	s.Analysis.Result = res
	coh, err := connectivity.Analyze(rec)
	switch {
	case errors.Is(err, eeg.ErrChannelNotFound):
		logger.Log().Warn().Err(err).Msg("skipping coherence")
	case err != nil:
		return nil, fmt.Errorf("coherence: %w", err)
	}
	s.Analysis.CoherenceResult = coh
	return &s.Analysis, nil
}

func (s *Session) WriteJSON(path string) error {
	return writer.WriteJSON(path, &s.Analysis)
}
