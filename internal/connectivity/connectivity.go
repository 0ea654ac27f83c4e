package connectivity

import (
	"errors"

	"github.com/tedpearson/cerebro/internal/eeg"
	"github.com/tedpearson/cerebro/internal/logger"
)

// Result is the coherence summary stored with a QEEG analysis.
type Result struct {
	Coherence              PairCoherence      `json:"coherence"`
	MedianFrontalCoherence float64            `json:"median_frontal_coherence"`
	GraphMeasures          *Measures          `json:"graph_measures"`
}

// Analyze computes alpha coherence for all pairs and the graph built from it.
// Missing frontal sensors leave MedianFrontalCoherence at zero.
func Analyze(rec *eeg.Recording) (*Result, error) {
	coh, err := AllCoherence(rec)
	if err != nil {
		return nil, err
	}
	res := &Result{Coherence: coh}
	res.MedianFrontalCoherence, err = MedianFrontalCoherence(rec)
	if errors.Is(err, eeg.ErrChannelNotFound) {
		logger.Log().Warn().Err(err).Msg("skipping median frontal coherence")
	} else if err != nil {
		return nil, err
	}
	res.GraphMeasures, err = GraphMeasures(coh)
	if err != nil {
		return nil, err
	}
	return res, nil
}
