// Package connectivity measures functional coupling between EEG channels:
// pairwise coherence, graph centrality over the coherence network, spectral
// phase-based connectivity and transfer entropy.
package connectivity

import (
	"fmt"
	"math/cmplx"

	"gonum.org/v1/gonum/stat"

	"github.com/tedpearson/cerebro/internal/dsp"
	"github.com/tedpearson/cerebro/internal/eeg"
	"github.com/tedpearson/cerebro/internal/params"
)

// CoherenceOptions is the Welch configuration for magnitude squared coherence.
var CoherenceOptions = dsp.WelchOptions{SegmentLength: 1024, Overlap: 512, Window: dsp.Hann}

// Pair is an undirected channel pair in channel order. Channel names may
// themselves contain "-", so pairs are never parsed back from their text.
type Pair [2]string

// String joins the names with "-", the key used in result documents.
func (p Pair) String() string {
	return p[0] + "-" + p[1]
}

func (p Pair) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// PairCoherence maps channel pairs to their band coherence.
type PairCoherence map[Pair]float64

// Keyed returns the coherences keyed by Pair.String.
func (pc PairCoherence) Keyed() map[string]float64 {
	out := make(map[string]float64, len(pc))
	for p, v := range pc {
		out[p.String()] = v
	}
	return out
}

func segmentAll(rec *eeg.Recording, idx []int, o dsp.WelchOptions) ([]*dsp.Segments, error) {
	out := make([]*dsp.Segments, len(idx))
	for j, i := range idx {
		s, err := dsp.SegmentSpectra(rec.Data[i], rec.SampleRate, o)
		if err != nil {
			return nil, fmt.Errorf("spectra of %s: %w", rec.Channels[i].Name, err)
		}
		out[j] = s
	}
	return out, nil
}

// bandCoherence averages the magnitude squared coherence of two segmented
// signals over the inclusive band.
func bandCoherence(x, y *dsp.Segments, pxx, pyy []float64, band params.Band) float64 {
	pxy := dsp.Cross(x, y)
	var values []float64
	for k, f := range x.Freqs {
		if f < band.Low || f > band.High {
			continue
		}
		den := pxx[k] * pyy[k]
		if den == 0 {
			values = append(values, 0)
			continue
		}
		m := cmplx.Abs(pxy[k])
		values = append(values, m*m/den)
	}
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// Coherence computes the mean band coherence for every pair of the given
// channels.
func Coherence(rec *eeg.Recording, idx []int, band params.Band) (PairCoherence, error) {
	if len(idx) < 2 {
		return nil, fmt.Errorf("%w: coherence needs at least two channels", eeg.ErrChannelNotFound)
	}
	segs, err := segmentAll(rec, idx, CoherenceOptions)
	if err != nil {
		return nil, err
	}
	power := make([][]float64, len(segs))
	for i, s := range segs {
		power[i] = s.Power()
	}
	out := make(PairCoherence, len(idx)*(len(idx)-1)/2)
	for a := 0; a < len(idx); a++ {
		for b := a + 1; b < len(idx); b++ {
			out[Pair{rec.Channels[idx[a]].Name, rec.Channels[idx[b]].Name}] = bandCoherence(segs[a], segs[b], power[a], power[b], band)
		}
	}
	return out, nil
}

// AllCoherence is the alpha band coherence of every EEG channel pair.
func AllCoherence(rec *eeg.Recording) (PairCoherence, error) {
	return Coherence(rec, rec.Indices(eeg.EEG), params.AlphaBand)
}

// MedianFrontalCoherence is the median alpha coherence among the stable
// frontal sensors.
func MedianFrontalCoherence(rec *eeg.Recording) (float64, error) {
	var idx []int
	var missing []string
	for _, ch := range params.StableFrontalSensors {
		i := rec.Index(ch)
		if i < 0 {
			missing = append(missing, ch)
			continue
		}
		idx = append(idx, i)
	}
	if len(missing) > 0 {
		return 0, &eeg.MissingChannelsError{Missing: missing}
	}
	pairs, err := Coherence(rec, idx, params.AlphaBand)
	if err != nil {
		return 0, err
	}
	values := make([]float64, 0, len(pairs))
	for _, v := range pairs {
		values = append(values, v)
	}
	return dsp.Median(values), nil
}
