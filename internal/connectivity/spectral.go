package connectivity

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/tedpearson/cerebro/internal/dsp"
	"github.com/tedpearson/cerebro/internal/eeg"
	"github.com/tedpearson/cerebro/internal/logger"
	"github.com/tedpearson/cerebro/internal/params"
)

// SpectralOptions segments the data for spectral connectivity. Each segment
// plays the role of an epoch.
var SpectralOptions = dsp.WelchOptions{SegmentLength: 256, Overlap: 128, Window: dsp.Hann}

// Matrix is a square channel-by-channel table.
type Matrix [][]float64

func newMatrix(n int) Matrix {
	m := make(Matrix, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	return m
}

// BandConnectivity holds the connectivity matrices of one frequency band.
// WPLI, Coherence and PLV are symmetric. PSI is antisymmetric: a positive
// PSI[i][j] means channel i leads channel j.
type BandConnectivity struct {
	WPLI      Matrix `json:"wpli"`
	Coherence Matrix `json:"coherence"`
	PLV       Matrix `json:"plv"`
	PSI       Matrix `json:"psi"`
}

type SpectralResult struct {
	Channels []string                    `json:"channels"`
	Bands    map[string]BandConnectivity `json:"bands"`
}

// Spectral computes weighted phase lag index, coherency magnitude, phase
// locking value and phase slope index between all EEG channels for each band.
func Spectral(rec *eeg.Recording, bands []params.Band) (*SpectralResult, error) {
	idx := rec.Indices(eeg.EEG)
	if len(idx) < 2 {
		return nil, fmt.Errorf("%w: spectral connectivity needs at least two channels", eeg.ErrChannelNotFound)
	}
	segs, err := segmentAll(rec, idx, SpectralOptions)
	if err != nil {
		return nil, err
	}
	res := &SpectralResult{Bands: make(map[string]BandConnectivity, len(bands))}
	for _, i := range idx {
		res.Channels = append(res.Channels, rec.Channels[i].Name)
	}

	n := len(idx)
	freqs := segs[0].Freqs
	for _, band := range bands {
		var bins []int
		for k, f := range freqs {
			if f >= band.Low && f <= band.High {
				bins = append(bins, k)
			}
		}
		bc := BandConnectivity{WPLI: newMatrix(n), Coherence: newMatrix(n), PLV: newMatrix(n), PSI: newMatrix(n)}
		if len(bins) == 0 {
			logger.Log().Warn().Str("band", band.Name).Msg("no frequency bins in band")
			res.Bands[band.Name] = bc
			continue
		}
		for a := 0; a < n; a++ {
			bc.WPLI[a][a], bc.Coherence[a][a], bc.PLV[a][a] = 1, 1, 1
			for b := a + 1; b < n; b++ {
				p := pairSpectra(segs[a], segs[b], bins)
				bc.WPLI[a][b], bc.WPLI[b][a] = p.wpli, p.wpli
				bc.Coherence[a][b], bc.Coherence[b][a] = p.coh, p.coh
				bc.PLV[a][b], bc.PLV[b][a] = p.plv, p.plv
				bc.PSI[a][b], bc.PSI[b][a] = p.psi, -p.psi
			}
		}
		res.Bands[band.Name] = bc
	}
	return res, nil
}

type pairMeasures struct {
	wpli, coh, plv, psi float64
}

// pairSpectra evaluates the measures from per-segment cross spectra
// X*conj(Y), averaging over the band bins. PSI sums the phase slope of the
// coherency across adjacent bins.
func pairSpectra(x, y *dsp.Segments, bins []int) pairMeasures {
	var out pairMeasures
	segs := min(len(x.Coeffs), len(y.Coeffs))
	coherency := make([]complex128, len(bins))
	for j, k := range bins {
		var sxy complex128
		var sxx, syy, imSum, imAbs float64
		var phase complex128
		for s := 0; s < segs; s++ {
			cx, cy := x.Coeffs[s][k], y.Coeffs[s][k]
			c := cx * cmplx.Conj(cy)
			sxy += c
			sxx += real(cx * cmplx.Conj(cx))
			syy += real(cy * cmplx.Conj(cy))
			imSum += imag(c)
			imAbs += math.Abs(imag(c))
			if m := cmplx.Abs(c); m > 0 {
				phase += c / complex(m, 0)
			}
		}
		if imAbs > 0 {
			out.wpli += math.Abs(imSum) / imAbs
		}
		if den := math.Sqrt(sxx * syy); den > 0 {
			coherency[j] = sxy / complex(den, 0)
			out.coh += cmplx.Abs(coherency[j])
		}
		out.plv += cmplx.Abs(phase) / float64(segs)
	}
	nb := float64(len(bins))
	out.wpli /= nb
	out.coh /= nb
	out.plv /= nb

	var slope complex128
	for j := 0; j+1 < len(coherency); j++ {
		slope += cmplx.Conj(coherency[j]) * coherency[j+1]
	}
	out.psi = imag(slope)
	return out
}
