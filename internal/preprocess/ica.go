package preprocess

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/tedpearson/cerebro/internal/eeg"
	"github.com/tedpearson/cerebro/internal/logger"
	"github.com/tedpearson/cerebro/internal/params"
)

// ECGOptions configures ICA-based cardiac artifact removal.
type ECGOptions struct {
	NComponents int     `yaml:"n_components"`
	Seed        int64   `yaml:"random_state"`
	Threshold   float64 `yaml:"threshold"`
	MaxIter     int     `yaml:"max_iter"`
	Tolerance   float64 `yaml:"tolerance"`
}

func DefaultECGOptions() ECGOptions {
	return ECGOptions{
		NComponents: 15,
		Seed:        7,
		Threshold:   params.ECGArtifactICADetectionThreshold,
		MaxIter:     200,
		Tolerance:   1e-4,
	}
}

var errNotConverged = errors.New("ICA did not converge")

// RemoveECG fits FastICA on a 1-30 Hz copy of the EEG channels and projects
// out every component whose absolute correlation with the identically
// filtered ECG channel reaches the threshold. Failures are logged and the
// input is returned unchanged.
func RemoveECG(rec *eeg.Recording, o ECGOptions) (*eeg.Recording, bool) {
	log := logger.Log()
	if len(rec.Indices(eeg.ECG)) == 0 {
		log.Info().Str("file", rec.Filename).Msg("no ECG channel, skipping cardiac artifact removal")
		return rec, false
	}
	out, bad, err := removeECG(rec, o)
	if err != nil {
		log.Error().Err(err).Msg("removing ECG artifacts failed, returning original recording")
		return rec, false
	}
	if len(bad) == 0 {
		log.Info().Msg("no ECG components detected")
		return rec, false
	}
	log.Info().Ints("components", bad).Msg("ECG components detected, cardiac interference removed with ICA")
	return out, true
}

func removeECG(rec *eeg.Recording, o ECGOptions) (*eeg.Recording, []int, error) {
	ecgIdx := rec.Indices(eeg.ECG)
	if len(ecgIdx) == 0 {
		return nil, nil, fmt.Errorf("%w: no ECG channel to score components against", eeg.ErrChannelNotFound)
	}
	eegIdx := rec.Indices(eeg.EEG)
	if len(eegIdx) < 2 {
		return nil, nil, fmt.Errorf("ICA needs at least two EEG channels, have %d", len(eegIdx))
	}

	// filter the ECG lead together with the EEG so components and reference
	// share the same passband
	tmp := rec.Clone()
	tmp.Channels[ecgIdx[0]].Type = eeg.EEG
	filtered, err := Filter(tmp, 1, 30)
	if err != nil {
		return nil, nil, err
	}
	reference := filtered.Data[ecgIdx[0]]

	k := o.NComponents
	if k <= 0 || k > len(eegIdx) {
		k = len(eegIdx)
	}
	train := rows(filtered.Data, eegIdx)
	unmix, err := fastICA(train, k, o)
	if err != nil {
		return nil, nil, err
	}

	sources := project(unmix, train)
	var bad []int
	r, _ := sources.Dims()
	for c := 0; c < r; c++ {
		corr := stat.Correlation(sources.RawRowView(c), reference, nil)
		if math.Abs(corr) >= o.Threshold {
			bad = append(bad, c)
		}
	}
	if len(bad) == 0 {
		return nil, nil, nil
	}

	mixing, err := pseudoInverse(unmix)
	if err != nil {
		return nil, nil, err
	}
	raw := rows(rec.Data, eegIdx)
	rawSources := project(unmix, raw)
	out := rec.Clone()
	for j, ch := range eegIdx {
		row := out.Data[ch]
		for _, c := range bad {
			w := mixing.At(j, c)
			src := rawSources.RawRowView(c)
			for t := range row {
				row[t] -= w * src[t]
			}
		}
	}
	return out, bad, nil
}

func rows(data [][]float64, idx []int) *mat.Dense {
	n := len(data[idx[0]])
	m := mat.NewDense(len(idx), n, nil)
	for j, i := range idx {
		m.SetRow(j, data[i])
	}
	return m
}

// project applies the unmixing matrix to row-centered data.
func project(unmix, x *mat.Dense) *mat.Dense {
	var s mat.Dense
	s.Mul(unmix, center(x))
	return &s
}

func center(x *mat.Dense) *mat.Dense {
	r, c := x.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		row := x.RawRowView(i)
		mean := stat.Mean(row, nil)
		dst := out.RawRowView(i)
		for t, v := range row {
			dst[t] = v - mean
		}
	}
	return out
}

// fastICA runs symmetric FastICA with the logcosh contrast on PCA-whitened
// data and returns the k x channels unmixing matrix.
func fastICA(x *mat.Dense, k int, o ECGOptions) (*mat.Dense, error) {
	ch, n := x.Dims()
	xc := center(x)

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, xc.T(), nil)
	var es mat.EigenSym
	if !es.Factorize(&cov, true) {
		return nil, errors.New("eigendecomposition of the channel covariance failed")
	}
	vals := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	// eigenvalues ascend; keep the k largest that carry variance
	limit := vals[ch-1] * 1e-12
	whiten := mat.NewDense(k, ch, nil)
	kept := 0
	for i := ch - 1; i >= 0 && kept < k; i-- {
		if vals[i] <= limit {
			break
		}
		scale := 1 / math.Sqrt(vals[i])
		for j := 0; j < ch; j++ {
			whiten.Set(kept, j, vecs.At(j, i)*scale)
		}
		kept++
	}
	if kept < 2 {
		return nil, fmt.Errorf("only %d components carry variance", kept)
	}
	if kept < k {
		whiten = mat.DenseCopyOf(whiten.Slice(0, kept, 0, ch))
		k = kept
	}
	var z mat.Dense
	z.Mul(whiten, xc)

	rnd := rand.New(rand.NewSource(o.Seed))
	start := make([]float64, k*k)
	for i := range start {
		start[i] = rnd.NormFloat64()
	}
	w, err := symmetricDecorrelation(mat.NewDense(k, k, start))
	if err != nil {
		return nil, err
	}

	maxIter := o.MaxIter
	if maxIter <= 0 {
		maxIter = 200
	}
	g := mat.NewDense(k, n, nil)
	gPrime := make([]float64, k)
	converged := false
	for iter := 0; iter < maxIter; iter++ {
		var wz mat.Dense
		wz.Mul(w, &z)
		for i := 0; i < k; i++ {
			src, dst := wz.RawRowView(i), g.RawRowView(i)
			var sum float64
			for t, v := range src {
				th := math.Tanh(v)
				dst[t] = th
				sum += 1 - th*th
			}
			gPrime[i] = sum / float64(n)
		}
		var next mat.Dense
		next.Mul(g, z.T())
		next.Scale(1/float64(n), &next)
		for i := 0; i < k; i++ {
			for j := 0; j < k; j++ {
				next.Set(i, j, next.At(i, j)-gPrime[i]*w.At(i, j))
			}
		}
		updated, err := symmetricDecorrelation(&next)
		if err != nil {
			return nil, err
		}
		var lim float64
		for i := 0; i < k; i++ {
			dot := mat.Dot(updated.RowView(i), w.RowView(i))
			lim = math.Max(lim, math.Abs(math.Abs(dot)-1))
		}
		w = updated
		if lim < o.Tolerance {
			converged = true
			logger.Log().Debug().Int("iterations", iter+1).Int("components", k).Msg("FastICA converged")
			break
		}
	}
	if !converged {
		logger.Log().Warn().Err(errNotConverged).Int("max_iter", maxIter).Msg("using last ICA estimate")
	}

	var unmix mat.Dense
	unmix.Mul(w, whiten)
	return &unmix, nil
}

// symmetricDecorrelation returns (W W^T)^(-1/2) W.
func symmetricDecorrelation(w *mat.Dense) (*mat.Dense, error) {
	k, _ := w.Dims()
	var wwt mat.Dense
	wwt.Mul(w, w.T())
	sym := mat.NewSymDense(k, nil)
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			sym.SetSym(i, j, wwt.At(i, j))
		}
	}
	var es mat.EigenSym
	if !es.Factorize(sym, true) {
		return nil, errors.New("eigendecomposition during decorrelation failed")
	}
	vals := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)
	d := mat.NewDiagDense(k, nil)
	for i, v := range vals {
		d.SetDiag(i, 1/math.Sqrt(math.Max(v, 1e-300)))
	}
	var tmp, root, out mat.Dense
	tmp.Mul(&vecs, d)
	root.Mul(&tmp, vecs.T())
	out.Mul(&root, w)
	return &out, nil
}

// pseudoInverse of a full row rank matrix: U^T (U U^T)^-1.
func pseudoInverse(u *mat.Dense) (*mat.Dense, error) {
	var uut, inv, out mat.Dense
	uut.Mul(u, u.T())
	if err := inv.Inverse(&uut); err != nil {
		return nil, fmt.Errorf("inverting unmixing matrix: %w", err)
	}
	out.Mul(u.T(), &inv)
	return &out, nil
}
