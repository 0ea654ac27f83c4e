package connectivity

import (
	"fmt"
	"math"

	"github.com/tedpearson/cerebro/internal/eeg"
	"github.com/tedpearson/cerebro/internal/params"
)

const (
	DefaultBins = 8
	DefaultLag  = 1
)

type TransferRow struct {
	Source          string  `json:"source"`
	Target          string  `json:"target"`
	TransferEntropy float64 `json:"transfer_entropy"`
}

// discretize maps x onto bins equal-width levels between its extremes.
func discretize(x []float64, bins int) []int {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range x {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	out := make([]int, len(x))
	if hi <= lo {
		return out
	}
	width := (hi - lo) / float64(bins)
	for i, v := range x {
		out[i] = min(int((v-lo)/width), bins-1)
	}
	return out
}

// TransferEntropy estimates the information in nats that the past of source
// adds about the next value of target beyond target's own past.
func TransferEntropy(source, target []float64, lag, bins int) float64 {
	n := min(len(source), len(target))
	if lag < 1 || bins < 2 || n <= lag {
		return 0
	}
	xs, ys := discretize(source[:n], bins), discretize(target[:n], bins)

	// counts indexed by (future, past) of target and past of source
	joint := make([]float64, bins*bins*bins)
	pastPair := make([]float64, bins*bins)
	futurePast := make([]float64, bins*bins)
	past := make([]float64, bins)
	for t := lag; t < n; t++ {
		yf, yp, xp := ys[t], ys[t-lag], xs[t-lag]
		joint[(yf*bins+yp)*bins+xp]++
		pastPair[yp*bins+xp]++
		futurePast[yf*bins+yp]++
		past[yp]++
	}
	total := float64(n - lag)
	var te float64
	for yf := 0; yf < bins; yf++ {
		for yp := 0; yp < bins; yp++ {
			for xp := 0; xp < bins; xp++ {
				c := joint[(yf*bins+yp)*bins+xp]
				if c == 0 {
					continue
				}
				ratio := c * past[yp] / (pastPair[yp*bins+xp] * futurePast[yf*bins+yp])
				te += c / total * math.Log(ratio)
			}
		}
	}
	return math.Max(te, 0)
}

// TransferEntropyAll evaluates every ordered pair of the 10-20 channels
// present in rec.
func TransferEntropyAll(rec *eeg.Recording, lag, bins int) ([]TransferRow, error) {
	var names []string
	var data [][]float64
	for _, ch := range params.Channels1020 {
		if x, err := rec.Channel(ch); err == nil {
			names = append(names, ch)
			data = append(data, x)
		}
	}
	if len(names) < 2 {
		return nil, fmt.Errorf("%w: transfer entropy needs at least two 10-20 channels", eeg.ErrChannelNotFound)
	}
	rows := make([]TransferRow, 0, len(names)*(len(names)-1))
	for i := range names {
		for j := range names {
			if i == j {
				continue
			}
			rows = append(rows, TransferRow{
				Source:          names[i],
				Target:          names[j],
				TransferEntropy: params.Round(TransferEntropy(data[i], data[j], lag, bins), params.DefaultFloatPrecision),
			})
		}
	}
	return rows, nil
}
