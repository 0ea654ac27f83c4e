// Package complexity estimates nonlinear signal complexity measures: entropy,
// self-similarity and compressibility of EEG channels.
package complexity

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/tedpearson/cerebro/internal/dsp"
	"github.com/tedpearson/cerebro/internal/eeg"
	"github.com/tedpearson/cerebro/internal/logger"
	"github.com/tedpearson/cerebro/internal/params"
)

// DefaultWindow bounds the number of samples per channel. Sample and
// approximate entropy are quadratic in the window length.
const DefaultWindow = 1000

type Row struct {
	Channel             string  `json:"channel"`
	SampleEntropy       float64 `json:"sample_entropy"`
	ApproximateEntropy  float64 `json:"approximate_entropy"`
	HurstExponent       float64 `json:"hurst_exponent"`
	FractalDimension    float64 `json:"fractal_dimension"`
	LempelZivComplexity float64 `json:"lempel_ziv_complexity"`
	DFAAlpha            float64 `json:"dfa_alpha"`
	PermutationEntropy  float64 `json:"permutation_entropy"`
}

// ComputeAll evaluates every measure on the first window samples of each
// 10-20 channel. Channels are processed concurrently.
func ComputeAll(rec *eeg.Recording, window int) ([]Row, error) {
	var channels []string
	for _, ch := range params.Channels1020 {
		if rec.Index(ch) >= 0 {
			channels = append(channels, ch)
		}
	}
	if len(channels) == 0 {
		return nil, fmt.Errorf("%w: no 10-20 channels", eeg.ErrChannelNotFound)
	}
	if window <= 0 {
		window = DefaultWindow
	}
	rows := make([]Row, len(channels))
	var wg sync.WaitGroup
	for i, ch := range channels {
		x, _ := rec.Channel(ch)
		if len(x) > window {
			x = x[:window]
		}
		wg.Add(1)
		go func(i int, ch string, x []float64) {
			defer wg.Done()
			rows[i] = Row{
				Channel:             ch,
				SampleEntropy:       params.Finite(SampleEntropy(x, 2, 0.2)),
				ApproximateEntropy:  params.Finite(ApproximateEntropy(x, 2, 0.2)),
				HurstExponent:       params.Finite(Hurst(x)),
				FractalDimension:    params.Finite(Higuchi(x, 10)),
				LempelZivComplexity: float64(LempelZiv(x, 0.5)),
				DFAAlpha:            params.Finite(DFA(x)),
				PermutationEntropy:  params.Finite(PermutationEntropy(x, 3, 1)),
			}
		}(i, ch, x)
	}
	wg.Wait()
	logger.Log().Debug().Int("channels", len(rows)).Int("window", window).Msg("complexity measures computed")
	return rows, nil
}

// chebyshevWithin reports whether the templates of length m starting at i
// and j differ by at most r in every position.
func chebyshevWithin(x []float64, i, j, m int, r float64) bool {
	for k := 0; k < m; k++ {
		if math.Abs(x[i+k]-x[j+k]) > r {
			return false
		}
	}
	return true
}

// SampleEntropy is -ln(A/B) where B counts template pairs matching for m
// points and A for m+1 points, self-matches excluded. r is relative to the
// standard deviation. Zero is returned when either count is zero.
func SampleEntropy(x []float64, m int, r float64) float64 {
	n := len(x)
	if n <= m+1 {
		return 0
	}
	_, sd := stat.PopMeanStdDev(x, nil)
	tol := r * sd
	var a, b float64
	for i := 0; i < n-m; i++ {
		for j := i + 1; j < n-m; j++ {
			if chebyshevWithin(x, i, j, m, tol) {
				b++
				if math.Abs(x[i+m]-x[j+m]) <= tol {
					a++
				}
			}
		}
	}
	if a == 0 || b == 0 {
		return 0
	}
	return -math.Log(a / b)
}

// ApproximateEntropy is phi(m) - phi(m+1), where phi averages the log of the
// fraction of templates within tolerance, self-matches included.
func ApproximateEntropy(x []float64, m int, r float64) float64 {
	n := len(x)
	if n <= m+1 {
		return 0
	}
	_, sd := stat.PopMeanStdDev(x, nil)
	tol := r * sd
	phi := func(m int) float64 {
		count := n - m + 1
		var sum float64
		for i := 0; i < count; i++ {
			var c float64
			for j := 0; j < count; j++ {
				if chebyshevWithin(x, i, j, m, tol) {
					c++
				}
			}
			sum += math.Log(c / float64(count))
		}
		return sum / float64(count)
	}
	return phi(m) - phi(m+1)
}

// Hurst estimates the Hurst exponent with rescaled range analysis over
// window sizes from 10 to half the signal length. 0.5 is returned when no
// window has spread.
func Hurst(x []float64) float64 {
	n := len(x)
	var logN, logRS []float64
	cum := make([]float64, 0, n)
	for size := 10; size <= n/2; size++ {
		var rs []float64
		for start := 0; start+size <= n; start += size {
			seg := x[start : start+size]
			mean, sd := stat.PopMeanStdDev(seg, nil)
			if sd == 0 {
				continue
			}
			cum = cum[:0]
			var run float64
			for _, v := range seg {
				run += v - mean
				cum = append(cum, run)
			}
			lo, hi := cum[0], cum[0]
			for _, v := range cum {
				lo, hi = math.Min(lo, v), math.Max(hi, v)
			}
			rs = append(rs, (hi-lo)/sd)
		}
		if len(rs) > 0 {
			logN = append(logN, math.Log(float64(size)))
			logRS = append(logRS, math.Log(stat.Mean(rs, nil)))
		}
	}
	if len(logN) < 2 {
		return 0.5
	}
	_, slope := stat.LinearRegression(logN, logRS, nil, false)
	return slope
}

// Higuchi estimates the fractal dimension from curve lengths at delays
// 1..kmax.
func Higuchi(x []float64, kmax int) float64 {
	n := len(x)
	var logK, logL []float64
	for k := 1; k <= kmax; k++ {
		var lengths []float64
		for m := 0; m < k; m++ {
			steps := (n - 1 - m) / k
			if steps < 1 {
				continue
			}
			var sum float64
			for i := 1; i <= steps; i++ {
				sum += math.Abs(x[m+i*k] - x[m+(i-1)*k])
			}
			norm := float64(n-1) / (float64(steps) * float64(k))
			lengths = append(lengths, sum*norm/float64(k))
		}
		if len(lengths) == 0 {
			continue
		}
		l := stat.Mean(lengths, nil)
		if l <= 0 {
			continue
		}
		logK = append(logK, math.Log(1/float64(k)))
		logL = append(logL, math.Log(l))
	}
	if len(logK) < 2 {
		return 1
	}
	_, slope := stat.LinearRegression(logK, logL, nil, false)
	return slope
}

// LempelZiv counts the distinct patterns in the LZ76 parsing of x, binarized
// against threshold times its median.
func LempelZiv(x []float64, threshold float64) int {
	n := len(x)
	if n == 0 {
		return 0
	}
	cut := dsp.Median(x) * threshold
	s := make([]bool, n)
	for i, v := range x {
		s[i] = v > cut
	}
	if n == 1 {
		return 1
	}
	c, l, i, k, kmax := 1, 1, 0, 1, 1
	for {
		if s[i+k-1] == s[l+k-1] {
			k++
			if l+k > n {
				c++
				break
			}
			continue
		}
		kmax = max(k, kmax)
		i++
		if i == l {
			c++
			l += kmax
			if l+1 > n {
				break
			}
			i, k, kmax = 0, 1, 1
		} else {
			k = 1
		}
	}
	return c
}

// DFA returns the detrended fluctuation scaling exponent over
// logarithmically spaced box sizes from 4 to a quarter of the signal.
func DFA(x []float64) float64 {
	n := len(x)
	mean := stat.Mean(x, nil)
	profile := make([]float64, n)
	var run float64
	for i, v := range x {
		run += v - mean
		profile[i] = run
	}

	var logS, logF []float64
	for _, s := range boxSizes(4, n/4, 20) {
		idx := make([]float64, s)
		for i := range idx {
			idx[i] = float64(i)
		}
		var mse []float64
		for start := 0; start+s <= n; start += s {
			seg := profile[start : start+s]
			a, b := stat.LinearRegression(idx, seg, nil, false)
			var sum float64
			for i, v := range seg {
				d := v - (a + b*idx[i])
				sum += d * d
			}
			mse = append(mse, sum/float64(s))
		}
		f := math.Sqrt(stat.Mean(mse, nil))
		if len(mse) == 0 || f <= 0 {
			continue
		}
		logS = append(logS, math.Log(float64(s)))
		logF = append(logF, math.Log(f))
	}
	if len(logS) < 2 {
		return 0.5
	}
	_, slope := stat.LinearRegression(logS, logF, nil, false)
	return slope
}

// boxSizes returns up to count unique integer sizes spaced evenly in log
// space between lo and hi.
func boxSizes(lo, hi, count int) []int {
	if hi < lo {
		return nil
	}
	var out []int
	for i := 0; i < count; i++ {
		frac := float64(i) / float64(count-1)
		s := int(math.Round(math.Exp(math.Log(float64(lo)) + frac*(math.Log(float64(hi))-math.Log(float64(lo))))))
		if len(out) == 0 || s != out[len(out)-1] {
			out = append(out, s)
		}
	}
	return out
}

// PermutationEntropy is the Shannon entropy of ordinal patterns of order m,
// normalized by log(m!).
func PermutationEntropy(x []float64, m, delay int) float64 {
	n := len(x) - (m-1)*delay
	if m < 2 || n <= 0 {
		return 0
	}
	counts := make(map[string]int)
	order := make([]int, m)
	key := make([]byte, m)
	for i := 0; i < n; i++ {
		for j := range order {
			order[j] = j
		}
		sort.SliceStable(order, func(a, b int) bool {
			return x[i+order[a]*delay] < x[i+order[b]*delay]
		})
		for j, o := range order {
			key[j] = byte(o)
		}
		counts[string(key)]++
	}
	var h float64
	for _, c := range counts {
		p := float64(c) / float64(n)
		h -= p * math.Log(p)
	}
	fact := 1.0
	for i := 2; i <= m; i++ {
		fact *= float64(i)
	}
	return h / math.Log(fact)
}
