// Package burst detects oscillatory bursts with a dual amplitude threshold on
// the band-limited envelope.
package burst

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/tedpearson/cerebro/internal/dsp"
	"github.com/tedpearson/cerebro/internal/eeg"
	"github.com/tedpearson/cerebro/internal/logger"
	"github.com/tedpearson/cerebro/internal/params"
)

type Options struct {
	Band params.Band
	// Low and High are multiples of the median envelope.
	Low       float64
	High      float64
	MinCycles float64
}

func DefaultOptions() Options {
	return Options{Band: params.AlphaBand, Low: 1, High: 2, MinCycles: 3}
}

// Burst spans samples [Start, End).
type Burst struct {
	Start int
	End   int
}

type Row struct {
	Channel         string  `json:"channel"`
	NBursts         int     `json:"n_bursts"`
	BurstFraction   float64 `json:"burst_fraction"`
	NCycles         float64 `json:"n_cycles"`
	MeanDuration    float64 `json:"mean_duration"`
	AlphaPowerRatio float64 `json:"alpha_power_ratio"`
}

// DualThreshold band-passes x, normalizes its amplitude envelope by the
// median, and returns runs above o.Low that reach o.High somewhere and last at
// least o.MinCycles cycles of the band center. The filtered signal is returned
// alongside the bursts.
func DualThreshold(x []float64, fs float64, o Options) ([]Burst, []float64, error) {
	if o.Low <= 0 || o.High < o.Low {
		return nil, nil, fmt.Errorf("invalid thresholds %g/%g", o.Low, o.High)
	}
	sos, err := dsp.ButterBandpass(4, o.Band.Low, o.Band.High, fs)
	if err != nil {
		return nil, nil, err
	}
	filtered := sos.FiltFilt(x)
	env := dsp.Envelope(filtered)
	med := dsp.Median(env)
	if med <= 0 {
		return nil, filtered, nil
	}
	center := (o.Band.Low + o.Band.High) / 2
	minLen := int(o.MinCycles / center * fs)

	var out []Burst
	start, peaked := -1, false
	closeRun := func(end int) {
		if start >= 0 && peaked && end-start >= minLen {
			out = append(out, Burst{Start: start, End: end})
		}
		start, peaked = -1, false
	}
	for i, v := range env {
		norm := v / med
		if norm >= o.Low {
			if start < 0 {
				start = i
			}
			if norm >= o.High {
				peaked = true
			}
			continue
		}
		closeRun(i)
	}
	closeRun(len(env))
	return out, filtered, nil
}

// Stats summarizes bursts for one channel.
func Stats(channel string, bursts []Burst, filtered []float64, fs float64, band params.Band) Row {
	row := Row{Channel: channel, NBursts: len(bursts)}
	if len(filtered) == 0 {
		return row
	}
	center := (band.Low + band.High) / 2
	var inBurst int
	var burstEnergy, total float64
	durations := make([]float64, 0, len(bursts))
	for _, b := range bursts {
		inBurst += b.End - b.Start
		durations = append(durations, float64(b.End-b.Start)/fs)
		for _, v := range filtered[b.Start:b.End] {
			burstEnergy += v * v
		}
	}
	for _, v := range filtered {
		total += v * v
	}
	row.BurstFraction = float64(inBurst) / float64(len(filtered))
	row.NCycles = float64(inBurst) / fs * center
	if len(durations) > 0 {
		row.MeanDuration = stat.Mean(durations, nil)
	}
	row.AlphaPowerRatio = params.Finite(burstEnergy / total)
	return row
}

// Detect runs burst detection on every 10-20 channel. Channels that are
// missing or fail produce a zero row.
func Detect(rec *eeg.Recording, o Options) ([]Row, error) {
	log := logger.Log()
	if len(rec.Indices(eeg.EEG)) == 0 {
		return nil, fmt.Errorf("%w: no EEG channels", eeg.ErrChannelNotFound)
	}
	rows := make([]Row, 0, len(params.Channels1020))
	for _, ch := range params.Channels1020 {
		x, err := rec.Channel(ch)
		if err != nil {
			log.Warn().Str("channel", ch).Msg("channel missing, reporting no bursts")
			rows = append(rows, Row{Channel: ch})
			continue
		}
		bursts, filtered, err := DualThreshold(x, rec.SampleRate, o)
		if err != nil {
			log.Warn().Err(err).Str("channel", ch).Msg("burst detection failed")
			rows = append(rows, Row{Channel: ch})
			continue
		}
		rows = append(rows, Stats(ch, bursts, filtered, rec.SampleRate, o.Band))
	}
	return rows, nil
}
