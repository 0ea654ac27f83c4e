// Package influx exports analysis summaries to InfluxDB (or any server that
// accepts the InfluxDB v2 write API, such as VictoriaMetrics).
package influx

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/tedpearson/cerebro/internal/eeg"
	"github.com/tedpearson/cerebro/internal/heart"
	"github.com/tedpearson/cerebro/internal/logger"
	"github.com/tedpearson/cerebro/internal/qeeg"
)

const measurement = "qeeg"

// Config is the configuration for Influx/VictoriaMetrics.
type Config struct {
	Host      string `yaml:"host"`
	AuthToken string `yaml:"auth_token"`
	Org       string `yaml:"org"`
	Bucket    string `yaml:"bucket"`
}

// Enabled reports whether enough is configured to connect.
func (c Config) Enabled() bool {
	return c.Host != "" && c.Bucket != ""
}

// Record is one analysed recording. Points are stamped with the
// measurement date so repeated imports overwrite rather than duplicate.
type Record struct {
	Subject     string
	Source      string
	Filename    string
	MeasDate    time.Time
	QEEG        *qeeg.Result
	Heart       *heart.Result
	Annotations []eeg.Annotation
}

type Writer struct {
	client influxdb2.Client
	api    api.WriteAPI
}

func NewWriter(config Config) Writer {
	client := influxdb2.NewClient(config.Host, config.AuthToken)
	w := Writer{
		client: client,
		api:    client.WriteAPI(config.Org, config.Bucket),
	}
	go func(errs <-chan error) {
		for err := range errs {
			logger.Log().Error().Err(err).Msg("influx write failed")
		}
	}(w.api.Errors())
	return w
}

// Close flushes pending points.
func (w Writer) Close() {
	w.api.Flush()
	w.client.Close()
}

// WriteRecord queues every point for r and returns how many were written.
func (w Writer) WriteRecord(r Record) int {
	points := Points(r)
	for _, p := range points {
		w.api.WritePoint(p)
	}
	return len(points)
}

// Points converts r into line protocol points: one per channel and band for
// absolute and relative power, one per channel for ratios, one for heart
// metrics and an on/off pulse per annotation.
func Points(r Record) []*write.Point {
	var points []*write.Point
	base := func() *write.Point {
		return influxdb2.NewPointWithMeasurement(measurement).
			AddTag("subject", r.Subject).
			AddTag("source", r.Source).
			AddTag("file", r.Filename).
			SetTime(r.MeasDate)
	}
	if r.QEEG != nil {
		points = append(points, bandPoints(base, "absolute_power", r.QEEG.AbsolutePower)...)
		points = append(points, bandPoints(base, "relative_power", r.QEEG.RelativePower)...)
		points = append(points, ratioPoints(base, r.QEEG.PowerRatios)...)
		points = append(points, base().
			AddField("max_amp_microvolts", r.QEEG.MaxAmpMicrovolts).
			AddField("low_voltage", r.QEEG.LowVoltage).
			AddField("frontal_posterior_ratio", r.QEEG.FrontalGeneratorResult.Ratio))
	}
	if r.Heart != nil {
		points = append(points, base().
			AddTag("channel", r.Heart.Channel).
			AddField("heart_rate_bpm", r.Heart.HeartRateBPM).
			AddField("rmssd_ms", r.Heart.RMSSD).
			AddField("sdnn_ms", r.Heart.SDNN).
			AddField("pnn50_percent", r.Heart.PNN50).
			AddField("lf_hf_ratio", r.Heart.LFHFRatio))
	}
	for _, a := range r.Annotations {
		start := r.MeasDate.Add(a.Onset)
		end := start.Add(a.Duration)
		if a.Duration == 0 {
			end = start.Add(time.Second)
		}
		points = append(points,
			base().AddTag("event", a.Description).AddField("annotation", 0).SetTime(start.Add(-time.Second)),
			base().AddTag("event", a.Description).AddField("annotation", 1).SetTime(start),
			base().AddTag("event", a.Description).AddField("annotation", 0).SetTime(end))
	}
	return points
}

func bandPoints(base func() *write.Point, field string, powers qeeg.BandPowers) []*write.Point {
	var points []*write.Point
	for band, channels := range powers {
		for ch, v := range channels {
			points = append(points, base().AddTag("band", band).AddTag("channel", ch).AddField(field, v))
		}
	}
	return points
}

func ratioPoints(base func() *write.Point, ratios qeeg.BandPowers) []*write.Point {
	var points []*write.Point
	for name, channels := range ratios {
		for ch, v := range channels {
			points = append(points, base().AddTag("channel", ch).AddField(name, v))
		}
	}
	return points
}
