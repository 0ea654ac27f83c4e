package cerebro

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tedpearson/cerebro/internal/eeg"
	"github.com/tedpearson/cerebro/internal/hdf5io"
	"github.com/tedpearson/cerebro/internal/params"
	"github.com/tedpearson/cerebro/internal/preprocess"
	"github.com/tedpearson/cerebro/internal/writer"
)

const fs = 256

func field(s string, width int) string {
	return s + strings.Repeat(" ", width-len(s))
}

// writeRecording writes an EDF file holding the 19 10-20 channels with a
// channel dependent alpha rhythm over noise, plus an EKG channel beating
// every 0.8 s. Values are stored in microvolts.
func writeRecording(t *testing.T, seconds int) string {
	t.Helper()
	labels := append(append([]string(nil), params.Channels1020...), "EKG")
	rnd := rand.New(rand.NewSource(21))
	value := func(ch, i int) int16 {
		tm := float64(i) / fs
		if ch == len(labels)-1 {
			d := (math.Mod(tm, 0.8) - 0.4) / 0.01
			return int16(1000 * math.Exp(-d*d/2))
		}
		amp := 10 + float64(ch)
		return int16(math.Round(amp*math.Sin(2*math.Pi*10*tm+0.3*float64(ch)) + 3*rnd.NormFloat64()))
	}

	var buf bytes.Buffer
	ns := len(labels)
	buf.WriteString(field("0", 8))
	buf.WriteString(field("S042 F 01-JAN-1990 Subject", 80))
	buf.WriteString(field("Startdate 01-FEB-2020", 80))
	buf.WriteString(field("01.02.20", 8))
	buf.WriteString(field("10.11.12", 8))
	buf.WriteString(field(fmt.Sprint(256*(ns+1)), 8))
	buf.WriteString(field("", 44))
	buf.WriteString(field(fmt.Sprint(seconds), 8))
	buf.WriteString(field("1", 8))
	buf.WriteString(field(fmt.Sprint(ns), 4))
	per := []struct {
		width int
		value func(int) string
	}{
		{16, func(i int) string { return labels[i] }},
		{80, func(int) string { return "" }},
		{8, func(int) string { return "uV" }},
		{8, func(int) string { return "-32768" }},
		{8, func(int) string { return "32767" }},
		{8, func(int) string { return "-32768" }},
		{8, func(int) string { return "32767" }},
		{80, func(int) string { return "" }},
		{8, func(int) string { return fmt.Sprint(fs) }},
		{32, func(int) string { return "" }},
	}
	for _, p := range per {
		for i := 0; i < ns; i++ {
			buf.WriteString(field(p.value(i), p.width))
		}
	}
	for r := 0; r < seconds; r++ {
		for ch := 0; ch < ns; ch++ {
			for s := 0; s < fs; s++ {
				_ = binary.Write(&buf, binary.LittleEndian, value(ch, r*fs+s))
			}
		}
	}
	path := filepath.Join(t.TempDir(), "subject.edf")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSessionLoad(t *testing.T) {
	path := writeRecording(t, 10)
	s := NewSession()
	s.now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) }
	rec, err := s.Load(path, "edf")
	if err != nil {
		t.Fatal(err)
	}
	a := s.Analysis
	if a.Filepath != "subject.edf" || a.Source != "edf" || a.Subject != "S042" {
		t.Errorf("provenance = %+v", a)
	}
	if a.MeasuringDate != "2020-02-01T10:11:12Z" || a.ProcessedDate != "2024-05-06T07:08:09Z" {
		t.Errorf("dates = %q %q", a.MeasuringDate, a.ProcessedDate)
	}
	if a.SamplingRate != fs || a.Version != Version || len(a.ID) != 36 {
		t.Errorf("analysis = %+v", a)
	}

	// average reference: EEG channels sum to zero at every sample
	var sum float64
	for _, i := range rec.Indices(eeg.EEG) {
		sum += rec.Data[i][100]
	}
	if math.Abs(sum) > 1e-12 {
		t.Errorf("EEG sum after average reference = %v", sum)
	}

	if _, err := s.Load(path, "bogus"); err == nil {
		t.Error("expected unsupported source error")
	}
}

func TestSessionWithoutData(t *testing.T) {
	s := NewSession()
	if _, err := s.Analyze(); !errors.Is(err, ErrNoData) {
		t.Errorf("analyze error = %v", err)
	}
	if _, err := s.Preprocess(preprocess.DefaultOptions()); !errors.Is(err, ErrNoData) {
		t.Errorf("preprocess error = %v", err)
	}
	p := NewPipeline()
	if _, err := p.RunFullAnalysis(context.Background(), AllAnalyses()); !errors.Is(err, ErrNotPreprocessed) {
		t.Errorf("pipeline error = %v", err)
	}
}

func TestSessionAnalyzeRaw(t *testing.T) {
	s := NewSession()
	raw, err := s.Load(writeRecording(t, 10), "edf")
	if err != nil {
		t.Fatal(err)
	}
	a, err := s.Analyze()
	if err != nil {
		t.Fatal(err)
	}
	if a.Result == nil || a.CoherenceResult == nil {
		t.Fatal("missing qeeg or coherence results")
	}
	if d, _ := s.Data(); d != raw {
		t.Error("analysis should use the raw recording before preprocessing")
	}
	if a.PowerlineNoiseDetected != nil {
		t.Error("noise flags are only set by preprocessing")
	}
	if alpha := a.RelativePower["alpha"]["Pz"]; alpha < 50 {
		t.Errorf("relative alpha at Pz = %.1f", alpha)
	}
}

func TestRunPipeline(t *testing.T) {
	path := writeRecording(t, 40)
	dir := t.TempDir()
	out := filepath.Join(dir, "result.json.zst")
	h5 := filepath.Join(dir, "result.h5")
	p, err := RunPipeline(context.Background(), path, RunOptions{
		Source:     "edf",
		Preprocess: preprocess.DefaultOptions(),
		Analyses:   AllAnalyses(),
		Output:     out,
		HDF5:       h5,
	})
	if err != nil {
		t.Fatal(err)
	}

	a := p.Session.Analysis
	if a.PowerlineNoiseDetected == nil || *a.PowerlineNoiseDetected {
		t.Error("powerline flag should be recorded as false")
	}
	if len(a.Bursts) != 19 || len(a.Complexity) != 19 || len(a.TransferEntropy) != 19*18 {
		t.Errorf("rows: bursts %d complexity %d te %d", len(a.Bursts), len(a.Complexity), len(a.TransferEntropy))
	}
	if a.HeartRate == nil || math.Abs(a.HeartRate.HeartRateBPM-75) > 1 {
		t.Errorf("heart = %+v", a.HeartRate)
	}

	sum := p.Summary()
	if sum.QEEG == nil || sum.QEEG.NChannels != 19 || len(sum.QEEG.Bands) != 4 {
		t.Errorf("qeeg summary = %+v", sum.QEEG)
	}
	if sum.Connectivity == nil || len(sum.Connectivity.Bands) != 6 {
		t.Errorf("connectivity summary = %+v", sum.Connectivity)
	}
	if sum.Complexity == nil || sum.Complexity.NChannels != 19 || sum.Heart == nil {
		t.Errorf("summary = %+v", sum)
	}

	data, err := writer.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{
		"id", "filepath", "source", "measuring_date", "processed_date", "version", "sampling_rate",
		"powerline_noise_detected", "ecg_noise_detected", "absolute_power", "relative_power",
		"coherence", "graph_measures", "bursts", "complexity", "spectral_connectivity", "heart_rate",
	} {
		if _, ok := doc[key]; !ok {
			t.Errorf("result is missing %q", key)
		}
	}

	d, err := hdf5io.Read(h5, "/absolute_power/alpha/Pz")
	if err != nil {
		t.Fatal(err)
	}
	if d.Data[0] != a.AbsolutePower["alpha"]["Pz"] {
		t.Errorf("hdf5 alpha power = %v", d.Data[0])
	}
}

func TestRunFullAnalysisCanceled(t *testing.T) {
	p := NewPipeline()
	if _, err := p.Session.Load(writeRecording(t, 10), "edf"); err != nil {
		t.Fatal(err)
	}
	o := preprocess.DefaultOptions()
	o.RemoveECG = false
	if _, err := p.Session.Preprocess(o); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.RunFullAnalysis(ctx, AllAnalyses()); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v", err)
	}
	if _, err := p.RunFullAnalysis(context.Background(), Toggles{Bursts: true}); err != nil {
		t.Fatal(err)
	}
	if sum := p.Summary(); sum.Bursts == nil || sum.QEEG != nil {
		t.Errorf("summary = %+v", sum)
	}
}
