package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/tedpearson/cerebro/internal/parser"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cerebro.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingDefault(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	c, err := Load(DefaultFile)
	if err != nil {
		t.Fatal(err)
	}
	if c.Source != Default().Source || !c.Analysis.Heart || c.Preprocess.HFreq != 25 {
		t.Errorf("config = %+v", c)
	}
}

func TestLoadMissingExplicit(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "other.yaml"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("error = %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, `
source: edf
log_level: debug
preprocess:
  h_freq: 40
  ecg: false
analysis:
  heart: false
output:
  dir: out
  compression: zstd
  hdf5: true
influx:
  host: http://localhost:8086
  bucket: eeg
`))
	if err != nil {
		t.Fatal(err)
	}
	if c.Source != "edf" || c.LogLevel != "debug" || c.LogFormat != "console" {
		t.Errorf("top level = %+v", c)
	}
	// omitted keys keep their defaults
	if c.Preprocess.LFreq != 1 || c.Preprocess.HFreq != 40 || c.Preprocess.RemoveECG || !c.Preprocess.RemovePowerline {
		t.Errorf("preprocess = %+v", c.Preprocess)
	}
	if c.Analysis.Heart || !c.Analysis.QEEG {
		t.Errorf("analysis = %+v", c.Analysis)
	}
	if c.Output.Dir != "out" || c.Output.Compression != "zstd" || !c.Output.HDF5 {
		t.Errorf("output = %+v", c.Output)
	}
	if c.Batch.Pattern != "*.edf" || c.Heart.Threshold != 0.5 {
		t.Errorf("batch %+v heart %+v", c.Batch, c.Heart)
	}
	if !c.Influx.Enabled() {
		t.Error("influx should be enabled")
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"yaml", "source: [edf"},
		{"source", "source: bogus"},
		{"compression", "output:\n  compression: gzip"},
		{"band", "preprocess:\n  l_freq: 30\n  h_freq: 20"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.body)); err == nil {
				t.Error("expected error")
			}
		})
	}
	_, err := Load(writeConfig(t, "source: bogus"))
	if !errors.Is(err, parser.ErrUnsupportedSource) {
		t.Errorf("error = %v", err)
	}
}
