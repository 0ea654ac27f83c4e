// Package config loads the yaml configuration shared by every command.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/tedpearson/cerebro/internal/cerebro"
	"github.com/tedpearson/cerebro/internal/heart"
	"github.com/tedpearson/cerebro/internal/influx"
	"github.com/tedpearson/cerebro/internal/parser"
	"github.com/tedpearson/cerebro/internal/preprocess"
	"github.com/tedpearson/cerebro/internal/writer"
)

// DefaultFile is read when no config file is given. It may be absent.
const DefaultFile = "cerebro.yaml"

type Output struct {
	Dir         string `yaml:"dir"`
	Compression string `yaml:"compression"`
	HDF5        bool   `yaml:"hdf5"`
}

type Batch struct {
	Path      string `yaml:"path"`
	Pattern   string `yaml:"pattern"`
	StateFile string `yaml:"state_file"`
}

type Config struct {
	Source     string             `yaml:"source"`
	LogLevel   string             `yaml:"log_level"`
	LogFormat  string             `yaml:"log_format"`
	Preprocess preprocess.Options `yaml:"preprocess"`
	Analysis   cerebro.Toggles    `yaml:"analysis"`
	Heart      heart.Options      `yaml:"heart"`
	Output     Output             `yaml:"output"`
	Batch      Batch              `yaml:"batch"`
	Influx     influx.Config      `yaml:"influx"`
}

func Default() Config {
	return Config{
		Source:     "tuh",
		LogLevel:   "info",
		LogFormat:  "console",
		Preprocess: preprocess.DefaultOptions(),
		Analysis:   cerebro.AllAnalyses(),
		Heart:      heart.DefaultOptions(),
		Output: Output{
			Dir:         "results",
			Compression: "none",
		},
		Batch: Batch{
			Pattern:   "*.edf",
			StateFile: "cerebro.state.yaml",
		},
	}
}

// Load reads file over the defaults, so keys it omits keep their default
// values. A missing DefaultFile yields the defaults.
func Load(file string) (Config, error) {
	config := Default()
	cf, err := os.ReadFile(file)
	if errors.Is(err, fs.ErrNotExist) && file == DefaultFile {
		return config, nil
	}
	if err != nil {
		return config, fmt.Errorf("error reading config file %s: %w", file, err)
	}
	if err := yaml.Unmarshal(cf, &config); err != nil {
		return config, fmt.Errorf("error loading config from %s: %w", file, err)
	}
	return config, config.Validate()
}

func (c Config) Validate() error {
	if !slices.Contains(parser.Sources(), c.Source) {
		return fmt.Errorf("%w: %q", parser.ErrUnsupportedSource, c.Source)
	}
	if _, err := writer.ParseCompression(c.Output.Compression); err != nil {
		return err
	}
	p := c.Preprocess
	if p.LFreq < 0 || p.HFreq < 0 || (p.HFreq > 0 && p.LFreq >= p.HFreq) {
		return fmt.Errorf("invalid filter band %v-%v Hz", p.LFreq, p.HFreq)
	}
	return nil
}
