// Package parser reads EEG recordings from disk and reshapes their channel
// layout for each supported dataset.
package parser

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/tedpearson/cerebro/internal/eeg"
	"github.com/tedpearson/cerebro/internal/logger"
	"github.com/tedpearson/cerebro/internal/params"
)

var ErrUnsupportedSource = errors.New("unsupported EEG data source")

// Parser loads a recording and normalizes its channels.
type Parser interface {
	ReadEEG(path string) (*eeg.Recording, error)
}

// Format decodes a file into a recording with every signal typed as EEG.
type Format func(path string) (*eeg.Recording, error)

// Dataset combines a file format with the channel reconfiguration a dataset
// needs. Reconfigure may be nil.
type Dataset struct {
	Name        string
	Format      Format
	Reconfigure func(rec *eeg.Recording) error
}

func (d Dataset) ReadEEG(path string) (*eeg.Recording, error) {
	rec, err := d.Format(path)
	if err != nil {
		return nil, err
	}
	rec.Source = d.Name
	if d.Reconfigure != nil {
		if err := d.Reconfigure(rec); err != nil {
			return nil, fmt.Errorf("reconfiguring %s channels: %w", d.Name, err)
		}
	}
	if err := load(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

var (
	ecgPattern  = regexp.MustCompile(`(?i)e[ck]g`)
	eogPattern  = regexp.MustCompile(`(?i)eog`)
	stimPattern = regexp.MustCompile(`(?i)^(status|trigger|sti\d*)$`)
)

// load types the remaining EEG channels by name and checks them against the
// standard 10-20 layout.
func load(rec *eeg.Recording) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	for i, ch := range rec.Channels {
		if ch.Type != eeg.EEG {
			continue
		}
		switch {
		case ecgPattern.MatchString(ch.Name):
			rec.Channels[i].Type = eeg.ECG
		case eogPattern.MatchString(ch.Name):
			rec.Channels[i].Type = eeg.EOG
		case stimPattern.MatchString(ch.Name):
			rec.Channels[i].Type = eeg.Stim
		}
	}
	var unpositioned []string
	for _, i := range rec.Indices(eeg.EEG) {
		if !montage1020[rec.Channels[i].Name] {
			unpositioned = append(unpositioned, rec.Channels[i].Name)
		}
	}
	if len(unpositioned) > 0 {
		logger.Log().Debug().Strs("channels", unpositioned).Msg("EEG channels outside the standard 10-20 montage")
	}
	return nil
}

var montage1020 = func() map[string]bool {
	m := make(map[string]bool)
	for from, to := range params.Convert1010To1020 {
		m[from] = true
		m[to] = true
	}
	for _, extra := range []string{"Fpz", "AFz", "FCz", "CPz", "POz", "Oz", "A1", "A2", "FC3", "FC4", "CP3", "CP4"} {
		m[extra] = true
	}
	return m
}()

var datasets = map[string]Dataset{
	"edf":         {Name: "edf", Format: ReadEDF},
	"brainvision": {Name: "brainvision", Format: ReadBrainVision},
	"tuh":         {Name: "tuh", Format: ReadEDF, Reconfigure: reconfigureTUH},
	"chbmp":       {Name: "chbmp", Format: ReadEDF, Reconfigure: reconfigureCHBMP},
	"tdbrain":     {Name: "tdbrain", Format: ReadBrainVision, Reconfigure: reconfigureTDBrain},
}

// ForSource returns the parser registered for a dataset name.
func ForSource(source string) (Parser, error) {
	d, ok := datasets[strings.ToLower(source)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSource, source)
	}
	return d, nil
}

func Sources() []string {
	out := make([]string, 0, len(datasets))
	for name := range datasets {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
