package parser

import (
	"strings"

	"github.com/tedpearson/cerebro/internal/eeg"
	"github.com/tedpearson/cerebro/internal/logger"
	"github.com/tedpearson/cerebro/internal/params"
)

// capitalize upper-cases the first letter and lower-cases the rest, so
// "FP1" becomes "Fp1".
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

// reconfigureTUH handles the TUH corpus naming ("EEG FP1-REF"), finds the ECG
// lead and keeps the 10-20 channels plus ECG and ear references.
func reconfigureTUH(rec *eeg.Recording) error {
	log := logger.Log()
	renames := make(map[string]string)
	for _, ch := range rec.Channels {
		if !strings.Contains(ch.Name, "EEG") || len(ch.Name) < 4 {
			continue
		}
		name := strings.ReplaceAll(ch.Name[4:], "-REF", "")
		name = strings.ReplaceAll(name, "-LE", "")
		renames[ch.Name] = capitalize(strings.TrimSpace(name))
	}
	if err := rec.Rename(renames); err != nil {
		return err
	}

	types := make(map[string]eeg.ChannelType, len(params.Channels1020)+2)
	for _, ch := range params.Channels1020 {
		types[ch] = eeg.EEG
	}

	ecgFound := false
	for _, ch := range rec.Channels {
		if ecgPattern.MatchString(ch.Name) {
			if err := rec.Rename(map[string]string{ch.Name: "ECG"}); err != nil {
				return err
			}
			types["ECG"] = eeg.ECG
			ecgFound = true
			break
		}
	}
	if !ecgFound {
		log.Info().Str("file", rec.Filename).Msg("no ECG channel present in the recording")
	}

	if rec.Index("A1") >= 0 && rec.Index("A2") >= 0 {
		types["A1"] = eeg.Misc
		types["A2"] = eeg.Misc
	} else {
		log.Info().Str("file", rec.Filename).Msg("no reference channels designated A1 or A2")
	}
	if err := rec.SetTypes(types); err != nil {
		return err
	}

	keep := append(append([]string(nil), params.Channels1020...), "ECG")
	if types["A1"] == eeg.Misc {
		keep = append(keep, "A1", "A2")
	}
	rec.PickAvailable(keep)
	return nil
}

// reconfigureCHBMP strips reference suffixes and converts 10-10 names to 10-20.
func reconfigureCHBMP(rec *eeg.Recording) error {
	renames := make(map[string]string)
	for _, ch := range rec.Channels {
		renames[ch.Name] = strings.TrimSpace(strings.ReplaceAll(ch.Name, "-REF", ""))
	}
	if err := rec.Rename(renames); err != nil {
		return err
	}
	if err := rec.Rename(params.Convert1010To1020); err != nil {
		return err
	}
	return rec.Pick(params.Channels1020)
}

func reconfigureTDBrain(rec *eeg.Recording) error {
	if err := rec.Rename(params.TDBrainChannelMapping); err != nil {
		return err
	}
	return rec.Pick(params.Channels1020)
}
