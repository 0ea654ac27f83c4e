package parser

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ishiikurisu/edf"

	"github.com/tedpearson/cerebro/internal/eeg"
	"github.com/tedpearson/cerebro/internal/logger"
)

const annotationsLabel = "EDF Annotations"

// ReadEDF decodes an EDF/EDF+ file. Physical values are converted to volts
// using each signal's physical dimension.
func ReadEDF(file string) (rec *eeg.Recording, e error) {
	log := logger.Log()
	log.Debug().Str("file", file).Msg("reading EDF")
	if _, err := os.Stat(file); err != nil {
		return nil, err
	}
	defer func() {
		// the EDF library panics on truncated or malformed files
		if r := recover(); r != nil {
			rec, e = nil, fmt.Errorf("reading EDF %s: %v", file, r)
		}
	}()
	data := edf.ReadFile(file)

	measDate, err := time.ParseInLocation("02.01.06 15.04.05",
		strings.TrimSpace(data.Header["startdate"])+" "+strings.TrimSpace(data.Header["starttime"]), time.UTC)
	if err != nil {
		return nil, fmt.Errorf("parsing EDF start time: %w", err)
	}
	labels := data.GetLabels()
	samples := data.GetNumberSamples()
	samplesPerRecord := dominantSamplesPerRecord(labels, samples)
	recordMillis := int(data.GetDuration() * 1000)
	if samplesPerRecord <= 0 || recordMillis <= 0 {
		return nil, fmt.Errorf("invalid EDF record layout: %d samples per %d ms", samplesPerRecord, recordMillis)
	}
	dims, err := readPhysicalDimensions(file, len(labels))
	if err != nil {
		return nil, err
	}

	rec = &eeg.Recording{
		SubjectID:  subjectFromPatientField(data.Header["patient"]),
		SessionID:  strings.TrimSpace(data.Header["recording"]),
		Filename:   filepath.Base(file),
		MeasDate:   measDate,
		SampleRate: float64(samplesPerRecord) * 1000 / float64(recordMillis),
	}
	for i, series := range data.PhysicalRecords {
		if i >= len(labels) {
			break
		}
		name := strings.TrimSpace(labels[i])
		if skipSignal(name) {
			continue
		}
		if i < len(samples) && samples[i] != samplesPerRecord {
			log.Warn().Str("file", file).Str("channel", name).
				Float64("rate", float64(samples[i])*1000/float64(recordMillis)).
				Float64("recording_rate", rec.SampleRate).
				Msg("dropping channel sampled at a different rate")
			continue
		}
		scale := unitScale(dims[i])
		row := make([]float64, len(series))
		for j, v := range series {
			row[j] = v * scale
		}
		rec.Channels = append(rec.Channels, eeg.Channel{Name: name, Type: eeg.EEG, Unit: "V"})
		rec.Data = append(rec.Data, row)
	}
	if notes := data.WriteNotes(); notes != "" {
		rec.Annotations = parseAnnotations(notes)
	}
	return rec, nil
}

// readPhysicalDimensions reads the per-signal physical dimension field from
// the fixed-width EDF header, which the EDF library does not expose per signal.
func readPhysicalDimensions(file string, signals int) ([]string, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	// general header, then label (16) and transducer (80) blocks for every signal
	offset := int64(256 + signals*(16+80))
	buf := make([]byte, signals*8)
	if _, err := f.ReadAt(buf, offset); err != nil && err != io.EOF {
		return nil, fmt.Errorf("reading EDF physical dimensions: %w", err)
	}
	dims := make([]string, signals)
	for i := range dims {
		dims[i] = strings.TrimSpace(string(buf[i*8 : i*8+8]))
	}
	return dims, nil
}

// unitScale converts a physical dimension to a factor to volts. EEG files
// without a recognizable unit are assumed to be in microvolts.
func unitScale(unit string) float64 {
	switch strings.TrimSpace(unit) {
	case "V":
		return 1
	case "mV":
		return 1e-3
	case "nV":
		return 1e-9
	default:
		return 1e-6
	}
}

func subjectFromPatientField(patient string) string {
	fields := strings.Fields(patient)
	if len(fields) == 0 || fields[0] == "X" {
		return ""
	}
	return fields[0]
}

func skipSignal(label string) bool {
	return label == annotationsLabel || label == "Crc16"
}

// dominantSamplesPerRecord picks the samples-per-record value shared by the
// most data signals, preferring the higher value on a tie. Channels at any
// other rate cannot share the recording's sample buffer.
func dominantSamplesPerRecord(labels []string, samples []int) int {
	counts := make(map[int]int)
	for i, n := range samples {
		if i < len(labels) && skipSignal(strings.TrimSpace(labels[i])) {
			continue
		}
		counts[n]++
	}
	best := 0
	for n, c := range counts {
		if c > counts[best] || (c == counts[best] && n > best) {
			best = n
		}
	}
	return best
}

var annotationRE = regexp.MustCompile(`^\+([\d.]+)\s([\d.]*)\s*(.+?)\s*$`)

func parseAnnotations(notes string) []eeg.Annotation {
	var out []eeg.Annotation
	for _, line := range strings.Split(notes, "\n") {
		match := annotationRE.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		onset, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			continue
		}
		var duration float64
		if match[2] != "" {
			if duration, err = strconv.ParseFloat(match[2], 64); err != nil {
				continue
			}
		}
		text := match[3]
		if text == "" || text == "Recording starts" {
			continue
		}
		out = append(out, eeg.Annotation{
			Onset:       time.Millisecond * time.Duration(onset*1_000),
			Duration:    time.Millisecond * time.Duration(duration*1_000),
			Description: text,
		})
	}
	return out
}
