package parser

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/tedpearson/cerebro/internal/eeg"
	"github.com/tedpearson/cerebro/internal/logger"
)

var iniOptions = ini.LoadOptions{
	SkipUnrecognizableLines: true,
	IgnoreInlineComment:     true,
}

type bvChannel struct {
	name       string
	resolution float64
	unit       string
}

// ReadBrainVision decodes a BrainVision recording from its .vhdr header. The
// data and marker files are resolved relative to the header.
func ReadBrainVision(vhdr string) (*eeg.Recording, error) {
	logger.Log().Debug().Str("file", vhdr).Msg("reading BrainVision header")
	hdr, err := ini.LoadSources(iniOptions, vhdr)
	if err != nil {
		return nil, fmt.Errorf("loading BrainVision header %s: %w", vhdr, err)
	}
	common := hdr.Section("Common Infos")
	dir := filepath.Dir(vhdr)

	dataFile := common.Key("DataFile").String()
	if dataFile == "" {
		return nil, fmt.Errorf("%s: missing DataFile", vhdr)
	}
	if format := common.Key("DataFormat").MustString("BINARY"); !strings.EqualFold(format, "BINARY") {
		return nil, fmt.Errorf("%s: unsupported data format %s", vhdr, format)
	}
	orientation := strings.ToUpper(common.Key("DataOrientation").MustString("MULTIPLEXED"))
	nch := common.Key("NumberOfChannels").MustInt(0)
	if nch <= 0 {
		return nil, fmt.Errorf("%s: invalid NumberOfChannels", vhdr)
	}
	interval := common.Key("SamplingInterval").MustFloat64(0)
	if interval <= 0 {
		return nil, fmt.Errorf("%s: invalid SamplingInterval", vhdr)
	}
	binaryFormat := strings.ToUpper(hdr.Section("Binary Infos").Key("BinaryFormat").MustString("INT_16"))

	channels := make([]bvChannel, nch)
	infos := hdr.Section("Channel Infos")
	for i := range channels {
		raw := infos.Key("Ch" + strconv.Itoa(i+1)).String()
		if raw == "" {
			return nil, fmt.Errorf("%s: missing channel info Ch%d", vhdr, i+1)
		}
		channels[i] = parseChannelInfo(raw)
	}

	raw, err := os.ReadFile(filepath.Join(dir, dataFile))
	if err != nil {
		return nil, fmt.Errorf("reading BrainVision data: %w", err)
	}
	values, err := decodeSamples(raw, binaryFormat)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", vhdr, err)
	}
	samples := len(values) / nch

	rec := &eeg.Recording{
		Filename:   filepath.Base(vhdr),
		SampleRate: 1e6 / interval,
		Data:       make([][]float64, nch),
	}
	for c, ch := range channels {
		rec.Channels = append(rec.Channels, eeg.Channel{Name: ch.name, Type: eeg.EEG, Unit: "V"})
		row := make([]float64, samples)
		scale := ch.resolution * unitScale(ch.unit)
		for s := 0; s < samples; s++ {
			var v float64
			if orientation == "VECTORIZED" {
				v = values[c*samples+s]
			} else {
				v = values[s*nch+c]
			}
			row[s] = v * scale
		}
		rec.Data[c] = row
	}

	if marker := common.Key("MarkerFile").String(); marker != "" {
		annotations, measDate, err := readMarkers(filepath.Join(dir, marker), rec.SampleRate)
		if err != nil {
			logger.Log().Warn().Err(err).Str("file", marker).Msg("ignoring unreadable marker file")
		} else {
			rec.Annotations = annotations
			rec.MeasDate = measDate
		}
	}
	return rec, nil
}

// parseChannelInfo decodes "<name>,<reference>,<resolution>,<unit>". Commas in
// names are escaped as \1.
func parseChannelInfo(raw string) bvChannel {
	parts := strings.Split(raw, ",")
	ch := bvChannel{
		name:       strings.ReplaceAll(strings.TrimSpace(parts[0]), `\1`, ","),
		resolution: 1,
		unit:       "µV",
	}
	if len(parts) > 2 && strings.TrimSpace(parts[2]) != "" {
		if r, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64); err == nil {
			ch.resolution = r
		}
	}
	if len(parts) > 3 && strings.TrimSpace(parts[3]) != "" {
		ch.unit = strings.TrimSpace(parts[3])
	}
	return ch
}

func decodeSamples(raw []byte, format string) ([]float64, error) {
	var width int
	switch format {
	case "INT_16":
		width = 2
	case "INT_32", "IEEE_FLOAT_32":
		width = 4
	default:
		return nil, fmt.Errorf("unsupported binary format %s", format)
	}
	out := make([]float64, len(raw)/width)
	for i := range out {
		b := raw[i*width:]
		switch format {
		case "INT_16":
			out[i] = float64(int16(binary.LittleEndian.Uint16(b)))
		case "INT_32":
			out[i] = float64(int32(binary.LittleEndian.Uint32(b)))
		default:
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		}
	}
	return out, nil
}

// readMarkers parses "Mk<n>=<type>,<description>,<position>,<points>,<channel>[,<date>]".
// The "New Segment" marker carries the recording start.
func readMarkers(vmrk string, fs float64) ([]eeg.Annotation, time.Time, error) {
	var measDate time.Time
	f, err := ini.LoadSources(iniOptions, vmrk)
	if err != nil {
		return nil, measDate, err
	}
	var out []eeg.Annotation
	for _, key := range f.Section("Marker Infos").Keys() {
		if !strings.HasPrefix(key.Name(), "Mk") {
			continue
		}
		parts := strings.Split(key.String(), ",")
		if len(parts) < 4 {
			continue
		}
		pos, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil {
			continue
		}
		points, _ := strconv.Atoi(strings.TrimSpace(parts[3]))
		kind := strings.TrimSpace(parts[0])
		if kind == "New Segment" && len(parts) > 5 {
			if t, err := parseMarkerDate(strings.TrimSpace(parts[5])); err == nil && measDate.IsZero() {
				measDate = t
			}
		}
		desc := strings.TrimSpace(parts[1])
		if desc == "" {
			desc = kind
		}
		out = append(out, eeg.Annotation{
			Onset:       time.Duration(float64(pos-1) / fs * float64(time.Second)),
			Duration:    time.Duration(float64(points) / fs * float64(time.Second)),
			Description: strings.ReplaceAll(desc, `\1`, ","),
		})
	}
	return out, measDate, nil
}

// parseMarkerDate parses yyyyMMddHHmmss followed by microseconds.
func parseMarkerDate(s string) (time.Time, error) {
	if len(s) < 14 {
		return time.Time{}, fmt.Errorf("short marker date %q", s)
	}
	t, err := time.ParseInLocation("20060102150405", s[:14], time.UTC)
	if err != nil {
		return t, err
	}
	if len(s) >= 20 {
		if us, err := strconv.Atoi(s[14:20]); err == nil {
			t = t.Add(time.Duration(us) * time.Microsecond)
		}
	}
	return t, nil
}
