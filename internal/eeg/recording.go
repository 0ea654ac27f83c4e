// Package eeg defines the in-memory representation of an EEG recording.
package eeg

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrChannelNotFound = errors.New("channel not found")
	ErrEmptyRecording  = errors.New("recording has no samples")
)

type ChannelType string

const (
	EEG  ChannelType = "eeg"
	ECG  ChannelType = "ecg"
	EOG  ChannelType = "eog"
	Misc ChannelType = "misc"
	Stim ChannelType = "stim"
)

type Channel struct {
	Name string      `json:"name"`
	Type ChannelType `json:"type"`
	Unit string      `json:"unit"`
}

// Annotation is an event marked on the recording, relative to its start.
type Annotation struct {
	Onset       time.Duration `json:"onset"`
	Duration    time.Duration `json:"duration"`
	Description string        `json:"description"`
}

// Recording holds one continuous EEG session. Data is stored in volts with
// one row per channel.
type Recording struct {
	SubjectID   string
	SessionID   string
	Source      string
	Filename    string
	MeasDate    time.Time
	SampleRate  float64
	Channels    []Channel
	Data        [][]float64
	Annotations []Annotation
}

// MissingChannelsError is returned by Pick when requested channels are absent.
type MissingChannelsError struct {
	Missing []string
}

func (e *MissingChannelsError) Error() string {
	return fmt.Sprintf("channels not found: %s", strings.Join(e.Missing, ", "))
}

func (e *MissingChannelsError) Unwrap() error {
	return ErrChannelNotFound
}

// Clone returns a deep copy. Sample rows are never shared with the receiver.
func (r *Recording) Clone() *Recording {
	out := *r
	out.Channels = append([]Channel(nil), r.Channels...)
	out.Annotations = append([]Annotation(nil), r.Annotations...)
	out.Data = make([][]float64, len(r.Data))
	for i, row := range r.Data {
		out.Data[i] = append([]float64(nil), row...)
	}
	return &out
}

func (r *Recording) Samples() int {
	if len(r.Data) == 0 {
		return 0
	}
	return len(r.Data[0])
}

func (r *Recording) Duration() time.Duration {
	if r.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(r.Samples()) / r.SampleRate * float64(time.Second))
}

func (r *Recording) ChannelNames() []string {
	names := make([]string, len(r.Channels))
	for i, ch := range r.Channels {
		names[i] = ch.Name
	}
	return names
}

// Index returns the position of the named channel or -1.
func (r *Recording) Index(name string) int {
	for i, ch := range r.Channels {
		if ch.Name == name {
			return i
		}
	}
	return -1
}

func (r *Recording) Channel(name string) ([]float64, error) {
	i := r.Index(name)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, name)
	}
	return r.Data[i], nil
}

// Indices returns the positions of every channel of the given type.
func (r *Recording) Indices(t ChannelType) []int {
	var out []int
	for i, ch := range r.Channels {
		if ch.Type == t {
			out = append(out, i)
		}
	}
	return out
}

// Rename applies the mapping to channel names. Names not present are ignored.
func (r *Recording) Rename(mapping map[string]string) error {
	renamed := make([]string, len(r.Channels))
	seen := make(map[string]bool, len(r.Channels))
	for i, ch := range r.Channels {
		name := ch.Name
		if to, ok := mapping[name]; ok {
			name = to
		}
		if seen[name] {
			return fmt.Errorf("renaming would duplicate channel %s", name)
		}
		seen[name] = true
		renamed[i] = name
	}
	for i := range r.Channels {
		r.Channels[i].Name = renamed[i]
	}
	return nil
}

// SetTypes assigns channel types. Every name in the mapping must exist.
func (r *Recording) SetTypes(types map[string]ChannelType) error {
	for name, t := range types {
		i := r.Index(name)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrChannelNotFound, name)
		}
		r.Channels[i].Type = t
	}
	return nil
}

// Pick keeps exactly the named channels, in the requested order.
func (r *Recording) Pick(names []string) error {
	var missing []string
	idx := make([]int, 0, len(names))
	for _, name := range names {
		i := r.Index(name)
		if i < 0 {
			missing = append(missing, name)
			continue
		}
		idx = append(idx, i)
	}
	if len(missing) > 0 {
		return &MissingChannelsError{Missing: missing}
	}
	r.keep(idx)
	return nil
}

// PickAvailable keeps the named channels that exist and returns the names it
// could not find.
func (r *Recording) PickAvailable(names []string) []string {
	var missing []string
	idx := make([]int, 0, len(names))
	for _, name := range names {
		i := r.Index(name)
		if i < 0 {
			missing = append(missing, name)
			continue
		}
		idx = append(idx, i)
	}
	r.keep(idx)
	return missing
}

// PickTypes keeps channels whose type is in types, preserving order.
func (r *Recording) PickTypes(types ...ChannelType) {
	want := make(map[ChannelType]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	var idx []int
	for i, ch := range r.Channels {
		if want[ch.Type] {
			idx = append(idx, i)
		}
	}
	r.keep(idx)
}

func (r *Recording) keep(idx []int) {
	channels := make([]Channel, len(idx))
	data := make([][]float64, len(idx))
	for j, i := range idx {
		channels[j] = r.Channels[i]
		data[j] = r.Data[i]
	}
	r.Channels = channels
	r.Data = data
}

// SetAverageReference re-references EEG channels to their common average.
// Other channel types are left untouched.
func (r *Recording) SetAverageReference() error {
	eeg := r.Indices(EEG)
	if len(eeg) == 0 {
		return fmt.Errorf("%w: no EEG channels to reference", ErrChannelNotFound)
	}
	n := r.Samples()
	for t := 0; t < n; t++ {
		var sum float64
		for _, i := range eeg {
			sum += r.Data[i][t]
		}
		mean := sum / float64(len(eeg))
		for _, i := range eeg {
			r.Data[i][t] -= mean
		}
	}
	return nil
}

func (r *Recording) Validate() error {
	if len(r.Channels) == 0 {
		return fmt.Errorf("%w: no channels", ErrEmptyRecording)
	}
	if len(r.Channels) != len(r.Data) {
		return fmt.Errorf("%d channels but %d data rows", len(r.Channels), len(r.Data))
	}
	if r.SampleRate <= 0 {
		return fmt.Errorf("invalid sampling rate %v", r.SampleRate)
	}
	n := len(r.Data[0])
	if n == 0 {
		return ErrEmptyRecording
	}
	for i, row := range r.Data {
		if len(row) != n {
			return fmt.Errorf("channel %s has %d samples, expected %d", r.Channels[i].Name, len(row), n)
		}
	}
	return nil
}
