package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSetLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)
	cases := map[string]zerolog.Level{
		"debug":  zerolog.DebugLevel,
		"warn":   zerolog.WarnLevel,
		"":       zerolog.InfoLevel,
		"silent": zerolog.Disabled,
	}
	for in, want := range cases {
		if err := SetLevel(in); err != nil {
			t.Fatalf("SetLevel(%q): %v", in, err)
		}
		if got := zerolog.GlobalLevel(); got != want {
			t.Errorf("SetLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if err := SetLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestSetWriter(t *testing.T) {
	defer SetConsoleWriter()
	var buf bytes.Buffer
	SetWriter(&buf)
	Log().Info().Str("channel", "Fp1").Msg("filtered")
	if !strings.Contains(buf.String(), `"channel":"Fp1"`) {
		t.Errorf("unexpected output: %s", buf.String())
	}
}

func TestConfigureRejectsFormat(t *testing.T) {
	defer SetConsoleWriter()
	if err := Configure("info", "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}
