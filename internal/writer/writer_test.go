package writer

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

type result struct {
	Source string             `json:"source"`
	Power  map[string]float64 `json:"power"`
	Bands  []string           `json:"bands"`
}

func TestRoundTrip(t *testing.T) {
	in := result{
		Source: "tuh",
		Power:  map[string]float64{"Cz": 1.5e-12, "Pz": 2.25e-12},
		Bands:  []string{"delta", "theta", "alpha", "beta"},
	}
	dir := t.TempDir()
	for _, name := range []string{"plain.json", "out.json.zst", "out.json.lz4", "out.json.sz"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, "nested", name)
			if err := WriteJSON(path, in); err != nil {
				t.Fatal(err)
			}
			var out result
			if err := ReadJSON(path, &out); err != nil {
				t.Fatal(err)
			}
			if out.Source != in.Source || out.Power["Pz"] != in.Power["Pz"] || len(out.Bands) != 4 {
				t.Errorf("got %+v", out)
			}
		})
	}

	raw, err := os.ReadFile(filepath.Join(dir, "nested", "out.json.zst"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(raw, []byte{0x28, 0xb5, 0x2f, 0xfd}) {
		t.Errorf("missing zstd frame magic: % x", raw[:4])
	}
}

func TestCompressionFor(t *testing.T) {
	tests := map[string]Compression{
		"a.json":     None,
		"a.json.zst": Zstd,
		"a.JSON.LZ4": LZ4,
		"a.sz":       Snappy,
		"a":          None,
	}
	for path, want := range tests {
		if got := CompressionFor(path); got != want {
			t.Errorf("%s: got %q, want %q", path, got, want)
		}
	}
}

func TestParseCompression(t *testing.T) {
	for _, s := range []string{"", "none", "ZSTD", "lz4", "snappy"} {
		if _, err := ParseCompression(s); err != nil {
			t.Errorf("%q: %v", s, err)
		}
	}
	if _, err := ParseCompression("gzip"); err == nil {
		t.Error("expected error for gzip")
	}
	if Zstd.Extension() != ".zst" || None.Extension() != "" {
		t.Error("unexpected extensions")
	}
}

func TestReadJSONErrors(t *testing.T) {
	dir := t.TempDir()
	var out result
	if err := ReadJSON(filepath.Join(dir, "missing.json"), &out); err == nil {
		t.Error("expected error for missing file")
	}
	bad := filepath.Join(dir, "bad.json.sz")
	if err := os.WriteFile(bad, []byte("not snappy"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ReadJSON(bad, &out); err == nil {
		t.Error("expected error for corrupt input")
	}
}
