// Package writer persists analysis results as JSON, optionally compressed.
// The compression is chosen from the file extension.
package writer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/DataDog/zstd"
	"github.com/golang/snappy"
	"github.com/pierrec/lz4/v4"
)

type Compression string

const (
	None   Compression = ""
	Zstd   Compression = "zstd"
	LZ4    Compression = "lz4"
	Snappy Compression = "snappy"
)

// zstdLevel favours ratio over speed; results are written once.
const zstdLevel = 9

var extensions = map[Compression]string{
	Zstd:   ".zst",
	LZ4:    ".lz4",
	Snappy: ".sz",
}

// ParseCompression accepts a config value such as "zstd" or "none".
func ParseCompression(s string) (Compression, error) {
	switch c := Compression(strings.ToLower(s)); c {
	case "none":
		return None, nil
	case None, Zstd, LZ4, Snappy:
		return c, nil
	}
	return None, fmt.Errorf("unknown compression %q", s)
}

// Extension is the file suffix appended for c.
func (c Compression) Extension() string {
	return extensions[c]
}

// CompressionFor infers the compression of path from its extension.
func CompressionFor(path string) Compression {
	ext := strings.ToLower(filepath.Ext(path))
	for c, e := range extensions {
		if ext == e {
			return c
		}
	}
	return None
}

func compress(c Compression, data []byte) ([]byte, error) {
	switch c {
	case Zstd:
		return zstd.CompressLevel(nil, data, zstdLevel)
	case Snappy:
		return snappy.Encode(nil, data), nil
	case LZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return data, nil
}

func decompress(c Compression, data []byte) ([]byte, error) {
	switch c {
	case Zstd:
		return zstd.Decompress(nil, data)
	case Snappy:
		return snappy.Decode(nil, data)
	case LZ4:
		return io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	}
	return data, nil
}

// WriteFile stores data at path, compressed according to its extension.
func WriteFile(path string, data []byte) error {
	c := CompressionFor(path)
	out, err := compress(c, data)
	if err != nil {
		return fmt.Errorf("compress %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}

// ReadFile is the inverse of WriteFile.
func ReadFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data, err := decompress(CompressionFor(path), raw)
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", path, err)
	}
	return data, nil
}

// WriteJSON encodes v and writes it with WriteFile.
func WriteJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return WriteFile(path, data)
}

func ReadJSON(path string, v any) error {
	data, err := ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
