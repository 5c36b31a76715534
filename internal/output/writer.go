package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"contact-insights-go/internal/telemetry"
)

type Mode int

const (
	Overwrite Mode = iota
	// Append adds to an existing report, or creates it when missing.
	Append
)

func (m Mode) String() string {
	if m == Append {
		return "append"
	}
	return "overwrite"
}

// Writer emits reports under Dir.
type Writer struct {
	Dir     string
	metrics *telemetry.Metrics
}

func NewWriter(dir string, metrics *telemetry.Metrics) *Writer {
	return &Writer{Dir: dir, metrics: metrics}
}

func (w *Writer) path(target string) (string, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create result dir: %w", err)
	}
	return filepath.Join(w.Dir, target), nil
}

// WriteLines writes each item as one JSON document per line.
func WriteLines[T any](w *Writer, target string, items []T, mode Mode) (string, error) {
	path, err := w.path(target)
	if err != nil {
		return "", err
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if mode == Append {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", target, err)
	}

	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	for i, item := range items {
		if err := enc.Encode(item); err != nil {
			return "", errors.Join(fmt.Errorf("write %s line %d: %w", target, i, err), f.Close())
		}
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", target, err)
	}
	w.metrics.CountReport("lines")
	return path, nil
}
