// Package jsonl writes dealership records as JSON lines.
package jsonl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/savvydealer-adam/dealership-intel/internal/intel"
)

// Writer encodes one record per line. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	enc    *json.Encoder
	closer io.Closer
}

// NewWriter writes to w. Close does not close w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: json.NewEncoder(w)}
}

// Create opens path for writing, truncating any existing file.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path) // #nosec G304 -- operator-supplied output path.
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	w := NewWriter(f)
	w.closer = f
	return w, nil
}

// Write implements the pipeline record sink.
func (w *Writer) Write(_ context.Context, rec intel.DealershipIntel) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return nil
}

// Close closes the file opened by Create.
func (w *Writer) Close() error {
	if w.closer == nil {
		return nil
	}
	if err := w.closer.Close(); err != nil {
		return fmt.Errorf("close output file: %w", err)
	}
	return nil
}
