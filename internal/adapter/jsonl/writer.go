package jsonl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/couchcryptid/aquifer-feature-etl/internal/domain"
)

// Writer emits one JSON document per line. It implements
// pipeline.BatchLoader for feature vectors.
type Writer struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewWriter writes to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: json.NewEncoder(w)}
}

// LoadBatch writes each vector on its own line.
func (w *Writer) LoadBatch(ctx context.Context, vectors []domain.FeatureVector) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range vectors {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.enc.Encode(vectors[i]); err != nil {
			return fmt.Errorf("encode vector %s: %w", vectors[i].Location().ID, err)
		}
	}
	return nil
}

// Write encodes any value on its own line.
func (w *Writer) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(v)
}
