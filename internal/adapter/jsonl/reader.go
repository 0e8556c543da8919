// Package jsonl reads location jobs and terrain tiles from JSON-lines files
// and writes feature vectors back out in the same format.
package jsonl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/couchcryptid/aquifer-feature-etl/internal/domain"
)

// decoder streams JSON documents of type T. A malformed document is a
// ConfigurationError: the decoder cannot resynchronise after it.
type decoder[T any] struct {
	name   string
	dec    *json.Decoder
	closer io.Closer
	count  int
}

func newDecoder[T any](name string, r io.Reader) *decoder[T] {
	d := &decoder[T]{name: name, dec: json.NewDecoder(r)}
	if c, ok := r.(io.Closer); ok {
		d.closer = c
	}
	return d
}

func (d *decoder[T]) next() (T, error) {
	var v T
	if !d.dec.More() {
		return v, io.EOF
	}
	if err := d.dec.Decode(&v); err != nil {
		return v, domain.ConfigErrorf(d.name, "record %d: %v", d.count+1, err)
	}
	d.count++
	return v, nil
}

func (d *decoder[T]) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}

// JobReader reads location jobs. It implements pipeline.BatchExtractor.
type JobReader struct {
	d *decoder[domain.LocationJob]
}

// NewJobReader reads jobs from r. If r is an io.Closer, Close closes it.
func NewJobReader(r io.Reader) *JobReader {
	return &JobReader{d: newDecoder[domain.LocationJob]("jobs", r)}
}

// OpenJobs opens a JSON-lines file of location jobs.
func OpenJobs(path string) (*JobReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open jobs: %w", err)
	}
	return NewJobReader(f), nil
}

// ExtractBatch returns up to batchSize jobs, or io.EOF once none remain.
func (r *JobReader) ExtractBatch(ctx context.Context, batchSize int) ([]domain.LocationJob, error) {
	var batch []domain.LocationJob
	for len(batch) < batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		job, err := r.d.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		batch = append(batch, job)
	}
	if len(batch) == 0 {
		return nil, io.EOF
	}
	return batch, nil
}

// ReadAll drains the remaining jobs.
func (r *JobReader) ReadAll(ctx context.Context) ([]domain.LocationJob, error) {
	var all []domain.LocationJob
	for {
		batch, err := r.ExtractBatch(ctx, 256)
		if errors.Is(err, io.EOF) {
			return all, nil
		}
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
	}
}

func (r *JobReader) Close() error { return r.d.Close() }

// TileReader reads terrain tiles. It implements pipeline.TileSource.
type TileReader struct {
	d *decoder[domain.TerrainTile]
}

// NewTileReader reads tiles from r. If r is an io.Closer, Close closes it.
func NewTileReader(r io.Reader) *TileReader {
	return &TileReader{d: newDecoder[domain.TerrainTile]("tiles", r)}
}

// OpenTiles opens a JSON-lines file of terrain tiles.
func OpenTiles(path string) (*TileReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tiles: %w", err)
	}
	return NewTileReader(f), nil
}

// NextTile returns the next tile, or io.EOF.
func (r *TileReader) NextTile(ctx context.Context) (domain.TerrainTile, error) {
	if err := ctx.Err(); err != nil {
		return domain.TerrainTile{}, err
	}
	tile, err := r.d.next()
	if err != nil {
		return domain.TerrainTile{}, err
	}
	if tile.Elevation == nil {
		return domain.TerrainTile{}, domain.ConfigErrorf("tiles", "tile %q has no elevation grid", tile.ID)
	}
	return tile, nil
}

func (r *TileReader) Close() error { return r.d.Close() }

// ReadVectors decodes every feature vector in a JSON-lines file.
func ReadVectors(path string) ([]domain.FeatureVector, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vectors: %w", err)
	}
	d := newDecoder[domain.FeatureVector]("vectors", f)
	defer d.Close()

	var all []domain.FeatureVector
	for {
		fv, err := d.next()
		if errors.Is(err, io.EOF) {
			return all, nil
		}
		if err != nil {
			return nil, err
		}
		all = append(all, fv)
	}
}
