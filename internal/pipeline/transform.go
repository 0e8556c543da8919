package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/couchcryptid/aquifer-feature-etl/internal/domain"
	"github.com/couchcryptid/aquifer-feature-etl/internal/features"
)

// FeatureTransformer implements Transformer with the temporal feature
// assembler.
type FeatureTransformer struct {
	assembler *features.Assembler
	logger    *slog.Logger
}

// NewTransformer creates a FeatureTransformer around a configured assembler.
func NewTransformer(assembler *features.Assembler, logger *slog.Logger) *FeatureTransformer {
	return &FeatureTransformer{
		assembler: assembler,
		logger:    logger,
	}
}

func (t *FeatureTransformer) Transform(ctx context.Context, job domain.LocationJob) (features.Result, error) {
	if err := ctx.Err(); err != nil {
		return features.Result{}, err
	}
	res, err := t.assembler.Assemble(job)
	if err != nil {
		return features.Result{}, err
	}
	t.logger.Debug("location assembled",
		"location_id", job.Location.ID,
		"vectors", len(res.Vectors),
		"insufficient", res.Insufficient,
		"has_terrain", job.Terrain != nil,
	)
	return res, nil
}

// MultiLoader fans a batch out to several loaders in order.
type MultiLoader []BatchLoader

// PartialLoadError names the loaders of a MultiLoader that rejected a batch.
// Loaders not listed in Remaining already hold it.
type PartialLoadError struct {
	Remaining MultiLoader
	Err       error
}

func (e *PartialLoadError) Error() string { return e.Err.Error() }
func (e *PartialLoadError) Unwrap() error { return e.Err }

// LoadBatch writes to every loader. When some fail it returns a
// *PartialLoadError so a retry can skip the loaders that succeeded.
func (m MultiLoader) LoadBatch(ctx context.Context, vectors []domain.FeatureVector) error {
	var (
		failed MultiLoader
		errs   []error
	)
	for _, l := range m {
		if err := l.LoadBatch(ctx, vectors); err != nil {
			failed = append(failed, l)
			errs = append(errs, err)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return &PartialLoadError{Remaining: failed, Err: errors.Join(errs...)}
}
