package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/aquifer-feature-etl/internal/domain"
	"github.com/couchcryptid/aquifer-feature-etl/internal/features"
	"github.com/couchcryptid/aquifer-feature-etl/internal/observability"
	"github.com/couchcryptid/aquifer-feature-etl/internal/spatial"
	"github.com/couchcryptid/storm-data-shared/retry"
	"golang.org/x/sync/errgroup"
)

// BatchExtractor reads up to batchSize location jobs from the source.
// It returns io.EOF once the source is drained.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.LocationJob, error)
}

// Transformer assembles the feature vectors of one location job.
type Transformer interface {
	Transform(ctx context.Context, job domain.LocationJob) (features.Result, error)
}

// BatchLoader writes multiple feature vectors to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, vectors []domain.FeatureVector) error
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithWorkers bounds how many jobs are assembled concurrently.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithTerrain lets jobs without a terrain profile borrow the nearest sample
// in catalog, provided it lies within maxDistance meters.
func WithTerrain(catalog *TerrainCatalog, maxDistance float64) Option {
	return func(p *Pipeline) {
		p.terrain = catalog
		p.maxTerrainDistance = maxDistance
	}
}

// WithLocationIndex publishes the locations seen so far to h after every
// loaded batch.
func WithLocationIndex(h *spatial.Holder) Option {
	return func(p *Pipeline) { p.locations = h }
}

// Pipeline orchestrates the extract-assemble-load loop.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      BatchLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
	batchSize   int
	workers     int

	terrain            *TerrainCatalog
	maxTerrainDistance float64

	locations *spatial.Holder
	seen      map[string]domain.Location
	order     []string
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int, opts ...Option) *Pipeline {
	p := &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
		workers:     1,
		seen:        make(map[string]domain.Location),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CheckReadiness returns nil once a batch has been loaded or the source has
// been drained.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not loaded any feature vectors yet")
	}
	return nil
}

// Run executes the batch loop until the source is drained or the context is
// cancelled. A ConfigurationError aborts the run and is returned.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize, "workers", p.workers)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		more, err := p.processBatch(ctx, &backoff, maxBackoff)
		if err != nil {
			p.metrics.ConfigurationErrors.Inc()
			p.logger.Error("pipeline aborted", "error", err)
			return err
		}
		if !more {
			return nil
		}
	}
}

// processBatch runs one extract-assemble-load cycle. Returns false when the
// pipeline should stop, and an error only for configuration problems.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) (bool, error) {
	start := time.Now()

	jobs, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if errors.Is(err, io.EOF) {
		p.ready.Store(true)
		p.logger.Info("source drained", "locations", len(p.order))
		return false, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return false, nil
		}
		if domain.IsConfigurationError(err) {
			return false, err
		}
		p.logger.Error("extract batch failed", "error", err)
		return p.backoffOrStop(ctx, backoff, maxBackoff), nil
	}

	if len(jobs) == 0 {
		return ctx.Err() == nil, nil
	}

	p.metrics.JobsConsumed.Add(float64(len(jobs)))
	p.metrics.BatchSize.Observe(float64(len(jobs)))
	*backoff = 200 * time.Millisecond

	p.attachTerrain(jobs)

	vectors, err := p.assemble(ctx, jobs)
	if err != nil {
		if ctx.Err() != nil {
			return false, nil
		}
		return false, err
	}

	if len(vectors) > 0 && !p.load(ctx, vectors, backoff, maxBackoff) {
		return false, nil
	}

	p.publishLocations(jobs)
	p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
	p.ready.Store(true)
	p.logger.Info("batch loaded", "jobs", len(jobs), "vectors", len(vectors),
		"duration", time.Since(start))
	return true, nil
}

// attachTerrain fills in the nearest anchored terrain sample for jobs that
// arrive without a profile.
func (p *Pipeline) attachTerrain(jobs []domain.LocationJob) {
	if p.terrain == nil {
		return
	}
	for i := range jobs {
		if jobs[i].Terrain != nil {
			continue
		}
		sample, dist, ok := p.terrain.Nearest(jobs[i].Location, p.maxTerrainDistance)
		if !ok {
			p.logger.Debug("no terrain sample in range",
				"location_id", jobs[i].Location.ID, "max_distance_m", p.maxTerrainDistance)
			continue
		}
		profile := sample.Profile
		jobs[i].Terrain = &profile
		p.logger.Debug("terrain sample attached",
			"location_id", jobs[i].Location.ID, "sample_id", sample.Location.ID,
			"tile_id", sample.TileID, "distance_m", dist)
	}
}

// assemble transforms every job on a bounded worker pool. Results keep job
// order. A ConfigurationError cancels the remaining work.
func (p *Pipeline) assemble(ctx context.Context, jobs []domain.LocationJob) ([]domain.FeatureVector, error) {
	results := make([]*features.Result, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i := range jobs {
		g.Go(func() error {
			res, err := p.transformer.Transform(gctx, jobs[i])
			if err != nil {
				if domain.IsConfigurationError(err) || gctx.Err() != nil {
					return err
				}
				p.logger.Warn("assemble failed, skipping location",
					"error", err, "location_id", jobs[i].Location.ID)
				p.metrics.TransformErrors.Inc()
				return nil
			}
			results[i] = &res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var vectors []domain.FeatureVector
	for i, res := range results {
		if res == nil {
			continue
		}
		p.record(jobs[i].Location, res)
		vectors = append(vectors, res.Vectors...)
	}
	return vectors, nil
}

// record logs and counts the data-quality outcomes of one job.
func (p *Pipeline) record(loc domain.Location, res *features.Result) {
	for _, u := range res.Unfit {
		p.metrics.UnfitIndices.WithLabelValues(indexKind(u.Feature)).Inc()
		p.logger.Warn("index unfit", "location_id", loc.ID, "feature", u.Feature, "reason", u.Reason)
	}
	for _, w := range res.Warnings {
		p.metrics.ClampedValues.WithLabelValues(indexKind(w.Feature)).Inc()
		p.logger.Warn("index value clamped",
			"location_id", w.LocationID,
			"feature", w.Feature,
			"date", w.Date.Format(time.DateOnly),
			"probability", w.Probability,
			"clamped", w.Clamped,
		)
	}
	for _, v := range res.Vectors {
		if !v.AllPresent() {
			p.metrics.IncompleteVectors.Inc()
		}
	}
	p.metrics.InsufficientFeatures.Add(float64(res.Insufficient))
}

// load writes vectors, retrying the same batch with backoff until it lands
// or the context ends. Retries go only to loaders that have not taken the
// batch yet. Returns false if the pipeline should stop.
func (p *Pipeline) load(ctx context.Context, vectors []domain.FeatureVector, backoff *time.Duration, maxBackoff time.Duration) bool {
	loader := p.loader
	for {
		err := loader.LoadBatch(ctx, vectors)
		if err == nil {
			p.metrics.VectorsProduced.Add(float64(len(vectors)))
			*backoff = 200 * time.Millisecond
			return true
		}
		var partial *PartialLoadError
		if errors.As(err, &partial) {
			loader = partial.Remaining
		}
		p.logger.Error("load batch failed", "error", err, "batch_size", len(vectors))
		if !p.backoffOrStop(ctx, backoff, maxBackoff) {
			return false
		}
	}
}

// publishLocations rebuilds the location index over every location seen so
// far and swaps it in.
func (p *Pipeline) publishLocations(jobs []domain.LocationJob) {
	if p.locations == nil {
		return
	}
	for _, j := range jobs {
		if _, ok := p.seen[j.Location.ID]; !ok {
			p.order = append(p.order, j.Location.ID)
		}
		p.seen[j.Location.ID] = j.Location
	}
	locs := make([]domain.Location, len(p.order))
	for i, id := range p.order {
		locs[i] = p.seen[id]
	}
	ix, err := spatial.Build(locs)
	if err != nil {
		p.logger.Error("rebuild location index failed", "error", err)
		return
	}
	p.locations.Store(ix)
	p.metrics.IndexedLocations.Set(float64(ix.Len()))
}

// backoffOrStop checks for context cancellation, sleeps with the current backoff,
// and advances the backoff. Returns false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !retry.SleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = retry.NextBackoff(*backoff, maxBackoff)
	return true
}

func indexKind(feature string) string {
	kind, _, _ := strings.Cut(feature, "_")
	return kind
}
