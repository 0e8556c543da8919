package pipeline

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/couchcryptid/aquifer-feature-etl/internal/domain"
	"github.com/couchcryptid/aquifer-feature-etl/internal/observability"
	"github.com/couchcryptid/aquifer-feature-etl/internal/spatial"
	"github.com/couchcryptid/aquifer-feature-etl/internal/terrain"
	"golang.org/x/sync/errgroup"
)

// TileSource yields terrain tiles one at a time and returns io.EOF when done.
type TileSource interface {
	NextTile(ctx context.Context) (domain.TerrainTile, error)
}

// TerrainCatalog indexes anchored terrain samples by position.
type TerrainCatalog struct {
	samples map[string]domain.TerrainSample
	index   *spatial.Index
}

// BuildTerrain derives every tile from src on a pool of workers and indexes
// the anchored samples. A misaligned tile aborts the build. When tiles
// overlap, the sample from the tile whose ID sorts first wins.
func BuildTerrain(ctx context.Context, src TileSource, opts terrain.Options, workers int, logger *slog.Logger, metrics *observability.Metrics) (*TerrainCatalog, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	var (
		mu      sync.Mutex
		samples []domain.TerrainSample
		tiles   int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for gctx.Err() == nil {
		tile, err := src.NextTile(gctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if werr := g.Wait(); werr != nil {
				return nil, werr
			}
			return nil, fmt.Errorf("read tile: %w", err)
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			got, _, err := terrain.SampleTile(tile, opts)
			if err != nil {
				metrics.TilesProcessed.WithLabelValues("error").Inc()
				return fmt.Errorf("tile %s: %w", tile.ID, err)
			}
			metrics.TilesProcessed.WithLabelValues("success").Inc()
			logger.Debug("tile derived", "tile_id", tile.ID,
				"rows", tile.Elevation.Rows(), "cols", tile.Elevation.Cols(), "anchors", len(got))
			mu.Lock()
			samples = append(samples, got...)
			tiles++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	catalog, err := NewTerrainCatalog(samples)
	if err != nil {
		return nil, err
	}
	metrics.TerrainSamples.Set(float64(catalog.Len()))
	logger.Info("terrain stage complete", "tiles", tiles, "samples", catalog.Len(),
		"strategy", catalog.index.Strategy())
	return catalog, nil
}

// NewTerrainCatalog indexes samples. Duplicate location IDs keep the sample
// from the tile whose ID sorts first.
func NewTerrainCatalog(samples []domain.TerrainSample) (*TerrainCatalog, error) {
	sorted := slices.Clone(samples)
	slices.SortStableFunc(sorted, func(a, b domain.TerrainSample) int {
		return cmp.Or(cmp.Compare(a.Location.ID, b.Location.ID), cmp.Compare(a.TileID, b.TileID))
	})

	c := &TerrainCatalog{samples: make(map[string]domain.TerrainSample, len(sorted))}
	locs := make([]domain.Location, 0, len(sorted))
	for _, s := range sorted {
		if _, dup := c.samples[s.Location.ID]; dup {
			continue
		}
		c.samples[s.Location.ID] = s
		locs = append(locs, s.Location)
	}
	ix, err := spatial.Build(locs)
	if err != nil {
		return nil, err
	}
	c.index = ix
	return c, nil
}

// Len returns the number of indexed samples.
func (c *TerrainCatalog) Len() int { return c.index.Len() }

// Index returns the spatial index over sample locations.
func (c *TerrainCatalog) Index() *spatial.Index { return c.index }

// Sample returns the sample anchored at the location with the given ID.
func (c *TerrainCatalog) Sample(id string) (domain.TerrainSample, bool) {
	s, ok := c.samples[id]
	return s, ok
}

// Nearest returns the sample closest to loc when it lies within maxDistance
// meters, with its distance.
func (c *TerrainCatalog) Nearest(loc domain.Location, maxDistance float64) (domain.TerrainSample, float64, bool) {
	if c.index.Len() == 0 {
		return domain.TerrainSample{}, 0, false
	}
	hits, err := c.index.Nearest(loc.Lon, loc.Lat, 1)
	if err != nil || len(hits) == 0 || hits[0].DistanceMeters > maxDistance {
		return domain.TerrainSample{}, 0, false
	}
	return c.samples[hits[0].Location.ID], hits[0].DistanceMeters, true
}
