// Command genmock writes a reproducible synthetic dataset: terrain tiles,
// location jobs, and the feature vectors the pipeline derives from them.
// The vectors file is produced by the real pipeline so it matches service
// output byte for byte.
//
// Usage:
//
//	go run ./cmd/genmock -out-dir data/mock -seed 1 -months 36
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/aquifer-feature-etl/internal/adapter/jsonl"
	"github.com/couchcryptid/aquifer-feature-etl/internal/config"
	"github.com/couchcryptid/aquifer-feature-etl/internal/domain"
	"github.com/couchcryptid/aquifer-feature-etl/internal/features"
	"github.com/couchcryptid/aquifer-feature-etl/internal/mockdata"
	"github.com/couchcryptid/aquifer-feature-etl/internal/observability"
	"github.com/couchcryptid/aquifer-feature-etl/internal/pipeline"
	"github.com/jonboulle/clockwork"
)

const (
	tilesFile     = "tiles.jsonl"
	locationsFile = "locations.jsonl"
	vectorsFile   = "vectors.jsonl"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	p := mockdata.DefaultParams()
	outDir := flag.String("out-dir", "data/mock", "directory for the generated files")
	seed := flag.Uint64("seed", p.Seed, "random seed")
	flag.IntVar(&p.Tiles, "tiles", p.Tiles, "number of terrain tiles")
	flag.IntVar(&p.AnchorsPerTile, "anchors", p.AnchorsPerTile, "locations anchored in each tile")
	flag.IntVar(&p.Orphans, "orphans", p.Orphans, "locations outside every tile")
	flag.IntVar(&p.Months, "months", p.Months, "months of climate history per location")
	flag.Float64Var(&p.MissingRate, "missing-rate", p.MissingRate, "share of series values left missing")
	maxDistance := flag.Float64("terrain-max-distance", 5000, "meters a location may borrow terrain from")
	skipVectors := flag.Bool("skip-vectors", false, "write inputs only")
	flag.Parse()
	p.Seed = *seed

	ds, err := mockdata.Generate(p)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return err
	}

	tilesPath := filepath.Join(*outDir, tilesFile)
	if err := writeLines(tilesPath, ds.Tiles); err != nil {
		return err
	}
	log.Printf("%s: %d tiles", tilesPath, len(ds.Tiles))

	locationsPath := filepath.Join(*outDir, locationsFile)
	if err := writeLines(locationsPath, ds.Jobs); err != nil {
		return err
	}
	log.Printf("%s: %d locations", locationsPath, len(ds.Jobs))

	if *skipVectors {
		return nil
	}

	// Set a fixed clock for reproducible GeneratedAt timestamps.
	domain.SetClock(clockwork.NewFakeClockAt(
		time.Date(2024, time.April, 27, 6, 0, 0, 0, time.UTC),
	))
	defer domain.SetClock(nil)

	vectorsPath := filepath.Join(*outDir, vectorsFile)
	n, err := derive(tilesPath, locationsPath, vectorsPath, *maxDistance)
	if err != nil {
		return err
	}
	log.Printf("%s: %d vectors", vectorsPath, n)
	return nil
}

func writeLines[T any](path string, items []T) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := jsonl.NewWriter(f)
	for i := range items {
		if err := w.Write(items[i]); err != nil {
			_ = f.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return f.Close()
}

// derive runs the pipeline over the generated inputs with default engine
// parameters and a single worker.
func derive(tilesPath, locationsPath, vectorsPath string, maxDistance float64) (int, error) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	engine := config.DefaultEngine()

	tiles, err := jsonl.OpenTiles(tilesPath)
	if err != nil {
		return 0, err
	}
	catalog, err := pipeline.BuildTerrain(ctx, tiles, engine.Terrain, 1, logger, metrics)
	_ = tiles.Close()
	if err != nil {
		return 0, err
	}

	assembler, err := features.NewAssembler(engine.Features)
	if err != nil {
		return 0, err
	}
	jobs, err := jsonl.OpenJobs(locationsPath)
	if err != nil {
		return 0, err
	}
	defer jobs.Close()

	out, err := os.Create(vectorsPath)
	if err != nil {
		return 0, err
	}
	counter := &countingLoader{next: jsonl.NewWriter(out)}

	p := pipeline.New(jobs, pipeline.NewTransformer(assembler, logger), counter, logger, metrics, 50,
		pipeline.WithTerrain(catalog, maxDistance))
	if err := p.Run(ctx); err != nil {
		_ = out.Close()
		return 0, err
	}
	return counter.n, out.Close()
}

type countingLoader struct {
	next pipeline.BatchLoader
	n    int
}

func (c *countingLoader) LoadBatch(ctx context.Context, vectors []domain.FeatureVector) error {
	if err := c.next.LoadBatch(ctx, vectors); err != nil {
		return err
	}
	c.n += len(vectors)
	return nil
}
