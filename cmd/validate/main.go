// Command validate performs integrity checks across the pipeline's input and
// output files: terrain tiles, location jobs, and derived feature vectors.
// It verifies grid alignment, anchor placement, ID uniqueness, series shape,
// and that stored vectors match a fresh derivation of the same inputs.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -tiles data/mock/tiles.jsonl \
//	  -locations data/mock/locations.jsonl \
//	  -vectors data/mock/vectors.jsonl
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"slices"
	"time"

	"github.com/couchcryptid/aquifer-feature-etl/internal/adapter/jsonl"
	"github.com/couchcryptid/aquifer-feature-etl/internal/config"
	"github.com/couchcryptid/aquifer-feature-etl/internal/domain"
	"github.com/couchcryptid/aquifer-feature-etl/internal/features"
	"github.com/couchcryptid/aquifer-feature-etl/internal/observability"
	"github.com/couchcryptid/aquifer-feature-etl/internal/pipeline"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	tilesPath := flag.String("tiles", "", "path to terrain tiles (JSON lines)")
	locationsPath := flag.String("locations", "", "path to location jobs (JSON lines)")
	vectorsPath := flag.String("vectors", "", "optional path to derived feature vectors (JSON lines)")
	maxDistance := flag.Float64("terrain-max-distance", 5000, "meters a location may borrow terrain from")
	flag.Parse()

	if *tilesPath == "" || *locationsPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*tilesPath, *locationsPath, *vectorsPath, *maxDistance); code != 0 {
		os.Exit(code)
	}
}

func run(tilesPath, locationsPath, vectorsPath string, maxDistance float64) int {
	fmt.Println("=== Feature Data Integrity Validation ===")
	fmt.Println()

	tiles, err := loadTiles(tilesPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load tiles: %v\n", err)
		return 1
	}
	jobs, err := loadJobs(locationsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load locations: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateTiles(tiles),
		validateJobs(jobs),
		validateCoverage(tiles, jobs, maxDistance),
	}

	var vectors []domain.FeatureVector
	if vectorsPath != "" {
		vectors, err = jsonl.ReadVectors(vectorsPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load vectors: %v\n", err)
			return 1
		}
		phases = append(phases, validateVectors(tiles, jobs, vectors, maxDistance))
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d tiles, %d locations, %d vectors\n", len(tiles), len(jobs), len(vectors))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Data loading ──

func loadTiles(path string) ([]domain.TerrainTile, error) {
	r, err := jsonl.OpenTiles(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var tiles []domain.TerrainTile
	for {
		tile, err := r.NextTile(context.Background())
		if errors.Is(err, io.EOF) {
			return tiles, nil
		}
		if err != nil {
			return nil, err
		}
		tiles = append(tiles, tile)
	}
}

func loadJobs(path string) ([]domain.LocationJob, error) {
	r, err := jsonl.OpenJobs(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.ReadAll(context.Background())
}

// ── Phase 1: Tiles ──
// Grids align within each tile and every anchor sits on a defined cell.

func validateTiles(tiles []domain.TerrainTile) *phase {
	p := &phase{name: "Phase 1: Terrain Tiles"}
	tileIDs := make(map[string]bool)
	anchorIDs := make(map[string]string)

	for _, tile := range tiles {
		if tile.ID == "" {
			p.errorf("tile without id")
		}
		if tileIDs[tile.ID] {
			p.errorf("tile %q: duplicate id", tile.ID)
		}
		tileIDs[tile.ID] = true

		var others []*domain.Grid
		for _, g := range []*domain.Grid{tile.FlowAccumulation, tile.WaterMask} {
			if g != nil {
				others = append(others, g)
			}
		}
		if err := domain.CheckAligned(tile.Elevation, others...); err != nil {
			p.errorf("tile %q: %v", tile.ID, err)
		}
		if len(tile.Anchors) == 0 {
			p.errorf("tile %q: no anchors", tile.ID)
		}
		for _, a := range tile.Anchors {
			checkAnchor(p, tile, a)
			if prev, dup := anchorIDs[a.Location.ID]; dup {
				p.errorf("anchor %q in tile %q already anchored in %q", a.Location.ID, tile.ID, prev)
			}
			anchorIDs[a.Location.ID] = tile.ID
		}
	}
	return p
}

func checkAnchor(p *phase, tile domain.TerrainTile, a domain.Anchor) {
	if err := a.Location.Validate(); err != nil {
		p.errorf("tile %q anchor %q: %v", tile.ID, a.Location.ID, err)
	}
	if !tile.Elevation.InBounds(a.Row, a.Col) {
		p.errorf("tile %q anchor %q: cell (%d,%d) outside %dx%d grid",
			tile.ID, a.Location.ID, a.Row, a.Col, tile.Elevation.Rows(), tile.Elevation.Cols())
		return
	}
	if !tile.Elevation.Defined(a.Row, a.Col) {
		p.errorf("tile %q anchor %q: elevation undefined at (%d,%d)", tile.ID, a.Location.ID, a.Row, a.Col)
	}
}

// ── Phase 2: Location Jobs ──
// Locations are valid and unique; each job's series share one period and
// carry at least one observation.

func validateJobs(jobs []domain.LocationJob) *phase {
	p := &phase{name: "Phase 2: Location Jobs"}
	seen := make(map[string]bool)

	for i, job := range jobs {
		id := job.Location.ID
		if err := job.Location.Validate(); err != nil {
			p.errorf("job %d: %v", i+1, err)
		}
		if seen[id] {
			p.errorf("location %q: duplicate job", id)
		}
		seen[id] = true

		if len(job.Series) == 0 {
			p.errorf("location %q: no series", id)
		}
		metrics := make(map[string]bool)
		for _, s := range job.Series {
			if metrics[s.Metric()] {
				p.errorf("location %q: metric %q supplied twice", id, s.Metric())
			}
			metrics[s.Metric()] = true
			if s.Period() != job.Series[0].Period() {
				p.errorf("location %q: metric %q is %s, expected %s", id, s.Metric(), s.Period(), job.Series[0].Period())
			}
			if s.Len() > 0 && s.ValidCount() == 0 {
				p.errorf("location %q: metric %q has no observations", id, s.Metric())
			}
		}
		if !metrics[features.MetricPrecip] {
			p.errorf("location %q: no %s series", id, features.MetricPrecip)
		}
	}
	return p
}

// ── Phase 3: Coverage ──
// Every anchor has a job. Jobs without a terrain source are listed so they
// can be told apart from intended orphans.

func validateCoverage(tiles []domain.TerrainTile, jobs []domain.LocationJob, maxDistance float64) *phase {
	p := &phase{name: "Phase 3: Terrain Coverage"}
	jobIDs := make(map[string]bool, len(jobs))
	for _, j := range jobs {
		jobIDs[j.Location.ID] = true
	}
	for _, tile := range tiles {
		for _, a := range tile.Anchors {
			if !jobIDs[a.Location.ID] {
				p.errorf("anchor %q in tile %q has no location job", a.Location.ID, tile.ID)
			}
		}
	}

	catalog, err := buildCatalog(tiles)
	if err != nil {
		p.errorf("derive terrain: %v", err)
		return p
	}
	orphans := 0
	for _, j := range jobs {
		if j.Terrain != nil {
			continue
		}
		if _, _, ok := catalog.Nearest(j.Location, maxDistance); !ok {
			orphans++
		}
	}
	fmt.Printf("  %d of %d locations have no terrain within %.0f m\n", orphans, len(jobs), maxDistance)
	return p
}

// ── Phase 4: Vectors ──
// Re-derives every job with default engine parameters and compares the
// result with the stored vectors slot by slot.

func validateVectors(tiles []domain.TerrainTile, jobs []domain.LocationJob, vectors []domain.FeatureVector, maxDistance float64) *phase {
	p := &phase{name: "Phase 4: Feature Vectors"}

	stored := make(map[string]domain.FeatureVector, len(vectors))
	for _, v := range vectors {
		k := vectorKey(v.Location().ID, v.Date())
		if _, dup := stored[k]; dup {
			p.errorf("vector %s: duplicate", k)
		}
		stored[k] = v
		if v.GeneratedAt().IsZero() {
			p.errorf("vector %s: no generated_at", k)
		}
	}

	catalog, err := buildCatalog(tiles)
	if err != nil {
		p.errorf("derive terrain: %v", err)
		return p
	}
	assembler, err := features.NewAssembler(config.DefaultEngine().Features)
	if err != nil {
		p.errorf("assembler: %v", err)
		return p
	}
	want := assembler.Schema().Names()

	derived := 0
	for _, job := range jobs {
		if job.Terrain == nil {
			if sample, _, ok := catalog.Nearest(job.Location, maxDistance); ok {
				profile := sample.Profile
				job.Terrain = &profile
			}
		}
		res, err := assembler.Assemble(job)
		if err != nil {
			p.errorf("location %q: %v", job.Location.ID, err)
			continue
		}
		for _, fresh := range res.Vectors {
			derived++
			k := vectorKey(job.Location.ID, fresh.Date())
			got, ok := stored[k]
			if !ok {
				p.errorf("vector %s: missing", k)
				continue
			}
			compareVectors(p, k, want, fresh, got)
		}
	}
	if derived != len(vectors) {
		p.errorf("vector count: derived %d, stored %d", derived, len(vectors))
	}
	return p
}

func compareVectors(p *phase, key string, names []string, want, got domain.FeatureVector) {
	if !slices.Equal(names, got.Schema().Names()) {
		p.errorf("vector %s: schema differs from engine defaults", key)
		return
	}
	if !got.Complete() {
		p.errorf("vector %s: unset features %v", key, got.WithStatus(domain.StatusUnset))
	}
	for _, name := range names {
		w, _ := want.Get(name)
		g, _ := got.Get(name)
		switch {
		case w.Status != g.Status:
			p.errorf("vector %s %s: status %s, expected %s", key, name, g.Status, w.Status)
		case w.Present() && !floatEq(w.Value, g.Value):
			p.errorf("vector %s %s: value %g, expected %g", key, name, g.Value, w.Value)
		}
	}
}

func buildCatalog(tiles []domain.TerrainTile) (*pipeline.TerrainCatalog, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return pipeline.BuildTerrain(context.Background(), &sliceSource{tiles: tiles},
		config.DefaultEngine().Terrain, 1, logger, observability.NewMetricsForTesting())
}

type sliceSource struct {
	tiles []domain.TerrainTile
	next  int
}

func (s *sliceSource) NextTile(context.Context) (domain.TerrainTile, error) {
	if s.next >= len(s.tiles) {
		return domain.TerrainTile{}, io.EOF
	}
	s.next++
	return s.tiles[s.next-1], nil
}

func vectorKey(id string, date time.Time) string {
	return id + "/" + date.Format(time.DateOnly)
}

func floatEq(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Abs(a))
}
