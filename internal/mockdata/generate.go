// Package mockdata generates reproducible synthetic terrain tiles and
// location jobs for fixtures, demos and tests.
package mockdata

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/couchcryptid/aquifer-feature-etl/internal/domain"
	"github.com/google/uuid"
)

// namespace seeds the name-based location IDs so the same parameters always
// produce the same IDs.
var namespace = uuid.MustParse("6f1c2a4e-3b7d-5e9a-8c21-0d4f6b8a9e13")

// Params controls the size and shape of a generated dataset.
type Params struct {
	Seed           uint64
	Tiles          int
	AnchorsPerTile int
	// Orphans are locations outside every tile.
	Orphans  int
	Rows     int
	Cols     int
	CellSize float64
	Months   int
	Start    time.Time
	// MissingRate is the share of series values left missing.
	MissingRate float64
}

// DefaultParams returns a small dataset: 4 tiles of 64x64 cells at 30 m,
// 5 anchors each, and 36 months of climate from January 2020.
func DefaultParams() Params {
	return Params{
		Seed:           1,
		Tiles:          4,
		AnchorsPerTile: 5,
		Orphans:        2,
		Rows:           64,
		Cols:           64,
		CellSize:       30,
		Months:         36,
		Start:          time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC),
		MissingRate:    0.02,
	}
}

// Dataset is a generated set of tiles and the jobs for their locations.
type Dataset struct {
	Tiles []domain.TerrainTile
	Jobs  []domain.LocationJob
}

// LocationID returns the deterministic ID for a named point.
func LocationID(name string) string {
	return uuid.NewSHA1(namespace, []byte(name)).String()
}

// Generate builds a dataset. Equal params yield equal datasets.
func Generate(p Params) (Dataset, error) {
	if p.Tiles < 0 || p.AnchorsPerTile < 0 || p.Orphans < 0 || p.Rows < 3 || p.Cols < 3 ||
		!(p.CellSize > 0) || p.Months < 1 || p.MissingRate < 0 || p.MissingRate >= 1 {
		return Dataset{}, domain.ConfigErrorf("mockdata", "invalid params %+v", p)
	}
	rng := rand.New(rand.NewPCG(p.Seed, p.Seed^0x9e3779b97f4a7c15))
	start := domain.PeriodMonthly.Truncate(p.Start)

	var ds Dataset
	for t := range p.Tiles {
		lon := -101 + rng.Float64()*6
		lat := 33 + rng.Float64()*4
		tile, err := genTile(rng, p, t, lon, lat)
		if err != nil {
			return Dataset{}, err
		}
		ds.Tiles = append(ds.Tiles, tile)
		for _, a := range tile.Anchors {
			job, err := genJob(rng, p, start, a.Location)
			if err != nil {
				return Dataset{}, err
			}
			ds.Jobs = append(ds.Jobs, job)
		}
	}
	for o := range p.Orphans {
		loc := domain.Location{
			ID:  LocationID(fmt.Sprintf("orphan-%d", o)),
			Lon: 110 + rng.Float64()*10,
			Lat: -30 + rng.Float64()*10,
		}
		job, err := genJob(rng, p, start, loc)
		if err != nil {
			return Dataset{}, err
		}
		ds.Jobs = append(ds.Jobs, job)
	}
	return ds, nil
}

func genTile(rng *rand.Rand, p Params, index int, lon, lat float64) (domain.TerrainTile, error) {
	spec := domain.GridSpec{
		Rows:     p.Rows,
		Cols:     p.Cols,
		CellSize: p.CellSize,
		OriginX:  500000 + float64(index)*float64(p.Cols)*p.CellSize,
		OriginY:  3800000,
		CRS:      "EPSG:32614",
	}

	// A tilted plane with two ridges, so every tile has relief, a valley
	// floor and a direction of flow.
	base := 300 + rng.Float64()*700
	tilt := 0.5 + rng.Float64()
	phase := rng.Float64() * 2 * math.Pi
	elev := func(r, c int) float64 {
		x := float64(c) / float64(p.Cols)
		y := float64(r) / float64(p.Rows)
		return base + tilt*float64(r)*p.CellSize/30 +
			40*math.Sin(2*math.Pi*x+phase)*math.Cos(math.Pi*y) +
			rng.Float64()*0.5
	}
	cells := make([]float64, p.Rows*p.Cols)
	low, high := math.Inf(1), math.Inf(-1)
	for r := range p.Rows {
		for c := range p.Cols {
			z := elev(r, c)
			cells[r*p.Cols+c] = z
			low, high = math.Min(low, z), math.Max(high, z)
		}
	}
	dem, err := domain.NewGrid(spec, cells)
	if err != nil {
		return domain.TerrainTile{}, err
	}

	// Lower cells gather more upslope area.
	flow, err := domain.NewGridFunc(spec, func(r, c int) float64 {
		rel := (high - dem.At(r, c)) / (high - low + 1e-9)
		return math.Round(math.Pow(rel, 3) * float64(p.Rows*p.Cols) / 4)
	})
	if err != nil {
		return domain.TerrainTile{}, err
	}
	water, err := domain.NewGridFunc(spec, func(r, c int) float64 {
		if flow.At(r, c) > float64(p.Rows*p.Cols)/5 {
			return 1
		}
		return 0
	})
	if err != nil {
		return domain.TerrainTile{}, err
	}

	// Degrees per meter near lat.
	dLat := 1 / 110540.0
	dLon := 1 / (111320.0 * math.Cos(lat*math.Pi/180))
	anchors := make([]domain.Anchor, p.AnchorsPerTile)
	for a := range anchors {
		r, c := rng.IntN(p.Rows), rng.IntN(p.Cols)
		anchors[a] = domain.Anchor{
			Location: domain.Location{
				ID:  LocationID(fmt.Sprintf("tile-%d/anchor-%d", index, a)),
				Lon: lon + float64(c-p.Cols/2)*p.CellSize*dLon,
				Lat: lat - float64(r-p.Rows/2)*p.CellSize*dLat,
			},
			Row: r,
			Col: c,
		}
	}

	return domain.TerrainTile{
		ID:               fmt.Sprintf("tile-%03d", index),
		Elevation:        dem,
		FlowAccumulation: flow,
		WaterMask:        water,
		Anchors:          anchors,
	}, nil
}

func genJob(rng *rand.Rand, p Params, start time.Time, loc domain.Location) (domain.LocationJob, error) {
	precip := make([]domain.Value, p.Months)
	tmean := make([]domain.Value, p.Months)
	tmin := make([]domain.Value, p.Months)
	tmax := make([]domain.Value, p.Months)

	wet := 40 + rng.Float64()*60
	warm := 12 + rng.Float64()*10
	for i := range p.Months {
		season := math.Sin(2 * math.Pi * float64(int(start.Month())-1+i-3) / 12)
		// Roughly one dry month in eight.
		if rng.Float64() < 0.12 {
			precip[i] = domain.Some(0)
		} else {
			precip[i] = domain.Some(math.Round(wet*(1+0.5*season)*rng.ExpFloat64()*10) / 10)
		}
		mean := warm + 10*season + rng.NormFloat64()
		spread := 5 + rng.Float64()*4
		tmean[i] = domain.Some(math.Round(mean*10) / 10)
		tmin[i] = domain.Some(math.Round((mean-spread)*10) / 10)
		tmax[i] = domain.Some(math.Round((mean+spread)*10) / 10)

		if rng.Float64() < p.MissingRate {
			precip[i] = domain.Missing()
		}
	}

	series := make([]domain.Series, 0, 4)
	for _, m := range []struct {
		metric string
		values []domain.Value
	}{
		{"precip", precip}, {"tmean", tmean}, {"tmin", tmin}, {"tmax", tmax},
	} {
		s, err := domain.NewSeries(m.metric, domain.PeriodMonthly, start, m.values)
		if err != nil {
			return domain.LocationJob{}, err
		}
		series = append(series, s)
	}
	return domain.LocationJob{Location: loc, Series: series}, nil
}
