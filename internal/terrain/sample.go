package terrain

import (
	"github.com/couchcryptid/aquifer-feature-etl/internal/domain"
)

// Profile reads the static features of one cell.
func (d *Derivatives) Profile(row, col int) (domain.TerrainProfile, error) {
	if !d.Elevation.InBounds(row, col) {
		return domain.TerrainProfile{}, domain.ConfigErrorf("anchor",
			"cell (%d,%d) outside %dx%d grid", row, col, d.Elevation.Rows(), d.Elevation.Cols())
	}
	read := func(g *domain.Grid) domain.Value {
		if g == nil {
			return domain.Missing()
		}
		return domain.Some(g.At(row, col))
	}
	return domain.TerrainProfile{
		Elevation:       read(d.Elevation),
		Slope:           read(d.Slope),
		Aspect:          read(d.Aspect),
		Curvature:       read(d.Curvature),
		PlanCurvature:   read(d.PlanCurvature),
		TotalCurvature:  read(d.TotalCurvature),
		TPI:             read(d.TPI),
		TWI:             read(d.TWI),
		DistanceToWater: read(d.DistanceToWater),
		Flat:            d.AspectClass(row, col) == AspectFlat,
	}, nil
}

// SampleTile derives the tile's grids and reads a profile at every anchor.
func SampleTile(tile domain.TerrainTile, opts Options) ([]domain.TerrainSample, *Derivatives, error) {
	if tile.Elevation == nil {
		return nil, nil, domain.ConfigErrorf("tile", "%s: elevation grid is required", tile.ID)
	}
	d, err := Derive(tile.Elevation, tile.FlowAccumulation, tile.WaterMask, opts)
	if err != nil {
		return nil, nil, err
	}
	samples := make([]domain.TerrainSample, 0, len(tile.Anchors))
	for _, a := range tile.Anchors {
		if err := a.Location.Validate(); err != nil {
			return nil, nil, err
		}
		p, err := d.Profile(a.Row, a.Col)
		if err != nil {
			return nil, nil, err
		}
		samples = append(samples, domain.TerrainSample{Location: a.Location, TileID: tile.ID, Profile: p})
	}
	return samples, d, nil
}
