package terrain_test

import (
	"math"
	"testing"

	"github.com/couchcryptid/aquifer-feature-etl/internal/domain"
	"github.com/couchcryptid/aquifer-feature-etl/internal/terrain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spec(rows, cols int, cell float64) domain.GridSpec {
	return domain.GridSpec{Rows: rows, Cols: cols, CellSize: cell, CRS: "EPSG:32614"}
}

func gridOf(t *testing.T, s domain.GridSpec, f func(r, c int) float64) *domain.Grid {
	t.Helper()
	g, err := domain.NewGridFunc(s, f)
	require.NoError(t, err)
	return g
}

func constant(v float64) func(int, int) float64 {
	return func(int, int) float64 { return v }
}

func TestDerive_FlatTerrainWetness(t *testing.T) {
	s := spec(5, 5, 30)
	dem := gridOf(t, s, constant(1000))
	flow := gridOf(t, s, constant(50))

	d, err := terrain.Derive(dem, flow, nil, terrain.DefaultOptions())
	require.NoError(t, err)

	for r := 0; r < 5; r++ {
		for c := 0; c < 5; c++ {
			assert.Equal(t, 0.0, d.Slope.At(r, c))
			assert.InDelta(t, math.Log(51/0.001), d.TWI.At(r, c), 1e-9)
			assert.InDelta(t, 10.84, d.TWI.At(r, c), 0.01)
			assert.True(t, math.IsNaN(d.Aspect.At(r, c)), "flat aspect is undefined, not zero")
			assert.Equal(t, terrain.AspectFlat, d.AspectClass(r, c))
			assert.Equal(t, 0.0, d.TPI.At(r, c))
		}
	}
	assert.Nil(t, d.DistanceToWater)
}

func TestDerive_InclinedPlane(t *testing.T) {
	tests := []struct {
		name   string
		z      func(r, c int) float64
		aspect float64
	}{
		{"rises east", func(_, c int) float64 { return float64(c) }, 270},
		{"rises west", func(_, c int) float64 { return float64(-c) }, 90},
		{"rises north", func(r, _ int) float64 { return float64(-r) }, 180},
		{"rises south", func(r, _ int) float64 { return float64(r) }, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := terrain.Derive(gridOf(t, spec(4, 4, 10), tt.z), nil, nil, terrain.DefaultOptions())
			require.NoError(t, err)

			want := math.Atan(0.1) * 180 / math.Pi
			for r := 0; r < 4; r++ {
				for c := 0; c < 4; c++ {
					assert.InDelta(t, want, d.Slope.At(r, c), 1e-9)
					assert.InDelta(t, tt.aspect, d.Aspect.At(r, c), 1e-9)
					assert.Equal(t, terrain.AspectDefined, d.AspectClass(r, c))
				}
			}
		})
	}
}

func TestDerive_SlopeStaysInRange(t *testing.T) {
	d, err := terrain.Derive(gridOf(t, spec(3, 3, 1), func(_, c int) float64 { return float64(c) * 1e6 }),
		nil, nil, terrain.DefaultOptions())
	require.NoError(t, err)

	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			v := d.Slope.At(r, c)
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 90.0)
		}
	}
}

func TestDerive_CurvatureSign(t *testing.T) {
	ridge := func(_, c int) float64 { x := float64(c - 2); return 100 - x*x }
	valley := func(r, c int) float64 { return 200 - ridge(r, c) }

	d, err := terrain.Derive(gridOf(t, spec(3, 5, 1), ridge), nil, nil, terrain.DefaultOptions())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, d.Curvature.At(1, 2), 1e-12, "crest uses mean axis curvature")
	assert.InDelta(t, 1.5, d.Curvature.At(1, 1), 1e-12)
	assert.InDelta(t, 2.0, d.TotalCurvature.At(1, 2), 1e-12)
	assert.True(t, math.IsNaN(d.PlanCurvature.At(1, 2)), "plan curvature needs a gradient")

	v, err := terrain.Derive(gridOf(t, spec(3, 5, 1), valley), nil, nil, terrain.DefaultOptions())
	require.NoError(t, err)
	assert.InDelta(t, -1.0, v.Curvature.At(1, 2), 1e-12)
	assert.InDelta(t, -1.5, v.Curvature.At(1, 1), 1e-12)
	assert.Less(t, v.TotalCurvature.At(1, 2), 0.0)
}

func TestDerive_TPI(t *testing.T) {
	peak := func(r, c int) float64 {
		if r == 1 && c == 1 {
			return 109
		}
		return 100
	}
	d, err := terrain.Derive(gridOf(t, spec(3, 3, 30), peak), nil, nil, terrain.DefaultOptions())
	require.NoError(t, err)

	assert.InDelta(t, 8.0, d.TPI.At(1, 1), 1e-12)
	assert.InDelta(t, -2.25, d.TPI.At(0, 0), 1e-12, "edge window is truncated")

	pit := func(r, c int) float64 { return 200 - peak(r, c) }
	p, err := terrain.Derive(gridOf(t, spec(3, 3, 30), pit), nil, nil, terrain.DefaultOptions())
	require.NoError(t, err)
	assert.Less(t, p.TPI.At(1, 1), 0.0)
}

func TestDerive_UndefinedCellsPropagate(t *testing.T) {
	hole := func(r, c int) float64 {
		if r == 1 && c == 1 {
			return math.NaN()
		}
		return float64(r + c)
	}
	s := spec(4, 4, 10)
	flow := gridOf(t, s, constant(5))
	water := gridOf(t, s, func(r, c int) float64 {
		if r == 3 && c == 3 {
			return 1
		}
		return 0
	})
	d, err := terrain.Derive(gridOf(t, s, hole), flow, water, terrain.DefaultOptions())
	require.NoError(t, err)

	for name, g := range map[string]*domain.Grid{
		"slope": d.Slope, "aspect": d.Aspect, "curvature": d.Curvature,
		"plan": d.PlanCurvature, "total": d.TotalCurvature, "tpi": d.TPI,
		"twi": d.TWI, "distance": d.DistanceToWater,
	} {
		assert.True(t, math.IsNaN(g.At(1, 1)), name)
	}
	assert.Equal(t, terrain.AspectNoData, d.AspectClass(1, 1))

	assert.False(t, math.IsNaN(d.Slope.At(3, 3)))
	assert.False(t, math.IsNaN(d.TPI.At(0, 0)), "window skips undefined neighbours")
}

func TestDerive_Misaligned(t *testing.T) {
	dem := gridOf(t, spec(3, 3, 30), constant(1))

	_, err := terrain.Derive(dem, gridOf(t, spec(3, 3, 10), constant(1)), nil, terrain.DefaultOptions())
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = terrain.Derive(dem, nil, gridOf(t, spec(3, 4, 30), constant(1)), terrain.DefaultOptions())
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	other := spec(3, 3, 30)
	other.CRS = "EPSG:4326"
	_, err = terrain.Derive(dem, gridOf(t, other, constant(1)), nil, terrain.DefaultOptions())
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestDerive_NegativeFlowIsUndefined(t *testing.T) {
	s := spec(2, 2, 30)
	flow := gridOf(t, s, func(r, c int) float64 {
		if r == 0 && c == 0 {
			return -1
		}
		return 3
	})
	d, err := terrain.Derive(gridOf(t, s, constant(10)), flow, nil, terrain.DefaultOptions())
	require.NoError(t, err)

	assert.True(t, math.IsNaN(d.TWI.At(0, 0)))
	assert.InDelta(t, math.Log(4/0.001), d.TWI.At(1, 1), 1e-9)
}

func TestDerive_InvalidOptions(t *testing.T) {
	dem := gridOf(t, spec(2, 2, 30), constant(1))

	_, err := terrain.Derive(dem, nil, nil, terrain.Options{TPIRadius: 0, TWIEpsilon: 0.001})
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = terrain.Derive(dem, nil, nil, terrain.Options{TPIRadius: 1})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestDistanceToWater(t *testing.T) {
	line := spec(1, 5, 30)
	water := gridOf(t, line, func(_, c int) float64 {
		if c == 0 {
			return 1
		}
		return 0
	})
	d, err := terrain.Derive(gridOf(t, line, constant(5)), nil, water, terrain.DefaultOptions())
	require.NoError(t, err)
	for c := 0; c < 5; c++ {
		assert.InDelta(t, float64(c)*30, d.DistanceToWater.At(0, c), 1e-9)
	}

	square := spec(3, 3, 10)
	corner := gridOf(t, square, func(r, c int) float64 {
		if r == 0 && c == 0 {
			return 1
		}
		return 0
	})
	d, err = terrain.Derive(gridOf(t, square, constant(5)), nil, corner, terrain.DefaultOptions())
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt(8)*10, d.DistanceToWater.At(2, 2), 1e-9)
	assert.InDelta(t, math.Sqrt(5)*10, d.DistanceToWater.At(1, 2), 1e-9)

	dry := gridOf(t, square, constant(0))
	d, err = terrain.Derive(gridOf(t, square, constant(5)), nil, dry, terrain.DefaultOptions())
	require.NoError(t, err)
	assert.True(t, math.IsNaN(d.DistanceToWater.At(1, 1)))
}

func TestSampleTile(t *testing.T) {
	s := spec(3, 3, 30)
	tile := domain.TerrainTile{
		ID:               "tile-1",
		Elevation:        gridOf(t, s, constant(1000)),
		FlowAccumulation: gridOf(t, s, constant(50)),
		Anchors: []domain.Anchor{
			{Location: domain.Location{ID: "w-1", Lon: -97.1, Lat: 35.2}, Row: 1, Col: 1},
		},
	}

	samples, d, err := terrain.SampleTile(tile, terrain.DefaultOptions())
	require.NoError(t, err)
	require.NotNil(t, d)
	require.Len(t, samples, 1)

	p := samples[0].Profile
	assert.Equal(t, "tile-1", samples[0].TileID)
	assert.Equal(t, domain.Some(1000), p.Elevation)
	assert.True(t, p.Flat)
	assert.False(t, p.Aspect.Valid)
	assert.InDelta(t, 10.84, p.TWI.V, 0.01)
	assert.False(t, p.DistanceToWater.Valid)

	tile.Anchors[0].Row = 7
	_, _, err = terrain.SampleTile(tile, terrain.DefaultOptions())
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
