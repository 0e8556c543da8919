package terrain

import (
	"math"

	"github.com/couchcryptid/aquifer-feature-etl/internal/domain"
)

// field is a mutable working raster used while deriving grids.
type field struct {
	rows, cols int
	h          float64
	v          []float64
}

func fieldOf(g *domain.Grid) field {
	return field{rows: g.Rows(), cols: g.Cols(), h: g.Spec().CellSize, v: g.Cells()}
}

func (f field) like() field {
	return field{rows: f.rows, cols: f.cols, h: f.h, v: make([]float64, len(f.v))}
}

func (f field) at(r, c int) float64 { return f.v[r*f.cols+c] }

// ddx differentiates eastward along columns.
func (f field) ddx() field {
	out := f.like()
	for r := 0; r < f.rows; r++ {
		for c := 0; c < f.cols; c++ {
			var prev, next float64
			hasPrev, hasNext := c > 0, c < f.cols-1
			if hasPrev {
				prev = f.at(r, c-1)
			}
			if hasNext {
				next = f.at(r, c+1)
			}
			out.v[r*f.cols+c] = axisDerivative(prev, f.at(r, c), next, hasPrev, hasNext, f.h)
		}
	}
	return out
}

// ddy differentiates northward. Row 0 is the northern edge, so the
// neighbour to the north is r-1.
func (f field) ddy() field {
	out := f.like()
	for r := 0; r < f.rows; r++ {
		for c := 0; c < f.cols; c++ {
			var south, north float64
			hasSouth, hasNorth := r < f.rows-1, r > 0
			if hasSouth {
				south = f.at(r+1, c)
			}
			if hasNorth {
				north = f.at(r-1, c)
			}
			out.v[r*f.cols+c] = axisDerivative(south, f.at(r, c), north, hasSouth, hasNorth, f.h)
		}
	}
	return out
}

// axisDerivative uses a central difference when both neighbours are usable
// and the available one-sided pair otherwise. An axis with a single cell has
// no slope along it; an undefined centre, or a centre whose only neighbours
// are undefined, yields NaN.
func axisDerivative(prev, center, next float64, hasPrev, hasNext bool, h float64) float64 {
	if math.IsNaN(center) {
		return math.NaN()
	}
	prevOK := hasPrev && !math.IsNaN(prev)
	nextOK := hasNext && !math.IsNaN(next)
	switch {
	case prevOK && nextOK:
		return (next - prev) / (2 * h)
	case nextOK:
		return (next - center) / h
	case prevOK:
		return (center - prev) / h
	case !hasPrev && !hasNext:
		return 0
	default:
		return math.NaN()
	}
}

func (f field) grid(spec domain.GridSpec) (*domain.Grid, error) {
	return domain.NewGrid(spec, f.v)
}
