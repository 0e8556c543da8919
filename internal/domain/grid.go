package domain

import (
	"encoding/json"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// GridSpec describes the geometry shared by aligned grids. Row 0 is the
// northern edge; CellSize is in meters.
type GridSpec struct {
	Rows     int     `json:"rows"`
	Cols     int     `json:"cols"`
	CellSize float64 `json:"cell_size"`
	OriginX  float64 `json:"origin_x"`
	OriginY  float64 `json:"origin_y"`
	CRS      string  `json:"crs"`
}

// Validate checks that s describes a usable raster.
func (s GridSpec) Validate() error {
	switch {
	case s.Rows <= 0 || s.Cols <= 0:
		return ConfigErrorf("grid", "shape %dx%d must be positive", s.Rows, s.Cols)
	case !(s.CellSize > 0) || math.IsInf(s.CellSize, 0):
		return ConfigErrorf("grid", "cell size %g must be positive", s.CellSize)
	case s.CRS == "":
		return ConfigErrorf("grid", "crs is required")
	}
	return nil
}

// Aligned reports whether two specs share shape, cell size and CRS.
func (s GridSpec) Aligned(o GridSpec) bool {
	return s.Rows == o.Rows && s.Cols == o.Cols && s.CellSize == o.CellSize && s.CRS == o.CRS
}

// Grid is an immutable row-major raster. Undefined cells hold NaN.
type Grid struct {
	spec  GridSpec
	cells []float64
}

// NewGrid copies cells into a new Grid.
func NewGrid(spec GridSpec, cells []float64) (*Grid, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if len(cells) != spec.Rows*spec.Cols {
		return nil, ConfigErrorf("grid", "got %d cells for %dx%d shape", len(cells), spec.Rows, spec.Cols)
	}
	return &Grid{spec: spec, cells: append([]float64(nil), cells...)}, nil
}

// NewGridFunc builds a Grid by evaluating f at every cell.
func NewGridFunc(spec GridSpec, f func(row, col int) float64) (*Grid, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	cells := make([]float64, spec.Rows*spec.Cols)
	for r := 0; r < spec.Rows; r++ {
		for c := 0; c < spec.Cols; c++ {
			cells[r*spec.Cols+c] = f(r, c)
		}
	}
	return &Grid{spec: spec, cells: cells}, nil
}

func (g *Grid) Spec() GridSpec { return g.spec }
func (g *Grid) Rows() int      { return g.spec.Rows }
func (g *Grid) Cols() int      { return g.spec.Cols }

// InBounds reports whether (row, col) addresses a cell.
func (g *Grid) InBounds(row, col int) bool {
	return row >= 0 && row < g.spec.Rows && col >= 0 && col < g.spec.Cols
}

// At returns the cell value, NaN when undefined. Out-of-range indexes panic.
func (g *Grid) At(row, col int) float64 {
	if !g.InBounds(row, col) {
		panic(fmt.Sprintf("grid index (%d,%d) out of range %dx%d", row, col, g.spec.Rows, g.spec.Cols))
	}
	return g.cells[row*g.spec.Cols+col]
}

// Defined reports whether the cell holds a value.
func (g *Grid) Defined(row, col int) bool { return !math.IsNaN(g.At(row, col)) }

// Cells returns a copy of the row-major cell values.
func (g *Grid) Cells() []float64 { return append([]float64(nil), g.cells...) }

// GridStats summarizes the defined cells of a grid.
type GridStats struct {
	Defined   int     `json:"defined"`
	Undefined int     `json:"undefined"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Mean      float64 `json:"mean"`
}

// Stats summarizes the grid. Min, Max and Mean are NaN when nothing is defined.
func (g *Grid) Stats() GridStats {
	defined := make([]float64, 0, len(g.cells))
	for _, v := range g.cells {
		if !math.IsNaN(v) {
			defined = append(defined, v)
		}
	}
	st := GridStats{Defined: len(defined), Undefined: len(g.cells) - len(defined)}
	if len(defined) == 0 {
		st.Min, st.Max, st.Mean = math.NaN(), math.NaN(), math.NaN()
		return st
	}
	st.Min = floats.Min(defined)
	st.Max = floats.Max(defined)
	st.Mean = floats.Sum(defined) / float64(len(defined))
	return st
}

// CheckAligned returns a ConfigurationError when any non-nil grid differs
// from base in shape, cell size or CRS.
func CheckAligned(base *Grid, others ...*Grid) error {
	if base == nil {
		return ConfigErrorf("grid", "base grid is required")
	}
	for i, o := range others {
		if o == nil {
			continue
		}
		if !base.spec.Aligned(o.spec) {
			return ConfigErrorf("grid",
				"grid %d misaligned: %dx%d@%g %s vs %dx%d@%g %s", i+1,
				o.spec.Rows, o.spec.Cols, o.spec.CellSize, o.spec.CRS,
				base.spec.Rows, base.spec.Cols, base.spec.CellSize, base.spec.CRS)
		}
	}
	return nil
}

type gridJSON struct {
	Spec  GridSpec `json:"spec"`
	Cells []Value  `json:"cells"`
}

func (g *Grid) MarshalJSON() ([]byte, error) {
	cells := make([]Value, len(g.cells))
	for i, v := range g.cells {
		cells[i] = Some(v)
	}
	return json.Marshal(gridJSON{Spec: g.spec, Cells: cells})
}

func (g *Grid) UnmarshalJSON(data []byte) error {
	var raw gridJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	cells := make([]float64, len(raw.Cells))
	for i, v := range raw.Cells {
		cells[i] = v.Float()
	}
	parsed, err := NewGrid(raw.Spec, cells)
	if err != nil {
		return err
	}
	*g = *parsed
	return nil
}
