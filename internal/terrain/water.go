package terrain

import (
	"math"

	"github.com/couchcryptid/aquifer-feature-etl/internal/domain"
)

// distanceToWater runs an exact Euclidean distance transform (Felzenszwalb &
// Huttenlocher) from every cell to the nearest non-zero mask cell, in meters.
// Cells undefined in either grid stay undefined, as does every cell of a tile
// without water.
func distanceToWater(dem, mask *domain.Grid) (*domain.Grid, error) {
	rows, cols := mask.Rows(), mask.Cols()
	big := float64(rows*rows+cols*cols) + 1
	f := make([]float64, rows*cols)
	anyWater := false
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if m := mask.At(r, c); !math.IsNaN(m) && m != 0 {
				anyWater = true
				continue
			}
			f[r*cols+c] = big
		}
	}
	if !anyWater {
		return domain.NewGridFunc(dem.Spec(), func(int, int) float64 { return math.NaN() })
	}

	n := max(rows, cols)
	line, out := make([]float64, n), make([]float64, n)
	v, zs := make([]int, n), make([]float64, n+1)
	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			line[r] = f[r*cols+c]
		}
		edt1d(line[:rows], out[:rows], v, zs)
		for r := 0; r < rows; r++ {
			f[r*cols+c] = out[r]
		}
	}
	for r := 0; r < rows; r++ {
		edt1d(f[r*cols:(r+1)*cols], out[:cols], v, zs)
		copy(f[r*cols:(r+1)*cols], out[:cols])
	}

	h := dem.Spec().CellSize
	return domain.NewGridFunc(dem.Spec(), func(r, c int) float64 {
		if math.IsNaN(dem.At(r, c)) || math.IsNaN(mask.At(r, c)) {
			return math.NaN()
		}
		return math.Sqrt(f[r*cols+c]) * h
	})
}

// edt1d writes the squared distance transform of f into d using the lower
// envelope of parabolas rooted at each sample.
func edt1d(f, d []float64, v []int, z []float64) {
	k := 0
	v[0] = 0
	z[0], z[1] = math.Inf(-1), math.Inf(1)
	for q := 1; q < len(f); q++ {
		s := intersect(f, q, v[k])
		for s <= z[k] {
			k--
			s = intersect(f, q, v[k])
		}
		k++
		v[k] = q
		z[k], z[k+1] = s, math.Inf(1)
	}
	k = 0
	for q := range f {
		for z[k+1] < float64(q) {
			k++
		}
		dq := float64(q - v[k])
		d[q] = dq*dq + f[v[k]]
	}
}

func intersect(f []float64, q, p int) float64 {
	fq, fp := f[q]+float64(q*q), f[p]+float64(p*p)
	return (fq - fp) / float64(2*q-2*p)
}
