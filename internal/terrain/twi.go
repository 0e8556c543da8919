package terrain

import (
	"math"

	"github.com/couchcryptid/aquifer-feature-etl/internal/domain"
)

// wetnessIndex computes ln((fa + 1) / (tan(slope) + eps)). Cells with
// undefined slope or undefined or negative accumulation are undefined.
func wetnessIndex(slope, flow *domain.Grid, eps float64) (*domain.Grid, error) {
	return domain.NewGridFunc(slope.Spec(), func(r, c int) float64 {
		s, fa := slope.At(r, c), flow.At(r, c)
		if math.IsNaN(s) || math.IsNaN(fa) || fa < 0 {
			return math.NaN()
		}
		return math.Log((fa + 1) / (math.Tan(s*math.Pi/180) + eps))
	})
}
