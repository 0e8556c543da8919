package climate

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrDegenerateFit reports a sample the distribution cannot describe.
var ErrDegenerateFit = errors.New("degenerate fit")

// GammaFit is a two-parameter gamma with a point mass at zero.
type GammaFit struct {
	Alpha    float64 // shape
	Rate     float64
	ZeroProb float64
}

// FitGamma fits by the method of moments on the positive values; zeros set
// the point mass.
func FitGamma(values []float64) (GammaFit, error) {
	positive := make([]float64, 0, len(values))
	zeros := 0
	for _, v := range values {
		switch {
		case v < 0:
			return GammaFit{}, fmt.Errorf("%w: negative accumulation %g", ErrDegenerateFit, v)
		case v == 0:
			zeros++
		default:
			positive = append(positive, v)
		}
	}
	if len(positive) < 2 {
		return GammaFit{}, fmt.Errorf("%w: %d positive values", ErrDegenerateFit, len(positive))
	}
	mean, variance := stat.MeanVariance(positive, nil)
	if !(variance > 0) {
		return GammaFit{}, fmt.Errorf("%w: zero variance", ErrDegenerateFit)
	}
	return GammaFit{
		Alpha:    mean * mean / variance,
		Rate:     mean / variance,
		ZeroProb: float64(zeros) / float64(len(values)),
	}, nil
}

// CDF returns P(X <= x) including the mass at zero.
func (g GammaFit) CDF(x float64) float64 {
	if x <= 0 {
		return g.ZeroProb
	}
	return g.ZeroProb + (1-g.ZeroProb)*distuv.Gamma{Alpha: g.Alpha, Beta: g.Rate}.CDF(x)
}
