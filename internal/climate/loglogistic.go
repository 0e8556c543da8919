package climate

import (
	"fmt"
	"math"
	"slices"
)

// LogLogisticFit is a three-parameter log-logistic distribution.
type LogLogisticFit struct {
	Alpha float64 // scale
	Beta  float64 // shape
	Gamma float64 // location
}

// FitLogLogistic estimates parameters from probability-weighted moments of
// orders 0 to 2 with plotting positions (i - 0.35) / N.
func FitLogLogistic(values []float64) (LogLogisticFit, error) {
	if len(values) < 3 {
		return LogLogisticFit{}, fmt.Errorf("%w: %d values", ErrDegenerateFit, len(values))
	}
	x := slices.Clone(values)
	slices.Sort(x)

	n := float64(len(x))
	var w0, w1, w2 float64
	for i, v := range x {
		q := 1 - (float64(i+1)-0.35)/n
		w0 += v
		w1 += q * v
		w2 += q * q * v
	}
	w0, w1, w2 = w0/n, w1/n, w2/n

	beta := (2*w1 - w0) / (6*w1 - w0 - 6*w2)
	if !(beta > 1) || math.IsInf(beta, 0) {
		return LogLogisticFit{}, fmt.Errorf("%w: shape %g must exceed 1", ErrDegenerateFit, beta)
	}
	g := math.Gamma(1+1/beta) * math.Gamma(1-1/beta)
	alpha := (w0 - 2*w1) * beta / g
	if !(alpha > 0) || math.IsInf(alpha, 0) {
		return LogLogisticFit{}, fmt.Errorf("%w: scale %g must be positive", ErrDegenerateFit, alpha)
	}
	return LogLogisticFit{Alpha: alpha, Beta: beta, Gamma: w0 - alpha*g}, nil
}

// CDF returns P(X <= x); values at or below the location have probability 0.
func (l LogLogisticFit) CDF(x float64) float64 {
	if x <= l.Gamma {
		return 0
	}
	return 1 / (1 + math.Pow(l.Alpha/(x-l.Gamma), l.Beta))
}
