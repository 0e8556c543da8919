package climate

import (
	"fmt"

	"github.com/couchcryptid/aquifer-feature-etl/internal/domain"
	"gonum.org/v1/gonum/stat/distuv"
)

type cdf interface {
	CDF(x float64) float64
}

type fitter func(sample []float64) (cdf, error)

func gammaFitter(sample []float64) (cdf, error) {
	f, err := FitGamma(sample)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func logLogisticFitter(sample []float64) (cdf, error) {
	f, err := FitLogLogistic(sample)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// SPI computes the standardized precipitation index at every configured
// timescale.
func SPI(precip domain.Series, opts Options) ([]Result, error) {
	return standardizeAll(KindSPI, precip, opts, gammaFitter)
}

// SPEI computes the standardized precipitation-evapotranspiration index from
// a water balance series (see WaterBalance).
func SPEI(balance domain.Series, opts Options) ([]Result, error) {
	return standardizeAll(KindSPEI, balance, opts, logLogisticFitter)
}

func standardizeAll(kind Kind, s domain.Series, opts Options, fit fitter) ([]Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(opts.Timescales))
	for _, t := range opts.Timescales {
		out = append(out, standardizeOne(kind, s, t, opts, fit))
	}
	return out, nil
}

func standardizeOne(kind Kind, s domain.Series, t int, opts Options, fit fitter) Result {
	acc := Accumulate(s, t)
	res := Result{
		Kind:      kind,
		Timescale: t,
		Start:     s.Start(),
		Period:    s.Period(),
		Values:    make([]domain.Value, len(acc)),
	}

	sample := make([]float64, 0, len(acc))
	for _, v := range acc {
		if v.Valid {
			sample = append(sample, v.V)
		}
	}
	if len(sample) < opts.MinPoints {
		res.Reason = fmt.Sprintf("%d accumulated values, need %d", len(sample), opts.MinPoints)
		return res
	}
	dist, err := fit(sample)
	if err != nil {
		res.Reason = err.Error()
		return res
	}

	res.Fitted = true
	for i, v := range acc {
		if !v.Valid {
			continue
		}
		p := dist.CDF(v.V)
		z, clamped := standardize(p, opts.ZBound)
		res.Values[i] = domain.Some(z)
		if clamped {
			res.Warnings = append(res.Warnings, domain.DegeneracyWarning{
				Feature:     res.Name(),
				Date:        res.Date(i),
				Probability: p,
				Clamped:     z,
			})
		}
	}
	return res
}

// standardize maps a cumulative probability to a standard normal deviate
// limited to ±bound.
func standardize(p, bound float64) (float64, bool) {
	if p <= 0 {
		return -bound, true
	}
	if p >= 1 {
		return bound, true
	}
	z := distuv.UnitNormal.Quantile(p)
	switch {
	case z > bound:
		return bound, true
	case z < -bound:
		return -bound, true
	}
	return z, false
}
