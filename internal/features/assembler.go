package features

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/couchcryptid/aquifer-feature-etl/internal/climate"
	"github.com/couchcryptid/aquifer-feature-etl/internal/domain"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// UnfitIndex reports a standardized index that could not be fitted for a job.
type UnfitIndex struct {
	Feature string
	Reason  string
}

// Result is the output of assembling one job.
type Result struct {
	// Vectors holds one vector per date, in ascending date order.
	Vectors  []domain.FeatureVector
	Unfit    []UnfitIndex
	Warnings []domain.DegeneracyWarning
	// Insufficient counts feature slots marked insufficient across all vectors.
	Insufficient int
}

// Assembler joins terrain, index and temporal features into vectors.
// It holds no mutable state and is safe for concurrent use.
type Assembler struct {
	cfg    Config
	schema *domain.Schema
}

// NewAssembler validates cfg and fixes the schema.
func NewAssembler(cfg Config) (*Assembler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	schema, err := domain.NewSchema(cfg.FeatureNames()...)
	if err != nil {
		return nil, err
	}
	return &Assembler{cfg: cfg, schema: schema}, nil
}

// Schema returns the schema every vector is built against.
func (a *Assembler) Schema() *domain.Schema { return a.schema }

// Assemble builds a vector for every date covered by any of the job's
// series. Only configuration problems are returned as errors; missing data
// is recorded in the vectors.
func (a *Assembler) Assemble(job domain.LocationJob) (Result, error) {
	if err := job.Location.Validate(); err != nil {
		return Result{}, err
	}
	series, err := indexSeries(job.Series)
	if err != nil {
		return Result{}, err
	}
	if len(series) == 0 {
		return Result{}, nil
	}

	var res Result
	indices, err := a.standardize(job.Location, series, &res)
	if err != nil {
		return Result{}, err
	}

	for _, date := range coveredDates(job.Series) {
		b := domain.NewVectorBuilder(a.schema, job.Location, date)
		w := &writer{b: b}
		w.calendar(date, job.Location)
		w.terrain(job.Terrain)
		for _, m := range a.cfg.Metrics {
			s, ok := series[m]
			for _, n := range a.cfg.Lags {
				w.lag(LagName(m, n), s, ok, date, n)
			}
			for _, win := range a.cfg.Windows {
				for _, agg := range a.cfg.Aggregates {
					w.rolling(RollName(m, win, agg), s, ok, date, win, agg)
				}
			}
			if a.cfg.StatsWindow > 0 {
				w.stats(m, s, ok, date, a.cfg.StatsWindow)
			}
		}
		for _, idx := range indices {
			w.index(idx, date)
		}
		if w.err != nil {
			return Result{}, w.err
		}
		res.Vectors = append(res.Vectors, b.Build())
		res.Insufficient += w.insufficient
	}
	return res, nil
}

// indexOutcome pairs a feature name with its fitted series, or the reason
// no series exists.
type indexOutcome struct {
	name   string
	result *climate.Result
	reason string
}

func (a *Assembler) standardize(loc domain.Location, series map[string]domain.Series, res *Result) ([]indexOutcome, error) {
	var out []indexOutcome
	missing := func(kind climate.Kind, timescales []int, reason string) {
		for _, t := range timescales {
			out = append(out, indexOutcome{name: fmt.Sprintf("%s_%d", kind, t), reason: reason})
		}
	}
	collect := func(results []climate.Result) {
		for i := range results {
			r := &results[i]
			out = append(out, indexOutcome{name: r.Name(), result: r})
			if !r.Fitted {
				res.Unfit = append(res.Unfit, UnfitIndex{Feature: r.Name(), Reason: r.Reason})
			}
			for _, w := range r.Warnings {
				w.LocationID = loc.ID
				res.Warnings = append(res.Warnings, w)
			}
		}
	}

	precip, hasPrecip := series[MetricPrecip]
	if len(a.cfg.SPITimescales) > 0 {
		if !hasPrecip {
			missing(climate.KindSPI, a.cfg.SPITimescales, "no precipitation series")
		} else {
			results, err := climate.SPI(precip, a.cfg.indexOptions(a.cfg.SPITimescales))
			if err != nil {
				return nil, err
			}
			collect(results)
		}
	}

	if len(a.cfg.SPEITimescales) == 0 {
		return out, nil
	}
	if !hasPrecip {
		missing(climate.KindSPEI, a.cfg.SPEITimescales, "no precipitation series")
		return out, nil
	}
	pet, ok := series[MetricPET]
	if !ok {
		tmean, ok1 := series[MetricTMean]
		tmin, ok2 := series[MetricTMin]
		tmax, ok3 := series[MetricTMax]
		if !(ok1 && ok2 && ok3) {
			missing(climate.KindSPEI, a.cfg.SPEITimescales, "no evapotranspiration or temperature series")
			return out, nil
		}
		var err error
		if pet, err = climate.HargreavesPET(loc.Lat, tmean, tmin, tmax); err != nil {
			return nil, err
		}
	}
	balance, err := climate.WaterBalance(precip, pet)
	if err != nil {
		return nil, err
	}
	results, err := climate.SPEI(balance, a.cfg.indexOptions(a.cfg.SPEITimescales))
	if err != nil {
		return nil, err
	}
	collect(results)
	return out, nil
}

// writer records features into a builder and keeps the first error.
type writer struct {
	b            *domain.VectorBuilder
	err          error
	insufficient int
}

func (w *writer) set(name string, v float64) {
	if err := w.b.Set(name, v); err != nil && w.err == nil {
		w.err = err
	}
}

func (w *writer) short(name, reason string) {
	w.insufficient++
	if err := w.b.MarkInsufficient(name, reason); err != nil && w.err == nil {
		w.err = err
	}
}

func (w *writer) undefined(name, reason string) {
	if err := w.b.MarkUndefined(name, reason); err != nil && w.err == nil {
		w.err = err
	}
}

func (w *writer) calendar(date time.Time, loc domain.Location) {
	doy := date.YearDay()
	angle := 2 * math.Pi * float64(doy) / 365.25
	w.set(FeatureMonth, float64(date.Month()))
	w.set(FeatureDayOfYear, float64(doy))
	w.set(FeatureSinDay, math.Sin(angle))
	w.set(FeatureCosDay, math.Cos(angle))
	w.set(FeatureLongitude, loc.Lon)
	w.set(FeatureLatitude, loc.Lat)
}

func (w *writer) terrain(p *domain.TerrainProfile) {
	if p == nil {
		for _, name := range terrainFeatures {
			w.short(name, "no terrain sample")
		}
		return
	}
	fields := []struct {
		name string
		v    domain.Value
	}{
		{FeatureElevation, p.Elevation},
		{FeatureSlope, p.Slope},
		{FeatureAspect, p.Aspect},
		{FeatureCurvature, p.Curvature},
		{FeaturePlanCurvature, p.PlanCurvature},
		{FeatureTotalCurvature, p.TotalCurvature},
		{FeatureTPI, p.TPI},
		{FeatureTWI, p.TWI},
		{FeatureDistanceWater, p.DistanceToWater},
	}
	for _, f := range fields {
		switch {
		case f.v.Valid:
			w.set(f.name, f.v.V)
		case p.Flat && (f.name == FeatureAspect || f.name == FeaturePlanCurvature):
			w.undefined(f.name, "flat cell")
		default:
			w.undefined(f.name, "no source data")
		}
	}
}

func (w *writer) lag(name string, s domain.Series, ok bool, date time.Time, n int) {
	if !ok {
		w.short(name, "no series")
		return
	}
	i, in := s.IndexOf(date)
	switch {
	case !in:
		w.short(name, "date outside series")
	case i-n < 0:
		w.short(name, fmt.Sprintf("fewer than %d prior periods", n))
	case !s.At(i - n).Valid:
		w.short(name, "lagged value missing")
	default:
		w.set(name, s.At(i-n).V)
	}
}

// trailing returns the window values ending at date, or the reason they
// cannot be used.
func trailing(s domain.Series, ok bool, date time.Time, window int) ([]float64, string) {
	if !ok {
		return nil, "no series"
	}
	i, in := s.IndexOf(date)
	if !in {
		return nil, "date outside series"
	}
	if i-window+1 < 0 {
		return nil, fmt.Sprintf("fewer than %d periods", window)
	}
	vals := make([]float64, 0, window)
	for j := i - window + 1; j <= i; j++ {
		v := s.At(j)
		if !v.Valid {
			return nil, "gap in window"
		}
		vals = append(vals, v.V)
	}
	return vals, ""
}

func (w *writer) rolling(name string, s domain.Series, ok bool, date time.Time, window int, agg Aggregate) {
	vals, reason := trailing(s, ok, date, window)
	if vals == nil {
		w.short(name, reason)
		return
	}
	sum := floats.Sum(vals)
	if agg == AggMean {
		w.set(name, sum/float64(window))
		return
	}
	w.set(name, sum)
}

// stats records spread, range and linear trend of the trailing window. The
// trend is the least-squares slope per period.
func (w *writer) stats(metric string, s domain.Series, ok bool, date time.Time, window int) {
	vals, reason := trailing(s, ok, date, window)
	if vals == nil {
		for _, st := range statistics {
			w.short(StatsName(metric, st), reason)
		}
		return
	}
	steps := make([]float64, len(vals))
	for i := range steps {
		steps[i] = float64(i)
	}
	_, std := stat.PopMeanStdDev(vals, nil)
	_, trend := stat.LinearRegression(steps, vals, nil, false)
	w.set(StatsName(metric, StatStd), std)
	w.set(StatsName(metric, StatMin), floats.Min(vals))
	w.set(StatsName(metric, StatMax), floats.Max(vals))
	w.set(StatsName(metric, StatTrend), trend)
}

func (w *writer) index(idx indexOutcome, date time.Time) {
	switch {
	case idx.result == nil:
		w.short(idx.name, idx.reason)
	case !idx.result.Fitted:
		w.short(idx.name, "unfit: "+idx.result.Reason)
	default:
		v := idx.result.ValueAt(date)
		if !v.Valid {
			w.short(idx.name, "insufficient history")
			return
		}
		w.set(idx.name, v.V)
	}
}

func indexSeries(all []domain.Series) (map[string]domain.Series, error) {
	out := make(map[string]domain.Series, len(all))
	for _, s := range all {
		if _, dup := out[s.Metric()]; dup {
			return nil, domain.ConfigErrorf("series", "metric %q supplied twice", s.Metric())
		}
		if len(out) > 0 && s.Period() != all[0].Period() {
			return nil, domain.ConfigErrorf("series", "metric %q is %s, expected %s",
				s.Metric(), s.Period(), all[0].Period())
		}
		out[s.Metric()] = s
	}
	return out, nil
}

func coveredDates(all []domain.Series) []time.Time {
	seen := make(map[time.Time]struct{})
	var dates []time.Time
	for _, s := range all {
		for i := 0; i < s.Len(); i++ {
			d := s.Date(i)
			if _, ok := seen[d]; ok {
				continue
			}
			seen[d] = struct{}{}
			dates = append(dates, d)
		}
	}
	slices.SortFunc(dates, func(a, b time.Time) int { return a.Compare(b) })
	return dates
}
