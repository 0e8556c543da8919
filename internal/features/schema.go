package features

import (
	"fmt"
	"slices"

	"github.com/couchcryptid/aquifer-feature-etl/internal/climate"
	"github.com/couchcryptid/aquifer-feature-etl/internal/domain"
)

// Metric names read from LocationJob series.
const (
	MetricPrecip = "precip"
	MetricPET    = "pet"
	MetricTMean  = "tmean"
	MetricTMin   = "tmin"
	MetricTMax   = "tmax"
)

// Calendar, position and terrain feature names.
const (
	FeatureMonth          = "month"
	FeatureDayOfYear      = "dayofyear"
	FeatureSinDay         = "sin_day"
	FeatureCosDay         = "cos_day"
	FeatureLongitude      = "longitude"
	FeatureLatitude       = "latitude"
	FeatureElevation      = "elevation"
	FeatureSlope          = "slope"
	FeatureAspect         = "aspect"
	FeatureCurvature      = "curvature"
	FeaturePlanCurvature  = "plan_curvature"
	FeatureTotalCurvature = "total_curvature"
	FeatureTPI            = "tpi"
	FeatureTWI            = "twi"
	FeatureDistanceWater  = "distance_to_water"
)

var terrainFeatures = []string{
	FeatureElevation, FeatureSlope, FeatureAspect, FeatureCurvature, FeaturePlanCurvature,
	FeatureTotalCurvature, FeatureTPI, FeatureTWI, FeatureDistanceWater,
}

// Aggregate is a rolling-window reduction.
type Aggregate string

const (
	AggMean Aggregate = "mean"
	AggSum  Aggregate = "sum"
)

// LagName is the feature name of metric lagged by n periods.
func LagName(metric string, n int) string { return fmt.Sprintf("lag%d_%s", n, metric) }

// RollName is the feature name of a trailing window aggregate. The mean
// carries no suffix.
func RollName(metric string, window int, agg Aggregate) string {
	if agg == AggMean {
		return fmt.Sprintf("roll%d_%s", window, metric)
	}
	return fmt.Sprintf("roll%d_%s_%s", window, metric, agg)
}

// Statistic is a trailing-window summary reported per metric.
type Statistic string

const (
	StatStd   Statistic = "std"
	StatMin   Statistic = "min"
	StatMax   Statistic = "max"
	StatTrend Statistic = "trend"
)

var statistics = []Statistic{StatStd, StatMin, StatMax, StatTrend}

// StatsName is the feature name of a trailing-window statistic.
func StatsName(metric string, st Statistic) string { return fmt.Sprintf("stats_%s_%s", metric, st) }

// Config declares which temporal features the assembler produces.
type Config struct {
	// Metrics receive lag and rolling features.
	Metrics    []string
	Lags       []int
	Windows    []int
	Aggregates []Aggregate
	// StatsWindow is the trailing length for the stats_ family; 0 disables it.
	StatsWindow    int
	SPITimescales  []int
	SPEITimescales []int
	MinPoints      int
	ZBound         float64
}

// DefaultConfig mirrors the engine defaults: precipitation lags 1 and 2,
// 3- and 7-period windows, 12-period statistics, and indices at 1, 3, 6 and 12 periods.
func DefaultConfig() Config {
	idx := climate.DefaultOptions()
	return Config{
		Metrics:        []string{MetricPrecip},
		Lags:           []int{1, 2},
		Windows:        []int{3, 7},
		Aggregates:     []Aggregate{AggMean, AggSum},
		StatsWindow:    12,
		SPITimescales:  slices.Clone(idx.Timescales),
		SPEITimescales: slices.Clone(idx.Timescales),
		MinPoints:      idx.MinPoints,
		ZBound:         idx.ZBound,
	}
}

func (c Config) indexOptions(timescales []int) climate.Options {
	return climate.Options{Timescales: timescales, MinPoints: c.MinPoints, ZBound: c.ZBound}
}

// Validate checks every parameter; the schema build catches name clashes.
func (c Config) Validate() error {
	for _, m := range c.Metrics {
		if m == "" {
			return domain.ConfigErrorf("metrics", "empty metric name")
		}
	}
	for _, n := range c.Lags {
		if n < 1 {
			return domain.ConfigErrorf("lags", "lag %d must be positive", n)
		}
	}
	for _, w := range c.Windows {
		if w < 1 {
			return domain.ConfigErrorf("windows", "window %d must be positive", w)
		}
	}
	for _, a := range c.Aggregates {
		if a != AggMean && a != AggSum {
			return domain.ConfigErrorf("aggregates", "unknown aggregate %q", a)
		}
	}
	if c.StatsWindow != 0 && c.StatsWindow < 3 {
		return domain.ConfigErrorf("stats_window", "window %d needs at least 3 periods for a trend", c.StatsWindow)
	}
	for _, ts := range [][]int{c.SPITimescales, c.SPEITimescales} {
		if len(ts) == 0 {
			continue
		}
		if err := c.indexOptions(ts).Validate(); err != nil {
			return err
		}
	}
	return nil
}

// FeatureNames lists every feature in schema order.
func (c Config) FeatureNames() []string {
	names := []string{
		FeatureMonth, FeatureDayOfYear, FeatureSinDay, FeatureCosDay,
		FeatureLongitude, FeatureLatitude,
	}
	names = append(names, terrainFeatures...)
	for _, m := range c.Metrics {
		for _, n := range c.Lags {
			names = append(names, LagName(m, n))
		}
		for _, w := range c.Windows {
			for _, a := range c.Aggregates {
				names = append(names, RollName(m, w, a))
			}
		}
		if c.StatsWindow > 0 {
			for _, st := range statistics {
				names = append(names, StatsName(m, st))
			}
		}
	}
	for _, t := range c.SPITimescales {
		names = append(names, fmt.Sprintf("%s_%d", climate.KindSPI, t))
	}
	for _, t := range c.SPEITimescales {
		names = append(names, fmt.Sprintf("%s_%d", climate.KindSPEI, t))
	}
	return names
}
