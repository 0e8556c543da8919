package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/couchcryptid/aquifer-feature-etl/internal/domain"
	"github.com/couchcryptid/aquifer-feature-etl/internal/features"
	"github.com/couchcryptid/aquifer-feature-etl/internal/terrain"
)

// Engine holds the numerical parameters of the feature engines.
type Engine struct {
	Terrain  terrain.Options
	Features features.Config
}

// DefaultEngine returns the built-in engine parameters.
func DefaultEngine() Engine {
	return Engine{Terrain: terrain.DefaultOptions(), Features: features.DefaultConfig()}
}

// engineFile is the TOML layout. Keys left out keep their defaults:
//
//	[terrain]
//	tpi_radius = 1
//	twi_epsilon = 0.001
//
//	[indices]
//	spi_timescales = [1, 3, 6, 12]
//	spei_timescales = [1, 3, 6, 12]
//	min_points = 20
//	z_bound = 3.5
//
//	[temporal]
//	metrics = ["precip"]
//	lags = [1, 2]
//	windows = [3, 7]
//	aggregates = ["mean", "sum"]
//	stats_window = 12
type engineFile struct {
	Terrain struct {
		TPIRadius  int     `toml:"tpi_radius"`
		TWIEpsilon float64 `toml:"twi_epsilon"`
	} `toml:"terrain"`
	Indices struct {
		SPITimescales  []int   `toml:"spi_timescales"`
		SPEITimescales []int   `toml:"spei_timescales"`
		MinPoints      int     `toml:"min_points"`
		ZBound         float64 `toml:"z_bound"`
	} `toml:"indices"`
	Temporal struct {
		Metrics     []string             `toml:"metrics"`
		Lags        []int                `toml:"lags"`
		Windows     []int                `toml:"windows"`
		Aggregates  []features.Aggregate `toml:"aggregates"`
		StatsWindow int                  `toml:"stats_window"`
	} `toml:"temporal"`
}

func fileFrom(e Engine) engineFile {
	var f engineFile
	f.Terrain.TPIRadius = e.Terrain.TPIRadius
	f.Terrain.TWIEpsilon = e.Terrain.TWIEpsilon
	f.Indices.SPITimescales = e.Features.SPITimescales
	f.Indices.SPEITimescales = e.Features.SPEITimescales
	f.Indices.MinPoints = e.Features.MinPoints
	f.Indices.ZBound = e.Features.ZBound
	f.Temporal.Metrics = e.Features.Metrics
	f.Temporal.Lags = e.Features.Lags
	f.Temporal.Windows = e.Features.Windows
	f.Temporal.Aggregates = e.Features.Aggregates
	f.Temporal.StatsWindow = e.Features.StatsWindow
	return f
}

func (f engineFile) engine() Engine {
	return Engine{
		Terrain: terrain.Options{TPIRadius: f.Terrain.TPIRadius, TWIEpsilon: f.Terrain.TWIEpsilon},
		Features: features.Config{
			Metrics:        f.Temporal.Metrics,
			Lags:           f.Temporal.Lags,
			Windows:        f.Temporal.Windows,
			Aggregates:     f.Temporal.Aggregates,
			StatsWindow:    f.Temporal.StatsWindow,
			SPITimescales:  f.Indices.SPITimescales,
			SPEITimescales: f.Indices.SPEITimescales,
			MinPoints:      f.Indices.MinPoints,
			ZBound:         f.Indices.ZBound,
		},
	}
}

// LoadEngine reads engine parameters from a TOML file. An empty path yields
// the defaults. Unknown keys and invalid values are ConfigurationErrors.
func LoadEngine(path string) (Engine, error) {
	if path == "" {
		return DefaultEngine(), nil
	}
	f := fileFrom(DefaultEngine())
	md, err := toml.DecodeFile(path, &f)
	if errors.Is(err, fs.ErrNotExist) {
		return Engine{}, domain.ConfigErrorf("ENGINE_CONFIG", "%s does not exist", path)
	}
	if err != nil {
		return Engine{}, domain.ConfigErrorf("ENGINE_CONFIG", "parse %s: %v", path, err)
	}
	return finishEngine(f, md)
}

// ParseEngine decodes engine parameters from TOML text.
func ParseEngine(data string) (Engine, error) {
	f := fileFrom(DefaultEngine())
	md, err := toml.Decode(data, &f)
	if err != nil {
		return Engine{}, domain.ConfigErrorf("ENGINE_CONFIG", "parse: %v", err)
	}
	return finishEngine(f, md)
}

func finishEngine(f engineFile, md toml.MetaData) (Engine, error) {
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Engine{}, domain.ConfigErrorf("ENGINE_CONFIG", "unknown keys: %s", strings.Join(keys, ", "))
	}
	e := f.engine()
	if err := e.Terrain.Validate(); err != nil {
		return Engine{}, fmt.Errorf("terrain section: %w", err)
	}
	if err := e.Features.Validate(); err != nil {
		return Engine{}, fmt.Errorf("temporal or indices section: %w", err)
	}
	return e, nil
}
