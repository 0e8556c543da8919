package climate

import (
	"fmt"
	"time"

	"github.com/couchcryptid/aquifer-feature-etl/internal/domain"
)

// Options controls fitting and standardization.
type Options struct {
	Timescales []int
	MinPoints  int
	ZBound     float64
}

// DefaultOptions returns timescales 1, 3, 6 and 12 with a 20-point minimum
// sample and a ±3.5 bound.
func DefaultOptions() Options {
	return Options{Timescales: []int{1, 3, 6, 12}, MinPoints: 20, ZBound: 3.5}
}

// Validate rejects empty, non-positive or repeated timescales and
// non-positive bounds.
func (o Options) Validate() error {
	if len(o.Timescales) == 0 {
		return domain.ConfigErrorf("timescales", "at least one timescale is required")
	}
	seen := make(map[int]bool, len(o.Timescales))
	for _, t := range o.Timescales {
		if t <= 0 {
			return domain.ConfigErrorf("timescales", "timescale %d must be positive", t)
		}
		if seen[t] {
			return domain.ConfigErrorf("timescales", "timescale %d repeated", t)
		}
		seen[t] = true
	}
	if o.MinPoints < 1 {
		return domain.ConfigErrorf("min_points", "must be at least 1, got %d", o.MinPoints)
	}
	if !(o.ZBound > 0) {
		return domain.ConfigErrorf("z_bound", "must be positive, got %g", o.ZBound)
	}
	return nil
}

// Kind names the index family.
type Kind string

const (
	KindSPI  Kind = "spi"
	KindSPEI Kind = "spei"
)

// Result is one standardized index at one timescale, aligned with the input
// series. Missing values mark dates with insufficient history.
type Result struct {
	Kind      Kind
	Timescale int
	Start     time.Time
	Period    domain.Period
	Values    []domain.Value
	// Fitted is false when the distribution could not be fitted; Reason says why.
	Fitted   bool
	Reason   string
	Warnings []domain.DegeneracyWarning
}

// Name is the feature name, e.g. "spi_3".
func (r Result) Name() string { return fmt.Sprintf("%s_%d", r.Kind, r.Timescale) }

// Date returns the date of the i-th value.
func (r Result) Date(i int) time.Time { return r.Period.Add(r.Start, i) }

// ValueAt returns the index on date t, missing when out of range.
func (r Result) ValueAt(t time.Time) domain.Value {
	i := r.Period.Steps(r.Start, t)
	if i < 0 || i >= len(r.Values) {
		return domain.Missing()
	}
	return r.Values[i]
}
