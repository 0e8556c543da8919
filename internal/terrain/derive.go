package terrain

import (
	"math"

	"github.com/couchcryptid/aquifer-feature-etl/internal/domain"
	"golang.org/x/sync/errgroup"
)

// Options tunes the neighbourhood and stabilizer terms.
type Options struct {
	// TPIRadius is the neighbourhood radius in cells.
	TPIRadius int
	// TWIEpsilon keeps the wetness index finite on flat cells.
	TWIEpsilon float64
}

// DefaultOptions returns a 3x3 TPI window and ε = 0.001.
func DefaultOptions() Options {
	return Options{TPIRadius: 1, TWIEpsilon: 0.001}
}

// Validate rejects non-positive radius or epsilon.
func (o Options) Validate() error {
	if o.TPIRadius < 1 {
		return domain.ConfigErrorf("tpi_radius", "must be at least 1, got %d", o.TPIRadius)
	}
	if !(o.TWIEpsilon > 0) {
		return domain.ConfigErrorf("twi_epsilon", "must be positive, got %g", o.TWIEpsilon)
	}
	return nil
}

// Derivatives holds every grid derived from one elevation raster. TWI is nil
// without flow accumulation and DistanceToWater is nil without a water mask.
type Derivatives struct {
	Elevation       *domain.Grid
	Slope           *domain.Grid // degrees, [0, 90]
	Aspect          *domain.Grid // degrees clockwise from north, NaN when flat
	Curvature       *domain.Grid // along the gradient, positive = convex
	PlanCurvature   *domain.Grid // across the gradient, positive = convex
	TotalCurvature  *domain.Grid // -(z_xx + z_yy), positive = convex
	TPI             *domain.Grid
	TWI             *domain.Grid
	DistanceToWater *domain.Grid // meters
}

// AspectClass separates flat cells from cells without data.
type AspectClass int

const (
	AspectDefined AspectClass = iota
	AspectFlat
	AspectNoData
)

// AspectClass classifies the aspect of a cell.
func (d *Derivatives) AspectClass(row, col int) AspectClass {
	switch {
	case math.IsNaN(d.Slope.At(row, col)):
		return AspectNoData
	case math.IsNaN(d.Aspect.At(row, col)):
		return AspectFlat
	default:
		return AspectDefined
	}
}

// Derive computes the terrain derivatives of dem. flow and water may be nil.
// All supplied grids must be aligned with dem.
func Derive(dem, flow, water *domain.Grid, opts Options) (*Derivatives, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := domain.CheckAligned(dem, flow, water); err != nil {
		return nil, err
	}

	spec := dem.Spec()
	z := fieldOf(dem)
	zx, zy := z.ddx(), z.ddy()
	d := &Derivatives{Elevation: dem}

	var g errgroup.Group
	g.Go(func() error {
		var err error
		d.Slope, d.Aspect, err = slopeAspect(spec, zx, zy)
		if err != nil {
			return err
		}
		if flow == nil {
			return nil
		}
		d.TWI, err = wetnessIndex(d.Slope, flow, opts.TWIEpsilon)
		return err
	})
	g.Go(func() error {
		var err error
		d.Curvature, d.PlanCurvature, d.TotalCurvature, err = curvatures(spec, zx, zy)
		return err
	})
	g.Go(func() error {
		var err error
		d.TPI, err = positionIndex(z, opts.TPIRadius).grid(spec)
		return err
	})
	if water != nil {
		g.Go(func() error {
			var err error
			d.DistanceToWater, err = distanceToWater(dem, water)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return d, nil
}

func slopeAspect(spec domain.GridSpec, zx, zy field) (*domain.Grid, *domain.Grid, error) {
	slope, aspect := zx.like(), zx.like()
	for i := range zx.v {
		dx, dy := zx.v[i], zy.v[i]
		if math.IsNaN(dx) || math.IsNaN(dy) {
			slope.v[i], aspect.v[i] = math.NaN(), math.NaN()
			continue
		}
		deg := math.Atan(math.Hypot(dx, dy)) * 180 / math.Pi
		slope.v[i] = math.Min(math.Max(deg, 0), 90)

		if dx == 0 && dy == 0 {
			aspect.v[i] = math.NaN()
			continue
		}
		// Steepest descent is -grad; azimuth is measured from north toward east.
		az := math.Atan2(-dx, -dy) * 180 / math.Pi
		aspect.v[i] = math.Mod(az+360, 360)
	}
	s, err := slope.grid(spec)
	if err != nil {
		return nil, nil, err
	}
	a, err := aspect.grid(spec)
	if err != nil {
		return nil, nil, err
	}
	return s, a, nil
}

func curvatures(spec domain.GridSpec, zx, zy field) (profile, plan, total *domain.Grid, err error) {
	zxx, zyy, zxy := zx.ddx(), zy.ddy(), zx.ddy()
	prof, pl, tot := zx.like(), zx.like(), zx.like()
	for i := range zx.v {
		p, q := zx.v[i], zy.v[i]
		r, t, s := zxx.v[i], zyy.v[i], zxy.v[i]
		if anyNaN(p, q, r, t, s) {
			prof.v[i], pl.v[i], tot.v[i] = math.NaN(), math.NaN(), math.NaN()
			continue
		}
		tot.v[i] = -(r + t)
		g2 := p*p + q*q
		if g2 == 0 {
			// No steepest direction: use the mean of the axis curvatures.
			prof.v[i] = -(r + t) / 2
			pl.v[i] = math.NaN()
			continue
		}
		prof.v[i] = -(r*p*p + 2*s*p*q + t*q*q) / g2
		pl.v[i] = -(r*q*q - 2*s*p*q + t*p*p) / g2
	}
	if profile, err = prof.grid(spec); err != nil {
		return nil, nil, nil, err
	}
	if plan, err = pl.grid(spec); err != nil {
		return nil, nil, nil, err
	}
	if total, err = tot.grid(spec); err != nil {
		return nil, nil, nil, err
	}
	return profile, plan, total, nil
}

func anyNaN(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
