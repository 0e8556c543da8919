package spatial

import (
	"cmp"
	"container/heap"
	"math"
	"slices"

	"github.com/couchcryptid/aquifer-feature-etl/internal/domain"
)

// DefaultLinearThreshold is the size below which Build skips the tree and
// answers queries by scanning every location.
const DefaultLinearThreshold = 500

// Strategy names how an Index answers queries.
type Strategy string

const (
	StrategyLinear Strategy = "linear"
	StrategyKDTree Strategy = "kdtree"
)

// Neighbor is a query hit.
type Neighbor struct {
	Location       domain.Location `json:"location"`
	DistanceMeters float64         `json:"distance_m"`
}

// Option configures Build.
type Option func(*buildOptions)

type buildOptions struct {
	linearThreshold int
}

// WithLinearThreshold sets the size below which the linear scan is used.
func WithLinearThreshold(n int) Option {
	return func(o *buildOptions) { o.linearThreshold = n }
}

// Index answers nearest-k and within-radius queries over a fixed set of
// locations. It is immutable after Build and safe for concurrent readers.
//
// Points are stored as unit vectors in a k-d tree. Straight-line chord
// length is monotonic in great-circle distance, so a splitting plane gives
// an exact lower bound for pruning; hits are ranked by haversine distance.
// Below the linear threshold the tree is skipped and queries scan every
// location.
type Index struct {
	locs     []domain.Location
	pts      [][3]float64
	axis     []uint8
	strategy Strategy
}

// Build indexes locs. Invalid coordinates and repeated IDs are
// ConfigurationErrors.
func Build(locs []domain.Location, opts ...Option) (*Index, error) {
	o := buildOptions{linearThreshold: DefaultLinearThreshold}
	for _, opt := range opts {
		opt(&o)
	}

	seen := make(map[string]struct{}, len(locs))
	ix := &Index{
		locs: make([]domain.Location, len(locs)),
		pts:  make([][3]float64, len(locs)),
	}
	for i, l := range locs {
		if err := l.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[l.ID]; dup {
			return nil, domain.ConfigErrorf("location", "duplicate id %q", l.ID)
		}
		seen[l.ID] = struct{}{}
		ix.locs[i] = l
		ix.pts[i] = unitVector(l.Lon, l.Lat)
	}

	if len(locs) < o.linearThreshold {
		ix.strategy = StrategyLinear
		return ix, nil
	}
	ix.strategy = StrategyKDTree
	ix.axis = make([]uint8, len(locs))
	ix.build(0, len(locs))
	return ix, nil
}

func (ix *Index) Len() int           { return len(ix.locs) }
func (ix *Index) Strategy() Strategy { return ix.strategy }

// Locations returns the indexed locations in storage order.
func (ix *Index) Locations() []domain.Location { return slices.Clone(ix.locs) }

// build arranges [lo, hi) so the median along the widest axis sits at the
// midpoint with smaller coordinates before it and larger after.
func (ix *Index) build(lo, hi int) {
	if hi-lo <= 1 {
		if hi-lo == 1 {
			ix.axis[lo] = 0
		}
		return
	}
	a := ix.widestAxis(lo, hi)
	mid := lo + (hi-lo)/2
	ix.selectNth(lo, hi-1, mid, a)
	ix.axis[mid] = uint8(a)
	ix.build(lo, mid)
	ix.build(mid+1, hi)
}

func (ix *Index) widestAxis(lo, hi int) int {
	best, bestSpread := 0, -1.0
	for a := 0; a < 3; a++ {
		minV, maxV := math.Inf(1), math.Inf(-1)
		for i := lo; i < hi; i++ {
			v := ix.pts[i][a]
			minV, maxV = math.Min(minV, v), math.Max(maxV, v)
		}
		if spread := maxV - minV; spread > bestSpread {
			best, bestSpread = a, spread
		}
	}
	return best
}

// selectNth is an in-place quickselect over [lo, hi] on axis a.
func (ix *Index) selectNth(lo, hi, n, a int) {
	for lo < hi {
		p := ix.partition(lo, hi, a)
		switch {
		case n == p:
			return
		case n < p:
			hi = p - 1
		default:
			lo = p + 1
		}
	}
}

func (ix *Index) partition(lo, hi, a int) int {
	mid := lo + (hi-lo)/2
	// Median of three as pivot, moved to hi.
	if ix.pts[mid][a] < ix.pts[lo][a] {
		ix.swap(mid, lo)
	}
	if ix.pts[hi][a] < ix.pts[lo][a] {
		ix.swap(hi, lo)
	}
	if ix.pts[mid][a] < ix.pts[hi][a] {
		ix.swap(mid, hi)
	}
	pivot := ix.pts[hi][a]
	store := lo
	for i := lo; i < hi; i++ {
		if ix.pts[i][a] < pivot {
			ix.swap(i, store)
			store++
		}
	}
	ix.swap(store, hi)
	return store
}

func (ix *Index) swap(i, j int) {
	ix.pts[i], ix.pts[j] = ix.pts[j], ix.pts[i]
	ix.locs[i], ix.locs[j] = ix.locs[j], ix.locs[i]
}

// Nearest returns the k locations closest to (lon, lat), nearest first,
// ties broken by ID. Fewer than k are returned when the index is smaller.
func (ix *Index) Nearest(lon, lat float64, k int) ([]Neighbor, error) {
	if k <= 0 {
		return nil, domain.ConfigErrorf("k", "must be positive, got %d", k)
	}
	if err := validateQuery(lon, lat); err != nil {
		return nil, err
	}
	q := query{lon: lon, lat: lat, v: unitVector(lon, lat)}

	if ix.strategy == StrategyLinear {
		all := make([]Neighbor, len(ix.locs))
		for i, l := range ix.locs {
			all[i] = Neighbor{Location: l, DistanceMeters: q.distance(l)}
		}
		slices.SortFunc(all, compareNeighbors)
		return all[:min(k, len(all))], nil
	}

	h := &worstFirst{}
	ix.nearest(q, 0, len(ix.locs), k, h)
	out := []Neighbor(*h)
	slices.SortFunc(out, compareNeighbors)
	return out, nil
}

func (ix *Index) nearest(q query, lo, hi, k int, h *worstFirst) {
	if lo >= hi {
		return
	}
	mid := lo + (hi-lo)/2
	cand := Neighbor{Location: ix.locs[mid], DistanceMeters: q.distance(ix.locs[mid])}
	switch {
	case h.Len() < k:
		heap.Push(h, cand)
	case compareNeighbors(cand, (*h)[0]) < 0:
		(*h)[0] = cand
		heap.Fix(h, 0)
	}

	a := ix.axis[mid]
	diff := q.v[a] - ix.pts[mid][a]
	nearLo, nearHi, farLo, farHi := lo, mid, mid+1, hi
	if diff >= 0 {
		nearLo, nearHi, farLo, farHi = mid+1, hi, lo, mid
	}
	ix.nearest(q, nearLo, nearHi, k, h)
	if h.Len() < k || math.Abs(diff) <= chordBound((*h)[0].DistanceMeters) {
		ix.nearest(q, farLo, farHi, k, h)
	}
}

// Within returns every location within radius meters of (lon, lat), nearest
// first, ties broken by ID.
func (ix *Index) Within(lon, lat, radius float64) ([]Neighbor, error) {
	if !(radius > 0) {
		return nil, domain.ConfigErrorf("radius", "must be positive, got %g", radius)
	}
	if err := validateQuery(lon, lat); err != nil {
		return nil, err
	}
	q := query{lon: lon, lat: lat, v: unitVector(lon, lat)}

	var out []Neighbor
	if ix.strategy == StrategyLinear {
		for _, l := range ix.locs {
			if d := q.distance(l); d <= radius {
				out = append(out, Neighbor{Location: l, DistanceMeters: d})
			}
		}
	} else {
		ix.within(q, 0, len(ix.locs), radius, chordBound(radius), &out)
	}
	slices.SortFunc(out, compareNeighbors)
	return out, nil
}

func (ix *Index) within(q query, lo, hi int, radius, bound float64, out *[]Neighbor) {
	if lo >= hi {
		return
	}
	mid := lo + (hi-lo)/2
	if d := q.distance(ix.locs[mid]); d <= radius {
		*out = append(*out, Neighbor{Location: ix.locs[mid], DistanceMeters: d})
	}
	a := ix.axis[mid]
	diff := q.v[a] - ix.pts[mid][a]
	if diff < 0 {
		ix.within(q, lo, mid, radius, bound, out)
		if -diff <= bound {
			ix.within(q, mid+1, hi, radius, bound, out)
		}
		return
	}
	ix.within(q, mid+1, hi, radius, bound, out)
	if diff <= bound {
		ix.within(q, lo, mid, radius, bound, out)
	}
}

type query struct {
	lon, lat float64
	v        [3]float64
}

func (q query) distance(l domain.Location) float64 {
	return Distance(q.lon, q.lat, l.Lon, l.Lat)
}

// chordBound converts a surface distance to the straight-line chord of the
// unit sphere, padded so float error never prunes a qualifying point.
func chordBound(meters float64) float64 {
	theta := meters / EarthRadiusMeters
	if theta >= math.Pi {
		return 2
	}
	return 2*math.Sin(theta/2)*(1+1e-9) + 1e-12
}

func validateQuery(lon, lat float64) error {
	return domain.Location{ID: "query", Lon: lon, Lat: lat}.Validate()
}

func compareNeighbors(a, b Neighbor) int {
	if c := cmp.Compare(a.DistanceMeters, b.DistanceMeters); c != 0 {
		return c
	}
	return cmp.Compare(a.Location.ID, b.Location.ID)
}

// worstFirst is a max-heap on (distance, id).
type worstFirst []Neighbor

func (h worstFirst) Len() int           { return len(h) }
func (h worstFirst) Less(i, j int) bool { return compareNeighbors(h[i], h[j]) > 0 }
func (h worstFirst) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *worstFirst) Push(x any)        { *h = append(*h, x.(Neighbor)) }
func (h *worstFirst) Pop() any {
	old := *h
	n := old[len(old)-1]
	*h = old[:len(old)-1]
	return n
}
