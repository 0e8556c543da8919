package domain

import (
	"encoding/json"
	"slices"
	"time"
)

// Location is a named point in decimal degrees.
type Location struct {
	ID  string  `json:"id"`
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Validate rejects empty IDs and out-of-range coordinates.
func (l Location) Validate() error {
	switch {
	case l.ID == "":
		return ConfigErrorf("location", "id is required")
	case !(l.Lon >= -180 && l.Lon <= 180):
		return ConfigErrorf("location", "%s: longitude %g out of range", l.ID, l.Lon)
	case !(l.Lat >= -90 && l.Lat <= 90):
		return ConfigErrorf("location", "%s: latitude %g out of range", l.ID, l.Lat)
	}
	return nil
}

// Observation is a single dated measurement at a location.
type Observation struct {
	Location Location  `json:"location"`
	Date     time.Time `json:"date"`
	Metric   string    `json:"metric"`
	Value    Value     `json:"value"`
}

// Period is the spacing of a Series.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodMonthly Period = "monthly"
)

// Validate rejects unknown periods.
func (p Period) Validate() error {
	if p != PeriodDaily && p != PeriodMonthly {
		return ConfigErrorf("period", "unknown period %q", string(p))
	}
	return nil
}

// Truncate maps t to the start of its period in UTC.
func (p Period) Truncate(t time.Time) time.Time {
	t = t.UTC()
	if p == PeriodMonthly {
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Add advances t by n periods.
func (p Period) Add(t time.Time, n int) time.Time {
	if p == PeriodMonthly {
		return t.AddDate(0, n, 0)
	}
	return t.AddDate(0, 0, n)
}

// Steps returns the number of whole periods from one period start to another.
func (p Period) Steps(from, to time.Time) int {
	from, to = p.Truncate(from), p.Truncate(to)
	if p == PeriodMonthly {
		return (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	}
	return int(to.Sub(from).Hours() / 24)
}

// Days returns the number of days in the period containing t.
func (p Period) Days(t time.Time) int {
	if p == PeriodMonthly {
		start := p.Truncate(t)
		return start.AddDate(0, 1, -1).Day()
	}
	return 1
}

// Series is a gap-aware, regularly spaced run of values for one metric.
// Dates without an observation hold a missing Value.
type Series struct {
	metric string
	period Period
	start  time.Time
	values []Value
}

// NewSeries copies values into a Series starting at the period containing start.
func NewSeries(metric string, period Period, start time.Time, values []Value) (Series, error) {
	if metric == "" {
		return Series{}, ConfigErrorf("series", "metric is required")
	}
	if err := period.Validate(); err != nil {
		return Series{}, err
	}
	return Series{
		metric: metric,
		period: period,
		start:  period.Truncate(start),
		values: slices.Clone(values),
	}, nil
}

// SeriesFromObservations orders observations by date and fills the gaps
// between the first and last date with missing values. All observations must
// share a location and metric, and no date may repeat.
func SeriesFromObservations(period Period, obs []Observation) (Series, error) {
	if len(obs) == 0 {
		return Series{}, ConfigErrorf("series", "no observations")
	}
	if err := period.Validate(); err != nil {
		return Series{}, err
	}
	sorted := slices.Clone(obs)
	slices.SortFunc(sorted, func(a, b Observation) int { return a.Date.Compare(b.Date) })

	first := sorted[0]
	start := period.Truncate(first.Date)
	n := period.Steps(start, sorted[len(sorted)-1].Date) + 1
	values := make([]Value, n)
	seen := make([]bool, n)
	for _, o := range sorted {
		if o.Location.ID != first.Location.ID || o.Metric != first.Metric {
			return Series{}, ConfigErrorf("series", "mixed observations %s/%s and %s/%s",
				first.Location.ID, first.Metric, o.Location.ID, o.Metric)
		}
		i := period.Steps(start, o.Date)
		if seen[i] {
			return Series{}, ConfigErrorf("series", "duplicate %s observation on %s",
				o.Metric, period.Truncate(o.Date).Format(time.DateOnly))
		}
		seen[i] = true
		values[i] = o.Value
	}
	return NewSeries(first.Metric, period, start, values)
}

func (s Series) Metric() string   { return s.metric }
func (s Series) Period() Period   { return s.period }
func (s Series) Start() time.Time { return s.start }
func (s Series) Len() int         { return len(s.values) }
func (s Series) At(i int) Value   { return s.values[i] }

// Date returns the period start of the i-th value.
func (s Series) Date(i int) time.Time { return s.period.Add(s.start, i) }

// IndexOf returns the position of the period containing t.
func (s Series) IndexOf(t time.Time) (int, bool) {
	if len(s.values) == 0 {
		return 0, false
	}
	i := s.period.Steps(s.start, t)
	if i < 0 || i >= len(s.values) {
		return i, false
	}
	return i, true
}

// Values returns a copy of the underlying values.
func (s Series) Values() []Value { return slices.Clone(s.values) }

// ValidCount returns the number of non-missing values.
func (s Series) ValidCount() int {
	n := 0
	for _, v := range s.values {
		if v.Valid {
			n++
		}
	}
	return n
}

// FillMethod selects how Fill replaces missing values.
type FillMethod int

const (
	// FillLinear interpolates between the nearest valid neighbours. Leading
	// and trailing gaps stay missing.
	FillLinear FillMethod = iota
	// FillForward carries the last valid value forward.
	FillForward
)

// Fill returns a copy with gaps filled. It is only applied when a caller
// asks for it; nothing in the engine fills implicitly.
func (s Series) Fill(method FillMethod) Series {
	out := s
	out.values = slices.Clone(s.values)
	last := -1
	for i, v := range out.values {
		if !v.Valid {
			if method == FillForward && last >= 0 {
				out.values[i] = out.values[last]
			}
			continue
		}
		if method == FillLinear && last >= 0 && i-last > 1 {
			a, b := out.values[last].V, v.V
			span := float64(i - last)
			for j := last + 1; j < i; j++ {
				out.values[j] = Some(a + (b-a)*float64(j-last)/span)
			}
		}
		last = i
	}
	return out
}

type seriesJSON struct {
	Metric string  `json:"metric"`
	Period Period  `json:"period"`
	Start  string  `json:"start"`
	Values []Value `json:"values"`
}

func (s Series) MarshalJSON() ([]byte, error) {
	return json.Marshal(seriesJSON{
		Metric: s.metric,
		Period: s.period,
		Start:  s.start.Format(time.DateOnly),
		Values: s.values,
	})
}

func (s *Series) UnmarshalJSON(data []byte) error {
	var raw seriesJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	start, err := time.Parse(time.DateOnly, raw.Start)
	if err != nil {
		return ConfigErrorf("series", "start %q: %v", raw.Start, err)
	}
	parsed, err := NewSeries(raw.Metric, raw.Period, start, raw.Values)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
