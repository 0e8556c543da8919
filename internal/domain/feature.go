package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// FeatureStatus says whether a feature slot carries a number, and if not, why.
type FeatureStatus uint8

const (
	// StatusUnset means nothing has been recorded for the feature.
	StatusUnset FeatureStatus = iota
	// StatusPresent means the feature carries a numeric value.
	StatusPresent
	// StatusInsufficient means there was not enough history or data.
	StatusInsufficient
	// StatusUndefined means the feature has no value by definition, e.g.
	// the aspect of a flat cell or a cell with no source data.
	StatusUndefined
)

var statusNames = [...]string{"unset", "present", "insufficient", "undefined"}

func (s FeatureStatus) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", s)
}

func (s FeatureStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *FeatureStatus) UnmarshalText(text []byte) error {
	for i, name := range statusNames {
		if name == string(text) {
			*s = FeatureStatus(i)
			return nil
		}
	}
	return fmt.Errorf("unknown feature status %q", text)
}

// FeatureValue is one slot of a FeatureVector.
type FeatureValue struct {
	Value  float64
	Status FeatureStatus
	Reason string
}

// Present reports whether the slot carries a number.
func (f FeatureValue) Present() bool { return f.Status == StatusPresent }

// Schema is the closed, ordered set of feature names a vector may carry.
type Schema struct {
	names []string
	index map[string]int
}

// NewSchema rejects empty and duplicate names.
func NewSchema(names ...string) (*Schema, error) {
	s := &Schema{names: make([]string, 0, len(names)), index: make(map[string]int, len(names))}
	for _, n := range names {
		if n == "" {
			return nil, ConfigErrorf("schema", "empty feature name")
		}
		if _, dup := s.index[n]; dup {
			return nil, ConfigErrorf("schema", "duplicate feature %q", n)
		}
		s.index[n] = len(s.names)
		s.names = append(s.names, n)
	}
	return s, nil
}

func (s *Schema) Len() int { return len(s.names) }

// Names returns the feature names in declaration order.
func (s *Schema) Names() []string { return append([]string(nil), s.names...) }

func (s *Schema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// FeatureVector holds the features for one location and date. It is
// immutable once built.
type FeatureVector struct {
	location    Location
	date        time.Time
	generatedAt time.Time
	schema      *Schema
	values      []FeatureValue
}

func (v FeatureVector) Location() Location     { return v.location }
func (v FeatureVector) Date() time.Time        { return v.date }
func (v FeatureVector) GeneratedAt() time.Time { return v.generatedAt }
func (v FeatureVector) Schema() *Schema        { return v.schema }

// Get looks a feature up by name.
func (v FeatureVector) Get(name string) (FeatureValue, bool) {
	if v.schema == nil {
		return FeatureValue{}, false
	}
	i, ok := v.schema.index[name]
	if !ok {
		return FeatureValue{}, false
	}
	return v.values[i], true
}

// Complete reports whether every declared feature has been resolved to a
// value or an explicit marker.
func (v FeatureVector) Complete() bool {
	if v.schema == nil {
		return false
	}
	for _, fv := range v.values {
		if fv.Status == StatusUnset {
			return false
		}
	}
	return true
}

// AllPresent reports whether every declared feature carries a number.
func (v FeatureVector) AllPresent() bool {
	if v.schema == nil {
		return false
	}
	for _, fv := range v.values {
		if fv.Status != StatusPresent {
			return false
		}
	}
	return true
}

// WithStatus returns the names of features in the given status.
func (v FeatureVector) WithStatus(status FeatureStatus) []string {
	var out []string
	for i, fv := range v.values {
		if fv.Status == status {
			out = append(out, v.schema.names[i])
		}
	}
	return out
}

// Dense returns values in schema order with NaN in every non-present slot.
func (v FeatureVector) Dense() []float64 {
	out := make([]float64, len(v.values))
	for i, fv := range v.values {
		if fv.Present() {
			out[i] = fv.Value
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// VectorBuilder assembles a FeatureVector against a schema.
type VectorBuilder struct {
	vec FeatureVector
}

// NewVectorBuilder starts a vector with every feature unset.
func NewVectorBuilder(schema *Schema, loc Location, date time.Time) *VectorBuilder {
	return &VectorBuilder{vec: FeatureVector{
		location: loc,
		date:     date,
		schema:   schema,
		values:   make([]FeatureValue, schema.Len()),
	}}
}

func (b *VectorBuilder) slot(name string) (*FeatureValue, error) {
	i, ok := b.vec.schema.index[name]
	if !ok {
		return nil, ConfigErrorf("feature", "%q is not in the schema", name)
	}
	return &b.vec.values[i], nil
}

// Set records a numeric feature. NaN records the feature as undefined.
func (b *VectorBuilder) Set(name string, v float64) error {
	s, err := b.slot(name)
	if err != nil {
		return err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		*s = FeatureValue{Status: StatusUndefined, Reason: "no value"}
		return nil
	}
	*s = FeatureValue{Value: v, Status: StatusPresent}
	return nil
}

// MarkInsufficient records that the feature could not be computed.
func (b *VectorBuilder) MarkInsufficient(name, reason string) error {
	s, err := b.slot(name)
	if err != nil {
		return err
	}
	*s = FeatureValue{Status: StatusInsufficient, Reason: reason}
	return nil
}

// MarkUndefined records that the feature has no value by definition.
func (b *VectorBuilder) MarkUndefined(name, reason string) error {
	s, err := b.slot(name)
	if err != nil {
		return err
	}
	*s = FeatureValue{Status: StatusUndefined, Reason: reason}
	return nil
}

// Build returns the finished vector stamped with the current time. The
// builder may be reused; later edits do not affect returned vectors.
func (b *VectorBuilder) Build() FeatureVector {
	out := b.vec
	out.values = append([]FeatureValue(nil), b.vec.values...)
	out.generatedAt = clock.Now().UTC()
	return out
}

type featureJSON struct {
	Name   string        `json:"name"`
	Status FeatureStatus `json:"status"`
	Value  *float64      `json:"value,omitempty"`
	Reason string        `json:"reason,omitempty"`
}

type vectorJSON struct {
	Location    Location      `json:"location"`
	Date        string        `json:"date"`
	GeneratedAt time.Time     `json:"generated_at"`
	Complete    bool          `json:"complete"`
	Features    []featureJSON `json:"features"`
}

// MarshalJSON writes a self-describing document: features are listed in
// schema order so the schema can be rebuilt on decode.
func (v FeatureVector) MarshalJSON() ([]byte, error) {
	doc := vectorJSON{
		Location:    v.location,
		Date:        v.date.Format(time.DateOnly),
		GeneratedAt: v.generatedAt,
		Complete:    v.Complete(),
		Features:    make([]featureJSON, len(v.values)),
	}
	for i, fv := range v.values {
		f := featureJSON{Name: v.schema.names[i], Status: fv.Status, Reason: fv.Reason}
		if fv.Present() {
			val := fv.Value
			f.Value = &val
		}
		doc.Features[i] = f
	}
	return json.Marshal(doc)
}

func (v *FeatureVector) UnmarshalJSON(data []byte) error {
	var doc vectorJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	date, err := time.Parse(time.DateOnly, doc.Date)
	if err != nil {
		return fmt.Errorf("parse vector date: %w", err)
	}
	names := make([]string, len(doc.Features))
	for i, f := range doc.Features {
		names[i] = f.Name
	}
	schema, err := NewSchema(names...)
	if err != nil {
		return err
	}
	values := make([]FeatureValue, len(doc.Features))
	for i, f := range doc.Features {
		values[i] = FeatureValue{Status: f.Status, Reason: f.Reason}
		if f.Value != nil {
			values[i].Value = *f.Value
		}
	}
	*v = FeatureVector{
		location:    doc.Location,
		date:        date,
		generatedAt: doc.GeneratedAt,
		schema:      schema,
		values:      values,
	}
	return nil
}
