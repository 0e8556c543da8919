package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Value is an optional measurement. The zero Value is missing, which is
// never the same thing as a measured zero.
type Value struct {
	V     float64
	Valid bool
}

// Some wraps a measured value. NaN and infinities are treated as missing.
func Some(v float64) Value {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Value{}
	}
	return Value{V: v, Valid: true}
}

// Missing returns an absent value.
func Missing() Value { return Value{} }

// Float returns the value, or NaN when missing.
func (v Value) Float() float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.V
}

func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, v.V, 'g', -1, 64), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*v = Value{}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*v = Some(f)
	return nil
}
