package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConfiguration marks fatal setup problems: misaligned grids, invalid
	// parameters, malformed locations. A batch that hits one is aborted.
	ErrConfiguration = errors.New("configuration error")

	// ErrInsufficientData marks a feature that could not be computed for one
	// location and date. It never aborts a batch.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrNotFound is returned by stores when no vector exists for a key.
	ErrNotFound = errors.New("not found")
)

// ConfigurationError describes an invalid input or parameter.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// ConfigErrorf builds a ConfigurationError for the named field.
func ConfigErrorf(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsConfigurationError reports whether err carries a ConfigurationError.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// InsufficientDataError scopes a missing feature to a location and date.
type InsufficientDataError struct {
	LocationID string
	Date       time.Time
	Feature    string
	Reason     string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s at %s/%s: %s",
		e.Feature, e.LocationID, e.Date.Format(time.DateOnly), e.Reason)
}

func (e *InsufficientDataError) Unwrap() error { return ErrInsufficientData }

// DegeneracyWarning records a standardized value whose cumulative
// probability fell in a tail beyond the configured bound. The clamped value
// is still emitted.
type DegeneracyWarning struct {
	LocationID  string
	Feature     string
	Date        time.Time
	Probability float64
	Clamped     float64
}

func (w DegeneracyWarning) String() string {
	return fmt.Sprintf("%s at %s/%s clamped to %g (p=%g)",
		w.Feature, w.LocationID, w.Date.Format(time.DateOnly), w.Clamped, w.Probability)
}
