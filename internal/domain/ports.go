package domain

import (
	"context"
	"time"
)

// Prediction is the opaque output of an external model.
type Prediction struct {
	ModelID    string    `json:"model_id"`
	LocationID string    `json:"location_id"`
	Date       time.Time `json:"date"`
	Score      float64   `json:"score"`
	Label      string    `json:"label,omitempty"`
}

// Predictor scores a feature vector with a trained model. Implementations
// are passed explicitly to the components that need them.
type Predictor interface {
	Predict(ctx context.Context, modelID string, fv FeatureVector) (Prediction, error)
}

// FeatureStore persists feature vectors keyed by location and date.
// Load returns ErrNotFound when no vector exists.
type FeatureStore interface {
	Store(ctx context.Context, loc Location, date time.Time, fv FeatureVector) error
	Load(ctx context.Context, loc Location, date time.Time) (FeatureVector, error)
}
