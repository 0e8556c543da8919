// Package inference scores feature vectors against an external model
// server over HTTP.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/aquifer-feature-etl/internal/domain"
	"github.com/couchcryptid/aquifer-feature-etl/internal/observability"
)

// Client implements domain.Predictor by POSTing to <baseURL>/predict.
type Client struct {
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a model client. timeout bounds each request.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		metrics:    metrics,
		logger:     logger,
	}
}

// Predict sends fv to the model. Vectors with any non-present feature are
// refused with an InsufficientDataError naming the first such feature.
func (c *Client) Predict(ctx context.Context, modelID string, fv domain.FeatureVector) (domain.Prediction, error) {
	if modelID == "" {
		return domain.Prediction{}, domain.ConfigErrorf("model", "model id is required")
	}
	if !fv.AllPresent() {
		return domain.Prediction{}, notReady(fv)
	}

	body, err := json.Marshal(newRequest(modelID, fv))
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("encode predict request: %w", err)
	}

	start := time.Now()
	pred, err := c.doRequest(ctx, body)
	c.metrics.InferenceDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.InferenceRequests.WithLabelValues("error").Inc()
		c.logger.Warn("model request failed", "model", modelID, "location_id", fv.Location().ID, "error", err)
		return domain.Prediction{}, err
	}
	c.metrics.InferenceRequests.WithLabelValues("success").Inc()

	pred.ModelID = modelID
	pred.LocationID = fv.Location().ID
	pred.Date = fv.Date()
	return pred, nil
}

func (c *Client) doRequest(ctx context.Context, body []byte) (domain.Prediction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("predict request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return domain.Prediction{}, fmt.Errorf("model server error: status %d: %s", resp.StatusCode, msg)
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.Prediction{}, fmt.Errorf("decode response: %w", err)
	}
	return domain.Prediction{Score: out.Score, Label: out.Label}, nil
}

func notReady(fv domain.FeatureVector) error {
	feature, reason := "", "vector has no schema"
	if fv.Schema() == nil {
		return &domain.InsufficientDataError{LocationID: fv.Location().ID, Date: fv.Date(), Reason: reason}
	}
	for _, name := range fv.Schema().Names() {
		v, _ := fv.Get(name)
		if v.Status != domain.StatusPresent {
			feature, reason = name, v.Status.String()
			if v.Reason != "" {
				reason += ": " + v.Reason
			}
			break
		}
	}
	return &domain.InsufficientDataError{
		LocationID: fv.Location().ID,
		Date:       fv.Date(),
		Feature:    feature,
		Reason:     reason,
	}
}

// Model server wire types.

type request struct {
	ModelID    string    `json:"model_id"`
	LocationID string    `json:"location_id"`
	Date       string    `json:"date"`
	Features   []string  `json:"features"`
	Values     []float64 `json:"values"`
}

func newRequest(modelID string, fv domain.FeatureVector) request {
	return request{
		ModelID:    modelID,
		LocationID: fv.Location().ID,
		Date:       fv.Date().Format(time.DateOnly),
		Features:   fv.Schema().Names(),
		Values:     fv.Dense(),
	}
}

type response struct {
	Score float64 `json:"score"`
	Label string  `json:"label,omitempty"`
}
