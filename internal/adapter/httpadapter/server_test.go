package httpadapter_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/couchcryptid/aquifer-feature-etl/internal/adapter/httpadapter"
	"github.com/couchcryptid/aquifer-feature-etl/internal/domain"
	"github.com/couchcryptid/aquifer-feature-etl/internal/spatial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mapStore map[string]domain.FeatureVector

func key(id string, date time.Time) string { return id + "|" + date.Format(time.DateOnly) }

func (m mapStore) Store(_ context.Context, loc domain.Location, date time.Time, fv domain.FeatureVector) error {
	m[key(loc.ID, date)] = fv
	return nil
}

func (m mapStore) Load(_ context.Context, loc domain.Location, date time.Time) (domain.FeatureVector, error) {
	fv, ok := m[key(loc.ID, date)]
	if !ok {
		return domain.FeatureVector{}, fmt.Errorf("vector %s: %w", loc.ID, domain.ErrNotFound)
	}
	return fv, nil
}

type stubPredictor struct {
	err   error
	model string
}

func (p *stubPredictor) Predict(_ context.Context, modelID string, fv domain.FeatureVector) (domain.Prediction, error) {
	p.model = modelID
	if p.err != nil {
		return domain.Prediction{}, p.err
	}
	return domain.Prediction{ModelID: modelID, LocationID: fv.Location().ID, Date: fv.Date(), Score: 0.5}, nil
}

var (
	june21   = time.Date(2021, time.June, 1, 0, 0, 0, 0, time.UTC)
	wellSite = domain.Location{ID: "well-7", Lon: -97.5, Lat: 35.4}
)

func storedVector(t *testing.T) domain.FeatureVector {
	t.Helper()
	schema, err := domain.NewSchema("twi")
	require.NoError(t, err)
	b := domain.NewVectorBuilder(schema, wellSite, june21)
	require.NoError(t, b.Set("twi", 10.84))
	return b.Build()
}

func newTestServer(t *testing.T, readyErr error, deps httpadapter.Deps) *httpadapter.Server {
	t.Helper()
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, deps,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func fullDeps(t *testing.T, pred domain.Predictor) httpadapter.Deps {
	t.Helper()
	ix, err := spatial.Build([]domain.Location{
		wellSite,
		{ID: "well-8", Lon: -97.51, Lat: 35.4},
		{ID: "far", Lon: 10, Lat: 50},
	})
	require.NoError(t, err)
	var holder spatial.Holder
	holder.Store(ix)

	store := mapStore{}
	require.NoError(t, store.Store(context.Background(), wellSite, june21, storedVector(t)))
	return httpadapter.Deps{Index: &holder, Store: store, Predictor: pred}
}

func do(srv http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	rec := do(newTestServer(t, nil, httpadapter.Deps{}), http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := do(newTestServer(t, nil, httpadapter.Deps{}), http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := do(newTestServer(t, errors.New("not ready yet"), httpadapter.Deps{}), http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := do(newTestServer(t, nil, httpadapter.Deps{}), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

type neighbors struct {
	Strategy  string `json:"strategy"`
	Neighbors []struct {
		Location struct {
			ID string `json:"id"`
		} `json:"location"`
		Distance float64 `json:"distance_m"`
	} `json:"neighbors"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestNearest(t *testing.T) {
	srv := newTestServer(t, nil, fullDeps(t, nil))

	rec := do(srv, http.MethodGet, "/v1/nearest?lon=-97.5&lat=35.4&k=2")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode[neighbors](t, rec)
	assert.Equal(t, "linear", body.Strategy)
	require.Len(t, body.Neighbors, 2)
	assert.Equal(t, "well-7", body.Neighbors[0].Location.ID)
	assert.Equal(t, 0.0, body.Neighbors[0].Distance)
	assert.Equal(t, "well-8", body.Neighbors[1].Location.ID)
}

func TestWithin(t *testing.T) {
	srv := newTestServer(t, nil, fullDeps(t, nil))

	rec := do(srv, http.MethodGet, "/v1/within?lon=-97.5&lat=35.4&radius_m=5000")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decode[neighbors](t, rec).Neighbors, 2)

	rec = do(srv, http.MethodGet, "/v1/within?lon=0&lat=0&radius_m=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"strategy":"linear","neighbors":[]}`, rec.Body.String())
}

func TestSpatialQueryErrors(t *testing.T) {
	srv := newTestServer(t, nil, fullDeps(t, nil))

	tests := []struct {
		target string
		status int
	}{
		{"/v1/nearest?lat=35&k=1", http.StatusBadRequest},
		{"/v1/nearest?lon=abc&lat=35&k=1", http.StatusBadRequest},
		{"/v1/nearest?lon=1&lat=35&k=1.5", http.StatusBadRequest},
		{"/v1/nearest?lon=1&lat=35&k=0", http.StatusBadRequest},
		{"/v1/nearest?lon=1&lat=95&k=1", http.StatusBadRequest},
		{"/v1/within?lon=1&lat=35&radius_m=-1", http.StatusBadRequest},
		{"/v1/within?lon=1&lat=35", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := do(srv, http.MethodGet, tt.target)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestSpatialQueryBeforeIndexBuilt(t *testing.T) {
	srv := newTestServer(t, nil, httpadapter.Deps{Index: &spatial.Holder{}})
	rec := do(srv, http.MethodGet, "/v1/nearest?lon=1&lat=1&k=1")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestFeatures(t *testing.T) {
	srv := newTestServer(t, nil, fullDeps(t, nil))

	rec := do(srv, http.MethodGet, "/v1/features?location_id=well-7&date=2021-06-01")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var fv domain.FeatureVector
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fv))
	twi, ok := fv.Get("twi")
	require.True(t, ok)
	assert.Equal(t, 10.84, twi.Value)

	assert.Equal(t, http.StatusNotFound,
		do(srv, http.MethodGet, "/v1/features?location_id=well-7&date=2021-07-01").Code)
	assert.Equal(t, http.StatusBadRequest,
		do(srv, http.MethodGet, "/v1/features?location_id=well-7&date=June").Code)
	assert.Equal(t, http.StatusBadRequest,
		do(srv, http.MethodGet, "/v1/features?date=2021-06-01").Code)
	assert.Equal(t, http.StatusServiceUnavailable,
		do(newTestServer(t, nil, httpadapter.Deps{}), http.MethodGet, "/v1/features?location_id=a&date=2021-06-01").Code)
}

func TestPredict(t *testing.T) {
	pred := &stubPredictor{}
	srv := newTestServer(t, nil, fullDeps(t, pred))

	rec := do(srv, http.MethodPost, "/v1/predict?location_id=well-7&date=2021-06-01&model=recharge-v2")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var p domain.Prediction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "recharge-v2", p.ModelID)
	assert.Equal(t, "well-7", p.LocationID)
	assert.Equal(t, 0.5, p.Score)
	assert.Equal(t, "recharge-v2", pred.model)

	assert.Equal(t, http.StatusMethodNotAllowed,
		do(srv, http.MethodGet, "/v1/predict?location_id=well-7&date=2021-06-01&model=m").Code)
	assert.Equal(t, http.StatusBadRequest,
		do(srv, http.MethodPost, "/v1/predict?location_id=well-7&date=2021-06-01").Code)
	assert.Equal(t, http.StatusNotFound,
		do(srv, http.MethodPost, "/v1/predict?location_id=nope&date=2021-06-01&model=m").Code)
}

func TestPredictErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"incomplete vector", &domain.InsufficientDataError{Feature: "spi_3"}, http.StatusUnprocessableEntity},
		{"bad model", domain.ConfigErrorf("model", "unknown"), http.StatusBadRequest},
		{"upstream failure", errors.New("model server error: status 500"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, nil, fullDeps(t, &stubPredictor{err: tt.err}))
			rec := do(srv, http.MethodPost, "/v1/predict?location_id=well-7&date=2021-06-01&model=m")
			assert.Equal(t, tt.status, rec.Code)
		})
	}

	srv := newTestServer(t, nil, fullDeps(t, nil))
	rec := do(srv, http.MethodPost, "/v1/predict?location_id=well-7&date=2021-06-01&model=m")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "inference disabled")
}
