package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/aquifer-feature-etl/internal/domain"
	"github.com/couchcryptid/aquifer-feature-etl/internal/spatial"
)

type neighborsResponse struct {
	Strategy  spatial.Strategy   `json:"strategy"`
	Neighbors []spatial.Neighbor `json:"neighbors"`
}

func (s *Server) handleNearest(w http.ResponseWriter, r *http.Request) {
	ix := s.index(w)
	if ix == nil {
		return
	}
	q := queryParams{r: r}
	lon, lat := q.number("lon"), q.number("lat")
	k := q.integer("k")
	if q.err != nil {
		writeError(w, http.StatusBadRequest, q.err)
		return
	}
	hits, err := ix.Nearest(lon, lat, k)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, neighborsResponse{Strategy: ix.Strategy(), Neighbors: nonNil(hits)})
}

func (s *Server) handleWithin(w http.ResponseWriter, r *http.Request) {
	ix := s.index(w)
	if ix == nil {
		return
	}
	q := queryParams{r: r}
	lon, lat := q.number("lon"), q.number("lat")
	radius := q.number("radius_m")
	if q.err != nil {
		writeError(w, http.StatusBadRequest, q.err)
		return
	}
	hits, err := ix.Within(lon, lat, radius)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, neighborsResponse{Strategy: ix.Strategy(), Neighbors: nonNil(hits)})
}

func (s *Server) handleFeatures(w http.ResponseWriter, r *http.Request) {
	fv, ok := s.loadVector(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, fv)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if s.deps.Predictor == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("model inference is disabled"))
		return
	}
	model := r.URL.Query().Get("model")
	if model == "" {
		writeError(w, http.StatusBadRequest, errors.New("model is required"))
		return
	}
	fv, ok := s.loadVector(w, r)
	if !ok {
		return
	}
	pred, err := s.deps.Predictor.Predict(r.Context(), model, fv)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, pred)
}

func (s *Server) index(w http.ResponseWriter) *spatial.Index {
	var ix *spatial.Index
	if s.deps.Index != nil {
		ix = s.deps.Index.Load()
	}
	if ix == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("location index not built yet"))
	}
	return ix
}

func (s *Server) loadVector(w http.ResponseWriter, r *http.Request) (domain.FeatureVector, bool) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("feature store is not configured"))
		return domain.FeatureVector{}, false
	}
	q := queryParams{r: r}
	id := q.text("location_id")
	date := q.day("date")
	if q.err != nil {
		writeError(w, http.StatusBadRequest, q.err)
		return domain.FeatureVector{}, false
	}
	fv, err := s.deps.Store.Load(r.Context(), domain.Location{ID: id}, date)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("load vector failed", "location_id", id, "date", date.Format(time.DateOnly), "error", err)
		}
		writeError(w, status, err)
		return domain.FeatureVector{}, false
	}
	return fv, true
}

// queryParams parses URL query values and keeps the first error.
type queryParams struct {
	r   *http.Request
	err error
}

func (q *queryParams) text(name string) string {
	v := q.r.URL.Query().Get(name)
	if v == "" && q.err == nil {
		q.err = fmt.Errorf("%s is required", name)
	}
	return v
}

func (q *queryParams) number(name string) float64 {
	raw := q.text(name)
	if q.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		q.err = fmt.Errorf("%s: %q is not a number", name, raw)
	}
	return v
}

func (q *queryParams) integer(name string) int {
	raw := q.text(name)
	if q.err != nil {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		q.err = fmt.Errorf("%s: %q is not an integer", name, raw)
	}
	return v
}

func (q *queryParams) day(name string) time.Time {
	raw := q.text(name)
	if q.err != nil {
		return time.Time{}
	}
	v, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		q.err = fmt.Errorf("%s: %q is not a YYYY-MM-DD date", name, raw)
	}
	return v
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func nonNil(hits []spatial.Neighbor) []spatial.Neighbor {
	if hits == nil {
		return []spatial.Neighbor{}
	}
	return hits
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
