package inference

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/couchcryptid/aquifer-feature-etl/internal/domain"
	"github.com/couchcryptid/aquifer-feature-etl/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingPredictor struct {
	calls int
	err   error
}

func (m *countingPredictor) Predict(_ context.Context, modelID string, fv domain.FeatureVector) (domain.Prediction, error) {
	m.calls++
	if m.err != nil {
		return domain.Prediction{}, m.err
	}
	return domain.Prediction{ModelID: modelID, LocationID: fv.Location().ID, Score: float64(m.calls)}, nil
}

func TestCachedPredictor_CacheHit(t *testing.T) {
	inner := &countingPredictor{}
	cached := NewCachedPredictor(inner, 10, observability.NewMetricsForTesting())
	fv := fullVector(t)

	p1, err := cached.Predict(context.Background(), "m", fv)
	require.NoError(t, err)
	p2, err := cached.Predict(context.Background(), "m", fv)
	require.NoError(t, err)

	assert.Equal(t, p1, p2)
	assert.Equal(t, 1, inner.calls, "should only call inner once")
}

func TestCachedPredictor_DifferentKeysMiss(t *testing.T) {
	inner := &countingPredictor{}
	cached := NewCachedPredictor(inner, 10, observability.NewMetricsForTesting())

	fake := clockwork.NewFakeClockAt(time.Date(2024, 4, 27, 0, 0, 0, 0, time.UTC))
	domain.SetClock(fake)
	t.Cleanup(func() { domain.SetClock(nil) })

	first := fullVector(t)
	_, _ = cached.Predict(context.Background(), "m", first)
	_, _ = cached.Predict(context.Background(), "other", first)

	fake.Advance(time.Minute)
	_, _ = cached.Predict(context.Background(), "m", fullVector(t))

	assert.Equal(t, 3, inner.calls, "model and regeneration are part of the key")
}

func TestCachedPredictor_ErrorsNotCached(t *testing.T) {
	inner := &countingPredictor{err: errors.New("model down")}
	cached := NewCachedPredictor(inner, 10, observability.NewMetricsForTesting())

	_, err := cached.Predict(context.Background(), "m", fullVector(t))
	require.Error(t, err)
	inner.err = nil
	_, err = cached.Predict(context.Background(), "m", fullVector(t))
	require.NoError(t, err)

	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, 1, cached.cache.len())
}

func TestLRUCache_BasicGetPut(t *testing.T) {
	c := newLRUCache(3)

	c.put("a", domain.Prediction{Label: "A"})
	c.put("b", domain.Prediction{Label: "B"})

	result, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "A", result.Label)

	_, ok = c.get("missing")
	assert.False(t, ok)
}

func TestLRUCache_Eviction(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", domain.Prediction{Label: "A"})
	c.put("b", domain.Prediction{Label: "B"})
	c.put("c", domain.Prediction{Label: "C"})

	_, ok := c.get("a")
	assert.False(t, ok, "a should have been evicted")

	result, ok := c.get("c")
	assert.True(t, ok)
	assert.Equal(t, "C", result.Label)
	assert.Equal(t, 2, c.len())
}

func TestLRUCache_AccessPromotesEntry(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", domain.Prediction{Label: "A"})
	c.put("b", domain.Prediction{Label: "B"})
	c.get("a")
	c.put("c", domain.Prediction{Label: "C"})

	_, ok := c.get("a")
	assert.True(t, ok, "a was accessed recently")
	_, ok = c.get("b")
	assert.False(t, ok, "b should have been evicted")
}

func TestLRUCache_UpdateExisting(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", domain.Prediction{Label: "A1"})
	c.put("a", domain.Prediction{Label: "A2"})

	result, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "A2", result.Label)
	assert.Equal(t, 1, c.len())
}

func TestLRUCache_ZeroCapacityHoldsOne(t *testing.T) {
	c := newLRUCache(0)
	c.put("a", domain.Prediction{})
	c.put("b", domain.Prediction{})
	assert.Equal(t, 1, c.len())
}
