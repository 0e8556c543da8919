package inference

import (
	"context"
	"sync"
	"time"

	"github.com/couchcryptid/aquifer-feature-etl/internal/domain"
	"github.com/couchcryptid/aquifer-feature-etl/internal/observability"
)

// CachedPredictor wraps a Predictor with an in-memory LRU cache. Entries
// are keyed by model, location, date and the vector's generation stamp, so
// a recomputed vector is scored again.
type CachedPredictor struct {
	inner   domain.Predictor
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedPredictor creates a cache decorator around a predictor.
func NewCachedPredictor(inner domain.Predictor, maxEntries int, metrics *observability.Metrics) *CachedPredictor {
	return &CachedPredictor{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

func (c *CachedPredictor) Predict(ctx context.Context, modelID string, fv domain.FeatureVector) (domain.Prediction, error) {
	key := cacheKey(modelID, fv)
	if pred, ok := c.cache.get(key); ok {
		c.metrics.InferenceCache.WithLabelValues("hit").Inc()
		return pred, nil
	}
	c.metrics.InferenceCache.WithLabelValues("miss").Inc()

	pred, err := c.inner.Predict(ctx, modelID, fv)
	if err != nil {
		return pred, err
	}
	c.cache.put(key, pred)
	return pred, nil
}

func cacheKey(modelID string, fv domain.FeatureVector) string {
	return modelID + "|" + fv.Location().ID + "|" + fv.Date().Format(time.DateOnly) +
		"|" + fv.GeneratedAt().Format(time.RFC3339Nano)
}

// lruCache is a thread-safe LRU cache of predictions.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key        string
	value      domain.Prediction
	prev, next *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: max(maxEntries, 1),
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (domain.Prediction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return domain.Prediction{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value domain.Prediction) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.unlink(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) unlink(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.unlink(c.tail)
}
