// Package cache provides a generic, thread-safe LRU cache with optional
// Prometheus metrics.
package cache

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/c360/signalfeed/errors"
)

// EvictCallback is called, outside the cache lock, for every entry pushed
// out by capacity.
type EvictCallback[V any] func(key string, value V)

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Size      int   `json:"size"`
	MaxSize   int   `json:"max_size"`
}

// HitRatio returns hits over lookups, or 0 before the first lookup.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type lruEntry[V any] struct {
	key   string
	value V
}

// LRU evicts the least recently used entry once maxSize is exceeded.
type LRU[V any] struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element
	order   *list.List // front is most recent
	evictFn EvictCallback[V]
	metrics *cacheMetrics

	hits, misses, evictions int64
}

// NewLRU creates a cache holding at most maxSize entries.
func NewLRU[V any](maxSize int, options ...Option[V]) (*LRU[V], error) {
	if maxSize < 1 {
		return nil, errors.WrapInvalid(fmt.Errorf("max size %d must be at least 1", maxSize),
			"cache", "NewLRU", "validate size")
	}
	opts := applyOptions(options...)

	c := &LRU[V]{
		maxSize: maxSize,
		items:   make(map[string]*list.Element, maxSize),
		order:   list.New(),
		evictFn: opts.evictCallback,
	}
	if opts.metricsReg != nil {
		m, err := newCacheMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.Wrap(err, "cache", "NewLRU", "metrics registration")
		}
		c.metrics = m
	}
	return c, nil
}

// Get returns the value for key and marks it recently used.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.items[key]
	if !ok {
		c.misses++
		if c.metrics != nil {
			c.metrics.misses.Inc()
		}
		var zero V
		return zero, false
	}

	c.order.MoveToFront(element)
	c.hits++
	if c.metrics != nil {
		c.metrics.hits.Inc()
	}
	return element.Value.(*lruEntry[V]).value, true
}

// Set stores value under key and reports whether the key was new. An empty
// key is rejected.
func (c *LRU[V]) Set(key string, value V) (bool, error) {
	if key == "" {
		return false, errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "Set", "key cannot be empty")
	}

	c.mu.Lock()
	if element, ok := c.items[key]; ok {
		element.Value.(*lruEntry[V]).value = value
		c.order.MoveToFront(element)
		c.mu.Unlock()
		return false, nil
	}

	c.items[key] = c.order.PushFront(&lruEntry[V]{key: key, value: value})

	var evicted []lruEntry[V]
	for len(c.items) > c.maxSize {
		oldest := c.order.Back()
		entry := oldest.Value.(*lruEntry[V])
		c.order.Remove(oldest)
		delete(c.items, entry.key)
		c.evictions++
		evicted = append(evicted, *entry)
	}
	size := len(c.items)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.size.Set(float64(size))
		c.metrics.evictions.Add(float64(len(evicted)))
	}
	if c.evictFn != nil {
		for _, e := range evicted {
			c.evictFn(e.key, e.value)
		}
	}
	return true, nil
}

// Delete removes key and reports whether it was present. The eviction
// callback is not called.
func (c *LRU[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.items[key]
	if !ok {
		return false
	}
	c.order.Remove(element)
	delete(c.items, key)
	if c.metrics != nil {
		c.metrics.size.Set(float64(len(c.items)))
	}
	return true
}

// Len returns the number of entries.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Keys returns the keys, most recently used first.
func (c *LRU[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.items))
	for element := c.order.Front(); element != nil; element = element.Next() {
		keys = append(keys, element.Value.(*lruEntry[V]).key)
	}
	return keys
}

// Stats returns the current counters.
func (c *LRU[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Size:      len(c.items),
		MaxSize:   c.maxSize,
	}
}
