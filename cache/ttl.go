// Package cache provides the TTL-singleflight, stale-while-revalidate, and
// per-key LRU cache primitives that the poller set and per-vehicle stop
// estimators are built on.
package cache

import (
	"sync"
	"time"
)

// FetchFunc produces a fresh value for a cache.
type FetchFunc[T any] func() (T, error)

// TTLCache is a singleflight cache: at most one fetch is ever in flight,
// concurrent misses coalesce onto it, and the stored value's age is
// measured from the monotonic instant the fetch succeeded.
type TTLCache[T any] struct {
	ttl time.Duration

	mu         sync.Mutex
	hasValue   bool
	value      T
	insertedAt time.Time
	inflight   *call[T]
}

type call[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// NewTTLCache returns a TTLCache with the given time-to-live.
func NewTTLCache[T any](ttl time.Duration) *TTLCache[T] {
	return &TTLCache[T]{ttl: ttl}
}

// Get returns the cached value if it is fresh, otherwise coalesces with any
// in-flight fetch (starting one if none is running) and returns its result.
func (c *TTLCache[T]) Get(fetch FetchFunc[T]) (T, error) {
	c.mu.Lock()
	if c.hasValue && time.Since(c.insertedAt) < c.ttl {
		v := c.value
		c.mu.Unlock()
		return v, nil
	}

	if c.inflight != nil {
		in := c.inflight
		c.mu.Unlock()
		<-in.done
		return in.value, in.err
	}

	in := &call[T]{done: make(chan struct{})}
	c.inflight = in
	c.mu.Unlock()

	v, err := fetch()

	c.mu.Lock()
	in.value, in.err = v, err
	if err == nil {
		c.value = v
		c.hasValue = true
		c.insertedAt = time.Now()
	}
	c.inflight = nil
	c.mu.Unlock()
	close(in.done)

	return v, err
}

// Peek returns the currently cached value without triggering a fetch.
func (c *TTLCache[T]) Peek() (value T, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.hasValue
}

// Age returns how long the cached value has been in the cache. Only
// meaningful when Peek reports ok.
func (c *TTLCache[T]) Age() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasValue {
		return 0
	}
	return time.Since(c.insertedAt)
}
