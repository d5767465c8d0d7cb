package cache

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SWRState describes which path an SWRCache.Get call took.
type SWRState int

const (
	// StateSeed means this call performed (or awaited) the first-ever
	// successful fetch for this cache.
	StateSeed SWRState = iota
	// StateFresh means the cached value is within its TTL.
	StateFresh
	// StateStale means the cached value is past its TTL but still
	// returned immediately while a background refresh runs.
	StateStale
	// StateSeedFailed means no value has ever been seeded and the
	// seeding fetch failed; the zero value of T is returned.
	StateSeedFailed
)

func (s SWRState) String() string {
	switch s {
	case StateSeed:
		return "seed"
	case StateFresh:
		return "fresh"
	case StateStale:
		return "stale"
	case StateSeedFailed:
		return "seed_failed"
	default:
		return "unknown"
	}
}

// SWRCache is a stale-while-revalidate cache. Get never blocks on a
// background refresh and never returns a nil/undefined value: a cold cache
// whose seed fetch fails returns the zero value of T with StateSeedFailed.
type SWRCache[T any] struct {
	ttl time.Duration
	log zerolog.Logger

	mu         sync.Mutex
	hasValue   bool
	value      T
	insertedAt time.Time
	seeding    *call[T]
	refreshing bool
}

// NewSWRCache returns an SWRCache with the given TTL. log may be the zero
// value; it is used only to report background refresh failures.
func NewSWRCache[T any](ttl time.Duration, log zerolog.Logger) *SWRCache[T] {
	return &SWRCache[T]{ttl: ttl, log: log}
}

// Get returns the cached value (or the zero value, on a failed cold seed)
// together with the path taken to produce it.
func (c *SWRCache[T]) Get(fetch FetchFunc[T]) (T, SWRState) {
	c.mu.Lock()

	if !c.hasValue {
		if c.seeding != nil {
			in := c.seeding
			c.mu.Unlock()
			<-in.done
			if in.err != nil {
				return in.value, StateSeedFailed
			}
			return in.value, StateSeed
		}

		in := &call[T]{done: make(chan struct{})}
		c.seeding = in
		c.mu.Unlock()

		v, err := fetch()

		c.mu.Lock()
		in.value, in.err = v, err
		if err == nil {
			c.value = v
			c.hasValue = true
			c.insertedAt = time.Now()
		}
		c.seeding = nil
		c.mu.Unlock()
		close(in.done)

		if err != nil {
			var zero T
			return zero, StateSeedFailed
		}
		return v, StateSeed
	}

	if time.Since(c.insertedAt) < c.ttl {
		v := c.value
		c.mu.Unlock()
		return v, StateFresh
	}

	v := c.value
	if !c.refreshing {
		c.refreshing = true
		go c.backgroundRefresh(fetch)
	}
	c.mu.Unlock()
	return v, StateStale
}

func (c *SWRCache[T]) backgroundRefresh(fetch FetchFunc[T]) {
	v, err := fetch()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshing = false
	if err != nil {
		c.log.Warn().Err(err).Msg("swr background refresh failed, keeping stale value")
		return
	}
	c.value = v
	c.insertedAt = time.Now()
}

// Peek returns the currently cached value without triggering a fetch.
func (c *SWRCache[T]) Peek() (value T, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.hasValue
}
