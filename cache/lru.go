package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

// KeyedCache is a per-key wrapper over an arbitrary cache entry type (a
// *TTLCache[T] or *SWRCache[T]), backed by a bounded hashicorp/golang-lru/v2
// cache. Every Entry call touches the key's MRU position, whether it hits an
// existing entry or creates a new one; when the cache is full the LRU key
// is evicted, dropping its entry (and with it any in-flight fetch handle).
type KeyedCache[K comparable, E any] struct {
	mu       sync.Mutex
	inner    *lru.Cache[K, E]
	newEntry func() E
	log      zerolog.Logger
}

// NewKeyedCache returns a KeyedCache bounded to maxKeys entries. newEntry
// constructs a fresh per-key cache entry (e.g. func() E { return
// cache.NewTTLCache[T](ttl) }) the first time a key is seen.
func NewKeyedCache[K comparable, E any](maxKeys int, newEntry func() E, log zerolog.Logger) *KeyedCache[K, E] {
	kc := &KeyedCache[K, E]{newEntry: newEntry, log: log}
	inner, err := lru.NewWithEvict[K, E](maxKeys, func(key K, _ E) {
		kc.log.Debug().Interface("key", key).Msg("keyed cache evicting LRU entry")
	})
	if err != nil {
		// maxKeys <= 0 is a programming error; fall back to a single slot
		// rather than panicking in a hot path.
		inner, _ = lru.NewWithEvict[K, E](1, nil)
	}
	kc.inner = inner
	return kc
}

// Entry returns the per-key cache entry for key, creating it (and possibly
// evicting the current LRU key) if this is the first access, and in either
// case promoting key to the MRU position.
func (kc *KeyedCache[K, E]) Entry(key K) E {
	kc.mu.Lock()
	defer kc.mu.Unlock()

	if e, ok := kc.inner.Get(key); ok {
		return e
	}
	e := kc.newEntry()
	kc.inner.Add(key, e)
	return e
}

// Len returns the number of keys currently resident.
func (kc *KeyedCache[K, E]) Len() int {
	kc.mu.Lock()
	defer kc.mu.Unlock()
	return kc.inner.Len()
}

// Keys returns the resident keys ordered from least- to most-recently used.
func (kc *KeyedCache[K, E]) Keys() []K {
	kc.mu.Lock()
	defer kc.mu.Unlock()
	return kc.inner.Keys()
}

// Touch promotes key to the MRU position without creating it if absent.
// Returns false if the key was not resident.
func (kc *KeyedCache[K, E]) Touch(key K) bool {
	kc.mu.Lock()
	defer kc.mu.Unlock()
	_, ok := kc.inner.Get(key)
	return ok
}
