package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestTTLCacheSingleflight(t *testing.T) {
	c := NewTTLCache[int](10 * time.Second)

	var calls int32
	fetch := func() (int, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(100 * time.Millisecond)
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			v, err := c.Get(fetch)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			results[idx] = v
		}(i)
	}
	wg.Wait()

	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("fetch called %d times, want 1", calls)
	}
	for i, v := range results {
		if v != 42 {
			t.Errorf("result[%d] = %d, want 42", i, v)
		}
	}
}

func TestTTLCacheRetriesAfterFailure(t *testing.T) {
	c := NewTTLCache[int](10 * time.Second)
	_, err := c.Get(func() (int, error) { return 0, errors.New("boom") })
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := c.Peek(); ok {
		t.Fatal("failed fetch must not populate the cache")
	}
	v, err := c.Get(func() (int, error) { return 7, nil })
	if err != nil || v != 7 {
		t.Fatalf("Get = (%v, %v), want (7, nil)", v, err)
	}
}

func TestSWRCacheNeverNilUnderConcurrency(t *testing.T) {
	c := NewSWRCache[map[string]int](10*time.Second, zerolog.Nop())

	var calls int32
	fetch := func() (map[string]int, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(50 * time.Millisecond)
		return map[string]int{"a": 1}, nil
	}

	var wg sync.WaitGroup
	states := make([]SWRState, 10)
	values := make([]map[string]int, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			v, s := c.Get(fetch)
			states[idx] = s
			values[idx] = v
		}(i)
	}
	wg.Wait()

	for i, v := range values {
		if v == nil {
			t.Errorf("result[%d] is nil", i)
		}
		if states[i] != StateSeed {
			t.Errorf("state[%d] = %v, want seed", i, states[i])
		}
	}
}

func TestSWRCacheSeedFailedReturnsZeroValue(t *testing.T) {
	c := NewSWRCache[map[string]int](10*time.Second, zerolog.Nop())
	v, s := c.Get(func() (map[string]int, error) { return nil, errors.New("upstream down") })
	if s != StateSeedFailed {
		t.Errorf("state = %v, want seed_failed", s)
	}
	if v != nil {
		t.Errorf("v = %v, want nil zero value", v)
	}
}

func TestSWRCacheStaleServesWhileRefreshing(t *testing.T) {
	c := NewSWRCache[int](10*time.Millisecond, zerolog.Nop())

	v, s := c.Get(func() (int, error) { return 1, nil })
	if s != StateSeed || v != 1 {
		t.Fatalf("seed Get = (%v, %v)", v, s)
	}

	time.Sleep(20 * time.Millisecond)

	refreshStarted := make(chan struct{})
	releaseRefresh := make(chan struct{})
	v2, s2 := c.Get(func() (int, error) {
		close(refreshStarted)
		<-releaseRefresh
		return 2, nil
	})
	if s2 != StateStale || v2 != 1 {
		t.Fatalf("stale Get = (%v, %v), want (1, stale)", v2, s2)
	}
	<-refreshStarted
	close(releaseRefresh)
	time.Sleep(20 * time.Millisecond)

	v3, ok := c.Peek()
	if !ok || v3 != 2 {
		t.Errorf("after background refresh, Peek = (%v, %v), want (2, true)", v3, ok)
	}
}

func TestKeyedCacheLRUEviction(t *testing.T) {
	kc := NewKeyedCache[string, *TTLCache[int]](3, func() *TTLCache[int] {
		return NewTTLCache[int](time.Minute)
	}, zerolog.Nop())

	seed := func(key string, val int) {
		e := kc.Entry(key)
		_, _ = e.Get(func() (int, error) { return val, nil })
	}

	seed("a", 1)
	seed("b", 2)
	seed("c", 3)
	seed("d", 4) // evicts "a" (LRU)

	keys := kc.Keys()
	if !sameSet(keys, []string{"b", "c", "d"}) {
		t.Fatalf("after a,b,c,d inserts: keys = %v, want {b,c,d}", keys)
	}

	// Re-seed "a" fresh, touch it between c and d in a new round.
	kc2 := NewKeyedCache[string, *TTLCache[int]](3, func() *TTLCache[int] {
		return NewTTLCache[int](time.Minute)
	}, zerolog.Nop())
	seed2 := func(key string, val int) {
		e := kc2.Entry(key)
		_, _ = e.Get(func() (int, error) { return val, nil })
	}
	seed2("a", 1)
	seed2("b", 2)
	seed2("c", 3)
	kc2.Touch("a")
	seed2("d", 4) // "b" is now LRU, evicted

	keys2 := kc2.Keys()
	if !sameSet(keys2, []string{"a", "c", "d"}) {
		t.Fatalf("after touching a between c,d: keys = %v, want {a,c,d}", keys2)
	}
}

func sameSet(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	set := make(map[string]bool, len(got))
	for _, k := range got {
		set[k] = true
	}
	for _, k := range want {
		if !set[k] {
			return false
		}
	}
	return true
}
