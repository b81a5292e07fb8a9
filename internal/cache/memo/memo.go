// Package memo provides in-process argument memoization for pure functions.
// Entries live for the life of the process and are never evicted; the server
// only memoizes a small, fixed set of call signatures, so unbounded growth
// is acceptable.
package memo

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Counter is the subset of prometheus.Counter the cache needs. A nil Counter
// is ignored.
type Counter interface{ Inc() }

// Func1 memoizes a pure single-argument function. The argument is the cache
// key, so it must be comparable; callers with slice-shaped arguments
// normalize them to a canonical string first.
//
// Concurrent first calls for the same key may both invoke fn; exactly one
// result is kept. The function must be deterministic for this to be sound.
type Func1[K comparable, V any] struct {
	fn      func(K) (V, error)
	mu      sync.RWMutex
	entries map[K]V
	hits    atomic.Int64
	misses  atomic.Int64

	HitCounter  Counter
	MissCounter Counter
}

// NewFunc1 wraps fn with argument memoization.
func NewFunc1[K comparable, V any](fn func(K) (V, error)) *Func1[K, V] {
	return &Func1[K, V]{
		fn:      fn,
		entries: make(map[K]V),
	}
}

// Call returns the memoized result for key, invoking the wrapped function on
// a miss. The second return reports whether the result came from cache. A
// failed invocation caches nothing.
func (m *Func1[K, V]) Call(key K) (V, bool, error) {
	m.mu.RLock()
	v, ok := m.entries[key]
	m.mu.RUnlock()
	if ok {
		m.hits.Add(1)
		if m.HitCounter != nil {
			m.HitCounter.Inc()
		}
		return v, true, nil
	}

	m.misses.Add(1)
	if m.MissCounter != nil {
		m.MissCounter.Inc()
	}
	computed, err := m.fn(key)
	if err != nil {
		var zero V
		return zero, false, err
	}

	m.mu.Lock()
	if existing, ok := m.entries[key]; ok {
		// Lost the race: keep the first stored result.
		computed = existing
	} else {
		m.entries[key] = computed
	}
	m.mu.Unlock()
	return computed, false, nil
}

// Stats returns the hit and miss counts since process start.
func (m *Func1[K, V]) Stats() (hits, misses int64) {
	return m.hits.Load(), m.misses.Load()
}

// Reset drops all entries. Intended for cache-invalidation endpoints and
// tests; the counters are preserved.
func (m *Func1[K, V]) Reset() {
	m.mu.Lock()
	m.entries = make(map[K]V)
	m.mu.Unlock()
}

// Len returns the number of cached entries.
func (m *Func1[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Value memoizes a zero-argument builder for the process lifetime.
// Concurrent first calls are collapsed with singleflight so an expensive
// build runs at most once even under racing requests.
type Value[V any] struct {
	build func(ctx context.Context) (V, error)
	mu    sync.RWMutex
	ok    bool
	val   V
	group singleflight.Group
}

// NewValue wraps build with process-lifetime memoization.
func NewValue[V any](build func(ctx context.Context) (V, error)) *Value[V] {
	return &Value[V]{build: build}
}

// Get returns the memoized value, building it on first use. A failed build
// caches nothing and is retried on the next call.
func (v *Value[V]) Get(ctx context.Context) (V, error) {
	v.mu.RLock()
	if v.ok {
		val := v.val
		v.mu.RUnlock()
		return val, nil
	}
	v.mu.RUnlock()

	res, err, _ := v.group.Do("build", func() (interface{}, error) {
		v.mu.RLock()
		if v.ok {
			val := v.val
			v.mu.RUnlock()
			return val, nil
		}
		v.mu.RUnlock()

		built, err := v.build(ctx)
		if err != nil {
			return nil, err
		}
		v.mu.Lock()
		v.val = built
		v.ok = true
		v.mu.Unlock()
		return built, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

// Reset drops the memoized value so the next Get rebuilds.
func (v *Value[V]) Reset() {
	v.mu.Lock()
	v.ok = false
	var zero V
	v.val = zero
	v.mu.Unlock()
}

// Built reports whether the value has been built.
func (v *Value[V]) Built() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.ok
}
