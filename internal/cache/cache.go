// Package cache implements the bounded, hit-counter-evicting entity
// cache the security core fronts its persistence reads with (spec §4.3).
// Every operation here runs under the caller's own lock (the security
// core's primary mutex, spec §4.4) — this package holds no lock of its
// own, by design.
package cache

import "sync/atomic"

// Policy selects which entry a Map evicts when it is full.
type Policy int

const (
	// LRU evicts the entry with the smallest hit counter.
	LRU Policy = iota
	// MRU evicts the entry with the largest hit counter.
	MRU
)

// AgeCounter is the cache-wide monotonic counter seeded into every new
// entry and bumped on every hit (spec §3 "EntityCache entry"). Shared
// across the user and device maps of an EntityCache, since spec §4.3
// describes a single cache_age, not one per map.
type AgeCounter struct {
	value atomic.Uint64
}

// Next increments and returns the counter. Monotonic even if called
// concurrently — ordering uniqueness is the only property the spec
// demands of it (spec §9).
func (c *AgeCounter) Next() uint64 {
	return c.value.Add(1)
}

type entry[V any] struct {
	value V
	hits  uint64
}

// Map is a bounded cache from comparable keys to arbitrary values, with
// LRU/MRU eviction driven by hit counters seeded from a shared AgeCounter.
// A capacity of 0 means unbounded (spec §6.4: "0 ⇒ unbounded").
type Map[K comparable, V any] struct {
	capacity int
	policy   Policy
	age      *AgeCounter
	entries  map[K]*entry[V]
}

// NewMap constructs an empty Map. age must be shared with any sibling
// map that needs coherent eviction ordering (spec §4.3's single
// cache_age).
func NewMap[K comparable, V any](capacity int, policy Policy, age *AgeCounter) *Map[K, V] {
	return &Map[K, V]{
		capacity: capacity,
		policy:   policy,
		age:      age,
		entries:  make(map[K]*entry[V]),
	}
}

// Len reports the number of entries currently cached.
func (m *Map[K, V]) Len() int { return len(m.entries) }

// Peek returns the cached value without touching its hit counter —
// used internally by eviction cascades where we must not disturb
// liveness ordering for entries we are about to drop anyway.
func (m *Map[K, V]) Peek(key K) (V, bool) {
	e, ok := m.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Get returns a cached value, bumping its hit counter and the shared
// age counter on a hit (spec §4.3 step 1). A miss returns ok=false and
// touches nothing — the caller is expected to call Insert after loading
// from persistence.
func (m *Map[K, V]) Get(key K) (value V, ok bool) {
	e, found := m.entries[key]
	if !found {
		return value, false
	}
	e.hits = m.age.Next()
	return e.value, true
}

// EvictOne drops the entry selected by the map's policy and returns its
// key. Reports ok=false if the map is empty. Hit counters are drawn from
// the shared AgeCounter, which never hands out the same value twice, so
// no two entries tie.
func (m *Map[K, V]) EvictOne() (key K, ok bool) {
	var (
		bestKey   K
		bestHits  uint64
		bestFound bool
	)

	for k, e := range m.entries {
		switch {
		case !bestFound:
			bestKey, bestHits, bestFound = k, e.hits, true
		case m.policy == LRU && e.hits < bestHits:
			bestKey, bestHits = k, e.hits
		case m.policy == MRU && e.hits > bestHits:
			bestKey, bestHits = k, e.hits
		}
	}

	if !bestFound {
		return key, false
	}

	delete(m.entries, bestKey)
	return bestKey, true
}

// AtCapacity reports whether the map is bounded and full.
func (m *Map[K, V]) AtCapacity() bool {
	return m.capacity > 0 && len(m.entries) >= m.capacity
}

// Insert seeds a fresh entry with the current cache age (spec §4.3 step
// 2), evicting one entry first if the map is already at capacity.
// Returns the evicted key, if any, so callers can cascade coherence
// rules (e.g. evicting a user's cached devices).
func (m *Map[K, V]) Insert(key K, value V) (evicted K, didEvict bool) {
	if m.AtCapacity() {
		evicted, didEvict = m.EvictOne()
	}

	m.entries[key] = &entry[V]{value: value, hits: m.age.Next()}
	return evicted, didEvict
}

// Delete removes a key unconditionally (used for coherence cascades and
// explicit cache clears), reporting whether it was present.
func (m *Map[K, V]) Delete(key K) bool {
	if _, ok := m.entries[key]; !ok {
		return false
	}
	delete(m.entries, key)
	return true
}

// Clear empties the map and returns the keys that were removed, so
// callers can cascade the same coherence rules a single eviction would
// trigger.
func (m *Map[K, V]) Clear() []K {
	keys := make([]K, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	m.entries = make(map[K]*entry[V])
	return keys
}
