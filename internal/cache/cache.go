package cache

import "sync"

// Memo is a generic thread-safe memo table. Entries live until Clear.
//
// Memo must not be copied after creation (has mutex).
type Memo[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]V
	hits    uint64
	misses  uint64
}

// New creates an empty memo table.
func New[K comparable, V any]() *Memo[K, V] {
	return &Memo[K, V]{entries: make(map[K]V)}
}

// Get retrieves a value without creating it.
// Returns (value, true) if found, (zero, false) otherwise. Only
// GetOrCreate counts towards Stats.
func (m *Memo[K, V]) Get(key K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.entries[key]
	return v, ok
}

// GetOrCreate returns the stored value for key or builds it with create.
// create runs under the lock, so it is called at most once per key even
// with concurrent callers; it must not call back into the memo. When create
// fails, nothing is stored and the error is returned. hit reports whether
// the value was already present.
func (m *Memo[K, V]) GetOrCreate(key K, create func() (V, error)) (value V, hit bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := m.entries[key]; ok {
		m.hits++
		return v, true, nil
	}
	m.misses++

	v, err := create()
	if err != nil {
		var zero V
		return zero, false, err
	}
	m.entries[key] = v
	return v, false, nil
}

// Len returns the number of entries.
func (m *Memo[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.entries)
}

// Range calls fn for every entry until fn returns false. The memo is locked
// during the iteration.
func (m *Memo[K, V]) Range(fn func(K, V) bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, v := range m.entries {
		if !fn(k, v) {
			return
		}
	}
}

// Clear removes all entries and resets the statistics. It returns the
// removed values so the caller can release them.
func (m *Memo[K, V]) Clear() []V {
	m.mu.Lock()
	defer m.mu.Unlock()

	values := make([]V, 0, len(m.entries))
	for _, v := range m.entries {
		values = append(values, v)
	}
	m.entries = make(map[K]V)
	m.hits, m.misses = 0, 0
	return values
}

// Stats returns memo statistics.
func (m *Memo[K, V]) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{Len: len(m.entries), Hits: m.hits, Misses: m.misses}
	if total := m.hits + m.misses; total > 0 {
		s.HitRate = float64(m.hits) / float64(total)
	}
	return s
}

// Stats contains memo statistics.
type Stats struct {
	// Len is the current number of entries.
	Len int
	// Hits is the number of lookups that found an entry.
	Hits uint64
	// Misses is the number of lookups that did not.
	Misses uint64
	// HitRate is Hits / (Hits + Misses), 0.0 to 1.0.
	HitRate float64
}
