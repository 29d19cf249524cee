package service

import "sync"

// stampedeTracker counts in-progress misses per cache key. A count above 1 means several
// callers are fetching the same key at once.
type stampedeTracker struct {
	mu     sync.Mutex
	active map[string]int
}

func newStampedeTracker() *stampedeTracker {
	return &stampedeTracker{active: make(map[string]int)}
}

// RecordMiss increments the count for key and returns it. Pair with RecordHit once the
// fetch resolves.
func (st *stampedeTracker) RecordMiss(key string) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.active[key]++
	return st.active[key]
}

// RecordHit marks one miss for key as resolved.
func (st *stampedeTracker) RecordHit(key string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	switch n := st.active[key]; {
	case n > 1:
		st.active[key] = n - 1
	case n == 1:
		delete(st.active, key)
	}
}
