package traffic

import (
	"sync"
	"time"
)

// retention bounds how long outcomes are kept; windows longer than this under-count.
const retention = 5 * time.Minute

// Tracker keeps sliding windows of request outcomes for the deals endpoint.
// It backs both the overload check (requests and denials) and the degraded check
// (upstream error rate). The zero value is ready to use with the wall clock.
type Tracker struct {
	mu        sync.Mutex
	now       func() time.Time
	successes []time.Time
	errors    []time.Time
	denials   []time.Time
}

// NewTracker returns a Tracker reading time from now. Nil selects time.Now.
func NewTracker(now func() time.Time) *Tracker {
	return &Tracker{now: now}
}

// RecordSuccess records a deals request answered without an upstream failure.
func (t *Tracker) RecordSuccess() {
	t.record(&t.successes)
}

// RecordError records a deals request that failed upstream (status, transport, decoding, timeout).
func (t *Tracker) RecordError() {
	t.record(&t.errors)
}

// RecordDenied records a rate-limit denial (429).
func (t *Tracker) RecordDenied() {
	t.record(&t.denials)
}

// RequestCount returns successes + errors + denials within the window.
func (t *Tracker) RequestCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.clock().Add(-window)
	return countSince(t.successes, cutoff) + countSince(t.errors, cutoff) + countSince(t.denials, cutoff)
}

// DenialCount returns the number of denials within the window.
func (t *Tracker) DenialCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countSince(t.denials, t.clock().Add(-window))
}

// ErrorRate returns (errors, total) within the window; denials are not part of total.
func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.clock().Add(-window)
	errors = countSince(t.errors, cutoff)
	return errors, errors + countSince(t.successes, cutoff)
}

// Reset clears every recorded outcome.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.successes, t.errors, t.denials = nil, nil, nil
}

func (t *Tracker) record(times *[]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock()
	*times = append(*times, now)
	cutoff := now.Add(-retention)
	t.successes = prune(t.successes, cutoff)
	t.errors = prune(t.errors, cutoff)
	t.denials = prune(t.denials, cutoff)
}

func (t *Tracker) clock() time.Time {
	if t.now == nil {
		return time.Now()
	}
	return t.now()
}

// countSince counts timestamps at or after cutoff. Slices are append-ordered.
func countSince(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

func prune(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && times[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return times
	}
	return append(times[:0], times[i:]...)
}
