package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kjstillabower/flight-deals-service/internal/models"
)

// inFlightFetch is one provider fetch that several callers may wait on.
type inFlightFetch struct {
	done    chan struct{} // closed once flights/err are set
	flights []models.Flight
	err     error
}

// requestCoalescer collapses concurrent misses for the same cache key into one fetch.
type requestCoalescer struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightFetch
	timeout  time.Duration
}

func newRequestCoalescer(timeout time.Duration) *requestCoalescer {
	return &requestCoalescer{
		inFlight: make(map[string]*inFlightFetch),
		timeout:  timeout,
	}
}

// GetOrDo runs fn for key unless a fetch for key is already running, in which case it
// waits for that result. shared reports whether the result came from another caller's fetch.
//
// fn receives a context detached from the starting caller's cancellation but bounded by
// the coalescer timeout. Every caller stops waiting on its own ctx or the same timeout.
func (rc *requestCoalescer) GetOrDo(ctx context.Context, key string, fn func(context.Context) ([]models.Flight, error)) (flights []models.Flight, shared bool, err error) {
	rc.mu.Lock()
	f, exists := rc.inFlight[key]
	if !exists {
		f = &inFlightFetch{done: make(chan struct{})}
		rc.inFlight[key] = f
	}
	rc.mu.Unlock()

	if !exists {
		go rc.run(context.WithoutCancel(ctx), key, f, fn)
	}

	waitCtx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()
	select {
	case <-f.done:
		return f.flights, exists, f.err
	case <-waitCtx.Done():
		return nil, exists, waitCtx.Err()
	}
}

func (rc *requestCoalescer) run(ctx context.Context, key string, f *inFlightFetch, fn func(context.Context) ([]models.Flight, error)) {
	ctx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()
	defer func() {
		if p := recover(); p != nil {
			f.flights, f.err = nil, fmt.Errorf("coalesced fetch for %s panicked: %v", key, p)
		}
		rc.mu.Lock()
		delete(rc.inFlight, key)
		rc.mu.Unlock()
		close(f.done)
	}()
	f.flights, f.err = fn(ctx)
}
