package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjstillabower/flight-deals-service/internal/models"
)

func TestRequestCoalescer_GetOrDo_ConcurrentRequests(t *testing.T) {
	coalescer := newRequestCoalescer(5 * time.Second)
	var calls atomic.Int32
	release := make(chan struct{})

	fn := func(context.Context) ([]models.Flight, error) {
		calls.Add(1)
		<-release
		return []models.Flight{{Destination: "DXB"}}, nil
	}

	const n = 10
	var wg sync.WaitGroup
	results := make([][]models.Flight, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx], _, errs[idx] = coalescer.GetOrDo(context.Background(), "MOW|-|RUB|", fn)
		}(i)
	}
	// Let every goroutine register before the fetch completes.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := range results {
		if errs[i] != nil {
			t.Errorf("request %d error = %v, want nil", i, errs[i])
		}
		if len(results[i]) != 1 || results[i][0].Destination != "DXB" {
			t.Errorf("request %d result = %+v", i, results[i])
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("fn call count = %d, want 1", got)
	}
}

func TestRequestCoalescer_GetOrDo_ErrorPropagation(t *testing.T) {
	coalescer := newRequestCoalescer(5 * time.Second)
	wantErr := errors.New("api failure")
	release := make(chan struct{})

	fn := func(context.Context) ([]models.Flight, error) {
		<-release
		return nil, wantErr
	}

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, _, errs[idx] = coalescer.GetOrDo(context.Background(), "k", fn)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, wantErr) {
			t.Errorf("request %d error = %v, want %v", i, err, wantErr)
		}
	}
}

func TestRequestCoalescer_GetOrDo_Timeout(t *testing.T) {
	coalescer := newRequestCoalescer(50 * time.Millisecond)
	release := make(chan struct{})
	defer close(release)

	fn := func(context.Context) ([]models.Flight, error) {
		<-release
		return nil, nil
	}

	_, _, err := coalescer.GetOrDo(context.Background(), "k", fn)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("GetOrDo() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestRequestCoalescer_GetOrDo_ContextCanceled(t *testing.T) {
	coalescer := newRequestCoalescer(5 * time.Second)
	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := coalescer.GetOrDo(ctx, "k", func(context.Context) ([]models.Flight, error) {
		<-release
		return nil, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("GetOrDo() error = %v, want context.Canceled", err)
	}
}

func TestRequestCoalescer_GetOrDo_DifferentKeys(t *testing.T) {
	coalescer := newRequestCoalescer(5 * time.Second)
	var calls atomic.Int32

	fn := func(context.Context) ([]models.Flight, error) {
		calls.Add(1)
		return nil, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			_, _, _ = coalescer.GetOrDo(context.Background(), key, fn)
		}("key" + string(rune('a'+i)))
	}
	wg.Wait()

	if got := calls.Load(); got != 5 {
		t.Errorf("fn call count = %d, want 5", got)
	}
}

func TestRequestCoalescer_GetOrDo_SequentialCallsRefetch(t *testing.T) {
	coalescer := newRequestCoalescer(time.Second)
	var calls atomic.Int32
	fn := func(context.Context) ([]models.Flight, error) {
		calls.Add(1)
		return nil, nil
	}
	for i := 0; i < 3; i++ {
		if _, shared, err := coalescer.GetOrDo(context.Background(), "k", fn); err != nil || shared {
			t.Fatalf("call %d: shared=%v err=%v", i, shared, err)
		}
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("fn call count = %d, want 3", got)
	}
}

func TestRequestCoalescer_GetOrDo_DetachedButBounded(t *testing.T) {
	coalescer := newRequestCoalescer(30 * time.Millisecond)
	fetchErr := make(chan error, 1)

	ctx, cancel := context.WithCancel(context.Background())
	_, _, err := coalescer.GetOrDo(ctx, "k", func(fetchCtx context.Context) ([]models.Flight, error) {
		cancel()
		select {
		case <-fetchCtx.Done():
			fetchErr <- fetchCtx.Err()
		case <-time.After(time.Second):
			fetchErr <- nil
		}
		return nil, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("GetOrDo() error = %v, want context.Canceled for the caller", err)
	}

	select {
	case got := <-fetchErr:
		if !errors.Is(got, context.DeadlineExceeded) {
			t.Errorf("fetch context ended with %v, want DeadlineExceeded from the coalescer bound", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("shared fetch was never bounded")
	}
}

func TestRequestCoalescer_GetOrDo_PanicReleasesWaiters(t *testing.T) {
	coalescer := newRequestCoalescer(time.Second)

	_, _, err := coalescer.GetOrDo(context.Background(), "k", func(context.Context) ([]models.Flight, error) {
		panic("provider exploded")
	})
	if err == nil || errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("GetOrDo() error = %v, want the recovered panic", err)
	}

	want := []models.Flight{{Destination: "LED"}}
	got, shared, err := coalescer.GetOrDo(context.Background(), "k", func(context.Context) ([]models.Flight, error) {
		return want, nil
	})
	if err != nil || shared || len(got) != 1 {
		t.Errorf("GetOrDo() after panic = %v, shared=%v, err=%v; want a fresh fetch", got, shared, err)
	}
}
