package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/flight-deals-service/internal/models"
	"github.com/kjstillabower/flight-deals-service/internal/observability"
)

// DealsFetcher is implemented by the service layer. Fetching through it populates the cache.
// Declared here to avoid a circular dependency on the service package.
type DealsFetcher interface {
	FetchDeals(ctx context.Context, q models.Query) ([]models.Flight, error)
}

// CacheWarmer prefetches deals for a fixed set of routes.
type CacheWarmer struct {
	fetcher DealsFetcher
	logger  *zap.Logger
}

// NewCacheWarmer creates a CacheWarmer that uses the given fetcher and logger.
func NewCacheWarmer(fetcher DealsFetcher, logger *zap.Logger) *CacheWarmer {
	return &CacheWarmer{fetcher: fetcher, logger: logger}
}

// Warm fetches every route concurrently. Returns the joined errors of failed routes.
func (w *CacheWarmer) Warm(ctx context.Context, routes []models.Query) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	if w.logger != nil {
		w.logger.Info("warming cache", zap.Int("routes", len(routes)))
	}
	var wg sync.WaitGroup
	errCh := make(chan error, len(routes))
	for _, route := range routes {
		wg.Add(1)
		go func(q models.Query) {
			defer wg.Done()
			if _, err := w.fetcher.FetchDeals(ctx, q); err != nil {
				errCh <- fmt.Errorf("warm %s: %w", routeLabel(q), err)
			}
		}(route)
	}
	wg.Wait()
	close(errCh)
	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	if w.logger != nil {
		w.logger.Info("cache warming complete", zap.Int("routes", len(routes)), zap.Int("errors", len(errs)), zap.Float64("duration_seconds", duration))
	}
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}

// WarmPeriodic refreshes routes every interval until ctx is done. The first refresh happens
// one interval after the call; run Warm beforehand for an initial fill.
// Set interval above the cache TTL so refreshes reach the provider instead of fresh entries.
func (w *CacheWarmer) WarmPeriodic(ctx context.Context, routes []models.Query, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx, routes); err != nil && w.logger != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}

func routeLabel(q models.Query) string {
	dest := q.Destination
	if dest == "" {
		dest = "*"
	}
	return q.Origin + "-" + dest + "/" + q.Currency
}
