package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/flight-deals-service/internal/cache"
	"github.com/kjstillabower/flight-deals-service/internal/client"
	"github.com/kjstillabower/flight-deals-service/internal/mapper"
	"github.com/kjstillabower/flight-deals-service/internal/models"
	"github.com/kjstillabower/flight-deals-service/internal/observability"
)

// DefaultTTL is how long a fetched result is served from cache.
const DefaultTTL = 60 * time.Second

// DealsRepository serves cheap-flight deals through a TTL cache in front of the price
// provider (cache-aside). Provider and decoding failures are returned unchanged; cache
// backend failures degrade to a provider fetch.
type DealsRepository struct {
	client          client.PriceClient
	cache           cache.Cache
	mapper          *mapper.Mapper
	ttl             time.Duration
	logger          *zap.Logger
	stampedeTracker *stampedeTracker
	coalescer       *requestCoalescer // nil unless WithCoalescing
}

// Option configures a DealsRepository.
type Option func(*DealsRepository)

// WithTTL sets how long a fetched result stays fresh. ttl <= 0 keeps DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(r *DealsRepository) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithMapper replaces the default wall-clock mapper.
func WithMapper(m *mapper.Mapper) Option {
	return func(r *DealsRepository) { r.mapper = m }
}

// WithLogger sets the fallback logger used when the request context carries none.
func WithLogger(l *zap.Logger) Option {
	return func(r *DealsRepository) { r.logger = l }
}

// WithCoalescing collapses concurrent misses for one key into a single provider fetch.
// Waiters give up after timeout. Disabled when timeout <= 0.
func WithCoalescing(timeout time.Duration) Option {
	return func(r *DealsRepository) {
		if timeout > 0 {
			r.coalescer = newRequestCoalescer(timeout)
		}
	}
}

// NewDealsRepository creates a repository with DefaultTTL unless WithTTL is given.
func NewDealsRepository(priceClient client.PriceClient, c cache.Cache, opts ...Option) *DealsRepository {
	r := &DealsRepository{
		client:          priceClient,
		cache:           c,
		mapper:          mapper.New(),
		ttl:             DefaultTTL,
		stampedeTracker: newStampedeTracker(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FetchDeals returns flights for q ordered by ascending price.
// Inputs are normalized (upper-cased, blank destination means all destinations), the
// working set comes from cache or one provider round trip, and a non-empty destination
// then filters it. The returned slice is owned by the caller.
func (r *DealsRepository) FetchDeals(ctx context.Context, q models.Query) ([]models.Flight, error) {
	n := normalizeQuery(q)
	key := n.key().String()
	logger := r.loggerFor(ctx)
	observability.RecordDealsQuery(n.origin)

	working, ok := r.lookup(ctx, key, logger)
	if !ok {
		observability.CacheMissesTotal.Inc()
		var err error
		working, err = r.load(ctx, n, key, logger)
		if err != nil {
			return nil, err
		}
	}

	out := filterByDestination(working, n.filter)
	observability.DealsReturnedTotal.Add(float64(len(out)))
	if logger != nil {
		logger.Debug("deals served",
			zap.String("key", key),
			zap.Bool("cached", ok),
			zap.Int("working_set", len(working)),
			zap.Int("returned", len(out)))
	}
	return out, nil
}

// lookup reads the cache. A backend error counts as a miss.
func (r *DealsRepository) lookup(ctx context.Context, key string, logger *zap.Logger) ([]models.Flight, bool) {
	cached, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get", categorizeCacheError(err)).Inc()
		if logger != nil {
			logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if ok {
		observability.CacheHitsTotal.WithLabelValues("deals").Inc()
	}
	return cached, ok
}

func (r *DealsRepository) load(ctx context.Context, n normalizedQuery, key string, logger *zap.Logger) ([]models.Flight, error) {
	if concurrent := r.stampedeTracker.RecordMiss(key); concurrent > 1 {
		observability.CacheStampedeDetectedTotal.Inc()
	}
	defer r.stampedeTracker.RecordHit(key)

	if r.coalescer == nil {
		return r.fetchAndStore(ctx, n, key, logger)
	}

	flights, shared, err := r.coalescer.GetOrDo(ctx, key, func(fetchCtx context.Context) ([]models.Flight, error) {
		return r.fetchAndStore(fetchCtx, n, key, logger)
	})
	if shared && err == nil {
		observability.RequestCoalescingHitsTotal.Inc()
	}
	return flights, err
}

func (r *DealsRepository) fetchAndStore(ctx context.Context, n normalizedQuery, key string, logger *zap.Logger) ([]models.Flight, error) {
	if logger != nil {
		logger.Debug("cache miss, fetching upstream", zap.String("key", key))
	}
	body, err := r.client.FetchCheapPrices(ctx, n.origin, n.destination, n.currency, n.date)
	if err != nil {
		return nil, err
	}
	env, err := mapper.Decode(body)
	if err != nil {
		return nil, err
	}
	if !env.Success && logger != nil {
		logger.Debug("provider reported no deals", zap.String("key", key), zap.String("provider_error", env.Error))
	}
	flights, err := r.mapper.Map(n.origin, n.currency, env)
	if err != nil {
		return nil, err
	}

	if err := r.cache.Set(ctx, key, flights, r.ttl); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", categorizeCacheError(err)).Inc()
		if logger != nil {
			logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		}
	}
	return flights, nil
}

func (r *DealsRepository) loggerFor(ctx context.Context) *zap.Logger {
	if l := observability.LoggerFromContext(ctx); l != nil {
		return l
	}
	return r.logger
}

// filterByDestination copies the flights whose destination equals dest; "" copies all.
func filterByDestination(flights []models.Flight, dest string) []models.Flight {
	out := make([]models.Flight, 0, len(flights))
	for _, f := range flights {
		if dest == "" || f.Destination == dest {
			out = append(out, f)
		}
	}
	return out
}

// categorizeCacheError returns a stable label for cache error metrics (timeout, connection, decode, unknown).
func categorizeCacheError(err error) string {
	if err == nil {
		return "unknown"
	}
	if client.IsTimeout(err) {
		return "timeout"
	}
	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "timeout"):
		return "timeout"
	case strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") || strings.Contains(errStr, "connect"):
		return "connection"
	case strings.Contains(errStr, "decode") || strings.Contains(errStr, "encode"):
		return "codec"
	}
	return "unknown"
}
