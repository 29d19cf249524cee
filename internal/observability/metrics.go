package observability

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases, SLO breaches.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Price provider call rate by outcome. Each call is exactly one round trip (no retries).
	PriceAPICallsTotal *prometheus.CounterVec

	// Price provider latency. Watch for: p95 > 2s (upstream degradation).
	PriceAPIDuration *prometheus.HistogramVec

	// Price provider failures by category (see client.CategorizeError).
	PriceAPIErrorsTotal *prometheus.CounterVec

	// Cache hits. Hit rate = hits/(hits+misses).
	CacheHitsTotal *prometheus.CounterVec

	// Cache misses that led to a provider fetch.
	CacheMissesTotal prometheus.Counter

	// Cache backend failures by operation (get/set) and category. A failing backend never fails a request.
	CacheErrorsTotal *prometheus.CounterVec

	// Concurrent misses for one cache key. Watch for: sustained non-zero rate means coalescing should be enabled.
	CacheStampedeDetectedTotal prometheus.Counter

	// Requests that waited on another caller's in-flight fetch.
	RequestCoalescingHitsTotal prometheus.Counter

	// Total deals lookups. Watch for: traffic volume, rate() for QPS.
	DealsQueriesTotal prometheus.Counter

	// Per-origin query count (allow-list; others go to "other").
	DealsQueriesByOriginTotal *prometheus.CounterVec

	// Flights returned to callers after the destination filter.
	DealsReturnedTotal prometheus.Counter

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	// Cache warming runs, failures and duration.
	CacheWarmingTotal           prometheus.Counter
	CacheWarmingErrorsTotal     prometheus.Counter
	CacheWarmingDurationSeconds prometheus.Histogram

	trackedOriginsMu sync.RWMutex
	trackedOrigins   map[string]struct{}

	rateLimitGaugesOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	PriceAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "priceApiCallsTotal",
			Help: "Total number of price provider calls",
		},
		[]string{"status"},
	)
	PriceAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "priceApiDurationSeconds",
			Help:    "Price provider latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	PriceAPIErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "priceApiErrorsTotal",
			Help: "Price provider failures by category",
		},
		[]string{"category"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of cache hits",
		},
		[]string{"cacheType"},
	)
	CacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheMissesTotal",
			Help: "Total number of cache misses (absent or expired entries)",
		},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache backend errors by operation and category",
		},
		[]string{"operation", "category"},
	)
	CacheStampedeDetectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheStampedeDetectedTotal",
			Help: "Cache misses observed while another miss for the same key was in progress",
		},
	)
	RequestCoalescingHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "requestCoalescingHitsTotal",
			Help: "Requests served by waiting on an in-flight fetch for the same key",
		},
	)
	DealsQueriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dealsQueriesTotal",
			Help: "Total number of deals lookups",
		},
	)
	DealsQueriesByOriginTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealsQueriesByOriginTotal",
			Help: "Deals queries by origin (allow-list; others use origin=other)",
		},
		[]string{"origin"},
	)
	DealsReturnedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dealsReturnedTotal",
			Help: "Total number of flights returned to callers",
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Total number of cache warming runs",
		},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingErrorsTotal",
			Help: "Cache warming runs with at least one failed route",
		},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Cache warming run duration in seconds",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30},
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		PriceAPICallsTotal, PriceAPIDuration, PriceAPIErrorsTotal,
		CacheHitsTotal, CacheMissesTotal, CacheErrorsTotal, CacheStampedeDetectedTotal,
		RequestCoalescingHitsTotal,
		DealsQueriesTotal, DealsQueriesByOriginTotal, DealsReturnedTotal,
		RateLimitDeniedTotal,
		CacheWarmingTotal, CacheWarmingErrorsTotal, CacheWarmingDurationSeconds,
	)
}

// WindowCounter reports sliding-window request and denial counts.
type WindowCounter interface {
	RequestCount(window time.Duration) int
	DenialCount(window time.Duration) int
}

// RegisterRateLimitGauges registers load and rejects gauges for the rate-limited path.
// Call from main after config load with the overload window used by health.
func RegisterRateLimitGauges(window time.Duration, counter WindowCounter) {
	rateLimitGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRequestsInWindow",
					Help: "Requests hitting rate-limited path in sliding window; load/capacity planning",
				},
				func() float64 { return float64(counter.RequestCount(window)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in sliding window; are we rejecting requests",
				},
				func() float64 { return float64(counter.DenialCount(window)) },
			),
		)
	})
}

// SetTrackedOrigins sets the allow-list for origin metrics. Non-tracked origins increment "other".
func SetTrackedOrigins(origins []string) {
	trackedOriginsMu.Lock()
	defer trackedOriginsMu.Unlock()
	trackedOrigins = make(map[string]struct{}, len(origins))
	for _, o := range origins {
		trackedOrigins[normalizeOriginForMetrics(o)] = struct{}{}
	}
}

// RecordDealsQuery records a deals query for the given origin.
func RecordDealsQuery(origin string) {
	DealsQueriesTotal.Inc()
	DealsQueriesByOriginTotal.WithLabelValues(MetricOriginLabel(origin)).Inc()
}

// MetricOriginLabel returns the origin label if tracked, otherwise "other".
func MetricOriginLabel(origin string) string {
	o := normalizeOriginForMetrics(origin)
	trackedOriginsMu.RLock()
	_, ok := trackedOrigins[o]
	trackedOriginsMu.RUnlock()
	if ok {
		return o
	}
	return "other"
}

func normalizeOriginForMetrics(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
