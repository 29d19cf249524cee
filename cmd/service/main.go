package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/flight-deals-service/internal/cache"
	"github.com/kjstillabower/flight-deals-service/internal/client"
	"github.com/kjstillabower/flight-deals-service/internal/config"
	"github.com/kjstillabower/flight-deals-service/internal/health"
	httphandler "github.com/kjstillabower/flight-deals-service/internal/http"
	"github.com/kjstillabower/flight-deals-service/internal/observability"
	"github.com/kjstillabower/flight-deals-service/internal/service"
	"github.com/kjstillabower/flight-deals-service/internal/traffic"
)

const (
	inFlightCheckInterval = 100 * time.Millisecond
	initialWarmTimeout    = 30 * time.Second
)

// cacheBackend is the configured cache plus its optional health probe and closer.
type cacheBackend struct {
	cache  cache.Cache
	ping   func(ctx context.Context) error
	closer io.Closer
}

func newCacheBackend(cfg *config.Config) (cacheBackend, error) {
	switch cfg.CacheBackend {
	case config.BackendMemcached:
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			return cacheBackend{}, fmt.Errorf("memcached cache: %w", err)
		}
		return cacheBackend{cache: mc, ping: mc.Ping, closer: mc}, nil
	case config.BackendRedis:
		rc := cache.NewRedisCache(cache.RedisOptions{
			Addr:        cfg.RedisAddr,
			Password:    cfg.RedisPassword,
			DB:          cfg.RedisDB,
			DialTimeout: cfg.RedisTimeout,
		})
		return cacheBackend{cache: rc, ping: rc.Ping, closer: rc}, nil
	case config.BackendInMemory:
		return cacheBackend{cache: cache.NewInMemoryCache()}, nil
	}
	return cacheBackend{}, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
}

// serverWriteTimeout leaves headroom past the /deals deadline. No deadline means no write timeout.
func serverWriteTimeout(requestTimeout time.Duration) time.Duration {
	if requestTimeout <= 0 {
		return 0
	}
	return requestTimeout + 5*time.Second
}

func repositoryOptions(cfg *config.Config, logger *zap.Logger) []service.Option {
	opts := []service.Option{
		service.WithTTL(cfg.CacheTTL),
		service.WithLogger(logger),
	}
	if cfg.CoalesceEnabled {
		opts = append(opts, service.WithCoalescing(cfg.CoalesceTimeout))
	}
	return opts
}

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	priceClient, err := client.NewTravelpayoutsClient(cfg.APIKey, cfg.APIURL, &http.Client{Timeout: cfg.APITimeout})
	if err != nil {
		logger.Fatal("price client", zap.Error(err), zap.String("hint", "set TRAVELPAYOUTS_API_KEY or config/secrets.yaml travelpayouts_api_key"))
	}

	backend, err := newCacheBackend(cfg)
	if err != nil {
		logger.Fatal("cache", zap.Error(err))
	}
	logger.Info("cache backend", zap.String("backend", cfg.CacheBackend), zap.Duration("ttl", cfg.CacheTTL))

	repo := service.NewDealsRepository(priceClient, backend.cache, repositoryOptions(cfg, logger)...)

	tracker := traffic.NewTracker(nil)
	monitor := health.NewMonitor(tracker, health.Thresholds{
		OverloadWindow:       cfg.OverloadWindow,
		OverloadThresholdPct: cfg.OverloadThresholdPct,
		RateLimitRPS:         cfg.RateLimitRPS,
		DegradedWindow:       cfg.DegradedWindow,
		DegradedErrorPct:     cfg.DegradedErrorPct,
	})

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(repo, tracker, monitor, httphandler.HandlerConfig{
		DefaultOrigin:   cfg.DefaultOrigin,
		DefaultCurrency: cfg.DefaultCurrency,
		CachePing:       backend.ping,
	}, logger)

	observability.RegisterRateLimitGauges(cfg.OverloadWindow, tracker)
	if len(cfg.TrackedOrigins) > 0 {
		observability.SetTrackedOrigins(cfg.TrackedOrigins)
	}

	appCtx, cancelApp := context.WithCancel(context.Background())
	defer cancelApp()

	if cfg.WarmEnabled && len(cfg.WarmRoutes) > 0 {
		warmer := cache.NewCacheWarmer(repo, logger)
		warmCtx, warmCancel := context.WithTimeout(appCtx, initialWarmTimeout)
		if err := warmer.Warm(warmCtx, cfg.WarmRoutes); err != nil {
			logger.Warn("cache warming failed", zap.Error(err))
		}
		warmCancel()
		if cfg.WarmInterval > 0 {
			go func() {
				if err := warmer.WarmPeriodic(appCtx, cfg.WarmRoutes, cfg.WarmInterval); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("periodic cache warming stopped", zap.Error(err))
				}
			}()
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      httphandler.NewRouter(handler, limiter, cfg.RequestTimeout),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: serverWriteTimeout(cfg.RequestTimeout),
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-sigCtx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	monitor.SetShuttingDown(true)
	cancelApp()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	if err := httphandler.WaitForInFlight(shutdownCtx, inFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger, backend.closer); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
