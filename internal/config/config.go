package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/flight-deals-service/internal/models"
	"github.com/kjstillabower/flight-deals-service/internal/validation"
)

// Cache backend names accepted by cache.backend / CACHE_BACKEND.
const (
	BackendInMemory  = "in_memory"
	BackendMemcached = "memcached"
	BackendRedis     = "redis"
)

// Config holds service configuration loaded from YAML, .env and the environment.
type Config struct {
	ServerPort string

	// APIKey may be empty; the price client then reports ErrNotConfigured.
	APIKey     string
	APIURL     string
	APITimeout time.Duration // 0 = no client-level deadline

	RequestTimeout time.Duration // 0 = no per-request deadline on /deals
	CacheTTL       time.Duration
	CacheBackend   string

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTimeout  time.Duration

	CoalesceEnabled bool
	CoalesceTimeout time.Duration

	WarmEnabled  bool
	WarmInterval time.Duration
	WarmRoutes   []models.Query

	RateLimitRPS   int
	RateLimitBurst int

	ShutdownTimeout time.Duration

	OverloadWindow       time.Duration
	OverloadThresholdPct int
	DegradedWindow       time.Duration
	DegradedErrorPct     int

	DefaultOrigin   string
	DefaultCurrency string

	TrackedOrigins []string
}

type routeConfig struct {
	Origin      string `yaml:"origin"`
	Destination string `yaml:"destination"`
	Currency    string `yaml:"currency"`
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Travelpayouts struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"travelpayouts"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Timeout  string `yaml:"timeout"`
		} `yaml:"redis"`
		Coalesce struct {
			Enabled bool   `yaml:"enabled"`
			Timeout string `yaml:"timeout"`
		} `yaml:"coalesce"`
		Warm struct {
			Enabled  bool          `yaml:"enabled"`
			Interval string        `yaml:"interval"`
			Routes   []routeConfig `yaml:"routes"`
		} `yaml:"warm"`
	} `yaml:"cache"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		OverloadWindow       string `yaml:"overload_window"`
		OverloadThresholdPct int    `yaml:"overload_threshold_pct"`
		DegradedWindow       string `yaml:"degraded_window"`
		DegradedErrorPct     int    `yaml:"degraded_error_pct"`
	} `yaml:"lifecycle"`

	Defaults struct {
		Origin   string `yaml:"origin"`
		Currency string `yaml:"currency"`
	} `yaml:"defaults"`

	Metrics struct {
		TrackedOrigins []string `yaml:"tracked_origins"`
	} `yaml:"metrics"`
}

type secretsFile struct {
	TravelpayoutsAPIKey string `yaml:"travelpayouts_api_key"`
	RedisPassword       string `yaml:"redis_password"`
}

// Load reads configuration relative to the working directory. See LoadDir.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadDir(cwd)
}

// LoadDir loads dir/.env (optional) into the environment, then reads
// dir/config/{ENV_NAME}.yaml (default dev) and dir/config/secrets.yaml (optional).
// Environment variables override file values.
func LoadDir(dir string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	configPath := filepath.Join(dir, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	sec, err := readSecrets(filepath.Join(dir, "config", "secrets.yaml"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	cfg.ServerPort = firstNonEmpty(fc.Server.Port, "8080")

	cfg.APIKey = firstNonEmpty(os.Getenv("TRAVELPAYOUTS_API_KEY"), sec.TravelpayoutsAPIKey)
	cfg.APIURL = firstNonEmpty(os.Getenv("TRAVELPAYOUTS_API_URL"), fc.Travelpayouts.URL, "https://api.travelpayouts.com")
	cfg.APITimeout = parseDurationOrZero(fc.Travelpayouts.Timeout, 0)
	cfg.RequestTimeout = parseDurationOrZero(fc.Request.Timeout, 0)

	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 60*time.Second)
	cfg.CacheBackend = strings.ToLower(firstNonEmpty(os.Getenv("CACHE_BACKEND"), fc.Cache.Backend, BackendInMemory))

	cfg.MemcachedAddrs = firstNonEmpty(os.Getenv("MEMCACHED_ADDRS"), fc.Cache.Memcached.Addrs, "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.RedisAddr = firstNonEmpty(os.Getenv("REDIS_ADDR"), fc.Cache.Redis.Addr, "localhost:6379")
	cfg.RedisPassword = firstNonEmpty(sec.RedisPassword, fc.Cache.Redis.Password)
	cfg.RedisDB = fc.Cache.Redis.DB
	cfg.RedisTimeout = parseDuration(fc.Cache.Redis.Timeout, 500*time.Millisecond)

	cfg.CoalesceEnabled = fc.Cache.Coalesce.Enabled
	cfg.CoalesceTimeout = parseDuration(fc.Cache.Coalesce.Timeout, 5*time.Second)

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 50
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 100
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.OverloadWindow = parseDuration(fc.Lifecycle.OverloadWindow, 60*time.Second)
	cfg.OverloadThresholdPct = fc.Lifecycle.OverloadThresholdPct
	if cfg.OverloadThresholdPct <= 0 {
		cfg.OverloadThresholdPct = 80
	}
	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Lifecycle.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 20
	}

	cfg.DefaultOrigin = firstNonEmpty(fc.Defaults.Origin, "MOW")
	cfg.DefaultCurrency = firstNonEmpty(fc.Defaults.Currency, "RUB")
	cfg.TrackedOrigins = fc.Metrics.TrackedOrigins

	cfg.WarmEnabled = fc.Cache.Warm.Enabled
	cfg.WarmInterval = parseDurationOrZero(fc.Cache.Warm.Interval, 0)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	routes, err := parseRoutes(fc.Cache.Warm.Routes, cfg.DefaultCurrency)
	if err != nil {
		return nil, err
	}
	cfg.WarmRoutes = routes
	return cfg, nil
}

func readSecrets(path string) (secretsFile, error) {
	var sec secretsFile
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return sec, nil
		}
		return sec, fmt.Errorf("read secrets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return sec, fmt.Errorf("parse secrets file: %w", err)
	}
	return sec, nil
}

// parseRoutes validates warm routes. Currency falls back to defaultCurrency.
func parseRoutes(in []routeConfig, defaultCurrency string) ([]models.Query, error) {
	routes := make([]models.Query, 0, len(in))
	for i, rc := range in {
		origin, err := validation.ValidateIATACode(rc.Origin)
		if err != nil {
			return nil, fmt.Errorf("cache.warm.routes[%d].origin: %w", i, err)
		}
		q := models.Query{Origin: origin, Currency: defaultCurrency}
		if strings.TrimSpace(rc.Destination) != "" {
			if q.Destination, err = validation.ValidateIATACode(rc.Destination); err != nil {
				return nil, fmt.Errorf("cache.warm.routes[%d].destination: %w", i, err)
			}
		}
		if strings.TrimSpace(rc.Currency) != "" {
			if q.Currency, err = validation.ValidateCurrency(rc.Currency); err != nil {
				return nil, fmt.Errorf("cache.warm.routes[%d].currency: %w", i, err)
			}
		}
		routes = append(routes, q)
	}
	return routes, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Zero and negative durations are returned as-is.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate checks cross-field constraints. When both deadlines are set, RequestTimeout is
// raised above APITimeout so the provider deadline fires first.
func validate(cfg *Config) error {
	if cfg.APITimeout < 0 {
		return fmt.Errorf("travelpayouts.timeout must not be negative")
	}
	if cfg.RequestTimeout < 0 {
		return fmt.Errorf("request.timeout must not be negative")
	}
	if cfg.APITimeout > 0 && cfg.RequestTimeout > 0 && cfg.RequestTimeout <= cfg.APITimeout {
		cfg.RequestTimeout = cfg.APITimeout + time.Second
	}
	switch cfg.CacheBackend {
	case BackendInMemory, BackendMemcached, BackendRedis:
	default:
		return fmt.Errorf("cache.backend must be in_memory, memcached or redis, got %q", cfg.CacheBackend)
	}
	if _, err := validation.ValidateIATACode(cfg.DefaultOrigin); err != nil {
		return fmt.Errorf("defaults.origin: %w", err)
	}
	if _, err := validation.ValidateCurrency(cfg.DefaultCurrency); err != nil {
		return fmt.Errorf("defaults.currency: %w", err)
	}
	cfg.DefaultOrigin = strings.ToUpper(cfg.DefaultOrigin)
	cfg.DefaultCurrency = strings.ToUpper(cfg.DefaultCurrency)
	if cfg.WarmEnabled && cfg.WarmInterval < 0 {
		return fmt.Errorf("cache.warm.interval must not be negative")
	}
	return nil
}
