package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kjstillabower/flight-deals-service/internal/models"
)

// RedisCache implements Cache on Redis string keys with server-side expiry.
type RedisCache struct {
	client *redis.Client
	now    func() time.Time
}

// RedisOptions configures NewRedisCache.
type RedisOptions struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
}

// NewRedisCache returns a RedisCache. Connection is lazy; use Ping to verify reachability.
func NewRedisCache(opts RedisOptions) *RedisCache {
	if opts.Addr == "" {
		opts.Addr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.DialTimeout,
		WriteTimeout: opts.DialTimeout,
	})
	return &RedisCache{client: rdb, now: time.Now}
}

// Get implements Cache.Get. redis.Nil is a miss, not an error.
func (c *RedisCache) Get(ctx context.Context, key string) ([]models.Flight, bool, error) {
	raw, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	flights, err := decodeEntry(raw)
	if err != nil {
		return nil, false, err
	}
	return flights, true, nil
}

// Set implements Cache.Set.
func (c *RedisCache) Set(ctx context.Context, key string, flights []models.Flight, ttl time.Duration) error {
	raw, err := encodeEntry(flights, c.now())
	if err != nil {
		return err
	}
	// A zero expiration would persist the key forever.
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	return c.client.Set(ctx, keyPrefix+key, raw, ttl).Err()
}

// Ping checks if Redis is reachable. Used for health checks.
func (c *RedisCache) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection pool. Call during shutdown.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
