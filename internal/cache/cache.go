package cache

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/kjstillabower/flight-deals-service/internal/models"
)

// Cache defines the interface for deals caching implementations.
// Get returns the flights stored under key if present and fresh; Set stores them with a TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]models.Flight, bool, error)
	Set(ctx context.Context, key string, flights []models.Flight, ttl time.Duration) error
}

// InMemoryCache implements Cache with a map guarded by an RWMutex.
// An entry is fresh while now - timestamp < ttl. Stale entries stay in the map until a
// later Set overwrites them, so size grows with the number of distinct keys queried.
type InMemoryCache struct {
	mu   sync.RWMutex
	data map[string]cacheEntry
	now  func() time.Time
}

// cacheEntry stores an ordered flight sequence and when it was stored.
type cacheEntry struct {
	timestamp time.Time
	ttl       time.Duration
	flights   []models.Flight
}

// NewInMemoryCache creates an in-memory cache using the wall clock.
func NewInMemoryCache() *InMemoryCache {
	return NewInMemoryCacheWithClock(time.Now)
}

// NewInMemoryCacheWithClock creates an in-memory cache that reads time from now.
func NewInMemoryCacheWithClock(now func() time.Time) *InMemoryCache {
	return &InMemoryCache{
		data: make(map[string]cacheEntry),
		now:  now,
	}
}

// Get returns a copy of the flights under key. Returns (nil, false, nil) when the key is
// absent or its entry has outlived its TTL.
func (c *InMemoryCache) Get(ctx context.Context, key string) ([]models.Flight, bool, error) {
	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if c.now().Sub(entry.timestamp) >= entry.ttl {
		return nil, false, nil
	}
	return slices.Clone(entry.flights), true, nil
}

// Set stores a copy of flights under key, replacing any previous entry.
func (c *InMemoryCache) Set(ctx context.Context, key string, flights []models.Flight, ttl time.Duration) error {
	stored := slices.Clone(flights)
	if stored == nil {
		stored = []models.Flight{}
	}
	c.mu.Lock()
	c.data[key] = cacheEntry{
		timestamp: c.now(),
		ttl:       ttl,
		flights:   stored,
	}
	c.mu.Unlock()
	return nil
}

// Len returns the number of entries held, fresh or stale.
func (c *InMemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
