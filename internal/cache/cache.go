package cache

import (
	"context"
	"sync"
	"time"

	"github.com/onlinefem/onlinefem/internal/models"
)

// Cache stores solver number sets keyed by query name. Get returns only
// fresh entries. GetStale returns an expired entry whose age past expiry is
// within maxStale, for serving while the solver is down. Set stores with TTL.
type Cache interface {
	Get(ctx context.Context, key string) (models.NumberSet, bool, error)
	GetStale(ctx context.Context, key string, maxStale time.Duration) (models.NumberSet, bool, error)
	Set(ctx context.Context, key string, value models.NumberSet, ttl time.Duration) error
}

// InMemoryCache implements Cache with a mutex-guarded map. Expired entries
// are kept around so GetStale can serve them; they are dropped once older
// than the stale bound seen at access time.
type InMemoryCache struct {
	mu   sync.Mutex
	data map[string]cacheEntry
}

type cacheEntry struct {
	value     models.NumberSet
	expiresAt time.Time
}

// NewInMemoryCache creates a new in-memory cache instance.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		data: make(map[string]cacheEntry),
	}
}

// Get retrieves the cached number set for key if present and not expired.
// Returns (data, true, nil) on cache hit, (zero, false, nil) on miss or
// expiration. Expired entries stay in the map for GetStale.
func (c *InMemoryCache) Get(ctx context.Context, key string) (models.NumberSet, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.data[key]
	if !ok {
		return models.NumberSet{}, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		return models.NumberSet{}, false, nil
	}
	return entry.value, true, nil
}

// GetStale retrieves an entry regardless of freshness, as long as it expired
// no more than maxStale ago. Entries past that bound are removed.
func (c *InMemoryCache) GetStale(ctx context.Context, key string, maxStale time.Duration) (models.NumberSet, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.data[key]
	if !ok {
		return models.NumberSet{}, false, nil
	}
	if time.Now().After(entry.expiresAt.Add(maxStale)) {
		delete(c.data, key)
		return models.NumberSet{}, false, nil
	}
	return entry.value, true, nil
}

// Set stores the number set with the specified TTL duration. The entry
// expires after TTL but remains readable through GetStale.
func (c *InMemoryCache) Set(ctx context.Context, key string, value models.NumberSet, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = cacheEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}
