package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/onlinefem/onlinefem/internal/models"
)

const keyPrefix = "numbers:"

// envelope wraps a cached number set with its freshness deadline. Memcached
// itself only evicts; freshness is decided from FreshUntil so that entries
// can outlive their TTL for stale serving.
type envelope struct {
	Data       models.NumberSet `json:"data"`
	FreshUntil time.Time        `json:"freshUntil"`
}

// MemcachedCache implements Cache using memcached.
type MemcachedCache struct {
	client      *memcache.Client
	staleWindow time.Duration
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// configure the client; both use package defaults if zero. staleWindow extends
// item expiry past the TTL so GetStale has something to read.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int, staleWindow time.Duration) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedCache{client: client, staleWindow: staleWindow}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (c *MemcachedCache) key(k string) string {
	return keyPrefix + k
}

// Get implements Cache.Get. Returns false, nil on cache miss or when the
// stored entry is past its freshness deadline; false, err on backend error.
func (c *MemcachedCache) Get(ctx context.Context, key string) (models.NumberSet, bool, error) {
	env, ok, err := c.fetch(ctx, key)
	if err != nil || !ok {
		return models.NumberSet{}, false, err
	}
	if time.Now().After(env.FreshUntil) {
		return models.NumberSet{}, false, nil
	}
	return env.Data, true, nil
}

// GetStale implements Cache.GetStale. Returns entries up to maxStale past
// their freshness deadline; memcached eviction bounds the worst case.
func (c *MemcachedCache) GetStale(ctx context.Context, key string, maxStale time.Duration) (models.NumberSet, bool, error) {
	env, ok, err := c.fetch(ctx, key)
	if err != nil || !ok {
		return models.NumberSet{}, false, err
	}
	if time.Now().After(env.FreshUntil.Add(maxStale)) {
		return models.NumberSet{}, false, nil
	}
	return env.Data, true, nil
}

func (c *MemcachedCache) fetch(ctx context.Context, key string) (envelope, bool, error) {
	if ctx.Err() != nil {
		return envelope{}, false, ctx.Err()
	}
	item, err := c.client.Get(c.key(key))
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return envelope{}, false, nil
		}
		return envelope{}, false, err
	}
	var env envelope
	if err := json.Unmarshal(item.Value, &env); err != nil {
		return envelope{}, false, err
	}
	return env, true, nil
}

// Set implements Cache.Set. The memcached item expiry is the TTL plus the
// stale window, so expired-but-servable entries survive.
func (c *MemcachedCache) Set(ctx context.Context, key string, value models.NumberSet, ttl time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw, err := json.Marshal(envelope{
		Data:       value,
		FreshUntil: time.Now().Add(ttl),
	})
	if err != nil {
		return err
	}
	expSec := int32((ttl + c.staleWindow).Seconds())
	const maxRelativeExp = 30 * 24 * 60 * 60 // 30 days
	if expSec <= 0 || expSec > maxRelativeExp {
		expSec = 3600 // fallback 1h if invalid
	}
	return c.client.Set(&memcache.Item{
		Key:        c.key(key),
		Value:      raw,
		Expiration: expSec,
	})
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
