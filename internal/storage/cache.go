package storage

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/taxi-dashboard/internal/models"
)

// TopZonesCache keeps top-zone rankings per side for a limited time.
type TopZonesCache interface {
	Get(ctx context.Context, side models.Side) ([]models.TopZone, bool)
	Set(ctx context.Context, side models.Side, zones []models.TopZone)
	Invalidate(ctx context.Context)
}

// MemoryCache is an in-process TTL cache.
type MemoryCache struct {
	mu    sync.RWMutex
	store map[models.Side]cacheEntry
	ttl   time.Duration
	now   func() time.Time
}

type cacheEntry struct {
	zones []models.TopZone
	ts    time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{store: make(map[models.Side]cacheEntry), ttl: ttl, now: time.Now}
}

func (c *MemoryCache) Get(ctx context.Context, side models.Side) ([]models.TopZone, bool) {
	c.mu.RLock()
	e, ok := c.store[side]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, side)
		c.mu.Unlock()
		return nil, false
	}
	return append([]models.TopZone(nil), e.zones...), true
}

func (c *MemoryCache) Set(ctx context.Context, side models.Side, zones []models.TopZone) {
	c.mu.Lock()
	c.store[side] = cacheEntry{zones: append([]models.TopZone(nil), zones...), ts: c.now()}
	c.mu.Unlock()
}

func (c *MemoryCache) Invalidate(ctx context.Context) {
	c.mu.Lock()
	c.store = make(map[models.Side]cacheEntry)
	c.mu.Unlock()
}

// RedisCache stores rankings as JSON strings with a TTL. Redis errors are
// treated as misses so the store stays the source of truth.
type RedisCache struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisCache(addr, password string, ttl time.Duration) (*RedisCache, *redis.Client) {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return NewRedisCacheFromClient(c, ttl), c
}

func NewRedisCacheFromClient(client redis.Cmdable, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: "taxi:top-zones:", ttl: ttl}
}

func (r *RedisCache) Get(ctx context.Context, side models.Side) ([]models.TopZone, bool) {
	raw, err := r.client.Get(ctx, r.key(side)).Result()
	if err != nil {
		return nil, false
	}
	var zones []models.TopZone
	if err := json.Unmarshal([]byte(raw), &zones); err != nil {
		return nil, false
	}
	return zones, true
}

func (r *RedisCache) Set(ctx context.Context, side models.Side, zones []models.TopZone) {
	b, err := json.Marshal(zones)
	if err != nil {
		return
	}
	_ = r.client.Set(ctx, r.key(side), b, r.ttl).Err()
}

func (r *RedisCache) Invalidate(ctx context.Context) {
	_ = r.client.Del(ctx, r.key(models.SidePickup), r.key(models.SideDropoff)).Err()
}

func (r *RedisCache) key(side models.Side) string { return r.prefix + string(side) }
