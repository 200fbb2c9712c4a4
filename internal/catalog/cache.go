package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Cache wraps Redis helpers for JSON payloads. A nil client turns every call
// into a miss.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// GetJSON unmarshals a cached JSON payload into dst and reports whether the key existed.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if c == nil || c.client == nil || key == "" {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON stores v as JSON with the configured TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	if c == nil || c.client == nil || key == "" || c.ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if c == nil || c.client == nil || len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// ProductSource loads product snapshots from the system of record.
type ProductSource interface {
	Snapshots(ctx context.Context, ids []string) (map[string]Product, error)
}

// ProductCache fronts a ProductSource for display and quote reads. Concurrent
// misses for the same id set share one load. Stock decisions must use
// Products.LiveStock instead.
type ProductCache struct {
	cache *Cache
	src   ProductSource
	group singleflight.Group
}

func NewProductCache(cache *Cache, src ProductSource) *ProductCache {
	return &ProductCache{cache: cache, src: src}
}

func productKey(id string) string { return "product:" + id }

func (c *ProductCache) Snapshots(ctx context.Context, ids []string) (map[string]Product, error) {
	out := make(map[string]Product, len(ids))
	var misses []string
	for _, id := range ids {
		if _, done := out[id]; done {
			continue
		}
		var p Product
		hit, err := c.cache.GetJSON(ctx, productKey(id), &p)
		if err == nil && hit {
			out[id] = p
			continue
		}
		misses = append(misses, id)
	}
	if len(misses) == 0 {
		return out, nil
	}

	sort.Strings(misses)
	v, err, _ := c.group.Do(strings.Join(misses, ","), func() (any, error) {
		loaded, err := c.src.Snapshots(ctx, misses)
		if err != nil {
			return nil, err
		}
		for id, p := range loaded {
			_ = c.cache.SetJSON(ctx, productKey(id), p)
		}
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	for id, p := range v.(map[string]Product) {
		out[id] = p
	}
	return out, nil
}

// Invalidate drops cached snapshots, typically after a stock change.
func (c *ProductCache) Invalidate(ctx context.Context, ids ...string) error {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, productKey(id))
	}
	return c.cache.Delete(ctx, keys...)
}
