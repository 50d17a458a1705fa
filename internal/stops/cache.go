package stops

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"bus-tracker/internal/transit"
)

const (
	keyPrefix  = "bus-tracker:stops:"
	listKey    = keyPrefix + "all"
	lookupKey  = keyPrefix + "key:"
	DefaultTTL = 5 * time.Minute
)

type CacheMetrics interface {
	CacheHit()
	CacheMiss()
}

// Cached fronts a Directory with Redis. Redis failures are logged and fall
// through to the wrapped directory; misses are never cached.
type Cached struct {
	next    Directory
	redis   *redis.Client
	ttl     time.Duration
	metrics CacheMetrics
}

func NewCached(next Directory, rdb *redis.Client, ttl time.Duration, m CacheMetrics) *Cached {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cached{next: next, redis: rdb, ttl: ttl, metrics: m}
}

func (c *Cached) List(ctx context.Context) ([]transit.Stop, error) {
	var all []transit.Stop
	if c.load(ctx, listKey, &all) {
		return all, nil
	}
	all, err := c.next.List(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, listKey, all)
	return all, nil
}

func (c *Cached) Lookup(ctx context.Context, key string) (transit.Stop, error) {
	key = strings.TrimSpace(key)
	k := lookupCacheKey(key)
	var s transit.Stop
	if c.load(ctx, k, &s) {
		return s, nil
	}
	s, err := c.next.Lookup(ctx, key)
	if err != nil {
		return transit.Stop{}, err
	}
	c.store(ctx, k, s)
	return s, nil
}

// lookupCacheKey keeps the key's case; stop ids are case-sensitive.
func lookupCacheKey(key string) string { return lookupKey + key }

func (c *Cached) load(ctx context.Context, key string, out any) bool {
	val, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("stops cache get %s: %v", key, err)
		}
		c.miss()
		return false
	}
	if err := json.Unmarshal(val, out); err != nil {
		log.Printf("stops cache decode %s: %v", key, err)
		c.miss()
		return false
	}
	if c.metrics != nil {
		c.metrics.CacheHit()
	}
	return true
}

func (c *Cached) store(ctx context.Context, key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, b, c.ttl).Err(); err != nil {
		log.Printf("stops cache set %s: %v", key, err)
	}
}

func (c *Cached) miss() {
	if c.metrics != nil {
		c.metrics.CacheMiss()
	}
}

// Invalidate drops every cached entry.
func (c *Cached) Invalidate(ctx context.Context) error {
	iter := c.redis.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.redis.Del(ctx, keys...).Err()
}
