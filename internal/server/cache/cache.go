// Package cache memoises locate results in Redis. Keys embed the index
// version, so an edit makes every older entry unreachable without a flush.
// Versions restart whenever a process rebuilds or restores its index, so keys
// also carry an epoch drawn once per cache; entries written by an earlier
// process are never read and age out through their TTL.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/resilience"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "rindex:locate:"

// Store is the key-value backend; *redis.Client satisfies it.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// LocateCache is nil-safe: a nil cache computes every request.
type LocateCache struct {
	store   Store
	epoch   string
	ttl     time.Duration
	breaker *resilience.Breaker
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(store Store, ttl time.Duration, m *metrics.Metrics) *LocateCache {
	return &LocateCache{
		store: store,
		epoch: uuid.NewString(),
		ttl:   ttl,
		breaker: resilience.NewBreaker("redis-cache", resilience.BreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     10 * time.Second,
		}),
		metrics: m,
		logger:  slog.Default().With("component", "locate-cache"),
	}
}

func (c *LocateCache) get(ctx context.Context, key string) (rindex.QueryResults, bool) {
	var data []byte
	var found bool
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		data, found, err = c.store.Get(ctx, key)
		return err
	})
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
		return rindex.QueryResults{}, false
	}
	if !found {
		return rindex.QueryResults{}, false
	}
	var result rindex.QueryResults
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return rindex.QueryResults{}, false
	}
	return result, true
}

func (c *LocateCache) set(ctx context.Context, key string, result rindex.QueryResults) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Do(ctx, func(ctx context.Context) error {
		return c.store.Set(ctx, key, data, c.ttl)
	})
	if err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for (version, pattern, positions) or
// runs compute once for all concurrent callers and stores its result. A result
// computed against a different version is returned but not stored. The
// boolean reports a cache hit.
func (c *LocateCache) GetOrCompute(
	ctx context.Context,
	version uint64,
	pattern []byte,
	positions bool,
	compute func() (rindex.QueryResults, error),
) (rindex.QueryResults, bool, error) {
	if c == nil {
		r, err := compute()
		return r, false, err
	}
	key := buildKey(c.epoch, version, pattern, positions)
	if r, ok := c.get(ctx, key); ok {
		c.recordHit()
		return r, true, nil
	}
	c.recordMiss()
	val, err, _ := c.group.Do(key, func() (any, error) {
		r, err := compute()
		if err != nil {
			return nil, err
		}
		if r.Version == version {
			c.set(ctx, key, r)
		}
		return r, nil
	})
	if err != nil {
		return rindex.QueryResults{}, false, err
	}
	return val.(rindex.QueryResults), false, nil
}

// Invalidate removes every cached locate result, whatever its epoch.
// Version-scoped keys already keep stale entries from being served; this
// reclaims their memory.
func (c *LocateCache) Invalidate(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var deleted int64
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		deleted, err = c.store.FlushByPattern(ctx, keyPrefix+"*")
		return err
	})
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *LocateCache) Stats() (hits, misses int64) {
	if c == nil {
		return 0, 0
	}
	return c.hits.Load(), c.misses.Load()
}

func (c *LocateCache) recordHit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *LocateCache) recordMiss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// Epoch identifies the keys this cache reads and writes.
func (c *LocateCache) Epoch() string {
	if c == nil {
		return ""
	}
	return c.epoch
}

func buildKey(epoch string, version uint64, pattern []byte, positions bool) string {
	flag := byte(0)
	if positions {
		flag = 1
	}
	h := sha256.New()
	h.Write([]byte{flag})
	h.Write(pattern)
	return fmt.Sprintf("%s%s:%d:%x", keyPrefix, epoch, version, h.Sum(nil)[:16])
}
