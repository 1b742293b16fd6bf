// Package cache wraps retrieval in a Redis-backed result cache keyed by
// (strategy, query, k), with singleflight suppression of duplicate
// concurrent computations.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/searchlab/adaptive-retrieval/internal/retriever"
	"github.com/searchlab/adaptive-retrieval/pkg/config"
	pkgredis "github.com/searchlab/adaptive-retrieval/pkg/redis"
)

const keyPrefix = "retrieval:"

// ResultCache caches ranked retrieval results. Retrievers are
// deterministic for a fixed corpus, so cached entries never go stale
// within one corpus version; the TTL bounds memory across versions.
type ResultCache struct {
	client *pkgredis.Client
	cfg    config.RedisConfig
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a ResultCache over an established Redis client.
func New(client *pkgredis.Client, cfg config.RedisConfig) *ResultCache {
	return &ResultCache{
		client: client,
		cfg:    cfg,
		logger: slog.Default().With("component", "result-cache"),
	}
}

// GetOrCompute returns the cached results for (strategy, query, k) or
// computes and stores them. The second return reports a cache hit.
// Concurrent callers for the same key share one computation.
func (c *ResultCache) GetOrCompute(
	ctx context.Context,
	strategy string,
	query string,
	k int,
	computeFn func() []retriever.Result,
) ([]retriever.Result, bool, error) {
	key := c.buildKey(strategy, query, k)

	if results, ok := c.get(ctx, key); ok {
		return results, true, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if results, ok := c.get(ctx, key); ok {
			return results, nil
		}
		results := computeFn()
		c.set(ctx, key, results)
		return results, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.([]retriever.Result), false, nil
}

// Stats returns cumulative hit and miss counts.
func (c *ResultCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *ResultCache) get(ctx context.Context, key string) ([]retriever.Result, bool) {
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	var results []retriever.Result
	if err := json.Unmarshal([]byte(data), &results); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return results, true
}

func (c *ResultCache) set(ctx context.Context, key string, results []retriever.Result) {
	data, err := json.Marshal(results)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.cfg.CacheTTL); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

func (c *ResultCache) buildKey(strategy, query string, k int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s", strategy, k, query)))
	return fmt.Sprintf("%s%s:%x", keyPrefix, strategy, sum[:12])
}
