// Package cache holds ranked search results in Redis, keyed per
// collective so index writes can invalidate exactly the tenant they
// touched. Concurrent identical queries are collapsed via singleflight.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/collectivehq/pagesearch/internal/index/store"
	pkgredis "github.com/collectivehq/pagesearch/pkg/redis"
)

const keyPrefix = "pagesearch:"

// QueryCache caches search results per collective.
type QueryCache struct {
	client *pkgredis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a QueryCache with the given TTL.
func New(client *pkgredis.Client, ttl time.Duration) *QueryCache {
	return &QueryCache{
		client: client,
		ttl:    ttl,
		logger: slog.Default().With("component", "query-cache"),
	}
}

// Get returns the cached results for (collective, query, limit), if any.
func (c *QueryCache) Get(ctx context.Context, collectiveID, query string, limit int) ([]store.DocumentScore, bool) {
	key := BuildKey(collectiveID, query, limit)
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	var results []store.DocumentScore
	if err := json.Unmarshal([]byte(data), &results); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.logger.Debug("cache hit", "collective", collectiveID, "query", query)
	return results, true
}

// Set stores results with the configured TTL.
func (c *QueryCache) Set(ctx context.Context, collectiveID, query string, limit int, results []store.DocumentScore) {
	key := BuildKey(collectiveID, query, limit)
	data, err := json.Marshal(results)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached results or computes and caches them,
// collapsing concurrent identical queries into one computation. The
// second return value reports whether the result came from the cache.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	collectiveID, query string,
	limit int,
	computeFn func() ([]store.DocumentScore, error),
) ([]store.DocumentScore, bool, error) {
	if results, ok := c.Get(ctx, collectiveID, query, limit); ok {
		return results, true, nil
	}
	key := BuildKey(collectiveID, query, limit)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if results, ok := c.Get(ctx, collectiveID, query, limit); ok {
			return results, nil
		}
		results, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, collectiveID, query, limit, results)
		return results, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]store.DocumentScore), false, nil
}

// InvalidateCollective drops every cached query of one collective.
func (c *QueryCache) InvalidateCollective(ctx context.Context, collectiveID string) error {
	pattern := keyPrefix + hashPart(collectiveID) + ":*"
	deleted, err := c.client.FlushByPattern(ctx, pattern)
	if err != nil {
		return fmt.Errorf("invalidating cache for collective %s: %w", collectiveID, err)
	}
	c.logger.Info("cache invalidated", "collective", collectiveID, "keys_deleted", deleted)
	return nil
}

// Stats returns cumulative hit and miss counts.
func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// BuildKey derives the cache key. The collective hash forms its own key
// segment so per-collective invalidation can glob on it.
func BuildKey(collectiveID, query string, limit int) string {
	normalized := normalizeQuery(query)
	queryHash := sha256.Sum256([]byte(fmt.Sprintf("%s:limit=%d", normalized, limit)))
	return fmt.Sprintf("%s%s:%x", keyPrefix, hashPart(collectiveID), queryHash[:16])
}

func hashPart(collectiveID string) string {
	h := sha256.Sum256([]byte(collectiveID))
	return fmt.Sprintf("%x", h[:8])
}

// normalizeQuery lower-cases and space-normalizes the phrase so trivially
// different spellings of the same query share a cache entry.
func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}
