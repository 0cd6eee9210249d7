// Package cache provides a read-through cache facade over Redis for
// expensive intermediate results (embeddings, assembled context).
//
// Every cache backend error is caught and logged at warning level;
// callers see it as a plain miss. The orchestrator must stay correct
// with the cache entirely disabled, only slower.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"bidforge/internal/common/logger"
	"bidforge/internal/common/metrics"

	"github.com/redis/go-redis/v9"
)

const (
	// EmbeddingTTL: embeddings are content-addressed and expensive, safe
	// to keep long.
	EmbeddingTTL = time.Hour
	// ContextTTL: assembled context is cheaper to rebuild and goes stale
	// as underlying documents change.
	ContextTTL = 30 * time.Minute
)

// Facade wraps a Redis client with miss-on-failure semantics. A nil
// Facade or a Facade with a nil client behaves as an always-miss cache.
type Facade struct {
	client *redis.Client
	logger logger.Logger
}

func New(client *redis.Client, log logger.Logger) *Facade {
	return &Facade{
		client: client,
		logger: log.WithFields(map[string]interface{}{"component": "cache"}),
	}
}

// Get returns the cached value and true on a hit. Errors and missing
// keys both report a miss.
func (f *Facade) Get(ctx context.Context, key string) (string, bool) {
	if f == nil || f.client == nil {
		return "", false
	}

	val, err := f.client.Get(ctx, key).Result()
	if err == redis.Nil {
		metrics.CacheOperations.WithLabelValues("get", "miss").Inc()
		return "", false
	}
	if err != nil {
		metrics.CacheOperations.WithLabelValues("get", "error").Inc()
		f.logger.Warn("cache get failed, treating as miss", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return "", false
	}

	metrics.CacheOperations.WithLabelValues("get", "hit").Inc()
	return val, true
}

// Set stores a value with the given TTL. Failures are logged and
// swallowed.
func (f *Facade) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if f == nil || f.client == nil {
		return
	}

	if err := f.client.Set(ctx, key, value, ttl).Err(); err != nil {
		metrics.CacheOperations.WithLabelValues("set", "error").Inc()
		f.logger.Warn("cache set failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return
	}
	metrics.CacheOperations.WithLabelValues("set", "ok").Inc()
}

// GetJSON unmarshals a cached JSON value into out, reporting a hit.
// Corrupt entries count as misses.
func (f *Facade) GetJSON(ctx context.Context, key string, out interface{}) bool {
	raw, ok := f.Get(ctx, key)
	if !ok {
		return false
	}

	if err := json.Unmarshal([]byte(raw), out); err != nil {
		f.logger.Warn("cache entry not valid JSON, treating as miss", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return false
	}
	return true
}

// SetJSON marshals v and stores it with the given TTL.
func (f *Facade) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) {
	if f == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		f.logger.Warn("cache value not serializable", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return
	}
	f.Set(ctx, key, string(data), ttl)
}

// InvalidatePattern removes every key matching a glob pattern, used to
// drop all cached bundles for one project. Failures are logged and
// swallowed.
func (f *Facade) InvalidatePattern(ctx context.Context, pattern string) {
	if f == nil || f.client == nil {
		return
	}

	iter := f.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		metrics.CacheOperations.WithLabelValues("scan", "error").Inc()
		f.logger.Warn("cache scan failed", map[string]interface{}{
			"pattern": pattern,
			"error":   err.Error(),
		})
		return
	}
	f.Invalidate(ctx, keys...)
}

// Invalidate removes the given keys. Failures are logged and swallowed.
func (f *Facade) Invalidate(ctx context.Context, keys ...string) {
	if f == nil || f.client == nil || len(keys) == 0 {
		return
	}

	if err := f.client.Del(ctx, keys...).Err(); err != nil {
		metrics.CacheOperations.WithLabelValues("del", "error").Inc()
		f.logger.Warn("cache invalidation failed", map[string]interface{}{
			"keys":  keys,
			"error": err.Error(),
		})
		return
	}
	metrics.CacheOperations.WithLabelValues("del", "ok").Inc()
}
