// Package cache is the typed key/value substrate over redis. Operations
// never raise to callers: failures are logged and a conservative default is
// returned (absent / false / 0), so a disconnected cache degrades the system
// to document-store reads.
package cache

import (
	"context"
	"strings"
	"time"

	"github.com/Laisky/zap"
	"github.com/go-redis/redis/v8"

	"github.com/leafdriven/mediadex/common/logger"
)

// scanChunk bounds how many keys a pattern scan touches per round.
const scanChunk = 100

type Cache struct {
	rdb redis.Cmdable
}

func New(rdb redis.Cmdable) *Cache {
	return &Cache{rdb: rdb}
}

// Enabled reports whether a backing store is attached.
func (c *Cache) Enabled() bool { return c != nil && c.rdb != nil }

// Get returns the decoded value for key, or absent.
func (c *Cache) Get(ctx context.Context, key string) (any, bool) {
	if !c.Enabled() {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return Decode(raw)
}

// GetInto decodes the value for key into dst; reports whether it was found.
func (c *Cache) GetInto(ctx context.Context, key string, dst any) bool {
	if !c.Enabled() {
		return false
	}
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	return DecodeInto(raw, dst)
}

// Set stores value under key; ttl of zero means no expiry.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	if !c.Enabled() {
		return false
	}
	raw, err := Encode(value)
	if err != nil {
		logger.Logger.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := c.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		logger.Logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// Delete removes key.
func (c *Cache) Delete(ctx context.Context, key string) bool {
	if !c.Enabled() {
		return false
	}
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		logger.Logger.Warn("cache delete failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// DeletePattern enumerates keys matching glob in chunks and deletes each
// chunk. Failures in a chunk are counted but do not abort the scan. Returns
// the number of keys deleted.
func (c *Cache) DeletePattern(ctx context.Context, glob string) int {
	if !c.Enabled() {
		return 0
	}
	var deleted, failed int
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, glob, scanChunk).Result()
		if err != nil {
			logger.Logger.Warn("cache scan failed", zap.String("pattern", glob), zap.Error(err))
			break
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				failed += len(keys)
			} else {
				deleted += len(keys)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	if failed > 0 {
		logger.Logger.Warn("cache pattern delete had failures",
			zap.String("pattern", glob),
			zap.Int("deleted", deleted),
			zap.Int("failed", failed))
	}
	return deleted
}

// MGet returns decoded values for keys; missing or corrupt entries are nil.
func (c *Cache) MGet(ctx context.Context, keys ...string) []any {
	out := make([]any, len(keys))
	if !c.Enabled() || len(keys) == 0 {
		return out
	}
	raws, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		logger.Logger.Warn("cache mget failed", zap.Int("keys", len(keys)), zap.Error(err))
		return out
	}
	for i, raw := range raws {
		s, ok := raw.(string)
		if !ok {
			continue
		}
		if v, ok := Decode([]byte(s)); ok {
			out[i] = v
		}
	}
	return out
}

// Incr atomically adds n to the integer at key and returns the new value.
func (c *Cache) Incr(ctx context.Context, key string, n int64) int64 {
	if !c.Enabled() {
		return 0
	}
	v, err := c.rdb.IncrBy(ctx, key, n).Result()
	if err != nil {
		logger.Logger.Warn("cache incr failed", zap.String("key", key), zap.Error(err))
		return 0
	}
	return v
}

// Expire sets a TTL on an existing key.
func (c *Cache) Expire(ctx context.Context, key string, ttl time.Duration) bool {
	if !c.Enabled() {
		return false
	}
	ok, err := c.rdb.Expire(ctx, key, ttl).Result()
	if err != nil {
		logger.Logger.Warn("cache expire failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return ok
}

// TTL returns the remaining TTL in seconds, or -1 when the key has none.
func (c *Cache) TTL(ctx context.Context, key string) int64 {
	if !c.Enabled() {
		return -1
	}
	d, err := c.rdb.TTL(ctx, key).Result()
	if err != nil || d < 0 {
		return -1
	}
	return int64(d.Seconds())
}

// ScanKeys enumerates up to max keys matching glob, in chunks.
func (c *Cache) ScanKeys(ctx context.Context, glob string, max int) []string {
	if !c.Enabled() || max <= 0 {
		return nil
	}
	var keys []string
	var cursor uint64
	for {
		chunk, next, err := c.rdb.Scan(ctx, cursor, glob, scanChunk).Result()
		if err != nil {
			logger.Logger.Warn("cache scan failed", zap.String("pattern", glob), zap.Error(err))
			break
		}
		keys = append(keys, chunk...)
		cursor = next
		if cursor == 0 || len(keys) >= max {
			break
		}
	}
	if len(keys) > max {
		keys = keys[:max]
	}
	return keys
}

// Stats summarizes the live keyspace grouped by key prefix (the segment
// before the first colon). Intended for the operator surface, not hot paths.
type Stats struct {
	Keys     int            `json:"keys"`
	ByPrefix map[string]int `json:"by_prefix"`
}

func (c *Cache) Stats(ctx context.Context) Stats {
	s := Stats{ByPrefix: map[string]int{}}
	if !c.Enabled() {
		return s
	}
	var cursor uint64
	for {
		chunk, next, err := c.rdb.Scan(ctx, cursor, "*", scanChunk).Result()
		if err != nil {
			logger.Logger.Warn("cache scan failed", zap.String("pattern", "*"), zap.Error(err))
			break
		}
		for _, k := range chunk {
			s.Keys++
			prefix := k
			if i := strings.IndexByte(k, ':'); i > 0 {
				prefix = k[:i]
			}
			s.ByPrefix[prefix]++
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return s
}

// SetNX stores value only when key is absent; used for throttle flags.
func (c *Cache) SetNX(ctx context.Context, key string, value any, ttl time.Duration) bool {
	if !c.Enabled() {
		return false
	}
	raw, err := Encode(value)
	if err != nil {
		return false
	}
	ok, err := c.rdb.SetNX(ctx, key, raw, ttl).Result()
	if err != nil {
		logger.Logger.Warn("cache setnx failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return ok
}
