// Package limiter keeps the process inside the chat platform's flood
// thresholds and protects internal resources: per-action sliding counters
// with cooldown, a shared token bucket, per-endpoint circuit breakers, and a
// named semaphore set.
package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/Laisky/zap"
	"github.com/go-redis/redis/v8"

	"github.com/leafdriven/mediadex/common/config"
	"github.com/leafdriven/mediadex/common/logger"
)

// Known actions. Each has its own window and cooldown.
const (
	ActionSearch       = "search"
	ActionFileRequest  = "file_request"
	ActionBroadcast    = "broadcast"
	ActionInlineQuery  = "inline_query"
	ActionPremiumCheck = "premium_check"
)

type ActionLimit struct {
	MaxRequests     int
	WindowSeconds   int64
	CooldownSeconds int64
}

// DefaultActionLimits builds the configured limit table.
func DefaultActionLimits() map[string]ActionLimit {
	return map[string]ActionLimit{
		ActionSearch:       {config.SearchRateLimitNum, config.SearchRateLimitWindow, config.SearchRateLimitCooldown},
		ActionFileRequest:  {config.FileRequestRateLimitNum, config.FileRequestRateLimitWindow, config.FileRequestRateLimitCooldown},
		ActionBroadcast:    {config.BroadcastRateLimitNum, config.BroadcastRateLimitWindow, config.BroadcastRateLimitCooldown},
		ActionInlineQuery:  {config.InlineQueryRateLimitNum, config.InlineQueryRateLimitWindow, config.InlineQueryRateLimitCooldown},
		ActionPremiumCheck: {config.PremiumCheckRateLimitNum, config.PremiumCheckRateLimitWindow, config.PremiumCheckRateLimitCooldown},
	}
}

// ActionLimiter enforces per-(principal, action) counters in the shared
// cache so every replica sees the same state. A missing redis client fails
// open: availability beats enforcement for user-facing actions.
type ActionLimiter struct {
	rdb    redis.Cmdable
	limits map[string]ActionLimit
}

func NewActionLimiter(rdb redis.Cmdable, limits map[string]ActionLimit) *ActionLimiter {
	if limits == nil {
		limits = DefaultActionLimits()
	}
	return &ActionLimiter{rdb: rdb, limits: limits}
}

func counterKey(principalID int64, action string) string {
	return fmt.Sprintf("rl:%s:%d", action, principalID)
}

func cooldownKey(principalID int64, action string) string {
	return fmt.Sprintf("cd:%s:%d", action, principalID)
}

// Allow records one attempt and reports whether it is within limits. When
// the limit is hit a cooldown key suppresses further attempts; retryAfter is
// the remaining cooldown.
func (l *ActionLimiter) Allow(ctx context.Context, principalID int64, action string) (bool, time.Duration) {
	limit, ok := l.limits[action]
	if !ok || l.rdb == nil {
		return true, 0
	}

	cdKey := cooldownKey(principalID, action)
	if ttl, err := l.rdb.TTL(ctx, cdKey).Result(); err == nil && ttl > 0 {
		return false, ttl
	}

	key := counterKey(principalID, action)
	n, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		logger.Logger.Warn("action counter incr failed",
			zap.String("action", action), zap.Int64("principal_id", principalID), zap.Error(err))
		return true, 0
	}
	// Counters must never persist without expiry; refresh the window on
	// every increment.
	window := time.Duration(limit.WindowSeconds) * time.Second
	if err := l.rdb.Expire(ctx, key, window).Err(); err != nil {
		logger.Logger.Warn("action counter expire failed", zap.String("key", key), zap.Error(err))
	}

	if n > int64(limit.MaxRequests) {
		cooldown := time.Duration(limit.CooldownSeconds) * time.Second
		if err := l.rdb.Set(ctx, cdKey, 1, cooldown).Err(); err != nil {
			logger.Logger.Warn("cooldown set failed", zap.String("key", cdKey), zap.Error(err))
		}
		logger.Logger.Info("rate limit hit",
			zap.String("event", "rate_limit"),
			zap.Int64("principal_id", principalID),
			zap.String("action", action),
			zap.Int64("count", n))
		return false, cooldown
	}
	return true, 0
}

// Reset clears the counter and cooldown for a principal/action pair.
func (l *ActionLimiter) Reset(ctx context.Context, principalID int64, action string) {
	if l.rdb == nil {
		return
	}
	l.rdb.Del(ctx, counterKey(principalID, action), cooldownKey(principalID, action))
}
