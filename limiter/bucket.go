package limiter

import (
	"context"
	"time"

	"github.com/Laisky/zap"
	"github.com/go-redis/redis/v8"
	"golang.org/x/time/rate"

	"github.com/leafdriven/mediadex/common/logger"
)

// TokenBucket is a continuous-refill bucket persisted in the shared cache so
// replicas draw from the same budget. A process-local rate.Limiter fronts it
// as a cheap fast-path gate; the redis script is the source of truth.
type TokenBucket struct {
	rdb      redis.Cmdable
	key      string
	rate     float64
	capacity int
	local    *rate.Limiter
}

// tokenBucketScript refills by elapsed time and takes n tokens atomically.
// KEYS[1] = bucket key, ARGV = rate, capacity, now (unix micros), n.
// Returns 1 when the take succeeded.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local refill = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local n = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'tokens', 'ts')
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil then
  tokens = capacity
  ts = now
end

local elapsed = (now - ts) / 1000000.0
tokens = math.min(capacity, tokens + elapsed * refill)

local ok = 0
if tokens >= n then
  tokens = tokens - n
  ok = 1
end

redis.call('HMSET', key, 'tokens', tokens, 'ts', now)
redis.call('EXPIRE', key, 3600)
return ok
`)

func NewTokenBucket(rdb redis.Cmdable, key string, refillRate float64, capacity int) *TokenBucket {
	return &TokenBucket{
		rdb:      rdb,
		key:      "bucket:" + key,
		rate:     refillRate,
		capacity: capacity,
		local:    rate.NewLimiter(rate.Limit(refillRate), capacity),
	}
}

// Take consumes n tokens, reporting whether the budget allowed it. Without
// redis the local limiter alone decides.
func (b *TokenBucket) Take(ctx context.Context, n int) bool {
	if !b.local.AllowN(time.Now(), n) {
		return false
	}
	if b.rdb == nil {
		return true
	}
	res, err := tokenBucketScript.Run(ctx, b.rdb,
		[]string{b.key}, b.rate, b.capacity, time.Now().UnixMicro(), n).Int()
	if err != nil {
		logger.Logger.Warn("token bucket script failed", zap.String("key", b.key), zap.Error(err))
		return true
	}
	return res == 1
}
