package limiter

import (
	"context"
	"testing"

	"github.com/Laisky/errors/v2"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafdriven/mediadex/common/config"
)

func TestActionLimiterFailsOpenWithoutStore(t *testing.T) {
	l := NewActionLimiter(nil, DefaultActionLimits())

	for i := 0; i < config.SearchRateLimitNum*2; i++ {
		ok, retryAfter := l.Allow(context.Background(), 7, ActionSearch)
		assert.True(t, ok)
		assert.Zero(t, retryAfter)
	}
}

func TestActionLimiterUnknownActionAllowed(t *testing.T) {
	l := NewActionLimiter(nil, DefaultActionLimits())
	ok, _ := l.Allow(context.Background(), 7, "no_such_action")
	assert.True(t, ok)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	s := NewBreakerSet()
	boom := errors.New("boom")

	for i := 0; i < config.BreakerFailureThreshold; i++ {
		_, err := s.Execute("test_endpoint", func() (any, error) { return nil, boom })
		require.Error(t, err)
		assert.False(t, IsOpen(err))
	}

	_, err := s.Execute("test_endpoint", func() (any, error) { return nil, nil })
	require.Error(t, err)
	assert.True(t, IsOpen(err))
	assert.Equal(t, "open", s.State("test_endpoint"))
}

func TestBreakerRecoversOnSuccess(t *testing.T) {
	s := NewBreakerSet()
	boom := errors.New("boom")

	// A success resets the consecutive-failure count, so the breaker stays
	// closed through alternating outcomes.
	for i := 0; i < config.BreakerFailureThreshold*2; i++ {
		_, err := s.Execute("alternating", func() (any, error) { return nil, boom })
		require.Error(t, err)
		_, err = s.Execute("alternating", func() (any, error) { return nil, nil })
		require.NoError(t, err)
	}
	assert.Equal(t, "closed", s.State("alternating"))
}

func TestSemaphoreWithRunsUnderPermit(t *testing.T) {
	s := NewSemaphoreSet()

	ran := false
	err := s.With(context.Background(), SemDatabaseWrite, func() error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)

	werr := errors.New("write failed")
	err = s.With(context.Background(), SemDatabaseWrite, func() error { return werr })
	assert.ErrorIs(t, err, werr)
}

func TestSemaphoreUnknownName(t *testing.T) {
	s := NewSemaphoreSet()
	assert.Error(t, s.Acquire(context.Background(), "nope"))
}

func TestTokenBucketLocalBudget(t *testing.T) {
	b := NewTokenBucket(nil, "local_budget", 1, 2)
	ctx := context.Background()

	assert.True(t, b.Take(ctx, 1))
	assert.True(t, b.Take(ctx, 1))
	// Capacity is spent and one token per second is far away.
	assert.False(t, b.Take(ctx, 1))
}

func TestTokenBucketSharedBudget(t *testing.T) {
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	ctx := context.Background()

	// Two replicas draw from one key; the second replica's local limiter is
	// fresh, so only the shared state can deny it.
	b1 := NewTokenBucket(rdb, "shared_budget", 1, 2)
	b2 := NewTokenBucket(rdb, "shared_budget", 1, 2)

	assert.True(t, b1.Take(ctx, 1))
	assert.True(t, b1.Take(ctx, 1))
	assert.False(t, b2.Take(ctx, 1))
}
