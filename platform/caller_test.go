package platform

import (
	"context"
	"testing"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafdriven/mediadex/common/apperr"
	"github.com/leafdriven/mediadex/common/config"
	"github.com/leafdriven/mediadex/limiter"
)

func newTestCaller() (*Caller, *[]time.Duration) {
	c := NewCaller(limiter.NewSemaphoreSet(), limiter.NewBreakerSet())
	var slept []time.Duration
	c.SetSleep(func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	})
	return c, &slept
}

func TestInvokeFloodWaitRetriesOnce(t *testing.T) {
	c, slept := newTestCaller()

	calls := 0
	err := c.Invoke(context.Background(), "ep_retry", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return &FloodWait{Seconds: 3}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, *slept, 1)
	assert.Equal(t, 3*time.Second, (*slept)[0])
}

func TestInvokeSecondFloodWaitSurfaces(t *testing.T) {
	c, _ := newTestCaller()

	calls := 0
	err := c.Invoke(context.Background(), "ep_persist", func(ctx context.Context) error {
		calls++
		return &FloodWait{Seconds: 1}
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, apperr.CodeTelegramAPIError, apperr.CodeOf(err))
}

func TestInvokeOpenBreakerIsSystemError(t *testing.T) {
	c, _ := newTestCaller()
	boom := errors.New("boom")

	for i := 0; i < config.BreakerFailureThreshold; i++ {
		err := c.Invoke(context.Background(), "ep_down", func(ctx context.Context) error {
			return boom
		})
		require.Error(t, err)
	}

	err := c.Invoke(context.Background(), "ep_down", func(ctx context.Context) error {
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeSystemError, apperr.CodeOf(err))
}

func TestAsFloodWaitUnwraps(t *testing.T) {
	fw := &FloodWait{Seconds: 5}
	wrapped := errors.Wrap(fw, "send failed")

	got, ok := AsFloodWait(wrapped)
	require.True(t, ok)
	assert.Equal(t, 5, got.Seconds)

	_, ok = AsFloodWait(errors.New("other"))
	assert.False(t, ok)
	_, ok = AsFloodWait(nil)
	assert.False(t, ok)
}
