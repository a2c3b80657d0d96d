package platform

import (
	"context"
	"time"

	"github.com/Laisky/zap"

	"github.com/leafdriven/mediadex/common/apperr"
	"github.com/leafdriven/mediadex/common/logger"
	"github.com/leafdriven/mediadex/limiter"
	"github.com/leafdriven/mediadex/monitor"
)

// Caller wraps every outbound platform call: acquire the platform_send
// semaphore, route through the per-endpoint circuit breaker, and honor
// flood-wait by sleeping the indicated duration and retrying once. A second
// flood-wait surfaces as TELEGRAM_API_ERROR.
type Caller struct {
	sems     *limiter.SemaphoreSet
	breakers *limiter.BreakerSet
	// sleep is swappable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewCaller(sems *limiter.SemaphoreSet, breakers *limiter.BreakerSet) *Caller {
	return &Caller{
		sems:     sems,
		breakers: breakers,
		sleep:    sleepCtx,
	}
}

// SetSleep replaces the flood-wait sleeper so tests avoid real delays.
func (c *Caller) SetSleep(fn func(ctx context.Context, d time.Duration) error) {
	c.sleep = fn
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Invoke runs fn under the send semaphore and breaker for endpoint.
func (c *Caller) Invoke(ctx context.Context, endpoint string, fn func(ctx context.Context) error) error {
	if err := c.sems.Acquire(ctx, limiter.SemPlatformSend); err != nil {
		return err
	}
	defer c.sems.Release(limiter.SemPlatformSend)

	_, err := c.breakers.Execute(endpoint, func() (any, error) {
		return nil, c.callWithFloodRetry(ctx, endpoint, fn)
	})
	if limiter.IsOpen(err) {
		return apperr.Wrap(err, apperr.CodeSystemError,
			"platform endpoint %s temporarily unavailable (circuit open)", endpoint)
	}
	return err
}

func (c *Caller) callWithFloodRetry(ctx context.Context, endpoint string, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	fw, ok := AsFloodWait(err)
	if !ok {
		return err
	}

	wait := time.Duration(fw.Seconds) * time.Second
	monitor.FloodWaits.Inc()
	logger.Logger.Info("flood wait, sleeping before single retry",
		zap.String("event", "flood_wait"),
		zap.String("endpoint", endpoint),
		zap.Int("seconds", fw.Seconds))
	if serr := c.sleep(ctx, wait); serr != nil {
		return serr
	}

	err = fn(ctx)
	if _, again := AsFloodWait(err); again {
		return apperr.Wrap(err, apperr.CodeTelegramAPIError,
			"flood wait persisted after retry on %s", endpoint)
	}
	return err
}
