package graceful

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Laisky/zap"

	"github.com/leafdriven/mediadex/common/logger"
)

// Lifecycle manager for graceful shutdown and worker draining.

var (
	inFlightSends int64
	draining      atomic.Bool

	wg sync.WaitGroup
)

// BeginSend increments the in-flight send counter and returns a function to
// decrement it. Use with `defer` at the top of delivery paths.
func BeginSend() func() {
	atomic.AddInt64(&inFlightSends, 1)
	return func() {
		atomic.AddInt64(&inFlightSends, -1)
	}
}

// GoCritical runs fn in a tracked goroutine and decrements when done.
// Use for tasks that must finish before exit: quota refunds, batch flushes,
// deletion summaries.
func GoCritical(ctx context.Context, name string, fn func(context.Context)) {
	wg.Go(func() {
		start := time.Now()
		logger.Logger.Debug("critical task start", zap.String("name", name))
		fn(ctx)
		logger.Logger.Debug("critical task done", zap.String("name", name), zap.Duration("elapsed", time.Since(start)))
	})
}

// Drain waits for all tracked critical tasks to finish, bounded by ctx
// deadline, then waits for in-flight sends to reach zero.
func Drain(ctx context.Context) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Logger.Error("graceful drain timeout",
				zap.Int64("in_flight_sends", atomic.LoadInt64(&inFlightSends)))
			return ctx.Err()
		case <-done:
			if n := atomic.LoadInt64(&inFlightSends); n != 0 {
				for {
					select {
					case <-ctx.Done():
						logger.Logger.Error("graceful drain timeout (sends not zero)", zap.Int64("in_flight_sends", n))
						return ctx.Err()
					case <-ticker.C:
						n = atomic.LoadInt64(&inFlightSends)
						if n == 0 {
							logger.Logger.Info("graceful drain complete: no in-flight sends")
							return nil
						}
					}
				}
			}
			logger.Logger.Info("graceful drain complete")
			return nil
		case <-ticker.C:
			logger.Logger.Debug("draining...",
				zap.Int64("in_flight_sends", atomic.LoadInt64(&inFlightSends)))
		}
	}
}

// SetDraining flips the draining flag to true. Enqueuers observe it and
// silently drop instead of blocking on a worker that is about to exit.
func SetDraining() { draining.Store(true) }

// IsDraining returns whether the process is currently draining.
func IsDraining() bool { return draining.Load() }
