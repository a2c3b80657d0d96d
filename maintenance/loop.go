// Package maintenance runs the periodic housekeeping cycle: premium expiry,
// the idempotent daily counter reset, and expired batch-link cleanup.
package maintenance

import (
	"context"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"

	"github.com/leafdriven/mediadex/cache"
	"github.com/leafdriven/mediadex/common/config"
	"github.com/leafdriven/mediadex/common/helper"
	"github.com/leafdriven/mediadex/common/logger"
	"github.com/leafdriven/mediadex/model"
)

const (
	cycleInterval = 24 * time.Hour
	errorBackoff  = time.Hour

	// resetDateKey mirrors the persisted reset date in cache. The 25 h TTL
	// outlives one cycle so a restart inside the same day skips the reset
	// without a store read.
	resetDateKey   = "last_counter_reset_date"
	resetMirrorTTL = 25 * time.Hour
)

// Loop drives the housekeeping cycle. Only the master node runs it.
type Loop struct {
	cache *cache.Cache

	// now is swapped in tests.
	now func() time.Time
}

func NewLoop(c *cache.Cache) *Loop {
	return &Loop{cache: c, now: time.Now}
}

// Run executes one cycle immediately, then every 24 h. The short tick keeps
// shutdown latency bounded; a failed cycle is retried after one hour.
func (l *Loop) Run(ctx context.Context) {
	next := l.runAndSchedule(ctx)

	tick := time.NewTicker(config.MaintenanceGranularity)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Logger.Info("maintenance loop stopping")
			return
		case <-tick.C:
			if l.now().Before(next) {
				continue
			}
			next = l.runAndSchedule(ctx)
		}
	}
}

func (l *Loop) runAndSchedule(ctx context.Context) time.Time {
	if err := l.runCycle(ctx); err != nil {
		logger.Logger.Error("maintenance cycle failed", zap.Error(err))
		return l.now().Add(errorBackoff)
	}
	return l.now().Add(cycleInterval)
}

func (l *Loop) runCycle(ctx context.Context) error {
	if err := l.expirePremium(ctx); err != nil {
		return err
	}
	if err := l.resetCountersOnce(ctx); err != nil {
		return err
	}
	return l.sweepBatchLinks()
}

// expirePremium clears the premium flag for every subscription past its
// configured duration, in one bulk write.
func (l *Loop) expirePremium(ctx context.Context) error {
	cutoff := l.now().AddDate(0, 0, -config.PremiumDurationDays).Unix()
	n, err := model.ExpirePremiumBefore(cutoff)
	if err != nil {
		return errors.Wrap(err, "expire premium subscriptions")
	}
	if n > 0 {
		l.cache.DeletePattern(ctx, "principal:*")
		logger.Logger.Info("expired premium subscriptions", zap.Int64("count", n))
	}
	return nil
}

// resetCountersOnce zeroes every daily retrieval counter at most once per
// calendar day. The persisted reset date is authoritative; the cache mirror
// only saves a store read on the common already-done path.
func (l *Loop) resetCountersOnce(ctx context.Context) error {
	today := helper.Today()

	var mirrored string
	if l.cache.GetInto(ctx, cache.SettingKey(resetDateKey), &mirrored) && mirrored == today {
		return nil
	}

	stored, err := model.LastCounterResetDate()
	if err != nil {
		return errors.Wrap(err, "read last counter reset date")
	}
	if stored == today {
		l.cache.Set(ctx, cache.SettingKey(resetDateKey), today, resetMirrorTTL)
		return nil
	}

	n, err := model.ResetAllDailyCounters()
	if err != nil {
		return errors.Wrap(err, "reset daily counters")
	}
	if err := model.MarkCounterReset(today); err != nil {
		return errors.Wrap(err, "mark counter reset")
	}
	l.cache.Set(ctx, cache.SettingKey(resetDateKey), today, resetMirrorTTL)
	l.cache.DeletePattern(ctx, "principal:*")
	logger.Logger.Info("daily counters reset",
		zap.String("date", today), zap.Int64("count", n))
	return nil
}

func (l *Loop) sweepBatchLinks() error {
	n, err := model.DeleteExpiredBatchLinks()
	if err != nil {
		return errors.Wrap(err, "sweep expired batch links")
	}
	if n > 0 {
		logger.Logger.Info("expired batch links removed", zap.Int64("count", n))
	}
	return nil
}
