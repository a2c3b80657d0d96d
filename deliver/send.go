package deliver

import (
	"context"
	"time"

	"github.com/Laisky/zap"

	"github.com/leafdriven/mediadex/access"
	"github.com/leafdriven/mediadex/cache"
	"github.com/leafdriven/mediadex/common/apperr"
	"github.com/leafdriven/mediadex/common/config"
	"github.com/leafdriven/mediadex/common/graceful"
	"github.com/leafdriven/mediadex/common/logger"
	"github.com/leafdriven/mediadex/limiter"
	"github.com/leafdriven/mediadex/model"
	"github.com/leafdriven/mediadex/monitor"
	"github.com/leafdriven/mediadex/platform"
)

// Sender is the delivery engine. Every outbound send passes through the
// platform caller (semaphore, breaker, flood retry) and charges quota
// exactly once per delivered file.
type Sender struct {
	client  platform.Client
	caller  *platform.Caller
	access  *access.Controller
	actions *limiter.ActionLimiter
	cache   *cache.Cache
	autodel *AutoDeleteTracker

	// sleep is swappable so bulk-send tests skip real inter-send delays.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewSender(client platform.Client, caller *platform.Caller, ctrl *access.Controller,
	actions *limiter.ActionLimiter, c *cache.Cache, autodel *AutoDeleteTracker) *Sender {
	return &Sender{
		client:  client,
		caller:  caller,
		access:  ctrl,
		actions: actions,
		cache:   c,
		autodel: autodel,
		sleep:   sleepCtx,
	}
}

// SetSleep replaces the inter-send sleeper for tests.
func (s *Sender) SetSleep(fn func(ctx context.Context, d time.Duration) error) {
	s.sleep = fn
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

// mediaCacheKeys lists every key a resolved row is cached under, one per
// identifier namespace. Invalidator.File deletes exactly this set, so a
// deleted row can never survive under a stale alias key.
func mediaCacheKeys(f *model.MediaFile) []string {
	keys := []string{cache.MediaUniqueKey(f.FileUniqueID)}
	if f.FileID != "" {
		keys = append(keys, cache.MediaFileIDKey(f.FileID))
	}
	if f.FileRef != "" {
		keys = append(keys, cache.MediaRefKey(f.FileRef))
	}
	return keys
}

// mediaLookupKeys lists the keys an opaque identifier may resolve through.
// The identifier kind is unknown to callers, so reads try each namespace.
func mediaLookupKeys(identifier string) []string {
	return []string{
		cache.MediaUniqueKey(identifier),
		cache.MediaFileIDKey(identifier),
		cache.MediaRefKey(identifier),
	}
}

// findFile resolves any identifier through the per-file cache.
func (s *Sender) findFile(ctx context.Context, identifier string) (*model.MediaFile, error) {
	if s.cache.Enabled() {
		for _, key := range mediaLookupKeys(identifier) {
			var f model.MediaFile
			if s.cache.GetInto(ctx, key, &f) {
				return &f, nil
			}
		}
	}
	f, err := model.FindFile(identifier)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeNotFound, "file %s not found", identifier)
	}
	if s.cache.Enabled() {
		for _, key := range mediaCacheKeys(f) {
			s.cache.Set(ctx, key, f, config.MediaCacheTTL)
		}
	}
	return f, nil
}

// SendFile delivers a single file. Quota is charged only after the platform
// accepts the send; a failed send costs nothing.
func (s *Sender) SendFile(ctx context.Context, principalID int64, identifier string, protect bool) (platform.Message, error) {
	var sent platform.Message

	if ok, retryAfter := s.actions.Allow(ctx, principalID, limiter.ActionFileRequest); !ok {
		return sent, apperr.New(apperr.CodeRateLimitExceeded,
			"file requests throttled, retry in %s", retryAfter)
	}

	decision, err := s.access.CanRetrieve(ctx, principalID, "")
	if err != nil {
		return sent, err
	}
	if !decision.Allowed {
		if decision.Reason == apperr.CodeBannedUser {
			return sent, apperr.New(apperr.CodeBannedUser, "principal %d is banned", principalID)
		}
		monitor.QuotaDenied.Inc()
		return sent, apperr.New(apperr.CodePremiumRequired, "daily limit reached")
	}

	f, err := s.findFile(ctx, identifier)
	if err != nil {
		return sent, err
	}

	protect = protect || model.GetSettingBoolCached(model.SettingProtectContent, false)
	sent, err = s.sendCached(ctx, principalID, f, protect)
	if err != nil {
		monitor.SendTotal.WithLabelValues("single", sendOutcome(err)).Inc()
		return sent, err
	}
	monitor.SendTotal.WithLabelValues("single", "sent").Inc()

	if !decision.Unlimited {
		// The file already went out; a charge failure must not undo that.
		if _, rerr := s.access.Reserve(ctx, principalID, 1); rerr != nil {
			logger.Logger.Warn("quota charge failed after delivery",
				zap.Int64("principal", principalID), zap.Error(rerr))
		}
	}
	s.scheduleAutoDelete(sent)
	return sent, nil
}

// sendOutcome maps a delivery error onto its metric class. A flood wait that
// outlived the caller's single retry keeps its own class so bulk summaries
// match per-file semantics.
func sendOutcome(err error) string {
	if _, ok := platform.AsFloodWait(err); ok {
		return "flood_wait"
	}
	return "failed"
}

func (s *Sender) sendCached(ctx context.Context, chatID int64, f *model.MediaFile, protect bool) (platform.Message, error) {
	done := graceful.BeginSend()
	defer done()

	var sent platform.Message
	err := s.caller.Invoke(ctx, "send_cached_media", func(ctx context.Context) error {
		var serr error
		sent, serr = s.client.SendCachedMedia(ctx, chatID, f.FileID, platform.SendOptions{
			Caption:        f.FileName,
			ProtectContent: protect,
		})
		return serr
	})
	return sent, err
}

func (s *Sender) scheduleAutoDelete(msg platform.Message) {
	if s.autodel == nil || config.AutoDeleteAfter <= 0 {
		return
	}
	if !model.GetSettingBoolCached(model.SettingAutoDelete, true) {
		return
	}
	s.autodel.Schedule(msg.ChatID, msg.ID, config.AutoDeleteAfter)
}
