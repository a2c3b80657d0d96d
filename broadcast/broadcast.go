// Package broadcast fans a message out to every non-banned principal in
// pages, with adaptive pacing and outcome classification.
package broadcast

import (
	"context"
	"strings"
	"time"

	"github.com/Laisky/zap"

	"github.com/leafdriven/mediadex/common/apperr"
	"github.com/leafdriven/mediadex/common/config"
	"github.com/leafdriven/mediadex/common/logger"
	"github.com/leafdriven/mediadex/limiter"
	"github.com/leafdriven/mediadex/model"
	"github.com/leafdriven/mediadex/monitor"
	"github.com/leafdriven/mediadex/platform"
)

// Outcome is the running broadcast tally.
type Outcome struct {
	Total   int `json:"total"`
	Sent    int `json:"sent"`
	Blocked int `json:"blocked"`
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
}

// Progress fires after every drained page.
type Progress func(Outcome)

// Engine drives one broadcast at a time.
type Engine struct {
	client  platform.Client
	caller  *platform.Caller
	actions *limiter.ActionLimiter
	bucket  *limiter.TokenBucket

	sleep func(ctx context.Context, d time.Duration) error
}

// tokenRetryDelay is how long a drained send budget parks the loop before
// the next take attempt.
const tokenRetryDelay = 50 * time.Millisecond

func NewEngine(client platform.Client, caller *platform.Caller, actions *limiter.ActionLimiter, bucket *limiter.TokenBucket) *Engine {
	return &Engine{client: client, caller: caller, actions: actions, bucket: bucket, sleep: sleepCtx}
}

// SetSleep replaces the inter-page sleeper for tests.
func (e *Engine) SetSleep(fn func(ctx context.Context, d time.Duration) error) {
	e.sleep = fn
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

// takeToken blocks until the shared send budget yields a token.
func (e *Engine) takeToken(ctx context.Context) error {
	if e.bucket == nil {
		return nil
	}
	for !e.bucket.Take(ctx, 1) {
		if err := e.sleep(ctx, tokenRetryDelay); err != nil {
			return err
		}
	}
	return nil
}

// classify maps platform error text onto the broadcast outcome classes.
func classify(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "blocked"):
		return "blocked"
	case strings.Contains(msg, "deactivated"), strings.Contains(msg, "deleted"):
		return "deleted"
	default:
		return "failed"
	}
}

// Run copies the source message to every non-banned principal. The
// initiator is gated by the broadcast action limit (one per hour by
// default). When the running success rate drops below one half, the
// inter-page delay doubles.
func (e *Engine) Run(ctx context.Context, initiatorID, sourceChatID int64, messageID int, progress Progress) (Outcome, error) {
	var out Outcome
	if progress == nil {
		progress = func(Outcome) {}
	}

	if ok, retryAfter := e.actions.Allow(ctx, initiatorID, limiter.ActionBroadcast); !ok {
		return out, apperr.New(apperr.CodeRateLimitExceeded,
			"broadcast throttled, retry in %s", retryAfter)
	}

	delay := config.BroadcastDelay
	started := time.Now()

	for offset := 0; ; offset += config.BroadcastPageSize {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		page, err := model.PrincipalsPage(offset, config.BroadcastPageSize)
		if err != nil {
			return out, apperr.Wrap(err, apperr.CodeDatabaseError, "page principals at %d", offset)
		}
		if len(page) == 0 {
			break
		}

		for _, p := range page {
			out.Total++
			if err := e.takeToken(ctx); err != nil {
				return out, err
			}
			serr := e.caller.Invoke(ctx, "broadcast_copy", func(ctx context.Context) error {
				_, cerr := e.client.Copy(ctx, p.Id, sourceChatID, messageID, platform.SendOptions{})
				return cerr
			})
			if serr == nil {
				out.Sent++
				monitor.BroadcastTotal.WithLabelValues("sent").Inc()
				continue
			}
			class := classify(serr)
			monitor.BroadcastTotal.WithLabelValues(class).Inc()
			switch class {
			case "blocked":
				out.Blocked++
			case "deleted":
				out.Deleted++
				// Deleted accounts leave the store so later broadcasts skip them.
				if derr := model.DeletePrincipal(p.Id); derr != nil {
					logger.Logger.Warn("failed to remove deleted principal",
						zap.Int64("principal", p.Id), zap.Error(derr))
				}
			default:
				out.Failed++
			}
		}
		progress(out)

		// Adaptive pacing: a struggling broadcast slows itself down.
		if out.Total > 0 && float64(out.Sent)/float64(out.Total) < 0.5 {
			delay *= 2
		}
		if err := e.sleep(ctx, delay); err != nil {
			return out, err
		}
	}

	logger.Logger.Info("broadcast finished",
		zap.Int64("initiator", initiatorID),
		zap.Int("total", out.Total),
		zap.Int("sent", out.Sent),
		zap.Int("blocked", out.Blocked),
		zap.Int("deleted", out.Deleted),
		zap.Int("failed", out.Failed),
		zap.Duration("elapsed", time.Since(started)))
	return out, nil
}
