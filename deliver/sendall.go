package deliver

import (
	"context"

	"github.com/Laisky/zap"

	"github.com/leafdriven/mediadex/common/apperr"
	"github.com/leafdriven/mediadex/common/config"
	"github.com/leafdriven/mediadex/common/logger"
	"github.com/leafdriven/mediadex/model"
	"github.com/leafdriven/mediadex/monitor"
	"github.com/leafdriven/mediadex/search"
)

// BulkOutcome summarizes one bulk send. FloodWait counts items the platform
// refused even after the caller's retry; they are refunded like failures but
// reported apart so operators can tell pacing trouble from broken files.
type BulkOutcome struct {
	Requested int `json:"requested"`
	Reserved  int `json:"reserved"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	FloodWait int `json:"flood_wait"`
}

// BulkProgress fires every few sends with the running outcome.
type BulkProgress func(BulkOutcome)

// SessionLoader resolves a result-session handle. *search.SessionStore is
// the production implementation.
type SessionLoader interface {
	Load(ctx context.Context, principalID int64, sessionID string) (*search.ResultSession, error)
}

// SendAll delivers every file held by a result session. Quota for the whole
// batch is reserved atomically up front and unused units are refunded after
// the loop, so concurrent bulk sends can never overdraw a principal.
func (s *Sender) SendAll(ctx context.Context, principalID int64, sessions SessionLoader,
	sessionID string, protect bool, progress BulkProgress) (BulkOutcome, error) {
	var out BulkOutcome
	if progress == nil {
		progress = func(BulkOutcome) {}
	}

	session, err := sessions.Load(ctx, principalID, sessionID)
	if err != nil {
		return out, err
	}
	out.Requested = len(session.Items)
	if out.Requested == 0 {
		return out, nil
	}

	toSend := session.Items
	charged, err := s.reserveBulk(ctx, principalID, len(toSend))
	if err != nil {
		return out, err
	}
	if charged >= 0 {
		if charged == 0 {
			return out, apperr.New(apperr.CodePremiumRequired, "daily limit reached")
		}
		out.Reserved = charged
		toSend = toSend[:charged]
	}

	for i, item := range toSend {
		if err := ctx.Err(); err != nil {
			break
		}
		f := &model.MediaFile{FileID: item.FileID, FileName: item.FileName}
		if _, serr := s.sendCached(ctx, principalID, f, protect); serr != nil {
			class := sendOutcome(serr)
			if class == "flood_wait" {
				out.FloodWait++
			} else {
				out.Failed++
			}
			monitor.SendTotal.WithLabelValues("bulk", class).Inc()
			logger.Logger.Warn("bulk send item failed",
				zap.Int64("principal", principalID),
				zap.String("file_unique_id", item.FileUniqueID),
				zap.Error(serr))
		} else {
			out.Sent++
			monitor.SendTotal.WithLabelValues("bulk", "sent").Inc()
		}
		if (i+1)%config.SendProgressEvery == 0 {
			progress(out)
		}
		if i < len(toSend)-1 {
			if err := s.sleep(ctx, config.SendSpacing); err != nil {
				break
			}
		}
	}
	progress(out)

	// Refund reservations that did not turn into deliveries.
	if charged > 0 && charged > out.Sent {
		if rerr := s.access.Release(ctx, principalID, charged-out.Sent); rerr != nil {
			logger.Logger.Warn("quota refund failed",
				zap.Int64("principal", principalID), zap.Error(rerr))
		}
	}
	return out, nil
}

// reserveBulk returns how many sends are charged: -1 means unlimited (no
// quota applies), 0 means the principal has nothing left today.
func (s *Sender) reserveBulk(ctx context.Context, principalID int64, n int) (int, error) {
	decision, err := s.access.CanRetrieve(ctx, principalID, "")
	if err != nil {
		return 0, err
	}
	if !decision.Allowed {
		if decision.Reason == apperr.CodeBannedUser {
			return 0, apperr.New(apperr.CodeBannedUser, "principal %d is banned", principalID)
		}
		return 0, nil
	}
	if decision.Unlimited {
		return -1, nil
	}
	return s.access.Reserve(ctx, principalID, n)
}
