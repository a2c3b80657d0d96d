package deliver

import (
	"context"

	"github.com/Laisky/zap"

	"github.com/leafdriven/mediadex/common/apperr"
	"github.com/leafdriven/mediadex/common/config"
	"github.com/leafdriven/mediadex/common/logger"
	"github.com/leafdriven/mediadex/monitor"
	"github.com/leafdriven/mediadex/platform"
)

// SendRange copies every non-empty message in [firstID, lastID] from the
// source chat to the principal, slice by slice, under the same spacing and
// flood policy as bulk sends. Quota is reserved per slice against the number
// of copyable messages and refunded for failures.
func (s *Sender) SendRange(ctx context.Context, principalID, chatID int64,
	firstID, lastID int, protect bool, progress BulkProgress) (BulkOutcome, error) {
	var out BulkOutcome
	if progress == nil {
		progress = func(BulkOutcome) {}
	}
	if firstID <= 0 || lastID < firstID {
		return out, apperr.New(apperr.CodeInvalidInput, "invalid range %d..%d", firstID, lastID)
	}
	if lastID-firstID+1 > config.MaxRangeSize {
		return out, apperr.New(apperr.CodeInvalidInput, "range exceeds %d messages", config.MaxRangeSize)
	}

	for sliceStart := firstID; sliceStart <= lastID; sliceStart += config.RangeSliceSize {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		sliceEnd := sliceStart + config.RangeSliceSize - 1
		if sliceEnd > lastID {
			sliceEnd = lastID
		}
		ids := make([]int, 0, sliceEnd-sliceStart+1)
		for id := sliceStart; id <= sliceEnd; id++ {
			ids = append(ids, id)
		}

		var msgs []platform.Message
		err := s.caller.Invoke(ctx, "get_messages", func(ctx context.Context) error {
			var ferr error
			msgs, ferr = s.client.GetMessages(ctx, chatID, ids)
			return ferr
		})
		if err != nil {
			return out, apperr.Wrap(err, apperr.CodeTelegramAPIError,
				"fetch slice %d..%d of chat %d", sliceStart, sliceEnd, chatID)
		}

		var copyable []platform.Message
		for _, m := range msgs {
			if !m.Empty {
				copyable = append(copyable, m)
			}
		}
		if len(copyable) == 0 {
			continue
		}
		out.Requested += len(copyable)

		charged, err := s.reserveBulk(ctx, principalID, len(copyable))
		if err != nil {
			return out, err
		}
		if charged == 0 {
			if out.Sent == 0 {
				return out, apperr.New(apperr.CodePremiumRequired, "daily limit reached")
			}
			return out, nil
		}
		if charged > 0 {
			out.Reserved += charged
			copyable = copyable[:charged]
		}

		sentBefore := out.Sent
		for i, m := range copyable {
			cerr := s.caller.Invoke(ctx, "copy_message", func(ctx context.Context) error {
				sent, serr := s.client.Copy(ctx, principalID, chatID, m.ID, platform.SendOptions{
					ProtectContent: protect,
				})
				if serr == nil {
					s.scheduleAutoDelete(sent)
				}
				return serr
			})
			if cerr != nil {
				class := sendOutcome(cerr)
				if class == "flood_wait" {
					out.FloodWait++
				} else {
					out.Failed++
				}
				monitor.SendTotal.WithLabelValues("range", class).Inc()
				logger.Logger.Warn("range copy failed",
					zap.Int64("chat", chatID), zap.Int("message", m.ID), zap.Error(cerr))
			} else {
				out.Sent++
				monitor.SendTotal.WithLabelValues("range", "sent").Inc()
			}
			if (i+1)%config.SendProgressEvery == 0 {
				progress(out)
			}
			if i < len(copyable)-1 {
				if err := s.sleep(ctx, config.SendSpacing); err != nil {
					return out, err
				}
			}
		}

		if charged > 0 {
			delivered := out.Sent - sentBefore
			if charged > delivered {
				if rerr := s.access.Release(ctx, principalID, charged-delivered); rerr != nil {
					logger.Logger.Warn("quota refund failed",
						zap.Int64("principal", principalID), zap.Error(rerr))
				}
				out.Reserved -= charged - delivered
			}
		}
		progress(out)
	}
	return out, nil
}
