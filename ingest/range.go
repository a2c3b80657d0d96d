package ingest

import (
	"context"
	"time"

	"github.com/Laisky/zap"

	"github.com/leafdriven/mediadex/common/apperr"
	"github.com/leafdriven/mediadex/common/config"
	"github.com/leafdriven/mediadex/common/helper"
	"github.com/leafdriven/mediadex/common/logger"
	"github.com/leafdriven/mediadex/model"
	"github.com/leafdriven/mediadex/platform"
)

// RangeIndexer drives the admin-triggered bulk index of a channel message
// range, fetching ascending slices and pushing them through the shared
// persistence path. A run pauses the live drain loop for its duration, so
// ingestion is exclusive: one range pass, or live draining, never both.
type RangeIndexer struct {
	client platform.Client
	caller *platform.Caller
	worker *Worker
}

func NewRangeIndexer(client platform.Client, caller *platform.Caller, worker *Worker) *RangeIndexer {
	return &RangeIndexer{client: client, caller: caller, worker: worker}
}

// Running reports whether an index run is in progress.
func (r *RangeIndexer) Running() bool { return r.worker.paused.Load() }

// IndexRange walks [firstID, lastID] in ascending slices, persisting each
// slice as one batch. progress fires after every slice with running totals.
func (r *RangeIndexer) IndexRange(ctx context.Context, chatID int64, firstID, lastID int, progress func(Stats)) (Stats, error) {
	var total Stats
	if firstID <= 0 || lastID < firstID {
		return total, apperr.New(apperr.CodeInvalidInput, "invalid range %d..%d", firstID, lastID)
	}
	if lastID-firstID+1 > config.MaxRangeSize {
		return total, apperr.New(apperr.CodeInvalidInput, "range exceeds %d messages", config.MaxRangeSize)
	}
	if !r.worker.Pause() {
		return total, apperr.New(apperr.CodeDuplicateEntry, "an index run is already active")
	}
	defer r.worker.Resume()
	if progress == nil {
		progress = func(Stats) {}
	}

	started := time.Now()
	for sliceStart := firstID; sliceStart <= lastID; sliceStart += config.RangeSliceSize {
		if err := ctx.Err(); err != nil {
			return total, err
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
		err := r.caller.Invoke(ctx, "get_messages", func(ctx context.Context) error {
			var ferr error
			msgs, ferr = r.client.GetMessages(ctx, chatID, ids)
			return ferr
		})
		if err != nil {
			return total, apperr.Wrap(err, apperr.CodeTelegramAPIError,
				"fetch slice %d..%d of chat %d", sliceStart, sliceEnd, chatID)
		}

		batch := make([]Item, len(msgs))
		now := time.Now()
		for i, m := range msgs {
			batch[i] = Item{Message: m, ReceivedAt: now}
		}
		total.add(r.worker.persistBatch(ctx, batch))
		progress(total)
	}

	if total.TotalFiles > 0 {
		if err := model.BumpChannelIndexed(chatID, int64(total.TotalFiles), helper.GetTimestamp()); err != nil {
			logger.Logger.Warn("failed to record channel index progress", zap.Error(err))
		}
	}
	logger.Logger.Info("range index finished",
		zap.Int64("chat", chatID),
		zap.Int("messages", total.TotalMessages),
		zap.Int("files", total.TotalFiles),
		zap.Int64("elapsed_ms", helper.CalcElapsedTime(started)))
	return total, nil
}
