// Package deletion removes files from the media index and keeps the derived
// cache views consistent. Items arrive from the dedicated delete channel and
// from admin commands; a single worker drains them in rate-bounded windows.
package deletion

import (
	"context"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"gorm.io/gorm"

	"github.com/leafdriven/mediadex/cache"
	"github.com/leafdriven/mediadex/common/config"
	"github.com/leafdriven/mediadex/common/logger"
	"github.com/leafdriven/mediadex/ingest"
	"github.com/leafdriven/mediadex/model"
	"github.com/leafdriven/mediadex/monitor"
	"github.com/leafdriven/mediadex/platform"
)

// Summary is one drain window's outcome, reported to the admin log channel
// whenever at least one file was actually removed.
type Summary struct {
	Deleted int `json:"deleted"`
	Missing int `json:"missing"`
	Errors  int `json:"errors"`
}

// Worker consumes deletion requests and removes the matching index rows,
// invalidating the per-file cache entries, the stats view, and the search
// version after every window that touched anything.
type Worker struct {
	queue chan string
	inv   *cache.Invalidator

	// report receives the window summary; nil disables reporting.
	report func(Summary)
}

func NewWorker(capacity int, c *cache.Cache, report func(Summary)) *Worker {
	if capacity <= 0 {
		capacity = config.DeleteWindowMax * 4
	}
	if report == nil {
		report = func(Summary) {}
	}
	return &Worker{
		queue:  make(chan string, capacity),
		inv:    cache.NewInvalidator(c),
		report: report,
	}
}

// Enqueue schedules one file for deletion by unique id. It reports false
// when the queue is full; the caller decides whether to retry or surface
// the rejection.
func (w *Worker) Enqueue(uniqueID string) bool {
	if uniqueID == "" {
		return false
	}
	select {
	case w.queue <- uniqueID:
		return true
	default:
		return false
	}
}

// EnqueueMessage extracts the media identity from a delete-channel message
// and schedules it. Messages without indexable media are ignored.
func (w *Worker) EnqueueMessage(msg platform.Message) bool {
	f, skip := ingest.Extract(msg)
	if skip != ingest.SkipNone {
		return false
	}
	return w.Enqueue(f.FileUniqueID)
}

// Depth reports the number of queued deletion requests.
func (w *Worker) Depth() int { return len(w.queue) }

// Run drains the queue until ctx is cancelled, processing at most the
// configured window maximum per window.
func (w *Worker) Run(ctx context.Context) {
	tick := time.NewTicker(config.DeleteWindow)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Logger.Info("deletion worker stopping", zap.Int("pending", len(w.queue)))
			return
		case <-tick.C:
			sum := w.drainWindow(ctx)
			if sum.Deleted > 0 {
				w.report(sum)
			}
		}
	}
}

// drainWindow processes up to DeleteWindowMax queued items and refreshes the
// derived views once at the end.
func (w *Worker) drainWindow(ctx context.Context) Summary {
	var sum Summary
	for sum.Deleted+sum.Missing+sum.Errors < config.DeleteWindowMax {
		select {
		case uid := <-w.queue:
			switch err := w.deleteOne(ctx, uid); {
			case err == nil:
				sum.Deleted++
				monitor.DeletionTotal.WithLabelValues("deleted").Inc()
			case errors.Is(err, gorm.ErrRecordNotFound):
				sum.Missing++
				monitor.DeletionTotal.WithLabelValues("missing").Inc()
			default:
				sum.Errors++
				monitor.DeletionTotal.WithLabelValues("error").Inc()
				logger.Logger.Warn("delete file failed",
					zap.String("unique_id", uid), zap.Error(err))
			}
		default:
			goto done
		}
	}
done:
	if sum.Deleted > 0 {
		w.inv.FileStats(ctx)
		w.inv.SearchResults(ctx)
		logger.Logger.Info("deletion window complete",
			zap.Int("deleted", sum.Deleted),
			zap.Int("missing", sum.Missing),
			zap.Int("errors", sum.Errors))
	}
	return sum
}

func (w *Worker) deleteOne(ctx context.Context, uniqueID string) error {
	f, err := model.DeleteFileByUniqueID(uniqueID)
	if err != nil {
		return err
	}
	w.inv.File(ctx, f.FileUniqueID, f.FileID, f.FileRef)
	return nil
}

// DeleteByKeyword removes every file whose name (or caption, when caption
// search is on) matches the keyword, bypassing the window queue. Used by the
// confirmed bulk-delete command.
func (w *Worker) DeleteByKeyword(ctx context.Context, keyword string) (int, error) {
	files, err := model.DeleteFilesByKeyword(keyword, config.UseCaptionSearch, config.SearchScanCap)
	if err != nil {
		return 0, errors.Wrapf(err, "delete files by keyword %q", keyword)
	}
	for _, f := range files {
		w.inv.File(ctx, f.FileUniqueID, f.FileID, f.FileRef)
	}
	if len(files) > 0 {
		w.inv.FileStats(ctx)
		w.inv.SearchResults(ctx)
	}
	logger.Logger.Info("keyword deletion complete",
		zap.String("keyword", keyword), zap.Int("deleted", len(files)))
	return len(files), nil
}
