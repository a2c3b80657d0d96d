package ingest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Laisky/zap"

	"github.com/leafdriven/mediadex/cache"
	"github.com/leafdriven/mediadex/common/config"
	"github.com/leafdriven/mediadex/common/graceful"
	"github.com/leafdriven/mediadex/common/logger"
	"github.com/leafdriven/mediadex/limiter"
	"github.com/leafdriven/mediadex/model"
	"github.com/leafdriven/mediadex/monitor"
)

var isDraining = graceful.IsDraining

// Stats is the running total exposed to operators. The identity
// total_messages = total_files + duplicate + errors + deleted + no_media +
// unsupported holds after every batch.
type Stats struct {
	TotalMessages int `json:"total_messages"`
	TotalFiles    int `json:"total_files"`
	Duplicate     int `json:"duplicate"`
	Errors        int `json:"errors"`
	Deleted       int `json:"deleted"`
	NoMedia       int `json:"no_media"`
	Unsupported   int `json:"unsupported"`
}

func (s *Stats) add(o Stats) {
	s.TotalMessages += o.TotalMessages
	s.TotalFiles += o.TotalFiles
	s.Duplicate += o.Duplicate
	s.Errors += o.Errors
	s.Deleted += o.Deleted
	s.NoMedia += o.NoMedia
	s.Unsupported += o.Unsupported
}

// Batch sizing thresholds: deeper queues get bigger batches.
const (
	batchSizeNormal  = 20
	batchSizeBusy    = 30
	batchSizeFlooded = 50

	depthBusy    = 200
	depthFlooded = 500
)

func batchSizeFor(depth int) int {
	switch {
	case depth > depthFlooded:
		return batchSizeFlooded
	case depth > depthBusy:
		return batchSizeBusy
	default:
		return batchSizeNormal
	}
}

// Worker drains the queue into adaptively sized batches and persists them.
type Worker struct {
	queue *Queue
	sems  *limiter.SemaphoreSet
	inv   *cache.Invalidator

	// progress fires after every persisted batch with the running totals.
	progress func(Stats)

	// paused parks the drain loop while a range index owns the
	// persistence path.
	paused atomic.Bool

	mu    sync.Mutex
	stats Stats
}

func NewWorker(q *Queue, sems *limiter.SemaphoreSet, c *cache.Cache, progress func(Stats)) *Worker {
	if progress == nil {
		progress = func(Stats) {}
	}
	return &Worker{
		queue:    q,
		sems:     sems,
		inv:      cache.NewInvalidator(c),
		progress: progress,
	}
}

// Stats returns a copy of the running totals. Safe to call from any
// goroutine while the drain loop runs.
func (w *Worker) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Pause parks the drain loop after its current batch; it reports false when
// the loop is already paused. Accepted items stay queued until Resume.
func (w *Worker) Pause() bool { return w.paused.CompareAndSwap(false, true) }

// Resume lets a paused drain loop pick the queue back up.
func (w *Worker) Resume() { w.paused.Store(false) }

// Run drains the queue until ctx is cancelled. The current batch is always
// completed before exit so accepted items are never lost to shutdown.
func (w *Worker) Run(ctx context.Context) {
	reconcileTick := time.NewTicker(time.Second)
	defer reconcileTick.Stop()

	for {
		if w.paused.Load() {
			select {
			case <-ctx.Done():
				logger.Logger.Info("ingest worker stopping", zap.Int("total_files", w.Stats().TotalFiles))
				return
			case <-reconcileTick.C:
			}
			continue
		}

		select {
		case <-ctx.Done():
			logger.Logger.Info("ingest worker stopping", zap.Int("total_files", w.Stats().TotalFiles))
			return
		case <-reconcileTick.C:
			w.queue.reconcile()
		case first := <-w.queue.primary:
			batch := w.collectBatch(ctx, first)
			delta := w.persistBatch(ctx, batch)

			w.mu.Lock()
			w.stats.add(delta)
			snapshot := w.stats
			w.mu.Unlock()

			recordIngestMetrics(delta)
			monitor.SetQueueGauges(w.queue.Depth(), w.queue.OverflowDepth(), w.queue.Dropped())
			w.progress(snapshot)
		}
	}
}

// collectBatch gathers up to the adaptive batch size, waiting at most the
// configured deadline for stragglers.
func (w *Worker) collectBatch(ctx context.Context, first Item) []Item {
	size := batchSizeFor(w.queue.Depth())
	batch := make([]Item, 1, size)
	batch[0] = first

	deadline := time.NewTimer(config.IngestBatchDeadline)
	defer deadline.Stop()

	for len(batch) < size {
		select {
		case <-ctx.Done():
			return batch
		case <-deadline.C:
			return batch
		case item := <-w.queue.primary:
			batch = append(batch, item)
		}
	}
	return batch
}

// persistBatch runs the shared persistence path: extract, one duplicate
// round-trip, then a bulk insert under the database_write semaphore.
func recordIngestMetrics(s Stats) {
	monitor.IngestProcessed.WithLabelValues("indexed").Add(float64(s.TotalFiles))
	monitor.IngestProcessed.WithLabelValues("duplicate").Add(float64(s.Duplicate))
	monitor.IngestProcessed.WithLabelValues("error").Add(float64(s.Errors))
	monitor.IngestProcessed.WithLabelValues("deleted").Add(float64(s.Deleted))
	monitor.IngestProcessed.WithLabelValues("no_media").Add(float64(s.NoMedia))
	monitor.IngestProcessed.WithLabelValues("unsupported").Add(float64(s.Unsupported))
}

func (w *Worker) persistBatch(ctx context.Context, batch []Item) Stats {
	var out Stats
	out.TotalMessages = len(batch)

	var candidates []*model.MediaFile
	for _, item := range batch {
		f, skip := Extract(item.Message)
		switch skip {
		case SkipDeleted:
			out.Deleted++
		case SkipNoMedia:
			out.NoMedia++
		case SkipUnsupported:
			out.Unsupported++
		default:
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 0 {
		return out
	}

	ids := make([]string, 0, len(candidates))
	for _, f := range candidates {
		ids = append(ids, f.FileUniqueID)
	}
	existing, err := model.BatchCheckDuplicates(ids)
	if err != nil {
		logger.Logger.Error("duplicate check failed, counting batch as errors", zap.Error(err))
		out.Errors += len(candidates)
		return out
	}

	// Partition, deduping within the batch itself as well.
	seen := make(map[string]bool, len(candidates))
	var toSave []*model.MediaFile
	for _, f := range candidates {
		if _, dup := existing[f.FileUniqueID]; dup || seen[f.FileUniqueID] {
			out.Duplicate++
			continue
		}
		seen[f.FileUniqueID] = true
		toSave = append(toSave, f)
	}
	if len(toSave) == 0 {
		return out
	}

	var saved, errCount int
	werr := w.sems.With(ctx, limiter.SemDatabaseWrite, func() error {
		saved, errCount = model.BulkSaveMedia(toSave)
		return nil
	})
	if werr != nil {
		out.Errors += len(toSave)
		return out
	}
	out.TotalFiles += saved
	out.Errors += errCount

	w.inv.SearchResults(ctx)
	w.inv.FileStats(ctx)
	return out
}
