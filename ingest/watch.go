package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/Laisky/zap"

	"github.com/leafdriven/mediadex/common/config"
	"github.com/leafdriven/mediadex/common/logger"
	"github.com/leafdriven/mediadex/model"
	"github.com/leafdriven/mediadex/platform"
)

// Watch maintains the live monitored-channel set and enqueues media
// messages arriving from enabled channels.
type Watch struct {
	queue *Queue

	mu       sync.RWMutex
	channels map[int64]bool
}

func NewWatch(q *Queue) *Watch {
	return &Watch{queue: q, channels: map[int64]bool{}}
}

// Watched reports whether a chat is currently monitored.
func (w *Watch) Watched(chatID int64) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.channels[chatID]
}

// WatchedCount returns how many chats are currently monitored.
func (w *Watch) WatchedCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.channels)
}

// HandleMessage is the platform hook: messages from unmonitored chats are
// ignored, everything else is queued.
func (w *Watch) HandleMessage(msg platform.Message) {
	if !w.Watched(msg.ChatID) {
		return
	}
	w.queue.Enqueue(Item{Message: msg, ReceivedAt: time.Now()})
}

// Reconcile refreshes the monitored set from the channel registry once.
func (w *Watch) Reconcile() {
	enabled, err := model.EnabledChannelIDs()
	if err != nil {
		logger.Logger.Warn("channel set reconcile failed, keeping previous set", zap.Error(err))
		return
	}
	w.mu.Lock()
	w.channels = enabled
	w.mu.Unlock()
}

// Run reconciles on the configured interval until ctx is cancelled.
func (w *Watch) Run(ctx context.Context) {
	w.Reconcile()
	tick := time.NewTicker(config.ChannelReconcileInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			w.Reconcile()
		}
	}
}
