// Package deliver sends indexed files to principals: single sends, result
// session bulk sends and channel range copies, all charged against quota and
// routed through flood control.
package deliver

import (
	"context"
	"sync"
	"time"

	"github.com/Laisky/zap"

	"github.com/leafdriven/mediadex/common/logger"
	"github.com/leafdriven/mediadex/platform"
)

// AutoDeleteTracker schedules sent messages for deletion after the display
// lifetime. Tasks are registered so shutdown cancels every pending timer
// instead of leaking goroutines.
type AutoDeleteTracker struct {
	client platform.Client
	caller *platform.Caller

	mu     sync.Mutex
	nextID int64
	tasks  map[int64]*time.Timer
	closed bool
}

func NewAutoDeleteTracker(client platform.Client, caller *platform.Caller) *AutoDeleteTracker {
	return &AutoDeleteTracker{
		client: client,
		caller: caller,
		tasks:  map[int64]*time.Timer{},
	}
}

// Schedule arms a deletion after the given lifetime. A zero or negative
// lifetime disables auto-deletion for that message.
func (t *AutoDeleteTracker) Schedule(chatID int64, messageID int, after time.Duration) {
	if after <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.nextID++
	id := t.nextID
	t.tasks[id] = time.AfterFunc(after, func() {
		t.fire(id, chatID, messageID)
	})
}

func (t *AutoDeleteTracker) fire(id, chatID int64, messageID int) {
	t.mu.Lock()
	delete(t.tasks, id)
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := t.caller.Invoke(ctx, "delete_messages", func(ctx context.Context) error {
		return t.client.DeleteMessages(ctx, chatID, []int{messageID})
	})
	if err != nil {
		logger.Logger.Warn("auto-delete failed",
			zap.Int64("chat", chatID), zap.Int("message", messageID), zap.Error(err))
	}
}

// Pending reports how many deletions are armed.
func (t *AutoDeleteTracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tasks)
}

// Shutdown cancels every pending task.
func (t *AutoDeleteTracker) Shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for id, timer := range t.tasks {
		timer.Stop()
		delete(t.tasks, id)
	}
}
