package ingest

import (
	"sync"
	"time"

	"github.com/Laisky/zap"

	"github.com/leafdriven/mediadex/common/config"
	"github.com/leafdriven/mediadex/common/logger"
	"github.com/leafdriven/mediadex/platform"
)

// Item is one queued message awaiting persistence.
type Item struct {
	Message    platform.Message
	ReceivedAt time.Time
}

// dropWarnInterval rate-limits the oldest-item-dropped warning.
const dropWarnInterval = time.Minute

// dropAlertEvery is how many drops trigger one operator alert.
const dropAlertEvery = 10

// Queue is the bounded ingestion buffer: a primary channel plus an overflow
// ring. When both are full the oldest overflow item is dropped. Enqueue
// never blocks the platform handler.
type Queue struct {
	primary chan Item

	mu       sync.Mutex
	overflow []Item
	dropped  int
	lastWarn time.Time

	// alert is invoked every dropAlertEvery drops; wired to the operator
	// log channel in production.
	alert func(totalDropped int)
}

func NewQueue(alert func(totalDropped int)) *Queue {
	if alert == nil {
		alert = func(int) {}
	}
	return &Queue{
		primary: make(chan Item, config.IngestQueueCapacity),
		alert:   alert,
	}
}

// Enqueue offers an item. During shutdown items are silently dropped so the
// platform handler never stalls a drain.
func (q *Queue) Enqueue(item Item) {
	if isDraining() {
		return
	}
	select {
	case q.primary <- item:
		return
	default:
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.overflow) < config.IngestOverflowCapacity {
		q.overflow = append(q.overflow, item)
		return
	}

	// Both buffers full: shed the oldest overflow item.
	copy(q.overflow, q.overflow[1:])
	q.overflow[len(q.overflow)-1] = item
	q.dropped++

	if time.Since(q.lastWarn) >= dropWarnInterval {
		q.lastWarn = time.Now()
		logger.Logger.Warn("ingest buffers full, dropping oldest message",
			zap.Int("dropped_total", q.dropped),
			zap.Int("primary_depth", len(q.primary)),
			zap.Int("overflow_depth", len(q.overflow)))
	}
	if q.dropped%dropAlertEvery == 0 {
		q.alert(q.dropped)
	}
}

// Depth reports the primary queue depth; the worker sizes batches off it.
func (q *Queue) Depth() int { return len(q.primary) }

// Dropped reports how many items were shed since startup.
func (q *Queue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// OverflowDepth reports the overflow buffer depth.
func (q *Queue) OverflowDepth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.overflow)
}

// reconcile moves overflow items back into the primary queue while there is
// headroom. Called periodically by the worker.
func (q *Queue) reconcile() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.overflow) > 0 {
		select {
		case q.primary <- q.overflow[0]:
			q.overflow = q.overflow[1:]
		default:
			return
		}
	}
}
