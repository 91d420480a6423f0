package anomaly

import (
	"sync"
	"time"

	"github.com/procureflow/procureflow/internal/db/models"
	"github.com/procureflow/procureflow/internal/telemetry"
)

// Item wraps a snapshot of a persisted audit record while it waits for
// classification. Items are ephemeral and process-local: losing one loses a
// verdict, never the audit record itself.
type Item struct {
	Record     models.AuditRecord
	RetryCount int
	QueuedAt   time.Time
	// NextRetryAt is zero for fresh items. After a failed attempt it holds the
	// earliest time the item may be dequeued again.
	NextRetryAt time.Time
}

// Queue is a bounded, mutex-guarded in-memory FIFO of classification work.
// It is safe for concurrent use: request goroutines enqueue while the
// processor's drain goroutine dequeues. The queue exclusively owns its items.
type Queue struct {
	mu       sync.Mutex
	items    []*Item
	capacity int
}

// NewQueue creates a queue bounded at capacity items. capacity <= 0 means
// unbounded.
func NewQueue(capacity int) *Queue {
	return &Queue{capacity: capacity}
}

// Enqueue appends a fresh item for the given record snapshot. It never blocks.
// Returns false when the queue is at capacity, in which case the item is
// dropped — the audit record stays durable, only its verdict is forgone.
func (q *Queue) Enqueue(rec models.AuditRecord) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.capacity > 0 && len(q.items) >= q.capacity {
		return false
	}

	q.items = append(q.items, &Item{
		Record:   rec,
		QueuedAt: time.Now(),
	})
	telemetry.AnomalyQueueDepth.Set(float64(len(q.items)))
	return true
}

// Requeue appends a previously dequeued item to the back of the queue for
// another attempt. Retried items line up behind newer arrivals; there is no
// cross-item ordering guarantee once an item has failed. Requeue ignores the
// capacity bound so a full queue cannot turn a bounded retry into a drop.
func (q *Queue) Requeue(item *Item) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, item)
	telemetry.AnomalyQueueDepth.Set(float64(len(q.items)))
}

// DequeueBatch atomically removes and returns up to n eligible items in FIFO
// order. An item is eligible when its NextRetryAt has passed (fresh items
// always are). Ineligible items keep their queue position, so a retried item
// is not reprocessed before its delay has elapsed.
func (q *Queue) DequeueBatch(n int, now time.Time) []*Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n <= 0 || len(q.items) == 0 {
		return nil
	}

	batch := make([]*Item, 0, n)
	remaining := q.items[:0]
	for _, item := range q.items {
		if len(batch) < n && !item.NextRetryAt.After(now) {
			batch = append(batch, item)
			continue
		}
		remaining = append(remaining, item)
	}
	// Clear the tail so dequeued items are not pinned by the backing array.
	for i := len(remaining); i < len(q.items); i++ {
		q.items[i] = nil
	}
	q.items = remaining

	telemetry.AnomalyQueueDepth.Set(float64(len(q.items)))
	return batch
}

// Len returns the number of items currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
