// Package memory provides the in-process record queue shared by producers and
// the consumer.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/scrape-ingest/internal/ingest"
)

// ErrClosed is returned by Enqueue and Dequeue once the queue is closed.
var ErrClosed = errors.New("queue closed")

// Queue is an unbounded multi-producer FIFO with timed, context-aware dequeue.
// Enqueue never blocks on capacity.
type Queue struct {
	mu         sync.Mutex
	items      []ingest.RawItem
	head       int
	unfinished int
	closed     bool
	// notify holds at most one pending wake-up for a waiting consumer.
	notify chan struct{}
}

var _ ingest.Queue = (*Queue)(nil)

// NewQueue constructs an empty queue.
func NewQueue() *Queue {
	return &Queue{
		notify: make(chan struct{}, 1),
	}
}

// Enqueue appends an item. It only fails when the queue has been closed or the
// context is already done.
func (q *Queue) Enqueue(ctx context.Context, item ingest.RawItem) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("enqueue canceled: %w", err)
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.items = append(q.items, item)
	q.unfinished++
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Dequeue pops the oldest item, waiting up to timeout for one to arrive. When
// the wait expires it returns ok == false and a nil error.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (ingest.RawItem, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		item, ok, err := q.pop()
		if err != nil || ok {
			return item, ok, err
		}
		select {
		case <-ctx.Done():
			return ingest.RawItem{}, false, fmt.Errorf("dequeue canceled: %w", ctx.Err())
		case <-timer.C:
			// One last look: an item may have landed while the timer fired.
			return q.pop()
		case <-q.notify:
		}
	}
}

func (q *Queue) pop() (ingest.RawItem, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head < len(q.items) {
		item := q.items[q.head]
		q.items[q.head] = ingest.RawItem{}
		q.head++
		if q.head == len(q.items) {
			q.items = q.items[:0]
			q.head = 0
		} else if q.head > 1024 && q.head*2 > len(q.items) {
			q.items = append(q.items[:0], q.items[q.head:]...)
			q.head = 0
		}
		if q.head < len(q.items) {
			// Keep the wake-up armed for the remaining items.
			select {
			case q.notify <- struct{}{}:
			default:
			}
		}
		return item, true, nil
	}
	if q.closed {
		return ingest.RawItem{}, false, ErrClosed
	}
	return ingest.RawItem{}, false, nil
}

// TaskDone marks n previously dequeued items as fully processed. Like
// sync.WaitGroup, it panics if that would acknowledge more items than were
// enqueued.
func (q *Queue) TaskDone(n int) {
	if n <= 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if n > q.unfinished {
		panic(fmt.Sprintf("memory: TaskDone(%d) with only %d unfinished items", n, q.unfinished))
	}
	q.unfinished -= n
}

// Unfinished reports items enqueued but not yet marked done.
func (q *Queue) Unfinished() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.unfinished
}

// Size returns the number of items waiting to be dequeued.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Close rejects further enqueues. Items already queued can still be drained.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
