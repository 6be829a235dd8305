package producer

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/JakeFAU/scrape-ingest/internal/ingest"
	"github.com/JakeFAU/scrape-ingest/internal/metrics"
)

// QueueSink forwards a session's items into the record queue, stamping each
// with the session's source.
type QueueSink struct {
	ctx    context.Context //nolint:containedctx // Sink.Accept carries no context of its own.
	queue  ingest.Queue
	source string
	count  atomic.Int64
}

// NewQueueSink binds source to queue for the lifetime of ctx.
func NewQueueSink(ctx context.Context, queue ingest.Queue, source string) *QueueSink {
	return &QueueSink{ctx: ctx, queue: queue, source: source}
}

// Accept enqueues item.
func (s *QueueSink) Accept(item ingest.RawItem) error {
	item.Source = s.source
	if err := s.queue.Enqueue(s.ctx, item); err != nil {
		return fmt.Errorf("enqueue item %q from %s: %w", item.ID, s.source, err)
	}
	s.count.Add(1)
	metrics.ObserveEnqueued(s.source)
	return nil
}

// Count returns the number of items accepted so far.
func (s *QueueSink) Count() int {
	return int(s.count.Load())
}
