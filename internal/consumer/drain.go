package consumer

import (
	"context"
	"iter"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/scrape-ingest/internal/completion"
	"github.com/JakeFAU/scrape-ingest/internal/ingest"
	"github.com/JakeFAU/scrape-ingest/internal/metrics"
)

// Drain turns a polling queue into a lazy sequence of adapted records.
//
// The sequence ends once the completion signal has been observed set and a
// poll timed out on an empty queue, at most one poll timeout after Set. It
// also ends on context cancellation or queue shutdown, in which case Err
// reports the cause.
type Drain struct {
	queue       ingest.Queue
	signal      *completion.Signal
	pollTimeout time.Duration
	logger      *zap.Logger

	err error
}

// NewDrain constructs a Drain. pollTimeout must be positive.
func NewDrain(queue ingest.Queue, signal *completion.Signal, pollTimeout time.Duration, logger *zap.Logger) *Drain {
	metrics.Init()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Drain{
		queue:       queue,
		signal:      signal,
		pollTimeout: pollTimeout,
		logger:      logger,
	}
}

// All returns the drain sequence. It is single-use: iterate it once.
func (d *Drain) All(ctx context.Context) iter.Seq[ingest.Entry] {
	return func(yield func(ingest.Entry) bool) {
		for {
			// Read the flag before polling: a timeout only ends the drain if
			// the signal was already set when the poll began.
			finished := d.signal.IsSet()
			item, ok, err := d.poll(ctx, d.pollTimeout)
			if err != nil {
				return
			}
			if !ok {
				metrics.ObservePollTimeout()
				if finished {
					d.logger.Debug("queue drained after completion")
					return
				}
				if d.signal.IsSet() {
					// Set during the poll: every enqueue happened before Set,
					// so whatever is left can be taken without waiting.
					d.flush(ctx, yield)
					return
				}
				continue
			}
			if !yield(entryOf(item)) {
				return
			}
		}
	}
}

func (d *Drain) flush(ctx context.Context, yield func(ingest.Entry) bool) {
	for {
		item, ok, err := d.poll(ctx, 0)
		if err != nil || !ok {
			d.logger.Debug("queue drained after completion")
			return
		}
		if !yield(entryOf(item)) {
			return
		}
	}
}

func (d *Drain) poll(ctx context.Context, timeout time.Duration) (ingest.RawItem, bool, error) {
	item, ok, err := d.queue.Dequeue(ctx, timeout)
	metrics.SetQueueDepth(d.queue.Size())
	if err != nil {
		d.err = err
		d.logger.Warn("drain stopped", zap.Error(err))
	}
	return item, ok, err
}

func entryOf(item ingest.RawItem) ingest.Entry {
	return ingest.Entry{Source: item.Source, Record: ingest.Adapt(item)}
}

// Err returns the error that ended the sequence early, if any.
func (d *Drain) Err() error {
	return d.err
}
