package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/scrape-ingest/internal/consumer"
	"github.com/JakeFAU/scrape-ingest/internal/ingest"
	"github.com/JakeFAU/scrape-ingest/internal/queue/memory"
)

// runSequential runs one session at a time. Each session is scraped to
// completion and then shipped to storage as a single stream.
func (c *Coordinator) runSequential(ctx context.Context, q *memory.Queue, report *Report, logger *zap.Logger) error {
	worker := consumer.New(q, nil, c.storage, consumer.Config{
		ChunkSize:   c.cfg.ChunkSize,
		PollTimeout: c.cfg.PollTimeout,
	}, logger.Named("consumer"))
	report.Consumer.PerSource = make(map[string]int)

	c.setState(StateProducersRunning)
	for _, source := range c.cfg.Sources {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("sequential run canceled: %w", err)
		}
		res := c.newProducer(q, source, logger).Run(ctx)
		report.Producers = append(report.Producers, res)

		entries, err := drainNow(ctx, q)
		if err != nil {
			return fmt.Errorf("drain %s: %w", source, err)
		}
		if len(entries) == 0 {
			logger.Error("no records collected", zap.String("source", source))
			continue
		}
		report.Consumer.Add(worker.Deliver(ctx, entries))
		q.TaskDone(len(entries))
	}

	c.setState(StateDraining)
	return checkDrained(q)
}

// drainNow empties whatever is currently queued without waiting.
func drainNow(ctx context.Context, q ingest.Queue) ([]ingest.Entry, error) {
	var entries []ingest.Entry
	for {
		item, ok, err := q.Dequeue(ctx, 0)
		if err != nil {
			return entries, err
		}
		if !ok {
			return entries, nil
		}
		entries = append(entries, ingest.Entry{Source: item.Source, Record: ingest.Adapt(item)})
	}
}
