// Package pipeline coordinates producers, the record queue and the consumer
// for one ingestion run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/scrape-ingest/internal/clock/system"
	"github.com/JakeFAU/scrape-ingest/internal/completion"
	"github.com/JakeFAU/scrape-ingest/internal/consumer"
	"github.com/JakeFAU/scrape-ingest/internal/id/uuid"
	"github.com/JakeFAU/scrape-ingest/internal/ingest"
	"github.com/JakeFAU/scrape-ingest/internal/producer"
	"github.com/JakeFAU/scrape-ingest/internal/queue/memory"
)

var (
	// ErrQueueNotEmpty reports records left behind after the consumer finished.
	ErrQueueNotEmpty = errors.New("queue not empty after drain")
	// ErrAlreadyStarted is returned when Run is called more than once.
	ErrAlreadyStarted = errors.New("pipeline already started")
)

// Report summarizes a run.
type Report struct {
	RunID      string            `json:"run_id"`
	Processor  Processor         `json:"processor"`
	Producers  []producer.Result `json:"-"`
	Consumer   consumer.Stats    `json:"consumer"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

// FailedProducers counts sessions that ended with an error.
func (r Report) FailedProducers() int {
	n := 0
	for _, p := range r.Producers {
		if p.Err != nil {
			n++
		}
	}
	return n
}

// Status is a point-in-time view of the coordinator.
type Status struct {
	RunID      string   `json:"run_id,omitempty"`
	State      State    `json:"state"`
	Processor  string   `json:"processor"`
	Sources    []string `json:"sources"`
	QueueDepth int      `json:"queue_depth"`
}

// Coordinator runs the producers and the consumer for one ingestion run.
type Coordinator struct {
	cfg     Config
	scraper ingest.Scraper
	storage ingest.StorageClient
	logger  *zap.Logger
	ids     *uuid.Generator
	clock   ingest.Clock

	state atomic.Int32
	mu    sync.Mutex
	runID string
	queue *memory.Queue
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithClock replaces the wall clock used for report timestamps.
func WithClock(clock ingest.Clock) Option {
	return func(c *Coordinator) { c.clock = clock }
}

// New validates cfg and builds a Coordinator. A nil storage client runs the
// pipeline dry: chunks are logged instead of streamed.
func New(
	cfg Config,
	scraper ingest.Scraper,
	storage ingest.StorageClient,
	logger *zap.Logger,
	opts ...Option,
) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	if scraper == nil {
		return nil, errors.New("scraper is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		cfg:     cfg,
		scraper: scraper,
		storage: storage,
		logger:  logger,
		ids:     uuid.NewUUIDGenerator(),
		clock:   system.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Status reports the coordinator's current state.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{
		RunID:     c.runID,
		State:     State(c.state.Load()),
		Processor: string(c.cfg.Processor),
		Sources:   append([]string(nil), c.cfg.Sources...),
	}
	if c.queue != nil {
		st.QueueDepth = c.queue.Size()
	}
	return st
}

// Run executes the configured processor once.
func (c *Coordinator) Run(ctx context.Context) (Report, error) {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateConsumerStarted)) {
		return Report{}, ErrAlreadyStarted
	}
	runID, err := c.ids.NewID()
	if err != nil {
		return Report{}, fmt.Errorf("assign run id: %w", err)
	}
	q := memory.NewQueue()
	c.mu.Lock()
	c.runID = runID
	c.queue = q
	c.mu.Unlock()

	report := Report{RunID: runID, Processor: c.cfg.Processor, StartedAt: c.clock.Now()}
	logger := c.logger.With(zap.String("run_id", runID))
	logger.Info("pipeline starting",
		zap.String("processor", string(c.cfg.Processor)),
		zap.Strings("sources", c.cfg.Sources),
		zap.Int("chunk_size", c.cfg.ChunkSize),
	)

	if c.cfg.Processor == ProcessorSequential {
		err = c.runSequential(ctx, q, &report, logger)
	} else {
		err = c.runConcurrent(ctx, q, &report, logger)
	}
	report.FinishedAt = c.clock.Now()
	if err != nil {
		return report, err
	}
	c.setState(StateDone)
	logger.Info("pipeline finished",
		zap.Int("records", report.Consumer.Records),
		zap.Int64("stored", report.Consumer.Stored),
		zap.Int("chunks", report.Consumer.Chunks),
		zap.Int("failed_producers", report.FailedProducers()),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

func (c *Coordinator) runConcurrent(ctx context.Context, q *memory.Queue, report *Report, logger *zap.Logger) error {
	signal := completion.New()
	worker := consumer.New(q, signal, c.storage, consumer.Config{
		ChunkSize:   c.cfg.ChunkSize,
		PollTimeout: c.cfg.PollTimeout,
	}, logger.Named("consumer"))

	type consumerResult struct {
		stats consumer.Stats
		err   error
	}
	consumerDone := make(chan consumerResult, 1)
	go func() {
		stats, err := worker.Run(ctx)
		consumerDone <- consumerResult{stats: stats, err: err}
	}()

	c.setState(StateProducersRunning)
	report.Producers = c.runProducers(ctx, q, logger)

	c.setState(StateDraining)
	signal.Set()
	res := <-consumerDone
	report.Consumer = res.stats
	if res.err != nil {
		return fmt.Errorf("consumer: %w", res.err)
	}
	return checkDrained(q)
}

// runProducers fans sessions out and waits for all of them. Producers never
// return errors to the group, so one failing session cannot cancel the others.
func (c *Coordinator) runProducers(ctx context.Context, q ingest.Queue, logger *zap.Logger) []producer.Result {
	results := make([]producer.Result, len(c.cfg.Sources))
	var g errgroup.Group
	g.SetLimit(len(c.cfg.Sources))
	for i, source := range c.cfg.Sources {
		g.Go(func() error {
			results[i] = c.newProducer(q, source, logger).Run(ctx)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (c *Coordinator) newProducer(q ingest.Queue, source string, logger *zap.Logger) *producer.Producer {
	return producer.New(c.scraper, q, producer.Config{
		Source:         source,
		Limit:          c.cfg.Limit,
		Debug:          c.cfg.Debug,
		SuppressOutput: c.cfg.SuppressOutput,
	}, logger.Named("producer"))
}

func (c *Coordinator) setState(s State) {
	c.state.Store(int32(s))
}

func checkDrained(q *memory.Queue) error {
	if n := q.Size(); n != 0 {
		return fmt.Errorf("%w: %d records still queued", ErrQueueNotEmpty, n)
	}
	if n := q.Unfinished(); n != 0 {
		return fmt.Errorf("%w: %d records not acknowledged", ErrQueueNotEmpty, n)
	}
	return nil
}
