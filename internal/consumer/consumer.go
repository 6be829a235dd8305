// Package consumer implements the single consumer that drains the record
// queue in fixed-size chunks and streams each chunk to storage.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/scrape-ingest/internal/chunk"
	"github.com/JakeFAU/scrape-ingest/internal/completion"
	"github.com/JakeFAU/scrape-ingest/internal/ingest"
	"github.com/JakeFAU/scrape-ingest/internal/metrics"
)

// Config controls Worker behavior.
type Config struct {
	ChunkSize   int
	PollTimeout time.Duration
}

// Stats summarizes one consumer run.
type Stats struct {
	Chunks        int            `json:"chunks"`
	Records       int            `json:"records"`
	Received      int64          `json:"received"`
	Stored        int64          `json:"stored"`
	FailedChunks  int            `json:"failed_chunks"`
	FailedRecords int            `json:"failed_records"`
	PerSource     map[string]int `json:"per_source"`
}

// Add folds o into s.
func (s *Stats) Add(o Stats) {
	s.Chunks += o.Chunks
	s.Records += o.Records
	s.Received += o.Received
	s.Stored += o.Stored
	s.FailedChunks += o.FailedChunks
	s.FailedRecords += o.FailedRecords
	if s.PerSource == nil {
		s.PerSource = make(map[string]int)
	}
	for k, v := range o.PerSource {
		s.PerSource[k] += v
	}
}

// Worker drains the queue until the completion signal is set and the queue
// is empty. A nil storage client puts the worker in dry-run mode: chunks are
// logged and acknowledged without being sent anywhere.
type Worker struct {
	queue   ingest.Queue
	signal  *completion.Signal
	storage ingest.StorageClient
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Worker.
func New(
	queue ingest.Queue,
	signal *completion.Signal,
	storage ingest.StorageClient,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Worker{
		queue:   queue,
		signal:  signal,
		storage: storage,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run blocks until the drain sequence ends. Storage failures are logged and
// counted but never stop consumption; the returned error is non-nil only
// when the drain itself was cut short.
func (w *Worker) Run(ctx context.Context) (Stats, error) {
	stats := Stats{PerSource: make(map[string]int)}

	drain := NewDrain(w.queue, w.signal, w.cfg.PollTimeout, w.logger.Named("drain"))
	groups, err := chunk.Group(drain.All(ctx), w.cfg.ChunkSize)
	if err != nil {
		return stats, fmt.Errorf("group records: %w", err)
	}

	for entries := range groups {
		stats.Add(w.Deliver(ctx, entries))
		w.queue.TaskDone(len(entries))
	}

	if err := drain.Err(); err != nil {
		return stats, fmt.Errorf("drain queue: %w", err)
	}
	w.logger.Info("consumer finished",
		zap.Int("chunks", stats.Chunks),
		zap.Int("records", stats.Records),
		zap.Int64("stored", stats.Stored),
		zap.Int("failed_chunks", stats.FailedChunks),
	)
	return stats, nil
}

// Deliver streams entries to storage as one call and reports the outcome.
// It does not touch the queue's task bookkeeping.
func (w *Worker) Deliver(ctx context.Context, entries []ingest.Entry) Stats {
	stats := Stats{Chunks: 1, Records: len(entries), PerSource: make(map[string]int)}
	if len(entries) == 0 {
		stats.Chunks = 0
		return stats
	}

	requests := make([]ingest.StoreRequest, 0, len(entries))
	for _, e := range entries {
		requests = append(requests, ingest.StoreRequest{Record: e.Record})
		stats.PerSource[e.Source]++
	}
	breakdown := Breakdown(entries)

	if w.storage == nil {
		w.logger.Info("dry run: chunk not sent",
			zap.Int("records", len(entries)),
			zap.String("sources", breakdown),
		)
		metrics.ObserveChunk(metrics.ChunkDryRun, len(entries), 0, 0)
		return stats
	}

	w.logger.Info("streaming chunk to storage",
		zap.Int("records", len(entries)),
		zap.String("sources", breakdown),
	)
	start := time.Now()
	resp, err := w.storage.StoreStream(ctx, requests)
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			w.logger.Warn("store stream canceled", zap.Int("records", len(entries)))
		} else {
			w.logger.Error("store stream failed",
				zap.Int("records", len(entries)),
				zap.String("sources", breakdown),
				zap.Error(err),
			)
		}
		metrics.ObserveChunk(metrics.ChunkFailed, len(entries), 0, elapsed)
		stats.FailedChunks = 1
		stats.FailedRecords = len(entries)
		return stats
	}

	w.logger.Info("storage response",
		zap.Int64("records_received", resp.RecordsReceived),
		zap.Int64("records_stored", resp.RecordsStored),
		zap.Duration("elapsed", elapsed),
	)
	metrics.ObserveChunk(metrics.ChunkStored, len(entries), resp.RecordsStored, elapsed)
	stats.Received = resp.RecordsReceived
	stats.Stored = resp.RecordsStored
	return stats
}

// Breakdown renders per-source record counts as "alice#12, bob#8", in order
// of first appearance.
func Breakdown(entries []ingest.Entry) string {
	counts := make(map[string]int)
	var order []string
	for _, e := range entries {
		if _, seen := counts[e.Source]; !seen {
			order = append(order, e.Source)
		}
		counts[e.Source]++
	}
	parts := make([]string, 0, len(order))
	for _, src := range order {
		parts = append(parts, fmt.Sprintf("%s#%d", src, counts[src]))
	}
	return strings.Join(parts, ", ")
}
