// Package producer runs one scraping session and feeds its results into the
// shared record queue.
package producer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/scrape-ingest/internal/ingest"
	"github.com/JakeFAU/scrape-ingest/internal/logging"
	"github.com/JakeFAU/scrape-ingest/internal/metrics"
)

// Result outcomes recorded in metrics.
const (
	resultSuccess = "success"
	resultEmpty   = "empty"
	resultError   = "error"
)

// Config controls a single producer.
type Config struct {
	Source string
	Limit  int
	Debug  bool
	// SuppressOutput quiets session logging below warn level unless Debug is set.
	SuppressOutput bool
}

// Result reports how a session ended.
type Result struct {
	Source   string
	Items    int
	Err      error
	Duration time.Duration
}

// Producer binds one scraping session to the queue.
type Producer struct {
	scraper ingest.Scraper
	queue   ingest.Queue
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Producer.
func New(scraper ingest.Scraper, queue ingest.Queue, cfg Config, logger *zap.Logger) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Producer{
		scraper: scraper,
		queue:   queue,
		cfg:     cfg,
		logger:  logger.With(zap.String("source", cfg.Source)),
	}
}

// Run executes the session synchronously. Failures, including panics inside
// the scraper, are logged and returned in the Result; they never propagate.
func (p *Producer) Run(ctx context.Context) (res Result) {
	start := time.Now()
	sink := NewQueueSink(ctx, p.queue, p.cfg.Source)
	res.Source = p.cfg.Source

	metrics.IncActiveProducers()
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("session %s panicked: %v", p.cfg.Source, r)
		}
		metrics.DecActiveProducers()
		res.Items = sink.Count()
		res.Duration = time.Since(start)
		p.report(res)
	}()

	sessionLogger := p.logger.Named("session")
	if p.cfg.SuppressOutput {
		sessionLogger = logging.Quiet(sessionLogger, p.cfg.Debug)
	}
	sessionCtx := logging.WithContext(ctx, sessionLogger)

	p.logger.Info("starting session", zap.Int("limit", p.cfg.Limit))
	err := p.scraper.Search(sessionCtx, ingest.SessionConfig{
		Source: p.cfg.Source,
		Limit:  p.cfg.Limit,
		Debug:  p.cfg.Debug,
	}, sink)
	if err != nil {
		res.Err = fmt.Errorf("session %s: %w", p.cfg.Source, err)
	}
	return res
}

func (p *Producer) report(res Result) {
	switch {
	case res.Err != nil:
		p.logger.Error("session failed",
			zap.Int("items", res.Items),
			zap.Duration("elapsed", res.Duration),
			zap.Error(res.Err),
		)
		metrics.ObserveProducerFinished(resultError)
	case res.Items == 0:
		p.logger.Warn("session produced no items", zap.Duration("elapsed", res.Duration))
		metrics.ObserveProducerFinished(resultEmpty)
	default:
		p.logger.Info("session finished",
			zap.Int("items", res.Items),
			zap.Duration("elapsed", res.Duration),
		)
		metrics.ObserveProducerFinished(resultSuccess)
	}
}
