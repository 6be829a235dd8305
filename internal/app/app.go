// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/scrape-ingest/internal/api"
	"github.com/JakeFAU/scrape-ingest/internal/config"
	"github.com/JakeFAU/scrape-ingest/internal/ingest"
	"github.com/JakeFAU/scrape-ingest/internal/metrics"
	"github.com/JakeFAU/scrape-ingest/internal/pipeline"
	collyscraper "github.com/JakeFAU/scrape-ingest/internal/scraper/colly"
	grpcstorage "github.com/JakeFAU/scrape-ingest/internal/storage/grpc"
)

// App holds the services for one ingestion run: the storage client, the
// scraper, the coordinator and the optional ops listener.
type App struct {
	cfg         config.Config
	logger      *zap.Logger
	storage     *grpcstorage.Client
	coordinator *pipeline.Coordinator
	ops         *api.Server
}

// Option customizes NewApp.
type Option func(*options)

type options struct {
	scraper ingest.Scraper
	storage *grpcstorage.Client
}

// WithScraper replaces the colly scraper.
func WithScraper(s ingest.Scraper) Option {
	return func(o *options) { o.scraper = s }
}

// WithStorageClient replaces the dialed storage client.
func WithStorageClient(c *grpcstorage.Client) Option {
	return func(o *options) { o.storage = c }
}

// NewApp wires every service from cfg. It fails fast if any of them cannot be built.
func NewApp(cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{cfg: cfg, logger: logger}

	if o.scraper == nil {
		s, err := collyscraper.New(collyscraper.Config{
			URLTemplate:       cfg.Scraper.URLTemplate,
			UserAgent:         cfg.Scraper.UserAgent,
			RequestTimeout:    cfg.Scraper.RequestTimeout,
			RequestsPerSecond: cfg.Scraper.RequestsPerSecond,
			ItemSelector:      cfg.Scraper.ItemSelector,
			TextSelector:      cfg.Scraper.TextSelector,
			NextSelector:      cfg.Scraper.NextSelector,
		}, logger.Named("scraper"))
		if err != nil {
			return nil, fmt.Errorf("init scraper: %w", err)
		}
		o.scraper = s
	}

	// A typed nil client must not reach the coordinator as a non-nil interface.
	var storage ingest.StorageClient
	switch {
	case cfg.Storage.DryRun:
		logger.Info("dry run: records will not be sent to storage")
	case o.storage != nil:
		a.storage = o.storage
		storage = o.storage
	default:
		client, err := grpcstorage.Dial(grpcstorage.Config{
			Host:        cfg.Storage.Host,
			Port:        cfg.Storage.Port,
			Attempts:    cfg.Storage.Attempts,
			RetryDelay:  cfg.Storage.RetryDelay,
			CallTimeout: cfg.Storage.CallTimeout,
		}, logger.Named("storage"))
		if err != nil {
			return nil, fmt.Errorf("init storage client: %w", err)
		}
		logger.Info("storage client ready",
			zap.String("host", cfg.Storage.Host),
			zap.Int("port", cfg.Storage.Port),
		)
		a.storage = client
		storage = client
	}

	coordinator, err := pipeline.New(pipeline.Config{
		Processor:      pipeline.Processor(cfg.Processor),
		ChunkSize:      cfg.Pipeline.ChunkSize,
		PollTimeout:    cfg.Pipeline.PollTimeout,
		Sources:        cfg.Sources,
		Limit:          cfg.Pipeline.Limit,
		Debug:          cfg.Pipeline.Debug,
		SuppressOutput: cfg.Pipeline.SuppressOutput,
	}, o.scraper, storage, logger.Named("pipeline"))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init pipeline: %w", err)
	}
	a.coordinator = coordinator
	a.ops = api.NewServer(coordinator, logger.Named("ops"))
	return a, nil
}

// Coordinator exposes the pipeline coordinator.
func (a *App) Coordinator() *pipeline.Coordinator {
	return a.coordinator
}

// OpsHandler returns the ops HTTP handler.
func (a *App) OpsHandler() http.Handler {
	return a.ops.Handler()
}

// Run executes the pipeline, serving the ops listener for its duration when configured.
func (a *App) Run(ctx context.Context) (pipeline.Report, error) {
	if a.cfg.Ops.Addr != "" {
		stop, err := a.serveOps(a.cfg.Ops.Addr)
		if err != nil {
			return pipeline.Report{}, err
		}
		defer stop()
	}
	report, err := a.coordinator.Run(ctx)
	if err != nil {
		return report, fmt.Errorf("run pipeline: %w", err)
	}
	return report, nil
}

func (a *App) serveOps(addr string) (func(), error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen ops on %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           a.ops.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("ops server failed", zap.Error(err))
		}
	}()
	a.logger.Info("ops server listening", zap.String("addr", lis.Addr().String()))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			a.logger.Warn("ops server shutdown", zap.Error(err))
		}
	}, nil
}

// Close releases the storage connection.
func (a *App) Close() {
	if a.storage == nil {
		return
	}
	if err := a.storage.Close(); err != nil {
		a.logger.Warn("error closing storage connection", zap.Error(err))
	}
}
