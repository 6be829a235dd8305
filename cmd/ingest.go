package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrape-ingest/internal/app"
	"github.com/JakeFAU/scrape-ingest/internal/config"
	"github.com/JakeFAU/scrape-ingest/internal/logging"
)

// newApp is the application factory; tests swap it to inject fakes.
var newApp = func(cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.NewApp(cfg, logger)
}

// newIngestCmd creates and configures the 'ingest' subcommand.
func newIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Runs one ingestion pass over the given sources",
		Long: `Starts the consumer, runs one scraping session per source and streams
every collected record to the storage service in chunks. The command
returns once all sessions are done and the queue has been drained.`,
		Example: `  scrape-ingest ingest -u alice -u bob --limit 200
  scrape-ingest ingest --processor sequential -u alice --dry-run`,
		RunE: runIngestCommand,
	}

	f := cmd.Flags()
	f.String("processor", "concurrent", "session processor: concurrent or sequential")
	f.StringSliceP("sources", "u", nil, "source ids to scrape (repeatable or comma-separated)")
	f.IntP("limit", "l", 100, "maximum items per session, 0 for unlimited")
	f.Bool("debug", false, "show scraper output and debug events")
	f.Int("chunk-size", 20, "records per storage stream")
	f.Duration("poll-timeout", time.Second, "consumer poll timeout")
	f.String("storage-host", "localhost", "storage service host")
	f.Int("storage-port", 50052, "storage service port")
	f.Bool("dry-run", false, "log chunks instead of sending them to storage")
	f.String("ops-addr", "", "listen address for health and metrics, empty to disable")
	f.String("url-template", "http://localhost:8080/u/%s", "source listing URL, %s is replaced by the source id")
	f.Float64("requests-rate", 2, "scraper requests per second per host, 0 for unlimited")
	return cmd
}

func runIngestCommand(cmd *cobra.Command, _ []string) error {
	start := time.Now()

	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	appInstance, err := newApp(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer appInstance.Close()

	report, err := appInstance.Run(cmd.Context())
	elapsed := time.Since(start)
	if err != nil {
		logger.Error("ingest failed", zap.Duration("elapsed", elapsed), zap.Error(err))
		return err
	}

	logger.Info("ingest finished",
		zap.String("run_id", report.RunID),
		zap.Int("records", report.Consumer.Records),
		zap.Int64("stored", report.Consumer.Stored),
		zap.Int("failed_chunks", report.Consumer.FailedChunks),
		zap.Int("failed_producers", report.FailedProducers()),
		zap.Duration("elapsed", elapsed),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d records in %d chunks (%s)\n",
		report.RunID, report.Consumer.Records, report.Consumer.Chunks, elapsed.Round(time.Millisecond))
	return nil
}
