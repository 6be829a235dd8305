// Package cmd defines and implements the CLI commands for the scrape-ingest executable.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrape-ingest/internal/logging"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape-ingest",
		Short: "Scrapes sources concurrently and streams the records to storage.",
		Long: `scrape-ingest runs one scraping session per source, funnels every result
through a shared in-memory queue and streams fixed-size chunks to the
storage service over gRPC.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	cmd.PersistentFlags().Bool("development", false, "use the human-friendly development logger")

	cmd.AddCommand(newIngestCmd())
	return cmd
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the running command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logger, lerr := logging.New(false, "")
		if lerr != nil {
			logger = zap.NewExample()
		}
		stop()
		logger.Fatal("command execution failed", zap.Error(err))
	}
}
