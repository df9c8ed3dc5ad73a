package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/config"
	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/telemetry"
	"github.com/spf13/cobra"
)

var envFiles []string

var rootCmd = &cobra.Command{
	Use:   "indexer",
	Short: "Queue based Elasticsearch indexer for the content repository",
	Long: `Rebuilds the Elasticsearch index of the content repository through a job queue.

A build creates a new index generation and queues one indexing job per batch
of records, followed by an alias switch job. Workers drain the queue; the
alias moves to the new generation once the batches are done.

Examples:
  indexer build                      # queue a rebuild of every workspace
  indexer work --exit-after 300      # run a worker for five minutes
  indexer status                     # show the queue counters`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "env file(s) to load before reading the environment")

	rootCmd.AddCommand(buildCmd, workCmd, flushCmd, statusCmd, serveCmd, migrateCmd)
}

// setup loads the configuration, installs logging and tracing and stores
// the configuration in the command context.
func setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return err
	}

	// Logs go to stderr; stdout carries the command reports.
	var logger *slog.Logger
	if cfg.Mode.IsDevelopment() {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	} else {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	}
	slog.SetDefault(logger)

	logger.Debug("configuration loaded",
		"mode", cfg.Mode,
		"elasticsearchURL", cfg.Elasticsearch.URL,
		"indexName", cfg.Index.Name,
		"queueDriver", cfg.Queue.Driver,
		"batchQueue", cfg.Queue.BatchName,
	)

	ctx := config.WithConfig(cmd.Context(), cfg)

	shutdown, err := telemetry.Setup(ctx)
	if err != nil {
		return err
	}
	cobra.OnFinalize(func() {
		if err := shutdown(context.Background()); err != nil {
			slog.Error("failed to shut down tracing", "error", err)
		}
	})

	cmd.SetContext(ctx)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
