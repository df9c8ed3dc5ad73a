package main

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/adapters/postgres"
	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/app"
	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/config"
	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/domain"
	"github.com/spf13/cobra"
)

var (
	buildWorkspace string

	workQueue     string
	workExitAfter int
	workLimit     int
	workVerbose   bool
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Queue a full rebuild of the index",
	Long: `Creates a new index generation and queues one indexing job per batch of
records and one alias switch job per dimension combination.

The batch queue must be empty. Run "indexer flush" to drop leftovers of an
earlier build.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := wire(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		report, err := s.orchestrator.Build(ctx, buildWorkspace)
		if err != nil {
			if domain.KindOf(err) == domain.KindPrecondition {
				return fmt.Errorf("%w\nFlush the queue first with: indexer flush", err)
			}
			return err
		}

		writeBuildReport(cmd.OutOrStdout(), report)
		return nil
	},
}

var workCmd = &cobra.Command{
	Use:   "work",
	Short: "Process jobs from a queue",
	Long: `Reserves and executes jobs one at a time. Start several workers to process
a build in parallel.

Examples:
  indexer work                        # run until interrupted
  indexer work --exit-after 300       # stop after five minutes
  indexer work --queue live --limit 10`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := config.GetConfig(ctx)

		queueName, err := queueByAlias(cfg, workQueue)
		if err != nil {
			return err
		}

		s, err := wire(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		result, err := app.NewWorker(s.jobs).Run(ctx, app.WorkerOptions{
			Queue:     queueName,
			ExitAfter: time.Duration(workExitAfter) * time.Second,
			Limit:     workLimit,
			Verbose:   workVerbose,
			Out:       cmd.OutOrStdout(),
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Worker stopped (%s): %d jobs executed, %d failed\n",
			result.Reason, result.Executed, result.Failed)
		return nil
	},
}

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Drop every message of the batch queue",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := wire(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		report, err := s.orchestrator.Flush(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Flushed queue %s\n", config.GetConfig(ctx).Queue.BatchName)
		app.WriteReport(cmd.OutOrStdout(), report)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the queue counters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := wire(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		report, err := s.orchestrator.Status(ctx)
		if err != nil {
			return err
		}
		app.WriteReport(cmd.OutOrStdout(), report)
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate [up|down N]",
	Short: "Apply or roll back the database schema",
	Args:  cobra.RangeArgs(0, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.GetConfig(cmd.Context())

		direction := "up"
		if len(args) > 0 {
			direction = args[0]
		}

		switch direction {
		case "up":
			if err := postgres.RunMigrations(cfg.Database.URL); err != nil {
				return err
			}
			slog.Info("database schema is up to date")
			return nil
		case "down":
			steps := 1
			if len(args) == 2 {
				n, err := strconv.Atoi(args[1])
				if err != nil || n <= 0 {
					return fmt.Errorf("invalid number of steps %q", args[1])
				}
				steps = n
			}
			if err := postgres.RollbackMigrations(cfg.Database.URL, steps); err != nil {
				return err
			}
			slog.Info("rolled back migrations", "steps", steps)
			return nil
		default:
			return fmt.Errorf("unknown direction %q, expected up or down", direction)
		}
	},
}

func init() {
	buildCmd.Flags().StringVar(&buildWorkspace, "workspace", "", "only index this workspace")

	workCmd.Flags().StringVar(&workQueue, "queue", "batch", "queue to process: batch or live")
	workCmd.Flags().IntVar(&workExitAfter, "exit-after", 0, "stop after this many seconds (0 runs until interrupted)")
	workCmd.Flags().IntVar(&workLimit, "limit", 0, "stop after this many jobs (0 is unlimited)")
	workCmd.Flags().BoolVar(&workVerbose, "verbose", false, "print every executed job")
}

// queueByAlias resolves the --queue flag to a configured queue name.
func queueByAlias(cfg *config.Config, alias string) (string, error) {
	switch alias {
	case "batch", "":
		return cfg.Queue.BatchName, nil
	case "live":
		return cfg.Queue.LiveName, nil
	}
	if alias == cfg.Queue.BatchName || alias == cfg.Queue.LiveName {
		return alias, nil
	}
	return "", fmt.Errorf("unknown queue %q, expected batch or live", alias)
}

func writeBuildReport(w io.Writer, report *domain.BuildReport) {
	fmt.Fprintf(w, "Index generation: %s\n", report.IndexPostfix)

	workspaces := make([]string, 0, len(report.Workspaces))
	for name := range report.Workspaces {
		workspaces = append(workspaces, name)
	}
	slices.Sort(workspaces)
	for _, name := range workspaces {
		fmt.Fprintf(w, "  workspace %s: %d records\n", name, report.Workspaces[name])
	}

	fmt.Fprintf(w, "Queued %d indexing jobs and %d alias switch jobs\n", report.Batches, report.AliasSwitches)
	app.WriteReport(w, &report.System)
}

