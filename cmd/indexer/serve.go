package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/adapters/api"
	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/adapters/auth"
	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/app"
	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/config"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

var serveWithWorker bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the operations API",
	Long: `Serves /health, /metrics and the operations API:

  POST /api/build[?workspace=NAME]
  GET  /api/queue
  POST /api/queue/flush
  POST /api/records/{recordId}/index
  POST /api/records/{recordId}/remove

With --with-worker a worker processes the live queue in the same process.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveWithWorker, "with-worker", false, "process the live queue in this process")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.GetConfig(ctx)

	s, err := wire(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	authAdapter, err := auth.New(ctx)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	authAdapter.RegisterRoutes(mux)
	api.RegisterRoutes(mux, api.NewHandler(s.orchestrator, s.live), authAdapter.Middleware())

	server := &http.Server{
		Addr:         cfg.Http.Addr(),
		Handler:      mux,
		ReadTimeout:  cfg.Http.ReadTimeout,
		WriteTimeout: cfg.Http.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if serveWithWorker {
		g.Go(func() error {
			_, err := app.NewWorker(s.jobs).Run(gctx, app.WorkerOptions{Queue: cfg.Queue.LiveName})
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("server stopped")
	return nil
}
