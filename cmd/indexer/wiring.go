package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/adapters/badgerqueue"
	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/adapters/elasticsearch"
	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/adapters/postgres"
	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/adapters/rabbitmq"
	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/app"
	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/config"
	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/ports"
)

// services holds the wired application for one command run.
type services struct {
	db           *postgres.Database
	queues       ports.QueueManager
	jobs         *app.JobManager
	orchestrator *app.Orchestrator
	live         *app.LiveIndexer
}

func openQueues(ctx context.Context) (ports.QueueManager, error) {
	cfg := config.GetConfig(ctx)
	if cfg.Queue.IsBadger() {
		m, err := badgerqueue.New(ctx)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	m, err := rabbitmq.New(ctx)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// wire connects to storage, the queue backend and Elasticsearch and builds
// the application services on top of them.
func wire(ctx context.Context) (_ *services, err error) {
	cfg := config.GetConfig(ctx)
	s := &services{}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	if s.db, err = postgres.New(ctx); err != nil {
		return nil, err
	}
	if s.queues, err = openQueues(ctx); err != nil {
		return nil, err
	}
	search, err := elasticsearch.New(ctx)
	if err != nil {
		return nil, err
	}

	dimensions, err := app.ParseDimensions(cfg.Indexing.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dimensions: %w", err)
	}

	store := postgres.NewStore(s.db)
	materializer := postgres.NewMaterializer(s.db)
	tracker := postgres.NewTracker(s.db)
	executor := app.NewJobExecutor(ctx, store, materializer, search, tracker, dimensions)
	s.jobs = app.NewJobManager(s.queues, executor, cfg.Indexing.JobTimeout)
	s.jobs.TrackBatches(tracker)

	create, mapping, err := elasticsearch.Template(cfg.Index.Shards, cfg.Index.Replicas)
	if err != nil {
		return nil, err
	}
	s.orchestrator, err = app.NewOrchestrator(ctx, store, search, s.queues, s.jobs, app.IndexTemplate{
		Create:  create,
		Mapping: mapping,
	})
	if err != nil {
		return nil, err
	}

	s.live = app.NewLiveIndexer(ctx, store, materializer, s.jobs, executor, dimensions)

	slog.Debug("services wired", "queueDriver", cfg.Queue.Driver)
	return s, nil
}

func (s *services) Close() {
	if s.queues != nil {
		if err := s.queues.Close(); err != nil {
			slog.Error("failed to close queue connection", "error", err)
		}
	}
	if s.db != nil {
		s.db.Close()
	}
}
