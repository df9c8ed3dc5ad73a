package app

import (
	"context"
	"log/slog"

	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/config"
	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/domain"
	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/ports"
)

// fakeRecordID marks removal payloads whose record is expected to be gone.
const fakeRecordID = "fake"

// LiveIndexerConfig holds the live indexing settings.
type LiveIndexerConfig struct {
	LiveQueue          string
	EnableAsync        bool
	IndexAllWorkspaces bool
}

// LiveIndexer indexes and removes single records as they change, outside of
// a build. Jobs carry an empty index postfix and so write through the alias.
type LiveIndexer struct {
	store        ports.RecordStore
	materializer ports.Materializer
	jobs         *JobManager
	executor     Executor
	dimensions   *DimensionCombinator
	cfg          LiveIndexerConfig
	logger       *slog.Logger
}

// NewLiveIndexer creates a LiveIndexer, receiving context as first
// parameter to retrieve configuration.
func NewLiveIndexer(
	ctx context.Context,
	store ports.RecordStore,
	materializer ports.Materializer,
	jobs *JobManager,
	executor Executor,
	dimensions *DimensionCombinator,
) *LiveIndexer {
	cfg := config.GetConfig(ctx)
	return NewLiveIndexerWithConfig(LiveIndexerConfig{
		LiveQueue:          cfg.Queue.LiveName,
		EnableAsync:        cfg.Indexing.EnableLiveAsync,
		IndexAllWorkspaces: cfg.Indexing.IndexAllWorkspaces,
	}, store, materializer, jobs, executor, dimensions)
}

// NewLiveIndexerWithConfig creates a LiveIndexer with explicit configuration.
func NewLiveIndexerWithConfig(
	cfg LiveIndexerConfig,
	store ports.RecordStore,
	materializer ports.Materializer,
	jobs *JobManager,
	executor Executor,
	dimensions *DimensionCombinator,
) *LiveIndexer {
	return &LiveIndexer{
		store:        store,
		materializer: materializer,
		jobs:         jobs,
		executor:     executor,
		dimensions:   dimensions,
		cfg:          cfg,
		logger:       slog.Default().With("component", "liveindexer"),
	}
}

// IndexRecord indexes one record by id. Removed records are routed to
// removal.
func (l *LiveIndexer) IndexRecord(ctx context.Context, recordID, targetWorkspace string) error {
	record, err := l.store.FindRecordByID(ctx, recordID)
	if err != nil {
		return err
	}
	if record == nil {
		return domain.Errorf(domain.KindRecordMissing, "index record", "record %s not found", recordID)
	}
	if record.Removed {
		return l.Remove(ctx, record.Reference(), targetWorkspace)
	}
	return l.Index(ctx, record.Reference(), targetWorkspace)
}

// RemoveRecord removes one record by id.
func (l *LiveIndexer) RemoveRecord(ctx context.Context, recordID, targetWorkspace string) error {
	record, err := l.store.FindRecordByID(ctx, recordID)
	if err != nil {
		return err
	}
	if record == nil {
		return domain.Errorf(domain.KindRecordMissing, "remove record", "record %s not found", recordID)
	}
	return l.Remove(ctx, record.Reference(), targetWorkspace)
}

// Index queues, or runs, an indexing job for one reference.
func (l *LiveIndexer) Index(ctx context.Context, ref domain.RecordReference, targetWorkspace string) error {
	if l.skipWorkspace(ctx, ref, targetWorkspace) {
		return nil
	}

	job, err := domain.NewIndexingJob("", targetWorkspace, []domain.RecordReference{ref})
	if err != nil {
		return err
	}
	return l.dispatch(ctx, job)
}

// Remove queues, or runs, a removal job for every dimension combination in
// which the record no longer has a visible variant.
func (l *LiveIndexer) Remove(ctx context.Context, ref domain.RecordReference, targetWorkspace string) error {
	if l.skipWorkspace(ctx, ref, targetWorkspace) {
		return nil
	}

	workspace := targetWorkspace
	if workspace == "" {
		workspace = ref.Workspace
	}

	record, err := l.store.FindRecordByID(ctx, ref.RecordID)
	if err != nil {
		return err
	}

	combinations := l.dimensions.Combinations()

	for _, combo := range combinations {
		if record != nil && !record.Removed {
			variant, err := l.materializer.Materialize(ctx, record, domain.MaterializeContext{
				Workspace:             workspace,
				Dimensions:            combo,
				InvisibleContentShown: true,
			})
			if err != nil {
				return err
			}
			if variant != nil && !variant.Removed {
				l.logger.DebugContext(ctx, "variant still exists, not removing",
					"identifier", ref.Identifier,
					"dimensions", combo.Canonical(),
				)
				continue
			}
		}

		fake := ref
		fake.RecordID = fakeRecordID
		fake.Dimensions = combo.Clone()

		job, err := domain.NewRemovalJob("", targetWorkspace, []domain.RecordReference{fake})
		if err != nil {
			return err
		}
		if err := l.dispatch(ctx, job); err != nil {
			return err
		}
	}
	return nil
}

func (l *LiveIndexer) skipWorkspace(ctx context.Context, ref domain.RecordReference, targetWorkspace string) bool {
	if l.cfg.IndexAllWorkspaces {
		return false
	}
	workspace := targetWorkspace
	if workspace == "" {
		workspace = ref.Workspace
	}
	if workspace != domain.LiveWorkspace {
		l.logger.DebugContext(ctx, "skipping record outside the live workspace", "identifier", ref.Identifier, "workspace", workspace)
		return true
	}
	return false
}

func (l *LiveIndexer) dispatch(ctx context.Context, job domain.Job) error {
	if !l.cfg.EnableAsync {
		ok, err := l.executor.Execute(ctx, nil, nil, job)
		if err != nil {
			return domain.E(domain.KindJobFailed, "execute "+job.Label(), err)
		}
		if !ok {
			return domain.Errorf(domain.KindJobFailed, "execute", "%s reported failure", job.Label())
		}
		return nil
	}

	_, err := l.jobs.Queue(ctx, l.cfg.LiveQueue, job)
	return err
}
