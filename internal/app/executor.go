package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/config"
	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/domain"
	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/ports"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ExecutorConfig holds the settings jobs are executed with.
type ExecutorConfig struct {
	IndexName                 string
	BulkSize                  int
	AcceptedFailedJobs        int
	CleanupIndicesAfterSwitch bool
	BarrierEnabled            bool
	BarrierDelay              time.Duration
	BarrierMaxDeferrals       int
}

// ExecutorConfigFrom maps application configuration onto executor settings.
func ExecutorConfigFrom(cfg *config.Config) ExecutorConfig {
	return ExecutorConfig{
		IndexName:                 cfg.Index.Name,
		BulkSize:                  cfg.Index.BulkSize,
		AcceptedFailedJobs:        cfg.Indexing.AcceptedFailedJobs,
		CleanupIndicesAfterSwitch: cfg.Indexing.CleanupIndicesAfterSwitch,
		BarrierEnabled:            cfg.Indexing.BarrierEnabled,
		BarrierDelay:              cfg.Indexing.BarrierDelay,
		BarrierMaxDeferrals:       cfg.Indexing.BarrierMaxDeferrals,
	}
}

// JobExecutor runs decoded jobs against the search index.
type JobExecutor struct {
	store        ports.RecordStore
	materializer ports.Materializer
	index        ports.SearchIndex
	tracker      ports.BuildTracker
	fakes        *FakeRecordFactory
	dimensions   *DimensionCombinator
	names        domain.IndexNames
	cfg          ExecutorConfig
	logger       *slog.Logger
}

// NewJobExecutor creates a JobExecutor, receiving context as first parameter
// to retrieve configuration. The tracker may be nil when the build barrier
// is not used. Documents are only ever written to the indices of the
// combinations in dimensions.
func NewJobExecutor(
	ctx context.Context,
	store ports.RecordStore,
	materializer ports.Materializer,
	index ports.SearchIndex,
	tracker ports.BuildTracker,
	dimensions *DimensionCombinator,
) *JobExecutor {
	return NewJobExecutorWithConfig(ExecutorConfigFrom(config.GetConfig(ctx)), store, materializer, index, tracker, dimensions)
}

// NewJobExecutorWithConfig creates a JobExecutor with explicit configuration.
func NewJobExecutorWithConfig(
	cfg ExecutorConfig,
	store ports.RecordStore,
	materializer ports.Materializer,
	index ports.SearchIndex,
	tracker ports.BuildTracker,
	dimensions *DimensionCombinator,
) *JobExecutor {
	if cfg.BulkSize <= 0 {
		cfg.BulkSize = 500
	}
	return &JobExecutor{
		store:        store,
		materializer: materializer,
		index:        index,
		tracker:      tracker,
		fakes:        NewFakeRecordFactory(store),
		dimensions:   dimensions,
		names:        domain.IndexNames{Base: cfg.IndexName},
		cfg:          cfg,
		logger:       slog.Default().With("component", "executor"),
	}
}

// Execute runs one job. The queue is the one the message was reserved
// from; it may be nil for indexing and removal jobs run synchronously.
// A false result or an error means the job failed as a whole.
func (x *JobExecutor) Execute(ctx context.Context, queue ports.Queue, msg *ports.Message, job domain.Job) (bool, error) {
	ctx, span := tracer.Start(ctx, "job.execute", trace.WithAttributes(
		attribute.String("job.kind", string(job.Kind())),
		attribute.String("job.id", job.JobID()),
	))
	defer span.End()

	start := time.Now()

	var (
		ok  bool
		err error
	)
	switch j := job.(type) {
	case *domain.IndexingJob:
		ok, err = x.executeIndexing(ctx, j)
	case *domain.RemovalJob:
		ok, err = x.executeRemoval(ctx, j)
	case *domain.AliasSwitchJob:
		if queue == nil {
			return false, fmt.Errorf("alias switch job %s needs a queue", j.ID)
		}
		ok, err = x.executeAliasSwitch(ctx, queue, j)
	default:
		err = domain.Errorf(domain.KindInvalidJob, "execute", "unsupported job type %T", job)
	}

	jobDuration.WithLabelValues(string(job.Kind())).Observe(time.Since(start).Seconds())
	result := "success"
	if err != nil || !ok {
		result = "failure"
		span.SetStatus(codes.Error, "job failed")
		if err != nil {
			span.RecordError(err)
		}
	}
	jobsExecuted.WithLabelValues(string(job.Kind()), result).Inc()

	return ok, err
}

func (x *JobExecutor) executeIndexing(ctx context.Context, job *domain.IndexingJob) (bool, error) {
	start := time.Now()
	bulk := x.index.NewBulk(x.cfg.BulkSize)

	indexed := 0
	for _, ref := range job.Nodes {
		err := x.indexReference(ctx, bulk, job, ref)
		switch domain.KindOf(err) {
		case domain.KindUnknown:
			if err != nil {
				return false, fmt.Errorf("failed to index record %s: %w", ref.RecordID, err)
			}
			indexed++
			recordsProcessed.WithLabelValues("index", "indexed").Inc()
		case domain.KindRecordMissing, domain.KindVariantUnresolvable:
			x.logger.WarnContext(ctx, "skipping record",
				"jobID", job.ID,
				"recordID", ref.RecordID,
				"identifier", ref.Identifier,
				"reason", err.Error(),
			)
			recordsProcessed.WithLabelValues("index", "skipped").Inc()
		default:
			return false, fmt.Errorf("failed to index record %s: %w", ref.RecordID, err)
		}
	}

	if err := bulk.Flush(ctx); err != nil {
		return false, fmt.Errorf("failed to flush bulk writes: %w", err)
	}

	if job.IndexPostfix != "" && x.tracker != nil {
		if err := x.tracker.MarkBatchCompleted(ctx, job.IndexPostfix, job.ID); err != nil {
			return false, fmt.Errorf("failed to record batch completion: %w", err)
		}
	}

	elapsed := time.Since(start)
	rate := 0.0
	if elapsed > 0 {
		rate = float64(indexed) / elapsed.Seconds()
	}
	recordsPerSecond.Set(rate)

	x.logger.InfoContext(ctx, "indexed records",
		"jobID", job.ID,
		"indexPostfix", job.IndexPostfix,
		"count", indexed,
		"skipped", len(job.Nodes)-indexed,
		"duration", elapsed.Round(time.Millisecond).String(),
		"recordsPerSecond", fmt.Sprintf("%.2f", rate),
	)
	return true, nil
}

func (x *JobExecutor) indexReference(ctx context.Context, bulk ports.BulkWriter, job *domain.IndexingJob, ref domain.RecordReference) error {
	record, err := x.store.FindRecordByID(ctx, ref.RecordID)
	if err != nil {
		return err
	}
	if record == nil {
		return domain.Errorf(domain.KindRecordMissing, "index", "record %s not found", ref.RecordID)
	}

	combinations := x.dimensions.Matching(ref.Dimensions)
	if len(combinations) == 0 {
		return domain.Errorf(domain.KindVariantUnresolvable, "index",
			"record %s has dimensions %s outside every configured combination", ref.Identifier, ref.Dimensions.Canonical())
	}

	workspace := job.TargetWorkspace
	if workspace == "" {
		workspace = record.Workspace
	}

	written := 0
	for _, combo := range combinations {
		variant, err := x.materializer.Materialize(ctx, record, domain.MaterializeContext{
			Workspace:                workspace,
			Dimensions:               combo,
			InvisibleContentShown:    true,
			InaccessibleContentShown: false,
		})
		if err != nil {
			return err
		}
		if variant == nil {
			continue
		}
		if err := bulk.Index(ctx, x.names.Generation(combo, job.IndexPostfix), variant.DocumentID(), variant.Document()); err != nil {
			return err
		}
		written++
	}
	if written == 0 {
		return domain.Errorf(domain.KindVariantUnresolvable, "index",
			"record %s has no variant in workspace %s with dimensions %s", ref.Identifier, workspace, ref.Dimensions.Canonical())
	}
	return nil
}

func (x *JobExecutor) executeRemoval(ctx context.Context, job *domain.RemovalJob) (bool, error) {
	bulk := x.index.NewBulk(x.cfg.BulkSize)

	removed := 0
	for _, ref := range job.Nodes {
		err := x.removeReference(ctx, bulk, job, ref)
		switch domain.KindOf(err) {
		case domain.KindUnknown:
			if err != nil {
				return false, fmt.Errorf("failed to remove record %s: %w", ref.RecordID, err)
			}
			removed++
			recordsProcessed.WithLabelValues("remove", "removed").Inc()
		case domain.KindSynthesis:
			x.logger.ErrorContext(ctx, "failed to build stand-in for removed record",
				"jobID", job.ID,
				"identifier", ref.Identifier,
				"error", err,
			)
			recordsProcessed.WithLabelValues("remove", "skipped").Inc()
		case domain.KindVariantUnresolvable:
			x.logger.WarnContext(ctx, "skipping record",
				"jobID", job.ID,
				"identifier", ref.Identifier,
				"reason", err.Error(),
			)
			recordsProcessed.WithLabelValues("remove", "skipped").Inc()
		default:
			return false, fmt.Errorf("failed to remove record %s: %w", ref.RecordID, err)
		}
	}

	if err := bulk.Flush(ctx); err != nil {
		return false, fmt.Errorf("failed to flush bulk writes: %w", err)
	}

	x.logger.InfoContext(ctx, "removed records", "jobID", job.ID, "count", removed)
	return true, nil
}

func (x *JobExecutor) removeReference(ctx context.Context, bulk ports.BulkWriter, job *domain.RemovalJob, ref domain.RecordReference) error {
	record, err := x.store.FindRecordByID(ctx, ref.RecordID)
	if err != nil {
		return err
	}
	if record == nil {
		record, err = x.fakes.FromReference(ctx, ref)
		if err != nil {
			return err
		}
	}

	combinations := x.dimensions.Route(ref.Dimensions)
	if len(combinations) == 0 {
		return domain.Errorf(domain.KindVariantUnresolvable, "remove",
			"record %s has dimensions %s outside every configured combination", ref.Identifier, ref.Dimensions.Canonical())
	}

	workspace := job.TargetWorkspace
	if workspace == "" {
		workspace = record.Workspace
	}

	for _, combo := range combinations {
		mc := domain.MaterializeContext{
			Workspace:                workspace,
			Dimensions:               combo,
			InvisibleContentShown:    true,
			InaccessibleContentShown: false,
			RemovedContentShown:      true,
		}

		var variant *domain.Variant
		if record.Synthetic {
			variant = domain.VariantOf(record, mc)
		} else {
			variant, err = x.materializer.Materialize(ctx, record, mc)
			if err != nil {
				return err
			}
			if variant == nil {
				return domain.Errorf(domain.KindVariantUnresolvable, "remove",
					"record %s has no variant in workspace %s", ref.Identifier, workspace)
			}
		}

		if err := bulk.Delete(ctx, x.names.Generation(combo, job.IndexPostfix), variant.DocumentID()); err != nil {
			return err
		}
	}
	return nil
}
