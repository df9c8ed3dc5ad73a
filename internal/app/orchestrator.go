package app

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/config"
	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/domain"
	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/ports"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// IndexTemplate holds the request bodies used to prepare a generation:
// Create for a new index, Mapping for an existing one.
type IndexTemplate struct {
	Create  string
	Mapping string
}

// OrchestratorConfig holds the build settings.
type OrchestratorConfig struct {
	IndexName         string
	BatchQueue        string
	LiveQueue         string
	BatchSize         int
	ExcludedNodeTypes []string
}

// Orchestrator runs the build workflow and the batch queue maintenance.
type Orchestrator struct {
	store      ports.RecordStore
	index      ports.SearchIndex
	queues     ports.QueueManager
	jobs       *JobManager
	enumerator *RecordEnumerator
	dimensions *DimensionCombinator
	names      domain.IndexNames
	template   IndexTemplate
	cfg        OrchestratorConfig
	now        func() time.Time
	logger     *slog.Logger
}

// NewOrchestrator creates an Orchestrator, receiving context as first
// parameter to retrieve configuration.
func NewOrchestrator(
	ctx context.Context,
	store ports.RecordStore,
	index ports.SearchIndex,
	queues ports.QueueManager,
	jobs *JobManager,
	template IndexTemplate,
) (*Orchestrator, error) {
	cfg := config.GetConfig(ctx)

	dimensions, err := ParseDimensions(cfg.Indexing.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dimensions: %w", err)
	}

	return NewOrchestratorWithConfig(OrchestratorConfig{
		IndexName:         cfg.Index.Name,
		BatchQueue:        cfg.Queue.BatchName,
		LiveQueue:         cfg.Queue.LiveName,
		BatchSize:         cfg.Indexing.BatchSize,
		ExcludedNodeTypes: cfg.Indexing.ExcludedNodeTypes,
	}, store, index, queues, jobs, dimensions, template), nil
}

// NewOrchestratorWithConfig creates an Orchestrator with explicit configuration.
func NewOrchestratorWithConfig(
	cfg OrchestratorConfig,
	store ports.RecordStore,
	index ports.SearchIndex,
	queues ports.QueueManager,
	jobs *JobManager,
	dimensions *DimensionCombinator,
	template IndexTemplate,
) *Orchestrator {
	return &Orchestrator{
		store:      store,
		index:      index,
		queues:     queues,
		jobs:       jobs,
		enumerator: NewRecordEnumerator(store, cfg.ExcludedNodeTypes),
		dimensions: dimensions,
		names:      domain.IndexNames{Base: cfg.IndexName},
		template:   template,
		cfg:        cfg,
		now:        time.Now,
		logger:     slog.Default().With("component", "orchestrator"),
	}
}

// Build prepares a new index generation for every dimension combination,
// queues one indexing job per batch of every selected workspace and then
// one alias switch job per combination. The batch queue must be empty.
func (o *Orchestrator) Build(ctx context.Context, workspace string) (*domain.BuildReport, error) {
	ctx, span := tracer.Start(ctx, "build")
	defer span.End()

	reporter := NewReporter(o.queues, o.cfg.BatchQueue)
	postfix := strconv.FormatInt(o.now().Unix(), 10)
	span.SetAttributes(attribute.String("index.postfix", postfix))

	report, err := o.build(ctx, postfix, workspace)
	if err != nil {
		span.SetStatus(codes.Error, "build failed")
		span.RecordError(err)
		return nil, err
	}

	system, err := reporter.Collect(ctx)
	if err != nil {
		return nil, err
	}
	report.System = *system
	return report, nil
}

func (o *Orchestrator) build(ctx context.Context, postfix, workspace string) (*domain.BuildReport, error) {
	combinations := o.dimensions.Combinations()
	for _, combo := range combinations {
		if err := o.prepareGeneration(ctx, o.names.Generation(combo, postfix)); err != nil {
			return nil, err
		}
	}

	q, err := o.queues.Queue(o.cfg.BatchQueue)
	if err != nil {
		return nil, domain.E(domain.KindQueue, "open queue "+o.cfg.BatchQueue, err)
	}
	ready, err := q.CountReady(ctx)
	if err != nil {
		return nil, domain.E(domain.KindQueue, "count ready", err)
	}
	if ready != 0 {
		return nil, domain.Errorf(domain.KindPrecondition, "build",
			"queue %s still has %d pending jobs, please flush the queue first", o.cfg.BatchQueue, ready)
	}

	workspaces, err := o.selectWorkspaces(ctx, workspace)
	if err != nil {
		return nil, err
	}

	o.logger.InfoContext(ctx, "starting build", "indexPostfix", postfix, "workspaces", workspaces, "combinations", len(combinations))

	report := &domain.BuildReport{
		IndexPostfix: postfix,
		Workspaces:   make(map[string]int, len(workspaces)),
	}

	for _, ws := range workspaces {
		count, err := o.enumerator.Walk(ctx, ws, o.cfg.BatchSize, func(batch domain.Batch) error {
			job, err := domain.NewIndexingJob(postfix, ws, batch)
			if err != nil {
				return err
			}
			if _, err := o.jobs.Queue(ctx, o.cfg.BatchQueue, job); err != nil {
				return err
			}
			report.Batches++
			batchesQueued.Inc()
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to queue workspace %s: %w", ws, err)
		}
		report.Workspaces[ws] = count
		o.logger.InfoContext(ctx, "workspace queued", "workspace", ws, "records", count)
	}

	for _, combo := range combinations {
		job, err := domain.NewAliasSwitchJob(postfix, combo, report.Batches)
		if err != nil {
			return nil, err
		}
		if _, err := o.jobs.Queue(ctx, o.cfg.BatchQueue, job); err != nil {
			return nil, err
		}
		report.AliasSwitches++
	}

	o.logger.InfoContext(ctx, "build queued",
		"indexPostfix", postfix,
		"batches", report.Batches,
		"aliasSwitches", report.AliasSwitches,
	)
	return report, nil
}

func (o *Orchestrator) prepareGeneration(ctx context.Context, indexName string) error {
	exists, err := o.index.IndexExists(ctx, indexName)
	if err != nil {
		return fmt.Errorf("failed to check index %s: %w", indexName, err)
	}
	if !exists {
		if err := o.index.CreateIndex(ctx, indexName, o.template.Create); err != nil {
			return fmt.Errorf("failed to create index %s: %w", indexName, err)
		}
		return nil
	}
	if err := o.index.PutMapping(ctx, indexName, o.template.Mapping); err != nil {
		return fmt.Errorf("failed to update mapping of %s: %w", indexName, err)
	}
	return nil
}

func (o *Orchestrator) selectWorkspaces(ctx context.Context, workspace string) ([]string, error) {
	if workspace == "" {
		workspaces, err := o.store.ListWorkspaces(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list workspaces: %w", err)
		}
		return workspaces, nil
	}

	ok, err := o.store.WorkspaceExists(ctx, workspace)
	if err != nil {
		return nil, fmt.Errorf("failed to look up workspace %s: %w", workspace, err)
	}
	if !ok {
		return nil, domain.Errorf(domain.KindPrecondition, "build", "workspace %q not found", workspace)
	}
	return []string{workspace}, nil
}

// Flush drops every message of the batch queue.
func (o *Orchestrator) Flush(ctx context.Context) (*domain.SystemReport, error) {
	reporter := NewReporter(o.queues, o.cfg.BatchQueue)

	q, err := o.queues.Queue(o.cfg.BatchQueue)
	if err != nil {
		return nil, domain.E(domain.KindQueue, "open queue "+o.cfg.BatchQueue, err)
	}
	if err := q.Flush(ctx); err != nil {
		return nil, domain.E(domain.KindQueue, "flush", err)
	}
	o.logger.InfoContext(ctx, "flushed queue", "queue", o.cfg.BatchQueue)

	return reporter.Collect(ctx)
}

// Status reports the counters of the batch and live queues.
func (o *Orchestrator) Status(ctx context.Context) (*domain.SystemReport, error) {
	names := []string{o.cfg.BatchQueue}
	if o.cfg.LiveQueue != "" {
		names = append(names, o.cfg.LiveQueue)
	}
	return NewReporter(o.queues, names...).Collect(ctx)
}
