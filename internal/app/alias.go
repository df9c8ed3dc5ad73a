package app

import (
	"context"
	"fmt"
	"time"

	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/domain"
	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/ports"
)

// shouldSwitch applies the failed batch threshold. -1 accepts any number.
func (x *JobExecutor) shouldSwitch(failed int) bool {
	return x.cfg.AcceptedFailedJobs == -1 || failed <= x.cfg.AcceptedFailedJobs
}

// executeAliasSwitch always reports success; a refused switch is logged
// and left for the operator.
func (x *JobExecutor) executeAliasSwitch(ctx context.Context, queue ports.Queue, job *domain.AliasSwitchJob) (bool, error) {
	failed, err := queue.CountFailed(ctx)
	if err != nil {
		return false, domain.E(domain.KindQueue, "count failed jobs", err)
	}

	alias := x.names.Alias(job.Dimensions)
	generation := x.names.Generation(job.Dimensions, job.IndexPostfix)

	if x.cfg.BarrierEnabled && job.ExpectedBatches > 0 && x.tracker != nil {
		completed, err := x.tracker.CompletedBatches(ctx, job.IndexPostfix)
		if err != nil {
			return false, fmt.Errorf("failed to count completed batches: %w", err)
		}
		// failed messages of earlier builds stay in the queue, only this
		// build's batches settle the barrier
		buildFailed, err := x.tracker.FailedBatches(ctx, job.IndexPostfix)
		if err != nil {
			return false, fmt.Errorf("failed to count failed batches: %w", err)
		}
		if completed+buildFailed < job.ExpectedBatches {
			return x.deferAliasSwitch(ctx, queue, job, completed, buildFailed)
		}
	}

	if !x.shouldSwitch(failed) {
		aliasSwitches.WithLabelValues("refused").Inc()
		x.logger.ErrorContext(ctx, fmt.Sprintf("index %s was not switched due to %d failed batches", generation, failed),
			"alias", alias,
			"index", generation,
			"failedBatches", failed,
			"acceptedFailedJobs", x.cfg.AcceptedFailedJobs,
		)
		return true, nil
	}

	if err := x.index.UpdateAlias(ctx, alias, generation); err != nil {
		aliasSwitches.WithLabelValues("error").Inc()
		return false, fmt.Errorf("failed to switch alias %s to %s: %w", alias, generation, err)
	}
	aliasSwitches.WithLabelValues("switched").Inc()

	if x.cfg.CleanupIndicesAfterSwitch {
		removed, err := x.removeStaleIndices(ctx, alias, job.IndexPostfix)
		if err != nil {
			x.logger.ErrorContext(ctx, "failed to clean up old indices", "alias", alias, "error", err)
		}
		for _, name := range removed {
			x.logger.InfoContext(ctx, "removed old index", "index", name)
		}
	}

	x.logger.InfoContext(ctx, "index was switched", "alias", alias, "index", generation, "failedBatches", failed)
	return true, nil
}

func (x *JobExecutor) deferAliasSwitch(ctx context.Context, queue ports.Queue, job *domain.AliasSwitchJob, completed, failed int) (bool, error) {
	if job.Deferrals >= x.cfg.BarrierMaxDeferrals {
		aliasSwitches.WithLabelValues("abandoned").Inc()
		x.logger.ErrorContext(ctx, "batches did not settle, alias was not switched",
			"indexPostfix", job.IndexPostfix,
			"expectedBatches", job.ExpectedBatches,
			"completedBatches", completed,
			"failedBatches", failed,
			"deferrals", job.Deferrals,
		)
		return true, nil
	}

	if x.cfg.BarrierDelay > 0 {
		timer := time.NewTimer(x.cfg.BarrierDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false, ctx.Err()
		case <-timer.C:
		}
	}

	next := job.Deferred()
	payload, err := domain.EncodeJob(next)
	if err != nil {
		return false, err
	}
	if _, err := queue.Enqueue(ctx, payload); err != nil {
		return false, domain.E(domain.KindQueue, "requeue alias switch", err)
	}

	aliasSwitches.WithLabelValues("deferred").Inc()
	x.logger.InfoContext(ctx, "alias switch deferred until batches settle",
		"indexPostfix", job.IndexPostfix,
		"expectedBatches", job.ExpectedBatches,
		"completedBatches", completed,
		"failedBatches", failed,
		"deferrals", next.Deferrals,
	)
	return true, nil
}

// removeStaleIndices deletes older generations of alias. It returns the
// names removed before any error.
func (x *JobExecutor) removeStaleIndices(ctx context.Context, alias, postfix string) ([]string, error) {
	indices, err := x.index.ListIndices(ctx, alias+"-*")
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, name := range indices {
		if !domain.IsStaleGeneration(alias, name, postfix) {
			continue
		}
		if err := x.index.DeleteIndex(ctx, name); err != nil {
			return removed, err
		}
		removed = append(removed, name)
	}
	return removed, nil
}
