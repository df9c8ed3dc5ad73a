package postgres

import (
	"context"
	"fmt"

	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/ports"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ ports.BuildTracker = (*Tracker)(nil)

const (
	batchCompleted = "completed"
	batchFailed    = "failed"
)

const (
	markBatchCompletedSQL = `
		INSERT INTO build_batches (index_postfix, job_id, state)
		VALUES ($1, $2, 'completed')
		ON CONFLICT (index_postfix, job_id) DO UPDATE SET state = 'completed', settled_at = NOW()`

	markBatchFailedSQL = `
		INSERT INTO build_batches (index_postfix, job_id, state)
		VALUES ($1, $2, 'failed')
		ON CONFLICT (index_postfix, job_id) DO NOTHING`

	countBatchesSQL = `SELECT COUNT(*) FROM build_batches WHERE index_postfix = $1 AND state = $2`
)

// Tracker records settled indexing batches per index generation.
type Tracker struct {
	pool *pgxpool.Pool
}

// NewTracker creates a Tracker on an open pool.
func NewTracker(db *Database) *Tracker {
	return &Tracker{pool: db.Pool}
}

// MarkBatchCompleted is idempotent per job id.
func (t *Tracker) MarkBatchCompleted(ctx context.Context, indexPostfix, jobID string) error {
	if _, err := t.pool.Exec(ctx, markBatchCompletedSQL, indexPostfix, jobID); err != nil {
		return fmt.Errorf("failed to mark batch %s of %s completed: %w", jobID, indexPostfix, err)
	}
	return nil
}

func (t *Tracker) MarkBatchFailed(ctx context.Context, indexPostfix, jobID string) error {
	if _, err := t.pool.Exec(ctx, markBatchFailedSQL, indexPostfix, jobID); err != nil {
		return fmt.Errorf("failed to mark batch %s of %s failed: %w", jobID, indexPostfix, err)
	}
	return nil
}

func (t *Tracker) CompletedBatches(ctx context.Context, indexPostfix string) (int, error) {
	return t.count(ctx, indexPostfix, batchCompleted)
}

func (t *Tracker) FailedBatches(ctx context.Context, indexPostfix string) (int, error) {
	return t.count(ctx, indexPostfix, batchFailed)
}

func (t *Tracker) count(ctx context.Context, indexPostfix, state string) (int, error) {
	var n int
	if err := t.pool.QueryRow(ctx, countBatchesSQL, indexPostfix, state).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s batches of %s: %w", state, indexPostfix, err)
	}
	return n, nil
}
