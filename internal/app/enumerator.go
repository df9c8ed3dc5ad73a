package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/domain"
	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/ports"
)

// RecordEnumerator pages through the indexable records of a workspace.
type RecordEnumerator struct {
	store             ports.RecordStore
	excludedNodeTypes []string
	logger            *slog.Logger
}

// NewRecordEnumerator creates an enumerator that skips the given node types.
func NewRecordEnumerator(store ports.RecordStore, excludedNodeTypes []string) *RecordEnumerator {
	excluded := excludedNodeTypes
	if excluded == nil {
		excluded = []string{}
	}
	return &RecordEnumerator{
		store:             store,
		excludedNodeTypes: excluded,
		logger:            slog.Default().With("component", "enumerator"),
	}
}

// NextBatch returns up to limit references after cursor, and the cursor to
// pass on the next call. An empty batch means the workspace is exhausted.
// Storage errors are returned unmodified.
func (e *RecordEnumerator) NextBatch(ctx context.Context, workspace string, cursor domain.Cursor, limit int) (domain.Batch, domain.Cursor, error) {
	if limit <= 0 {
		return nil, cursor, fmt.Errorf("batch limit must be positive, got %d", limit)
	}

	refs, err := e.store.FindRecordsByWorkspace(ctx, workspace, cursor, limit, e.excludedNodeTypes)
	if err != nil {
		return nil, cursor, err
	}
	if len(refs) == 0 {
		return nil, cursor, nil
	}

	return domain.Batch(refs), domain.Cursor(refs[len(refs)-1].RecordID), nil
}

// Walk calls fn for every batch of a workspace in cursor order and returns
// the number of records seen.
func (e *RecordEnumerator) Walk(ctx context.Context, workspace string, limit int, fn func(domain.Batch) error) (int, error) {
	var (
		cursor domain.Cursor
		total  int
	)
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		batch, next, err := e.NextBatch(ctx, workspace, cursor, limit)
		if err != nil {
			return total, err
		}
		if len(batch) == 0 {
			return total, nil
		}

		if err := fn(batch); err != nil {
			return total, err
		}
		total += len(batch)
		cursor = next

		e.logger.DebugContext(ctx, "enumerated batch", "workspace", workspace, "size", len(batch), "total", total)
	}
}
