package ports

import (
	"context"

	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/domain"
)

// RecordStore reads content records from the repository's storage.
type RecordStore interface {
	// FindRecordsByWorkspace returns up to limit indexable references of a
	// workspace whose record id is strictly greater than after, ordered by
	// record id. Removed and moved records and the excluded node types are
	// never returned.
	FindRecordsByWorkspace(ctx context.Context, workspace string, after domain.Cursor, limit int, excludedNodeTypes []string) ([]domain.RecordReference, error)

	// FindRecordByID loads one record. It returns nil, nil when the record
	// does not exist.
	FindRecordByID(ctx context.Context, recordID string) (*domain.Record, error)

	// ListWorkspaces returns the names of all workspaces.
	ListWorkspaces(ctx context.Context) ([]string, error)

	// WorkspaceExists reports whether a workspace with the name exists.
	WorkspaceExists(ctx context.Context, name string) (bool, error)

	// NodeTypeExists reports whether the node type is known.
	NodeTypeExists(ctx context.Context, name string) (bool, error)
}

// Materializer resolves the variant of a record in a workspace and
// dimension context.
type Materializer interface {
	// Materialize returns nil, nil when the record has no visible variant
	// in the context.
	Materialize(ctx context.Context, record *domain.Record, mc domain.MaterializeContext) (*domain.Variant, error)
}

// BuildTracker records which indexing jobs of a build have settled.
type BuildTracker interface {
	// MarkBatchCompleted is idempotent per job id and overrides an earlier
	// failure of the same job.
	MarkBatchCompleted(ctx context.Context, indexPostfix, jobID string) error

	// MarkBatchFailed records a batch whose retry budget is spent. It never
	// overrides a completion.
	MarkBatchFailed(ctx context.Context, indexPostfix, jobID string) error

	CompletedBatches(ctx context.Context, indexPostfix string) (int, error)
	FailedBatches(ctx context.Context, indexPostfix string) (int, error)
}
