package ports

import (
	"context"

	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/domain"
)

// Indexer defines the build and queue maintenance operations.
// This is implemented by the app layer Orchestrator.
type Indexer interface {
	// Build enqueues a full rebuild of one workspace, or all of them when
	// workspace is empty.
	Build(ctx context.Context, workspace string) (*domain.BuildReport, error)

	// Flush empties the batch queue.
	Flush(ctx context.Context) (*domain.SystemReport, error)

	// Status reports the queue counters.
	Status(ctx context.Context) (*domain.SystemReport, error)
}

// LiveIndexer indexes single records outside of a build.
// This is implemented by the app layer LiveIndexer.
type LiveIndexer interface {
	IndexRecord(ctx context.Context, recordID, targetWorkspace string) error
	RemoveRecord(ctx context.Context, recordID, targetWorkspace string) error
}
