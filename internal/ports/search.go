package ports

import "context"

// SearchIndex defines the search engine operations used by the indexer.
type SearchIndex interface {
	IndexExists(ctx context.Context, indexName string) (bool, error)
	CreateIndex(ctx context.Context, indexName string, mapping string) error
	PutMapping(ctx context.Context, indexName string, mapping string) error
	DeleteIndex(ctx context.Context, indexName string) error

	// UpdateAlias atomically moves alias to point at indexName only.
	UpdateAlias(ctx context.Context, alias string, indexName string) error

	// ListIndices returns the names of indices matching a wildcard pattern.
	ListIndices(ctx context.Context, pattern string) ([]string, error)

	// NewBulk opens a bulk write scope. Buffered operations are sent when
	// flushSize operations are pending and on Flush.
	NewBulk(flushSize int) BulkWriter
}

// BulkWriter buffers document writes for one job.
type BulkWriter interface {
	Index(ctx context.Context, indexName, id string, document any) error
	Delete(ctx context.Context, indexName, id string) error
	Flush(ctx context.Context) error
}
