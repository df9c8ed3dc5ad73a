package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/elastic/go-elasticsearch/v9/esapi"
)

// bulkWriter buffers index and delete operations as NDJSON and sends them
// with the Bulk API. It is not safe for concurrent use.
type bulkWriter struct {
	es        *elasticsearch.Client
	flushSize int
	buf       bytes.Buffer
	pending   int
	logger    *slog.Logger
}

func newBulkWriter(es *elasticsearch.Client, flushSize int, logger *slog.Logger) *bulkWriter {
	if flushSize <= 0 {
		flushSize = 500
	}
	return &bulkWriter{es: es, flushSize: flushSize, logger: logger}
}

// Index buffers a document for indexing under id, replacing any earlier
// version.
func (b *bulkWriter) Index(ctx context.Context, indexName, id string, document any) error {
	docJSON, err := json.Marshal(document)
	if err != nil {
		return fmt.Errorf("failed to marshal document %s: %w", id, err)
	}
	if err := b.writeMeta("index", indexName, id); err != nil {
		return err
	}
	b.buf.Write(docJSON)
	b.buf.WriteByte('\n')
	return b.added(ctx)
}

// Delete buffers the removal of a document. Deleting a missing document is
// not an error.
func (b *bulkWriter) Delete(ctx context.Context, indexName, id string) error {
	if err := b.writeMeta("delete", indexName, id); err != nil {
		return err
	}
	return b.added(ctx)
}

func (b *bulkWriter) writeMeta(action, indexName, id string) error {
	meta := map[string]any{
		action: map[string]any{
			"_index": indexName,
			"_id":    id,
		},
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal bulk metadata for %s: %w", id, err)
	}
	b.buf.Write(metaJSON)
	b.buf.WriteByte('\n')
	return nil
}

func (b *bulkWriter) added(ctx context.Context) error {
	b.pending++
	if b.pending >= b.flushSize {
		return b.Flush(ctx)
	}
	return nil
}

// Flush sends every buffered operation. The buffer is emptied even when
// the request fails.
func (b *bulkWriter) Flush(ctx context.Context) error {
	if b.pending == 0 {
		return nil
	}
	count := b.pending
	body := bytes.NewReader(bytes.Clone(b.buf.Bytes()))
	b.buf.Reset()
	b.pending = 0

	req := esapi.BulkRequest{
		Body: body,
	}

	res, err := req.Do(ctx, b.es)
	if err != nil {
		return fmt.Errorf("failed to execute bulk request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("bulk request error: %s - %s", res.Status(), string(body))
	}

	var bulkResponse bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResponse); err != nil {
		return fmt.Errorf("failed to parse bulk response: %w", err)
	}
	if details := bulkResponse.failures(); len(details) > 0 {
		return fmt.Errorf("bulk request had errors: %s", strings.Join(details, "; "))
	}

	b.logger.Debug("bulk request sent", "operations", count)
	return nil
}

type bulkItem struct {
	ID     string `json:"_id"`
	Index  string `json:"_index"`
	Status int    `json:"status"`
	Error  struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

type bulkResponse struct {
	Errors bool                  `json:"errors"`
	Items  []map[string]bulkItem `json:"items"`
}

// failures describes every failed item. A delete answered with 404 means
// the document was already gone and is not a failure.
func (r bulkResponse) failures() []string {
	if !r.Errors {
		return nil
	}
	var details []string
	for _, item := range r.Items {
		for action, d := range item {
			if d.Status < 400 {
				continue
			}
			if action == "delete" && d.Status == http.StatusNotFound {
				continue
			}
			details = append(details, fmt.Sprintf(
				"%s failed for doc %s in %s (status %d): %s - %s",
				action, d.ID, d.Index, d.Status, d.Error.Type, d.Error.Reason,
			))
		}
	}
	return details
}
