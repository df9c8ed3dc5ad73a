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

	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/config"
	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/ports"
	"github.com/elastic/go-elasticsearch/v9"
	"github.com/elastic/go-elasticsearch/v9/esapi"
)

var _ ports.SearchIndex = (*Client)(nil)

// Client implements the SearchIndex interface for Elasticsearch operations.
type Client struct {
	es     *elasticsearch.Client
	logger *slog.Logger
}

// New creates a new Elasticsearch client, retrieving configuration from context.
func New(ctx context.Context) (*Client, error) {
	appCfg := config.GetConfig(ctx)

	esCfg := elasticsearch.Config{
		Addresses:           []string{appCfg.Elasticsearch.URL},
		MaxRetries:          appCfg.Elasticsearch.MaxRetries,
		CompressRequestBody: appCfg.Elasticsearch.Compress,
	}
	if appCfg.Elasticsearch.HasCredentials() {
		esCfg.Username = appCfg.Elasticsearch.User
		esCfg.Password = appCfg.Elasticsearch.Password
	}

	return connect(esCfg, appCfg.Elasticsearch.HasCredentials())
}

// NewWithURL creates a new Elasticsearch client with explicit URL and credentials.
// This constructor is primarily intended for testing purposes.
func NewWithURL(elasticsearchURL, username, password string) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{elasticsearchURL},
	}
	if username != "" && password != "" {
		cfg.Username = username
		cfg.Password = password
	}
	return connect(cfg, username != "")
}

func connect(cfg elasticsearch.Config, authenticated bool) (*Client, error) {
	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	// Verify connection
	res, err := es.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("elasticsearch connection error: %s - %s", res.Status(), string(body))
	}

	logger := slog.Default().With("component", "elasticsearch")
	logger.Info("connected to elasticsearch", "url", strings.Join(cfg.Addresses, ","), "authenticated", authenticated)

	return &Client{
		es:     es,
		logger: logger,
	}, nil
}

// NewBulk returns a writer that batches document operations into bulk
// requests of at most flushSize operations.
func (c *Client) NewBulk(flushSize int) ports.BulkWriter {
	return newBulkWriter(c.es, flushSize, c.logger)
}

// DeleteIndex removes an index from Elasticsearch.
func (c *Client) DeleteIndex(ctx context.Context, indexName string) error {
	req := esapi.IndicesDeleteRequest{
		Index: []string{indexName},
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("failed to delete index %s: %w", indexName, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		// 404 is acceptable - index already doesn't exist
		if res.StatusCode == http.StatusNotFound {
			c.logger.Info("index does not exist (already deleted)", "index", indexName)
			return nil
		}

		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("delete index error: %s - %s", res.Status(), string(body))
	}

	c.logger.Info("deleted index", "index", indexName)
	return nil
}

// CreateIndex creates a new index with the given settings and mapping body.
func (c *Client) CreateIndex(ctx context.Context, indexName string, body string) error {
	req := esapi.IndicesCreateRequest{
		Index: indexName,
		Body:  strings.NewReader(body),
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", indexName, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("create index error: %s - %s", res.Status(), string(body))
	}

	c.logger.Info("created index", "index", indexName)
	return nil
}

// PutMapping updates the mapping of an existing index.
func (c *Client) PutMapping(ctx context.Context, indexName string, mapping string) error {
	req := esapi.IndicesPutMappingRequest{
		Index: []string{indexName},
		Body:  strings.NewReader(mapping),
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("failed to update mapping of %s: %w", indexName, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("put mapping error: %s - %s", res.Status(), string(body))
	}

	c.logger.Info("updated mapping", "index", indexName)
	return nil
}

// IndexExists checks if an index exists in Elasticsearch.
func (c *Client) IndexExists(ctx context.Context, indexName string) (bool, error) {
	req := esapi.IndicesExistsRequest{
		Index: []string{indexName},
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return false, fmt.Errorf("failed to check if index exists %s: %w", indexName, err)
	}
	defer res.Body.Close()

	// 200 = exists, 404 = does not exist
	if res.StatusCode == http.StatusOK {
		return true, nil
	}
	if res.StatusCode == http.StatusNotFound {
		return false, nil
	}

	body, _ := io.ReadAll(res.Body)
	return false, fmt.Errorf("index exists check error: %s - %s", res.Status(), string(body))
}

// UpdateAlias points alias at indexName in one atomic request, detaching it
// from every other index.
func (c *Client) UpdateAlias(ctx context.Context, alias string, indexName string) error {
	body, err := json.Marshal(aliasActions(alias, indexName))
	if err != nil {
		return fmt.Errorf("failed to marshal alias actions: %w", err)
	}

	req := esapi.IndicesUpdateAliasesRequest{
		Body: bytes.NewReader(body),
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("failed to update alias %s: %w", alias, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("update alias error: %s - %s", res.Status(), string(body))
	}

	c.logger.Info("updated alias", "alias", alias, "index", indexName)
	return nil
}

func aliasActions(alias, indexName string) map[string]any {
	return map[string]any{
		"actions": []map[string]any{
			{"remove": map[string]any{"index": "*", "alias": alias, "must_exist": false}},
			{"add": map[string]any{"index": indexName, "alias": alias}},
		},
	}
}

// ListIndices returns the names of the indices matching pattern.
func (c *Client) ListIndices(ctx context.Context, pattern string) ([]string, error) {
	req := esapi.CatIndicesRequest{
		Index:  []string{pattern},
		Format: "json",
		H:      []string{"index"},
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return nil, fmt.Errorf("failed to list indices %s: %w", pattern, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("list indices error: %s - %s", res.Status(), string(body))
	}

	var rows []struct {
		Index string `json:"index"`
	}
	if err := json.NewDecoder(res.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to parse index list: %w", err)
	}

	names := make([]string, 0, len(rows))
	for _, row := range rows {
		names = append(names, row.Index)
	}
	return names, nil
}
