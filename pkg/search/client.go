// Package search provides the Elasticsearch client used for document indexing and retrieval
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/elastic/go-elasticsearch/v8"

	"github.com/Kode-Rex/weave/pkg/tracing"
)

// Client wraps the Elasticsearch client
type Client struct {
	es     *elasticsearch.Client
	logger ectologger.Logger
}

// Config holds search cluster configuration
type Config struct {
	Addresses []string
	Username  string
	Password  string
}

// NewClient creates a new search client
func NewClient(cfg Config, logger ectologger.Logger) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create search client: %w", err)
	}

	return &Client{
		es:     es,
		logger: logger,
	}, nil
}

// Ping checks if the cluster is reachable
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to ping search cluster: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("failed to ping search cluster: %s", res.String())
	}
	return nil
}

// IndexExists reports whether the index exists
func (c *Client) IndexExists(ctx context.Context, name string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "search.Client.IndexExists")
	defer span.End()

	res, err := c.es.Indices.Exists([]string{name}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("failed to check index %s: %w", name, err)
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		return false, nil
	}
	if res.IsError() {
		return false, fmt.Errorf("failed to check index %s: %s", name, res.String())
	}
	return true, nil
}

// CreateIndex creates an index with the given mapping
func (c *Client) CreateIndex(ctx context.Context, name string, mapping map[string]any) error {
	ctx, span := tracing.StartSpan(ctx, "search.Client.CreateIndex")
	defer span.End()

	body, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to serialize mapping for index %s: %w", name, err)
	}

	res, err := c.es.Indices.Create(
		name,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Errorf("Failed to create index %s", name)
		return fmt.Errorf("failed to create index %s: %w", name, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("failed to create index %s: %s", name, res.String())
	}
	return nil
}

// DeleteIndex removes an index. Deleting a missing index is not an error.
func (c *Client) DeleteIndex(ctx context.Context, name string) error {
	ctx, span := tracing.StartSpan(ctx, "search.Client.DeleteIndex")
	defer span.End()

	res, err := c.es.Indices.Delete([]string{name}, c.es.Indices.Delete.WithContext(ctx))
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Errorf("Failed to delete index %s", name)
		return fmt.Errorf("failed to delete index %s: %w", name, err)
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		return nil
	}
	if res.IsError() {
		return fmt.Errorf("failed to delete index %s: %s", name, res.String())
	}
	return nil
}

// IndexDocument creates or replaces a document by id
func (c *Client) IndexDocument(ctx context.Context, index string, id string, doc map[string]any) error {
	ctx, span := tracing.StartSpan(ctx, "search.Client.IndexDocument")
	defer span.End()

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to serialize document %s: %w", id, err)
	}

	res, err := c.es.Index(
		index,
		bytes.NewReader(body),
		c.es.Index.WithContext(ctx),
		c.es.Index.WithDocumentID(id),
	)
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Errorf("Failed to index document %s in %s", id, index)
		return fmt.Errorf("failed to index document %s in %s: %w", id, index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("failed to index document %s in %s: %s", id, index, res.String())
	}
	return nil
}

// GetDocument fetches a document by id. The second return is false when the
// document does not exist.
func (c *Client) GetDocument(ctx context.Context, index string, id string) (map[string]any, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "search.Client.GetDocument")
	defer span.End()

	res, err := c.es.Get(index, id, c.es.Get.WithContext(ctx))
	if err != nil {
		return nil, false, fmt.Errorf("failed to get document %s from %s: %w", id, index, err)
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		return nil, false, nil
	}
	if res.IsError() {
		return nil, false, fmt.Errorf("failed to get document %s from %s: %s", id, index, res.String())
	}

	var payload struct {
		Source map[string]any `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return nil, false, fmt.Errorf("failed to parse document %s from %s: %w", id, index, err)
	}
	return payload.Source, true, nil
}

// DeleteDocument removes a document by id. Deleting a missing document is
// treated as success.
func (c *Client) DeleteDocument(ctx context.Context, index string, id string) error {
	ctx, span := tracing.StartSpan(ctx, "search.Client.DeleteDocument")
	defer span.End()

	res, err := c.es.Delete(index, id, c.es.Delete.WithContext(ctx))
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Errorf("Failed to delete document %s from %s", id, index)
		return fmt.Errorf("failed to delete document %s from %s: %w", id, index, err)
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		return nil
	}
	if res.IsError() {
		return fmt.Errorf("failed to delete document %s from %s: %s", id, index, res.String())
	}
	return nil
}

// Hit is a single search result
type Hit struct {
	ID     string         `json:"id"`
	Index  string         `json:"index"`
	Score  float64        `json:"score"`
	Source map[string]any `json:"source"`
}

// Result holds search hits and totals
type Result struct {
	Took     int     `json:"took"`
	Total    int     `json:"total"`
	MaxScore float64 `json:"max_score"`
	Hits     []Hit   `json:"hits"`
}

// Search runs a query body against the given indices
func (c *Client) Search(ctx context.Context, indices []string, body map[string]any) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "search.Client.Search")
	defer span.End()

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(indices...),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Errorf("Failed to search indices %s", strings.Join(indices, ","))
		return nil, fmt.Errorf("failed to search indices %s: %w", strings.Join(indices, ","), err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("failed to search indices %s: %s", strings.Join(indices, ","), res.String())
	}

	var raw struct {
		Took int `json:"took"`
		Hits struct {
			Total struct {
				Value int `json:"value"`
			} `json:"total"`
			MaxScore float64 `json:"max_score"`
			Hits     []struct {
				Index  string         `json:"_index"`
				ID     string         `json:"_id"`
				Score  float64        `json:"_score"`
				Source map[string]any `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	result := &Result{
		Took:     raw.Took,
		Total:    raw.Hits.Total.Value,
		MaxScore: raw.Hits.MaxScore,
		Hits:     make([]Hit, 0, len(raw.Hits.Hits)),
	}
	for _, h := range raw.Hits.Hits {
		result.Hits = append(result.Hits, Hit{
			ID:     h.ID,
			Index:  h.Index,
			Score:  h.Score,
			Source: h.Source,
		})
	}
	return result, nil
}

// BulkDoc is a single document in a bulk index request
type BulkDoc struct {
	Index string
	ID    string
	Doc   map[string]any
}

// BulkIndex indexes a batch of documents in one request
func (c *Client) BulkIndex(ctx context.Context, docs []BulkDoc) error {
	ctx, span := tracing.StartSpan(ctx, "search.Client.BulkIndex")
	defer span.End()

	if len(docs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, d := range docs {
		action := map[string]any{
			"index": map[string]any{
				"_index": d.Index,
				"_id":    d.ID,
			},
		}
		meta, err := json.Marshal(action)
		if err != nil {
			return fmt.Errorf("failed to serialize bulk action for %s: %w", d.ID, err)
		}
		source, err := json.Marshal(d.Doc)
		if err != nil {
			return fmt.Errorf("failed to serialize bulk document %s: %w", d.ID, err)
		}
		buf.Write(meta)
		buf.WriteByte('\n')
		buf.Write(source)
		buf.WriteByte('\n')
	}

	res, err := c.es.Bulk(bytes.NewReader(buf.Bytes()), c.es.Bulk.WithContext(ctx))
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Errorf("Failed to bulk index %d documents", len(docs))
		return fmt.Errorf("failed to bulk index %d documents: %w", len(docs), err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("failed to bulk index %d documents: %s", len(docs), res.String())
	}

	var raw struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int `json:"status"`
			Error  any `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&raw); err != nil {
		return fmt.Errorf("failed to parse bulk response: %w", err)
	}

	if raw.Errors {
		failed := 0
		for _, item := range raw.Items {
			for _, op := range item {
				if op.Status >= 300 {
					failed++
				}
			}
		}
		return fmt.Errorf("bulk index completed with %d failed documents", failed)
	}
	return nil
}
