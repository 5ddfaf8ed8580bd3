// Package retrieval serves relevant documents for a user prompt. Queries run
// against the content indices with a permission filter derived from the
// caller's email, and responses are cached in Redis.
package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Kode-Rex/weave/pkg/metrics"
	"github.com/Kode-Rex/weave/pkg/search"
	"github.com/Kode-Rex/weave/pkg/tracing"
)

// DefaultIndices are the content indices searched when none are configured.
var DefaultIndices = []string{"google_drive_files", "slack_messages", "web_pages"}

const (
	defaultSize     = 5
	defaultCacheTTL = time.Hour
)

// DocumentMetadata carries the meta block of an indexed document.
type DocumentMetadata struct {
	Source       string           `json:"source"`
	FileName     string           `json:"file_name,omitempty"`
	CreatedTime  string           `json:"created_time,omitempty"`
	ModifiedTime string           `json:"modified_time,omitempty"`
	WebLink      string           `json:"web_link,omitempty"`
	Permissions  []map[string]any `json:"permissions,omitempty"`
	IsPublic     bool             `json:"is_public"`
}

// Document is one scored hit from the content indices.
type Document struct {
	ID       string           `json:"id"`
	Content  string           `json:"content"`
	Score    float64          `json:"score"`
	Metadata DocumentMetadata `json:"metadata"`
}

// DocumentResult is the trimmed document shape returned to completion flows.
type DocumentResult struct {
	ID      string  `json:"id,omitempty"`
	Content string  `json:"content"`
	Source  string  `json:"source"`
	Score   float64 `json:"score,omitempty"`
}

// Result is the outcome of a context retrieval.
type Result struct {
	Documents       []DocumentResult `json:"documents"`
	RetrievalTimeMS int64            `json:"retrieval_time_ms"`
	CacheHit        bool             `json:"cache_hit"`
}

// Sources returns the distinct document sources in first-seen order.
func (r *Result) Sources() []string {
	sources := make([]string, 0, len(r.Documents))
	seen := make(map[string]bool, len(r.Documents))
	for _, doc := range r.Documents {
		if seen[doc.Source] {
			continue
		}
		seen[doc.Source] = true
		sources = append(sources, doc.Source)
	}
	return sources
}

// Searcher runs query bodies against the content indices. Satisfied by the
// search client.
type Searcher interface {
	Search(ctx context.Context, indices []string, body map[string]any) (*search.Result, error)
}

// ResponseCache stores retrieval results between identical requests.
// Satisfied by the cache client; nil disables caching.
type ResponseCache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, expiration time.Duration) error
}

// Config tunes the retrieval service.
type Config struct {
	// Indices searched for content. Defaults to DefaultIndices.
	Indices []string

	// Size caps returned documents. Defaults to 5.
	Size int

	// CacheTTL bounds how long responses are reused. Defaults to 1h.
	CacheTTL time.Duration
}

// Service searches the content indices for context documents.
type Service struct {
	searcher Searcher
	cache    ResponseCache
	logger   ectologger.Logger
	indices  []string
	size     int
	cacheTTL time.Duration
}

// NewService wires a retrieval service. cache may be nil.
func NewService(searcher Searcher, cache ResponseCache, logger ectologger.Logger, cfg Config) *Service {
	indices := cfg.Indices
	if len(indices) == 0 {
		indices = DefaultIndices
	}
	size := cfg.Size
	if size < 1 {
		size = defaultSize
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	return &Service{
		searcher: searcher,
		cache:    cache,
		logger:   logger,
		indices:  indices,
		size:     size,
		cacheTTL: ttl,
	}
}

// GetContext returns the documents relevant to a prompt, scoped to what the
// caller is allowed to see. A missing email or a search failure degrades to
// an empty result so completion flows keep working.
func (s *Service) GetContext(ctx context.Context, email, prompt string) *Result {
	ctx, span := tracing.StartSpan(ctx, "retrieval.Service.GetContext")
	defer span.End()

	start := time.Now()

	if email == "" {
		s.logger.WithContext(ctx).Warn("No user email provided for context retrieval")
		metrics.RecordRetrieval("skipped", time.Since(start).Seconds())
		return &Result{Documents: []DocumentResult{}, RetrievalTimeMS: time.Since(start).Milliseconds()}
	}

	key := cacheKey(email, prompt)
	if s.cache != nil {
		var cached Result
		found, err := s.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("Context cache read failed")
		}
		if found {
			metrics.RetrievalCacheHits.WithLabelValues("hit").Inc()
			metrics.RecordRetrieval("success", time.Since(start).Seconds())
			cached.CacheHit = true
			cached.RetrievalTimeMS = time.Since(start).Milliseconds()
			return &cached
		}
		metrics.RetrievalCacheHits.WithLabelValues("miss").Inc()
	}

	documents, err := s.SearchDocuments(ctx, prompt, email, s.size)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("email", email).Error("Context retrieval failed")
		metrics.RecordRetrieval("error", time.Since(start).Seconds())
		return &Result{Documents: []DocumentResult{}, RetrievalTimeMS: time.Since(start).Milliseconds()}
	}

	result := &Result{
		Documents:       make([]DocumentResult, 0, len(documents)),
		RetrievalTimeMS: time.Since(start).Milliseconds(),
	}
	for _, doc := range documents {
		result.Documents = append(result.Documents, DocumentResult{
			ID:      doc.ID,
			Content: doc.Content,
			Source:  transformSource(doc.Metadata.Source),
			Score:   doc.Score,
		})
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, result, s.cacheTTL); err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("Context cache write failed")
		}
	}

	metrics.RecordRetrieval("success", time.Since(start).Seconds())
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"email": email,
		"count": len(result.Documents),
	}).Info("Retrieved context documents")
	return result
}

// SearchDocuments runs the permission-filtered content query and returns the
// scored hits.
func (s *Service) SearchDocuments(ctx context.Context, query, userEmail string, size int) ([]Document, error) {
	ctx, span := tracing.StartSpan(ctx, "retrieval.Service.SearchDocuments")
	defer span.End()

	if size < 1 {
		size = s.size
	}

	body := buildSearchBody(query, userEmail, size)
	res, err := s.searcher.Search(ctx, s.indices, body)
	if err != nil {
		return nil, err
	}

	documents := make([]Document, 0, len(res.Hits))
	for _, hit := range res.Hits {
		documents = append(documents, documentFromHit(hit))
	}
	return documents, nil
}

// buildSearchBody assembles the content query: best-fields relevance over
// content and metadata, filtered to documents the caller may read (public,
// shared with their email, or shared with their domain).
func buildSearchBody(query, userEmail string, size int) map[string]any {
	domain := emailDomain(userEmail)

	return map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must": []any{
					map[string]any{
						"multi_match": map[string]any{
							"query":       query,
							"fields":      []any{"content^3", "meta.file_name^2", "meta.topic^2"},
							"type":        "best_fields",
							"tie_breaker": 0.3,
						},
					},
				},
				"filter": []any{
					map[string]any{
						"bool": map[string]any{
							"should": []any{
								map[string]any{"term": map[string]any{"meta.is_public": true}},
								map[string]any{"term": map[string]any{"meta.accessible_by_emails": userEmail}},
								map[string]any{"prefix": map[string]any{"meta.accessible_by_domains": domain}},
							},
							"minimum_should_match": 1,
						},
					},
				},
			},
		},
		"size": size,
		"_source": map[string]any{
			"includes": []any{"content", "meta.*"},
		},
	}
}

func documentFromHit(hit search.Hit) Document {
	doc := Document{ID: hit.ID, Score: hit.Score}
	if content, ok := hit.Source["content"].(string); ok {
		doc.Content = content
	}
	meta, _ := hit.Source["meta"].(map[string]any)
	doc.Metadata = metadataFromMap(meta)
	return doc
}

func metadataFromMap(meta map[string]any) DocumentMetadata {
	md := DocumentMetadata{Source: "unknown"}
	if meta == nil {
		return md
	}

	if v, ok := meta["source"].(string); ok && v != "" {
		md.Source = v
	}
	if v, ok := meta["file_name"].(string); ok {
		md.FileName = v
	}
	if v, ok := meta["created_time"].(string); ok {
		md.CreatedTime = v
	}
	if v, ok := meta["modified_time"].(string); ok {
		md.ModifiedTime = v
	}
	if v, ok := meta["web_link"].(string); ok {
		md.WebLink = v
	}
	if v, ok := meta["is_public"].(bool); ok {
		md.IsPublic = v
	}
	if raw, ok := meta["permissions"].([]any); ok {
		for _, p := range raw {
			if perm, ok := p.(map[string]any); ok {
				md.Permissions = append(md.Permissions, perm)
			}
		}
	}
	return md
}

// transformSource maps index names to the friendly source labels completion
// flows show users: google_drive_files -> google_drive, slack_messages ->
// slack, anything else keeps its first underscore-delimited part.
func transformSource(source string) string {
	switch {
	case source == "" || source == "unknown":
		return "unknown"
	case strings.HasPrefix(source, "google_drive"):
		return "google_drive"
	case strings.HasPrefix(source, "slack"):
		return "slack"
	default:
		return strings.SplitN(source, "_", 2)[0]
	}
}

func emailDomain(email string) string {
	if at := strings.LastIndex(email, "@"); at >= 0 && at < len(email)-1 {
		return email[at+1:]
	}
	return email
}

func cacheKey(email, prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return fmt.Sprintf("context:%s:%s", email, hex.EncodeToString(sum[:]))
}
