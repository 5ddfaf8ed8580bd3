package annotations

import (
	"context"
	"sort"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Kode-Rex/weave/pkg/search"
	"github.com/Kode-Rex/weave/pkg/tracing"
)

// SearchStore is the slice of the search client the syncer needs.
type SearchStore interface {
	IndexExists(ctx context.Context, name string) (bool, error)
	CreateIndex(ctx context.Context, name string, body map[string]any) error
	IndexDocument(ctx context.Context, index, id string, doc map[string]any) error
	DeleteDocument(ctx context.Context, index, id string) error
	Search(ctx context.Context, indices []string, body map[string]any) (*search.Result, error)
}

// SearchOptions refine a Search call beyond the query string. Body entries
// are merged into the request verbatim except for "query", which the built
// query clause always owns.
type SearchOptions struct {
	Size    int
	From    int
	Sort    []map[string]any
	Filters map[string]any
	Body    map[string]any
}

// SearchSyncer projects registered records onto search documents and runs
// annotation-driven queries against their indices.
type SearchSyncer struct {
	registry *Registry
	store    SearchStore
	logger   ectologger.Logger
}

// NewSearchSyncer returns a syncer over the given registry and store.
func NewSearchSyncer(registry *Registry, store SearchStore, logger ectologger.Logger) *SearchSyncer {
	return &SearchSyncer{
		registry: registry,
		store:    store,
		logger:   logger,
	}
}

// UpsertDocument indexes the record's projected document under its id,
// replacing any previous version.
func (s *SearchSyncer) UpsertDocument(ctx context.Context, record any) error {
	ctx, span := tracing.StartSpan(ctx, "annotations.SearchSyncer.UpsertDocument")
	defer span.End()

	def, err := s.registry.DefinitionFor(record)
	if err != nil {
		return err
	}
	if def.Search == nil {
		return errors.Wrap(ErrNoSearchConfig, def.Name)
	}

	idValue, _ := def.Schema.Value(record, def.Search.IDField)
	doc := ExtractDocument(def, record)

	if err := s.store.IndexDocument(ctx, def.Search.IndexName, IDString(idValue), doc); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"record_type": def.Key,
			"index":       def.Search.IndexName,
		}).Error("Failed to index document")
		return errors.Wrapf(err, "index document for %s", def.Key)
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"record_type": def.Key,
		"index":       def.Search.IndexName,
	}).Debug("Indexed document")
	return nil
}

// DeleteDocument removes the record's document from its index. Deleting a
// document that was never indexed succeeds.
func (s *SearchSyncer) DeleteDocument(ctx context.Context, record any) error {
	def, err := s.registry.DefinitionFor(record)
	if err != nil {
		return err
	}
	if def.Search == nil {
		return errors.Wrap(ErrNoSearchConfig, def.Name)
	}

	idValue, _ := def.Schema.Value(record, def.Search.IDField)
	return s.DeleteDocumentByID(ctx, def.Key, IDString(idValue))
}

// DeleteDocumentByID removes a document by registry key and id, for callers
// that no longer hold the record, like outbox dispatch after a row delete.
func (s *SearchSyncer) DeleteDocumentByID(ctx context.Context, key, id string) error {
	ctx, span := tracing.StartSpan(ctx, "annotations.SearchSyncer.DeleteDocumentByID")
	defer span.End()

	def, err := s.registry.Resolve(key)
	if err != nil {
		return err
	}
	if def.Search == nil {
		return errors.Wrap(ErrNoSearchConfig, def.Name)
	}

	if err := s.store.DeleteDocument(ctx, def.Search.IndexName, id); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"record_type": def.Key,
			"index":       def.Search.IndexName,
			"id":          id,
		}).Error("Failed to delete document")
		return errors.Wrapf(err, "delete document for %s", def.Key)
	}
	return nil
}

// Search runs a full-text query against the record type's index. When the
// config lists text fields the query becomes a best-fields multi_match over
// them; otherwise it falls back to a query_string over all fields. Exact
// filters wrap the query in a bool filter.
func (s *SearchSyncer) Search(ctx context.Context, key, query string, opts SearchOptions) (*search.Result, error) {
	ctx, span := tracing.StartSpan(ctx, "annotations.SearchSyncer.Search")
	defer span.End()

	def, err := s.registry.Resolve(key)
	if err != nil {
		return nil, err
	}
	if def.Search == nil {
		return nil, errors.Wrap(ErrNoSearchConfig, def.Name)
	}

	body := buildSearchBody(def.Search, query, opts)

	result, err := s.store.Search(ctx, []string{def.Search.IndexName}, body)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"record_type": def.Key,
			"index":       def.Search.IndexName,
		}).Error("Failed to search index")
		return nil, errors.Wrapf(err, "search %s", def.Key)
	}
	return result, nil
}

// CreateIndex creates the record type's index when it does not exist yet,
// using the configured mapping or one generated from the schema. An
// existing index is left untouched.
func (s *SearchSyncer) CreateIndex(ctx context.Context, key string) error {
	ctx, span := tracing.StartSpan(ctx, "annotations.SearchSyncer.CreateIndex")
	defer span.End()

	def, err := s.registry.Resolve(key)
	if err != nil {
		return err
	}
	if def.Search == nil {
		return errors.Wrap(ErrNoSearchConfig, def.Name)
	}

	exists, err := s.store.IndexExists(ctx, def.Search.IndexName)
	if err != nil {
		return errors.Wrapf(err, "check index for %s", def.Key)
	}
	if exists {
		return nil
	}

	mapping := def.Search.Mapping
	if mapping == nil {
		mapping = GenerateMapping(def)
	}

	if err := s.store.CreateIndex(ctx, def.Search.IndexName, map[string]any{"mappings": mapping}); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"record_type": def.Key,
			"index":       def.Search.IndexName,
		}).Error("Failed to create index")
		return errors.Wrapf(err, "create index for %s", def.Key)
	}

	s.logger.WithContext(ctx).WithField("index", def.Search.IndexName).Info("Created search index")
	return nil
}

func buildSearchBody(cfg *SearchIndexConfig, query string, opts SearchOptions) map[string]any {
	var queryClause map[string]any
	if len(cfg.TextFields) > 0 {
		fields := make([]any, 0, len(cfg.TextFields))
		for _, f := range cfg.TextFields {
			fields = append(fields, f)
		}
		queryClause = map[string]any{
			"multi_match": map[string]any{
				"query":  query,
				"fields": fields,
				"type":   "best_fields",
			},
		}
	} else {
		queryClause = map[string]any{
			"query_string": map[string]any{"query": query},
		}
	}

	if len(opts.Filters) > 0 {
		names := make([]string, 0, len(opts.Filters))
		for name := range opts.Filters {
			names = append(names, name)
		}
		sort.Strings(names)

		filterClauses := make([]any, 0, len(names))
		for _, name := range names {
			filterClauses = append(filterClauses, map[string]any{
				"term": map[string]any{name: opts.Filters[name]},
			})
		}

		queryClause = map[string]any{
			"bool": map[string]any{
				"must":   []any{queryClause},
				"filter": filterClauses,
			},
		}
	}

	body := map[string]any{"query": queryClause}
	if opts.Size > 0 {
		body["size"] = opts.Size
	}
	if opts.From > 0 {
		body["from"] = opts.From
	}
	if len(opts.Sort) > 0 {
		body["sort"] = opts.Sort
	}
	for k, v := range opts.Body {
		if k == "query" {
			continue
		}
		body[k] = v
	}
	return body
}
