package annotations

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kode-Rex/weave/pkg/search"
)

type fakeSearchStore struct {
	exists       bool
	existsErr    error
	indexErr     error
	deleteErr    error
	searchErr    error
	createErr    error
	indexedIndex string
	indexedID    string
	indexedDoc   map[string]any
	deletedIndex string
	deletedID    string
	createdIndex string
	createdBody  map[string]any
	searchIndex  []string
	searchBody   map[string]any
	result       *search.Result
}

func (f *fakeSearchStore) IndexExists(_ context.Context, name string) (bool, error) {
	return f.exists, f.existsErr
}

func (f *fakeSearchStore) CreateIndex(_ context.Context, name string, body map[string]any) error {
	f.createdIndex = name
	f.createdBody = body
	return f.createErr
}

func (f *fakeSearchStore) IndexDocument(_ context.Context, index, id string, doc map[string]any) error {
	f.indexedIndex = index
	f.indexedID = id
	f.indexedDoc = doc
	return f.indexErr
}

func (f *fakeSearchStore) DeleteDocument(_ context.Context, index, id string) error {
	f.deletedIndex = index
	f.deletedID = id
	return f.deleteErr
}

func (f *fakeSearchStore) Search(_ context.Context, indices []string, body map[string]any) (*search.Result, error) {
	f.searchIndex = indices
	f.searchBody = body
	if f.result != nil {
		return f.result, f.searchErr
	}
	return &search.Result{}, f.searchErr
}

type searchArticle struct {
	ID      int    `db:"id"`
	Title   string `db:"title"`
	Content string `db:"content"`
	Author  string `db:"author"`
}

func (searchArticle) SearchIndexConfig() SearchIndexConfig {
	return SearchIndexConfig{
		IndexName:  "articles",
		TextFields: []string{"title", "content"},
	}
}

type searchBare struct {
	ID string `db:"id"`
}

func (searchBare) SearchIndexConfig() SearchIndexConfig {
	return SearchIndexConfig{IndexName: "bare"}
}

type searchGraphOnly struct {
	ID string `db:"id"`
}

func (searchGraphOnly) GraphNodeConfig() GraphNodeConfig {
	return GraphNodeConfig{Label: "SearchGraphOnly"}
}

func newSearchFixture(t *testing.T) (*fakeSearchStore, *SearchSyncer) {
	t.Helper()
	registry := NewRegistry()
	registry.MustRegister("test:article", &searchArticle{})
	registry.MustRegister("test:bare", &searchBare{})
	registry.MustRegister("test:graph-only", &searchGraphOnly{})

	store := &fakeSearchStore{}
	return store, NewSearchSyncer(registry, store, testLogger())
}

func TestUpsertDocument(t *testing.T) {
	store, syncer := newSearchFixture(t)

	err := syncer.UpsertDocument(context.Background(), &searchArticle{ID: 7, Title: "Weave", Author: "dana"})
	require.NoError(t, err)

	assert.Equal(t, "articles", store.indexedIndex)
	assert.Equal(t, "7", store.indexedID, "numeric ids are rendered as strings")
	assert.Equal(t, "Weave", store.indexedDoc["title"])
	assert.Equal(t, 7, store.indexedDoc["id"])
}

func TestUpsertDocumentErrors(t *testing.T) {
	store, syncer := newSearchFixture(t)

	err := syncer.UpsertDocument(context.Background(), &searchGraphOnly{ID: "x"})
	assert.True(t, errors.Is(err, ErrNoSearchConfig))

	store.indexErr = errors.New("es down")
	err = syncer.UpsertDocument(context.Background(), &searchArticle{ID: 1})
	assert.Error(t, err)
}

func TestDeleteDocument(t *testing.T) {
	store, syncer := newSearchFixture(t)

	err := syncer.DeleteDocument(context.Background(), &searchArticle{ID: 7})
	require.NoError(t, err)
	assert.Equal(t, "articles", store.deletedIndex)
	assert.Equal(t, "7", store.deletedID)

	err = syncer.DeleteDocument(context.Background(), &searchGraphOnly{ID: "x"})
	assert.True(t, errors.Is(err, ErrNoSearchConfig))
}

func TestDeleteDocumentByID(t *testing.T) {
	store, syncer := newSearchFixture(t)

	err := syncer.DeleteDocumentByID(context.Background(), "test:article", "42")
	require.NoError(t, err)
	assert.Equal(t, "articles", store.deletedIndex)
	assert.Equal(t, "42", store.deletedID)

	err = syncer.DeleteDocumentByID(context.Background(), "test:missing", "42")
	assert.True(t, errors.Is(err, ErrNotRegistered))
}

func TestSearchUsesTextFields(t *testing.T) {
	store, syncer := newSearchFixture(t)

	_, err := syncer.Search(context.Background(), "test:article", "deploy", SearchOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"articles"}, store.searchIndex)

	query, ok := store.searchBody["query"].(map[string]any)
	require.True(t, ok)
	multiMatch, ok := query["multi_match"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "deploy", multiMatch["query"])
	assert.Equal(t, "best_fields", multiMatch["type"])
	assert.Equal(t, []any{"title", "content"}, multiMatch["fields"])
}

func TestSearchFallsBackToQueryString(t *testing.T) {
	store, syncer := newSearchFixture(t)

	_, err := syncer.Search(context.Background(), "test:bare", "deploy", SearchOptions{})
	require.NoError(t, err)

	query, ok := store.searchBody["query"].(map[string]any)
	require.True(t, ok)
	queryString, ok := query["query_string"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "deploy", queryString["query"])
}

func TestSearchFiltersWrapQueryInBool(t *testing.T) {
	store, syncer := newSearchFixture(t)

	_, err := syncer.Search(context.Background(), "test:article", "deploy", SearchOptions{
		Filters: map[string]any{"author": "dana"},
	})
	require.NoError(t, err)

	query := store.searchBody["query"].(map[string]any)
	boolQuery, ok := query["bool"].(map[string]any)
	require.True(t, ok)

	must, ok := boolQuery["must"].([]any)
	require.True(t, ok)
	require.Len(t, must, 1)
	assert.Contains(t, must[0].(map[string]any), "multi_match")

	filter, ok := boolQuery["filter"].([]any)
	require.True(t, ok)
	require.Len(t, filter, 1)
	term := filter[0].(map[string]any)["term"].(map[string]any)
	assert.Equal(t, "dana", term["author"])
}

func TestSearchOptionsMergeWithoutOverridingQuery(t *testing.T) {
	store, syncer := newSearchFixture(t)

	_, err := syncer.Search(context.Background(), "test:article", "deploy", SearchOptions{
		Size: 25,
		From: 50,
		Sort: []map[string]any{{"created_at": "desc"}},
		Body: map[string]any{
			"query":     map[string]any{"match_all": map[string]any{}},
			"highlight": map[string]any{"fields": map[string]any{"content": map[string]any{}}},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 25, store.searchBody["size"])
	assert.Equal(t, 50, store.searchBody["from"])
	assert.Contains(t, store.searchBody, "highlight")
	assert.Contains(t, store.searchBody, "sort")

	query := store.searchBody["query"].(map[string]any)
	assert.Contains(t, query, "multi_match", "a caller-supplied query must not replace the built one")
	assert.NotContains(t, query, "match_all")
}

func TestCreateIndexSkipsExisting(t *testing.T) {
	store, syncer := newSearchFixture(t)
	store.exists = true

	err := syncer.CreateIndex(context.Background(), "test:article")
	require.NoError(t, err)
	assert.Empty(t, store.createdIndex)
}

func TestCreateIndexGeneratesMapping(t *testing.T) {
	store, syncer := newSearchFixture(t)

	err := syncer.CreateIndex(context.Background(), "test:article")
	require.NoError(t, err)

	assert.Equal(t, "articles", store.createdIndex)
	mappings, ok := store.createdBody["mappings"].(map[string]any)
	require.True(t, ok)
	props := mappings["properties"].(map[string]any)
	assert.Equal(t, map[string]any{"type": "text", "analyzer": "standard"}, props["title"])
	assert.Equal(t, map[string]any{"type": "keyword"}, props["author"])
}

func TestCreateIndexUsesCustomMapping(t *testing.T) {
	registry := NewRegistry()
	custom := map[string]any{"properties": map[string]any{"title": map[string]any{"type": "text"}}}
	registry.MustRegister("test:custom", &customMappingRecord{})

	store := &fakeSearchStore{}
	syncer := NewSearchSyncer(registry, store, testLogger())

	err := syncer.CreateIndex(context.Background(), "test:custom")
	require.NoError(t, err)
	assert.Equal(t, custom, store.createdBody["mappings"])
}

type customMappingRecord struct {
	ID string `db:"id"`
}

func (customMappingRecord) SearchIndexConfig() SearchIndexConfig {
	return SearchIndexConfig{
		IndexName: "custom_mapped",
		Mapping:   map[string]any{"properties": map[string]any{"title": map[string]any{"type": "text"}}},
	}
}
