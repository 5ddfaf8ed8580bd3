package annotations

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type extractRecord struct {
	ID        string          `db:"id"`
	Email     string          `db:"email"`
	Name      string          `db:"name"`
	APIToken  string          `db:"api_token"`
	TeamID    *string         `db:"team_id"`
	Meta      json.RawMessage `db:"meta"`
	CreatedAt time.Time       `db:"created_at"`
}

func (extractRecord) GraphNodeConfig() GraphNodeConfig {
	return GraphNodeConfig{
		Label:         "ExtractRecord",
		ExcludeFields: []string{"api_token"},
	}
}

func (extractRecord) SearchIndexConfig() SearchIndexConfig {
	return SearchIndexConfig{
		IndexName:  "extract_records",
		Properties: []string{"id", "email", "api_token", "nonexistent"},
	}
}

func newExtractDef(t *testing.T) *Definition {
	t.Helper()
	def, err := NewRegistry().Register("test:extract", &extractRecord{})
	require.NoError(t, err)
	return def
}

func TestExtractPropertiesExcludesAndDropsNil(t *testing.T) {
	def := newExtractDef(t)
	record := &extractRecord{
		ID:        "r1",
		Email:     "dana@example.com",
		Name:      "Dana",
		APIToken:  "secret",
		CreatedAt: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}

	props := ExtractProperties(def, record)

	assert.Equal(t, "r1", props["id"])
	assert.Equal(t, "dana@example.com", props["email"])
	assert.Equal(t, "2025-03-01T09:00:00Z", props["created_at"])
	assert.NotContains(t, props, "api_token")
	assert.NotContains(t, props, "team_id", "nil values are dropped")
	assert.NotContains(t, props, "meta", "empty JSON is dropped")
}

func TestExtractDocumentExplicitPropertiesWin(t *testing.T) {
	def := newExtractDef(t)
	record := &extractRecord{
		ID:       "r1",
		Email:    "dana@example.com",
		Name:     "Dana",
		APIToken: "secret",
	}

	doc := ExtractDocument(def, record)

	// The explicit list is authoritative: fields outside it are absent and
	// fields inside it are kept even if an exclude list would drop them.
	assert.Equal(t, map[string]any{
		"id":        "r1",
		"email":     "dana@example.com",
		"api_token": "secret",
	}, doc)
}

func TestExtractCarriesRawJSONAsText(t *testing.T) {
	def := newExtractDef(t)
	record := &extractRecord{
		ID:   "r1",
		Meta: json.RawMessage(`{"source": "slack"}`),
	}

	props := ExtractProperties(def, record)
	assert.Equal(t, `{"source": "slack"}`, props["meta"])
}
