package annotations

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type schemaRecord struct {
	ID        string          `db:"id"`
	Count     int             `db:"count"`
	Ratio     float64         `db:"ratio"`
	Active    bool            `db:"active"`
	CreatedAt time.Time       `db:"created_at"`
	DeletedAt *time.Time      `db:"deleted_at"`
	Meta      json.RawMessage `db:"meta"`
	Tags      []string        `db:"tags"`
	Skipped   string          `db:"-"`
	NoTag     string
}

func TestBuildSchemaFieldSelection(t *testing.T) {
	schema := buildSchema(reflect.TypeOf(schemaRecord{}))

	names := make([]string, 0)
	for _, f := range schema.Fields() {
		names = append(names, f.Name)
	}

	assert.Equal(t, []string{"id", "count", "ratio", "active", "created_at", "deleted_at", "meta", "tags"}, names)
	assert.False(t, schema.Has("Skipped"))
	assert.False(t, schema.Has("NoTag"))
}

func TestBuildSchemaKinds(t *testing.T) {
	schema := buildSchema(reflect.TypeOf(schemaRecord{}))

	kinds := map[string]FieldKind{}
	for _, f := range schema.Fields() {
		kinds[f.Name] = f.Kind
	}

	assert.Equal(t, FieldString, kinds["id"])
	assert.Equal(t, FieldInt, kinds["count"])
	assert.Equal(t, FieldFloat, kinds["ratio"])
	assert.Equal(t, FieldBool, kinds["active"])
	assert.Equal(t, FieldTime, kinds["created_at"])
	assert.Equal(t, FieldTime, kinds["deleted_at"])
	assert.Equal(t, FieldJSON, kinds["meta"])
	assert.Equal(t, FieldJSON, kinds["tags"])
}

func TestSchemaValueConversions(t *testing.T) {
	schema := buildSchema(reflect.TypeOf(schemaRecord{}))
	record := &schemaRecord{
		ID:        "rec-1",
		Count:     7,
		Active:    true,
		CreatedAt: time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC),
		Meta:      json.RawMessage(`{"channel": "general"}`),
		Tags:      []string{"a", "b"},
	}

	value, ok := schema.Value(record, "id")
	require.True(t, ok)
	assert.Equal(t, "rec-1", value)

	value, ok = schema.Value(record, "created_at")
	require.True(t, ok)
	assert.Equal(t, "2025-01-15T10:30:00Z", value)

	value, ok = schema.Value(record, "meta")
	require.True(t, ok)
	assert.Equal(t, `{"channel": "general"}`, value)

	value, ok = schema.Value(record, "tags")
	require.True(t, ok)
	assert.Equal(t, `["a","b"]`, value)

	value, ok = schema.Value(record, "deleted_at")
	require.True(t, ok)
	assert.Nil(t, value)

	_, ok = schema.Value(record, "unknown")
	assert.False(t, ok)
}

func TestSchemaValueTimezoneNormalized(t *testing.T) {
	schema := buildSchema(reflect.TypeOf(schemaRecord{}))
	loc := time.FixedZone("UTC+2", 2*60*60)
	record := &schemaRecord{CreatedAt: time.Date(2025, 1, 15, 12, 30, 0, 0, loc)}

	value, ok := schema.Value(record, "created_at")
	require.True(t, ok)
	assert.Equal(t, "2025-01-15T10:30:00Z", value)
}

func TestSchemaValueEmptyValuesDropToNil(t *testing.T) {
	schema := buildSchema(reflect.TypeOf(schemaRecord{}))
	record := &schemaRecord{Meta: json.RawMessage(`null`)}

	value, ok := schema.Value(record, "meta")
	require.True(t, ok)
	assert.Nil(t, value)

	value, ok = schema.Value(record, "created_at")
	require.True(t, ok)
	assert.Nil(t, value)

	value, ok = schema.Value(record, "tags")
	require.True(t, ok)
	assert.Nil(t, value)
}

func TestSchemaValueNilRecord(t *testing.T) {
	schema := buildSchema(reflect.TypeOf(schemaRecord{}))

	var record *schemaRecord
	_, ok := schema.Value(record, "id")
	assert.False(t, ok)
}
