package migrations

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kode-Rex/weave/pkg/annotations"
)

func detectorLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type migUser struct {
	ID     string  `db:"id"`
	Email  string  `db:"email"`
	TeamID *string `db:"team_id"`
}

func (migUser) GraphNodeConfig() annotations.GraphNodeConfig {
	return annotations.GraphNodeConfig{Label: "MigUser"}
}

func (migUser) SearchIndexConfig() annotations.SearchIndexConfig {
	return annotations.SearchIndexConfig{IndexName: "mig_users", TextFields: []string{"email"}}
}

func (migUser) GraphRelationships() []annotations.RelationshipConfig {
	return []annotations.RelationshipConfig{
		{Type: "MEMBER_OF", Target: "test:channel", SourceField: "team_id"},
	}
}

// migUserRenamed is migUser with a different node label under the same key.
type migUserRenamed struct {
	ID     string  `db:"id"`
	Email  string  `db:"email"`
	TeamID *string `db:"team_id"`
}

func (migUserRenamed) GraphNodeConfig() annotations.GraphNodeConfig {
	return annotations.GraphNodeConfig{Label: "MigPerson"}
}

func (migUserRenamed) SearchIndexConfig() annotations.SearchIndexConfig {
	return annotations.SearchIndexConfig{IndexName: "mig_users", TextFields: []string{"email"}}
}

func (migUserRenamed) GraphRelationships() []annotations.RelationshipConfig {
	return []annotations.RelationshipConfig{
		{Type: "MEMBER_OF", Target: "test:channel", SourceField: "team_id"},
	}
}

// migUserMoreRels is migUser with an extra relationship.
type migUserMoreRels struct {
	ID     string  `db:"id"`
	Email  string  `db:"email"`
	TeamID *string `db:"team_id"`
}

func (migUserMoreRels) GraphNodeConfig() annotations.GraphNodeConfig {
	return annotations.GraphNodeConfig{Label: "MigUser"}
}

func (migUserMoreRels) SearchIndexConfig() annotations.SearchIndexConfig {
	return annotations.SearchIndexConfig{IndexName: "mig_users", TextFields: []string{"email"}}
}

func (migUserMoreRels) GraphRelationships() []annotations.RelationshipConfig {
	return []annotations.RelationshipConfig{
		{Type: "MEMBER_OF", Target: "test:channel", SourceField: "team_id"},
		{Type: "INVITED_BY", Target: "test:user", SourceField: "team_id"},
	}
}

type migChannel struct {
	ID   string `db:"id"`
	Name string `db:"name"`
}

func (migChannel) GraphNodeConfig() annotations.GraphNodeConfig {
	return annotations.GraphNodeConfig{Label: "MigChannel"}
}

// migChannelIndexed is migChannel with a search config added.
type migChannelIndexed struct {
	ID   string `db:"id"`
	Name string `db:"name"`
}

func (migChannelIndexed) GraphNodeConfig() annotations.GraphNodeConfig {
	return annotations.GraphNodeConfig{Label: "MigChannel"}
}

func (migChannelIndexed) SearchIndexConfig() annotations.SearchIndexConfig {
	return annotations.SearchIndexConfig{IndexName: "mig_channels"}
}

func baseRegistry(t *testing.T) *annotations.Registry {
	t.Helper()
	registry := annotations.NewRegistry()
	registry.MustRegister("test:user", &migUser{})
	registry.MustRegister("test:channel", &migChannel{})
	return registry
}

func statePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), ".weave", "annotation_state.json")
}

func TestDetectChangesFirstRunEmitsCreates(t *testing.T) {
	path := statePath(t)
	detector := NewDetector(baseRegistry(t), path, detectorLogger())

	changes, err := detector.DetectChanges(context.Background())
	require.NoError(t, err)
	require.Len(t, changes, 3)

	// Keys are walked sorted, so test:channel comes first.
	assert.Equal(t, ChangeCreate, changes[0].ChangeType)
	assert.Equal(t, StoreNeo4j, changes[0].StoreType)
	assert.Equal(t, "migChannel", changes[0].ModelName)
	assert.Equal(t, ActionCreateNodeLabel, changes[0].Details["action"])
	assert.Equal(t, "MigChannel", changes[0].Details["label"])

	assert.Equal(t, StoreNeo4j, changes[1].StoreType)
	assert.Equal(t, "migUser", changes[1].ModelName)

	assert.Equal(t, StoreElasticsearch, changes[2].StoreType)
	assert.Equal(t, ActionCreateIndex, changes[2].Details["action"])
	assert.Equal(t, "mig_users", changes[2].Details["index_name"])

	_, err = os.Stat(path)
	assert.NoError(t, err, "the snapshot must be persisted")
}

func TestDetectChangesSecondRunIsQuiet(t *testing.T) {
	path := statePath(t)

	_, err := NewDetector(baseRegistry(t), path, detectorLogger()).DetectChanges(context.Background())
	require.NoError(t, err)

	changes, err := NewDetector(baseRegistry(t), path, detectorLogger()).DetectChanges(context.Background())
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestDetectChangesLabelUpdate(t *testing.T) {
	path := statePath(t)

	_, err := NewDetector(baseRegistry(t), path, detectorLogger()).DetectChanges(context.Background())
	require.NoError(t, err)

	renamed := annotations.NewRegistry()
	renamed.MustRegister("test:user", &migUserRenamed{})
	renamed.MustRegister("test:channel", &migChannel{})

	changes, err := NewDetector(renamed, path, detectorLogger()).DetectChanges(context.Background())
	require.NoError(t, err)
	require.Len(t, changes, 1)

	assert.Equal(t, ChangeUpdate, changes[0].ChangeType)
	assert.Equal(t, StoreNeo4j, changes[0].StoreType)
	assert.Equal(t, ActionUpdateNodeLabel, changes[0].Details["action"])

	oldConfig := changes[0].Details["old_config"].(map[string]any)
	newConfig := changes[0].Details["new_config"].(map[string]any)
	assert.Equal(t, "MigUser", oldConfig["label"])
	assert.Equal(t, "MigPerson", newConfig["label"])
}

func TestDetectChangesAddedStoreIsIndependent(t *testing.T) {
	path := statePath(t)

	_, err := NewDetector(baseRegistry(t), path, detectorLogger()).DetectChanges(context.Background())
	require.NoError(t, err)

	updated := annotations.NewRegistry()
	updated.MustRegister("test:user", &migUser{})
	updated.MustRegister("test:channel", &migChannelIndexed{})

	changes, err := NewDetector(updated, path, detectorLogger()).DetectChanges(context.Background())
	require.NoError(t, err)
	require.Len(t, changes, 1, "adding a search config must not re-emit the graph create")

	assert.Equal(t, ChangeCreate, changes[0].ChangeType)
	assert.Equal(t, StoreElasticsearch, changes[0].StoreType)
	assert.Equal(t, "mig_channels", changes[0].Details["index_name"])
}

func TestDetectChangesRemovedType(t *testing.T) {
	path := statePath(t)

	_, err := NewDetector(baseRegistry(t), path, detectorLogger()).DetectChanges(context.Background())
	require.NoError(t, err)

	shrunk := annotations.NewRegistry()
	shrunk.MustRegister("test:user", &migUser{})

	changes, err := NewDetector(shrunk, path, detectorLogger()).DetectChanges(context.Background())
	require.NoError(t, err)
	require.Len(t, changes, 1)

	assert.Equal(t, ChangeDelete, changes[0].ChangeType)
	assert.Equal(t, StoreNeo4j, changes[0].StoreType)
	assert.Equal(t, ActionRemoveNodeLabel, changes[0].Details["action"])
	assert.Equal(t, "MigChannel", changes[0].Details["label"])
}

func TestDetectChangesRelationshipUpdate(t *testing.T) {
	path := statePath(t)

	_, err := NewDetector(baseRegistry(t), path, detectorLogger()).DetectChanges(context.Background())
	require.NoError(t, err)

	updated := annotations.NewRegistry()
	updated.MustRegister("test:user", &migUserMoreRels{})
	updated.MustRegister("test:channel", &migChannel{})

	changes, err := NewDetector(updated, path, detectorLogger()).DetectChanges(context.Background())
	require.NoError(t, err)
	require.Len(t, changes, 1)

	assert.Equal(t, ChangeUpdate, changes[0].ChangeType)
	assert.Equal(t, ActionUpdateRelationships, changes[0].Details["action"])

	newRels := changes[0].Details["new_relationships"].([]map[string]any)
	require.Len(t, newRels, 2)
	assert.Equal(t, "INVITED_BY", newRels[1]["type"])
}

func TestDetectChangesCorruptSnapshotTreatedAsEmpty(t *testing.T) {
	path := statePath(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))

	changes, err := NewDetector(baseRegistry(t), path, detectorLogger()).DetectChanges(context.Background())
	require.NoError(t, err)
	assert.Len(t, changes, 3, "everything registered shows up as new")
}

func TestDetectChangesPersistFailureIsFatal(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	path := filepath.Join(blocker, "sub", "state.json")
	_, err := NewDetector(baseRegistry(t), path, detectorLogger()).DetectChanges(context.Background())
	assert.Error(t, err)
}
