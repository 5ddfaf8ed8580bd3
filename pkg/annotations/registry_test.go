package annotations

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type regUser struct {
	ID     string  `db:"id"`
	Email  string  `db:"email"`
	TeamID *string `db:"team_id"`
}

func (regUser) GraphNodeConfig() GraphNodeConfig {
	return GraphNodeConfig{Label: "RegUser"}
}

func (regUser) SearchIndexConfig() SearchIndexConfig {
	return SearchIndexConfig{IndexName: "reg_users", TextFields: []string{"email"}}
}

func (regUser) GraphRelationships() []RelationshipConfig {
	return []RelationshipConfig{
		{Type: "MEMBER_OF", Target: "test:team", SourceField: "team_id"},
	}
}

type regPlain struct {
	ID string `db:"id"`
}

type regTeam struct {
	ID string `db:"id"`
}

func (regTeam) GraphNodeConfig() GraphNodeConfig {
	return GraphNodeConfig{Label: "RegTeam"}
}

type regBadLabel struct {
	ID string `db:"id"`
}

func (regBadLabel) GraphNodeConfig() GraphNodeConfig {
	return GraphNodeConfig{}
}

type regBadID struct {
	ID string `db:"id"`
}

func (regBadID) GraphNodeConfig() GraphNodeConfig {
	return GraphNodeConfig{Label: "RegBadID", IDField: "uuid"}
}

type regRelsOnlySearch struct {
	ID     string `db:"id"`
	Parent string `db:"parent_id"`
}

func (regRelsOnlySearch) SearchIndexConfig() SearchIndexConfig {
	return SearchIndexConfig{IndexName: "rels_only"}
}

func (regRelsOnlySearch) GraphRelationships() []RelationshipConfig {
	return []RelationshipConfig{
		{Type: "CHILD_OF", Target: "test:parent", SourceField: "parent_id"},
	}
}

func TestRegisterAppliesDefaults(t *testing.T) {
	registry := NewRegistry()

	def, err := registry.Register("test:user", &regUser{})
	require.NoError(t, err)

	assert.Equal(t, "test:user", def.Key)
	assert.Equal(t, "regUser", def.Name)
	require.NotNil(t, def.Graph)
	assert.Equal(t, "id", def.Graph.IDField)
	require.NotNil(t, def.Search)
	assert.Equal(t, "id", def.Search.IDField)
	assert.Equal(t, "_doc", def.Search.DocType)
	require.Len(t, def.Relationships, 1)
	assert.Equal(t, "id", def.Relationships[0].TargetField)
}

func TestRegisterValidation(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.Register("", &regUser{})
	assert.Error(t, err)

	_, err = registry.Register("test:string", "not a struct")
	assert.Error(t, err)

	_, err = registry.Register("test:plain", &regPlain{})
	assert.Error(t, err, "a type with no store config has nothing to register")

	_, err = registry.Register("test:bad-label", &regBadLabel{})
	assert.Error(t, err)

	_, err = registry.Register("test:bad-id", &regBadID{})
	assert.Error(t, err)

	_, err = registry.Register("test:rels-only", &regRelsOnlySearch{})
	assert.Error(t, err, "relationships require a graph node config")
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.Register("test:user", &regUser{})
	require.NoError(t, err)

	_, err = registry.Register("test:user", &regBadLabel{})
	assert.True(t, errors.Is(err, ErrAlreadyRegistered))

	_, err = registry.Register("test:user-again", &regUser{})
	assert.True(t, errors.Is(err, ErrAlreadyRegistered))
}

func TestResolveAndDefinitionFor(t *testing.T) {
	registry := NewRegistry()
	registry.MustRegister("test:user", &regUser{})

	def, err := registry.Resolve("test:user")
	require.NoError(t, err)
	assert.Equal(t, "test:user", def.Key)

	_, err = registry.Resolve("test:missing")
	assert.True(t, errors.Is(err, ErrNotRegistered))

	def, err = registry.DefinitionFor(&regUser{ID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "test:user", def.Key)

	def, err = registry.DefinitionFor(regUser{ID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "test:user", def.Key)

	_, err = registry.DefinitionFor(&regPlain{})
	assert.True(t, errors.Is(err, ErrNotRegistered))
}

func TestDefinitionsSortedByKey(t *testing.T) {
	registry := NewRegistry()
	registry.MustRegister("test:user", &regUser{})
	registry.MustRegister("test:team", &regTeam{})

	defs := registry.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "test:team", defs[0].Key)
	assert.Equal(t, "test:user", defs[1].Key)

	assert.Equal(t, []string{"test:team", "test:user"}, registry.Keys())
}

func TestIDString(t *testing.T) {
	assert.Equal(t, "abc", IDString("abc"))
	assert.Equal(t, "42", IDString(42))
	assert.Equal(t, "", IDString(nil))
}
