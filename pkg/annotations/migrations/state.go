// Package migrations detects drift between the annotation registry and the
// last recorded snapshot of it, and renders the drift as migration scripts
// for the graph and search stores.
package migrations

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/Kode-Rex/weave/pkg/annotations"
)

// DefaultStatePath is where the annotation snapshot lives relative to the
// working directory.
const DefaultStatePath = ".weave/annotation_state.json"

// AnnotationState is the persisted snapshot of one record type's store
// configs. Configs are held as generic maps so the snapshot survives config
// struct evolution.
type AnnotationState struct {
	ModelName           string           `json:"model_name"`
	ModulePath          string           `json:"module_path"`
	Neo4jConfig         map[string]any   `json:"neo4j_config"`
	ElasticsearchConfig map[string]any   `json:"elasticsearch_config"`
	Neo4jRelationships  []map[string]any `json:"neo4j_relationships"`
}

// StateFromDefinition serializes a registered definition into its snapshot
// form.
func StateFromDefinition(def *annotations.Definition) *AnnotationState {
	state := &AnnotationState{
		ModelName:          def.Name,
		ModulePath:         def.Type.PkgPath(),
		Neo4jRelationships: []map[string]any{},
	}

	if def.Graph != nil {
		state.Neo4jConfig = map[string]any{
			"label":          def.Graph.Label,
			"properties":     def.Graph.Properties,
			"id_field":       def.Graph.IDField,
			"exclude_fields": def.Graph.ExcludeFields,
		}
	}

	if def.Search != nil {
		state.ElasticsearchConfig = map[string]any{
			"index_name":     def.Search.IndexName,
			"doc_type":       def.Search.DocType,
			"properties":     def.Search.Properties,
			"id_field":       def.Search.IDField,
			"exclude_fields": def.Search.ExcludeFields,
			"text_fields":    def.Search.TextFields,
			"mapping":        def.Search.Mapping,
		}
	}

	for _, rel := range def.Relationships {
		state.Neo4jRelationships = append(state.Neo4jRelationships, map[string]any{
			"type":         rel.Type,
			"target_model": rel.Target,
			"source_field": rel.SourceField,
			"target_field": rel.TargetField,
			"properties":   rel.Properties,
		})
	}

	return state
}

// LoadStates reads the snapshot keyed by registry key. A missing or
// unreadable snapshot yields an empty map along with the read error so the
// caller can log it; detection then treats every registered type as new.
func LoadStates(path string) (map[string]*AnnotationState, error) {
	states := map[string]*AnnotationState{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return states, nil
		}
		return states, errors.Wrap(err, "read annotation state")
	}

	if err := json.Unmarshal(data, &states); err != nil {
		return map[string]*AnnotationState{}, errors.Wrap(err, "parse annotation state")
	}
	return states, nil
}

// SaveStates writes the snapshot, creating parent directories as needed.
func SaveStates(path string, states map[string]*AnnotationState) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create annotation state directory")
	}

	data, err := json.MarshalIndent(states, "", "  ")
	if err != nil {
		return errors.Wrap(err, "serialize annotation state")
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "write annotation state")
	}
	return nil
}

// canonicalJSON renders a value as sorted-key JSON by round-tripping it
// through generic maps, so values built in code and values loaded from disk
// compare equal when they mean the same thing.
func canonicalJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	var norm any
	if err := json.Unmarshal(data, &norm); err != nil {
		return ""
	}
	out, err := json.Marshal(norm)
	if err != nil {
		return ""
	}
	return string(out)
}

func configsDifferent(a, b map[string]any) bool {
	if a == nil && b == nil {
		return false
	}
	if a == nil || b == nil {
		return true
	}
	return canonicalJSON(a) != canonicalJSON(b)
}

// relationshipsDifferent compares relationship lists order-sensitively:
// reordering edges counts as a change.
func relationshipsDifferent(a, b []map[string]any) bool {
	if len(a) == 0 && len(b) == 0 {
		return false
	}
	return canonicalJSON(a) != canonicalJSON(b)
}
