package migrations

import (
	"context"
	"sort"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Kode-Rex/weave/pkg/annotations"
	"github.com/Kode-Rex/weave/pkg/metrics"
	"github.com/Kode-Rex/weave/pkg/tracing"
)

// Change types.
const (
	ChangeCreate = "create"
	ChangeUpdate = "update"
	ChangeDelete = "delete"
)

// Store types.
const (
	StoreNeo4j         = "neo4j"
	StoreElasticsearch = "elasticsearch"
)

// Actions carried in change details.
const (
	ActionCreateNodeLabel     = "create_node_label"
	ActionUpdateNodeLabel     = "update_node_label"
	ActionRemoveNodeLabel     = "remove_node_label"
	ActionCreateIndex         = "create_index"
	ActionUpdateIndex         = "update_index"
	ActionRemoveIndex         = "remove_index"
	ActionUpdateRelationships = "update_relationships"
)

// Change is one detected difference between the stored snapshot and the
// current registry.
type Change struct {
	ChangeType string         `json:"change_type"`
	StoreType  string         `json:"store_type"`
	ModelName  string         `json:"model_name"`
	Details    map[string]any `json:"details"`
}

// Detector diffs the annotation registry against the last persisted
// snapshot.
type Detector struct {
	registry  *annotations.Registry
	statePath string
	logger    ectologger.Logger
}

// NewDetector returns a detector over the registry. An empty statePath uses
// DefaultStatePath.
func NewDetector(registry *annotations.Registry, statePath string, logger ectologger.Logger) *Detector {
	if statePath == "" {
		statePath = DefaultStatePath
	}
	return &Detector{
		registry:  registry,
		statePath: statePath,
		logger:    logger,
	}
}

// DetectChanges loads the previous snapshot, diffs it against every
// registered record type and persists the new snapshot. An unreadable
// snapshot is logged and treated as empty, so every type shows up as
// new rather than the run failing. A snapshot that cannot be persisted
// fails the run: returning changes that were never recorded would emit
// them again on the next run.
func (d *Detector) DetectChanges(ctx context.Context) ([]Change, error) {
	ctx, span := tracing.StartSpan(ctx, "migrations.Detector.DetectChanges")
	defer span.End()

	previous, err := LoadStates(d.statePath)
	if err != nil {
		d.logger.WithContext(ctx).WithError(err).WithField("path", d.statePath).Warn("Could not read annotation state, treating as empty")
	}

	current := map[string]*AnnotationState{}
	for _, def := range d.registry.Definitions() {
		current[def.Key] = StateFromDefinition(def)
	}

	changes := diffStates(previous, current)

	if err := SaveStates(d.statePath, current); err != nil {
		return nil, errors.Wrap(err, "persist annotation state")
	}

	for _, change := range changes {
		metrics.MigrationChangesTotal.WithLabelValues(change.ChangeType).Inc()
	}

	d.logger.WithContext(ctx).WithFields(map[string]any{
		"changes": len(changes),
		"models":  len(current),
	}).Info("Annotation change detection complete")
	return changes, nil
}

// diffStates walks current then previous in sorted key order so change
// output is deterministic. Each store is compared independently: adding a
// graph config to a type that already had a search config emits only the
// graph create.
func diffStates(previous, current map[string]*AnnotationState) []Change {
	var changes []Change

	for _, key := range sortedKeys(current) {
		cur := current[key]
		prev, ok := previous[key]
		if !ok {
			changes = append(changes, createChanges(cur)...)
			continue
		}
		changes = append(changes, updateChanges(prev, cur)...)
	}

	for _, key := range sortedKeys(previous) {
		if _, ok := current[key]; !ok {
			changes = append(changes, deleteChanges(previous[key])...)
		}
	}

	return changes
}

func createChanges(state *AnnotationState) []Change {
	var changes []Change
	if state.Neo4jConfig != nil {
		changes = append(changes, graphCreateChange(state))
	}
	if state.ElasticsearchConfig != nil {
		changes = append(changes, searchCreateChange(state))
	}
	return changes
}

func graphCreateChange(state *AnnotationState) Change {
	return Change{
		ChangeType: ChangeCreate,
		StoreType:  StoreNeo4j,
		ModelName:  state.ModelName,
		Details: map[string]any{
			"action":        ActionCreateNodeLabel,
			"label":         state.Neo4jConfig["label"],
			"properties":    state.Neo4jConfig,
			"relationships": state.Neo4jRelationships,
		},
	}
}

func searchCreateChange(state *AnnotationState) Change {
	return Change{
		ChangeType: ChangeCreate,
		StoreType:  StoreElasticsearch,
		ModelName:  state.ModelName,
		Details: map[string]any{
			"action":     ActionCreateIndex,
			"index_name": state.ElasticsearchConfig["index_name"],
			"config":     state.ElasticsearchConfig,
		},
	}
}

func updateChanges(prev, cur *AnnotationState) []Change {
	var changes []Change

	if configsDifferent(prev.Neo4jConfig, cur.Neo4jConfig) {
		switch {
		case cur.Neo4jConfig == nil:
			changes = append(changes, Change{
				ChangeType: ChangeDelete,
				StoreType:  StoreNeo4j,
				ModelName:  cur.ModelName,
				Details: map[string]any{
					"action": ActionRemoveNodeLabel,
					"label":  prev.Neo4jConfig["label"],
				},
			})
		case prev.Neo4jConfig == nil:
			changes = append(changes, graphCreateChange(cur))
		default:
			changes = append(changes, Change{
				ChangeType: ChangeUpdate,
				StoreType:  StoreNeo4j,
				ModelName:  cur.ModelName,
				Details: map[string]any{
					"action":     ActionUpdateNodeLabel,
					"old_config": prev.Neo4jConfig,
					"new_config": cur.Neo4jConfig,
				},
			})
		}
	}

	if configsDifferent(prev.ElasticsearchConfig, cur.ElasticsearchConfig) {
		switch {
		case cur.ElasticsearchConfig == nil:
			changes = append(changes, Change{
				ChangeType: ChangeDelete,
				StoreType:  StoreElasticsearch,
				ModelName:  cur.ModelName,
				Details: map[string]any{
					"action":     ActionRemoveIndex,
					"index_name": prev.ElasticsearchConfig["index_name"],
				},
			})
		case prev.ElasticsearchConfig == nil:
			changes = append(changes, searchCreateChange(cur))
		default:
			changes = append(changes, Change{
				ChangeType: ChangeUpdate,
				StoreType:  StoreElasticsearch,
				ModelName:  cur.ModelName,
				Details: map[string]any{
					"action":     ActionUpdateIndex,
					"old_config": prev.ElasticsearchConfig,
					"new_config": cur.ElasticsearchConfig,
				},
			})
		}
	}

	if relationshipsDifferent(prev.Neo4jRelationships, cur.Neo4jRelationships) {
		changes = append(changes, Change{
			ChangeType: ChangeUpdate,
			StoreType:  StoreNeo4j,
			ModelName:  cur.ModelName,
			Details: map[string]any{
				"action":            ActionUpdateRelationships,
				"old_relationships": prev.Neo4jRelationships,
				"new_relationships": cur.Neo4jRelationships,
			},
		})
	}

	return changes
}

func deleteChanges(state *AnnotationState) []Change {
	var changes []Change
	if state.Neo4jConfig != nil {
		changes = append(changes, Change{
			ChangeType: ChangeDelete,
			StoreType:  StoreNeo4j,
			ModelName:  state.ModelName,
			Details: map[string]any{
				"action": ActionRemoveNodeLabel,
				"label":  state.Neo4jConfig["label"],
			},
		})
	}
	if state.ElasticsearchConfig != nil {
		changes = append(changes, Change{
			ChangeType: ChangeDelete,
			StoreType:  StoreElasticsearch,
			ModelName:  state.ModelName,
			Details: map[string]any{
				"action":     ActionRemoveIndex,
				"index_name": state.ElasticsearchConfig["index_name"],
			},
		})
	}
	return changes
}

func sortedKeys(states map[string]*AnnotationState) []string {
	keys := make([]string, 0, len(states))
	for key := range states {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
