package annotations

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Kode-Rex/weave/pkg/tracing"
)

// GraphExecutor runs parametrized Cypher. Write queries go through a write
// transaction, read queries through a read transaction. Rows come back as
// maps keyed by the query's return aliases with nodes flattened to their
// property maps.
type GraphExecutor interface {
	WriteQuery(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error)
	ReadQuery(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error)
}

// GraphSyncer projects registered records onto graph nodes and maintains
// their relationships.
type GraphSyncer struct {
	registry *Registry
	executor GraphExecutor
	logger   ectologger.Logger
}

// NewGraphSyncer returns a syncer over the given registry and executor.
func NewGraphSyncer(registry *Registry, executor GraphExecutor, logger ectologger.Logger) *GraphSyncer {
	return &GraphSyncer{
		registry: registry,
		executor: executor,
		logger:   logger,
	}
}

// UpsertNode merges the record's node by id and overwrites its projected
// properties. Merging on the id field makes the operation idempotent:
// repeated calls converge on the same node.
func (s *GraphSyncer) UpsertNode(ctx context.Context, record any) error {
	ctx, span := tracing.StartSpan(ctx, "annotations.GraphSyncer.UpsertNode")
	defer span.End()

	def, err := s.registry.DefinitionFor(record)
	if err != nil {
		return err
	}
	if def.Graph == nil {
		return errors.Wrap(ErrNoGraphConfig, def.Name)
	}

	idValue, _ := def.Schema.Value(record, def.Graph.IDField)
	properties := ExtractProperties(def, record)

	cypher := fmt.Sprintf(`MERGE (n:%s {%s: $node_id})
SET n += $properties
RETURN n`, sanitizeLabel(def.Graph.Label), sanitizeIdentifier(def.Graph.IDField))

	_, err = s.executor.WriteQuery(ctx, cypher, map[string]any{
		"node_id":    idValue,
		"properties": properties,
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"record_type": def.Key,
			"label":       def.Graph.Label,
		}).Error("Failed to upsert graph node")
		return errors.Wrapf(err, "upsert node for %s", def.Key)
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"record_type": def.Key,
		"label":       def.Graph.Label,
	}).Debug("Upserted graph node")
	return nil
}

// SyncRelationships merges every configured outgoing edge for the record.
// A nil source field skips that edge, as does a target key that is not
// registered or carries no graph config. Individual store failures are
// logged and skipped so one bad edge does not block the rest; config
// problems on the record itself are returned.
func (s *GraphSyncer) SyncRelationships(ctx context.Context, record any) error {
	ctx, span := tracing.StartSpan(ctx, "annotations.GraphSyncer.SyncRelationships")
	defer span.End()

	def, err := s.registry.DefinitionFor(record)
	if err != nil {
		return err
	}
	if len(def.Relationships) == 0 {
		return nil
	}
	if def.Graph == nil {
		return errors.Wrap(ErrNoGraphConfig, def.Name)
	}

	sourceID, _ := def.Schema.Value(record, def.Graph.IDField)

	for _, rel := range def.Relationships {
		targetValue, ok := def.Schema.Value(record, rel.SourceField)
		if !ok || targetValue == nil {
			continue
		}

		target, err := s.registry.Resolve(rel.Target)
		if err != nil || target.Graph == nil {
			s.logger.WithContext(ctx).WithFields(map[string]any{
				"record_type": def.Key,
				"target":      rel.Target,
				"type":        rel.Type,
			}).Debug("Skipping relationship with no graph target")
			continue
		}

		cypher := fmt.Sprintf(`MATCH (source:%s {%s: $source_id})
MATCH (target:%s {%s: $target_value})
MERGE (source)-[r:%s]->(target)
RETURN r`,
			sanitizeLabel(def.Graph.Label), sanitizeIdentifier(def.Graph.IDField),
			sanitizeLabel(target.Graph.Label), sanitizeIdentifier(rel.TargetField),
			sanitizeIdentifier(rel.Type))

		_, err = s.executor.WriteQuery(ctx, cypher, map[string]any{
			"source_id":    sourceID,
			"target_value": targetValue,
		})
		if err != nil {
			s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"record_type": def.Key,
				"target":      rel.Target,
				"type":        rel.Type,
			}).Error("Failed to sync relationship")
			continue
		}
	}

	return nil
}

// FindByProperties returns the property maps of nodes with the record
// type's label matching every filter exactly. Empty filters match all nodes
// of the label. Filter keys are conjoined with AND.
func (s *GraphSyncer) FindByProperties(ctx context.Context, key string, filters map[string]any) ([]map[string]any, error) {
	ctx, span := tracing.StartSpan(ctx, "annotations.GraphSyncer.FindByProperties")
	defer span.End()

	def, err := s.registry.Resolve(key)
	if err != nil {
		return nil, err
	}
	if def.Graph == nil {
		return nil, errors.Wrap(ErrNoGraphConfig, def.Name)
	}

	where := "true"
	params := map[string]any{}
	if len(filters) > 0 {
		names := make([]string, 0, len(filters))
		for name := range filters {
			names = append(names, name)
		}
		sort.Strings(names)

		clauses := make([]string, 0, len(names))
		for _, name := range names {
			field := sanitizeIdentifier(name)
			clauses = append(clauses, fmt.Sprintf("n.%s = $%s", field, field))
			params[field] = filters[name]
		}
		where = strings.Join(clauses, " AND ")
	}

	cypher := fmt.Sprintf(`MATCH (n:%s)
WHERE %s
RETURN n`, sanitizeLabel(def.Graph.Label), where)

	rows, err := s.executor.ReadQuery(ctx, cypher, params)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("record_type", def.Key).Error("Failed to query graph nodes")
		return nil, errors.Wrapf(err, "find %s nodes", def.Key)
	}

	results := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		if node, ok := row["n"].(map[string]any); ok {
			results = append(results, node)
		}
	}
	return results, nil
}

// sanitizeLabel strips everything but alphanumerics and underscores from a
// node label so it is safe to interpolate into Cypher.
func sanitizeLabel(label string) string {
	clean := sanitize(label)
	if clean == "" {
		return "Record"
	}
	return clean
}

// sanitizeIdentifier does the same for property names and relationship
// types, falling back to "id".
func sanitizeIdentifier(name string) string {
	clean := sanitize(name)
	if clean == "" {
		return "id"
	}
	return clean
}

func sanitize(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
