// Package annotations keeps relational records in step with their graph and
// search projections. Record types declare how they map onto each secondary
// store through small config structs, register themselves once at startup,
// and from then on the dispatcher fans primary-store writes out to Neo4j and
// Elasticsearch without the calling code knowing either store exists.
package annotations

// GraphNodeConfig describes how a record type projects onto a graph node.
type GraphNodeConfig struct {
	// Label is the node label used for this record type.
	Label string `json:"label"`

	// Properties is an explicit list of schema fields to project. When set it
	// wins outright and ExcludeFields is not consulted. When empty, every
	// schema field minus ExcludeFields is projected.
	Properties []string `json:"properties"`

	// IDField names the schema field used as the node identity. Defaults to
	// "id" at registration.
	IDField string `json:"id_field"`

	// ExcludeFields lists schema fields to omit when Properties is empty.
	ExcludeFields []string `json:"exclude_fields"`
}

// SearchIndexConfig describes how a record type projects onto a search index.
type SearchIndexConfig struct {
	// IndexName is the index documents are written to.
	IndexName string `json:"index_name"`

	// DocType is kept for wire compatibility with older index metadata.
	// Defaults to "_doc" at registration.
	DocType string `json:"doc_type"`

	// Properties is an explicit list of schema fields to project. Same
	// precedence rules as GraphNodeConfig.Properties.
	Properties []string `json:"properties"`

	// IDField names the schema field used as the document id. Defaults to
	// "id" at registration.
	IDField string `json:"id_field"`

	// ExcludeFields lists schema fields to omit when Properties is empty.
	ExcludeFields []string `json:"exclude_fields"`

	// TextFields lists fields that should be searched as analyzed text.
	// They drive both mapping generation and query construction.
	TextFields []string `json:"text_fields"`

	// Mapping overrides the generated index mapping when non-nil. It is the
	// value placed under "mappings" at index creation.
	Mapping map[string]any `json:"mapping"`
}

// RelationshipConfig describes one outgoing edge maintained for a record
// type. Target is the registry key of the record type on the far side.
type RelationshipConfig struct {
	// Type is the relationship type, conventionally UPPER_SNAKE.
	Type string `json:"type"`

	// Target is the registry key of the target record type.
	Target string `json:"target_model"`

	// SourceField is the schema field on the source record holding the
	// target's id. A nil value means the edge is absent for that record.
	SourceField string `json:"source_field"`

	// TargetField is the graph property matched on the target node.
	// Defaults to "id" at registration.
	TargetField string `json:"target_field"`

	// Properties lists schema fields intended as edge properties. Edge
	// property projection is not implemented yet; the list is carried so
	// migration snapshots capture it.
	Properties []string `json:"properties"`
}
