package annotations

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// GraphSyncable is implemented by record types that project onto a graph
// node.
type GraphSyncable interface {
	GraphNodeConfig() GraphNodeConfig
}

// SearchSyncable is implemented by record types that project onto a search
// index.
type SearchSyncable interface {
	SearchIndexConfig() SearchIndexConfig
}

// RelationshipSyncable is implemented by record types that maintain outgoing
// graph relationships. It requires GraphSyncable.
type RelationshipSyncable interface {
	GraphRelationships() []RelationshipConfig
}

// LoaderFunc loads a record of the registered type by primary-store id. A
// (nil, nil) return means the row no longer exists.
type LoaderFunc func(ctx context.Context, id string) (any, error)

// Definition is the resolved registration of one record type. It is built
// once at Register time and never mutated afterwards.
type Definition struct {
	// Key is the stable registry key, e.g. "slack:user".
	Key string

	// Name is the Go type name, used in logs and migration state.
	Name string

	// Type is the underlying struct type.
	Type reflect.Type

	// Schema is the projectable field set derived from db tags.
	Schema *Schema

	// Graph is nil when the type declares no graph projection.
	Graph *GraphNodeConfig

	// Search is nil when the type declares no search projection.
	Search *SearchIndexConfig

	// Relationships holds the outgoing edges, empty when none are declared.
	Relationships []RelationshipConfig

	// Loader loads a record by id for outbox dispatch. Nil when the type is
	// only ever dispatched with a full record in hand.
	Loader LoaderFunc
}

// RegisterOption customizes a registration.
type RegisterOption func(*Definition)

// WithLoader attaches a by-id loader used by outbox dispatch.
func WithLoader(loader LoaderFunc) RegisterOption {
	return func(d *Definition) {
		d.Loader = loader
	}
}

// Registry holds every registered record type, keyed both by registry key
// and by Go type. Registration happens once at startup; lookups afterwards
// are read-only.
type Registry struct {
	mu     sync.RWMutex
	byKey  map[string]*Definition
	byType map[reflect.Type]*Definition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byKey:  map[string]*Definition{},
		byType: map[reflect.Type]*Definition{},
	}
}

// Register binds a record type to a registry key, probing the record for its
// store configs and validating them. Registration fails fast: a bad config
// is an error here, not at sync time.
func (r *Registry) Register(key string, record any, opts ...RegisterOption) (*Definition, error) {
	if key == "" {
		return nil, errors.New("registry key must not be empty")
	}

	rt := reflect.TypeOf(record)
	for rt != nil && rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	if rt == nil || rt.Kind() != reflect.Struct {
		return nil, errors.Errorf("record for key %q must be a struct, got %T", key, record)
	}

	def := &Definition{
		Key:    key,
		Name:   rt.Name(),
		Type:   rt,
		Schema: buildSchema(rt),
	}

	if g, ok := record.(GraphSyncable); ok {
		cfg := g.GraphNodeConfig()
		def.Graph = &cfg
	}
	if s, ok := record.(SearchSyncable); ok {
		cfg := s.SearchIndexConfig()
		def.Search = &cfg
	}
	if rel, ok := record.(RelationshipSyncable); ok {
		def.Relationships = rel.GraphRelationships()
	}

	for _, opt := range opts {
		opt(def)
	}

	if err := normalizeDefinition(def); err != nil {
		return nil, errors.Wrapf(err, "register %q", key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byKey[key]; exists {
		return nil, errors.Wrap(ErrAlreadyRegistered, key)
	}
	if existing, exists := r.byType[rt]; exists {
		return nil, errors.Wrapf(ErrAlreadyRegistered, "type %s is already registered as %q", rt.Name(), existing.Key)
	}

	r.byKey[key] = def
	r.byType[rt] = def
	return def, nil
}

// MustRegister is Register that panics on error, for use in composition
// roots where a bad registration should stop the process.
func (r *Registry) MustRegister(key string, record any, opts ...RegisterOption) *Definition {
	def, err := r.Register(key, record, opts...)
	if err != nil {
		panic(err)
	}
	return def
}

func normalizeDefinition(def *Definition) error {
	if def.Graph == nil && def.Search == nil {
		return errors.Errorf("type %s declares no store config", def.Name)
	}

	if def.Graph != nil {
		if def.Graph.Label == "" {
			return errors.Errorf("type %s has an empty graph label", def.Name)
		}
		if def.Graph.IDField == "" {
			def.Graph.IDField = "id"
		}
		if !def.Schema.Has(def.Graph.IDField) {
			return errors.Errorf("type %s graph id field %q is not a schema field", def.Name, def.Graph.IDField)
		}
	}

	if def.Search != nil {
		if def.Search.IndexName == "" {
			return errors.Errorf("type %s has an empty index name", def.Name)
		}
		if def.Search.DocType == "" {
			def.Search.DocType = "_doc"
		}
		if def.Search.IDField == "" {
			def.Search.IDField = "id"
		}
		if !def.Schema.Has(def.Search.IDField) {
			return errors.Errorf("type %s search id field %q is not a schema field", def.Name, def.Search.IDField)
		}
	}

	if len(def.Relationships) > 0 {
		if def.Graph == nil {
			return errors.Errorf("type %s declares relationships without a graph node config", def.Name)
		}
		for i := range def.Relationships {
			rel := &def.Relationships[i]
			if rel.Type == "" {
				return errors.Errorf("type %s relationship %d has an empty type", def.Name, i)
			}
			if rel.Target == "" {
				return errors.Errorf("type %s relationship %s has an empty target key", def.Name, rel.Type)
			}
			if rel.SourceField == "" || !def.Schema.Has(rel.SourceField) {
				return errors.Errorf("type %s relationship %s source field %q is not a schema field", def.Name, rel.Type, rel.SourceField)
			}
			if rel.TargetField == "" {
				rel.TargetField = "id"
			}
		}
	}

	return nil
}

// Resolve returns the definition registered under key.
func (r *Registry) Resolve(key string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.byKey[key]
	if !ok {
		return nil, errors.Wrap(ErrNotRegistered, key)
	}
	return def, nil
}

// DefinitionFor returns the definition registered for the record's type.
func (r *Registry) DefinitionFor(record any) (*Definition, error) {
	rt := reflect.TypeOf(record)
	for rt != nil && rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	if rt == nil {
		return nil, errors.Wrap(ErrNotRegistered, "nil record")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.byType[rt]
	if !ok {
		return nil, errors.Wrap(ErrNotRegistered, rt.Name())
	}
	return def, nil
}

// Definitions returns every registered definition sorted by key.
func (r *Registry) Definitions() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]*Definition, 0, len(r.byKey))
	for _, def := range r.byKey {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Key < defs[j].Key })
	return defs
}

// Keys returns every registry key sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.byKey))
	for key := range r.byKey {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// IDString renders a record's id field value as a string for use as a
// document id or outbox record id.
func IDString(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	if value == nil {
		return ""
	}
	return fmt.Sprintf("%v", value)
}
