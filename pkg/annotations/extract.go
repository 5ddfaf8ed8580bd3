package annotations

// ExtractProperties builds the graph property map for a record. An explicit
// Properties list wins outright; otherwise every schema field minus
// ExcludeFields is projected. Names not present in the schema are skipped,
// nil values are dropped.
func ExtractProperties(def *Definition, record any) map[string]any {
	if def.Graph == nil {
		return map[string]any{}
	}
	return extractValues(def.Schema, record, def.Graph.Properties, def.Graph.ExcludeFields)
}

// ExtractDocument builds the search document for a record with the same
// field selection rules as ExtractProperties. Raw JSON columns are carried
// as their JSON text so nested structures survive indexing unchanged.
func ExtractDocument(def *Definition, record any) map[string]any {
	if def.Search == nil {
		return map[string]any{}
	}
	return extractValues(def.Schema, record, def.Search.Properties, def.Search.ExcludeFields)
}

func extractValues(schema *Schema, record any, allowList, excludeFields []string) map[string]any {
	fields := allowList
	if len(fields) == 0 {
		excluded := toSet(excludeFields)
		for _, f := range schema.Fields() {
			if !excluded[f.Name] {
				fields = append(fields, f.Name)
			}
		}
	}

	out := make(map[string]any, len(fields))
	for _, name := range fields {
		value, ok := schema.Value(record, name)
		if !ok || value == nil {
			continue
		}
		out[name] = value
	}
	return out
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set
}
