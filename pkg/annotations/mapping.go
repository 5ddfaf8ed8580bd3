package annotations

// GenerateMapping derives an index mapping from the record schema when the
// search config carries no explicit one. Every schema field minus
// ExcludeFields gets a property: strings named in TextFields become analyzed
// text, other strings become keyword, ints become integer, bools boolean,
// timestamps date and raw JSON columns object. Anything else falls back to
// keyword. The returned map is the value placed under "mappings" at index
// creation.
func GenerateMapping(def *Definition) map[string]any {
	properties := map[string]any{}
	if def.Search == nil {
		return map[string]any{"properties": properties}
	}

	excluded := toSet(def.Search.ExcludeFields)
	textFields := toSet(def.Search.TextFields)

	for _, f := range def.Schema.Fields() {
		if excluded[f.Name] {
			continue
		}

		switch f.Kind {
		case FieldString:
			if textFields[f.Name] {
				properties[f.Name] = map[string]any{"type": "text", "analyzer": "standard"}
			} else {
				properties[f.Name] = map[string]any{"type": "keyword"}
			}
		case FieldInt:
			properties[f.Name] = map[string]any{"type": "integer"}
		case FieldBool:
			properties[f.Name] = map[string]any{"type": "boolean"}
		case FieldTime:
			properties[f.Name] = map[string]any{"type": "date"}
		case FieldJSON:
			properties[f.Name] = map[string]any{"type": "object"}
		default:
			properties[f.Name] = map[string]any{"type": "keyword"}
		}
	}

	return map[string]any{"properties": properties}
}
