package annotations

import (
	"encoding/json"
	"reflect"
	"time"
)

// FieldKind classifies a schema field for projection and mapping purposes.
type FieldKind int

const (
	FieldString FieldKind = iota
	FieldInt
	FieldFloat
	FieldBool
	FieldTime
	FieldJSON
)

// timeFormat is the wire format for timestamp properties in both stores.
const timeFormat = "2006-01-02T15:04:05Z"

// Field is one projectable column of a record type.
type Field struct {
	Name  string
	Kind  FieldKind
	index []int
}

// Schema is the ordered set of projectable fields of a record type, derived
// from its db struct tags.
type Schema struct {
	fields []Field
	byName map[string]int
}

// buildSchema walks the struct's exported fields and keeps every one with a
// db tag. Pointer fields classify by their element type.
func buildSchema(rt reflect.Type) *Schema {
	s := &Schema{byName: map[string]int{}}

	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if sf.PkgPath != "" {
			continue
		}

		name := sf.Tag.Get("db")
		if name == "" || name == "-" {
			continue
		}

		ft := sf.Type
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}

		s.byName[name] = len(s.fields)
		s.fields = append(s.fields, Field{
			Name:  name,
			Kind:  kindOf(ft),
			index: sf.Index,
		})
	}

	return s
}

func kindOf(t reflect.Type) FieldKind {
	if t == reflect.TypeOf(time.Time{}) {
		return FieldTime
	}
	if t == reflect.TypeOf(json.RawMessage{}) {
		return FieldJSON
	}

	switch t.Kind() {
	case reflect.String:
		return FieldString
	case reflect.Bool:
		return FieldBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return FieldInt
	case reflect.Float32, reflect.Float64:
		return FieldFloat
	case reflect.Map, reflect.Slice, reflect.Struct:
		return FieldJSON
	default:
		return FieldString
	}
}

// Fields returns the schema fields in declaration order.
func (s *Schema) Fields() []Field {
	return s.fields
}

// Has reports whether the schema contains a field with the given name.
func (s *Schema) Has(name string) bool {
	_, ok := s.byName[name]
	return ok
}

// Value extracts the named field from record converted to its store
// representation. Timestamps become ISO-8601 strings, raw JSON columns
// become their JSON text, nil pointers, zero times and empty JSON all
// become nil. The second return is false when the schema has no such field
// or record is a nil pointer.
func (s *Schema) Value(record any, name string) (any, bool) {
	idx, ok := s.byName[name]
	if !ok {
		return nil, false
	}

	v := reflect.ValueOf(record)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, false
		}
		v = v.Elem()
	}

	return convertValue(v.FieldByIndex(s.fields[idx].index), s.fields[idx].Kind), true
}

func convertValue(v reflect.Value, kind FieldKind) any {
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}

	switch kind {
	case FieldTime:
		t, ok := v.Interface().(time.Time)
		if !ok || t.IsZero() {
			return nil
		}
		return t.UTC().Format(timeFormat)
	case FieldJSON:
		return convertJSONValue(v)
	default:
		return v.Interface()
	}
}

func convertJSONValue(v reflect.Value) any {
	switch raw := v.Interface().(type) {
	case json.RawMessage:
		if len(raw) == 0 || string(raw) == "null" {
			return nil
		}
		return string(raw)
	case []byte:
		if len(raw) == 0 {
			return nil
		}
		return string(raw)
	default:
		data, err := json.Marshal(raw)
		if err != nil || string(data) == "null" {
			return nil
		}
		return string(data)
	}
}
