package tool

import (
	"reflect"
	"strings"
)

// GenerateSchema builds a JSON schema for the given Go type using reflection.
// Struct fields are mapped through their json tags; fields without an
// "omitempty" option are marked required.
func GenerateSchema(t reflect.Type) *Schema {
	if t == nil {
		return &Schema{Type: "null"}
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Bool:
		return &Schema{Type: "boolean"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &Schema{Type: "integer"}
	case reflect.Float32, reflect.Float64:
		return &Schema{Type: "number"}
	case reflect.String:
		return &Schema{Type: "string"}
	case reflect.Slice, reflect.Array:
		return &Schema{Type: "array", Items: GenerateSchema(t.Elem())}
	case reflect.Map:
		return &Schema{Type: "object", AdditionalProperties: GenerateSchema(t.Elem())}
	case reflect.Struct:
		return generateStructSchema(t)
	default:
		// Interfaces and anything else are left unconstrained.
		return &Schema{Type: "object"}
	}
}

func generateStructSchema(t reflect.Type) *Schema {
	schema := &Schema{
		Type:       "object",
		Properties: make(map[string]*Schema),
	}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Name
		optional := false
		if tag, ok := field.Tag.Lookup("json"); ok {
			parts := strings.Split(tag, ",")
			if parts[0] == "-" {
				continue
			}
			if parts[0] != "" {
				name = parts[0]
			}
			for _, opt := range parts[1:] {
				if opt == "omitempty" {
					optional = true
				}
			}
		}
		fieldSchema := GenerateSchema(field.Type)
		if desc, ok := field.Tag.Lookup("description"); ok {
			fieldSchema.Description = desc
		}
		schema.Properties[name] = fieldSchema
		if !optional {
			schema.Required = append(schema.Required, name)
		}
	}
	return schema
}
