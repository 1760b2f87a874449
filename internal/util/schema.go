package util

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// SchemaFromStruct derives a JSON schema map from a Go struct type using
// reflection. The schema is inlined (no $ref indirection) so it can be
// handed directly to model providers as a tool parameter schema.
func SchemaFromStruct(v any) map[string]any {
	reflector := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}

	raw, err := json.Marshal(reflector.Reflect(v))
	if err != nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}

	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}

	// Model providers only understand the object subset.
	delete(schema, "$schema")
	delete(schema, "$id")

	return schema
}
