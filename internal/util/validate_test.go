package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func objectSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":  map[string]any{"type": "string"},
			"count": map[string]any{"type": "integer"},
			"ratio": map[string]any{"type": "number"},
			"flags": map[string]any{"type": "array"},
		},
		"required": []string{"name"},
	}
}

func TestValidateArguments_Valid(t *testing.T) {
	args := map[string]any{
		"name":  "widget",
		"count": float64(3), // JSON numbers decode as float64
		"ratio": 0.5,
		"flags": []any{"a"},
	}
	assert.NoError(t, ValidateArguments(args, objectSchema()))
}

func TestValidateArguments_MissingRequired(t *testing.T) {
	err := ValidateArguments(map[string]any{"count": float64(1)}, objectSchema())
	require.Error(t, err)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "name", ve.Field)
}

func TestValidateArguments_RequiredAsAnySlice(t *testing.T) {
	// Schemas decoded from JSON carry []any instead of []string.
	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"name": map[string]any{"type": "string"}},
		"required":   []any{"name"},
	}
	assert.Error(t, ValidateArguments(map[string]any{}, schema))
	assert.NoError(t, ValidateArguments(map[string]any{"name": "x"}, schema))
}

func TestValidateArguments_UnknownField(t *testing.T) {
	err := ValidateArguments(map[string]any{"name": "x", "extra": 1}, objectSchema())
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "extra", ve.Field)
}

func TestValidateArguments_TypeMismatch(t *testing.T) {
	err := ValidateArguments(map[string]any{"name": 42}, objectSchema())
	require.Error(t, err)

	// A whole float64 satisfies integer, a fractional one does not.
	assert.NoError(t, ValidateArguments(map[string]any{"name": "x", "count": float64(2)}, objectSchema()))
	assert.Error(t, ValidateArguments(map[string]any{"name": "x", "count": 2.5}, objectSchema()))
}

func TestValidateArguments_NilSchemaAcceptsAnything(t *testing.T) {
	assert.NoError(t, ValidateArguments(map[string]any{"whatever": true}, nil))
}

func TestSchemaFromStruct(t *testing.T) {
	type searchArgs struct {
		Query string `json:"query" jsonschema:"description=Search query"`
		Limit int    `json:"limit,omitempty"`
	}

	schema := SchemaFromStruct(searchArgs{})
	require.NotNil(t, schema)
	assert.Equal(t, "object", schema["type"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "query")
	assert.Contains(t, props, "limit")

	_, hasID := schema["$id"]
	assert.False(t, hasID)
}

func TestNewID(t *testing.T) {
	a, b := NewID(), NewID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
