package tool

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSchemaScalars(t *testing.T) {
	tests := []struct {
		value any
		want  string
	}{
		{true, "boolean"},
		{int(1), "integer"},
		{int64(1), "integer"},
		{1.5, "number"},
		{"s", "string"},
	}
	for _, tt := range tests {
		schema := GenerateSchema(reflect.TypeOf(tt.value))
		assert.Equal(t, tt.want, schema.Type)
	}
}

func TestGenerateSchemaStruct(t *testing.T) {
	type args struct {
		OrderID string   `json:"order_id" description:"order identifier"`
		Amount  float64  `json:"amount"`
		Notes   []string `json:"notes,omitempty"`
		skipped string   //nolint:unused // unexported fields are ignored
		Ignored string   `json:"-"`
	}

	schema := GenerateSchema(reflect.TypeOf(args{}))
	require.Equal(t, "object", schema.Type)
	require.Contains(t, schema.Properties, "order_id")
	assert.Equal(t, "order identifier", schema.Properties["order_id"].Description)
	assert.Equal(t, "number", schema.Properties["amount"].Type)
	assert.Equal(t, "array", schema.Properties["notes"].Type)
	assert.Equal(t, "string", schema.Properties["notes"].Items.Type)
	assert.NotContains(t, schema.Properties, "Ignored")
	assert.NotContains(t, schema.Properties, "skipped")
	assert.ElementsMatch(t, []string{"order_id", "amount"}, schema.Required)
}

func TestGenerateSchemaContainers(t *testing.T) {
	schema := GenerateSchema(reflect.TypeOf(map[string]int{}))
	require.Equal(t, "object", schema.Type)
	additional, ok := schema.AdditionalProperties.(*Schema)
	require.True(t, ok)
	assert.Equal(t, "integer", additional.Type)

	schema = GenerateSchema(reflect.TypeOf([]float64{}))
	require.Equal(t, "array", schema.Type)
	assert.Equal(t, "number", schema.Items.Type)
}
