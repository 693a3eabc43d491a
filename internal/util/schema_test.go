package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type writeArgs struct {
	Path    string `json:"path" description:"Relative file path"`
	Content string `json:"content"`
	Force   *bool  `json:"force,omitempty"`
}

func TestCreateSchema(t *testing.T) {
	schema := CreateSchema(writeArgs{})
	assert.Equal(t, "object", schema["type"])

	props := schema["properties"].(map[string]any)
	require.Contains(t, props, "path")
	assert.Equal(t, "Relative file path", props["path"].(map[string]any)["description"])
	assert.Equal(t, "boolean", props["force"].(map[string]any)["type"])
	assert.ElementsMatch(t, []string{"path", "content"}, schema["required"])
}

func TestValidateParameters(t *testing.T) {
	schema := CreateSchema(writeArgs{})

	require.NoError(t, ValidateParameters(map[string]any{"path": "a.yaml", "content": "x"}, schema))

	err := ValidateParameters(map[string]any{"path": "a.yaml"}, schema)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "content", verr.Field)

	err = ValidateParameters(map[string]any{"path": 3.0, "content": "x"}, schema)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "path", verr.Field)
}

func TestValidateParameters_DecodedRequired(t *testing.T) {
	schema := map[string]any{
		"type":     "object",
		"required": []any{"agent"},
		"properties": map[string]any{
			"agent": map[string]any{"type": "string"},
		},
	}
	assert.Error(t, ValidateParameters(map[string]any{}, schema))
}

type listArgs struct {
	Format  string   `json:"format" enum:"yaml,json"`
	Paths   []string `json:"paths,omitempty"`
	Filter  filter   `json:"filter,omitempty"`
	Payload any      `json:"payload,omitempty"`
}

type filter struct {
	Prefix string  `json:"prefix"`
	Next   *filter `json:"next,omitempty"`
}

func TestCreateSchema_NestedAndEnum(t *testing.T) {
	schema := CreateSchema(&listArgs{})
	props := schema["properties"].(map[string]any)

	assert.Equal(t, []string{"yaml", "json"}, props["format"].(map[string]any)["enum"])
	assert.Equal(t, map[string]any{"type": "array", "items": map[string]any{"type": "string"}}, props["paths"])
	assert.Empty(t, props["payload"])

	f := props["filter"].(map[string]any)
	assert.Equal(t, "object", f["type"])
	assert.Equal(t, []string{"prefix"}, f["required"])
	next := f["properties"].(map[string]any)["next"].(map[string]any)
	assert.Equal(t, map[string]any{"type": "object"}, next)

	assert.Equal(t, []string{"format"}, schema["required"])
}

func TestValidateParameters_Enum(t *testing.T) {
	schema := CreateSchema(listArgs{})

	require.NoError(t, ValidateParameters(map[string]any{"format": "json"}, schema))

	var verr *ValidationError
	require.ErrorAs(t, ValidateParameters(map[string]any{"format": "toml"}, schema), &verr)
	assert.Equal(t, "format", verr.Field)
	assert.Contains(t, verr.Message, "yaml, json")
}
