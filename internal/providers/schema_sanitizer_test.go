package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestSanitizeGeminiSchema_StripsUnknownKeys(t *testing.T) {
	input := []byte(`{
		"type": "object",
		"$comment": "not allowed",
		"properties": {
			"name": {"type": "string", "examples": ["a"], "description": "the name"},
			"count": {"type": "integer", "default": 0}
		},
		"required": ["name"]
	}`)

	out, err := SanitizeGeminiSchema(input)
	require.NoError(t, err)

	parsed := gjson.ParseBytes(out)
	assert.Equal(t, "object", parsed.Get("type").String())
	assert.False(t, parsed.Get("$comment").Exists())
	assert.Equal(t, "string", parsed.Get("properties.name.type").String())
	assert.False(t, parsed.Get("properties.name.examples").Exists())
	assert.Equal(t, "the name", parsed.Get("properties.name.description").String())
	assert.False(t, parsed.Get("properties.count.default").Exists())
	assert.Equal(t, "name", parsed.Get("required.0").String())
}

func TestSanitizeGeminiSchema_PropertiesKeysExemptFromWhitelist(t *testing.T) {
	// A field named "pattern" (a keyword outside the whitelist, used here
	// as a field name) must survive under properties even though it would
	// be stripped as a schema keyword, since properties keys are field names.
	input := []byte(`{"type":"object","properties":{"pattern":{"type":"string"}}}`)

	out, err := SanitizeGeminiSchema(input)
	require.NoError(t, err)

	parsed := gjson.ParseBytes(out)
	assert.Equal(t, "string", parsed.Get(`properties.pattern.type`).String())
}

func TestSanitizeGeminiSchema_EmptyInput(t *testing.T) {
	out, err := SanitizeGeminiSchema(nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}
