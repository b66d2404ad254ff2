package providers

import (
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// geminiSchemaWhitelist is the set of JSON-Schema keywords Gemini's
// function-declaration parameter schema actually accepts; every other key
// a tool author might have put in an Protocol-A input_schema (e.g.
// "$comment", "examples", "default") gets stripped rather than rejected
// upstream.
var geminiSchemaWhitelist = map[string]bool{
	"type": true, "properties": true, "required": true, "description": true,
	"enum": true, "items": true, "format": true, "nullable": true,
	"title": true, "anyOf": true, "$ref": true, "$defs": true, "$id": true,
	"$anchor": true, "minimum": true, "maximum": true, "minItems": true,
	"maxItems": true, "prefixItems": true, "additionalProperties": true,
	"propertyOrdering": true,
}

// SanitizeGeminiSchema recursively strips any key not in the whitelist
// from a JSON-Schema document, except that the keys directly under
// "properties" are themselves field names, not schema keywords, and are
// therefore exempt from whitelisting — only their values are recursively
// sanitized.
func SanitizeGeminiSchema(schema []byte) ([]byte, error) {
	if len(schema) == 0 || !gjson.ValidBytes(schema) {
		return schema, nil
	}
	return sanitizeValue(schema)
}

func sanitizeValue(raw []byte) ([]byte, error) {
	parsed := gjson.ParseBytes(raw)

	if !parsed.IsObject() {
		if parsed.IsArray() {
			return sanitizeArray(raw)
		}
		return raw, nil
	}

	result := []byte("{}")
	var err error

	parsed.ForEach(func(key, value gjson.Result) bool {
		k := key.String()

		if k == "properties" {
			sanitizedProps, propsErr := sanitizeProperties(value)
			if propsErr != nil {
				err = propsErr
				return false
			}
			result, err = sjson.SetRawBytes(result, "properties", sanitizedProps)
			return err == nil
		}

		if !geminiSchemaWhitelist[k] {
			return true // skip, keep iterating
		}

		var sanitizedValue []byte
		switch {
		case value.IsObject() || value.IsArray():
			sanitizedValue, err = sanitizeValue([]byte(value.Raw))
		default:
			sanitizedValue = []byte(value.Raw)
		}
		if err != nil {
			return false
		}

		result, err = sjson.SetRawBytes(result, k, sanitizedValue)
		return err == nil
	})

	return result, err
}

func sanitizeProperties(properties gjson.Result) ([]byte, error) {
	result := []byte("{}")
	var err error

	properties.ForEach(func(fieldName, fieldSchema gjson.Result) bool {
		sanitized, sanitizeErr := sanitizeValue([]byte(fieldSchema.Raw))
		if sanitizeErr != nil {
			err = sanitizeErr
			return false
		}
		result, err = sjson.SetRawBytes(result, fieldName.String(), sanitized)
		return err == nil
	})

	return result, err
}

func sanitizeArray(raw []byte) ([]byte, error) {
	parsed := gjson.ParseBytes(raw)
	result := []byte("[]")
	var err error
	i := 0

	parsed.ForEach(func(_, value gjson.Result) bool {
		var sanitized []byte
		if value.IsObject() || value.IsArray() {
			sanitized, err = sanitizeValue([]byte(value.Raw))
		} else {
			sanitized = []byte(value.Raw)
		}
		if err != nil {
			return false
		}

		result, err = sjson.SetRawBytes(result, strconv.Itoa(i), sanitized)
		i++
		return err == nil
	})

	return result, err
}
