package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

const viewConfigSchemaJSON = `{
  "type": "object",
  "required": ["version", "sections"],
  "additionalProperties": false,
  "properties": {
    "version": {"type": "integer", "minimum": 1},
    "sections": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "title", "widgets"],
        "additionalProperties": false,
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "title": {"type": "string"},
          "collapsed": {"type": "boolean"},
          "widgets": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["id", "type", "layout"],
              "additionalProperties": false,
              "properties": {
                "id": {"type": "string", "minLength": 1},
                "type": {"type": "string", "enum": ["line", "histogram", "bar", "scatter", "text", "table"]},
                "title": {"type": "string"},
                "logNames": {"type": "array", "items": {"type": "string", "minLength": 1}},
                "options": {"type": "object"},
                "layout": {
                  "type": "object",
                  "required": ["x", "y", "w", "h"],
                  "additionalProperties": false,
                  "properties": {
                    "x": {"type": "integer", "minimum": 0},
                    "y": {"type": "integer", "minimum": 0},
                    "w": {"type": "integer", "minimum": 0},
                    "h": {"type": "integer", "minimum": 0}
                  }
                }
              }
            }
          }
        }
      }
    }
  }
}`

var viewConfigSchema = mustLoadSchema(viewConfigSchemaJSON)

func mustLoadSchema(doc string) *openapi3.Schema {
	var schema openapi3.Schema
	if err := json.Unmarshal([]byte(doc), &schema); err != nil {
		panic("view config schema: " + err.Error())
	}
	if err := schema.Validate(context.Background()); err != nil {
		panic("view config schema: " + err.Error())
	}
	return &schema
}

// parseViewConfig validates a dashboard view config and returns it in
// compact form.
func parseViewConfig(raw json.RawMessage) (json.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, invalid("config", "is required")
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, invalid("config", "must be valid JSON")
	}

	if err := viewConfigSchema.VisitJSON(value); err != nil {
		return nil, schemaError(err)
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, invalid("config", "must be valid JSON")
	}
	return buf.Bytes(), nil
}

func schemaError(err error) error {
	var schemaErr *openapi3.SchemaError
	if errors.As(err, &schemaErr) {
		field := "config"
		if ptr := schemaErr.JSONPointer(); len(ptr) > 0 {
			field += "." + strings.Join(ptr, ".")
		}
		return invalid(field, schemaErr.Reason)
	}
	return invalid("config", err.Error())
}
