package grammar

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// docSchemaJSON is the JSON Schema (Draft 2020-12) describing the *shape*
// of a grammar Doc, independent of the semantic checks in LintDoc. It
// catches wrong field types and unknown top-level keys cheaply, before the
// referential lint pass walks the document.
const docSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "required": ["format", "types", "record"],
  "properties": {
    "format": {"type": "string"},
    "endian": {"type": "string", "enum": ["little", "big"]},
    "framing": {
      "type": "object",
      "properties": {"repeat": {"type": "string"}}
    },
    "types": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["fields"],
        "properties": {
          "fields": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["name", "type"],
              "properties": {
                "name": {"type": "string"},
                "type": {"type": "string"},
                "endian": {"type": "string"},
                "length": {"type": ["string", "integer"]},
                "encoding": {"type": "string"},
                "validate": {"type": "object"},
                "color": {"type": "string"}
              }
            }
          }
        }
      }
    },
    "record": {
      "type": "object",
      "properties": {
        "use": {"type": "string"},
        "switch": {
          "type": "object",
          "required": ["expr", "cases"],
          "properties": {
            "expr": {"type": "string"},
            "cases": {"type": "object"},
            "default": {"type": "string"}
          }
        }
      }
    },
    "registry": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["decode"],
        "properties": {
          "decode": {
            "type": "object",
            "required": ["as"],
            "properties": {
              "as": {"type": "string", "enum": ["string", "u16", "u32", "hex", "packed_date_v1"]},
              "field": {"type": "string"},
              "encoding": {"type": "string"},
              "endian": {"type": "string"}
            }
          }
        }
      }
    }
  }
}`

var (
	compileOnce sync.Once
	docSchema   *jsonschema.Schema
	compileErr  error
)

func compiledDocSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		const url = "schema://grammar-doc.json"
		if err := compiler.AddResource(url, strings.NewReader(docSchemaJSON)); err != nil {
			compileErr = fmt.Errorf("grammar: invalid embedded doc schema: %w", err)
			return
		}
		sch, err := compiler.Compile(url)
		if err != nil {
			compileErr = fmt.Errorf("grammar: failed to compile doc schema: %w", err)
			return
		}
		docSchema = sch
	})
	return docSchema, compileErr
}

// validateShape runs the Doc through the compiled JSON Schema and converts
// any failure into a single LintError describing the first violation.
// Detailed semantic checks (referential integrity, endian resolution, ...)
// happen afterward in the rest of LintDoc and assume a Doc already known to
// have the right shape.
func validateShape(doc Doc) *LintError {
	schema, err := compiledDocSchema()
	if err != nil {
		return newLintError(ErrSchemaShape, "", "%v", err)
	}

	// jsonschema/v5 requires data produced via encoding/json decoding
	// (json.Number, not yaml's int/float64 mix), so round-trip through it.
	raw, err := json.Marshal(doc)
	if err != nil {
		return newLintError(ErrSchemaShape, "", "document is not JSON-representable: %v", err)
	}
	var jsonDoc interface{}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	if err := dec.Decode(&jsonDoc); err != nil {
		return newLintError(ErrSchemaShape, "", "document is not JSON-representable: %v", err)
	}

	if err := schema.Validate(jsonDoc); err != nil {
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			path := "$"
			if len(ve.Causes) > 0 {
				path = ve.Causes[0].InstanceLocation
			} else {
				path = ve.InstanceLocation
			}
			return newLintError(ErrSchemaShape, path, "%s", ve.Message)
		}
		return newLintError(ErrSchemaShape, "", "%v", err)
	}
	return nil
}
