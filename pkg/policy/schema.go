package policy

import (
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// documentSchema is the structural JSON Schema for a raw PolicyDocument,
// checked before semantic validation per spec.md §4.E. It enforces
// types, enumerations, and the rule id pattern; range/cross-field
// invariants (complexity in [0,10], require_approval needs an approval
// config, etc.) are checked by the hand-written semantic pass in
// validate.go, since those need more context than a schema can express
// cleanly and spec.md §9 asks for a statically typed validator model
// rather than a fully dynamic schema-driven one.
const documentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["version", "name", "scope", "rules", "defaultAction"],
  "properties": {
    "version": {"enum": ["1.0", "1.1", "2.0"]},
    "name": {"type": "string", "minLength": 1},
    "scope": {"enum": ["global", "org", "repo", "branch"]},
    "scopeTarget": {"type": "string"},
    "inheritance": {"enum": ["override", "extend", "strict"]},
    "parentPolicyId": {"type": "string"},
    "rules": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "name", "action"],
        "properties": {
          "id": {"type": "string", "pattern": "^[a-zA-Z0-9_-]+$"},
          "name": {"type": "string", "minLength": 1, "maxLength": 100},
          "enabled": {"type": "boolean"},
          "priority": {"type": "integer"},
          "conditions": {"type": "array"},
          "action": {
            "type": "object",
            "required": ["effect"],
            "properties": {
              "effect": {"enum": ["allow", "deny", "require_approval", "notify", "log_only", "warn"]}
            }
          }
        }
      }
    },
    "defaultAction": {
      "type": "object",
      "required": ["effect"],
      "properties": {
        "effect": {"enum": ["allow", "deny", "require_approval", "notify", "log_only", "warn"]}
      }
    }
  }
}`

var (
	schemaOnce    sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func compiledDocumentSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		url := "https://governance.local/policy-document.schema.json"
		if err := c.AddResource(url, strings.NewReader(documentSchema)); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = c.Compile(url)
	})
	return compiledSchema, schemaErr
}
