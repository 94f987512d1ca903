package config

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// bundleSchemas holds the compiled JSON-Schema document for each of the
// five config bundles, keyed by bundle name.
var bundleSchemas map[string]*jsonschema.Schema

func init() {
	compiler := jsonschema.NewCompiler()
	raw := map[string]string{
		"command":  commandSchemaJSON,
		"pipeline": pipelineSchemaJSON,
		"platform": platformSchemaJSON,
		"provider": providerSchemaJSON,
		"system":   systemSchemaJSON,
	}
	bundleSchemas = make(map[string]*jsonschema.Schema, len(raw))
	for name, doc := range raw {
		url := "mem://" + name + ".json"
		if err := compiler.AddResource(url, strings.NewReader(doc)); err != nil {
			panic(fmt.Sprintf("config: invalid embedded schema for %q: %v", name, err))
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			panic(fmt.Sprintf("config: failed to compile schema for %q: %v", name, err))
		}
		bundleSchemas[name] = schema
	}
}

// Validate checks decoded JSON value v (typically produced by decoding a
// bundle's YAML document, then re-marshaling to JSON so map keys and
// number types match what jsonschema expects) against the named bundle's
// schema.
func Validate(bundleName string, v any) error {
	schema, ok := bundleSchemas[bundleName]
	if !ok {
		return fmt.Errorf("config: unknown bundle %q", bundleName)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("config: %s bundle failed schema validation: %w", bundleName, err)
	}
	return nil
}

const commandSchemaJSON = `{
  "type": "object",
  "properties": {
    "prefixes": {"type": "array", "items": {"type": "string"}},
    "inline_commands": {"type": "array", "items": {"type": "string"}},
    "unauthorized_message": {"type": "string"},
    "bot_admins": {"type": "array", "items": {"type": "string"}},
    "group_admins": {
      "type": "object",
      "additionalProperties": {"type": "array", "items": {"type": "string"}}
    }
  }
}`

const pipelineSchemaJSON = `{
  "type": "object",
  "properties": {
    "runner": {
      "type": "object",
      "properties": {
        "kind": {"type": "string", "enum": ["local", "bridge"]}
      }
    },
    "max_prompt_tokens": {"type": "integer", "minimum": 0},
    "timeout_reply": {"type": "string"}
  }
}`

const platformSchemaJSON = `{
  "type": "object",
  "properties": {
    "bots": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["uuid", "adapter_name"],
        "properties": {
          "uuid": {"type": "string"},
          "adapter_name": {"type": "string"}
        }
      }
    }
  }
}`

const providerSchemaJSON = `{
  "type": "object",
  "properties": {
    "default_model": {"type": "string"},
    "models": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["provider", "provider_model_name"],
        "properties": {
          "provider": {"type": "string", "enum": ["anthropic", "openai"]},
          "provider_model_name": {"type": "string"}
        }
      }
    },
    "bridges": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["mode", "base_url"],
        "properties": {
          "mode": {"type": "string", "enum": ["agent", "workflow"]},
          "base_url": {"type": "string"}
        }
      }
    }
  }
}`

const systemSchemaJSON = `{
  "type": "object",
  "properties": {
    "query_workers": {"type": "integer", "minimum": 0},
    "session_concurrency": {"type": "integer", "minimum": 1},
    "log_level": {"type": "string", "enum": ["debug", "info", "warn", "error"]},
    "http": {
      "type": "object",
      "properties": {
        "port": {"type": "integer", "minimum": 0, "maximum": 65535}
      }
    }
  }
}`
