// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DynamicDB Contributors

package config

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// SchemaID is the $id of the configuration schema.
const SchemaID = "https://dynamicdb.dev/schemas/config.schema.json"

var (
	compiledOnce sync.Once
	compiled     *jschema.Schema
	compiledErr  error
)

// GenerateSchema returns the JSON Schema of the configuration file.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference: true,
	}
	s := r.Reflect(&Config{})
	s.ID = jsonschema.ID(SchemaID)
	s.Title = "DynamicDB configuration"
	s.Description = "Schema for dynamicdb.yaml configuration files"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return data, nil
}

// ValidateYAML validates a configuration file against the schema.
func ValidateYAML(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("config data is empty")
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}

	sch, err := compiledSchema()
	if err != nil {
		return err
	}
	if err := sch.Validate(toJSONTypes(doc)); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

func compiledSchema() (*jschema.Schema, error) {
	compiledOnce.Do(func() {
		compiled, compiledErr = compileSchema()
	})
	return compiled, compiledErr
}

func compileSchema() (*jschema.Schema, error) {
	raw, err := GenerateSchema()
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse schema JSON: %w", err)
	}

	c := jschema.NewCompiler()
	if err := c.AddResource("config.schema.json", doc); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	sch, err := c.Compile("config.schema.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return sch, nil
}

// toJSONTypes normalizes decoded YAML into the value types encoding/json produces.
func toJSONTypes(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			out[k] = toJSONTypes(v)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, v := range val {
			out[i] = toJSONTypes(v)
		}
		return out
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case uint64:
		return float64(val)
	default:
		return val
	}
}
