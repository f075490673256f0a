package common

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema is a compiled JSON schema, safe for concurrent validation.
type Schema struct {
	name   string
	schema *jsonschema.Schema
}

// CompileSchema compiles raw JSON schema bytes registered under name.
func CompileSchema(name string, raw []byte) (*Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Schema{name: name, schema: schema}, nil
}

// Validate checks a decoded JSON value (maps, slices, float64, string, bool).
func (s *Schema) Validate(v any) error {
	if err := s.schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrValidation, s.name, err)
	}
	return nil
}

// ValidateBytes decodes data as JSON and validates it.
func (s *Schema) ValidateBytes(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	return s.Validate(v)
}

