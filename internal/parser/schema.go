package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validate checks payload against a JSON Schema given as a generic map and
// returns human-readable violations. A nil schema yields no violations.
// Violations are advisory: callers keep the payload.
func Validate(payload map[string]any, schema map[string]any) []string {
	if schema == nil {
		return nil
	}

	compiled, err := compile(schema)
	if err != nil {
		return []string{fmt.Sprintf("schema unusable: %v", err)}
	}

	// Round-trip through JSON so numbers and nested values have the types
	// the validator expects.
	b, err := json.Marshal(payload)
	if err != nil {
		return []string{fmt.Sprintf("payload not encodable: %v", err)}
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return []string{fmt.Sprintf("payload not decodable: %v", err)}
	}

	if err := compiled.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return flatten(verr)
		}
		return []string{err.Error()}
	}
	return nil
}

func compile(schema map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("stage.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	s, err := compiler.Compile("stage.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return s, nil
}

// flatten collects the leaf causes of a validation error.
func flatten(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := verr.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Message)}
	}
	var out []string
	for _, c := range verr.Causes {
		out = append(out, flatten(c)...)
	}
	return out
}
