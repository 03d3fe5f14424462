// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package agent

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// buildVerdictJSONSchema returns the JSON-Schema (draft 2020-12 subset)
// the model's response must satisfy. We pass it to the service as a
// structured-output constraint and also use it locally to validate the
// returned content. The three identifying fields are required exactly
// when the verdict is valid.
func buildVerdictJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"valid":           map[string]any{"type": "boolean"},
			"confidence":      map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
			"document_number": map[string]any{"type": "string", "pattern": `^\d+$`},
			"event_date":      map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
			"client_name":     map[string]any{"type": "string", "minLength": 1},
			"reason":          map[string]any{"type": "string"},
		},
		"required": []string{"valid", "confidence"},
		"if": map[string]any{
			"properties": map[string]any{"valid": map[string]any{"const": true}},
		},
		"then": map[string]any{
			"required": []string{"document_number", "event_date", "client_name"},
		},
	}
}

// validateJSONAgainstSchema validates "data" against "schemaMap".
func validateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
