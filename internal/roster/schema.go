package roster

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// memberSchema is intentionally loose about scalar vs list answers, the
// decoder coerces those. It only rejects records the decoder cannot use.
var memberSchema = map[string]any{
	"type": "array",
	"items": map[string]any{
		"type":     "object",
		"required": []any{"id"},
		"properties": map[string]any{
			"id": map[string]any{
				"type":      []any{"string", "integer"},
				"minLength": 1,
			},
			"status": map[string]any{"type": "string"},
			"questionnaire": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"gender":            map[string]any{"type": []any{"string", "null"}},
					"gender_preference": map[string]any{"type": []any{"string", "null"}},
					"reading_commitment": map[string]any{
						"type": []any{"string", "null"},
					},
				},
			},
		},
	},
}

var schemaLoader = gojsonschema.NewGoLoader(memberSchema)

// validateItems checks raw roster records before decoding.
func validateItems(items []any) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(items))
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return fmt.Errorf("roster validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}
