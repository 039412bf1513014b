package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// GenerateStructured asks p for a JSON object matching schema and decodes
// it. A reply that cannot be parsed or does not satisfy schema is returned
// as data: a map with "error" and "raw_response" keys plus either
// "parse_error" or "schema_errors". Only generation failures and invalid
// schemas are errors.
func GenerateStructured(ctx context.Context, p Provider, prompt string, schema map[string]any, cfg *GenerationConfig) (map[string]any, error) {
	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	text, err := p.Generate(ctx, structuredPrompt(prompt, string(schemaJSON)), cfg)
	if err != nil {
		return nil, err
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(extractJSON(text)), &out); err != nil {
		return map[string]any{
			"error":        "Failed to parse JSON response",
			"raw_response": text,
			"parse_error":  err.Error(),
		}, nil
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(out))
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	if !result.Valid() {
		errs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}
		return map[string]any{
			"error":         "Response does not match schema",
			"raw_response":  text,
			"schema_errors": errs,
		}, nil
	}
	return out, nil
}

func structuredPrompt(prompt, schema string) string {
	return prompt + "\n\nPlease provide your response as a JSON object matching this schema:\n" +
		schema + "\n\nRespond with ONLY the JSON object, no additional text."
}

// extractJSON returns the span from the first '{' to the last '}', or text
// unchanged when there is no such span.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}") + 1
	if start >= 0 && end > start {
		return text[start:end]
	}
	return text
}
