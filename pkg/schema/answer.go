package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// JSONSchema represents the JSON Schema used to validate human answers.
type JSONSchema struct {
	Type                 string               `json:"type"`
	Properties           map[string]*Property `json:"properties,omitempty"`
	AdditionalProperties bool                 `json:"additionalProperties"`
	MinProperties        int                  `json:"minProperties,omitempty"`
	Title                string               `json:"title,omitempty"`
}

// Property represents a JSON Schema property.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	MinLength   *int   `json:"minLength,omitempty"`
	Pattern     string `json:"pattern,omitempty"`
}

// AnswerSchema returns the JSON Schema every answer payload must satisfy: at least one
// property, only known fields, non-blank strings matching the field pattern.
func (s *Schema) AnswerSchema() *JSONSchema {
	minLength := 1

	js := &JSONSchema{
		Type:          "object",
		Properties:    make(map[string]*Property, len(s.Fields)),
		MinProperties: 1,
		Title:         s.Name,
	}

	for _, field := range s.Fields {
		js.Properties[field.Name] = &Property{
			Type:        "string",
			Description: field.Description,
			MinLength:   &minLength,
			Pattern:     field.Pattern,
		}
	}

	return js
}

// ValidateAnswer checks a human answer against the schema.
func (s *Schema) ValidateAnswer(answer map[string]string) error {
	for name, value := range answer {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%w: field %q has an empty value", ErrInvalidAnswer, name)
		}
	}

	document := make(map[string]any, len(answer))
	for k, v := range answer {
		document[k] = strings.TrimSpace(v)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(s.AnswerSchema()),
		gojsonschema.NewGoLoader(document),
	)
	if err != nil {
		return fmt.Errorf("failed to validate answer: %w", err)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}

		sort.Strings(messages)

		return fmt.Errorf("%w: %s", ErrInvalidAnswer, strings.Join(messages, "; "))
	}

	return nil
}
