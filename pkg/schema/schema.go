// Package schema declares which form fields a recipe needs and classifies the gaps in a record.
package schema

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrInvalidSchema indicates a field schema that cannot be used.
	ErrInvalidSchema = errors.New("invalid field schema")

	// ErrInvalidAnswer indicates a human answer that does not satisfy the field schema.
	ErrInvalidAnswer = errors.New("invalid answer")
)

// FieldSpec describes one form field.
type FieldSpec struct {
	Name        string `json:"name"                  yaml:"name"`
	Label       string `json:"label,omitempty"       yaml:"label,omitempty"`
	Required    bool   `json:"required"              yaml:"required"`
	Pattern     string `json:"pattern,omitempty"     yaml:"pattern,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// DisplayName is the label when one is declared, otherwise the field name.
func (f FieldSpec) DisplayName() string {
	if f.Label != "" {
		return f.Label
	}

	return f.Name
}

// Schema is an ordered set of field specs.
type Schema struct {
	Name   string      `json:"name"   yaml:"name"`
	Fields []FieldSpec `json:"fields" yaml:"fields"`

	index map[string]int
}

// New builds and validates a schema.
func New(name string, fields ...FieldSpec) (*Schema, error) {
	s := &Schema{Name: name, Fields: fields}

	err := s.build()
	if err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Schema) build() error {
	if len(s.Fields) == 0 {
		return fmt.Errorf("%w: schema %q declares no fields", ErrInvalidSchema, s.Name)
	}

	s.index = make(map[string]int, len(s.Fields))

	for i, field := range s.Fields {
		name := strings.TrimSpace(field.Name)
		if name == "" {
			return fmt.Errorf("%w: field %d has no name", ErrInvalidSchema, i)
		}

		if _, exists := s.index[name]; exists {
			return fmt.Errorf("%w: duplicate field %q", ErrInvalidSchema, name)
		}

		if field.Pattern != "" {
			if _, err := regexp.Compile(field.Pattern); err != nil {
				return fmt.Errorf("%w: field %q pattern: %w", ErrInvalidSchema, name, err)
			}
		}

		s.Fields[i].Name = name
		s.index[name] = i
	}

	return nil
}

// Field returns the field declared under name.
func (s *Schema) Field(name string) (FieldSpec, bool) {
	i, ok := s.index[name]
	if !ok {
		return FieldSpec{}, false
	}

	return s.Fields[i], true
}

// Required returns the names of the required fields in declaration order.
func (s *Schema) Required() []string {
	return s.names(true)
}

// Optional returns the names of the optional fields in declaration order.
func (s *Schema) Optional() []string {
	return s.names(false)
}

func (s *Schema) names(required bool) []string {
	names := make([]string, 0, len(s.Fields))

	for _, field := range s.Fields {
		if field.Required == required {
			names = append(names, field.Name)
		}
	}

	return names
}
