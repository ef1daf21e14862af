package schema

import (
	"slices"
	"strings"
)

// Gaps is the result of classifying a record against a schema.
type Gaps struct {
	// Critical lists required fields without a value. They block completion.
	Critical []string
	// Optional lists optional fields without a value. They never block completion.
	Optional []string
}

// Blocking reports whether the pause condition holds.
func (g Gaps) Blocking() bool {
	return len(g.Critical) > 0
}

// Classify recomputes the missing fields of a record from scratch. Both lists are sorted
// and never nil. Record keys unknown to the schema are ignored.
func (s *Schema) Classify(record map[string]string) Gaps {
	gaps := Gaps{
		Critical: []string{},
		Optional: []string{},
	}

	for _, field := range s.Fields {
		if HasValue(record, field.Name) {
			continue
		}

		if field.Required {
			gaps.Critical = append(gaps.Critical, field.Name)
		} else {
			gaps.Optional = append(gaps.Optional, field.Name)
		}
	}

	slices.Sort(gaps.Critical)
	slices.Sort(gaps.Optional)

	return gaps
}

// HasValue reports whether the record holds a non-blank value for the field.
func HasValue(record map[string]string, name string) bool {
	return strings.TrimSpace(record[name]) != ""
}

// Question builds the text shown to the user when a task pauses. Optional gaps are listed
// only when includeOptional is set.
func (s *Schema) Question(gaps Gaps, includeOptional bool) string {
	var b strings.Builder

	b.WriteString("Please provide the following required information: ")
	b.WriteString(s.describe(gaps.Critical))
	b.WriteString(".")

	if includeOptional && len(gaps.Optional) > 0 {
		b.WriteString(" If available, also provide: ")
		b.WriteString(s.describe(gaps.Optional))
		b.WriteString(".")
	}

	return b.String()
}

func (s *Schema) describe(names []string) string {
	parts := make([]string, 0, len(names))

	for _, name := range names {
		field, ok := s.Field(name)
		if !ok || field.Label == "" {
			parts = append(parts, name)

			continue
		}

		parts = append(parts, field.Label+" ("+name+")")
	}

	return strings.Join(parts, ", ")
}
