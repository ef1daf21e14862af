package schema

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Parse decodes and validates a YAML schema definition.
func Parse(data []byte) (*Schema, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: definition payload is empty", ErrInvalidSchema)
	}

	var s Schema

	err := yaml.Unmarshal(data, &s)
	if err != nil {
		return nil, fmt.Errorf("%w: decode definition: %w", ErrInvalidSchema, err)
	}

	err = s.build()
	if err != nil {
		return nil, err
	}

	return &s, nil
}

// LoadFile reads a YAML schema definition from disk.
func LoadFile(path string) (*Schema, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", path, err)
	}

	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("schema: %s: %w", path, err)
	}

	return s, nil
}
