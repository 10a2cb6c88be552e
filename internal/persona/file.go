package persona

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// catalogFile is the on-disk persona catalog:
//
//	personas:
//	  - id: sage
//	    name: The Sage
//	    prompt: You are The Sage...
type catalogFile struct {
	Personas []Definition `yaml:"personas"`
}

// LoadFile reads a YAML persona catalog and returns a registry over it.
// Visual attributes are not read from the file; they stay slot-assigned.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona file: %w", err)
	}

	var catalog catalogFile
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse persona file: %w", err)
	}

	registry, err := NewRegistryWithDefinitions(catalog.Personas)
	if err != nil {
		return nil, fmt.Errorf("invalid persona file %s: %w", path, err)
	}
	return registry, nil
}

// Load returns the registry for an optional catalog path; an empty path means
// the built-in catalog
func Load(path string) (*Registry, error) {
	if path == "" {
		return NewRegistry(), nil
	}
	return LoadFile(path)
}
