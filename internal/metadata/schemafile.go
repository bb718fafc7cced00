package metadata

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Schema is the on-disk form of entity and relation declarations.
type Schema struct {
	Entities  []*Entity   `yaml:"entities"`
	Relations []*Relation `yaml:"relations"`
}

// LoadFile reads a YAML schema file.
func LoadFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	return ParseSchema(data)
}

// ParseSchema decodes YAML schema declarations and checks that every
// relation names known entities.
func ParseSchema(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}

	known := make(map[string]bool, len(s.Entities))
	for _, e := range s.Entities {
		if e.Name == "" {
			return nil, fmt.Errorf("parse schema: entity without name")
		}
		if e.Table == "" {
			e.Table = e.Name
		}
		for i := range e.Fields {
			if err := e.Fields[i].Compile(); err != nil {
				return nil, fmt.Errorf("parse schema: entity %q: %w", e.Name, err)
			}
		}
		known[e.Name] = true
	}
	for _, rel := range s.Relations {
		if !known[rel.Source] {
			return nil, fmt.Errorf("parse schema: relation %q: unknown source entity %q", rel.Name, rel.Source)
		}
		if !known[rel.Target] {
			return nil, fmt.Errorf("parse schema: relation %q: unknown target entity %q", rel.Name, rel.Target)
		}
	}
	return &s, nil
}

// Apply loads the schema into the registry.
func (s *Schema) Apply(reg *Registry) {
	reg.Load(s.Entities, s.Relations)
}
