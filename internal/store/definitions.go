package store

import (
	"context"
	"encoding/json"
	"fmt"

	"rocket-relations/internal/metadata"
)

// SaveDefinitions upserts entity and relation definitions into the system
// tables inside one transaction.
func (s *Store) SaveDefinitions(ctx context.Context, entities []*metadata.Entity, relations []*metadata.Relation) error {
	entitySQL := s.Dialect.UpsertDefinitionSQL("_entities", []string{"name"}, []string{"name", "table_name", "definition"})
	relationSQL := s.Dialect.UpsertDefinitionSQL("_relations", []string{"source", "name"}, []string{"source", "name", "definition"})

	return s.Tx(ctx, func(q Querier) error {
		for _, e := range entities {
			def, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("marshal entity %s: %w", e.Name, err)
			}
			if _, err := q.ExecContext(ctx, entitySQL, e.Name, e.Table, string(def)); err != nil {
				return fmt.Errorf("save entity %s: %w", e.Name, s.Dialect.MapError(err))
			}
		}
		for _, rel := range relations {
			def, err := json.Marshal(rel)
			if err != nil {
				return fmt.Errorf("marshal relation %s.%s: %w", rel.Source, rel.Name, err)
			}
			if _, err := q.ExecContext(ctx, relationSQL, rel.Source, rel.Name, string(def)); err != nil {
				return fmt.Errorf("save relation %s.%s: %w", rel.Source, rel.Name, s.Dialect.MapError(err))
			}
		}
		return nil
	})
}
