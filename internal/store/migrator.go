package store

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"rocket-relations/internal/metadata"
)

type Migrator struct {
	store  *Store
	logger *zap.Logger
}

func NewMigrator(store *Store, logger *zap.Logger) *Migrator {
	return &Migrator{store: store, logger: logger}
}

// MigrateAll migrates every entity of the registry, then the join tables of
// its many-to-many relations. Entities are created after the tables their
// fields reference so that constraints resolve on every dialect.
func (m *Migrator) MigrateAll(ctx context.Context, reg *metadata.Registry) error {
	for _, e := range orderByReferences(reg.AllEntities()) {
		if err := m.Migrate(ctx, e); err != nil {
			return err
		}
	}
	for _, rel := range reg.AllRelations() {
		if !rel.IsManyToMany() {
			continue
		}
		source, target := reg.GetEntity(rel.Source), reg.GetEntity(rel.Target)
		if source == nil || target == nil {
			continue
		}
		if err := m.MigrateJoinTable(ctx, rel, source, target); err != nil {
			return err
		}
	}
	return nil
}

// Migrate ensures the table matches the entity metadata.
// Creates the table if it doesn't exist, or adds missing columns.
func (m *Migrator) Migrate(ctx context.Context, entity *metadata.Entity) error {
	exists, err := m.store.Dialect.TableExists(ctx, m.store.DB, entity.Table)
	if err != nil {
		return fmt.Errorf("check table exists: %w", err)
	}

	if !exists {
		return m.createTable(ctx, entity)
	}

	return m.alterTable(ctx, entity)
}

// MigrateJoinTable creates the junction table of a many-to-many relation if
// it doesn't exist. Junction columns map positionally onto the owner's
// primary key followed by the target's.
func (m *Migrator) MigrateJoinTable(ctx context.Context, rel *metadata.Relation, source, target *metadata.Entity) error {
	d := m.store.Dialect
	exists, err := d.TableExists(ctx, m.store.DB, rel.JoinTable)
	if err != nil {
		return fmt.Errorf("check join table exists: %w", err)
	}
	if exists {
		return nil
	}

	ownerPK, targetPK := source.PrimaryKey.Columns(), target.PrimaryKey.Columns()
	cols := rel.JoinForeignKey.Columns()
	if len(cols) != len(ownerPK)+len(targetPK) {
		return fmt.Errorf("join table %s: %d columns cannot cover keys of %s and %s",
			rel.JoinTable, len(cols), source.Name, target.Name)
	}

	var defs, constraints []string
	for i, col := range cols {
		entity, pkCol := source, ""
		if i < len(ownerPK) {
			pkCol = ownerPK[i]
		} else {
			entity, pkCol = target, targetPK[i-len(ownerPK)]
		}
		defs = append(defs, fmt.Sprintf("%s %s NOT NULL", d.Quote(col), m.keyType(entity, pkCol)))
	}
	constraints = append(constraints,
		fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s) ON DELETE CASCADE",
			quoteAll(d, cols[:len(ownerPK)]), d.Quote(source.Table), quoteAll(d, ownerPK)),
		fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s) ON DELETE CASCADE",
			quoteAll(d, cols[len(ownerPK):]), d.Quote(target.Table), quoteAll(d, targetPK)),
		fmt.Sprintf("PRIMARY KEY (%s)", quoteAll(d, cols)),
	)

	sql := fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", d.Quote(rel.JoinTable), strings.Join(append(defs, constraints...), ",\n  "))
	if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
		return fmt.Errorf("create join table %s: %w", rel.JoinTable, err)
	}
	m.logger.Info("created join table", zap.String("table", rel.JoinTable), zap.String("relation", rel.Source+"."+rel.Name))
	return nil
}

func (m *Migrator) createTable(ctx context.Context, entity *metadata.Entity) error {
	d := m.store.Dialect
	pk := entity.PrimaryKey.Columns()
	inlinePK := false

	var cols, constraints []string
	for _, f := range m.tableFields(entity) {
		col, inline := m.buildColumnDef(entity, f)
		inlinePK = inlinePK || inline
		cols = append(cols, col)
		if table, column, ok := f.Reference(); ok {
			constraints = append(constraints, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)%s",
				d.Quote(f.Name), d.Quote(table), d.Quote(column), onDeleteClause(f.OnDelete)))
		}
	}
	if len(pk) > 0 && !inlinePK {
		constraints = append([]string{fmt.Sprintf("PRIMARY KEY (%s)", quoteAll(d, pk))}, constraints...)
	}

	sql := fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", d.Quote(entity.Table), strings.Join(append(cols, constraints...), ",\n  "))
	if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
		return fmt.Errorf("create table %s: %w", entity.Table, err)
	}
	m.logger.Info("created table", zap.String("table", entity.Table), zap.String("entity", entity.Name))

	if err := m.createIndexes(ctx, entity); err != nil {
		return fmt.Errorf("create indexes for %s: %w", entity.Table, err)
	}
	return nil
}

func (m *Migrator) alterTable(ctx context.Context, entity *metadata.Entity) error {
	d := m.store.Dialect
	existing, err := d.GetColumns(ctx, m.store.DB, entity.Table)
	if err != nil {
		return fmt.Errorf("get columns for %s: %w", entity.Table, err)
	}

	for _, f := range m.tableFields(entity) {
		if _, ok := existing[f.Name]; ok {
			continue
		}
		// Added columns stay nullable; existing rows have no value for them.
		sql := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
			d.Quote(entity.Table), d.Quote(f.Name), d.ColumnType(fieldType(f), f.Precision))
		if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
			return fmt.Errorf("add column %s.%s: %w", entity.Table, f.Name, err)
		}
		m.logger.Info("added column", zap.String("table", entity.Table), zap.String("column", f.Name))
	}

	if err := m.createIndexes(ctx, entity); err != nil {
		return fmt.Errorf("create indexes for %s: %w", entity.Table, err)
	}
	return nil
}

// tableFields returns the persisted fields, adding primary-key columns the
// declaration leaves implicit.
func (m *Migrator) tableFields(entity *metadata.Entity) []*metadata.Field {
	var fields []*metadata.Field
	for _, col := range entity.PrimaryKey.Columns() {
		if !entity.HasField(col) {
			fields = append(fields, &metadata.Field{Name: col, Type: entity.PrimaryKey.Type})
		}
	}
	for i := range entity.Fields {
		if !entity.Fields[i].Virtual {
			fields = append(fields, &entity.Fields[i])
		}
	}
	return fields
}

// buildColumnDef renders one column. inlinePK reports whether the primary
// key was declared on the column itself.
func (m *Migrator) buildColumnDef(entity *metadata.Entity, f *metadata.Field) (string, bool) {
	d := m.store.Dialect
	pk := entity.PrimaryKey
	single := !pk.IsComposite() && entity.IsPrimaryKey(f.Name)

	if single && pk.Generated {
		switch fieldType(f) {
		case "int", "integer", "bigint":
			return d.Quote(f.Name) + " " + d.AutoIncrementColumn(fieldType(f)), true
		case "uuid":
			col := d.Quote(f.Name) + " " + d.ColumnType("uuid", 0) + " PRIMARY KEY"
			if def := d.UUIDDefault(); def != "" {
				col += " " + def
			}
			return col, true
		}
	}

	col := d.Quote(f.Name) + " " + d.ColumnType(fieldType(f), f.Precision)
	if entity.IsPrimaryKey(f.Name) {
		return col + " NOT NULL", false
	}
	if f.Required {
		col += " NOT NULL"
	}
	if f.Default != nil {
		col += " DEFAULT " + defaultLiteral(d, f.Default)
	}
	return col, false
}

func (m *Migrator) keyType(entity *metadata.Entity, col string) string {
	d := m.store.Dialect
	if f := entity.GetField(col); f != nil {
		return d.ColumnType(fieldType(f), f.Precision)
	}
	return d.ColumnType(fieldType(&metadata.Field{Type: entity.PrimaryKey.Type}), 0)
}

func (m *Migrator) createIndexes(ctx context.Context, entity *metadata.Entity) error {
	d := m.store.Dialect
	for _, f := range entity.Fields {
		if !f.Unique || f.Virtual {
			continue
		}
		sql := fmt.Sprintf("CREATE UNIQUE INDEX %s ON %s (%s)",
			d.Quote("idx_"+entity.Table+"_"+f.Name), d.Quote(entity.Table), d.Quote(f.Name))
		if d.Name() != "mysql" {
			sql = strings.Replace(sql, "INDEX", "INDEX IF NOT EXISTS", 1)
		}
		if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
			// MySQL has no IF NOT EXISTS for indexes; a duplicate is fine.
			if d.Name() == "mysql" && strings.Contains(err.Error(), "Duplicate key name") {
				continue
			}
			return fmt.Errorf("create unique index on %s.%s: %w", entity.Table, f.Name, err)
		}
	}
	return nil
}

func fieldType(f *metadata.Field) string {
	if f.Type == "" {
		return "string"
	}
	return f.Type
}

func defaultLiteral(d Dialect, v any) string {
	switch val := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'"
	case bool:
		if d.Name() == "postgres" {
			return fmt.Sprintf("%t", val)
		}
		if val {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprintf("%v", val)
	}
}

func onDeleteClause(action string) string {
	switch strings.ToLower(action) {
	case "cascade":
		return " ON DELETE CASCADE"
	case "set_null", "set null":
		return " ON DELETE SET NULL"
	case "restrict":
		return " ON DELETE RESTRICT"
	default:
		return ""
	}
}

// orderByReferences puts referenced tables before the tables pointing at
// them. Cycles keep their declaration order.
func orderByReferences(entities []*metadata.Entity) []*metadata.Entity {
	byTable := make(map[string]*metadata.Entity, len(entities))
	for _, e := range entities {
		byTable[normalizeTableName(e.Table)] = e
	}

	var ordered []*metadata.Entity
	state := make(map[*metadata.Entity]int) // 1 visiting, 2 done
	var visit func(e *metadata.Entity)
	visit = func(e *metadata.Entity) {
		if state[e] != 0 {
			return
		}
		state[e] = 1
		for _, f := range e.Fields {
			if table, _, ok := f.Reference(); ok {
				if dep := byTable[normalizeTableName(table)]; dep != nil && dep != e {
					visit(dep)
				}
			}
		}
		state[e] = 2
		ordered = append(ordered, e)
	}
	for _, e := range entities {
		visit(e)
	}
	return ordered
}
