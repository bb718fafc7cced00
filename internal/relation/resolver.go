package relation

import (
	"context"
	"errors"

	"rocket-relations/internal/metadata"
	"rocket-relations/internal/store"
)

// SchemaSource describes live tables. *store.Inspector implements it.
type SchemaSource interface {
	Table(ctx context.Context, name string) (*store.TableSchema, error)
}

// Pair is one field correspondence.
type Pair struct {
	From string
	To   string
}

// FieldMap is an ordered field correspondence between two tables. For
// has-one and has-many From is a column of the related table and To a
// column of the owner; for belongs-to From is the owner's column and To
// the related record's.
type FieldMap []Pair

// From returns the source columns in order.
func (m FieldMap) From() []string {
	out := make([]string, len(m))
	for i, p := range m {
		out[i] = p.From
	}
	return out
}

// To returns the target columns in order.
func (m FieldMap) To() []string {
	out := make([]string, len(m))
	for i, p := range m {
		out[i] = p.To
	}
	return out
}

func (m FieldMap) hasFrom(col string) bool {
	for _, p := range m {
		if p.From == col {
			return true
		}
	}
	return false
}

// JoinMap binds a junction table to both sides of a many-to-many relation.
// In both sub-maps From is a primary-key column of that side and To the
// junction column holding it.
type JoinMap struct {
	Table   string
	Owner   FieldMap
	Related FieldMap
}

// Columns returns the junction columns, owner side first.
func (m *JoinMap) Columns() []string {
	return append(m.Owner.To(), m.Related.To()...)
}

// Resolver derives field correspondences from relation declarations and
// the live schema.
type Resolver struct {
	schema SchemaSource
}

func NewResolver(schema SchemaSource) *Resolver {
	return &Resolver{schema: schema}
}

// Resolve builds the FieldMap of a has-one, has-many or belongs-to relation.
//
// Each declared foreign-key column is paired with, in order of preference:
// the explicitly declared referenced column, the column named by a foreign
// key constraint on it, or the primary-key column at the same position of
// the other table. A single-column primary key pairs with every position.
func (r *Resolver) Resolve(ctx context.Context, owner, related *metadata.Entity, rel *metadata.Relation) (FieldMap, error) {
	fkEntity, otherEntity := related, owner
	if rel.Kind == metadata.BelongsTo {
		fkEntity, otherEntity = owner, related
	}

	fkTable, err := r.table(ctx, rel, fkEntity.Table)
	if err != nil {
		return nil, err
	}
	otherTable, err := r.table(ctx, rel, otherEntity.Table)
	if err != nil {
		return nil, err
	}
	if len(rel.ForeignKey) == 0 {
		return nil, schemaErrorf(rel, "no foreign key columns declared")
	}

	otherPK := primaryKey(otherTable, otherEntity)
	fm := make(FieldMap, 0, len(rel.ForeignKey))
	for i, kc := range rel.ForeignKey {
		if !fkTable.HasColumn(kc.Column) {
			return nil, schemaErrorf(rel, "column %q not found in table %q", kc.Column, fkTable.Name)
		}
		if fm.hasFrom(kc.Column) {
			return nil, schemaErrorf(rel, "column %q declared twice", kc.Column)
		}

		to := kc.References
		if to == "" {
			if ref, ok := fkTable.ForeignKeys[kc.Column]; ok && ref.Column != "" {
				to = ref.Column
			}
		}
		if to == "" {
			switch {
			case len(otherPK) == 1:
				to = otherPK[0]
			case i < len(otherPK):
				to = otherPK[i]
			default:
				return nil, schemaErrorf(rel, "foreign key column %q has no matching primary key column in %q", kc.Column, otherTable.Name)
			}
		}
		if !otherTable.HasColumn(to) {
			return nil, schemaErrorf(rel, "referenced column %q not found in table %q", to, otherTable.Name)
		}
		fm = append(fm, Pair{From: kc.Column, To: to})
	}
	return fm, nil
}

// ResolveJunction builds the JoinMap of a many-to-many relation. Junction
// columns are placed by their foreign key constraints; if any column has
// no usable constraint the whole map falls back to position: the first
// columns take the owner's primary key, the rest the related primary key.
func (r *Resolver) ResolveJunction(ctx context.Context, owner, related *metadata.Entity, rel *metadata.Relation) (*JoinMap, error) {
	if rel.JoinTable == "" {
		return nil, schemaErrorf(rel, "no join table declared")
	}
	jt, err := r.schema.Table(ctx, rel.JoinTable)
	if errors.Is(err, store.ErrTableNotFound) {
		return nil, schemaErrorf(rel, "join table %q cannot be found in the database", rel.JoinTable)
	}
	if err != nil {
		return nil, &SchemaError{Entity: rel.Source, Relation: rel.Name, Reason: "describe join table " + rel.JoinTable, Err: err}
	}
	ownerTable, err := r.table(ctx, rel, owner.Table)
	if err != nil {
		return nil, err
	}
	relatedTable, err := r.table(ctx, rel, related.Table)
	if err != nil {
		return nil, err
	}

	cols := rel.JoinForeignKey.Columns()
	if len(cols) == 0 {
		return nil, schemaErrorf(rel, "no join table foreign key columns declared")
	}
	for _, col := range cols {
		if !jt.HasColumn(col) {
			return nil, schemaErrorf(rel, "column %q not found in join table %q", col, jt.Name)
		}
	}

	jm, ok := byConstraints(jt, ownerTable, relatedTable, cols)
	if !ok {
		jm, err = byPosition(rel, primaryKey(ownerTable, owner), primaryKey(relatedTable, related), cols)
		if err != nil {
			return nil, err
		}
	}
	if len(jm.Owner) == 0 || len(jm.Related) == 0 {
		return nil, schemaErrorf(rel, "incomplete foreign key: the join table columns must reference both %q and %q", owner.Table, related.Table)
	}
	jm.Table = rel.JoinTable
	return jm, nil
}

func byConstraints(jt, ownerTable, relatedTable *store.TableSchema, cols []string) (*JoinMap, bool) {
	jm := &JoinMap{}
	for _, col := range cols {
		ref, ok := jt.ForeignKeys[col]
		if !ok || ref.Column == "" {
			return nil, false
		}
		switch {
		case !jm.Owner.hasFrom(ref.Column) && store.SameTable(ownerTable.Name, ref.Table):
			jm.Owner = append(jm.Owner, Pair{From: ref.Column, To: col})
		case !jm.Related.hasFrom(ref.Column) && store.SameTable(relatedTable.Name, ref.Table):
			jm.Related = append(jm.Related, Pair{From: ref.Column, To: col})
		default:
			return nil, false
		}
	}
	return jm, true
}

func byPosition(rel *metadata.Relation, ownerPK, relatedPK []string, cols []string) (*JoinMap, error) {
	jm := &JoinMap{}
	for i, col := range cols {
		if i < len(ownerPK) {
			jm.Owner = append(jm.Owner, Pair{From: ownerPK[i], To: col})
			continue
		}
		j := i - len(ownerPK)
		var pk string
		switch {
		case len(relatedPK) == 1:
			pk = relatedPK[0]
		case j < len(relatedPK):
			pk = relatedPK[j]
		default:
			return nil, schemaErrorf(rel, "join column %q has no matching primary key column", col)
		}
		if jm.Related.hasFrom(pk) {
			return nil, schemaErrorf(rel, "incomplete foreign key: join columns map to %q more than once", pk)
		}
		jm.Related = append(jm.Related, Pair{From: pk, To: col})
	}
	return jm, nil
}

func (r *Resolver) table(ctx context.Context, rel *metadata.Relation, name string) (*store.TableSchema, error) {
	t, err := r.schema.Table(ctx, name)
	if errors.Is(err, store.ErrTableNotFound) {
		return nil, schemaErrorf(rel, "table %q cannot be found in the database", name)
	}
	if err != nil {
		return nil, &SchemaError{Entity: rel.Source, Relation: rel.Name, Reason: "describe table " + name, Err: err}
	}
	return t, nil
}

// primaryKey prefers the live key and falls back to the declared one for
// tables the database reports without a key.
func primaryKey(t *store.TableSchema, e *metadata.Entity) []string {
	if len(t.PrimaryKey) > 0 {
		return t.PrimaryKey
	}
	return e.PrimaryKey.Columns()
}
