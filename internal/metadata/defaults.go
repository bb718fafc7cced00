package metadata

import (
	"github.com/go-openapi/inflect"
)

// applyDefaults fills in foreign-key columns and join tables that the
// declaration leaves out, following the <singular>_<key> convention.
func (r *Relation) applyDefaults(owner, target *Entity) {
	if owner == nil || target == nil {
		return
	}
	switch r.Kind {
	case HasOne, HasMany:
		if len(r.ForeignKey) == 0 {
			r.ForeignKey = prefixedKey(singular(owner.Name), owner.PrimaryKey.Columns())
		}
	case BelongsTo:
		if len(r.ForeignKey) == 0 {
			r.ForeignKey = prefixedKey(inflect.Underscore(r.Name), target.PrimaryKey.Columns())
		}
	case ManyToMany:
		if r.JoinTable == "" {
			r.JoinTable = owner.Table + "_" + target.Table
		}
		if len(r.JoinForeignKey) == 0 {
			fk := prefixedKey(singular(owner.Name), owner.PrimaryKey.Columns())
			r.JoinForeignKey = append(fk, prefixedKey(singular(target.Name), target.PrimaryKey.Columns())...)
		}
	}
}

func singular(name string) string {
	return inflect.Underscore(inflect.Singularize(name))
}

func prefixedKey(prefix string, pk []string) ForeignKey {
	fk := make(ForeignKey, len(pk))
	for i, col := range pk {
		fk[i] = KeyColumn{Column: prefix + "_" + col}
	}
	return fk
}
