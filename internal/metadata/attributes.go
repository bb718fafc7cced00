package metadata

type AttributeKind int

const (
	AttrColumn AttributeKind = iota + 1
	AttrVirtual
	AttrRelation
)

func (k AttributeKind) String() string {
	switch k {
	case AttrColumn:
		return "column"
	case AttrVirtual:
		return "virtual"
	case AttrRelation:
		return "relation"
	default:
		return "unknown"
	}
}

// Attribute is one entry of an entity's dispatch table.
type Attribute struct {
	Kind     AttributeKind
	Field    *Field
	Relation *Relation
}

// AttributeTable maps every addressable name of an entity to its kind.
type AttributeTable map[string]Attribute

// A relation shadows a field of the same name.
func buildAttributeTable(e *Entity, relations []*Relation) AttributeTable {
	table := make(AttributeTable, len(e.Fields)+len(relations))
	for i := range e.Fields {
		f := &e.Fields[i]
		kind := AttrColumn
		if f.Virtual {
			kind = AttrVirtual
		}
		table[f.Name] = Attribute{Kind: kind, Field: f}
	}
	for _, rel := range relations {
		table[rel.Name] = Attribute{Kind: AttrRelation, Relation: rel}
	}
	return table
}
