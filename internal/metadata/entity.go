package metadata

type Entity struct {
	Name       string     `json:"name" yaml:"name"`
	Table      string     `json:"table" yaml:"table"`
	PrimaryKey PrimaryKey `json:"primary_key" yaml:"primary_key"`
	Fields     []Field    `json:"fields" yaml:"fields"`
}

// PrimaryKey describes a single-column (Field) or composite (Fields) key.
type PrimaryKey struct {
	Field     string   `json:"field,omitempty" yaml:"field,omitempty"`
	Fields    []string `json:"fields,omitempty" yaml:"fields,omitempty"`
	Type      string   `json:"type,omitempty" yaml:"type,omitempty"` // uuid, int, bigint, string
	Generated bool     `json:"generated,omitempty" yaml:"generated,omitempty"`
}

// Columns returns the key columns in declaration order.
func (pk PrimaryKey) Columns() []string {
	if len(pk.Fields) > 0 {
		return pk.Fields
	}
	if pk.Field != "" {
		return []string{pk.Field}
	}
	return nil
}

// IsComposite reports whether the key spans more than one column.
func (pk PrimaryKey) IsComposite() bool {
	return len(pk.Columns()) > 1
}

// GetField returns a pointer to the field with the given name, or nil.
func (e *Entity) GetField(name string) *Field {
	for i := range e.Fields {
		if e.Fields[i].Name == name {
			return &e.Fields[i]
		}
	}
	return nil
}

// HasField returns true if the entity has a field with the given name.
func (e *Entity) HasField(name string) bool {
	return e.GetField(name) != nil
}

// FieldNames returns all field names, virtual ones included.
func (e *Entity) FieldNames() []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Name
	}
	return names
}

// ColumnNames returns the names of persisted fields.
func (e *Entity) ColumnNames() []string {
	var names []string
	for _, f := range e.Fields {
		if f.Virtual {
			continue
		}
		names = append(names, f.Name)
	}
	return names
}

// IsPrimaryKey reports whether name is one of the key columns.
func (e *Entity) IsPrimaryKey(name string) bool {
	for _, c := range e.PrimaryKey.Columns() {
		if c == name {
			return true
		}
	}
	return false
}

// UpdatableColumns returns persisted fields that can be set on UPDATE.
func (e *Entity) UpdatableColumns() []string {
	var names []string
	for _, f := range e.Fields {
		if f.Virtual || e.IsPrimaryKey(f.Name) {
			continue
		}
		names = append(names, f.Name)
	}
	return names
}
