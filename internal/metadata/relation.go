package metadata

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

type RelationKind string

const (
	HasOne     RelationKind = "one_to_one"
	BelongsTo  RelationKind = "many_to_one"
	HasMany    RelationKind = "one_to_many"
	ManyToMany RelationKind = "many_to_many"
)

var kindAliases = map[string]RelationKind{
	"has_one":    HasOne,
	"belongs_to": BelongsTo,
	"has_many":   HasMany,
	"many_many":  ManyToMany,
}

// ParseRelationKind accepts the canonical kind names and the has_one /
// belongs_to / has_many / many_many aliases. Unknown values are returned
// unchanged so they can be reported where a handle is requested.
func ParseRelationKind(s string) RelationKind {
	s = strings.ToLower(strings.TrimSpace(s))
	if k, ok := kindAliases[s]; ok {
		return k
	}
	return RelationKind(s)
}

// Supported reports whether k is one of the four relation kinds.
func (k RelationKind) Supported() bool {
	switch k {
	case HasOne, BelongsTo, HasMany, ManyToMany:
		return true
	}
	return false
}

type Relation struct {
	Name           string       `json:"name" yaml:"name"`
	Kind           RelationKind `json:"kind" yaml:"kind"`
	Source         string       `json:"source" yaml:"source"` // owner entity
	Target         string       `json:"target" yaml:"target"` // related entity
	ForeignKey     ForeignKey   `json:"foreign_key,omitempty" yaml:"foreign_key,omitempty"`
	JoinTable      string       `json:"join_table,omitempty" yaml:"join_table,omitempty"`
	JoinForeignKey ForeignKey   `json:"join_foreign_key,omitempty" yaml:"join_foreign_key,omitempty"`
}

func (r *Relation) IsManyToMany() bool {
	return r.Kind == ManyToMany
}

// IsCollection reports whether the relation holds a list of records.
func (r *Relation) IsCollection() bool {
	return r.Kind == HasMany || r.Kind == ManyToMany
}

// normalize canonicalises the kind and splits a junction-style foreign key
// ("post_tag(post_id, tag_id)") into JoinTable and JoinForeignKey.
func (r *Relation) normalize() {
	r.Kind = ParseRelationKind(string(r.Kind))
	if r.Kind != ManyToMany || r.JoinTable != "" {
		return
	}
	if len(r.ForeignKey) == 1 {
		if table, cols, ok := ParseJunction(r.ForeignKey[0].Column); ok {
			r.JoinTable = table
			r.JoinForeignKey = cols
			r.ForeignKey = nil
		}
	}
}

// KeyColumn is one position of a foreign-key specification. References is
// set only when the declaration names the referenced column explicitly.
type KeyColumn struct {
	Column     string `json:"column" yaml:"column"`
	References string `json:"references,omitempty" yaml:"references,omitempty"`
}

// ForeignKey is an ordered foreign-key specification.
type ForeignKey []KeyColumn

// ParseForeignKey parses "a, b" or "a:x, b:y" (column:referenced).
func ParseForeignKey(s string) ForeignKey {
	if table, cols, ok := ParseJunction(s); ok {
		return ForeignKey{{Column: table + "(" + cols.String() + ")"}}
	}
	var fk ForeignKey
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		col, ref, _ := strings.Cut(part, ":")
		fk = append(fk, KeyColumn{Column: strings.TrimSpace(col), References: strings.TrimSpace(ref)})
	}
	return fk
}

// ParseJunction parses "table(col1, col2, ...)".
func ParseJunction(s string) (string, ForeignKey, bool) {
	s = strings.TrimSpace(s)
	open := strings.Index(s, "(")
	if open <= 0 || !strings.HasSuffix(s, ")") {
		return "", nil, false
	}
	table := strings.TrimSpace(s[:open])
	cols := ParseForeignKey(s[open+1 : len(s)-1])
	if table == "" || len(cols) == 0 {
		return "", nil, false
	}
	return table, cols, true
}

// Columns returns the declared columns in order.
func (fk ForeignKey) Columns() []string {
	cols := make([]string, len(fk))
	for i, c := range fk {
		cols[i] = c.Column
	}
	return cols
}

func (fk ForeignKey) String() string {
	parts := make([]string, len(fk))
	for i, c := range fk {
		if c.References != "" {
			parts[i] = c.Column + ":" + c.References
		} else {
			parts[i] = c.Column
		}
	}
	return strings.Join(parts, ", ")
}

func (fk ForeignKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(fk.String())
}

// UnmarshalJSON accepts a string, a list of strings or a list of
// {column, references} objects.
func (fk *ForeignKey) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*fk = ParseForeignKey(single)
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("foreign key: %w", err)
	}
	out := make(ForeignKey, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = append(out, ParseForeignKey(s)...)
			continue
		}
		var kc KeyColumn
		if err := json.Unmarshal(item, &kc); err != nil {
			return fmt.Errorf("foreign key column: %w", err)
		}
		out = append(out, kc)
	}
	*fk = out
	return nil
}

// UnmarshalYAML accepts a scalar, a sequence of scalars, or an ordered
// mapping of column: referenced.
func (fk *ForeignKey) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*fk = ParseForeignKey(node.Value)
	case yaml.SequenceNode:
		out := make(ForeignKey, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind == yaml.ScalarNode {
				out = append(out, ParseForeignKey(item.Value)...)
				continue
			}
			var kc KeyColumn
			if err := item.Decode(&kc); err != nil {
				return fmt.Errorf("foreign key column: %w", err)
			}
			out = append(out, kc)
		}
		*fk = out
	case yaml.MappingNode:
		out := make(ForeignKey, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			out = append(out, KeyColumn{Column: node.Content[i].Value, References: node.Content[i+1].Value})
		}
		*fk = out
	default:
		return fmt.Errorf("foreign key: unsupported yaml node at line %d", node.Line)
	}
	return nil
}
