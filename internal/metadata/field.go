package metadata

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

type Field struct {
	Name       string `json:"name" yaml:"name"`
	Type       string `json:"type" yaml:"type"`
	Required   bool   `json:"required,omitempty" yaml:"required,omitempty"`
	Unique     bool   `json:"unique,omitempty" yaml:"unique,omitempty"`
	Default    any    `json:"default,omitempty" yaml:"default,omitempty"`
	Precision  int    `json:"precision,omitempty" yaml:"precision,omitempty"`
	Virtual    bool   `json:"virtual,omitempty" yaml:"virtual,omitempty"`       // kept on the record, never persisted
	References string `json:"references,omitempty" yaml:"references,omitempty"` // "table.column" FK constraint
	OnDelete   string `json:"on_delete,omitempty" yaml:"on_delete,omitempty"`   // cascade, set_null, restrict
	Expression string `json:"expression,omitempty" yaml:"expression,omitempty"` // computed virtual fields only

	program *vm.Program
}

// Reference splits References into table and column. ok is false when the
// field carries no constraint.
func (f Field) Reference() (table, column string, ok bool) {
	if f.References == "" {
		return "", "", false
	}
	i := strings.LastIndex(f.References, ".")
	if i <= 0 || i == len(f.References)-1 {
		return "", "", false
	}
	return f.References[:i], f.References[i+1:], true
}

// IsComputed reports whether the field is a virtual field derived from the
// record's other values.
func (f *Field) IsComputed() bool {
	return f.Virtual && f.Expression != ""
}

// Compile checks the expression of a computed field and keeps the program
// for Evaluate.
func (f *Field) Compile() error {
	if f.Expression == "" {
		return nil
	}
	if !f.Virtual {
		return fmt.Errorf("field %s: only virtual fields can have an expression", f.Name)
	}
	prog, err := expr.Compile(f.Expression)
	if err != nil {
		return fmt.Errorf("field %s: compile expression: %w", f.Name, err)
	}
	f.program = prog
	return nil
}

// Evaluate runs the expression of a computed field over env. A field that
// was never compiled is compiled for this call only.
func (f *Field) Evaluate(env map[string]any) (any, error) {
	prog := f.program
	if prog == nil {
		var err error
		if prog, err = expr.Compile(f.Expression); err != nil {
			return nil, fmt.Errorf("field %s: compile expression: %w", f.Name, err)
		}
	}
	v, err := expr.Run(prog, env)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", f.Name, err)
	}
	return v, nil
}
