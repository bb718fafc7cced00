package relation

import (
	"errors"
	"fmt"

	"rocket-relations/internal/metadata"
)

// Sentinel errors matched by the typed errors below through errors.Is.
var (
	ErrSchema              = errors.New("relation: schema mismatch")
	ErrUndeclaredRelation  = errors.New("relation: undeclared relation")
	ErrUnsupportedRelation = errors.New("relation: unsupported relation kind")
	ErrRelation            = errors.New("relation: constraint violated")
	ErrUnknownAttribute    = errors.New("relation: unknown attribute")
)

// SchemaError reports a foreign-key or join-table declaration that cannot
// be matched against the live table structure.
type SchemaError struct {
	Entity   string
	Relation string
	Reason   string
	Err      error // optional underlying lookup failure
}

func (e *SchemaError) Error() string {
	msg := fmt.Sprintf("relation %s.%s: %s", e.Entity, e.Relation, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SchemaError) Is(err error) bool { return err == ErrSchema }
func (e *SchemaError) Unwrap() error     { return e.Err }

func schemaErrorf(rel *metadata.Relation, format string, args ...any) *SchemaError {
	return &SchemaError{Entity: rel.Source, Relation: rel.Name, Reason: fmt.Sprintf(format, args...)}
}

// IsSchemaError returns true if the error is a SchemaError.
func IsSchemaError(err error) bool {
	var e *SchemaError
	return errors.As(err, &e)
}

// UndeclaredRelationError is returned for relation names the entity does
// not declare.
type UndeclaredRelationError struct {
	Entity   string
	Relation string
}

func (e *UndeclaredRelationError) Error() string {
	return fmt.Sprintf("relation %q is not declared on %s", e.Relation, e.Entity)
}

func (e *UndeclaredRelationError) Is(err error) bool { return err == ErrUndeclaredRelation }

// IsUndeclaredRelation returns true if the error is an UndeclaredRelationError.
func IsUndeclaredRelation(err error) bool {
	var e *UndeclaredRelationError
	return errors.As(err, &e)
}

// UnsupportedRelationError is returned for a declared relation whose kind
// has no handle.
type UnsupportedRelationError struct {
	Entity   string
	Relation string
	Kind     metadata.RelationKind
}

func (e *UnsupportedRelationError) Error() string {
	return fmt.Sprintf("relation %s.%s has unsupported kind %q", e.Entity, e.Relation, e.Kind)
}

func (e *UnsupportedRelationError) Is(err error) bool { return err == ErrUnsupportedRelation }

// IsUnsupportedRelation returns true if the error is an UnsupportedRelationError.
func IsUnsupportedRelation(err error) bool {
	var e *UnsupportedRelationError
	return errors.As(err, &e)
}

// RelationError reports a relation contract violation, such as linking an
// unsaved record or failing to remove a replaced has-one target.
type RelationError struct {
	Entity   string // entity of the record concerned
	Key      string // its primary key, "~"-joined
	Relation string
	Reason   string
	Err      error
}

func (e *RelationError) Error() string {
	msg := fmt.Sprintf("relation %s: %s", e.Relation, e.Reason)
	if e.Entity != "" {
		msg += fmt.Sprintf(" (%s %s)", e.Entity, e.Key)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RelationError) Is(err error) bool { return err == ErrRelation }
func (e *RelationError) Unwrap() error     { return e.Err }

// IsRelationError returns true if the error is a RelationError.
func IsRelationError(err error) bool {
	var e *RelationError
	return errors.As(err, &e)
}

// UnknownAttributeError is returned by the attribute facade for names that
// are neither fields, virtual properties nor relations.
type UnknownAttributeError struct {
	Entity    string
	Attribute string
}

func (e *UnknownAttributeError) Error() string {
	return fmt.Sprintf("%s has no attribute %q", e.Entity, e.Attribute)
}

func (e *UnknownAttributeError) Is(err error) bool { return err == ErrUnknownAttribute }

// IsUnknownAttribute returns true if the error is an UnknownAttributeError.
func IsUnknownAttribute(err error) bool {
	var e *UnknownAttributeError
	return errors.As(err, &e)
}
