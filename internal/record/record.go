package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"rocket-relations/internal/metadata"
)

var (
	ErrUnknownField = errors.New("unknown field")
	ErrNewRecord    = errors.New("record has not been saved")
	ErrNoLoader     = errors.New("no relation loader installed")
	ErrComputed     = errors.New("computed field is read-only")
)

// slot caches one relation of a record. A missing slot means the relation
// was never loaded.
type slot struct {
	one        *Record
	many       []*Record
	collection bool
}

func (s *slot) value() any {
	if s.collection {
		return s.many
	}
	return s.one
}

// Record is one row of an entity together with its virtual properties and
// the relations loaded onto it.
type Record struct {
	entity  *metadata.Entity
	repo    *Repo
	values  map[string]any
	virtual map[string]any
	isNew   bool
	oldKey  Key
	related map[string]*slot
}

func newRecord(entity *metadata.Entity, repo *Repo) *Record {
	return &Record{
		entity:  entity,
		repo:    repo,
		values:  make(map[string]any),
		virtual: make(map[string]any),
		isNew:   true,
		related: make(map[string]*slot),
	}
}

func (r *Record) Entity() *metadata.Entity { return r.entity }

// IsNew reports whether the record has not been inserted yet.
func (r *Record) IsNew() bool { return r.isNew }

// Get returns a column or virtual property value; nil when unset or when a
// computed field fails to evaluate.
func (r *Record) Get(name string) any {
	v, _ := r.Value(name)
	return v
}

// Value is Get that reports evaluation errors of computed fields.
func (r *Record) Value(name string) (any, error) {
	f := r.entity.GetField(name)
	switch {
	case f == nil || !f.Virtual:
		return r.values[name], nil
	case f.IsComputed():
		return f.Evaluate(r.env())
	}
	return r.virtual[name], nil
}

// env exposes stored columns and plain virtual properties to expressions.
func (r *Record) env() map[string]any {
	env := make(map[string]any, len(r.values)+len(r.virtual))
	for k, v := range r.values {
		env[k] = v
	}
	for k, v := range r.virtual {
		env[k] = v
	}
	return env
}

// Set assigns a declared column, primary-key column or virtual property.
func (r *Record) Set(name string, v any) error {
	if f := r.entity.GetField(name); f != nil {
		if f.IsComputed() {
			return fmt.Errorf("%w: %s.%s", ErrComputed, r.entity.Name, name)
		}
		if f.Virtual {
			r.virtual[name] = v
		} else {
			r.values[name] = v
		}
		return nil
	}
	if r.entity.IsPrimaryKey(name) {
		r.values[name] = v
		return nil
	}
	return fmt.Errorf("%w: %s.%s", ErrUnknownField, r.entity.Name, name)
}

// SetColumn assigns a column value without checking the entity
// declaration. Used for key columns that exist only in the table schema.
func (r *Record) SetColumn(name string, v any) {
	r.values[name] = v
}

// Values returns a copy of the persisted column values.
func (r *Record) Values() map[string]any {
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// PrimaryKey returns the current primary-key values in key column order.
func (r *Record) PrimaryKey() Key {
	cols := r.entity.PrimaryKey.Columns()
	key := make(Key, len(cols))
	for i, c := range cols {
		key[i] = r.values[c]
	}
	return key
}

// ValuesOf returns the values of the given columns in order.
func (r *Record) ValuesOf(cols []string) []any {
	out := make([]any, len(cols))
	for i, c := range cols {
		out[i] = r.values[c]
	}
	return out
}

// --- relation cache slots ---

// Cached returns the loaded value of a relation without triggering a load:
// a *Record (possibly nil) for singular relations, []*Record for collections.
func (r *Record) Cached(name string) (any, bool) {
	s, ok := r.related[name]
	if !ok {
		return nil, false
	}
	return s.value(), true
}

// HasRelated reports whether the relation slot is loaded.
func (r *Record) HasRelated(name string) bool {
	_, ok := r.related[name]
	return ok
}

// SetRelated replaces the slot with v, which must be nil, a *Record or a
// []*Record.
func (r *Record) SetRelated(name string, v any) {
	switch val := v.(type) {
	case nil:
		r.related[name] = &slot{}
	case *Record:
		r.related[name] = &slot{one: val}
	case []*Record:
		r.related[name] = &slot{many: append([]*Record(nil), val...), collection: true}
	default:
		panic(fmt.Sprintf("record: SetRelated(%q) with %T", name, v))
	}
}

// AddRelated inserts rec into a collection slot at index; -1 or an index
// past the end appends. An absent slot is created empty first.
func (r *Record) AddRelated(name string, rec *Record, index int) {
	s, ok := r.related[name]
	if !ok || !s.collection {
		s = &slot{collection: true}
		r.related[name] = s
	}
	if index < 0 || index >= len(s.many) {
		s.many = append(s.many, rec)
		return
	}
	s.many = append(s.many, nil)
	copy(s.many[index+1:], s.many[index:])
	s.many[index] = rec
}

// ClearRelated drops the slot so the next access reloads it.
func (r *Record) ClearRelated(name string) {
	delete(r.related, name)
}

func (r *Record) clearAllRelated() {
	r.related = make(map[string]*slot)
}

// Related returns the relation value, loading it through the repo's
// relation loader when the slot is absent.
func (r *Record) Related(ctx context.Context, name string) (any, error) {
	if v, ok := r.Cached(name); ok {
		return v, nil
	}
	if r.repo == nil || r.repo.loader == nil {
		return nil, ErrNoLoader
	}
	if err := r.repo.loader.LoadRelated(ctx, r, name); err != nil {
		return nil, err
	}
	v, _ := r.Cached(name)
	return v, nil
}

// RelatedOne is Related for singular relations.
func (r *Record) RelatedOne(ctx context.Context, name string) (*Record, error) {
	v, err := r.Related(ctx, name)
	if err != nil {
		return nil, err
	}
	rec, _ := v.(*Record)
	return rec, nil
}

// RelatedMany is Related for collection relations.
func (r *Record) RelatedMany(ctx context.Context, name string) ([]*Record, error) {
	v, err := r.Related(ctx, name)
	if err != nil {
		return nil, err
	}
	recs, _ := v.([]*Record)
	return recs, nil
}

// --- persistence shortcuts ---

func (r *Record) Save(ctx context.Context) (bool, error) { return r.repo.Save(ctx, r) }

func (r *Record) Update(ctx context.Context, fields ...string) (bool, error) {
	return r.repo.Update(ctx, r, fields...)
}

func (r *Record) Delete(ctx context.Context) (bool, error) { return r.repo.Delete(ctx, r) }

func (r *Record) Refresh(ctx context.Context) error { return r.repo.Refresh(ctx, r) }

// Map renders the record for output: columns, virtual properties and every
// loaded relation. Related records are rendered without their own relations.
func (r *Record) Map() map[string]any {
	out := r.flatMap()
	for name, s := range r.related {
		if s.collection {
			list := make([]map[string]any, len(s.many))
			for i, rec := range s.many {
				list[i] = rec.flatMap()
			}
			out[name] = list
			continue
		}
		if s.one == nil {
			out[name] = nil
		} else {
			out[name] = s.one.flatMap()
		}
	}
	return out
}

func (r *Record) flatMap() map[string]any {
	out := make(map[string]any, len(r.values)+len(r.virtual))
	for k, v := range r.values {
		out[k] = v
	}
	for k, v := range r.virtual {
		out[k] = v
	}
	for i := range r.entity.Fields {
		if f := &r.entity.Fields[i]; f.IsComputed() {
			out[f.Name] = r.Get(f.Name)
		}
	}
	return out
}

func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Map())
}

func (r *Record) String() string {
	return fmt.Sprintf("%s(%s)", r.entity.Name, r.PrimaryKey())
}
