package relation

import (
	"context"
	"fmt"

	"rocket-relations/internal/metadata"
	"rocket-relations/internal/record"
	"rocket-relations/internal/store"
)

// Handle binds one declared relation to one owner record. The four
// implementations in this package are the only ones.
type Handle interface {
	Relation() *metadata.Relation
	Owner() *record.Record
	handle()
}

// SingleHandle is implemented by HasOne and BelongsTo.
type SingleHandle interface {
	Handle
	Get(ctx context.Context) (*record.Record, error)
	Set(ctx context.Context, rec *record.Record) (bool, error)
}

// CollectionHandle is implemented by HasMany and ManyToMany.
type CollectionHandle interface {
	Handle
	GetAll(ctx context.Context) ([]*record.Record, error)
	GetByKey(ctx context.Context, key any) (*record.Record, error)
	Add(ctx context.Context, rec *record.Record, index int) (bool, error)
	Set(ctx context.Context, items []any) (bool, error)
}

type base struct {
	m       *Manager
	owner   *record.Record
	rel     *metadata.Relation
	related *metadata.Entity
}

func (b *base) Relation() *metadata.Relation { return b.rel }
func (b *base) Owner() *record.Record        { return b.owner }
func (b *base) handle()                      {}

// cached returns the owner's slot for the relation, loading it when absent.
func (b *base) cached(ctx context.Context) (any, error) {
	if v, ok := b.owner.Cached(b.rel.Name); ok {
		return v, nil
	}
	if err := b.m.LoadRelated(ctx, b.owner, b.rel.Name); err != nil {
		return nil, err
	}
	v, _ := b.owner.Cached(b.rel.Name)
	return v, nil
}

func (b *base) cachedOne(ctx context.Context) (*record.Record, error) {
	v, err := b.cached(ctx)
	if err != nil {
		return nil, err
	}
	rec, _ := v.(*record.Record)
	return rec, nil
}

func (b *base) cachedMany(ctx context.Context) ([]*record.Record, error) {
	v, err := b.cached(ctx)
	if err != nil {
		return nil, err
	}
	recs, _ := v.([]*record.Record)
	return recs, nil
}

// addCached inserts rec into the loaded collection at index, replacing an
// entry with the same identity.
func (b *base) addCached(ctx context.Context, rec *record.Record, index int) error {
	current, err := b.cachedMany(ctx)
	if err != nil {
		return err
	}
	kept := make([]*record.Record, 0, len(current))
	for _, cur := range current {
		if !sameIdentity(cur, rec) {
			kept = append(kept, cur)
		}
	}
	b.owner.SetRelated(b.rel.Name, kept)
	b.owner.AddRelated(b.rel.Name, rec, index)
	return nil
}

// ownerValues reads the owner's columns and fails when any is unset, since
// filtering or linking on a missing key would touch unrelated rows.
func (b *base) ownerValues(cols []string) ([]any, error) {
	vals := b.owner.ValuesOf(cols)
	if record.Key(vals).Incomplete() {
		return nil, b.ownerError("owner has no value for the relation key")
	}
	return vals, nil
}

func (b *base) ownerError(reason string) *RelationError {
	return &RelationError{
		Entity:   b.owner.Entity().Name,
		Key:      b.owner.PrimaryKey().String(),
		Relation: b.rel.Name,
		Reason:   reason,
	}
}

func (b *base) recordError(rec *record.Record, reason string, err error) *RelationError {
	return &RelationError{
		Entity:   rec.Entity().Name,
		Key:      rec.PrimaryKey().String(),
		Relation: b.rel.Name,
		Reason:   reason,
		Err:      err,
	}
}

// checkTarget rejects records of another entity.
func (b *base) checkTarget(rec *record.Record) error {
	if rec.Entity().Name != b.related.Name {
		return b.recordError(rec, fmt.Sprintf("expected a %s record", b.related.Name), nil)
	}
	return nil
}

// lookup turns an item into a record of the related entity: records pass
// through, anything else is read as a primary key.
func (b *base) lookup(ctx context.Context, item any) (*record.Record, error) {
	if rec, ok := item.(*record.Record); ok {
		if err := b.checkTarget(rec); err != nil {
			return nil, err
		}
		return rec, nil
	}
	key, err := record.KeyFrom(b.related.PrimaryKey.Columns(), item)
	if err != nil {
		return nil, &RelationError{Entity: b.related.Name, Relation: b.rel.Name, Reason: "invalid key", Err: err}
	}
	rec, err := b.m.repo.FindByKey(ctx, b.related, key, nil)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, &RelationError{Entity: b.related.Name, Key: key.String(), Relation: b.rel.Name, Reason: "no such record"}
	}
	return rec, nil
}

// resolveItems looks up every item before anything is written. Persisted
// records that repeat an earlier key are dropped.
func (b *base) resolveItems(ctx context.Context, items []any) ([]*record.Record, error) {
	out := make([]*record.Record, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		rec, err := b.lookup(ctx, item)
		if err != nil {
			return nil, err
		}
		if !rec.IsNew() {
			k := rec.PrimaryKey().Ident()
			if seen[k] {
				continue
			}
			seen[k] = true
		}
		out = append(out, rec)
	}
	return out, nil
}

func (b *base) parseKey(key any) (record.Key, error) {
	k, err := record.KeyFrom(b.related.PrimaryKey.Columns(), key)
	if err != nil {
		return nil, &RelationError{Entity: b.related.Name, Relation: b.rel.Name, Reason: "invalid key", Err: err}
	}
	return k, nil
}

// persist inserts a new record or updates the given fields of a persisted one.
func (b *base) persist(ctx context.Context, rec *record.Record, fields []string) (bool, error) {
	if rec.IsNew() {
		return b.m.repo.Insert(ctx, rec)
	}
	return b.m.repo.Update(ctx, rec, fields...)
}

// copyValues writes vals into the given columns of rec.
func copyValues(rec *record.Record, cols []string, vals []any) {
	for i, col := range cols {
		rec.SetColumn(col, vals[i])
	}
}

// matches reports whether rec already holds vals in cols.
func matches(rec *record.Record, cols []string, vals []any) bool {
	for i, col := range cols {
		if !record.ValuesEqual(rec.Get(col), vals[i]) {
			return false
		}
	}
	return true
}

// sameIdentity is true for the same instance or two persisted records of
// one entity with equal keys.
func sameIdentity(a, b *record.Record) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || a.IsNew() || b.IsNew() {
		return false
	}
	return a.Entity().Name == b.Entity().Name && a.PrimaryKey().Equal(b.PrimaryKey())
}

// fieldFilter matches rows whose cols equal vals.
func fieldFilter(cols []string, vals []any) store.Cond {
	return store.Columns(cols, vals)
}
