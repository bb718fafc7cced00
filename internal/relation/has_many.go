package relation

import (
	"context"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"rocket-relations/internal/record"
	"rocket-relations/internal/store"
)

// HasMany handles a one_to_many relation.
type HasMany struct {
	base
	fm FieldMap // related column -> owner column
}

// GetAll queries the related rows without touching the owner's cache.
func (h *HasMany) GetAll(ctx context.Context) ([]*record.Record, error) {
	vals := h.owner.ValuesOf(h.fm.To())
	if record.Key(vals).Incomplete() {
		return []*record.Record{}, nil
	}
	return h.m.repo.FindAll(ctx, h.related, record.Criteria{Where: fieldFilter(h.fm.From(), vals)})
}

// GetByKey returns the related record with the given primary key, or nil
// when the owner has no such record.
func (h *HasMany) GetByKey(ctx context.Context, key any) (*record.Record, error) {
	k, err := h.parseKey(key)
	if err != nil {
		return nil, err
	}
	vals := h.owner.ValuesOf(h.fm.To())
	if record.Key(vals).Incomplete() {
		return nil, nil
	}
	return h.m.repo.FindByKey(ctx, h.related, k, fieldFilter(h.fm.From(), vals))
}

// Add links rec to the owner, places it in the cache at index (-1
// appends) and persists it.
func (h *HasMany) Add(ctx context.Context, rec *record.Record, index int) (bool, error) {
	if err := h.checkTarget(rec); err != nil {
		return false, err
	}
	vals, err := h.ownerValues(h.fm.To())
	if err != nil {
		return false, err
	}
	copyValues(rec, h.fm.From(), vals)
	if err := h.addCached(ctx, rec, index); err != nil {
		return false, err
	}
	return h.persist(ctx, rec, h.fm.From())
}

// Set makes items the complete related set. Related rows missing from
// items are deleted; the rest are linked and saved where needed. Write
// failures do not stop the remaining writes; the result is false if any
// of them failed.
func (h *HasMany) Set(ctx context.Context, items []any) (bool, error) {
	vals, err := h.ownerValues(h.fm.To())
	if err != nil {
		return false, err
	}
	recs, err := h.resolveItems(ctx, items)
	if err != nil {
		return false, err
	}
	from := h.fm.From()

	success := true
	var errs error

	where := store.And(fieldFilter(from, vals), h.exclude(recs))
	if _, err := h.m.repo.DeleteAll(ctx, h.related, where); err != nil {
		success = false
		errs = multierr.Append(errs, err)
	}

	h.owner.SetRelated(h.rel.Name, []*record.Record{})
	for _, rec := range recs {
		if rec.IsNew() || !matches(rec, from, vals) {
			copyValues(rec, from, vals)
			ok, err := h.persist(ctx, rec, from)
			errs = multierr.Append(errs, err)
			success = success && ok
		}
		h.owner.AddRelated(h.rel.Name, rec, -1)
	}

	if errs != nil || !success {
		h.m.logger.Warn("has-many reconciliation incomplete",
			zap.String("entity", h.owner.Entity().Name),
			zap.Stringer("owner", h.owner.PrimaryKey()),
			zap.String("relation", h.rel.Name),
			zap.Errors("errors", multierr.Errors(errs)),
		)
	}
	return success, nil
}

// exclude keeps the persisted records among recs out of the orphan delete.
func (h *HasMany) exclude(recs []*record.Record) store.Cond {
	pk := h.related.PrimaryKey.Columns()
	var keys []record.Key
	for _, rec := range recs {
		if !rec.IsNew() {
			keys = append(keys, rec.PrimaryKey())
		}
	}
	if len(keys) == 0 {
		return nil
	}
	if len(pk) == 1 {
		vals := make([]any, len(keys))
		for i, k := range keys {
			vals[i] = k[0]
		}
		return store.NotIn(pk[0], vals)
	}
	conds := make([]store.Cond, len(keys))
	for i, k := range keys {
		conds[i] = store.Not(store.Columns(pk, k))
	}
	return store.And(conds...)
}
