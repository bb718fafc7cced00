package relation

import (
	"context"

	"rocket-relations/internal/record"
)

// BelongsTo handles a many_to_one relation: the owner holds the foreign key.
type BelongsTo struct {
	base
	fm FieldMap // owner column -> related column
}

func (h *BelongsTo) Get(ctx context.Context) (*record.Record, error) {
	return h.cachedOne(ctx)
}

// Set points the owner at rec and persists the owner: inserted when new,
// otherwise only the foreign-key columns are updated. rec itself is never
// written. A nil rec clears the foreign key.
func (h *BelongsTo) Set(ctx context.Context, rec *record.Record) (bool, error) {
	if err := h.Assign(ctx, rec); err != nil {
		return false, err
	}
	return h.persist(ctx, h.owner, h.fm.From())
}

// Assign copies rec's key into the owner's foreign-key columns and updates
// the cache without saving the owner.
func (h *BelongsTo) Assign(_ context.Context, rec *record.Record) error {
	if rec != nil {
		if err := h.checkTarget(rec); err != nil {
			return err
		}
		if rec.IsNew() {
			return h.recordError(rec, "cannot link to an unsaved record", nil)
		}
	}
	for _, p := range h.fm {
		var v any
		if rec != nil {
			v = rec.Get(p.To)
		}
		h.owner.SetColumn(p.From, v)
	}
	h.owner.SetRelated(h.rel.Name, rec)
	return nil
}

func (h *BelongsTo) query(ctx context.Context) (*record.Record, error) {
	vals := h.owner.ValuesOf(h.fm.From())
	if record.Key(vals).Incomplete() {
		return nil, nil
	}
	recs, err := h.m.repo.FindAll(ctx, h.related, record.Criteria{
		Where: fieldFilter(h.fm.To(), vals),
		Limit: 1,
	})
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}
