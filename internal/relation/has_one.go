package relation

import (
	"context"

	"go.uber.org/zap"

	"rocket-relations/internal/record"
)

// HasOne handles a one_to_one relation: the related table holds the
// foreign key to the owner.
type HasOne struct {
	base
	fm FieldMap // related column -> owner column
}

// Get returns the related record, loading it on first access.
func (h *HasOne) Get(ctx context.Context) (*record.Record, error) {
	return h.cachedOne(ctx)
}

// Set links rec to the owner. A previously related record with another
// identity is deleted. rec is inserted when new, otherwise only its
// foreign-key columns are updated; its key columns are overwritten even
// when persisting fails. A nil rec only removes the previous record.
func (h *HasOne) Set(ctx context.Context, rec *record.Record) (bool, error) {
	if rec != nil {
		if err := h.checkTarget(rec); err != nil {
			return false, err
		}
	}
	vals, err := h.ownerValues(h.fm.To())
	if err != nil {
		return false, err
	}
	old, err := h.cachedOne(ctx)
	if err != nil {
		return false, err
	}

	if rec != nil {
		copyValues(rec, h.fm.From(), vals)
	}
	if old != nil && !old.IsNew() && !sameIdentity(old, rec) {
		ok, err := h.m.repo.Delete(ctx, old)
		if err != nil || !ok {
			return false, h.recordError(old, "failed to delete the previously related record", err)
		}
		h.m.logger.Debug("replaced has-one record",
			zap.String("relation", h.rel.Name),
			zap.Stringer("old", old.PrimaryKey()),
		)
	}
	h.owner.SetRelated(h.rel.Name, rec)
	if rec == nil {
		return true, nil
	}
	return h.persist(ctx, rec, h.fm.From())
}

func (h *HasOne) query(ctx context.Context) (*record.Record, error) {
	vals := h.owner.ValuesOf(h.fm.To())
	if record.Key(vals).Incomplete() {
		return nil, nil
	}
	recs, err := h.m.repo.FindAll(ctx, h.related, record.Criteria{
		Where: fieldFilter(h.fm.From(), vals),
		Limit: 1,
	})
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}
