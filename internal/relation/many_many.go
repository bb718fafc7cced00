package relation

import (
	"context"

	"go.uber.org/zap"

	"rocket-relations/internal/record"
	"rocket-relations/internal/store"
)

const joinAlias = "j"

// ManyToMany handles a many_to_many relation through a junction table.
type ManyToMany struct {
	base
	jm *JoinMap
}

// criteria selects related rows joined to the owner's junction rows.
func (h *ManyToMany) criteria(ownerVals []any) record.Criteria {
	on := make([]store.Cond, len(h.jm.Related))
	for i, p := range h.jm.Related {
		on[i] = store.ColEq(joinAlias+"."+p.To, "t."+p.From)
	}
	where := make([]store.Cond, len(h.jm.Owner))
	for i, p := range h.jm.Owner {
		where[i] = store.Eq(joinAlias+"."+p.To, ownerVals[i])
	}
	return record.Criteria{
		Join:  &store.Join{Table: h.jm.Table, Alias: joinAlias, On: store.And(on...)},
		Where: store.And(where...),
	}
}

func (h *ManyToMany) GetAll(ctx context.Context) ([]*record.Record, error) {
	vals := h.owner.ValuesOf(h.jm.Owner.From())
	if record.Key(vals).Incomplete() {
		return []*record.Record{}, nil
	}
	return h.m.repo.FindAll(ctx, h.related, h.criteria(vals))
}

func (h *ManyToMany) GetByKey(ctx context.Context, key any) (*record.Record, error) {
	k, err := h.parseKey(key)
	if err != nil {
		return nil, err
	}
	vals := h.owner.ValuesOf(h.jm.Owner.From())
	if record.Key(vals).Incomplete() {
		return nil, nil
	}
	return h.m.repo.FindByKeyIn(ctx, h.related, k, h.criteria(vals))
}

// joinRow is the junction row linking the owner values to rec.
func (h *ManyToMany) joinRow(ownerVals []any, rec *record.Record) []any {
	row := append([]any(nil), ownerVals...)
	return append(row, rec.ValuesOf(h.jm.Related.From())...)
}

// Add inserts one junction row for rec. The owner's cache gains rec only
// when the row was written.
func (h *ManyToMany) Add(ctx context.Context, rec *record.Record, index int) (bool, error) {
	if err := h.checkTarget(rec); err != nil {
		return false, err
	}
	if rec.IsNew() {
		return false, h.recordError(rec, "cannot link an unsaved record", nil)
	}
	vals, err := h.ownerValues(h.jm.Owner.From())
	if err != nil {
		return false, err
	}
	// Load before writing so the reloaded slot cannot already contain rec.
	if _, err := h.cachedMany(ctx); err != nil {
		return false, err
	}
	n, err := h.m.repo.InsertRows(ctx, h.jm.Table, h.jm.Columns(), [][]any{h.joinRow(vals, rec)})
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	return true, h.addCached(ctx, rec, index)
}

// Set makes items the complete related set with at most one batched
// DELETE of stale junction rows and one batched INSERT of new ones. On
// error the owner's cache is left as it was.
func (h *ManyToMany) Set(ctx context.Context, items []any) (bool, error) {
	vals, err := h.ownerValues(h.jm.Owner.From())
	if err != nil {
		return false, err
	}
	recs, err := h.resolveItems(ctx, items)
	if err != nil {
		return false, err
	}

	var order []string
	rows := make(map[string][]any, len(recs))
	for _, rec := range recs {
		if rec.IsNew() {
			return false, h.recordError(rec, "cannot link an unsaved record", nil)
		}
		k := rec.PrimaryKey().Ident()
		order = append(order, k)
		rows[k] = h.joinRow(vals, rec)
	}

	current, err := h.cachedMany(ctx)
	if err != nil {
		return false, err
	}
	cols := h.jm.Columns()
	var stale []store.Cond
	for _, cur := range current {
		k := cur.PrimaryKey().Ident()
		if _, ok := rows[k]; ok {
			delete(rows, k)
			continue
		}
		stale = append(stale, store.Columns(cols, h.joinRow(vals, cur)))
	}

	if len(stale) > 0 {
		if _, err := h.m.repo.DeleteRows(ctx, h.jm.Table, store.Or(stale...)); err != nil {
			return false, err
		}
	}
	insert := make([][]any, 0, len(rows))
	for _, k := range order {
		if row, ok := rows[k]; ok {
			insert = append(insert, row)
		}
	}
	if _, err := h.m.repo.InsertRows(ctx, h.jm.Table, cols, insert); err != nil {
		return false, err
	}

	h.m.logger.Debug("many-to-many set",
		zap.String("relation", h.rel.Name),
		zap.Int("unlinked", len(stale)),
		zap.Int("linked", len(insert)),
	)
	h.owner.SetRelated(h.rel.Name, recs)
	return true, nil
}
