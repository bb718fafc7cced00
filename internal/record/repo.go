package record

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rocket-relations/internal/metadata"
	"rocket-relations/internal/store"
)

var ErrUnknownEntity = errors.New("unknown entity")

// RelationLoader fills an absent relation slot of owner.
type RelationLoader interface {
	LoadRelated(ctx context.Context, owner *Record, name string) error
}

// Criteria restricts FindAll. Column names may be qualified with the
// alias "t" for the entity table.
type Criteria struct {
	Where   store.Cond
	Join    *store.Join
	OrderBy []string
	Limit   int
}

// Repo persists records of registry entities through a store.
type Repo struct {
	store  *store.Store
	q      store.Querier
	reg    *metadata.Registry
	logger *zap.Logger
	loader RelationLoader
}

func NewRepo(s *store.Store, reg *metadata.Registry, logger *zap.Logger) *Repo {
	return &Repo{store: s, q: s.DB, reg: reg, logger: logger}
}

// SetLoader installs the lazy relation loader used by Record.Related.
func (r *Repo) SetLoader(l RelationLoader) { r.loader = l }

func (r *Repo) Registry() *metadata.Registry { return r.reg }
func (r *Repo) Dialect() store.Dialect       { return r.store.Dialect }
func (r *Repo) Querier() store.Querier       { return r.q }
func (r *Repo) Logger() *zap.Logger          { return r.logger }

// Tx runs fn with a Repo bound to one transaction. Records loaded through
// the transactional Repo must not be saved after fn returns.
func (r *Repo) Tx(ctx context.Context, fn func(tx *Repo) error) error {
	return r.store.Tx(ctx, func(q store.Querier) error {
		tx := *r
		tx.q = q
		return fn(&tx)
	})
}

// New returns an unsaved record of the named entity.
func (r *Repo) New(entity string) (*Record, error) {
	e := r.reg.GetEntity(entity)
	if e == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
	}
	return newRecord(e, r), nil
}

// NewRecord returns an unsaved record of e.
func (r *Repo) NewRecord(e *metadata.Entity) *Record {
	return newRecord(e, r)
}

// Save inserts new records and updates persisted ones.
func (r *Repo) Save(ctx context.Context, rec *Record) (bool, error) {
	if rec.isNew {
		return r.Insert(ctx, rec)
	}
	return r.Update(ctx, rec)
}

// Insert writes rec as a new row. Generated keys and column defaults are
// read back where the dialect supports RETURNING; otherwise the last
// insert id fills a generated integer key.
func (r *Repo) Insert(ctx context.Context, rec *Record) (bool, error) {
	e := rec.entity
	d := r.store.Dialect
	pk := e.PrimaryKey

	if pk.Generated && !pk.IsComposite() && pk.Type == "uuid" && d.UUIDDefault() == "" && rec.values[pk.Columns()[0]] == nil {
		rec.values[pk.Columns()[0]] = uuid.NewString()
	}

	var cols []string
	for c, v := range rec.values {
		if v == nil && e.IsPrimaryKey(c) {
			continue
		}
		cols = append(cols, c)
	}
	sort.Strings(cols)
	vals := rec.ValuesOf(cols)

	sql, args := store.BuildInsertSQL(d, e.Table, cols, vals, tableColumns(e))
	r.logger.Debug("insert record", zap.String("entity", e.Name), zap.String("sql", sql))

	if d.SupportsReturning() {
		row, err := store.QueryRow(ctx, r.q, sql, args...)
		if err != nil {
			return false, fmt.Errorf("insert %s: %w", e.Name, d.MapError(err))
		}
		r.hydrate(rec, row)
	} else {
		res, err := r.q.ExecContext(ctx, sql, args...)
		if err != nil {
			return false, fmt.Errorf("insert %s: %w", e.Name, d.MapError(err))
		}
		if pk.Generated && !pk.IsComposite() && rec.values[pk.Columns()[0]] == nil {
			id, err := res.LastInsertId()
			if err != nil {
				return false, fmt.Errorf("insert %s: last insert id: %w", e.Name, err)
			}
			rec.values[pk.Columns()[0]] = id
		}
	}

	rec.isNew = false
	rec.oldKey = rec.PrimaryKey()
	return true, nil
}

// Update writes the given fields of a persisted record, or every column
// value it holds when no fields are named. Primary-key columns are written
// only when they changed since the record was loaded. It reports false
// when no row matched the stored key.
func (r *Repo) Update(ctx context.Context, rec *Record, fields ...string) (bool, error) {
	if rec.isNew {
		return false, fmt.Errorf("update %s: %w", rec.entity.Name, ErrNewRecord)
	}
	e := rec.entity
	d := r.store.Dialect
	keyChanged := !rec.PrimaryKey().Equal(rec.oldKey)

	cols := fields
	if len(cols) == 0 {
		for c := range rec.values {
			if e.IsPrimaryKey(c) && !keyChanged {
				continue
			}
			cols = append(cols, c)
		}
		sort.Strings(cols)
	}
	if len(cols) == 0 {
		return true, nil
	}

	sql, args := store.BuildUpdateSQL(d, e.Table, cols, rec.ValuesOf(cols), store.Columns(e.PrimaryKey.Columns(), rec.oldKey))
	r.logger.Debug("update record", zap.String("entity", e.Name), zap.String("sql", sql))

	n, err := store.Exec(ctx, r.q, sql, args...)
	if err != nil {
		return false, fmt.Errorf("update %s: %w", e.Name, d.MapError(err))
	}
	if n == 0 {
		return false, nil
	}
	rec.oldKey = rec.PrimaryKey()
	return true, nil
}

// Delete removes the row of a persisted record. It reports false when no
// row matched.
func (r *Repo) Delete(ctx context.Context, rec *Record) (bool, error) {
	if rec.isNew {
		return false, fmt.Errorf("delete %s: %w", rec.entity.Name, ErrNewRecord)
	}
	e := rec.entity
	d := r.store.Dialect
	sql, args := store.BuildDeleteSQL(d, e.Table, store.Columns(e.PrimaryKey.Columns(), rec.oldKey))
	r.logger.Debug("delete record", zap.String("entity", e.Name), zap.String("sql", sql))

	n, err := store.Exec(ctx, r.q, sql, args...)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", e.Name, d.MapError(err))
	}
	return n > 0, nil
}

// Refresh re-reads rec from storage and drops its relation caches.
func (r *Repo) Refresh(ctx context.Context, rec *Record) error {
	if rec.isNew {
		return fmt.Errorf("refresh %s: %w", rec.entity.Name, ErrNewRecord)
	}
	fresh, err := r.FindByKey(ctx, rec.entity, rec.oldKey, nil)
	if err != nil {
		return err
	}
	if fresh == nil {
		return fmt.Errorf("refresh %s %s: %w", rec.entity.Name, rec.oldKey, store.ErrNotFound)
	}
	rec.values = fresh.values
	rec.oldKey = fresh.oldKey
	rec.clearAllRelated()
	return nil
}

// FindByKey returns the record of e with the given primary key, further
// restricted by extra when non-nil. It returns nil, nil when no row matches.
func (r *Repo) FindByKey(ctx context.Context, e *metadata.Entity, key Key, extra store.Cond) (*Record, error) {
	return r.findByKey(ctx, e, key, Criteria{Where: extra})
}

// FindByKeyIn is FindByKey with full criteria, e.g. a join.
func (r *Repo) FindByKeyIn(ctx context.Context, e *metadata.Entity, key Key, c Criteria) (*Record, error) {
	return r.findByKey(ctx, e, key, c)
}

func (r *Repo) findByKey(ctx context.Context, e *metadata.Entity, key Key, c Criteria) (*Record, error) {
	pk := e.PrimaryKey.Columns()
	if len(key) != len(pk) {
		return nil, fmt.Errorf("find %s: key has %d parts, want %d", e.Name, len(key), len(pk))
	}
	qualified := make([]string, len(pk))
	for i, col := range pk {
		qualified[i] = "t." + col
	}
	c.Where = store.And(store.Columns(qualified, key), c.Where)
	c.Limit = 1

	recs, err := r.FindAll(ctx, e, c)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

// FindAll returns the records of e matching c, ordered by primary key
// unless c says otherwise.
func (r *Repo) FindAll(ctx context.Context, e *metadata.Entity, c Criteria) ([]*Record, error) {
	order := c.OrderBy
	if order == nil {
		order = e.PrimaryKey.Columns()
	}
	sql, args := store.Select{
		Table:   e.Table,
		Alias:   "t",
		Columns: tableColumns(e),
		Join:    c.Join,
		Where:   c.Where,
		OrderBy: order,
		Limit:   c.Limit,
	}.Build(r.store.Dialect)
	r.logger.Debug("find records", zap.String("entity", e.Name), zap.String("sql", sql))

	rows, err := store.QueryRows(ctx, r.q, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", e.Name, err)
	}
	recs := make([]*Record, len(rows))
	for i, row := range rows {
		rec := newRecord(e, r)
		r.hydrate(rec, row)
		rec.isNew = false
		rec.oldKey = rec.PrimaryKey()
		recs[i] = rec
	}
	return recs, nil
}

// DeleteAll deletes the rows of e matching where.
func (r *Repo) DeleteAll(ctx context.Context, e *metadata.Entity, where store.Cond) (int64, error) {
	return r.DeleteRows(ctx, e.Table, where)
}

// DeleteRows deletes rows of any table matching where.
func (r *Repo) DeleteRows(ctx context.Context, table string, where store.Cond) (int64, error) {
	d := r.store.Dialect
	sql, args := store.BuildDeleteSQL(d, table, where)
	r.logger.Debug("delete rows", zap.String("table", table), zap.String("sql", sql))

	n, err := store.Exec(ctx, r.q, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", table, d.MapError(err))
	}
	return n, nil
}

// InsertRows inserts all rows with one statement. No rows is a no-op.
func (r *Repo) InsertRows(ctx context.Context, table string, cols []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	d := r.store.Dialect
	sql, args := store.BuildInsertManySQL(d, table, cols, rows)
	r.logger.Debug("insert rows", zap.String("table", table), zap.Int("rows", len(rows)), zap.String("sql", sql))

	n, err := store.Exec(ctx, r.q, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", table, d.MapError(err))
	}
	return n, nil
}

func (r *Repo) hydrate(rec *Record, row map[string]any) {
	if r.store.Dialect.NeedsBoolFix() {
		var boolFields []string
		for _, f := range rec.entity.Fields {
			if f.Type == "boolean" {
				boolFields = append(boolFields, f.Name)
			}
		}
		store.NormalizeBooleans([]map[string]any{row}, boolFields)
	}
	for k, v := range row {
		rec.values[k] = v
	}
}

// tableColumns lists the persisted columns of e, including primary-key
// columns the declaration leaves implicit.
func tableColumns(e *metadata.Entity) []string {
	var cols []string
	for _, c := range e.PrimaryKey.Columns() {
		if !e.HasField(c) {
			cols = append(cols, c)
		}
	}
	return append(cols, e.ColumnNames()...)
}
