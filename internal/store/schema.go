package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// TableSchema is the live structure of one table as reported by the database.
type TableSchema struct {
	Name        string
	Columns     []string
	PrimaryKey  []string
	ForeignKeys map[string]ForeignKeyRef // keyed by local column
}

// ForeignKeyRef is the target of one foreign-key column. Column is empty
// when the constraint references the target's primary key implicitly.
type ForeignKeyRef struct {
	Table  string
	Column string
}

// HasColumn reports whether the table has the named column.
func (t *TableSchema) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

type describeQueries struct {
	columns     string
	primaryKey  string
	foreignKeys string
}

func describeTable(ctx context.Context, q Querier, name string, qs describeQueries) (*TableSchema, error) {
	cols, err := scanStrings(ctx, q, qs.columns, name)
	if err != nil {
		return nil, fmt.Errorf("describe %s columns: %w", name, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	pk, err := scanStrings(ctx, q, qs.primaryKey, name)
	if err != nil {
		return nil, fmt.Errorf("describe %s primary key: %w", name, err)
	}

	rows, err := q.QueryContext(ctx, qs.foreignKeys, name)
	if err != nil {
		return nil, fmt.Errorf("describe %s foreign keys: %w", name, err)
	}
	defer rows.Close()

	fks := make(map[string]ForeignKeyRef)
	for rows.Next() {
		var col, table, ref string
		if err := rows.Scan(&col, &table, &ref); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		fks[col] = ForeignKeyRef{Table: table, Column: ref}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &TableSchema{Name: name, Columns: cols, PrimaryKey: pk, ForeignKeys: fks}, nil
}

func scanStrings(ctx context.Context, q Querier, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Inspector caches table descriptions. It is safe for concurrent use.
type Inspector struct {
	q       Querier
	dialect Dialect
	cache   *schemaCache
}

type schemaCache struct {
	mu     sync.RWMutex
	tables map[string]*TableSchema
}

// NewInspector creates an Inspector reading through q.
func NewInspector(q Querier, dialect Dialect) *Inspector {
	return &Inspector{q: q, dialect: dialect, cache: &schemaCache{tables: make(map[string]*TableSchema)}}
}

// With returns an Inspector sharing this cache but querying through q,
// so lookups made inside a transaction do not need a second connection.
func (in *Inspector) With(q Querier) *Inspector {
	return &Inspector{q: q, dialect: in.dialect, cache: in.cache}
}

// Table returns the cached description of name, querying the database on
// first use. Missing tables yield ErrTableNotFound and are not cached.
func (in *Inspector) Table(ctx context.Context, name string) (*TableSchema, error) {
	key := normalizeTableName(name)

	in.cache.mu.RLock()
	t, ok := in.cache.tables[key]
	in.cache.mu.RUnlock()
	if ok {
		return t, nil
	}

	t, err := in.dialect.DescribeTable(ctx, in.q, unquote(name))
	if err != nil {
		return nil, err
	}

	in.cache.mu.Lock()
	in.cache.tables[key] = t
	in.cache.mu.Unlock()
	return t, nil
}

// Invalidate drops every cached description, e.g. after a migration.
func (in *Inspector) Invalidate() {
	in.cache.mu.Lock()
	in.cache.tables = make(map[string]*TableSchema)
	in.cache.mu.Unlock()
}

// SameTable reports whether two table references name the same table,
// ignoring case, identifier quoting and a leading schema qualifier.
func SameTable(a, b string) bool {
	return normalizeTableName(a) == normalizeTableName(b)
}

func normalizeTableName(name string) string {
	name = unquote(name)
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return strings.ToLower(name)
}

func unquote(name string) string {
	return strings.NewReplacer(`"`, "", "`", "", "[", "", "]", "").Replace(strings.TrimSpace(name))
}
