package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SQLiteDialect implements Dialect for SQLite via modernc.org/sqlite.
type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string       { return "sqlite" }
func (d *SQLiteDialect) DriverName() string { return "sqlite" }

func (d *SQLiteDialect) Placeholder(index int) string {
	return fmt.Sprintf("?%d", index)
}

func (d *SQLiteDialect) NewParamBuilder() ParamBuilder {
	return &sqliteParamBuilder{}
}

func (d *SQLiteDialect) Quote(ident string) string { return quoteParts(ident, `"`) }
func (d *SQLiteDialect) UUIDDefault() string       { return "" }
func (d *SQLiteDialect) NeedsBoolFix() bool        { return true }
func (d *SQLiteDialect) SupportsReturning() bool   { return true }

func (d *SQLiteDialect) ColumnType(fieldType string, _ int) string {
	switch fieldType {
	case "int", "integer", "bigint", "boolean":
		return "INTEGER"
	case "float", "decimal":
		return "REAL"
	default:
		return "TEXT"
	}
}

// AutoIncrementColumn returns the rowid alias form; SQLite only generates
// values for a lone INTEGER PRIMARY KEY column.
func (d *SQLiteDialect) AutoIncrementColumn(_ string) string {
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

func (d *SQLiteDialect) SystemTablesSQL() string {
	return sqliteSystemTablesSQL
}

func (d *SQLiteDialect) UpsertDefinitionSQL(table string, keyCols []string, cols []string) string {
	return upsertOnConflict(d, table, keyCols, cols)
}

func (d *SQLiteDialect) TableExists(ctx context.Context, q Querier, tableName string) (bool, error) {
	var name string
	err := q.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name=?1",
		tableName,
	).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *SQLiteDialect) GetColumns(ctx context.Context, q Querier, tableName string) (map[string]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT name, type FROM pragma_table_info(?1)", tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]string)
	for rows.Next() {
		var name, colType string
		if err := rows.Scan(&name, &colType); err != nil {
			return nil, err
		}
		cols[name] = colType
	}
	return cols, rows.Err()
}

func (d *SQLiteDialect) DescribeTable(ctx context.Context, q Querier, tableName string) (*TableSchema, error) {
	return describeTable(ctx, q, tableName, describeQueries{
		columns:     "SELECT name FROM pragma_table_info(?1) ORDER BY cid",
		primaryKey:  "SELECT name FROM pragma_table_info(?1) WHERE pk > 0 ORDER BY pk",
		foreignKeys: `SELECT "from", "table", COALESCE("to", '') FROM pragma_foreign_key_list(?1) ORDER BY id, seq`,
	})
}

func (d *SQLiteDialect) InExpr(field string, pb ParamBuilder, values []any) string {
	return expandIn(field, "IN", "1=0", pb, values)
}

func (d *SQLiteDialect) NotInExpr(field string, pb ParamBuilder, values []any) string {
	return expandIn(field, "NOT IN", "1=1", pb, values)
}

func (d *SQLiteDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "UNIQUE constraint failed"), strings.Contains(errStr, "constraint failed: UNIQUE"):
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	case strings.Contains(errStr, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%w: %w", ErrForeignKey, err)
	}
	return err
}

// expandIn renders one placeholder per value; empty lists collapse to the
// constant expression.
func expandIn(field, op, empty string, pb ParamBuilder, values []any) string {
	if len(values) == 0 {
		return empty
	}
	phs := make([]string, len(values))
	for i, v := range values {
		phs[i] = pb.Add(v)
	}
	return fmt.Sprintf("%s %s (%s)", field, op, strings.Join(phs, ", "))
}

func upsertOnConflict(d Dialect, table string, keyCols, cols []string) string {
	pb := d.NewParamBuilder()
	phs := make([]string, len(cols))
	for i := range cols {
		phs[i] = pb.Add(nil)
	}
	keys := make(map[string]bool, len(keyCols))
	for _, k := range keyCols {
		keys[k] = true
	}
	var sets []string
	for _, c := range cols {
		if !keys[c] {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", d.Quote(c), d.Quote(c)))
		}
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s)",
		d.Quote(table), quoteAll(d, cols), strings.Join(phs, ", "), quoteAll(d, keyCols))
	if len(sets) == 0 {
		return sql + " DO NOTHING"
	}
	return sql + " DO UPDATE SET " + strings.Join(sets, ", ")
}

const sqliteSystemTablesSQL = `
CREATE TABLE IF NOT EXISTS _entities (
    name        TEXT PRIMARY KEY,
    table_name  TEXT NOT NULL UNIQUE,
    definition  TEXT NOT NULL,
    updated_at  TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS _relations (
    source      TEXT NOT NULL REFERENCES _entities(name) ON DELETE CASCADE,
    name        TEXT NOT NULL,
    definition  TEXT NOT NULL,
    updated_at  TEXT DEFAULT (datetime('now')),
    PRIMARY KEY (source, name)
);
`

var _ Dialect = (*SQLiteDialect)(nil)
