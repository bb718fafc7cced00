package store

import (
	"fmt"
	"strings"
)

// Join is an INNER JOIN clause of a Select.
type Join struct {
	Table string
	Alias string
	On    Cond
}

// Select describes a single-table query with an optional join.
type Select struct {
	Table   string
	Alias   string
	Columns []string // unqualified; prefixed with Alias when set
	Join    *Join
	Where   Cond
	OrderBy []string
	Limit   int
}

// Build renders the query and its parameters.
func (s Select) Build(d Dialect) (string, []any) {
	pb := d.NewParamBuilder()

	cols := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		if s.Alias != "" {
			c = s.Alias + "." + c
		}
		cols[i] = d.Quote(c)
	}
	if len(cols) == 0 {
		cols = []string{"*"}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(cols, ", "), d.Quote(s.Table))
	if s.Alias != "" {
		b.WriteString(" " + d.Quote(s.Alias))
	}
	if s.Join != nil {
		fmt.Fprintf(&b, " INNER JOIN %s", d.Quote(s.Join.Table))
		if s.Join.Alias != "" {
			b.WriteString(" " + d.Quote(s.Join.Alias))
		}
		b.WriteString(" ON " + s.Join.On.Build(d, pb))
	}
	if s.Where != nil {
		b.WriteString(" WHERE " + s.Where.Build(d, pb))
	}
	if len(s.OrderBy) > 0 {
		order := make([]string, len(s.OrderBy))
		for i, o := range s.OrderBy {
			if s.Alias != "" {
				o = s.Alias + "." + o
			}
			order[i] = d.Quote(o)
		}
		b.WriteString(" ORDER BY " + strings.Join(order, ", "))
	}
	if s.Limit > 0 {
		b.WriteString(" LIMIT " + pb.Add(s.Limit))
	}
	return b.String(), pb.Params()
}

// BuildInsertSQL builds a single-row INSERT. When returning is non-empty
// and the dialect supports it, a RETURNING clause is appended.
func BuildInsertSQL(d Dialect, table string, cols []string, vals []any, returning []string) (string, []any) {
	pb := d.NewParamBuilder()
	var sql string
	if len(cols) == 0 {
		sql = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", d.Quote(table))
		if d.Name() == "mysql" {
			sql = fmt.Sprintf("INSERT INTO %s () VALUES ()", d.Quote(table))
		}
	} else {
		phs := make([]string, len(vals))
		for i, v := range vals {
			phs[i] = pb.Add(v)
		}
		sql = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", d.Quote(table), quoteAll(d, cols), strings.Join(phs, ", "))
	}
	if len(returning) > 0 && d.SupportsReturning() {
		sql += " RETURNING " + quoteAll(d, returning)
	}
	return sql, pb.Params()
}

// BuildInsertManySQL builds one multi-row INSERT.
func BuildInsertManySQL(d Dialect, table string, cols []string, rows [][]any) (string, []any) {
	pb := d.NewParamBuilder()
	tuples := make([]string, len(rows))
	for i, row := range rows {
		phs := make([]string, len(row))
		for j, v := range row {
			phs[j] = pb.Add(v)
		}
		tuples[i] = "(" + strings.Join(phs, ", ") + ")"
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", d.Quote(table), quoteAll(d, cols), strings.Join(tuples, ", "))
	return sql, pb.Params()
}

// BuildUpdateSQL builds an UPDATE of the given columns.
func BuildUpdateSQL(d Dialect, table string, cols []string, vals []any, where Cond) (string, []any) {
	pb := d.NewParamBuilder()
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = %s", d.Quote(c), pb.Add(vals[i]))
	}
	sql := fmt.Sprintf("UPDATE %s SET %s", d.Quote(table), strings.Join(sets, ", "))
	if where != nil {
		sql += " WHERE " + where.Build(d, pb)
	}
	return sql, pb.Params()
}

// BuildDeleteSQL builds a DELETE restricted by where.
func BuildDeleteSQL(d Dialect, table string, where Cond) (string, []any) {
	pb := d.NewParamBuilder()
	sql := "DELETE FROM " + d.Quote(table)
	if where != nil {
		sql += " WHERE " + where.Build(d, pb)
	}
	return sql, pb.Params()
}

func quoteAll(d Dialect, idents []string) string {
	quoted := make([]string, len(idents))
	for i, id := range idents {
		quoted[i] = d.Quote(id)
	}
	return strings.Join(quoted, ", ")
}

func quoteParts(ident string, q string) string {
	parts := strings.Split(ident, ".")
	for i, p := range parts {
		if p == "*" {
			continue
		}
		parts[i] = q + strings.ReplaceAll(p, q, q+q) + q
	}
	return strings.Join(parts, ".")
}
