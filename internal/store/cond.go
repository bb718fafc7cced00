package store

import (
	"fmt"
	"strings"
)

// Cond is a composable WHERE fragment rendered against a dialect.
type Cond interface {
	Build(d Dialect, pb ParamBuilder) string
}

type condFunc func(d Dialect, pb ParamBuilder) string

func (f condFunc) Build(d Dialect, pb ParamBuilder) string { return f(d, pb) }

// Eq matches col = v, or col IS NULL when v is nil.
func Eq(col string, v any) Cond {
	return condFunc(func(d Dialect, pb ParamBuilder) string {
		if v == nil {
			return d.Quote(col) + " IS NULL"
		}
		return fmt.Sprintf("%s = %s", d.Quote(col), pb.Add(v))
	})
}

// ColEq compares two columns.
func ColEq(left, right string) Cond {
	return condFunc(func(d Dialect, _ ParamBuilder) string {
		return fmt.Sprintf("%s = %s", d.Quote(left), d.Quote(right))
	})
}

// Columns matches every column against the value at the same position.
func Columns(cols []string, vals []any) Cond {
	conds := make([]Cond, len(cols))
	for i, c := range cols {
		conds[i] = Eq(c, vals[i])
	}
	return And(conds...)
}

// In matches col against any of the values; an empty list matches nothing.
func In(col string, vals []any) Cond {
	return condFunc(func(d Dialect, pb ParamBuilder) string {
		return d.InExpr(d.Quote(col), pb, vals)
	})
}

// NotIn excludes the values; an empty list matches everything.
func NotIn(col string, vals []any) Cond {
	return condFunc(func(d Dialect, pb ParamBuilder) string {
		return d.NotInExpr(d.Quote(col), pb, vals)
	})
}

// And joins conditions; with no operands it is always true.
func And(conds ...Cond) Cond {
	return join(" AND ", "1=1", conds)
}

// Or joins conditions; with no operands it is always false.
func Or(conds ...Cond) Cond {
	return join(" OR ", "1=0", conds)
}

// Not negates c.
func Not(c Cond) Cond {
	return condFunc(func(d Dialect, pb ParamBuilder) string {
		return "NOT (" + c.Build(d, pb) + ")"
	})
}

func join(sep, empty string, conds []Cond) Cond {
	var kept []Cond
	for _, c := range conds {
		if c != nil {
			kept = append(kept, c)
		}
	}
	return condFunc(func(d Dialect, pb ParamBuilder) string {
		switch len(kept) {
		case 0:
			return empty
		case 1:
			return kept[0].Build(d, pb)
		}
		parts := make([]string, len(kept))
		for i, c := range kept {
			parts[i] = "(" + c.Build(d, pb) + ")"
		}
		return strings.Join(parts, sep)
	})
}
