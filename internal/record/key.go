package record

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Key is a primary-key or foreign-key tuple in column order.
type Key []any

// String joins the parts with "~" for display.
func (k Key) String() string {
	parts := make([]string, len(k))
	for i, v := range k {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, "~")
}

// Ident encodes the key for use as a map key. Each part is normalised as
// in ValuesEqual and length-prefixed, so parts containing separators
// cannot collide.
func (k Key) Ident() string {
	var b strings.Builder
	for _, v := range k {
		part := "\x00"
		if v != nil {
			part = fmt.Sprint(normalize(v))
		}
		fmt.Fprintf(&b, "%d:%s;", len(part), part)
	}
	return b.String()
}

// Equal compares two keys part by part with ValuesEqual.
func (k Key) Equal(other Key) bool {
	if len(k) != len(other) {
		return false
	}
	for i := range k {
		if !ValuesEqual(k[i], other[i]) {
			return false
		}
	}
	return true
}

// Incomplete reports whether any part of the key is unset.
func (k Key) Incomplete() bool {
	if len(k) == 0 {
		return true
	}
	for _, v := range k {
		if v == nil {
			return true
		}
	}
	return false
}

// KeyFrom builds a Key for the given columns from a scalar (single-column
// keys only), a positional slice or a column-to-value map.
func KeyFrom(cols []string, v any) (Key, error) {
	switch val := v.(type) {
	case Key:
		if len(val) != len(cols) {
			return nil, fmt.Errorf("key has %d parts, want %d", len(val), len(cols))
		}
		return val, nil
	case []any:
		if len(val) != len(cols) {
			return nil, fmt.Errorf("key has %d parts, want %d", len(val), len(cols))
		}
		return Key(val), nil
	case map[string]any:
		key := make(Key, len(cols))
		for i, c := range cols {
			part, ok := val[c]
			if !ok {
				return nil, fmt.Errorf("key is missing column %q", c)
			}
			key[i] = part
		}
		return key, nil
	default:
		if len(cols) != 1 {
			return nil, fmt.Errorf("scalar key for %d-column primary key", len(cols))
		}
		return Key{v}, nil
	}
}

// ValuesEqual compares column values loosely: numbers compare by value
// regardless of Go type, byte slices compare as strings, and a number
// equals its decimal string form.
func ValuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	a, b = normalize(a), normalize(b)

	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	fa, aNum := a.(float64)
	fb, bNum := b.(float64)
	switch {
	case aNum && bNum:
		return fa == fb
	case aNum:
		if s, ok := b.(string); ok {
			f, err := strconv.ParseFloat(s, 64)
			return err == nil && f == fa
		}
	case bNum:
		if s, ok := a.(string); ok {
			f, err := strconv.ParseFloat(s, 64)
			return err == nil && f == fb
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		if n > 1<<53 || n < -(1<<53) {
			return strconv.FormatInt(n, 10)
		}
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		if n > 1<<53 {
			return strconv.FormatUint(n, 10)
		}
		return float64(n)
	case float32:
		return float64(n)
	case float64:
		if math.IsNaN(n) {
			return "NaN"
		}
		return n
	case []byte:
		return string(n)
	case bool:
		if n {
			return float64(1)
		}
		return float64(0)
	}
	return v
}
