package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"rocket-relations/internal/metadata"
	"rocket-relations/internal/record"
)

// parseKey reads a path id into a primary key. Composite ids list the key
// columns in order, separated by commas.
func parseKey(e *metadata.Entity, raw string) (record.Key, error) {
	cols := e.PrimaryKey.Columns()
	parts := splitAndTrim(raw)
	if len(parts) != len(cols) {
		return nil, InvalidPayloadError(fmt.Sprintf("%s ids have %d parts, got %q", e.Name, len(cols), raw))
	}
	key := make(record.Key, len(cols))
	for i, col := range cols {
		v, err := coerce(keyType(e, col), parts[i])
		if err != nil {
			return nil, InvalidPayloadError(fmt.Sprintf("invalid %s %q: %v", col, parts[i], err))
		}
		key[i] = v
	}
	return key, nil
}

func keyType(e *metadata.Entity, col string) string {
	if f := e.GetField(col); f != nil && f.Type != "" {
		return f.Type
	}
	return e.PrimaryKey.Type
}

func coerce(fieldType, s string) (any, error) {
	switch fieldType {
	case "int", "integer", "bigint":
		return strconv.ParseInt(s, 10, 64)
	default:
		return s, nil
	}
}

// decodeJSON parses a request body keeping integers exact.
func decodeJSON(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return normalizeNumbers(v), nil
}

func decodeObject(c *fiber.Ctx) (map[string]any, error) {
	v, err := decodeJSON(c.Body())
	if err != nil {
		return nil, InvalidPayloadError("Invalid JSON body")
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, InvalidPayloadError("JSON body must be an object")
	}
	return obj, nil
}

func normalizeNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	case map[string]any:
		for k, item := range val {
			val[k] = normalizeNumbers(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = normalizeNumbers(item)
		}
		return val
	}
	return v
}

func splitAndTrim(s string) []string {
	parts := make([]string, 0)
	for _, p := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
