package storage

import (
	"strconv"
	"strings"

	"sheetcrud/internal/schema"
)

// NormalizeKey converts a key value to a canonical string form, suitable for
// URLs, form values and map keys (e.g. "Alice" or "42").
//
// Backends return keys as int64, float64, string or []byte; this helper
// keeps key comparison consistent across them.
func NormalizeKey(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	default:
		return strings.TrimSpace(schema.FormatValue(v))
	}
}
