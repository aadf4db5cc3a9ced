package probe

import (
	"slices"

	"sheetcrud/internal/schema"
)

// inferTypes infers one semantic type per column from the non-null values.
//
// Types are tried in schema.InferenceOrder; the first type that accepts every
// value wins. A column with no values is Text.
func inferTypes(columns []string, rows [][]string, pref schema.DatePreference) []schema.Type {
	out := make([]schema.Type, len(columns))
	for col := range columns {
		out[col] = inferColumn(col, rows, pref)
	}
	return out
}

func inferColumn(col int, rows [][]string, pref schema.DatePreference) schema.Type {
	candidates := slices.Clone(schema.InferenceOrder)
	seen := false
	for _, r := range rows {
		if col >= len(r) || r[col] == "" {
			continue
		}
		seen = true
		v := r[col]
		candidates = slices.DeleteFunc(candidates, func(t schema.Type) bool {
			return !t.Accepts(v, pref)
		})
		// Text accepts everything, so the list never empties.
		if candidates[0] == schema.Text {
			break
		}
	}
	if !seen {
		return schema.Text
	}
	return candidates[0]
}

// detectPrimaryKey scans columns left to right and returns the first one
// where every row has a value and all values are distinct after coercion
// ("1" and "01" collide in an integer column).
func detectPrimaryKey(types []schema.Type, rows [][]string, pref schema.DatePreference) (int, bool) {
	if len(rows) == 0 {
		return 0, false
	}
	for col, t := range types {
		if isKeyCandidate(col, t, rows, pref) {
			return col, true
		}
	}
	return 0, false
}

func isKeyCandidate(col int, t schema.Type, rows [][]string, pref schema.DatePreference) bool {
	seen := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		if col >= len(r) || r[col] == "" {
			return false
		}
		v, err := t.ParseWith(r[col], pref)
		if err != nil || v == nil {
			return false
		}
		k := schema.FormatValue(v)
		if _, dup := seen[k]; dup {
			return false
		}
		seen[k] = struct{}{}
	}
	return true
}
