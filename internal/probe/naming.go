package probe

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxIdentLen matches the tightest identifier limit across the supported
// stores (Postgres, 63 bytes).
const maxIdentLen = 63

// NormalizeColumnName converts one raw header cell into a store-safe
// identifier. pos is the 1-based column position, used only when nothing
// usable is left after cleaning.
//
// Rules, in order:
//   - accents are folded (é -> e)
//   - whitespace and punctuation become "_" (runs collapse, ends trimmed)
//   - anything outside [A-Za-z0-9_] is dropped
//   - empty -> Column_<pos>
//   - leading digit or reserved word -> "col_" prefix
//   - result is capped at 63 bytes
//
// Case is preserved. Collisions are not handled here; see NormalizeColumnNames.
func NormalizeColumnName(raw string, pos int) string {
	s := foldAccents(strings.TrimSpace(raw))

	var b strings.Builder
	b.Grow(len(s))
	lastUnderscore := false
	for _, r := range s {
		switch {
		case r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			lastUnderscore = false
		case r == '_' || unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r):
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}

	out := strings.Trim(b.String(), "_")
	if out == "" {
		return fmt.Sprintf("Column_%d", pos)
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "col_" + out
	}
	if IsReservedWord(out) {
		out = "col_" + out
	}
	return truncateFieldName(out)
}

// NormalizeColumnNames normalizes a whole header row and resolves
// collisions. Store identifiers compare case-insensitively, so "Name" and
// "name" collide. Later occurrences get _2, _3, ... appended.
func NormalizeColumnNames(raw []string) []string {
	out := make([]string, len(raw))
	taken := make(map[string]struct{}, len(raw))
	for i, h := range raw {
		name := NormalizeColumnName(h, i+1)
		name = uniqueName(name, taken)
		taken[strings.ToLower(name)] = struct{}{}
		out[i] = name
	}
	return out
}

// uniqueName returns base, or base_N for the smallest N >= 2 not yet taken.
func uniqueName(base string, taken map[string]struct{}) string {
	if _, ok := taken[strings.ToLower(base)]; !ok {
		return base
	}
	for n := 2; ; n++ {
		suffix := "_" + strconv.Itoa(n)
		cand := truncateFieldName(base[:min(len(base), maxIdentLen-len(suffix))]) + suffix
		if _, ok := taken[strings.ToLower(cand)]; !ok {
			return cand
		}
	}
}

func foldAccents(s string) string {
	// Chain keeps state; build one per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// truncateFieldName enforces the identifier length limit while preserving
// UTF-8 validity.
func truncateFieldName(s string) string {
	if len(s) <= maxIdentLen {
		return s
	}
	b := []byte(s)
	cut := maxIdentLen
	for cut > 0 && !utf8.Valid(b[:cut]) {
		cut--
	}
	if cut <= 0 {
		return s[:maxIdentLen]
	}
	return string(b[:cut])
}

// IsReservedWord reports whether s is an SQL keyword that cannot be used as
// a bare identifier in SQLite.
func IsReservedWord(s string) bool {
	_, ok := reservedWords[strings.ToUpper(s)]
	return ok
}

var reservedWords = func() map[string]struct{} {
	words := strings.Fields(`
ABORT ACTION ADD AFTER ALL ALTER ALWAYS ANALYZE AND AS ASC ATTACH AUTOINCREMENT
BEFORE BEGIN BETWEEN BY CASCADE CASE CAST CHECK COLLATE COLUMN COMMIT CONFLICT
CONSTRAINT CREATE CROSS CURRENT CURRENT_DATE CURRENT_TIME CURRENT_TIMESTAMP
DATABASE DEFAULT DEFERRABLE DEFERRED DELETE DESC DETACH DISTINCT DO DROP EACH
ELSE END ESCAPE EXCEPT EXCLUDE EXCLUSIVE EXISTS EXPLAIN FAIL FILTER FIRST
FOLLOWING FOR FOREIGN FROM FULL GENERATED GLOB GROUP GROUPS HAVING IF IGNORE
IMMEDIATE IN INDEX INDEXED INITIALLY INNER INSERT INSTEAD INTERSECT INTO IS
ISNULL JOIN KEY LAST LEFT LIKE LIMIT MATCH MATERIALIZED NATURAL NO NOT NOTHING
NOTNULL NULL NULLS OF OFFSET ON OR ORDER OTHERS OUTER OVER PARTITION PLAN
PRAGMA PRECEDING PRIMARY QUERY RAISE RANGE RECURSIVE REFERENCES REGEXP REINDEX
RELEASE RENAME REPLACE RESTRICT RETURNING RIGHT ROLLBACK ROW ROWS SAVEPOINT
SELECT SET TABLE TEMP TEMPORARY THEN TIES TO TRANSACTION TRIGGER UNBOUNDED
UNION UNIQUE UPDATE USING VACUUM VALUES VIEW VIRTUAL WHEN WHERE WINDOW WITH
WITHOUT
ROWID OID _ROWID_
`)
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()
