// Package probe infers a table schema from the raw rows of an uploaded sheet.
//
// The probe package is responsible for:
//   - Deciding whether the first row is a header and resolving column names
//   - Normalizing names into safe, collision-free store identifiers
//   - Inferring one semantic type per column
//   - Choosing a primary key, or synthesizing one
//
// Design constraints:
//   - All inference is best-effort: ambiguity degrades to Text, never to an
//     error. The only failures are "no data rows" and "no columns".
//   - The package is pure: no I/O, no globals that change at runtime.
package probe

import (
	"errors"
	"fmt"
	"strings"

	"sheetcrud/internal/schema"
	"sheetcrud/pkg/records"
)

// ErrSchemaDetection is returned (wrapped with a reason) when no schema can
// be derived from the input.
var ErrSchemaDetection = errors.New("schema detection failed")

// HeaderHint explains to users how the first row is read.
const HeaderHint = "The first row holds the column names unless every cell in it is a number or a date; then it is loaded as data."

// DefaultKeyName is the name of a synthesized primary key column.
const DefaultKeyName = "id"

// Options control inference.
type Options struct {
	// DatePreference breaks ties for ambiguous numeric dates.
	// Zero value means month-first.
	DatePreference schema.DatePreference
	// KeyName overrides the synthesized key name. Empty means "id".
	KeyName string
}

// Result is the outcome of a successful Infer call.
type Result struct {
	// Schema is validated and ready for the store.
	Schema schema.Schema
	// Grid holds the data rows aligned to Schema.DataColumns().
	Grid records.Grid
	// Headers are the raw header cells (or the synthesized ColumnN names
	// when the sheet has no header row), aligned with Grid.Columns.
	Headers []string
	// HasHeader reports whether the first row was consumed as a header.
	HasHeader bool
}

// Infer derives a schema from raw sheet rows.
//
// rows[0] is the candidate header row. Rows may be ragged; short rows are
// padded with nulls to the widest row.
//
// Errors:
//   - ErrSchemaDetection when there are zero data rows or zero columns.
func Infer(rows [][]string, opt Options) (Result, error) {
	pref := opt.DatePreference
	if pref == "" {
		pref = schema.DateUS
	}

	rows = dropEmptyRows(rows)
	if len(rows) == 0 {
		return Result{}, fmt.Errorf("%w: sheet is empty", ErrSchemaDetection)
	}

	headers, data, hasHeader := resolveHeaders(rows, pref)
	headers, data = dropBlankColumns(headers, data, hasHeader)
	if len(headers) == 0 {
		return Result{}, fmt.Errorf("%w: no columns found", ErrSchemaDetection)
	}
	if len(data) == 0 {
		return Result{}, fmt.Errorf("%w: no data rows below the header", ErrSchemaDetection)
	}

	names := NormalizeColumnNames(headers)
	types := inferTypes(names, data, pref)

	s := schema.Schema{
		Types:          make(map[string]schema.Type, len(names)+1),
		DatePreference: pref,
	}
	for i, n := range names {
		s.Types[n] = types[i]
	}

	if idx, ok := detectPrimaryKey(types, data, pref); ok {
		s.Columns = names
		s.PrimaryKey = names[idx]
	} else {
		key := opt.KeyName
		if key == "" {
			key = DefaultKeyName
		}
		key = syntheticKeyName(key, names)
		s.Columns = append([]string{key}, names...)
		s.Types[key] = schema.Integer
		s.PrimaryKey = key
		s.Synthesized = true
	}

	if err := s.Validate(); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrSchemaDetection, err)
	}

	return Result{
		Schema:    s,
		Grid:      records.Grid{Columns: names, Rows: data},
		Headers:   headers,
		HasHeader: hasHeader,
	}, nil
}

// resolveHeaders decides whether rows[0] is a header.
//
// The first row is a header unless every non-empty cell in it is numeric or
// a date: a row of numbers is almost certainly data. Without a header,
// columns are named Column1..ColumnN and every row is data.
//
// Empty header cells are passed through as "" and become Column_<pos> in
// NormalizeColumnNames. All returned data rows have exactly width cells.
func resolveHeaders(rows [][]string, pref schema.DatePreference) (headers []string, data [][]string, hasHeader bool) {
	width := 0
	for _, r := range rows {
		width = max(width, len(r))
	}
	if width == 0 {
		return nil, nil, false
	}

	hasHeader = looksLikeHeader(rows[0], pref)
	headers = make([]string, width)
	start := 0
	if hasHeader {
		for i := range headers {
			if i < len(rows[0]) {
				headers[i] = strings.TrimSpace(rows[0][i])
			}
		}
		start = 1
	} else {
		for i := range headers {
			headers[i] = fmt.Sprintf("Column%d", i+1)
		}
	}

	data = make([][]string, 0, len(rows)-start)
	for _, r := range rows[start:] {
		out := make([]string, width)
		for i := 0; i < width && i < len(r); i++ {
			out[i] = strings.TrimSpace(r[i])
		}
		data = append(data, out)
	}
	return headers, data, hasHeader
}

func looksLikeHeader(row []string, pref schema.DatePreference) bool {
	seen := false
	for _, c := range row {
		v := strings.TrimSpace(c)
		if v == "" {
			continue
		}
		seen = true
		if !schema.Integer.Accepts(v, pref) && !schema.Real.Accepts(v, pref) && !schema.Date.Accepts(v, pref) {
			return true
		}
	}
	return !seen
}

// dropBlankColumns removes columns that have no header text and no data at
// all (typically formatting artifacts at the right edge of a sheet). Kept
// columns with an empty header cell are named Column_<pos> after their
// original 1-based position.
func dropBlankColumns(headers []string, data [][]string, hasHeader bool) ([]string, [][]string) {
	keep := make([]int, 0, len(headers))
	for i := range headers {
		if hasHeader && headers[i] != "" {
			keep = append(keep, i)
			continue
		}
		for _, r := range data {
			if r[i] != "" {
				keep = append(keep, i)
				break
			}
		}
	}

	outH := make([]string, len(keep))
	for j, i := range keep {
		outH[j] = headers[i]
		if outH[j] == "" {
			outH[j] = fmt.Sprintf("Column_%d", i+1)
		}
	}
	if len(keep) == len(headers) {
		return outH, data
	}
	outD := make([][]string, len(data))
	for ri, r := range data {
		row := make([]string, len(keep))
		for j, i := range keep {
			row[j] = r[i]
		}
		outD[ri] = row
	}
	return outH, outD
}

func dropEmptyRows(rows [][]string) [][]string {
	out := rows[:0:0]
	for _, r := range rows {
		for _, c := range r {
			if strings.TrimSpace(c) != "" {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

// syntheticKeyName returns base unless a data column already uses it
// (case-insensitively), in which case base_2, base_3, ... is tried.
func syntheticKeyName(base string, columns []string) string {
	taken := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		taken[strings.ToLower(c)] = struct{}{}
	}
	return uniqueName(base, taken)
}
