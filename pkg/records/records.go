// Package records holds the in-memory shapes that move between the
// spreadsheet readers, schema inference, the store and the views.
package records

// Record is one row keyed by column name.
//
// Values are int64, float64, string or nil once coerced; raw form input
// arrives as strings.
type Record map[string]any

// Grid is the tabular form of an upload after header resolution.
//
// Columns holds the normalized data column names (a synthesized key is not
// part of the grid). Rows are aligned to Columns; an empty string is a null
// cell.
type Grid struct {
	Columns []string
	Rows    [][]string
}

// Width returns the number of columns.
func (g Grid) Width() int { return len(g.Columns) }

// Len returns the number of data rows.
func (g Grid) Len() int { return len(g.Rows) }

// Cell returns the cell at (row, col) or "" when the row is short.
func (g Grid) Cell(row, col int) string {
	if row < 0 || row >= len(g.Rows) {
		return ""
	}
	r := g.Rows[row]
	if col < 0 || col >= len(r) {
		return ""
	}
	return r[col]
}

// Table is a full snapshot read back from the store.
//
// Columns follow schema order (key included). Each row has exactly
// len(Columns) values.
type Table struct {
	Columns []string
	Rows    [][]any
}

// Len returns the number of rows in the snapshot.
func (t Table) Len() int { return len(t.Rows) }

// ColumnIndex returns the position of col or -1.
func (t Table) ColumnIndex(col string) int {
	for i, c := range t.Columns {
		if c == col {
			return i
		}
	}
	return -1
}

// Record returns row i as a Record.
func (t Table) Record(i int) Record {
	if i < 0 || i >= len(t.Rows) {
		return nil
	}
	out := make(Record, len(t.Columns))
	for j, c := range t.Columns {
		if j < len(t.Rows[i]) {
			out[c] = t.Rows[i][j]
		}
	}
	return out
}
