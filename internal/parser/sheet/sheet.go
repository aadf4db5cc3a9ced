// Package sheet holds the reader-neutral result of reading one worksheet and
// the row ceiling shared by every spreadsheet reader.
package sheet

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTooManyRows is returned as soon as a sheet exceeds its row ceiling.
var ErrTooManyRows = errors.New("sheet exceeds row limit")

// Sheet is the first worksheet of a workbook as trimmed cell strings.
// Rows that are entirely empty are not included.
type Sheet struct {
	Name string
	Rows [][]string
}

// DataRows is the number of rows after the first (candidate header) row.
func (s Sheet) DataRows() int {
	if len(s.Rows) == 0 {
		return 0
	}
	return len(s.Rows) - 1
}

// Collector accumulates rows and enforces MaxRows.
//
// MaxRows counts rows after the first one, since the first row is normally
// the header. Zero means unlimited.
type Collector struct {
	MaxRows int
	rows    [][]string
}

// Add trims cells, skips blank rows and returns ErrTooManyRows once the
// ceiling is crossed. Trailing empty cells are cut so ragged rows stay small.
func (c *Collector) Add(cells []string) error {
	row := make([]string, len(cells))
	last := -1
	for i, v := range cells {
		row[i] = strings.TrimSpace(v)
		if row[i] != "" {
			last = i
		}
	}
	if last < 0 {
		return nil
	}
	c.rows = append(c.rows, row[:last+1])
	if c.MaxRows > 0 && len(c.rows)-1 > c.MaxRows {
		return fmt.Errorf("%w: more than %d rows", ErrTooManyRows, c.MaxRows)
	}
	return nil
}

// Rows returns the collected rows.
func (c *Collector) Rows() [][]string { return c.rows }
