// Package xlsx reads the first worksheet of an Office Open XML workbook.
package xlsx

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"sheetcrud/internal/parser/sheet"
)

// Read returns the trimmed, formatted cell text of the first worksheet.
// Other worksheets are ignored. Cell values come back as displayed in the
// workbook, so date cells arrive in their number format (e.g. 01-15-24).
//
// Rows are streamed so a sheet over maxRows fails without being read in
// full.
func Read(r io.Reader, maxRows int) (sheet.Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return sheet.Sheet{}, fmt.Errorf("xlsx: open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	name := f.GetSheetName(0)
	if name == "" {
		return sheet.Sheet{}, fmt.Errorf("xlsx: workbook has no worksheets")
	}

	rows, err := f.Rows(name)
	if err != nil {
		return sheet.Sheet{}, fmt.Errorf("xlsx: read sheet %q: %w", name, err)
	}
	defer func() { _ = rows.Close() }()

	c := sheet.Collector{MaxRows: maxRows}
	for rows.Next() {
		cells, err := rows.Columns()
		if err != nil {
			return sheet.Sheet{}, fmt.Errorf("xlsx: read row: %w", err)
		}
		if err := c.Add(cells); err != nil {
			return sheet.Sheet{}, err
		}
	}
	if err := rows.Error(); err != nil {
		return sheet.Sheet{}, fmt.Errorf("xlsx: read sheet %q: %w", name, err)
	}

	return sheet.Sheet{Name: name, Rows: c.Rows()}, nil
}
