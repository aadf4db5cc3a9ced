// Package xls reads the first worksheet of a legacy BIFF (.xls) workbook.
package xls

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/extrame/xls"

	"sheetcrud/internal/parser/sheet"
)

// Read returns the trimmed cell text of the first worksheet. The BIFF reader
// needs random access, so r is buffered in memory; callers bound its size
// before calling.
//
// The underlying decoder can panic on malformed records; that is reported as
// an ordinary error.
func Read(r io.Reader, maxRows int) (out sheet.Sheet, err error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return sheet.Sheet{}, fmt.Errorf("xls: read input: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			out = sheet.Sheet{}
			err = fmt.Errorf("xls: malformed workbook: %v", p)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return sheet.Sheet{}, fmt.Errorf("xls: open workbook: %w", err)
	}
	if wb == nil {
		return sheet.Sheet{}, fmt.Errorf("xls: no workbook stream")
	}
	if wb.NumSheets() == 0 {
		return sheet.Sheet{}, fmt.Errorf("xls: workbook has no worksheets")
	}
	retargetDateFormats(wb)
	ws := wb.GetSheet(0)
	if ws == nil {
		return sheet.Sheet{}, fmt.Errorf("xls: workbook has no worksheets")
	}

	c := sheet.Collector{MaxRows: maxRows}
	for i := 0; i <= int(ws.MaxRow); i++ {
		row := rowAt(ws, i)
		if row == nil {
			continue
		}
		cells := make([]string, 0, row.LastCol())
		for j := 0; j < row.LastCol(); j++ {
			cells = append(cells, cellText(row.Col(j)))
		}
		if err := c.Add(cells); err != nil {
			return sheet.Sheet{}, err
		}
	}

	return sheet.Sheet{Name: ws.Name, Rows: c.Rows()}, nil
}

// isoDateFormat is a format index past the built-in range. The decoder
// renders cells under any user-defined format as RFC 3339 timestamps, but
// built-in date formats only as year and month.
const isoDateFormat = 0xFFF0

// retargetDateFormats points every XF that uses a built-in date format at
// isoDateFormat so date cells keep their day.
func retargetDateFormats(wb *xls.WorkBook) {
	for _, x := range wb.Xfs {
		switch xf := x.(type) {
		case *xls.Xf8:
			if builtinDateFormat(xf.Format) {
				xf.Format = isoDateFormat
			}
		case *xls.Xf5:
			if builtinDateFormat(xf.Format) {
				xf.Format = isoDateFormat
			}
		}
	}
	wb.Formats[isoDateFormat] = &xls.Format{}
}

func builtinDateFormat(n uint16) bool {
	return 14 <= n && n <= 17 || n == 22 || 27 <= n && n <= 36 || 50 <= n && n <= 58
}

// rowAt returns nil for rows the sheet has no records for; the decoder
// dereferences a nil row in that case.
func rowAt(ws *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return ws.Row(i)
}

// cellText turns decoded date cells into the forms the date parser reads:
// a plain date at midnight, date and time otherwise.
func cellText(s string) string {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return s
	}
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format("2006-01-02 15:04:05")
}
