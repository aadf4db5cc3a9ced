// Package parser picks a spreadsheet reader by file extension and returns
// the first worksheet as rows of cell text.
package parser

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"sheetcrud/internal/parser/sheet"
	"sheetcrud/internal/parser/xls"
	"sheetcrud/internal/parser/xlsx"
)

// ErrUnsupportedFormat is returned for any extension without a reader.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// ErrTooManyRows re-exports the reader ceiling error for callers that only
// import this package.
var ErrTooManyRows = sheet.ErrTooManyRows

// Options bound what a reader will accept.
type Options struct {
	// MaxRows caps the rows after the first one. Zero means unlimited.
	MaxRows int
}

type readFunc func(r io.Reader, maxRows int) (sheet.Sheet, error)

var readers = map[string]readFunc{
	".xlsx": xlsx.Read,
	".xls":  xls.Read,
}

// SupportedExtensions lists the accepted extensions (lowercase, with dot).
func SupportedExtensions() []string {
	return []string{".xlsx", ".xls"}
}

// Ext returns the lowercase extension of filename.
func Ext(filename string) string {
	return strings.ToLower(filepath.Ext(strings.TrimSpace(filename)))
}

// Supported reports whether filename has a known spreadsheet extension.
func Supported(filename string) bool {
	_, ok := readers[Ext(filename)]
	return ok
}

// ReadFirstSheet reads the first worksheet of the workbook in r, choosing the
// reader by the extension of filename.
//
// Errors:
//   - ErrUnsupportedFormat for an unknown extension
//   - ErrTooManyRows when the sheet exceeds opt.MaxRows
//   - any reader error for unreadable or corrupt input
func ReadFirstSheet(filename string, r io.Reader, opt Options) (sheet.Sheet, error) {
	ext := Ext(filename)
	read, ok := readers[ext]
	if !ok {
		return sheet.Sheet{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return read(r, opt.MaxRows)
}
