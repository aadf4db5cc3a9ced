package parser

import (
	"bytes"
	"errors"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestSupported(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want bool
	}{
		{"data.xlsx", true},
		{"DATA.XLSX", true},
		{"legacy.xls", true},
		{"data.csv", false},
		{"data", false},
		{"archive.xlsx.zip", false},
	}
	for _, tt := range tests {
		if got := Supported(tt.in); got != tt.want {
			t.Fatalf("Supported(%q)=%v want %v", tt.in, got, tt.want)
		}
	}
}

func TestReadFirstSheet_UnsupportedFormat(t *testing.T) {
	t.Parallel()

	_, err := ReadFirstSheet("data.csv", bytes.NewReader([]byte("a,b")), Options{})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestReadFirstSheet_DispatchesXLSX(t *testing.T) {
	t.Parallel()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetCellValue("Sheet1", "A1", "Name"); err != nil {
		t.Fatalf("SetCellValue: %v", err)
	}
	if err := f.SetCellValue("Sheet1", "A2", "Alice"); err != nil {
		t.Fatalf("SetCellValue: %v", err)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}

	got, err := ReadFirstSheet("Upload.XLSX", buf, Options{MaxRows: 10})
	if err != nil {
		t.Fatalf("ReadFirstSheet: %v", err)
	}
	if got.DataRows() != 1 || got.Rows[1][0] != "Alice" {
		t.Fatalf("unexpected sheet: %+v", got)
	}
}
