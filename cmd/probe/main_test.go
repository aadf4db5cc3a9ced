package main

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"
)

// TestHelperProcess is a subprocess entrypoint so tests can observe the exit
// code of main(). Arguments after a literal "--" are the command's args.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	i := 0
	for ; i < len(args); i++ {
		if args[i] == "--" {
			break
		}
	}
	if i < len(args) {
		os.Args = append([]string{args[0]}, args[i+1:]...)
	} else {
		os.Args = []string{args[0]}
	}
	main()
	os.Exit(0)
}

func runCmd(t *testing.T, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()

	cmd := exec.Command(os.Args[0], append([]string{"-test.run=TestHelperProcess", "--"}, args...)...)
	cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1")
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err := cmd.Run()
	if err == nil {
		return outBuf.String(), errBuf.String(), 0
	}
	if ee, ok := err.(*exec.ExitError); ok {
		return outBuf.String(), errBuf.String(), ee.ExitCode()
	}
	t.Fatalf("unexpected run error: %T: %v", err, err)
	return "", "", 1
}

func writeWorkbook(t *testing.T, rows [][]any) string {
	t.Helper()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := f.GetSheetName(0)
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("CoordinatesToCellName: %v", err)
		}
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	path := filepath.Join(t.TempDir(), "people.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	return path
}

var people = [][]any{
	{"Full Name", "Age", ""},
	{"Alice", 30, ""},
	{"Alice", 25, ""},
	{"Bob", 30, ""},
}

func TestRun_DefaultMode_EmitsSchemaJSON(t *testing.T) {
	t.Parallel()

	path := writeWorkbook(t, people)
	var stdout, stderr bytes.Buffer
	if code := run([]string{path}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code=%d stderr=%q", code, stderr.String())
	}

	var got Output
	if err := json.Unmarshal(stdout.Bytes(), &got); err != nil {
		t.Fatalf("stdout is not valid JSON: %v\n%s", err, stdout.String())
	}
	want := Output{
		File:           "people.xlsx",
		Sheet:          "Sheet1",
		HasHeader:      true,
		PrimaryKey:     "id",
		Synthesized:    true,
		DatePreference: "us",
		Rows:           3,
		Columns: []Column{
			{Name: "id", Type: "integer", Key: true},
			{Name: "Full_Name", Header: "Full Name", Type: "text"},
			{Name: "Age", Header: "Age", Type: "integer"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("output (-want +got):\n%s", diff)
	}
}

func TestRun_ReportMode_SuppressesJSON(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	if code := run([]string{"--file", writeWorkbook(t, people), "--report"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code=%d stderr=%q", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "uniqueness report:\trows=3") {
		t.Fatalf("expected report header, got:\n%s", stdout.String())
	}
	if strings.Contains(stdout.String(), "{") {
		t.Fatalf("expected report-only output, got:\n%s", stdout.String())
	}
}

func TestRun_OutWritesFile(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "schema.json")
	var stdout, stderr bytes.Buffer
	args := []string{writeWorkbook(t, people), "--out", out, "--pretty=false", "--key-name", "row_id"}
	if code := run(args, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code=%d stderr=%q", code, stderr.String())
	}
	if stdout.Len() != 0 {
		t.Fatalf("stdout=%q, want empty when --out is set", stdout.String())
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var got Output
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.PrimaryKey != "row_id" {
		t.Fatalf("primary key=%q want row_id", got.PrimaryKey)
	}
	if bytes.Count(data, []byte("\n")) != 1 {
		t.Fatalf("expected compact JSON, got:\n%s", data)
	}
}

func TestRun_Failures(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	csv := filepath.Join(dir, "people.csv")
	if err := os.WriteFile(csv, []byte("a,b\n1,2\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	headerOnly := writeWorkbook(t, [][]any{{"Name", "Age"}})

	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantErr  string
	}{
		{name: "missing_file_flag", args: nil, wantCode: 2, wantErr: "missing --file"},
		{name: "two_files", args: []string{"a.xlsx", "b.xlsx"}, wantCode: 2, wantErr: "missing --file"},
		{name: "bad_dates", args: []string{headerOnly, "--dates", "iso"}, wantCode: 2, wantErr: "--dates must be us or eu"},
		{name: "not_found", args: []string{filepath.Join(dir, "nope.xlsx")}, wantCode: 1, wantErr: "no such file"},
		{name: "unsupported", args: []string{csv}, wantCode: 1, wantErr: "unsupported"},
		{name: "no_data", args: []string{headerOnly}, wantCode: 1, wantErr: "schema detection failed"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var stdout, stderr bytes.Buffer
			code := run(tc.args, &stdout, &stderr)
			if code != tc.wantCode {
				t.Fatalf("exit code=%d, want %d; stderr=%q", code, tc.wantCode, stderr.String())
			}
			if !strings.Contains(stderr.String(), tc.wantErr) {
				t.Fatalf("stderr=%q, want contains %q", stderr.String(), tc.wantErr)
			}
			if stdout.Len() != 0 {
				t.Fatalf("stdout=%q, want empty", stdout.String())
			}
		})
	}
}

func TestMain_MissingFile_ExitsWith2(t *testing.T) {
	t.Parallel()

	stdout, stderr, code := runCmd(t)
	if code != 2 {
		t.Fatalf("expected exit code 2, got %d\nstderr:\n%s\nstdout:\n%s", code, stderr, stdout)
	}
	if !strings.Contains(stderr, "missing --file") {
		t.Fatalf("expected usage message on stderr, got:\n%s", stderr)
	}
}
