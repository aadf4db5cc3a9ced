// Command probe infers the table schema of a spreadsheet without starting
// the server or touching a store.
//
// It reads the first sheet of an .xlsx or .xls file, decides whether the
// first row is a header, normalizes column names, infers a type per column
// and picks (or synthesizes) the primary key, exactly as an upload would.
//
// Output modes
//
//   - Default mode: prints the schema as JSON to stdout.
//   - Report mode (--report): prints the per-column uniqueness report instead.
//     Useful to see why a column was or was not chosen as the key.
//   - --out PATH writes the JSON to PATH atomically instead of stdout.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/spf13/pflag"

	"sheetcrud/internal/parser"
	"sheetcrud/internal/probe"
	"sheetcrud/internal/schema"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// Column is one inferred column.
type Column struct {
	Name string `json:"name"`
	// Header is the raw header cell; empty for a synthesized key.
	Header string `json:"header,omitempty"`
	Type   string `json:"type"`
	Key    bool   `json:"key,omitempty"`
}

// Output is the JSON document printed in default mode.
type Output struct {
	File           string   `json:"file"`
	Sheet          string   `json:"sheet"`
	HasHeader      bool     `json:"has_header"`
	PrimaryKey     string   `json:"primary_key"`
	Synthesized    bool     `json:"synthesized"`
	DatePreference string   `json:"date_preference"`
	Rows           int      `json:"rows"`
	Columns        []Column `json:"columns"`
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("probe", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		file    = fs.String("file", "", "spreadsheet to probe (.xlsx or .xls); may also be given as the only argument")
		dates   = fs.String("dates", "us", "ambiguous date order: us or eu")
		keyName = fs.String("key-name", probe.DefaultKeyName, "name of a synthesized primary key")
		maxRows = fs.Int("max-rows", 0, "fail when the sheet has more data rows (0 means unlimited)")
		report  = fs.Bool("report", false, "print the uniqueness report instead of JSON")
		out     = fs.String("out", "", "write JSON to this file instead of stdout")
		pretty  = fs.Bool("pretty", true, "indent JSON output")
	)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	path := strings.TrimSpace(*file)
	if path == "" && fs.NArg() == 1 {
		path = fs.Arg(0)
	}
	if path == "" || fs.NArg() > 1 {
		fmt.Fprintln(stderr, "usage: probe [flags] FILE (missing --file)")
		fs.PrintDefaults()
		return 2
	}

	pref := schema.DatePreference(*dates)
	if pref != schema.DateUS && pref != schema.DateEU {
		fmt.Fprintf(stderr, "probe: --dates must be us or eu, got %q\n", *dates)
		return 2
	}

	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(stderr, "probe: %v\n", err)
		return 1
	}
	defer func() { _ = f.Close() }()

	sh, err := parser.ReadFirstSheet(filepath.Base(path), f, parser.Options{MaxRows: *maxRows})
	if err != nil {
		fmt.Fprintf(stderr, "probe: %v\n", err)
		return 1
	}
	res, err := probe.Infer(sh.Rows, probe.Options{DatePreference: pref, KeyName: *keyName})
	if err != nil {
		fmt.Fprintf(stderr, "probe: %v\n", err)
		return 1
	}

	if *report {
		fmt.Fprintln(stdout, probe.FormatUniquenessReport(probe.Uniqueness(res.Grid)))
		return 0
	}

	data, err := encode(describe(path, sh.Name, res), *pretty)
	if err != nil {
		fmt.Fprintf(stderr, "probe: encode: %v\n", err)
		return 1
	}
	if *out != "" {
		if err := atomic.WriteFile(*out, bytes.NewReader(data)); err != nil {
			fmt.Fprintf(stderr, "probe: write %s: %v\n", *out, err)
			return 1
		}
		return 0
	}
	_, _ = stdout.Write(data)
	return 0
}

func describe(path, sheet string, res probe.Result) Output {
	s := res.Schema
	o := Output{
		File:           filepath.Base(path),
		Sheet:          sheet,
		HasHeader:      res.HasHeader,
		PrimaryKey:     s.PrimaryKey,
		Synthesized:    s.Synthesized,
		DatePreference: string(s.DatePreference),
		Rows:           res.Grid.Len(),
		Columns:        make([]Column, 0, len(s.Columns)),
	}

	headers := make(map[string]string, len(res.Headers))
	for i, name := range res.Grid.Columns {
		if i < len(res.Headers) {
			headers[name] = res.Headers[i]
		}
	}
	for _, c := range s.Columns {
		o.Columns = append(o.Columns, Column{
			Name:   c,
			Header: headers[c],
			Type:   s.TypeOf(c).String(),
			Key:    c == s.PrimaryKey,
		})
	}
	return o
}

func encode(v any, pretty bool) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
