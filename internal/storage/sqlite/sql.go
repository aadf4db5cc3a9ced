package sqlite

import (
	"fmt"
	"strings"

	"sheetcrud/internal/schema"
	"sheetcrud/internal/storage"
)

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// columnType maps a semantic type to its SQLite declared type. Dates are
// ISO-8601 TEXT so they sort and compare lexically.
func columnType(t schema.Type) string {
	switch t {
	case schema.Integer:
		return "INTEGER"
	case schema.Real:
		return "REAL"
	default:
		return "TEXT"
	}
}

// wantColumns is the layout CreateTable produces for s, used to check an
// existing table.
func wantColumns(s schema.Schema) []storage.ColumnInfo {
	out := make([]storage.ColumnInfo, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = storage.ColumnInfo{Name: c, Type: columnType(s.Types[c])}
	}
	return out
}

// buildCreateTableSQL generates DDL for s.
//
// A synthesized key becomes INTEGER PRIMARY KEY AUTOINCREMENT, which aliases
// the rowid and never reuses deleted ids. A natural key is declared NOT NULL
// because SQLite otherwise allows NULL in non-integer primary keys.
func buildCreateTableSQL(table string, s schema.Schema) string {
	parts := make([]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		switch {
		case c == s.PrimaryKey && s.Synthesized:
			parts = append(parts, fmt.Sprintf("%s INTEGER PRIMARY KEY AUTOINCREMENT", sqlIdent(c)))
		case c == s.PrimaryKey:
			parts = append(parts, fmt.Sprintf("%s %s PRIMARY KEY NOT NULL", sqlIdent(c), columnType(s.Types[c])))
		default:
			parts = append(parts, fmt.Sprintf("%s %s", sqlIdent(c), columnType(s.Types[c])))
		}
	}
	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n);", sqlIdent(table), strings.Join(parts, ",\n  "))
}

func buildInsertSQL(table string, columns []string) string {
	if len(columns) == 0 {
		return fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", sqlIdent(table))
	}
	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = sqlIdent(c)
	}
	ph := strings.TrimRight(strings.Repeat("?,", len(columns)), ",")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", sqlIdent(table), strings.Join(cols, ", "), ph)
}

// buildSelectAllSQL reads in rowid order. For text keys and the synthesized
// key that is insertion order. An integer natural key is declared INTEGER
// PRIMARY KEY and so becomes the rowid itself: those tables read back in
// ascending key order.
func buildSelectAllSQL(table string, columns []string) string {
	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = sqlIdent(c)
	}
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY rowid", strings.Join(cols, ", "), sqlIdent(table))
}

func buildUpdateSQL(table, key string, columns []string) string {
	sets := make([]string, len(columns))
	for i, c := range columns {
		sets[i] = sqlIdent(c) + " = ?"
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", sqlIdent(table), strings.Join(sets, ", "), sqlIdent(key))
}

func buildDeleteSQL(table, key string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s = ?", sqlIdent(table), sqlIdent(key))
}

func buildExistsSQL(table, key string) string {
	return fmt.Sprintf("SELECT 1 FROM %s WHERE %s = ?", sqlIdent(table), sqlIdent(key))
}
