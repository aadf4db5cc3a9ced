package mssql

import (
	"fmt"
	"strings"

	"sheetcrud/internal/schema"
	"sheetcrud/internal/storage"
)

// SQL Server accepts at most 2100 parameters per request and 1000 rows per
// VALUES list.
const (
	maxParams     = 2000
	maxValuesRows = 1000
)

// mssqlIdent returns a bracket-quoted identifier, escaping ']' as ']]'.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// mssqlTableIdent returns a bracket-quoted identifier for schema-qualified names.
//
// Example:
//
//	"dbo.imports" -> [dbo].[imports]
func mssqlTableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = mssqlIdent(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}

// splitTable returns (schema, table); schema is "" when not qualified.
func splitTable(name string) (string, string) {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) == 1 {
		return "", parts[0]
	}
	return parts[len(parts)-2], parts[len(parts)-1]
}

// columnType maps a semantic type to a column type. Text keys are capped at
// 450 characters because index keys are limited to 900 bytes.
func columnType(t schema.Type, key bool) string {
	switch t {
	case schema.Integer:
		return "BIGINT"
	case schema.Real:
		return "FLOAT"
	case schema.Date:
		return "NVARCHAR(32)"
	default:
		if key {
			return "NVARCHAR(450)"
		}
		return "NVARCHAR(MAX)"
	}
}

func wantColumns(s schema.Schema) []storage.ColumnInfo {
	out := make([]storage.ColumnInfo, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = storage.ColumnInfo{Name: c, Type: columnType(s.Types[c], c == s.PrimaryKey)}
	}
	return out
}

func buildCreateTableSQL(table string, s schema.Schema) string {
	parts := make([]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		switch {
		case c == s.PrimaryKey && s.Synthesized:
			parts = append(parts, fmt.Sprintf("%s BIGINT IDENTITY(1,1) NOT NULL PRIMARY KEY", mssqlIdent(c)))
		case c == s.PrimaryKey:
			parts = append(parts, fmt.Sprintf("%s %s NOT NULL PRIMARY KEY", mssqlIdent(c), columnType(s.Types[c], true)))
		default:
			parts = append(parts, fmt.Sprintf("%s %s NULL", mssqlIdent(c), columnType(s.Types[c], false)))
		}
	}
	return fmt.Sprintf("CREATE TABLE %s (%s);", mssqlTableIdent(table), strings.Join(parts, ", "))
}

func buildDropTableSQL(table string) string {
	return "DROP TABLE IF EXISTS " + mssqlTableIdent(table)
}

func buildIdentityInsertSQL(table string, on bool) string {
	state := "OFF"
	if on {
		state = "ON"
	}
	return fmt.Sprintf("SET IDENTITY_INSERT %s %s", mssqlTableIdent(table), state)
}

// buildBulkInsertSQL builds a single INSERT ... VALUES statement for all rows.
func buildBulkInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(mssqlTableIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(mssqlIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "@p%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}
	return b.String(), args
}

// chunkRows splits rows so each INSERT stays under the parameter and
// VALUES row limits.
func chunkRows(rows [][]any, width int) [][][]any {
	per := maxValuesRows
	if width > 0 && maxParams/width < per {
		per = max(maxParams/width, 1)
	}
	var out [][][]any
	for len(rows) > 0 {
		n := min(per, len(rows))
		out = append(out, rows[:n])
		rows = rows[n:]
	}
	return out
}

// buildInsertSQL constructs a single-row INSERT that outputs the key.
func buildInsertSQL(table, key string, columns []string) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(mssqlTableIdent(table))
	if len(columns) > 0 {
		b.WriteString(" (")
		for i, c := range columns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(mssqlIdent(c))
		}
		b.WriteString(")")
	}
	b.WriteString(" OUTPUT INSERTED.")
	b.WriteString(mssqlIdent(key))
	if len(columns) == 0 {
		b.WriteString(" DEFAULT VALUES")
		return b.String()
	}
	b.WriteString(" VALUES (")
	for i := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "@p%d", i+1)
	}
	b.WriteString(")")
	return b.String()
}

func buildSelectAllSQL(table, key string, columns []string) string {
	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = mssqlIdent(c)
	}
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", strings.Join(cols, ", "), mssqlTableIdent(table), mssqlIdent(key))
}

func buildUpdateSQL(table, key string, columns []string) string {
	sets := make([]string, len(columns))
	for i, c := range columns {
		sets[i] = fmt.Sprintf("%s = @p%d", mssqlIdent(c), i+1)
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s = @p%d",
		mssqlTableIdent(table), strings.Join(sets, ", "), mssqlIdent(key), len(columns)+1)
}

func buildDeleteSQL(table, key string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s = @p1", mssqlTableIdent(table), mssqlIdent(key))
}

func buildExistsSQL(table, key string) string {
	return fmt.Sprintf("SELECT COUNT(1) FROM %s WHERE %s = @p1", mssqlTableIdent(table), mssqlIdent(key))
}

// existingColumnsSQL returns the layout of a table as one row:
// "name:type|name:type|..." in ordinal order, or NULL when absent.
const existingColumnsSQL = `SELECT STRING_AGG(CAST(COLUMN_NAME AS NVARCHAR(MAX)) + ':' + DATA_TYPE, '|') WITHIN GROUP (ORDER BY ORDINAL_POSITION)
FROM INFORMATION_SCHEMA.COLUMNS
WHERE TABLE_SCHEMA = COALESCE(NULLIF(@p1, ''), SCHEMA_NAME()) AND TABLE_NAME = @p2`

// parseColumnLayout decodes the existingColumnsSQL aggregate.
func parseColumnLayout(s string) []storage.ColumnInfo {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, "|")
	out := make([]storage.ColumnInfo, 0, len(parts))
	for _, p := range parts {
		i := strings.LastIndexByte(p, ':')
		if i < 0 {
			out = append(out, storage.ColumnInfo{Name: p})
			continue
		}
		out = append(out, storage.ColumnInfo{Name: p[:i], Type: p[i+1:]})
	}
	return out
}
