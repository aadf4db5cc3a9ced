package postgres

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"sheetcrud/internal/schema"
	"sheetcrud/internal/storage"
)

func pgIdent(s string) string {
	return pgx.Identifier{s}.Sanitize()
}

// tableIdent splits an optionally schema-qualified name ("public.data").
func tableIdent(name string) pgx.Identifier {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return pgx.Identifier(parts)
}

// splitTable returns (schema, table); schema is "" when not qualified.
func splitTable(name string) (string, string) {
	id := tableIdent(name)
	if len(id) == 1 {
		return "", id[0]
	}
	return id[len(id)-2], id[len(id)-1]
}

func columnType(t schema.Type) string {
	switch t {
	case schema.Integer:
		return "BIGINT"
	case schema.Real:
		return "DOUBLE PRECISION"
	default:
		return "TEXT"
	}
}

func wantColumns(s schema.Schema) []storage.ColumnInfo {
	out := make([]storage.ColumnInfo, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = storage.ColumnInfo{Name: c, Type: columnType(s.Types[c])}
	}
	return out
}

// buildCreateTableSQL generates DDL for s. A synthesized key is an identity
// column; GENERATED BY DEFAULT lets the bulk load write explicit 1..N ids.
func buildCreateTableSQL(table string, s schema.Schema) string {
	parts := make([]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		switch {
		case c == s.PrimaryKey && s.Synthesized:
			parts = append(parts, fmt.Sprintf("%s BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY", pgIdent(c)))
		case c == s.PrimaryKey:
			parts = append(parts, fmt.Sprintf("%s %s PRIMARY KEY", pgIdent(c), columnType(s.Types[c])))
		default:
			parts = append(parts, fmt.Sprintf("%s %s", pgIdent(c), columnType(s.Types[c])))
		}
	}
	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n);", tableIdent(table).Sanitize(), strings.Join(parts, ",\n  "))
}

func buildDropTableSQL(table string) string {
	return "DROP TABLE IF EXISTS " + tableIdent(table).Sanitize()
}

// buildInsertSQL constructs a single-row INSERT returning the key column.
//
// Placeholders are numbered $1..$N in column order.
func buildInsertSQL(table, key string, columns []string) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(tableIdent(table).Sanitize())
	if len(columns) == 0 {
		b.WriteString(" DEFAULT VALUES")
	} else {
		b.WriteString(" (")
		for i, c := range columns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(pgIdent(c))
		}
		b.WriteString(") VALUES (")
		for i := range columns {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", i+1)
		}
		b.WriteString(")")
	}
	b.WriteString(" RETURNING ")
	b.WriteString(pgIdent(key))
	return b.String()
}

// buildSelectAllSQL orders by key: heap order in Postgres is not stable
// across updates.
func buildSelectAllSQL(table, key string, columns []string) string {
	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = pgIdent(c)
	}
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", strings.Join(cols, ", "), tableIdent(table).Sanitize(), pgIdent(key))
}

func buildUpdateSQL(table, key string, columns []string) string {
	sets := make([]string, len(columns))
	for i, c := range columns {
		sets[i] = fmt.Sprintf("%s = $%d", pgIdent(c), i+1)
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d",
		tableIdent(table).Sanitize(), strings.Join(sets, ", "), pgIdent(key), len(columns)+1)
}

func buildDeleteSQL(table, key string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s = $1", tableIdent(table).Sanitize(), pgIdent(key))
}

func buildExistsSQL(table, key string) string {
	return fmt.Sprintf("SELECT 1 FROM %s WHERE %s = $1", tableIdent(table).Sanitize(), pgIdent(key))
}

// buildResyncIdentitySQL moves the identity sequence past the explicit ids
// written by a bulk load so the next generated id does not collide.
func buildResyncIdentitySQL(table, key string) string {
	return fmt.Sprintf(
		"SELECT setval(pg_get_serial_sequence($1, $2), COALESCE(MAX(%s), 1), MAX(%s) IS NOT NULL) FROM %s",
		pgIdent(key), pgIdent(key), tableIdent(table).Sanitize(),
	)
}

const existingColumnsSQL = `SELECT column_name, data_type
FROM information_schema.columns
WHERE table_schema = COALESCE(NULLIF($1, ''), current_schema()) AND table_name = $2
ORDER BY ordinal_position`
