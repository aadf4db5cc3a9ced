package postgres

import (
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"sheetcrud/internal/schema"
	"sheetcrud/internal/storage"
)

func peopleSchema() schema.Schema {
	return schema.Schema{
		Columns:     []string{"id", "Name", "Score", "Joined"},
		Types:       map[string]schema.Type{"id": schema.Integer, "Name": schema.Text, "Score": schema.Real, "Joined": schema.Date},
		PrimaryKey:  "id",
		Synthesized: true,
	}
}

func TestBuildCreateTableSQL_SynthesizedKey(t *testing.T) {
	t.Parallel()

	got := buildCreateTableSQL("public.data", peopleSchema())
	for _, want := range []string{
		`CREATE TABLE "public"."data"`,
		`"id" BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY`,
		`"Name" TEXT`,
		`"Score" DOUBLE PRECISION`,
		`"Joined" TEXT`,
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("DDL missing %q:\n%s", want, got)
		}
	}
}

func TestBuildCreateTableSQL_NaturalKey(t *testing.T) {
	t.Parallel()

	s := schema.Schema{
		Columns:    []string{"Code", "Qty"},
		Types:      map[string]schema.Type{"Code": schema.Text, "Qty": schema.Integer},
		PrimaryKey: "Code",
	}
	got := buildCreateTableSQL("data", s)
	if !strings.Contains(got, `"Code" TEXT PRIMARY KEY`) || !strings.Contains(got, `"Qty" BIGINT`) {
		t.Fatalf("unexpected DDL:\n%s", got)
	}
	if strings.Contains(got, "IDENTITY") {
		t.Fatalf("natural key must not be an identity:\n%s", got)
	}
}

func TestBuildInsertSQL_PlaceholdersAndReturning(t *testing.T) {
	t.Parallel()

	got := buildInsertSQL("data", "id", []string{"Name", "Score"})
	want := `INSERT INTO "data" ("Name", "Score") VALUES ($1, $2) RETURNING "id"`
	if got != want {
		t.Fatalf("got  %s\nwant %s", got, want)
	}
	got = buildInsertSQL("data", "id", nil)
	if got != `INSERT INTO "data" DEFAULT VALUES RETURNING "id"` {
		t.Fatalf("unexpected default insert: %s", got)
	}
}

func TestBuildUpdateSQL_KeyIsLastPlaceholder(t *testing.T) {
	t.Parallel()

	got := buildUpdateSQL("data", "id", []string{"Name", "Score"})
	want := `UPDATE "data" SET "Name" = $1, "Score" = $2 WHERE "id" = $3`
	if got != want {
		t.Fatalf("got  %s\nwant %s", got, want)
	}
}

func TestSplitTable(t *testing.T) {
	t.Parallel()

	if s, n := splitTable("public.data"); s != "public" || n != "data" {
		t.Fatalf("splitTable(public.data)=%q,%q", s, n)
	}
	if s, n := splitTable("data"); s != "" || n != "data" {
		t.Fatalf("splitTable(data)=%q,%q", s, n)
	}
}

func TestClassify_UniqueViolation(t *testing.T) {
	t.Parallel()

	err := classify(&pgconn.PgError{Code: "23505", Detail: "Key (id)=(1) already exists."}, "A1")
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
	other := &pgconn.PgError{Code: "42P01"}
	if got := classify(other, nil); got != error(other) {
		t.Fatalf("non-unique errors must pass through, got %v", got)
	}
}
