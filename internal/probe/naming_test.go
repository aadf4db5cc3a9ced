package probe

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNormalizeColumnName_TableDriven(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		pos  int
		want string
	}{
		{name: "spaces", in: "First Name", pos: 1, want: "First_Name"},
		{name: "punctuation_collapses", in: "Price ($)", pos: 1, want: "Price"},
		{name: "accents_folded", in: "Café", pos: 1, want: "Cafe"},
		{name: "accents_and_dash", in: "naïve-name", pos: 1, want: "naive_name"},
		{name: "leading_digit", in: "2024 Sales", pos: 1, want: "col_2024_Sales"},
		{name: "reserved_word", in: "order", pos: 1, want: "col_order"},
		{name: "reserved_word_case", in: "Select", pos: 1, want: "col_Select"},
		{name: "empty", in: "", pos: 3, want: "Column_3"},
		{name: "only_symbols", in: "@@@", pos: 1, want: "Column_1"},
		{name: "underscore_runs", in: "a__b", pos: 1, want: "a_b"},
		{name: "non_latin_dropped", in: "名前 name", pos: 1, want: "name"},
		{name: "case_preserved", in: "Age", pos: 1, want: "Age"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := NormalizeColumnName(tt.in, tt.pos); got != tt.want {
				t.Fatalf("NormalizeColumnName(%q,%d)=%q want %q", tt.in, tt.pos, got, tt.want)
			}
		})
	}
}

func TestNormalizeColumnName_Truncates(t *testing.T) {
	t.Parallel()

	got := NormalizeColumnName(strings.Repeat("a", 70), 1)
	if len(got) != maxIdentLen {
		t.Fatalf("len=%d want %d", len(got), maxIdentLen)
	}
}

func TestNormalizeColumnNames_Collisions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{name: "dup", in: []string{"id", "id"}, want: []string{"id", "id_2"}},
		{name: "case_insensitive", in: []string{"id", "id", "ID"}, want: []string{"id", "id_2", "ID_3"}},
		{name: "after_normalization", in: []string{"First Name", "First-Name"}, want: []string{"First_Name", "First_Name_2"}},
		{name: "suffix_already_taken", in: []string{"a_2", "a", "a"}, want: []string{"a_2", "a", "a_3"}},
		{name: "empties", in: []string{"", "x", ""}, want: []string{"Column_1", "x", "Column_3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if diff := cmp.Diff(tt.want, NormalizeColumnNames(tt.in)); diff != "" {
				t.Fatalf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestUniqueName_LongBaseStaysWithinLimit(t *testing.T) {
	t.Parallel()

	base := strings.Repeat("b", maxIdentLen)
	taken := map[string]struct{}{base: {}}
	got := uniqueName(base, taken)
	if len(got) > maxIdentLen || !strings.HasSuffix(got, "_2") {
		t.Fatalf("uniqueName=%q (len %d)", got, len(got))
	}
}
