package crud

import (
	"bytes"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"

	"sheetcrud/internal/schema"
	"sheetcrud/pkg/records"
)

func peopleSchema() schema.Schema {
	return schema.Schema{
		Columns:     []string{"id", "Name", "Age", "Score", "Joined"},
		Types:       map[string]schema.Type{"id": schema.Integer, "Name": schema.Text, "Age": schema.Integer, "Score": schema.Real, "Joined": schema.Date},
		PrimaryKey:  "id",
		Synthesized: true,
	}
}

func peopleSnapshot() records.Table {
	return records.Table{
		Columns: []string{"id", "Name", "Age", "Score", "Joined"},
		Rows: [][]any{
			{int64(1), "Alice", int64(30), 1.5, "2024-01-15"},
			{int64(2), "Bob", int64(25), nil, "2023-12-01"},
		},
	}
}

func render(t *testing.T, p Page) *goquery.Document {
	t.Helper()
	var buf bytes.Buffer
	if err := Render(&buf, p); err != nil {
		t.Fatalf("Render: %v", err)
	}
	doc, err := goquery.NewDocumentFromReader(&buf)
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return doc
}

func TestWidgetFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		typ  schema.Type
		want Widget
	}{
		{schema.Integer, Widget{Kind: WidgetNumber, InputType: "number", Step: "1"}},
		{schema.Real, Widget{Kind: WidgetNumber, InputType: "number", Step: "any"}},
		{schema.Text, Widget{Kind: WidgetText, InputType: "text"}},
		{schema.Date, Widget{Kind: WidgetDate, InputType: "date"}},
	}
	for _, tt := range tests {
		if got := WidgetFor(tt.typ); got != tt.want {
			t.Fatalf("WidgetFor(%s)=%+v want %+v", tt.typ, got, tt.want)
		}
	}
}

func TestParseTab(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Tab{"": TabView, "EDIT": TabEdit, "delete": TabDelete, "bogus": TabView, "create": TabCreate} {
		if got := ParseTab(in); got != want {
			t.Fatalf("ParseTab(%q)=%q want %q", in, got, want)
		}
	}
}

func TestParseSubmission_CreateValid(t *testing.T) {
	t.Parallel()

	rec, errs := ParseSubmission(peopleSchema(), map[string]string{
		"id": "99", "Name": " Cara ", "Age": "41", "Score": "2.25", "Joined": "2024-02-29",
	}, ModeCreate)
	if errs != nil {
		t.Fatalf("unexpected errors: %v", errs)
	}
	want := records.Record{"Name": "Cara", "Age": int64(41), "Score": 2.25, "Joined": "2024-02-29"}
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Fatalf("record (-want +got):\n%s", diff)
	}
}

func TestParseSubmission_CreateReportsEveryField(t *testing.T) {
	t.Parallel()

	rec, errs := ParseSubmission(peopleSchema(), map[string]string{
		"Name": "Cara", "Age": "forty", "Score": "", "Joined": "2024-13-40",
	}, ModeCreate)
	if rec != nil {
		t.Fatalf("record must not be produced, got %v", rec)
	}
	want := FieldErrors{
		"Age":    "must be a whole number",
		"Score":  "required",
		"Joined": "must be a date (YYYY-MM-DD)",
	}
	if diff := cmp.Diff(want, errs); diff != "" {
		t.Fatalf("errors (-want +got):\n%s", diff)
	}
	if errs.Error() != `Age: must be a whole number; Joined: must be a date (YYYY-MM-DD); Score: required` {
		t.Fatalf("Error()=%q", errs.Error())
	}
}

func TestParseSubmission_NaturalKeyIsAnInput(t *testing.T) {
	t.Parallel()

	s := schema.Schema{
		Columns:    []string{"Code", "Qty"},
		Types:      map[string]schema.Type{"Code": schema.Text, "Qty": schema.Integer},
		PrimaryKey: "Code",
	}
	if diff := cmp.Diff([]string{"Code", "Qty"}, FormColumns(s, ModeCreate)); diff != "" {
		t.Fatalf("create columns (-want +got):\n%s", diff)
	}
	_, errs := ParseSubmission(s, map[string]string{"Qty": "1"}, ModeCreate)
	if errs["Code"] != "required" {
		t.Fatalf("missing natural key must be required, got %v", errs)
	}
}

func TestParseSubmission_EditIsPartial(t *testing.T) {
	t.Parallel()

	rec, errs := ParseSubmission(peopleSchema(), map[string]string{"Age": "31", "id": "7"}, ModeEdit)
	if errs != nil {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if diff := cmp.Diff(records.Record{"Age": int64(31)}, rec); diff != "" {
		t.Fatalf("record (-want +got):\n%s", diff)
	}
}

func TestParseEdit_BlankStaysBlank(t *testing.T) {
	t.Parallel()

	existing := records.Record{"id": int64(1), "Name": "Alice", "Age": int64(30), "Score": nil}
	rec, errs := ParseEdit(peopleSchema(), map[string]string{"Score": "", "Age": "5"}, existing)
	if errs != nil {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if diff := cmp.Diff(records.Record{"Age": int64(5)}, rec); diff != "" {
		t.Fatalf("record (-want +got):\n%s", diff)
	}

	_, errs = ParseEdit(peopleSchema(), map[string]string{"Name": " ", "Score": ""}, existing)
	if diff := cmp.Diff(FieldErrors{"Name": "required"}, errs); diff != "" {
		t.Fatalf("clearing a stored value (-want +got):\n%s", diff)
	}
}

func TestMergeEdit(t *testing.T) {
	t.Parallel()

	existing := records.Record{"id": int64(1), "Name": "Alice", "Age": int64(30)}
	got := MergeEdit(existing, records.Record{"Age": int64(31)})
	if diff := cmp.Diff(records.Record{"id": int64(1), "Name": "Alice", "Age": int64(31)}, got); diff != "" {
		t.Fatalf("merged (-want +got):\n%s", diff)
	}
	if existing["Age"] != int64(30) {
		t.Fatalf("existing record was modified")
	}
}

func TestRender_NoDataShowsOnlyUpload(t *testing.T) {
	t.Parallel()

	doc := render(t, BuildPage(schema.Schema{}, records.Table{}, Interaction{}))
	if doc.Find("form#upload").Length() != 1 {
		t.Fatalf("upload form missing")
	}
	if doc.Find("nav").Length() != 0 || doc.Find("table#records").Length() != 0 {
		t.Fatalf("tabs must not render before an upload")
	}
}

func TestRender_ViewListsSnapshot(t *testing.T) {
	t.Parallel()

	doc := render(t, BuildPage(peopleSchema(), peopleSnapshot(), Interaction{Tab: TabView, Notice: "Loaded 2 rows."}))

	var headers []string
	doc.Find("table#records th").Each(func(_ int, s *goquery.Selection) { headers = append(headers, s.Text()) })
	if diff := cmp.Diff([]string{"id", "Name", "Age", "Score", "Joined"}, headers); diff != "" {
		t.Fatalf("headers (-want +got):\n%s", diff)
	}
	rows := doc.Find("table#records tbody tr")
	if rows.Length() != 2 {
		t.Fatalf("rows=%d want 2", rows.Length())
	}
	if got := rows.Eq(1).Find("td").Eq(3).Text(); got != "" {
		t.Fatalf("null cell rendered as %q", got)
	}
	if key, _ := rows.Eq(0).Attr("data-key"); key != "1" {
		t.Fatalf("data-key=%q want 1", key)
	}
	if doc.Find("nav a.active").Text() != "View" {
		t.Fatalf("active tab=%q", doc.Find("nav a.active").Text())
	}
	if doc.Find("#notice").Text() != "Loaded 2 rows." {
		t.Fatalf("notice missing")
	}
}

func TestRender_CreateSkipsSynthesizedKeyAndKeepsPending(t *testing.T) {
	t.Parallel()

	st := Interaction{
		Tab:         TabCreate,
		Pending:     map[string]string{"Name": "Cara", "Age": "forty"},
		FieldErrors: FieldErrors{"Age": "must be a whole number"},
	}
	doc := render(t, BuildPage(peopleSchema(), peopleSnapshot(), st))

	form := doc.Find("form#create")
	if form.Find(`input[name="id"]`).Length() != 0 {
		t.Fatalf("synthesized key must not be an input")
	}
	if v, _ := form.Find(`input[name="Name"]`).Attr("value"); v != "Cara" {
		t.Fatalf("pending Name=%q", v)
	}
	age := form.Find(`input[name="Age"]`)
	if typ, _ := age.Attr("type"); typ != "number" {
		t.Fatalf("Age input type=%q", typ)
	}
	if step, _ := age.Attr("step"); step != "1" {
		t.Fatalf("Age step=%q", step)
	}
	if typ, _ := form.Find(`input[name="Joined"]`).Attr("type"); typ != "date" {
		t.Fatalf("Joined input type=%q", typ)
	}
	if form.Find(`.field-error[data-field="Age"]`).Text() != "must be a whole number" {
		t.Fatalf("field error missing")
	}
}

func TestRender_EditPrepopulatesSelectedRecord(t *testing.T) {
	t.Parallel()

	doc := render(t, BuildPage(peopleSchema(), peopleSnapshot(), Interaction{Tab: TabEdit, SelectedKey: "2"}))

	form := doc.Find("form#edit")
	if action, _ := form.Attr("action"); action != "/records/2" {
		t.Fatalf("action=%q", action)
	}
	if v, _ := form.Find(`input[name="Name"]`).Attr("value"); v != "Bob" {
		t.Fatalf("Name=%q want Bob", v)
	}
	if v, _ := form.Find(`input[name="Joined"]`).Attr("value"); v != "2023-12-01" {
		t.Fatalf("Joined=%q", v)
	}
	if _, ok := form.Find(`input[name="id"]`).Attr("readonly"); !ok {
		t.Fatalf("key must be read-only")
	}
	if _, ok := form.Find(`input[name="Name"]`).Attr("required"); !ok {
		t.Fatalf("a stored value must stay required")
	}
	if _, ok := form.Find(`input[name="Score"]`).Attr("required"); ok {
		t.Fatalf("an empty stored value must not be required")
	}
	if doc.Find(`select[name="key"] option[selected]`).Text() != "2" {
		t.Fatalf("selector does not mark the chosen key")
	}
}

func TestBuildPage_UnknownSelectedKey(t *testing.T) {
	t.Parallel()

	p := BuildPage(peopleSchema(), peopleSnapshot(), Interaction{Tab: TabEdit, SelectedKey: "42"})
	if p.Edit != nil {
		t.Fatalf("no edit form expected")
	}
	if p.Error != `No record with id "42".` {
		t.Fatalf("Error=%q", p.Error)
	}
}

func TestRender_DeleteNeedsConfirmation(t *testing.T) {
	t.Parallel()

	doc := render(t, BuildPage(peopleSchema(), peopleSnapshot(), Interaction{Tab: TabDelete, SelectedKey: "1"}))
	if doc.Find("form#delete").Length() != 0 {
		t.Fatalf("delete form must wait for confirmation")
	}
	if doc.Find("#ask-confirm").Length() != 1 {
		t.Fatalf("confirmation step missing")
	}

	doc = render(t, BuildPage(peopleSchema(), peopleSnapshot(), Interaction{Tab: TabDelete, SelectedKey: "1", Confirm: true}))
	form := doc.Find("form#delete")
	if action, _ := form.Attr("action"); action != "/records/1/delete" {
		t.Fatalf("action=%q", action)
	}
	if v, _ := form.Find(`input[name="_confirm"]`).Attr("value"); v != "yes" {
		t.Fatalf("_confirm=%q", v)
	}
	if doc.Find("#delete-record dd").First().Text() != "1" {
		t.Fatalf("record not shown on confirmation")
	}
}

func TestRender_KeysAreEscapedInPaths(t *testing.T) {
	t.Parallel()

	s := schema.Schema{
		Columns:    []string{"Code"},
		Types:      map[string]schema.Type{"Code": schema.Text},
		PrimaryKey: "Code",
	}
	snap := records.Table{Columns: []string{"Code"}, Rows: [][]any{{"a/b c"}}}
	doc := render(t, BuildPage(s, snap, Interaction{Tab: TabEdit, SelectedKey: "a/b c"}))
	if action, _ := doc.Find("form#edit").Attr("action"); action != "/records/a%2Fb%20c" {
		t.Fatalf("action=%q", action)
	}
}
