// Package crud generates the four-tab record interface (view, create, edit,
// delete) from a schema and a read-all snapshot.
//
// Everything here is a pure function of its inputs: the caller owns the
// Interaction state and passes it in on every request.
package crud

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"net/url"

	"sheetcrud/internal/schema"
	"sheetcrud/pkg/records"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templateFuncs = template.FuncMap{
	"recordPath": func(key string) string { return "/records/" + url.PathEscape(key) },
	"tabPath":    func(t Tab) string { return "/?tab=" + url.QueryEscape(string(t)) },
	"keySelect": func(tab Tab, keys []string, selected string) keySelect {
		return keySelect{Tab: tab, Keys: keys, Selected: selected}
	},
	"editKey": func(e *EditForm) string {
		if e == nil {
			return ""
		}
		return e.Key
	},
}

type keySelect struct {
	Tab      Tab
	Keys     []string
	Selected string
}

var pageTemplate = template.Must(template.New("page").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.tmpl"))

// TabLink is one entry of the tab bar.
type TabLink struct {
	Tab    Tab
	Label  string
	Active bool
}

// Column is one header of the list view.
type Column struct {
	Name string
	Type string
	Key  bool
}

// Row is one record of the list view, formatted for display.
type Row struct {
	Key   string
	Cells []string
}

// Field is one form input.
type Field struct {
	Name     string
	Type     schema.Type
	Widget   Widget
	Value    string
	Error    string
	Required bool
}

// EditForm is the edit view for one selected record.
type EditForm struct {
	KeyColumn string
	Key       string
	Fields    []Field
}

// Pair is a column/value pair shown on the delete confirmation.
type Pair struct {
	Column string
	Value  string
}

// DeleteForm is the delete view: a key selector and, once a key is chosen,
// a confirmation step showing the record.
type DeleteForm struct {
	Selected string
	Confirm  bool
	Record   []Pair
}

// Page is everything the page template needs.
type Page struct {
	Title   string
	Table   string
	HasData bool

	Tab  Tab
	Tabs []TabLink

	PrimaryKey  string
	Synthesized bool
	Columns     []Column
	Rows        []Row
	Keys        []string

	Create []Field
	Edit   *EditForm
	Delete *DeleteForm

	Notice string
	Error  string

	// Accept and UploadHint describe the upload form.
	Accept     string
	UploadHint string
}

// BuildPage assembles the page for s, the snapshot snap and interaction st.
// An empty schema (nothing uploaded yet) yields a page with only the upload
// form.
func BuildPage(s schema.Schema, snap records.Table, st Interaction) Page {
	p := Page{
		Title:  "Spreadsheet CRUD",
		Tab:    st.Tab,
		Notice: st.Notice,
		Error:  st.Error,
		Accept: ".xlsx,.xls",
	}
	if p.Tab == "" {
		p.Tab = TabView
	}
	for _, t := range Tabs {
		p.Tabs = append(p.Tabs, TabLink{Tab: t, Label: t.Label(), Active: t == p.Tab})
	}
	if len(s.Columns) == 0 {
		return p
	}

	p.HasData = true
	p.PrimaryKey = s.PrimaryKey
	p.Synthesized = s.Synthesized
	for _, c := range s.Columns {
		p.Columns = append(p.Columns, Column{Name: c, Type: s.TypeOf(c).String(), Key: c == s.PrimaryKey})
	}

	keyIdx := snap.ColumnIndex(s.PrimaryKey)
	selected := -1
	for i, r := range snap.Rows {
		row := Row{Cells: make([]string, len(s.Columns))}
		for j, c := range s.Columns {
			if k := snap.ColumnIndex(c); k >= 0 && k < len(r) {
				row.Cells[j] = schema.FormatValue(r[k])
			}
		}
		if keyIdx >= 0 && keyIdx < len(r) {
			row.Key = schema.FormatValue(r[keyIdx])
		}
		if st.SelectedKey != "" && row.Key == st.SelectedKey {
			selected = i
		}
		p.Rows = append(p.Rows, row)
		p.Keys = append(p.Keys, row.Key)
	}

	createPending := st.Pending
	if p.Tab != TabCreate {
		createPending = nil
	}
	p.Create = buildFields(s, FormColumns(s, ModeCreate), nil, createPending, errorsFor(p.Tab, TabCreate, st.FieldErrors))

	switch {
	case st.SelectedKey == "":
	case selected < 0:
		if p.Error == "" {
			p.Error = fmt.Sprintf("No record with %s %q.", s.PrimaryKey, st.SelectedKey)
		}
	default:
		rec := snap.Record(selected)
		if p.Tab == TabEdit {
			p.Edit = &EditForm{
				KeyColumn: s.PrimaryKey,
				Key:       st.SelectedKey,
				Fields:    buildFields(s, FormColumns(s, ModeEdit), rec, st.Pending, st.FieldErrors),
			}
		}
		if p.Tab == TabDelete {
			d := &DeleteForm{Selected: st.SelectedKey, Confirm: st.Confirm}
			for _, c := range s.Columns {
				d.Record = append(d.Record, Pair{Column: c, Value: schema.FormatValue(rec[c])})
			}
			p.Delete = d
		}
	}
	if p.Delete == nil && p.Tab == TabDelete {
		p.Delete = &DeleteForm{}
	}
	return p
}

func errorsFor(active, tab Tab, fe FieldErrors) FieldErrors {
	if active != tab {
		return nil
	}
	return fe
}

func buildFields(s schema.Schema, cols []string, rec records.Record, pending map[string]string, fe FieldErrors) []Field {
	out := make([]Field, 0, len(cols))
	for _, c := range cols {
		t := s.TypeOf(c)
		// An edit may leave a field blank that is already empty.
		required := rec == nil || rec[c] != nil
		f := Field{Name: c, Type: t, Widget: WidgetFor(t), Required: required, Error: fe[c]}
		if v, ok := pending[c]; ok {
			f.Value = v
		} else if rec != nil {
			f.Value = schema.FormatValue(rec[c])
		}
		out = append(out, f)
	}
	return out
}

// Render writes the HTML page for p.
func Render(w io.Writer, p Page) error {
	return pageTemplate.ExecuteTemplate(w, "page", p)
}
