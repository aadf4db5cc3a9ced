package crud

import "strings"

// Tab is one of the four views.
type Tab string

const (
	TabView   Tab = "view"
	TabCreate Tab = "create"
	TabEdit   Tab = "edit"
	TabDelete Tab = "delete"
)

// Tabs lists the views in display order.
var Tabs = []Tab{TabView, TabCreate, TabEdit, TabDelete}

// ParseTab returns the tab named s, defaulting to TabView.
func ParseTab(s string) Tab {
	switch t := Tab(strings.ToLower(strings.TrimSpace(s))); t {
	case TabCreate, TabEdit, TabDelete:
		return t
	default:
		return TabView
	}
}

// Label is the display name of the tab.
func (t Tab) Label() string {
	switch t {
	case TabCreate:
		return "Create"
	case TabEdit:
		return "Edit"
	case TabDelete:
		return "Delete"
	default:
		return "View"
	}
}

// Interaction is the transient per-request UI state. The caller builds it
// from the request and passes it to BuildPage; nothing is kept between
// requests.
type Interaction struct {
	Tab Tab

	// SelectedKey is the record chosen for edit or delete, in display form.
	SelectedKey string

	// Confirm shows the delete confirmation step for SelectedKey.
	Confirm bool

	// Pending holds raw values of a rejected submission so they can be shown
	// again next to their field errors.
	Pending map[string]string

	FieldErrors FieldErrors

	Notice string
	Error  string
}
