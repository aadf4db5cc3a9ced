package crud

import "sheetcrud/internal/schema"

// WidgetKind is the kind of input rendered for a column.
type WidgetKind string

const (
	WidgetNumber WidgetKind = "number"
	WidgetText   WidgetKind = "text"
	WidgetDate   WidgetKind = "date"
)

// Widget describes one form input.
type Widget struct {
	Kind WidgetKind
	// InputType is the HTML input type attribute.
	InputType string
	// Step is the HTML step attribute for numeric inputs.
	Step string
}

// WidgetFor maps a semantic type to its form input.
func WidgetFor(t schema.Type) Widget {
	switch t {
	case schema.Integer:
		return Widget{Kind: WidgetNumber, InputType: "number", Step: "1"}
	case schema.Real:
		return Widget{Kind: WidgetNumber, InputType: "number", Step: "any"}
	case schema.Date:
		return Widget{Kind: WidgetDate, InputType: "date"}
	default:
		return Widget{Kind: WidgetText, InputType: "text"}
	}
}
