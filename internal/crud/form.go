package crud

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"sheetcrud/internal/schema"
	"sheetcrud/pkg/records"
)

// Mode selects which columns a submission carries.
type Mode int

const (
	// ModeCreate expects every column except a synthesized key.
	ModeCreate Mode = iota
	// ModeEdit expects any subset of the non-key columns.
	ModeEdit
)

// FieldErrors maps a column to the message shown next to its input.
type FieldErrors map[string]string

// Columns returns the failing columns in sorted order.
func (fe FieldErrors) Columns() []string {
	out := make([]string, 0, len(fe))
	for c := range fe {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func (fe FieldErrors) Error() string {
	parts := make([]string, 0, len(fe))
	for _, c := range fe.Columns() {
		parts = append(parts, c+": "+fe[c])
	}
	return strings.Join(parts, "; ")
}

// FormColumns returns the columns with an input in mode.
func FormColumns(s schema.Schema, mode Mode) []string {
	if mode == ModeEdit {
		return s.NonKeyColumns()
	}
	if s.Synthesized {
		return s.DataColumns()
	}
	return append([]string(nil), s.Columns...)
}

// ParseSubmission coerces raw form values for mode.
//
// Every form column is mandatory in ModeCreate. In ModeEdit only the columns
// present in raw are parsed, and each present one must be non-blank. Values
// for columns outside the form (including the key in ModeEdit) are ignored.
// On any failure the record is nil and every failing field is reported.
func ParseSubmission(s schema.Schema, raw map[string]string, mode Mode) (records.Record, FieldErrors) {
	rec := make(records.Record)
	errs := make(FieldErrors)

	for _, col := range FormColumns(s, mode) {
		v, present := raw[col]
		if !present && mode == ModeEdit {
			continue
		}
		if strings.TrimSpace(v) == "" {
			errs[col] = "required"
			continue
		}
		out, err := s.Coerce(col, v)
		if err != nil {
			errs[col] = fieldMessage(s.TypeOf(col), err)
			continue
		}
		rec[col] = out
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return rec, nil
}

// ParseEdit parses an edit of existing. A column that is null in existing
// and submitted blank is left unchanged instead of failing as required.
func ParseEdit(s schema.Schema, raw map[string]string, existing records.Record) (records.Record, FieldErrors) {
	kept := make(map[string]string, len(raw))
	for col, v := range raw {
		if strings.TrimSpace(v) == "" && existing[col] == nil {
			continue
		}
		kept[col] = v
	}
	return ParseSubmission(s, kept, ModeEdit)
}

func fieldMessage(t schema.Type, err error) string {
	var ce *schema.CoerceError
	if errors.As(err, &ce) && ce.Err != nil {
		err = ce.Err
	}
	switch t {
	case schema.Integer:
		return "must be a whole number"
	case schema.Real:
		return "must be a number"
	case schema.Date:
		return "must be a date (YYYY-MM-DD)"
	}
	return fmt.Sprint(err)
}

// MergeEdit overlays submitted onto existing and returns a new record.
// Neither input is modified.
func MergeEdit(existing, submitted records.Record) records.Record {
	out := make(records.Record, len(existing)+len(submitted))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range submitted {
		out[k] = v
	}
	return out
}
