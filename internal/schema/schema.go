package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidSchema is wrapped by Validate failures.
var ErrInvalidSchema = errors.New("invalid schema")

// Schema is the inferred shape of one uploaded sheet.
//
// Columns is ordered and unique. When Synthesized is true, PrimaryKey is an
// auto-incrementing integer column that sits at Columns[0] and is not present
// in the uploaded grid.
type Schema struct {
	Columns        []string        `json:"columns"`
	Types          map[string]Type `json:"types"`
	PrimaryKey     string          `json:"primary_key"`
	Synthesized    bool            `json:"synthesized"`
	DatePreference DatePreference  `json:"date_preference,omitempty"`
}

// Validate checks the structural invariants every consumer relies on.
func (s Schema) Validate() error {
	if len(s.Columns) == 0 {
		return fmt.Errorf("%w: no columns", ErrInvalidSchema)
	}
	seen := make(map[string]struct{}, len(s.Columns))
	for _, c := range s.Columns {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("%w: empty column name", ErrInvalidSchema)
		}
		k := strings.ToLower(c)
		if _, dup := seen[k]; dup {
			return fmt.Errorf("%w: duplicate column %q", ErrInvalidSchema, c)
		}
		seen[k] = struct{}{}
		if _, ok := s.Types[c]; !ok {
			return fmt.Errorf("%w: column %q has no type", ErrInvalidSchema, c)
		}
	}
	if len(s.Types) != len(s.Columns) {
		return fmt.Errorf("%w: %d types for %d columns", ErrInvalidSchema, len(s.Types), len(s.Columns))
	}
	if !s.HasColumn(s.PrimaryKey) {
		return fmt.Errorf("%w: primary key %q is not a column", ErrInvalidSchema, s.PrimaryKey)
	}
	if s.Synthesized {
		if s.Columns[0] != s.PrimaryKey {
			return fmt.Errorf("%w: synthesized key %q must be the first column", ErrInvalidSchema, s.PrimaryKey)
		}
		if s.Types[s.PrimaryKey] != Integer {
			return fmt.Errorf("%w: synthesized key %q must be integer", ErrInvalidSchema, s.PrimaryKey)
		}
	}
	return nil
}

// HasColumn reports whether col is part of the schema (exact match).
func (s Schema) HasColumn(col string) bool {
	for _, c := range s.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// TypeOf returns the declared type of col (Text when unknown).
func (s Schema) TypeOf(col string) Type { return s.Types[col] }

// KeyType is the type of the primary key column.
func (s Schema) KeyType() Type { return s.Types[s.PrimaryKey] }

// DataColumns returns the columns that come from the uploaded grid, i.e.
// every column except a synthesized key.
func (s Schema) DataColumns() []string {
	if !s.Synthesized {
		return append([]string(nil), s.Columns...)
	}
	out := make([]string, 0, len(s.Columns)-1)
	for _, c := range s.Columns {
		if c == s.PrimaryKey {
			continue
		}
		out = append(out, c)
	}
	return out
}

// NonKeyColumns returns every column except the primary key, in order.
func (s Schema) NonKeyColumns() []string {
	out := make([]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		if c != s.PrimaryKey {
			out = append(out, c)
		}
	}
	return out
}

// Coerce converts v for column col, reporting failures as *CoerceError.
func (s Schema) Coerce(col string, v any) (any, error) {
	t, ok := s.Types[col]
	if !ok {
		return nil, fmt.Errorf("schema: unknown column %q", col)
	}
	out, err := t.Coerce(v, s.DatePreference)
	if err != nil {
		return nil, &CoerceError{Column: col, Value: FormatValue(v), Type: t, Err: err}
	}
	return out, nil
}

// CoerceKey converts a key given in any form (usually a URL path segment)
// into the canonical key value.
func (s Schema) CoerceKey(v any) (any, error) {
	k, err := s.Coerce(s.PrimaryKey, v)
	if err != nil {
		return nil, err
	}
	if k == nil {
		return nil, &CoerceError{Column: s.PrimaryKey, Type: s.KeyType(), Err: errors.New("key is empty")}
	}
	return k, nil
}

// Clone returns a deep copy.
func (s Schema) Clone() Schema {
	out := s
	out.Columns = append([]string(nil), s.Columns...)
	out.Types = make(map[string]Type, len(s.Types))
	for k, v := range s.Types {
		out.Types[k] = v
	}
	return out
}
