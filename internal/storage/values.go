package storage

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"sheetcrud/internal/schema"
	"sheetcrud/pkg/records"
)

// Binding holds the schema a gateway is bound to. Safe for concurrent use.
type Binding struct {
	mu sync.RWMutex
	s  *schema.Schema
}

// Get returns the bound schema.
func (b *Binding) Get() (schema.Schema, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.s == nil {
		return schema.Schema{}, false
	}
	return b.s.Clone(), true
}

// Set validates and binds s.
func (b *Binding) Set(s schema.Schema) error {
	if err := s.Validate(); err != nil {
		return err
	}
	c := s.Clone()
	b.mu.Lock()
	b.s = &c
	b.mu.Unlock()
	return nil
}

// Clear unbinds the schema.
func (b *Binding) Clear() {
	b.mu.Lock()
	b.s = nil
	b.mu.Unlock()
}

// Require returns the bound schema or ErrNoTable.
func (b *Binding) Require() (schema.Schema, error) {
	s, ok := b.Get()
	if !ok {
		return schema.Schema{}, ErrNoTable
	}
	return s, nil
}

// CoerceGrid converts grid cells into typed rows in schema column order.
//
// g.Columns must equal s.DataColumns(). A synthesized key is filled with
// 1..N in row order. Failures are *RowError wrapping *schema.CoerceError.
func CoerceGrid(g records.Grid, s schema.Schema) ([][]any, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if !slices.Equal(g.Columns, s.DataColumns()) {
		return nil, fmt.Errorf("grid columns %v do not match schema columns %v", g.Columns, s.DataColumns())
	}

	offset := 0
	if s.Synthesized {
		offset = 1
	}

	out := make([][]any, len(g.Rows))
	for i := range g.Rows {
		row := make([]any, len(s.Columns))
		if s.Synthesized {
			row[0] = int64(i + 1)
		}
		for j, col := range g.Columns {
			v, err := s.Coerce(col, g.Cell(i, j))
			if err != nil {
				return nil, &RowError{Row: i + 1, Err: err}
			}
			row[offset+j] = v
		}
		if !s.Synthesized {
			k := row[slices.Index(s.Columns, s.PrimaryKey)]
			if k == nil {
				return nil, &RowError{Row: i + 1, Err: &schema.CoerceError{
					Column: s.PrimaryKey, Type: s.KeyType(), Err: errors.New("key is empty"),
				}}
			}
		}
		out[i] = row
	}
	return out, nil
}

// InsertValues coerces values for a new row.
//
// A synthesized key in values is ignored (the store assigns it). A natural
// key is required. Columns absent from values are omitted and stored as NULL.
// key is the coerced natural key, or nil for a synthesized key.
func InsertValues(s schema.Schema, values records.Record) (cols []string, args []any, key any, err error) {
	if err := checkColumns(s, values); err != nil {
		return nil, nil, nil, err
	}
	for _, c := range s.Columns {
		if s.Synthesized && c == s.PrimaryKey {
			continue
		}
		raw, ok := values[c]
		if !ok && c != s.PrimaryKey {
			continue
		}
		v, err := s.Coerce(c, raw)
		if err != nil {
			return nil, nil, nil, err
		}
		if c == s.PrimaryKey {
			if v == nil {
				return nil, nil, nil, &schema.CoerceError{Column: c, Type: s.KeyType(), Err: errors.New("key is required")}
			}
			key = v
		}
		cols = append(cols, c)
		args = append(args, v)
	}
	return cols, args, key, nil
}

// UpdateValues coerces the non-key columns present in values.
//
// A key column in values must equal key (after coercion), otherwise
// ErrImmutableKey. The returned key is the coerced form of key.
func UpdateValues(s schema.Schema, key any, values records.Record) (cols []string, args []any, k any, err error) {
	k, err = s.CoerceKey(key)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := checkColumns(s, values); err != nil {
		return nil, nil, nil, err
	}
	if raw, ok := values[s.PrimaryKey]; ok {
		nk, err := s.Coerce(s.PrimaryKey, raw)
		if err != nil {
			return nil, nil, nil, err
		}
		if nk != nil && NormalizeKey(nk) != NormalizeKey(k) {
			return nil, nil, nil, fmt.Errorf("%w: %v -> %v", ErrImmutableKey, k, nk)
		}
	}
	for _, c := range s.NonKeyColumns() {
		raw, ok := values[c]
		if !ok {
			continue
		}
		v, err := s.Coerce(c, raw)
		if err != nil {
			return nil, nil, nil, err
		}
		cols = append(cols, c)
		args = append(args, v)
	}
	return cols, args, k, nil
}

func checkColumns(s schema.Schema, values records.Record) error {
	for c := range values {
		if !s.HasColumn(c) {
			return fmt.Errorf("%w: %q", ErrUnknownColumn, c)
		}
	}
	return nil
}

// ScanRow normalizes driver values read back from the store.
func ScanRow(s schema.Schema, raw []any) ([]any, error) {
	out := make([]any, len(s.Columns))
	for i, c := range s.Columns {
		if i >= len(raw) {
			break
		}
		v, err := s.Coerce(c, raw[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// ColumnInfo describes one column of an existing table.
type ColumnInfo struct {
	Name string
	Type string
}

// Compatible reports whether an existing table layout matches want. Names
// compare case-insensitively and in order; types compare on their base name
// ("NVARCHAR(MAX)" matches "nvarchar") when both sides carry one.
func Compatible(have, want []ColumnInfo) bool {
	if len(have) != len(want) {
		return false
	}
	for i := range have {
		if !strings.EqualFold(have[i].Name, want[i].Name) {
			return false
		}
		ht, wt := baseType(have[i].Type), baseType(want[i].Type)
		if ht != "" && wt != "" && ht != wt {
			return false
		}
	}
	return true
}

func baseType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	return t
}
