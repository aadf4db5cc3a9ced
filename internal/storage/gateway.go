// Package storage defines the persistence gateway: one table in one
// relational store, bound to an inferred schema, with create/read/update/
// delete over its rows.
//
// Backends live in subpackages and register themselves from init(); import
// sheetcrud/internal/storage/all to link every backend.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"sheetcrud/internal/schema"
	"sheetcrud/pkg/records"
)

// DefaultTable is the table name used when none is configured.
const DefaultTable = "data"

// Config is the minimal configuration needed to open a gateway.
//
// Edge cases:
//   - Kind must match a registered backend kind.
//   - DSN is passed to the backend as-is; for sqlite it is a file path or
//     ":memory:".
//   - Table defaults to DefaultTable. Postgres and SQL Server accept a
//     schema-qualified name ("public.data", "dbo.data").
type Config struct {
	Kind  string
	DSN   string
	Table string
}

// Gateway binds one table in one store for the life of the process.
//
// Every mutating call commits before it returns. Operations that need the
// column layout (CreateRecord, ReadAll, UpdateRecord, DeleteRecord) fail
// with ErrNoTable until a schema is bound by CreateTable, Reload or Bind.
type Gateway interface {
	// Close releases the store connection. Call once at shutdown.
	Close()

	// Table returns the bound table name.
	Table() string

	// Schema returns the bound schema, if any.
	Schema() (schema.Schema, bool)

	// Bind attaches s without touching the store.
	Bind(s schema.Schema) error

	// CreateTable creates the table for s and binds it. An existing table
	// with the same layout is kept; a different layout fails with
	// ErrIncompatibleTable.
	CreateTable(ctx context.Context, s schema.Schema) error

	// DropTable removes the table if it exists and unbinds the schema.
	DropTable(ctx context.Context) error

	// BulkLoad inserts every grid row in one transaction. A synthesized key
	// is numbered 1..N in row order. Any failure rolls back the whole load.
	BulkLoad(ctx context.Context, g records.Grid, s schema.Schema) (int64, error)

	// Reload drops, recreates and loads the table in one transaction, then
	// binds s. On failure the previous table is left as it was.
	Reload(ctx context.Context, s schema.Schema, g records.Grid) (int64, error)

	// CreateRecord inserts one row and returns its key.
	CreateRecord(ctx context.Context, values records.Record) (any, error)

	// ReadAll returns every row in a stable order, columns in schema order.
	ReadAll(ctx context.Context) (records.Table, error)

	// UpdateRecord replaces the non-key columns present in values.
	UpdateRecord(ctx context.Context, key any, values records.Record) error

	// DeleteRecord removes the row with the given key.
	DeleteRecord(ctx context.Context, key any) error
}

// Factory opens a gateway for cfg.
type Factory func(ctx context.Context, cfg Config) (Gateway, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a backend under a kind (e.g. "sqlite", "postgres").
//
// When to use:
//   - Call Register from an init() function in a backend package.
//
// Panics:
//   - If kind is empty, f is nil, or kind is already registered.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// Kinds lists the registered backend kinds in sorted order.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New constructs a Gateway using the registered backend factory.
//
// Errors:
//   - cfg.Kind empty or not registered.
//   - Whatever the factory returns; connection failures are wrapped with
//     ErrStoreUnavailable by the backends.
func New(ctx context.Context, cfg Config) (Gateway, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing Kind")
	}
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
