// Package sqlite implements storage.Gateway on SQLite via the pure-Go
// modernc.org/sqlite driver. It is the default backend.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"sheetcrud/internal/schema"
	"sheetcrud/internal/storage"
	"sheetcrud/pkg/records"
)

// DefaultPath is the database file used when Config.DSN is empty.
const DefaultPath = "data.db"

// Gateway implements storage.Gateway for SQLite.
//
// The handle is limited to a single connection: SQLite serializes writers
// anyway, and ":memory:" databases exist per connection, so a second pooled
// connection would see an empty database.
type Gateway struct {
	db    *sql.DB
	table string
	bound storage.Binding
}

func init() {
	storage.Register("sqlite", New)
}

// New opens (creating if needed) the SQLite database named by cfg.DSN.
func New(ctx context.Context, cfg storage.Config) (storage.Gateway, error) {
	return Open(ctx, cfg)
}

// Open is New with the concrete return type.
func Open(ctx context.Context, cfg storage.Config) (*Gateway, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		dsn = DefaultPath
	}
	table := cfg.Table
	if table == "" {
		table = storage.DefaultTable
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, storage.Wrap(storage.OpOpen, table, storage.Unavailable(err))
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, storage.Wrap(storage.OpOpen, table, storage.Unavailable(err))
	}
	return &Gateway{db: db, table: table}, nil
}

func (g *Gateway) Close() { _ = g.db.Close() }

func (g *Gateway) Table() string { return g.table }

func (g *Gateway) Schema() (schema.Schema, bool) { return g.bound.Get() }

func (g *Gateway) Bind(s schema.Schema) error { return g.bound.Set(s) }

// CreateTable creates the table for s unless an identical one exists.
func (g *Gateway) CreateTable(ctx context.Context, s schema.Schema) error {
	err := g.createTable(ctx, s)
	return storage.Wrap(storage.OpCreateTable, g.table, err)
}

func (g *Gateway) createTable(ctx context.Context, s schema.Schema) error {
	if err := s.Validate(); err != nil {
		return err
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.Unavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	have, err := existingColumns(ctx, tx, g.table)
	if err != nil {
		return err
	}
	if len(have) > 0 {
		if !storage.Compatible(have, wantColumns(s)) {
			return fmt.Errorf("%w: %s", storage.ErrIncompatibleTable, g.table)
		}
	} else if _, err := tx.ExecContext(ctx, buildCreateTableSQL(g.table, s)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	return g.bound.Set(s)
}

// DropTable removes the table if present.
func (g *Gateway) DropTable(ctx context.Context) error {
	if _, err := g.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+sqlIdent(g.table)); err != nil {
		return storage.Wrap(storage.OpDropTable, g.table, err)
	}
	g.bound.Clear()
	return nil
}

// BulkLoad inserts all rows of grid inside one transaction.
func (g *Gateway) BulkLoad(ctx context.Context, grid records.Grid, s schema.Schema) (int64, error) {
	rows, err := storage.CoerceGrid(grid, s)
	if err != nil {
		return 0, storage.Wrap(storage.OpBulkLoad, g.table, err)
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storage.Wrap(storage.OpBulkLoad, g.table, storage.Unavailable(err))
	}
	defer func() { _ = tx.Rollback() }()

	n, err := insertRows(ctx, tx, g.table, s.Columns, rows)
	if err != nil {
		return 0, storage.Wrap(storage.OpBulkLoad, g.table, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, storage.Wrap(storage.OpBulkLoad, g.table, err)
	}
	return n, nil
}

// Reload replaces the table with a fresh one for s holding grid.
// SQLite DDL is transactional, so a failed reload leaves the old table.
func (g *Gateway) Reload(ctx context.Context, s schema.Schema, grid records.Grid) (int64, error) {
	rows, err := storage.CoerceGrid(grid, s)
	if err != nil {
		return 0, storage.Wrap(storage.OpReload, g.table, err)
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storage.Wrap(storage.OpReload, g.table, storage.Unavailable(err))
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+sqlIdent(g.table)); err != nil {
		return 0, storage.Wrap(storage.OpReload, g.table, err)
	}
	if _, err := tx.ExecContext(ctx, buildCreateTableSQL(g.table, s)); err != nil {
		return 0, storage.Wrap(storage.OpReload, g.table, err)
	}
	n, err := insertRows(ctx, tx, g.table, s.Columns, rows)
	if err != nil {
		return 0, storage.Wrap(storage.OpReload, g.table, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, storage.Wrap(storage.OpReload, g.table, err)
	}
	if err := g.bound.Set(s); err != nil {
		return 0, storage.Wrap(storage.OpReload, g.table, err)
	}
	return n, nil
}

// CreateRecord inserts one row. For a synthesized key the assigned rowid is
// returned; otherwise the supplied key.
func (g *Gateway) CreateRecord(ctx context.Context, values records.Record) (any, error) {
	s, err := g.bound.Require()
	if err != nil {
		return nil, storage.Wrap(storage.OpCreate, g.table, err)
	}
	cols, args, key, err := storage.InsertValues(s, values)
	if err != nil {
		return nil, storage.Wrap(storage.OpCreate, g.table, err)
	}

	res, err := g.db.ExecContext(ctx, buildInsertSQL(g.table, cols), args...)
	if err != nil {
		return nil, storage.Wrap(storage.OpCreate, g.table, classify(err, key))
	}
	if !s.Synthesized {
		return key, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, storage.Wrap(storage.OpCreate, g.table, err)
	}
	return id, nil
}

// ReadAll returns every row in rowid order.
func (g *Gateway) ReadAll(ctx context.Context) (records.Table, error) {
	s, err := g.bound.Require()
	if err != nil {
		return records.Table{}, storage.Wrap(storage.OpReadAll, g.table, err)
	}

	rows, err := g.db.QueryContext(ctx, buildSelectAllSQL(g.table, s.Columns))
	if err != nil {
		return records.Table{}, storage.Wrap(storage.OpReadAll, g.table, err)
	}
	defer rows.Close()

	out := records.Table{Columns: append([]string(nil), s.Columns...)}
	for rows.Next() {
		raw := make([]any, len(s.Columns))
		ptrs := make([]any, len(raw))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return records.Table{}, storage.Wrap(storage.OpReadAll, g.table, err)
		}
		vals, err := storage.ScanRow(s, raw)
		if err != nil {
			return records.Table{}, storage.Wrap(storage.OpReadAll, g.table, err)
		}
		out.Rows = append(out.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return records.Table{}, storage.Wrap(storage.OpReadAll, g.table, err)
	}
	return out, nil
}

// UpdateRecord replaces the given non-key columns of the row with key.
func (g *Gateway) UpdateRecord(ctx context.Context, key any, values records.Record) error {
	s, err := g.bound.Require()
	if err != nil {
		return storage.Wrap(storage.OpUpdate, g.table, err)
	}
	cols, args, k, err := storage.UpdateValues(s, key, values)
	if err != nil {
		return storage.Wrap(storage.OpUpdate, g.table, err)
	}

	if len(cols) == 0 {
		return storage.Wrap(storage.OpUpdate, g.table, g.exists(ctx, s.PrimaryKey, k))
	}

	res, err := g.db.ExecContext(ctx, buildUpdateSQL(g.table, s.PrimaryKey, cols), append(args, k)...)
	if err != nil {
		return storage.Wrap(storage.OpUpdate, g.table, err)
	}
	return storage.Wrap(storage.OpUpdate, g.table, requireAffected(res, k))
}

// DeleteRecord removes the row with key.
func (g *Gateway) DeleteRecord(ctx context.Context, key any) error {
	s, err := g.bound.Require()
	if err != nil {
		return storage.Wrap(storage.OpDelete, g.table, err)
	}
	k, err := s.CoerceKey(key)
	if err != nil {
		return storage.Wrap(storage.OpDelete, g.table, err)
	}
	res, err := g.db.ExecContext(ctx, buildDeleteSQL(g.table, s.PrimaryKey), k)
	if err != nil {
		return storage.Wrap(storage.OpDelete, g.table, err)
	}
	return storage.Wrap(storage.OpDelete, g.table, requireAffected(res, k))
}

func (g *Gateway) exists(ctx context.Context, keyCol string, k any) error {
	var one int
	err := g.db.QueryRowContext(ctx, buildExistsSQL(g.table, keyCol), k).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", storage.ErrNotFound, k)
	}
	return err
}

func insertRows(ctx context.Context, tx *sql.Tx, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	stmt, err := tx.PrepareContext(ctx, buildInsertSQL(table, columns))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	var n int64
	for i, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return n, &storage.RowError{Row: i + 1, Err: classify(err, nil)}
		}
		n++
	}
	return n, nil
}

// existingColumns reads the declared layout of table; empty when the table
// does not exist.
func existingColumns(ctx context.Context, tx *sql.Tx, table string) ([]storage.ColumnInfo, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", sqlIdent(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.ColumnInfo
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		out = append(out, storage.ColumnInfo{Name: name, Type: typ})
	}
	return out, rows.Err()
}

func requireAffected(res sql.Result, k any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %v", storage.ErrNotFound, k)
	}
	return nil
}

// classify maps primary key and unique constraint violations to
// storage.ErrDuplicateKey.
func classify(err error, key any) error {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err
	}
	dup := false
	switch code := se.Code(); {
	case code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, code == sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		dup = true
	case code&0xff == sqlite3.SQLITE_CONSTRAINT:
		// Extended result codes off: fall back to the message.
		dup = strings.Contains(se.Error(), "UNIQUE constraint failed")
	}
	if !dup {
		return err
	}
	if key == nil {
		return fmt.Errorf("%w: %v", storage.ErrDuplicateKey, err)
	}
	return fmt.Errorf("%w: %v", storage.ErrDuplicateKey, key)
}

var _ storage.Gateway = (*Gateway)(nil)
