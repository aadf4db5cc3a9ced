// Package mssql implements storage.Gateway on Microsoft SQL Server.
package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	mssql "github.com/microsoft/go-mssqldb"

	"sheetcrud/internal/schema"
	"sheetcrud/internal/storage"
	"sheetcrud/pkg/records"
)

// Gateway implements storage.Gateway for SQL Server.
//
// SQL Server DDL is transactional, so Reload drops and recreates the table
// inside the same transaction as the load. A synthesized key is an IDENTITY
// column; bulk loads write 1..N with IDENTITY_INSERT on, which also moves
// the identity seed past the loaded ids.
type Gateway struct {
	db    dbConn
	table string
	bound storage.Binding
}

// New opens cfg.DSN with the "sqlserver" driver and checks connectivity.
func New(ctx context.Context, cfg storage.Config) (storage.Gateway, error) {
	table := cfg.Table
	if table == "" {
		table = storage.DefaultTable
	}
	connector, err := mssql.NewConnector(cfg.DSN)
	if err != nil {
		return nil, storage.Wrap(storage.OpOpen, table, storage.Unavailable(err))
	}
	raw := sql.OpenDB(connector)
	raw.SetMaxOpenConns(16)
	raw.SetMaxIdleConns(16)

	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, storage.Wrap(storage.OpOpen, table, storage.Unavailable(err))
	}
	return &Gateway{db: &sqlDB{db: raw}, table: table}, nil
}

// Close releases database resources held by this gateway.
func (g *Gateway) Close() {
	if g == nil || g.db == nil {
		return
	}
	_ = g.db.Close()
}

func (g *Gateway) Table() string { return g.table }

func (g *Gateway) Schema() (schema.Schema, bool) { return g.bound.Get() }

func (g *Gateway) Bind(s schema.Schema) error { return g.bound.Set(s) }

func (g *Gateway) CreateTable(ctx context.Context, s schema.Schema) error {
	if err := s.Validate(); err != nil {
		return storage.Wrap(storage.OpCreateTable, g.table, err)
	}
	err := g.inTx(ctx, func(tx txConn) error {
		have, err := existingColumns(ctx, tx, g.table)
		if err != nil {
			return err
		}
		if len(have) > 0 {
			if !storage.Compatible(have, wantColumns(s)) {
				return fmt.Errorf("%w: %s", storage.ErrIncompatibleTable, g.table)
			}
			return nil
		}
		_, err = tx.ExecContext(ctx, buildCreateTableSQL(g.table, s))
		return err
	})
	if err != nil {
		return storage.Wrap(storage.OpCreateTable, g.table, err)
	}
	return storage.Wrap(storage.OpCreateTable, g.table, g.bound.Set(s))
}

func (g *Gateway) DropTable(ctx context.Context) error {
	if _, err := g.db.ExecContext(ctx, buildDropTableSQL(g.table)); err != nil {
		return storage.Wrap(storage.OpDropTable, g.table, err)
	}
	g.bound.Clear()
	return nil
}

func (g *Gateway) BulkLoad(ctx context.Context, grid records.Grid, s schema.Schema) (int64, error) {
	rows, err := storage.CoerceGrid(grid, s)
	if err != nil {
		return 0, storage.Wrap(storage.OpBulkLoad, g.table, err)
	}
	var n int64
	err = g.inTx(ctx, func(tx txConn) error {
		var err error
		n, err = g.load(ctx, tx, s, rows)
		return err
	})
	if err != nil {
		return 0, storage.Wrap(storage.OpBulkLoad, g.table, err)
	}
	return n, nil
}

func (g *Gateway) Reload(ctx context.Context, s schema.Schema, grid records.Grid) (int64, error) {
	rows, err := storage.CoerceGrid(grid, s)
	if err != nil {
		return 0, storage.Wrap(storage.OpReload, g.table, err)
	}
	var n int64
	err = g.inTx(ctx, func(tx txConn) error {
		if _, err := tx.ExecContext(ctx, buildDropTableSQL(g.table)); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, buildCreateTableSQL(g.table, s)); err != nil {
			return err
		}
		var err error
		n, err = g.load(ctx, tx, s, rows)
		return err
	})
	if err != nil {
		return 0, storage.Wrap(storage.OpReload, g.table, err)
	}
	if err := g.bound.Set(s); err != nil {
		return 0, storage.Wrap(storage.OpReload, g.table, err)
	}
	return n, nil
}

func (g *Gateway) load(ctx context.Context, tx txConn, s schema.Schema, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if s.Synthesized {
		if _, err := tx.ExecContext(ctx, buildIdentityInsertSQL(g.table, true)); err != nil {
			return 0, err
		}
	}
	var n int64
	for _, chunk := range chunkRows(rows, len(s.Columns)) {
		q, args := buildBulkInsertSQL(g.table, s.Columns, chunk)
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, classify(err, nil)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			affected = int64(len(chunk))
		}
		n += affected
	}
	if s.Synthesized {
		if _, err := tx.ExecContext(ctx, buildIdentityInsertSQL(g.table, false)); err != nil {
			return 0, err
		}
	}
	return n, nil
}

func (g *Gateway) CreateRecord(ctx context.Context, values records.Record) (any, error) {
	s, err := g.bound.Require()
	if err != nil {
		return nil, storage.Wrap(storage.OpCreate, g.table, err)
	}
	cols, args, key, err := storage.InsertValues(s, values)
	if err != nil {
		return nil, storage.Wrap(storage.OpCreate, g.table, err)
	}

	var got any
	if err := g.db.QueryRowContext(ctx, buildInsertSQL(g.table, s.PrimaryKey, cols), args...).Scan(&got); err != nil {
		return nil, storage.Wrap(storage.OpCreate, g.table, classify(err, key))
	}
	k, err := s.CoerceKey(got)
	if err != nil {
		return nil, storage.Wrap(storage.OpCreate, g.table, err)
	}
	return k, nil
}

func (g *Gateway) ReadAll(ctx context.Context) (records.Table, error) {
	s, err := g.bound.Require()
	if err != nil {
		return records.Table{}, storage.Wrap(storage.OpReadAll, g.table, err)
	}

	rows, err := g.db.QueryContext(ctx, buildSelectAllSQL(g.table, s.PrimaryKey, s.Columns))
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

// inTx runs fn in a transaction, committing only when fn succeeds.
func (g *Gateway) inTx(ctx context.Context, fn func(tx txConn) error) error {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (g *Gateway) exists(ctx context.Context, keyCol string, k any) error {
	var n int64
	if err := g.db.QueryRowContext(ctx, buildExistsSQL(g.table, keyCol), k).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %v", storage.ErrNotFound, k)
	}
	return nil
}

func existingColumns(ctx context.Context, tx txConn, table string) ([]storage.ColumnInfo, error) {
	sch, name := splitTable(table)
	var layout sql.NullString
	if err := tx.QueryRowContext(ctx, existingColumnsSQL, sch, name).Scan(&layout); err != nil {
		return nil, err
	}
	return parseColumnLayout(layout.String), nil
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

// classify maps primary key (2627) and unique index (2601) violations to
// storage.ErrDuplicateKey.
func classify(err error, key any) error {
	var me mssql.Error
	if errors.As(err, &me) && (me.Number == 2627 || me.Number == 2601) {
		if key == nil {
			return fmt.Errorf("%w: %s", storage.ErrDuplicateKey, me.Message)
		}
		return fmt.Errorf("%w: %v", storage.ErrDuplicateKey, key)
	}
	return err
}

var _ storage.Gateway = (*Gateway)(nil)
