// Package postgres implements storage.Gateway on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"sheetcrud/internal/schema"
	"sheetcrud/internal/storage"
	"sheetcrud/pkg/records"
)

// Gateway implements storage.Gateway for Postgres.
//
// Bulk loads use COPY inside a transaction; Postgres DDL is transactional,
// so Reload is atomic.
type Gateway struct {
	pool  *pgxpool.Pool
	table string
	bound storage.Binding
}

// New creates a pool for cfg.DSN and checks connectivity.
func New(ctx context.Context, cfg storage.Config) (storage.Gateway, error) {
	table := cfg.Table
	if table == "" {
		table = storage.DefaultTable
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, storage.Wrap(storage.OpOpen, table, storage.Unavailable(err))
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, storage.Wrap(storage.OpOpen, table, storage.Unavailable(err))
	}
	return &Gateway{pool: pool, table: table}, nil
}

// Close closes the connection pool.
func (g *Gateway) Close() { g.pool.Close() }

func (g *Gateway) Table() string { return g.table }

func (g *Gateway) Schema() (schema.Schema, bool) { return g.bound.Get() }

func (g *Gateway) Bind(s schema.Schema) error { return g.bound.Set(s) }

func (g *Gateway) CreateTable(ctx context.Context, s schema.Schema) error {
	if err := s.Validate(); err != nil {
		return storage.Wrap(storage.OpCreateTable, g.table, err)
	}
	err := pgx.BeginFunc(ctx, g.pool, func(tx pgx.Tx) error {
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
		_, err = tx.Exec(ctx, buildCreateTableSQL(g.table, s))
		return err
	})
	if err != nil {
		return storage.Wrap(storage.OpCreateTable, g.table, err)
	}
	return storage.Wrap(storage.OpCreateTable, g.table, g.bound.Set(s))
}

func (g *Gateway) DropTable(ctx context.Context) error {
	if _, err := g.pool.Exec(ctx, buildDropTableSQL(g.table)); err != nil {
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
	err = pgx.BeginFunc(ctx, g.pool, func(tx pgx.Tx) error {
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
	err = pgx.BeginFunc(ctx, g.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, buildDropTableSQL(g.table)); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, buildCreateTableSQL(g.table, s)); err != nil {
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

// load copies rows and, for a synthesized key, resyncs the identity.
func (g *Gateway) load(ctx context.Context, tx pgx.Tx, s schema.Schema, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := tx.CopyFrom(ctx, tableIdent(g.table), s.Columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, classify(err, nil)
	}
	if s.Synthesized {
		if _, err := tx.Exec(ctx, buildResyncIdentitySQL(g.table, s.PrimaryKey), tableIdent(g.table).Sanitize(), s.PrimaryKey); err != nil {
			return 0, fmt.Errorf("resync identity: %w", err)
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
	if err := g.pool.QueryRow(ctx, buildInsertSQL(g.table, s.PrimaryKey, cols), args...).Scan(&got); err != nil {
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

	rows, err := g.pool.Query(ctx, buildSelectAllSQL(g.table, s.PrimaryKey, s.Columns))
	if err != nil {
		return records.Table{}, storage.Wrap(storage.OpReadAll, g.table, err)
	}
	defer rows.Close()

	out := records.Table{Columns: append([]string(nil), s.Columns...)}
	for rows.Next() {
		raw, err := rows.Values()
		if err != nil {
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
	tag, err := g.pool.Exec(ctx, buildUpdateSQL(g.table, s.PrimaryKey, cols), append(args, k)...)
	if err != nil {
		return storage.Wrap(storage.OpUpdate, g.table, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.Wrap(storage.OpUpdate, g.table, fmt.Errorf("%w: %v", storage.ErrNotFound, k))
	}
	return nil
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
	tag, err := g.pool.Exec(ctx, buildDeleteSQL(g.table, s.PrimaryKey), k)
	if err != nil {
		return storage.Wrap(storage.OpDelete, g.table, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.Wrap(storage.OpDelete, g.table, fmt.Errorf("%w: %v", storage.ErrNotFound, k))
	}
	return nil
}

func (g *Gateway) exists(ctx context.Context, keyCol string, k any) error {
	var one int
	err := g.pool.QueryRow(ctx, buildExistsSQL(g.table, keyCol), k).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %v", storage.ErrNotFound, k)
	}
	return err
}

func existingColumns(ctx context.Context, tx pgx.Tx, table string) ([]storage.ColumnInfo, error) {
	sch, name := splitTable(table)
	rows, err := tx.Query(ctx, existingColumnsSQL, sch, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.ColumnInfo
	for rows.Next() {
		var c storage.ColumnInfo
		if err := rows.Scan(&c.Name, &c.Type); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// classify maps unique_violation (SQLSTATE 23505) to storage.ErrDuplicateKey.
func classify(err error, key any) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if key == nil {
			return fmt.Errorf("%w: %s", storage.ErrDuplicateKey, pgErr.Detail)
		}
		return fmt.Errorf("%w: %v", storage.ErrDuplicateKey, key)
	}
	return err
}

var _ storage.Gateway = (*Gateway)(nil)
