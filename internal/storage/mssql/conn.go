package mssql

import (
	"context"
	"database/sql"
)

// dbConn is a small interface over *sql.DB used to make this package testable.
type dbConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) rowScanner
	BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error)
	Close() error
}

// txConn is a small interface over *sql.Tx.
type txConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) rowScanner
	Commit() error
	Rollback() error
}

// rowScanner is a narrow adapter over *sql.Row.Scan.
type rowScanner interface {
	Scan(dest ...any) error
}

type sqlDB struct {
	db *sql.DB
}

func (s *sqlDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

func (s *sqlDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

func (s *sqlDB) QueryRowContext(ctx context.Context, query string, args ...any) rowScanner {
	return s.db.QueryRowContext(ctx, query, args...)
}

func (s *sqlDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error) {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &sqlTx{tx: tx}, nil
}

func (s *sqlDB) Close() error { return s.db.Close() }

type sqlTx struct {
	tx *sql.Tx
}

func (s *sqlTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.tx.ExecContext(ctx, query, args...)
}

func (s *sqlTx) QueryRowContext(ctx context.Context, query string, args ...any) rowScanner {
	return s.tx.QueryRowContext(ctx, query, args...)
}

func (s *sqlTx) Commit() error { return s.tx.Commit() }

func (s *sqlTx) Rollback() error { return s.tx.Rollback() }

var (
	_ dbConn = (*sqlDB)(nil)
	_ txConn = (*sqlTx)(nil)
)
