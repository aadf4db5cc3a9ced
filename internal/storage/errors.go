package storage

import (
	"errors"
	"fmt"
)

// Failure kinds. Match them with errors.Is on any error returned by a Gateway.
var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicateKey      = errors.New("duplicate primary key")
	ErrIncompatibleTable = errors.New("table exists with a different layout")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrImmutableKey      = errors.New("primary key cannot be changed")
	ErrNoTable           = errors.New("no table has been created")
	ErrUnknownColumn     = errors.New("unknown column")
)

// Operation names used in Error.Op.
const (
	OpCreateTable = "create_table"
	OpDropTable   = "drop_table"
	OpBulkLoad    = "bulk_load"
	OpReload      = "reload"
	OpCreate      = "create_record"
	OpReadAll     = "read_all"
	OpUpdate      = "update_record"
	OpDelete      = "delete_record"
	OpOpen        = "open"
)

// Error is a persistence failure for one gateway operation.
type Error struct {
	Op    string
	Table string
	Err   error
}

func (e *Error) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap returns nil for a nil err, otherwise an *Error for op.
func Wrap(op, table string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) && se.Op == op {
		return err
	}
	return &Error{Op: op, Table: table, Err: err}
}

// Unavailable marks err as a connectivity failure.
func Unavailable(err error) error {
	if err == nil || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// RowError attaches a 1-based grid row number to a load failure.
type RowError struct {
	Row int
	Err error
}

func (e *RowError) Error() string { return fmt.Sprintf("row %d: %v", e.Row, e.Err) }

func (e *RowError) Unwrap() error { return e.Err }
