// Package dbx holds the small database abstractions shared by repositories:
// DBTX, satisfied by both *sql.DB and *sql.Tx, and a transaction runner.
package dbx

import (
	"context"
	"database/sql"
)

// DBTX is the subset of database/sql used by the repositories.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxFunc is the unit of work run inside a transaction.
type TxFunc func(ctx context.Context, tx DBTX) error

// Transactor runs a TxFunc atomically.
type Transactor interface {
	WithinTx(ctx context.Context, fn TxFunc) error
}

// WithTx begins a transaction, runs fn with it, then commits on success or
// rolls back on error or panic. Panics are rethrown after rollback.
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn TxFunc) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}

// SQLTransactor is the Transactor backed by a *sql.DB pool.
type SQLTransactor struct {
	DB   *sql.DB
	Opts *sql.TxOptions
}

func NewSQLTransactor(db *sql.DB) *SQLTransactor {
	return &SQLTransactor{DB: db}
}

func (t *SQLTransactor) WithinTx(ctx context.Context, fn TxFunc) error {
	return WithTx(ctx, t.DB, t.Opts, fn)
}
