package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
)

// DBTX is satisfied by *sql.DB, *sql.Conn and *sql.Tx so repositories can run
// inside or outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx runs fn in a transaction, committing on success and rolling back on
// error or panic.
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

var savepointSeq atomic.Uint64

// Savepoint runs fn inside a SAVEPOINT when q is bound to a single
// connection, rolling back to it if fn fails. On a pooled *sql.DB there is no
// enclosing transaction to protect and fn runs as is.
func Savepoint(ctx context.Context, q DBTX, fn func() error) error {
	switch q.(type) {
	case *sql.Tx, *sql.Conn:
	default:
		return fn()
	}

	name := fmt.Sprintf("sp_%d", savepointSeq.Add(1))
	if _, err := q.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to create savepoint: %w", err)
	}
	if err := fn(); err != nil {
		if _, rbErr := q.ExecContext(ctx, "ROLLBACK TO "+name); rbErr != nil {
			return fmt.Errorf("failed to roll back to savepoint: %w (after %v)", rbErr, err)
		}
		_, _ = q.ExecContext(ctx, "RELEASE "+name)
		return err
	}
	if _, err := q.ExecContext(ctx, "RELEASE "+name); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}
	return nil
}
