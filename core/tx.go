package core

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shrek82/jdb/pool"
)

// Tx represents a database transaction on one pooled connection.
// It implements the Executor interface.
type Tx struct {
	db    *DB
	sqlTx *sql.Tx
	lease *pool.Lease
}

// Begin starts a transaction on the pooled connection of w. The caller
// must Commit or Rollback it; until then helpers on w fail with
// pool.ErrWorkerBusy. If the pool closes the connection first, the
// transaction is rolled back.
func (db *DB) Begin(ctx context.Context, w *pool.Worker, opts *sql.TxOptions) (*Tx, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	conn, lease, err := db.pool.Acquire(ctx, w)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	sqlTx, err := conn.BeginTx(lease.Context(), opts)
	db.logSQL("BEGIN", time.Since(start))
	if err != nil {
		lease.Release()
		return nil, err
	}
	return &Tx{db: db, sqlTx: sqlTx, lease: lease}, nil
}

// Transaction executes fn within a transaction on the pooled connection
// of w. The transaction commits when fn returns nil and rolls back when it
// returns an error or panics.
func (db *DB) Transaction(ctx context.Context, w *pool.Worker, fn func(tx *Tx) error) (err error) {
	tx, err := db.Begin(ctx, w, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	err = fn(tx)
	return err
}

// Cursor returns a cursor inside the transaction, for use with OnCursor.
// The caller closes it.
func (tx *Tx) Cursor() *Cursor {
	return tx.db.NewCursor(tx.sqlTx)
}

// Source runs helpers on a fresh cursor inside the transaction.
func (tx *Tx) Source() Source {
	return OnConn(tx.sqlTx)
}

// Commit commits the transaction.
func (tx *Tx) Commit() error {
	start := time.Now()
	err := tx.sqlTx.Commit()
	tx.db.logSQL("COMMIT", time.Since(start))
	if err != nil {
		return fmt.Errorf("transaction commit failed: %w", tx.end(err))
	}
	tx.end(nil)
	return nil
}

// Rollback rolls back the transaction.
func (tx *Tx) Rollback() error {
	start := time.Now()
	err := tx.sqlTx.Rollback()
	tx.db.logSQL("ROLLBACK", time.Since(start))
	if err != nil {
		return fmt.Errorf("transaction rollback failed: %w", tx.end(err))
	}
	tx.end(nil)
	return nil
}

// end gives the connection back to the worker. A revoked lease turns
// err into pool.ErrConnRevoked.
func (tx *Tx) end(err error) error {
	b := binding{lease: tx.lease}
	err = b.wrap(err)
	tx.lease.Release()
	return err
}

// QueryContext executes a query that returns rows, typically a SELECT.
func (tx *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return tx.sqlTx.QueryContext(ctx, query, args...)
}

// ExecContext executes a query that doesn't return rows, such as an INSERT or UPDATE.
func (tx *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return tx.sqlTx.ExecContext(ctx, query, args...)
}
