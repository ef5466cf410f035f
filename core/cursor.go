package core

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shrek82/jdb/logger"
)

// Executor defines the interface for executing SQL queries and commands.
// It is implemented by pool.Conn, *sql.Conn, *sql.DB and *sql.Tx.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Cursor runs statements on one executor and walks the current result set.
// A Cursor is not safe for concurrent use.
type Cursor struct {
	db       *DB
	exec     Executor
	rows     *sql.Rows
	columns  []string
	dbTypes  []string
	rowCount int64
	done     bool
	closed   bool
}

// NewCursor returns a cursor on exec. The caller closes it.
func (db *DB) NewCursor(exec Executor) *Cursor {
	return &Cursor{db: db, exec: exec}
}

// Execute runs a statement that returns no rows and reports the number of
// affected rows.
func (c *Cursor) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	return c.execute(ctx, c.db.logger, query, args)
}

// Query runs a statement and makes its rows available to FetchOne and
// FetchMany. Any previous result set is closed first.
func (c *Cursor) Query(ctx context.Context, query string, args ...any) error {
	return c.query(ctx, c.db.logger, query, args)
}

func (c *Cursor) execute(ctx context.Context, log logger.Logger, query string, args []any) (int64, error) {
	if err := c.reset(); err != nil {
		return 0, err
	}
	query = c.db.dialect.Rebind(query)

	start := time.Now()
	res, err := c.exec.ExecContext(ctx, query, args...)
	log.SQL(query, time.Since(start), args...)
	if err != nil {
		log.Error("SQL execution error: %v | SQL: %s | Args: %v", err, query, args)
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	c.rowCount = n
	return n, nil
}

func (c *Cursor) query(ctx context.Context, log logger.Logger, query string, args []any) error {
	if err := c.reset(); err != nil {
		return err
	}
	query = c.db.dialect.Rebind(query)

	start := time.Now()
	rows, err := c.exec.QueryContext(ctx, query, args...)
	log.SQL(query, time.Since(start), args...)
	if err != nil {
		log.Error("SQL execution error: %v | SQL: %s | Args: %v", err, query, args)
		return err
	}

	columns, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return err
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		_ = rows.Close()
		return err
	}
	c.rows = rows
	c.columns = columns
	c.dbTypes = make([]string, len(types))
	for i, ct := range types {
		c.dbTypes[i] = ct.DatabaseTypeName()
	}
	return nil
}

// reset closes the open result set before a new statement.
func (c *Cursor) reset() error {
	if c.closed {
		return ErrCursorClosed
	}
	var err error
	if c.rows != nil {
		err = c.rows.Close()
	}
	c.rows = nil
	c.columns = nil
	c.dbTypes = nil
	c.rowCount = 0
	c.done = false
	return err
}

// Columns returns the column names of the current result set.
func (c *Cursor) Columns() []string {
	return c.columns
}

// RowCount returns the rows affected by the last Execute, or the rows
// fetched so far from the last Query.
func (c *Cursor) RowCount() int64 {
	return c.rowCount
}

// FetchOne returns the next row, or nil once the result set is exhausted.
func (c *Cursor) FetchOne() (*Row, error) {
	ok, err := c.next()
	if err != nil || !ok {
		return nil, err
	}
	return c.scanRow()
}

// FetchMany returns up to n rows; n < 0 fetches the rest of the result set.
func (c *Cursor) FetchMany(n int) ([]*Row, error) {
	var rows []*Row
	for n < 0 || len(rows) < n {
		row, err := c.FetchOne()
		if err != nil {
			return rows, err
		}
		if row == nil {
			break
		}
		rows = append(rows, row)
	}
	if rows == nil {
		rows = []*Row{}
	}
	return rows, nil
}

// next advances to the next row. The result set is released as soon as
// it is exhausted.
func (c *Cursor) next() (bool, error) {
	if c.closed {
		return false, ErrCursorClosed
	}
	if c.rows == nil {
		if c.done {
			return false, nil
		}
		return false, ErrNoResultSet
	}
	if c.rows.Next() {
		c.rowCount++
		return true, nil
	}
	err := c.rows.Err()
	if cerr := c.rows.Close(); err == nil {
		err = cerr
	}
	c.rows = nil
	c.done = true
	return false, err
}

// scanRow reads the row the cursor is positioned on.
func (c *Cursor) scanRow() (*Row, error) {
	values := make([]any, len(c.columns))
	ptrs := make([]any, len(c.columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := c.rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	for i, v := range values {
		values[i] = normalize(v, c.dbTypes[i])
	}
	return &Row{columns: c.columns, values: values, shape: c.db.shape}, nil
}

// Close releases the result set. Closing twice is a no-op.
func (c *Cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.rows == nil {
		return nil
	}
	err := c.rows.Close()
	c.rows = nil
	if errors.Is(err, sql.ErrConnDone) {
		return nil
	}
	return err
}
