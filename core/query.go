package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/shrek82/jdb/pool"
)

// invoke passes call through the middleware chain and runs it on src.
func (db *DB) invoke(ctx context.Context, src Source, call *Call) (*Result, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	call.Borrowed = src.kind == sourceCursor

	next := func(ctx context.Context, call *Call) (*Result, error) {
		return db.run(ctx, src, call)
	}

	db.mu.RLock()
	ms := db.middlewares
	db.mu.RUnlock()
	for i := len(ms) - 1; i >= 0; i-- {
		m, inner := ms[i], next
		next = func(ctx context.Context, call *Call) (*Result, error) {
			return m.Process(ctx, call, inner)
		}
	}
	return next(ctx, call)
}

// run executes call on a cursor resolved from src. An owned cursor is
// closed on return; its close error surfaces only if nothing else failed.
func (db *DB) run(ctx context.Context, src Source, call *Call) (res *Result, err error) {
	b, err := db.bind(ctx, src)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := b.close(); cerr != nil && err == nil {
			res, err = nil, cerr
		}
		err = b.wrap(err)
	}()

	log := db.logger
	if len(call.Fields) > 0 {
		log = log.WithFields(call.Fields)
	}

	if call.Op == OpExecute {
		n, err := b.cur.execute(b.ctx, log, call.SQL, call.Args)
		if err != nil {
			return nil, err
		}
		return &Result{RowsAffected: n}, nil
	}

	if err := b.cur.query(b.ctx, log, call.SQL, call.Args); err != nil {
		return nil, err
	}
	rows, err := b.cur.FetchMany(call.Limit)
	if err != nil {
		return nil, err
	}
	return &Result{Rows: rows}, nil
}

// binding is a cursor resolved from a Source. An owned cursor is closed
// with the binding; a leased connection goes back to its worker.
type binding struct {
	cur   *Cursor
	owned bool
	lease *pool.Lease
	ctx   context.Context
}

// bind resolves src into a cursor. A worker's connection is leased until
// the binding is closed, and statements run with the lease context.
func (db *DB) bind(ctx context.Context, src Source) (*binding, error) {
	switch src.kind {
	case sourceConn:
		if src.conn == nil {
			return nil, ErrInvalidSource
		}
		return &binding{cur: db.NewCursor(src.conn), owned: true, ctx: ctx}, nil
	case sourceCursor:
		if src.cursor == nil {
			return nil, ErrInvalidSource
		}
		return &binding{cur: src.cursor, ctx: ctx}, nil
	case sourceWorker:
		conn, lease, err := db.pool.Acquire(ctx, src.worker)
		if err != nil {
			return nil, err
		}
		return &binding{cur: db.NewCursor(conn), owned: true, lease: lease, ctx: lease.Context()}, nil
	}
	return nil, ErrInvalidSource
}

func (b *binding) close() error {
	var err error
	if b.owned {
		err = b.cur.Close()
	}
	if b.lease != nil {
		b.lease.Release()
	}
	return err
}

// wrap marks err with pool.ErrConnRevoked when the pool closed the
// connection under the binding.
func (b *binding) wrap(err error) error {
	if err == nil || b.lease == nil {
		return err
	}
	rerr := b.lease.Err()
	if rerr == nil || errors.Is(err, rerr) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return rerr
	}
	return fmt.Errorf("%w: %w", rerr, err)
}

// Execute runs a statement and returns the number of affected rows.
func (db *DB) Execute(ctx context.Context, src Source, query string, args ...any) (int64, error) {
	res, err := db.invoke(ctx, src, &Call{Op: OpExecute, SQL: query, Args: args})
	if err != nil {
		return 0, err
	}
	return res.RowsAffected, nil
}

// FetchOne returns the first row of the result, or ErrRecordNotFound.
func (db *DB) FetchOne(ctx context.Context, src Source, query string, args ...any) (*Row, error) {
	res, err := db.invoke(ctx, src, &Call{Op: OpFetchOne, SQL: query, Args: args, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 {
		return nil, ErrRecordNotFound
	}
	return res.Rows[0], nil
}

// FetchAll returns every row of the result.
func (db *DB) FetchAll(ctx context.Context, src Source, query string, args ...any) ([]*Row, error) {
	res, err := db.invoke(ctx, src, &Call{Op: OpFetchAll, SQL: query, Args: args, Limit: Unlimited})
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

// FetchN returns at most n rows of the result. n <= 0 yields no rows.
func (db *DB) FetchN(ctx context.Context, src Source, n int, query string, args ...any) ([]*Row, error) {
	if n < 0 {
		n = 0
	}
	res, err := db.invoke(ctx, src, &Call{Op: OpFetchN, SQL: query, Args: args, Limit: n})
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

// FetchValue returns the first row of the result: the bare value when the
// result has one column, the *Row otherwise. An empty result yields
// ErrRecordNotFound.
func (db *DB) FetchValue(ctx context.Context, src Source, query string, args ...any) (any, error) {
	res, err := db.invoke(ctx, src, &Call{Op: OpFetchValue, SQL: query, Args: args, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 {
		return nil, ErrRecordNotFound
	}
	return scalar(res.Rows[0]), nil
}

// FetchValues returns every row of the result, each reduced to its value
// when the result has one column.
func (db *DB) FetchValues(ctx context.Context, src Source, query string, args ...any) ([]any, error) {
	res, err := db.invoke(ctx, src, &Call{Op: OpFetchValues, SQL: query, Args: args, Limit: Unlimited})
	if err != nil {
		return nil, err
	}
	values := make([]any, len(res.Rows))
	for i, r := range res.Rows {
		values[i] = scalar(r)
	}
	return values, nil
}

// YieldRows streams the rows of the result.
func (db *DB) YieldRows(ctx context.Context, src Source, query string, args ...any) (*Stream[*Row], error) {
	return openStream(ctx, db, src, query, args, func(c *Cursor) (*Row, bool, error) {
		r, err := c.FetchOne()
		return r, r != nil, err
	})
}

// YieldValues streams the rows of the result, each reduced to its value
// when the result has one column.
func (db *DB) YieldValues(ctx context.Context, src Source, query string, args ...any) (*Stream[any], error) {
	return openStream(ctx, db, src, query, args, func(c *Cursor) (any, bool, error) {
		r, err := c.FetchOne()
		if r == nil {
			return nil, false, err
		}
		return scalar(r), true, nil
	})
}

// YieldObjects streams the rows of the result as Objects.
func (db *DB) YieldObjects(ctx context.Context, src Source, query string, args ...any) (*Stream[*Object], error) {
	return openStream(ctx, db, src, query, args, func(c *Cursor) (*Object, bool, error) {
		r, err := c.FetchOne()
		if r == nil {
			return nil, false, err
		}
		return RowObject(r), true, nil
	})
}

// openStream runs query on a cursor resolved from src and wraps it in a
// stream that reads items with fetch.
func openStream[T any](ctx context.Context, db *DB, src Source, query string, args []any, fetch func(*Cursor) (T, bool, error)) (*Stream[T], error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	b, err := db.bind(ctx, src)
	if err != nil {
		return nil, err
	}
	if err := b.cur.query(b.ctx, db.logger, query, args); err != nil {
		_ = b.close()
		return nil, b.wrap(err)
	}
	return newStream(b, fetch), nil
}
