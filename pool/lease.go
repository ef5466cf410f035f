package pool

import (
	"context"
	"errors"
	"sync"
)

// Lease marks a worker's connection as in use. It is returned by Acquire and
// must be released once the statement, result set or transaction using the
// connection is finished.
type Lease struct {
	pool   *Pool
	worker *Worker
	entry  *entry
	ctx    context.Context
	cancel context.CancelCauseFunc
	once   sync.Once
}

func newLease(ctx context.Context, p *Pool, w *Worker, e *entry) *Lease {
	lctx, cancel := context.WithCancelCause(ctx)
	return &Lease{pool: p, worker: w, entry: e, ctx: lctx, cancel: cancel}
}

// Context is done when the lease is released or revoked, or when the
// context passed to Acquire is done. Work on the leased connection should
// run with it.
func (l *Lease) Context() context.Context {
	return l.ctx
}

// Worker returns the worker owning the connection.
func (l *Lease) Worker() *Worker {
	return l.worker
}

// Err returns ErrConnRevoked once the pool has closed the connection under
// the lease, and nil otherwise.
func (l *Lease) Err() error {
	if errors.Is(context.Cause(l.ctx), ErrConnRevoked) {
		return ErrConnRevoked
	}
	return nil
}

// Release gives the connection back to its worker. It is safe to call more
// than once.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.pool.endLease(l)
		l.cancel(nil)
	})
}

func (l *Lease) revoke() {
	l.pool.log.Warn("%s: closing a connection that is still in use", l.worker)
	l.cancel(ErrConnRevoked)
}
