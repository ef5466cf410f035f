package pool

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
)

// Worker identifies one unit of work that owns at most one pooled
// connection. A Worker must not be used from two goroutines at once.
type Worker struct {
	id       uuid.UUID
	pool     *Pool
	ctx      context.Context
	released atomic.Bool
}

// ID returns the worker's unique id.
func (w *Worker) ID() uuid.UUID {
	return w.id
}

func (w *Worker) String() string {
	return "worker-" + w.id.String()[:8]
}

// Alive reports whether the worker is neither released nor cancelled.
func (w *Worker) Alive() bool {
	return !w.released.Load() && w.ctx.Err() == nil
}

// Release deregisters the worker and closes its connection, if any.
// Calling Release more than once is a no-op.
func (w *Worker) Release() error {
	if w.released.Swap(true) {
		return nil
	}
	return w.pool.release(w)
}
