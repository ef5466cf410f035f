// Package pool keeps one dedicated database connection per registered worker.
//
// A worker is an explicit handle obtained from Register. The first Get for
// a worker opens a connection; later calls ping and reuse it, replacing it
// transparently when the ping fails. Every Get first sweeps the pool,
// closing connections whose worker has been released (or whose
// registration context is done) and connections idle for longer than the
// configured timeout. Connections held by a Lease are in use: they are
// not idle, Get refuses them, and closing one cancels the lease first.
package pool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/shrek82/jdb/logger"
)

// DefaultIdleTimeout is used when Options.IdleTimeout is not set.
const DefaultIdleTimeout = 600 * time.Second

var (
	// ErrConnectFailed wraps the error of a connection attempt that failed.
	ErrConnectFailed = errors.New("failed to connect")
	// ErrUnknownWorker is returned for a nil worker or one registered with another pool.
	ErrUnknownWorker = errors.New("worker is not registered with this pool")
	// ErrWorkerReleased is returned when a released worker asks for a connection.
	ErrWorkerReleased = errors.New("worker has been released")
	// ErrWorkerBusy is returned when a worker asks for its connection while
	// a result set or transaction still holds it.
	ErrWorkerBusy = errors.New("worker connection is in use")
	// ErrConnRevoked is the cause of a Lease context cancelled because the
	// pool closed the connection under it.
	ErrConnRevoked = errors.New("connection closed by the pool while in use")
)

// Conn is a single database session. *sql.Conn implements it.
type Conn interface {
	PingContext(ctx context.Context) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	Close() error
}

// Connector opens new sessions.
type Connector interface {
	Connect(ctx context.Context) (Conn, error)
}

// StdConnector opens sessions from a *sql.DB. Its idle pool is disabled so
// that closing a Conn ends the session instead of parking it.
type StdConnector struct {
	*sql.DB
}

// NewStdConnector wraps db, disabling its idle connection pool.
func NewStdConnector(db *sql.DB) *StdConnector {
	db.SetMaxIdleConns(0)
	return &StdConnector{db}
}

// Connect pins a fresh session.
func (c *StdConnector) Connect(ctx context.Context) (Conn, error) {
	conn, err := c.DB.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Options configures a Pool.
type Options struct {
	IdleTimeout time.Duration
	Logger      logger.Logger
	// OnFatal is called when a connection cannot be opened. The default
	// exits the process with status 1.
	OnFatal func(err error)
	// Now is the clock used for activity times.
	Now func() time.Time
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Open     int
	Created  int64
	Reused   int64
	Replaced int64
	Evicted  int64
}

type entry struct {
	conn       Conn
	worker     *Worker
	lastActive time.Time
	lease      *Lease
}

// Pool maps workers to their connections. The zero value is not usable;
// use New.
type Pool struct {
	connector Connector
	timeout   time.Duration
	log       logger.Logger
	onFatal   func(err error)
	now       func() time.Time

	mu      sync.Mutex
	entries map[*Worker]*entry

	created  atomic.Int64
	reused   atomic.Int64
	replaced atomic.Int64
	evicted  atomic.Int64
}

// New creates a pool that opens connections through connector.
func New(connector Connector, opts *Options) *Pool {
	p := &Pool{
		connector: connector,
		timeout:   DefaultIdleTimeout,
		log:       logger.NewStdLogger(),
		onFatal:   func(error) { os.Exit(1) },
		now:       time.Now,
		entries:   make(map[*Worker]*entry),
	}
	if opts != nil {
		if opts.IdleTimeout > 0 {
			p.timeout = opts.IdleTimeout
		}
		if opts.Logger != nil {
			p.log = opts.Logger
		}
		if opts.OnFatal != nil {
			p.onFatal = opts.OnFatal
		}
		if opts.Now != nil {
			p.now = opts.Now
		}
	}
	return p
}

// Register returns a new worker handle. The worker stays alive until
// Release is called or ctx is done.
func (p *Pool) Register(ctx context.Context) *Worker {
	if ctx == nil {
		ctx = context.Background()
	}
	w := &Worker{id: uuid.New(), pool: p, ctx: ctx}
	p.log.Debug("registered %s", w)
	return w
}

// Do runs fn with a worker that is released when fn returns.
func (p *Pool) Do(ctx context.Context, fn func(w *Worker) error) error {
	w := p.Register(ctx)
	defer w.Release()
	return fn(w)
}

// Get returns the connection of w, opening one if w has none.
//
// A failure to open a connection is fatal: OnFatal is invoked, and if it
// returns, Get returns an error wrapping ErrConnectFailed. Failures caused
// by ctx being done are returned as ctx.Err() and are never fatal. While
// w holds a Lease, Get returns ErrWorkerBusy.
func (p *Pool) Get(ctx context.Context, w *Worker) (Conn, error) {
	conn, _, err := p.get(ctx, w, false)
	return conn, err
}

// Acquire is Get plus a Lease that marks the connection as in use until
// the lease is released. A leased connection is never evicted as idle, and
// when the pool has to close it anyway (the worker is released or gone,
// or the pool is closed) it first cancels Lease.Context, which ends any
// statement, result set or transaction started with that context.
func (p *Pool) Acquire(ctx context.Context, w *Worker) (Conn, *Lease, error) {
	return p.get(ctx, w, true)
}

func (p *Pool) get(ctx context.Context, w *Worker, lease bool) (Conn, *Lease, error) {
	if w == nil || w.pool != p {
		return nil, nil, ErrUnknownWorker
	}
	if w.released.Load() {
		return nil, nil, ErrWorkerReleased
	}
	if err := w.ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrWorkerReleased, err)
	}

	var victims []*entry
	p.mu.Lock()
	defer func() {
		p.mu.Unlock()
		p.closeAll(victims)
	}()

	now := p.now()
	victims = p.sweep(now)

	e, ok := p.entries[w]
	if ok {
		if e.lease != nil {
			return nil, nil, fmt.Errorf("%w: %s", ErrWorkerBusy, w)
		}
		if err := e.conn.PingContext(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, nil, ctxErr
			}
			p.log.Warn("ping failed for %s: %v", w, err)
			victims = append(victims, &entry{conn: e.conn, worker: w})

			conn, err := p.connect(ctx)
			if err != nil {
				delete(p.entries, w)
				return nil, nil, err
			}
			e.conn = conn
			p.replaced.Add(1)
		} else {
			p.reused.Add(1)
		}
	} else {
		conn, err := p.connect(ctx)
		if err != nil {
			return nil, nil, err
		}
		e = &entry{conn: conn, worker: w}
		p.entries[w] = e
		p.created.Add(1)
		p.log.Debug("new connection for %s", w)
	}

	e.lastActive = now
	if !lease {
		return e.conn, nil, nil
	}
	l := newLease(ctx, p, w, e)
	e.lease = l
	return e.conn, l, nil
}

func (p *Pool) connect(ctx context.Context) (Conn, error) {
	conn, err := p.connector.Connect(ctx)
	if err == nil && conn != nil {
		return conn, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err == nil {
		err = errors.New("connector returned no connection")
	}
	err = fmt.Errorf("%w: %w", ErrConnectFailed, err)
	p.log.Error("%v", err)
	p.onFatal(err)
	return nil, err
}

// sweep removes entries of dead workers and idle entries and returns them
// for closing. Leased entries are in use, so they are never idle.
// The caller holds p.mu.
func (p *Pool) sweep(now time.Time) []*entry {
	var victims []*entry
	deadline := now.Add(-p.timeout)
	for w, e := range p.entries {
		var reason string
		switch {
		case !w.Alive():
			reason = "worker gone"
		case e.lease == nil && e.lastActive.Before(deadline):
			reason = "idle"
		default:
			continue
		}
		p.log.Debug("evicting %s: %s", w, reason)
		delete(p.entries, w)
		p.evicted.Add(1)
		victims = append(victims, e)
	}
	return victims
}

// closeAll revokes the leases of victims and closes their connections.
// It must be called without p.mu: closing a connection waits for its
// open result sets to finish.
func (p *Pool) closeAll(victims []*entry) error {
	var errs []error
	for _, e := range victims {
		if e.lease != nil {
			e.lease.revoke()
		}
		if err := e.conn.Close(); err != nil {
			p.log.Warn("close %s: %v", e.worker, err)
			errs = append(errs, fmt.Errorf("close %s: %w", e.worker, err))
		}
	}
	return errors.Join(errs...)
}

func (p *Pool) release(w *Worker) error {
	p.mu.Lock()
	e, ok := p.entries[w]
	if ok {
		delete(p.entries, w)
	}
	p.mu.Unlock()

	if !ok {
		return nil
	}
	p.log.Debug("released %s", w)
	return p.closeAll([]*entry{e})
}

// Close closes every pooled connection and empties the pool. Workers stay
// usable; their next Get opens a new connection.
func (p *Pool) Close() error {
	p.mu.Lock()
	victims := make([]*entry, 0, len(p.entries))
	for w, e := range p.entries {
		if w.Alive() {
			p.log.Warn("%s is still alive and its database connection is closing", w)
		}
		delete(p.entries, w)
		victims = append(victims, e)
	}
	p.mu.Unlock()

	return p.closeAll(victims)
}

// endLease clears l from its entry and marks the entry active.
func (p *Pool) endLease(l *Lease) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[l.worker]; ok && e == l.entry && e.lease == l {
		e.lease = nil
		e.lastActive = p.now()
	}
}

// Len returns the number of pooled connections.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Stats returns the current counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Open:     p.Len(),
		Created:  p.created.Load(),
		Reused:   p.reused.Load(),
		Replaced: p.replaced.Load(),
		Evicted:  p.evicted.Load(),
	}
}

// IdleTimeout returns the configured idle eviction duration.
func (p *Pool) IdleTimeout() time.Duration {
	return p.timeout
}
