package pool

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/shrek82/jdb/logger"
)

type fakeConn struct {
	id      int
	pingErr error
	closed  atomic.Bool
	// held blocks Close, like an open result set blocks sql.Conn.Close
	held <-chan struct{}
}

func (c *fakeConn) PingContext(ctx context.Context) error {
	if c.closed.Load() {
		return errors.New("connection closed")
	}
	return c.pingErr
}

func (c *fakeConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return nil, errors.New("not implemented")
}

func (c *fakeConn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return nil, errors.New("not implemented")
}

func (c *fakeConn) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return nil, errors.New("not implemented")
}

func (c *fakeConn) Close() error {
	if c.held != nil {
		<-c.held
	}
	c.closed.Store(true)
	return nil
}

type fakeConnector struct {
	mu    sync.Mutex
	conns []*fakeConn
	fail  error
}

func (f *fakeConnector) Connect(ctx context.Context) (Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	c := &fakeConn{id: len(f.conns) + 1}
	f.conns = append(f.conns, c)
	return c, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestPool(t *testing.T, timeout time.Duration) (*Pool, *fakeConnector, *clock) {
	t.Helper()
	fc := &fakeConnector{}
	clk := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	p := New(fc, &Options{
		IdleTimeout: timeout,
		Logger:      logger.Discard(),
		Now:         clk.Now,
		OnFatal:     func(err error) { t.Logf("fatal: %v", err) },
	})
	return p, fc, clk
}

func TestGetReusesConnection(t *testing.T) {
	p, fc, _ := newTestPool(t, time.Minute)
	ctx := context.Background()
	w := p.Register(ctx)

	c1, err := p.Get(ctx, w)
	require.NoError(t, err)
	c2, err := p.Get(ctx, w)
	require.NoError(t, err)

	assert.Same(t, c1, c2)
	assert.Len(t, fc.conns, 1)
	assert.Equal(t, Stats{Open: 1, Created: 1, Reused: 1}, p.Stats())
}

func TestWorkersGetDistinctConnections(t *testing.T) {
	p, fc, _ := newTestPool(t, time.Minute)
	ctx := context.Background()

	const workers = 8
	got := make([]Conn, workers)
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			w := p.Register(ctx)
			c, err := p.Get(ctx, w)
			got[i] = c
			return err
		})
	}
	require.NoError(t, g.Wait())

	seen := make(map[Conn]bool)
	for _, c := range got {
		assert.False(t, seen[c], "connection handed to two workers")
		seen[c] = true
	}
	assert.Len(t, fc.conns, workers)
	assert.Equal(t, workers, p.Len())
}

func TestIdleConnectionsAreEvicted(t *testing.T) {
	p, fc, clk := newTestPool(t, 10*time.Second)
	ctx := context.Background()
	idle := p.Register(ctx)
	busy := p.Register(ctx)

	_, err := p.Get(ctx, idle)
	require.NoError(t, err)

	clk.Advance(11 * time.Second)
	_, err = p.Get(ctx, busy)
	require.NoError(t, err)

	assert.True(t, fc.conns[0].closed.Load(), "idle connection should be closed")
	assert.Equal(t, 1, p.Len())
	assert.EqualValues(t, 1, p.Stats().Evicted)

	// exactly at the deadline is not yet idle
	clk.Advance(10 * time.Second)
	_, err = p.Get(ctx, idle)
	require.NoError(t, err)
	assert.False(t, fc.conns[1].closed.Load())
	assert.Equal(t, 2, p.Len())
}

func TestCallerIdleConnectionIsReplaced(t *testing.T) {
	p, fc, clk := newTestPool(t, time.Second)
	ctx := context.Background()
	w := p.Register(ctx)

	c1, err := p.Get(ctx, w)
	require.NoError(t, err)
	clk.Advance(2 * time.Second)
	c2, err := p.Get(ctx, w)
	require.NoError(t, err)

	assert.NotSame(t, c1, c2)
	assert.True(t, fc.conns[0].closed.Load())
}

func TestReleasedWorkerIsEvicted(t *testing.T) {
	p, fc, _ := newTestPool(t, time.Minute)
	ctx := context.Background()

	w := p.Register(ctx)
	_, err := p.Get(ctx, w)
	require.NoError(t, err)

	require.NoError(t, w.Release())
	assert.True(t, fc.conns[0].closed.Load())
	assert.Equal(t, 0, p.Len())
	assert.NoError(t, w.Release())

	_, err = p.Get(ctx, w)
	assert.ErrorIs(t, err, ErrWorkerReleased)
}

func TestCancelledWorkerIsSwept(t *testing.T) {
	p, fc, _ := newTestPool(t, time.Minute)
	wctx, cancel := context.WithCancel(context.Background())
	gone := p.Register(wctx)
	_, err := p.Get(context.Background(), gone)
	require.NoError(t, err)

	cancel()
	other := p.Register(context.Background())
	_, err = p.Get(context.Background(), other)
	require.NoError(t, err)

	assert.True(t, fc.conns[0].closed.Load())
	assert.Equal(t, 1, p.Len())

	_, err = p.Get(context.Background(), gone)
	assert.ErrorIs(t, err, ErrWorkerReleased)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFailedPingReplacesConnection(t *testing.T) {
	p, fc, _ := newTestPool(t, time.Minute)
	ctx := context.Background()
	w := p.Register(ctx)

	c1, err := p.Get(ctx, w)
	require.NoError(t, err)
	fc.conns[0].pingErr = errors.New("server has gone away")

	c2, err := p.Get(ctx, w)
	require.NoError(t, err)
	assert.NotSame(t, c1, c2)
	assert.True(t, fc.conns[0].closed.Load())
	assert.EqualValues(t, 1, p.Stats().Replaced)

	c3, err := p.Get(ctx, w)
	require.NoError(t, err)
	assert.Same(t, c2, c3)
}

func TestConnectFailureIsFatal(t *testing.T) {
	fc := &fakeConnector{fail: errors.New("access denied")}
	var fatal error
	p := New(fc, &Options{
		Logger:  logger.Discard(),
		OnFatal: func(err error) { fatal = err },
	})
	ctx := context.Background()

	c, err := p.Get(ctx, p.Register(ctx))
	assert.Nil(t, c)
	assert.ErrorIs(t, err, ErrConnectFailed)
	assert.ErrorIs(t, fatal, ErrConnectFailed)
	assert.ErrorContains(t, fatal, "access denied")
	assert.Equal(t, 0, p.Len())
}

func TestCancelledContextIsNotFatal(t *testing.T) {
	fc := &fakeConnector{fail: context.Canceled}
	p := New(fc, &Options{
		Logger:  logger.Discard(),
		OnFatal: func(err error) { t.Fatalf("unexpected fatal: %v", err) },
	})
	ctx, cancel := context.WithCancel(context.Background())
	w := p.Register(context.Background())
	cancel()

	_, err := p.Get(ctx, w)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCloseClearsPool(t *testing.T) {
	p, fc, _ := newTestPool(t, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := p.Get(ctx, p.Register(ctx))
		require.NoError(t, err)
	}
	require.NoError(t, p.Close())

	assert.Equal(t, 0, p.Len())
	for _, c := range fc.conns {
		assert.True(t, c.closed.Load())
	}
}

func TestForeignWorker(t *testing.T) {
	p1, _, _ := newTestPool(t, time.Minute)
	p2, _, _ := newTestPool(t, time.Minute)
	ctx := context.Background()

	_, err := p1.Get(ctx, p2.Register(ctx))
	assert.ErrorIs(t, err, ErrUnknownWorker)
	_, err = p1.Get(ctx, nil)
	assert.ErrorIs(t, err, ErrUnknownWorker)
}

func TestDoReleasesWorker(t *testing.T) {
	p, fc, _ := newTestPool(t, time.Minute)
	ctx := context.Background()

	err := p.Do(ctx, func(w *Worker) error {
		_, err := p.Get(ctx, w)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 0, p.Len())
	assert.True(t, fc.conns[0].closed.Load())
}

// within fails the test if fn does not return in d.
func within(t *testing.T, d time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("blocked for more than %v", d)
	}
}

func TestLeasedWorkerIsBusy(t *testing.T) {
	p, fc, _ := newTestPool(t, time.Minute)
	ctx := context.Background()
	w := p.Register(ctx)

	c1, lease, err := p.Acquire(ctx, w)
	require.NoError(t, err)
	assert.Same(t, w, lease.Worker())

	_, err = p.Get(ctx, w)
	assert.ErrorIs(t, err, ErrWorkerBusy)
	_, _, err = p.Acquire(ctx, w)
	assert.ErrorIs(t, err, ErrWorkerBusy)

	lease.Release()
	lease.Release()
	assert.Error(t, lease.Context().Err())
	assert.NoError(t, lease.Err())

	c2, err := p.Get(ctx, w)
	require.NoError(t, err)
	assert.Same(t, c1, c2)
	assert.Len(t, fc.conns, 1)
}

func TestLeasedConnectionIsNotIdle(t *testing.T) {
	p, fc, clk := newTestPool(t, time.Minute)
	ctx := context.Background()
	w := p.Register(ctx)
	other := p.Register(ctx)

	_, lease, err := p.Acquire(ctx, w)
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)
	_, err = p.Get(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Len())
	assert.False(t, fc.conns[0].closed.Load())
	assert.NoError(t, lease.Context().Err())

	// idle time counts from the release
	clk.Advance(30 * time.Second)
	lease.Release()
	clk.Advance(45 * time.Second)
	_, err = p.Get(ctx, other)
	require.NoError(t, err)
	assert.False(t, fc.conns[0].closed.Load())

	clk.Advance(time.Minute)
	_, err = p.Get(ctx, other)
	require.NoError(t, err)
	assert.True(t, fc.conns[0].closed.Load())
}

func TestReleaseRevokesLease(t *testing.T) {
	p, _, _ := newTestPool(t, time.Minute)
	ctx := context.Background()
	w := p.Register(ctx)

	conn, lease, err := p.Acquire(ctx, w)
	require.NoError(t, err)
	c := conn.(*fakeConn)
	c.held = lease.Context().Done()

	within(t, 3*time.Second, func() { assert.NoError(t, w.Release()) })
	assert.True(t, c.closed.Load())
	assert.ErrorIs(t, lease.Err(), ErrConnRevoked)
	assert.ErrorIs(t, context.Cause(lease.Context()), ErrConnRevoked)
	lease.Release()
	assert.Equal(t, 0, p.Len())
}

func TestCloseRevokesLeases(t *testing.T) {
	p, _, _ := newTestPool(t, time.Minute)
	ctx := context.Background()
	w := p.Register(ctx)

	conn, lease, err := p.Acquire(ctx, w)
	require.NoError(t, err)
	conn.(*fakeConn).held = lease.Context().Done()

	within(t, 3*time.Second, func() { assert.NoError(t, p.Close()) })
	assert.ErrorIs(t, lease.Err(), ErrConnRevoked)

	// the worker gets a fresh connection once its lease is gone
	lease.Release()
	c, err := p.Get(ctx, w)
	require.NoError(t, err)
	assert.NotSame(t, conn, c)
}

func TestSweepRevokesLeaseOfDeadWorker(t *testing.T) {
	p, _, _ := newTestPool(t, time.Minute)
	wctx, cancel := context.WithCancel(context.Background())
	w := p.Register(wctx)

	conn, lease, err := p.Acquire(context.Background(), w)
	require.NoError(t, err)
	conn.(*fakeConn).held = lease.Context().Done()
	cancel()

	within(t, 3*time.Second, func() {
		_, err := p.Get(context.Background(), p.Register(context.Background()))
		assert.NoError(t, err)
	})
	assert.ErrorIs(t, lease.Err(), ErrConnRevoked)
	assert.Equal(t, 1, p.Len())
}

func TestSlowCloseDoesNotBlockPool(t *testing.T) {
	p, _, _ := newTestPool(t, time.Minute)
	ctx := context.Background()
	w := p.Register(ctx)

	conn, err := p.Get(ctx, w)
	require.NoError(t, err)
	unblock := make(chan struct{})
	conn.(*fakeConn).held = unblock

	released := make(chan error, 1)
	go func() { released <- w.Release() }()

	within(t, 3*time.Second, func() {
		assert.Eventually(t, func() bool { return p.Len() == 0 }, time.Second, 5*time.Millisecond)
		_, err := p.Get(ctx, p.Register(ctx))
		assert.NoError(t, err)
	})
	close(unblock)
	assert.NoError(t, <-released)
}
