package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shrek82/jdb/config"
	"github.com/shrek82/jdb/dialect"
	"github.com/shrek82/jdb/logger"
	"github.com/shrek82/jdb/pool"
)

// Options defines the runtime hooks of a DB that do not belong in a
// configuration file.
type Options struct {
	// Logger replaces the logger built from the configuration.
	Logger logger.Logger
	// OnFatal is called when a pooled connection cannot be opened. The
	// default exits the process with status 1.
	OnFatal func(err error)
}

// DB is the main entry point.
// It owns the per-worker connection pool and runs the query helpers.
type DB struct {
	sqlDB   *sql.DB
	pool    *pool.Pool
	dialect dialect.Dialect
	logger  logger.Logger
	shape   RowShape

	mu          sync.RWMutex
	middlewares []Middleware
	closed      atomic.Bool
}

// Open initializes a new DB from cfg. No connection is made until a
// worker first asks for one.
func Open(cfg *config.Config, opts *Options) (*DB, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	d, ok := dialect.Get(cfg.Driver)
	if !ok {
		return nil, fmt.Errorf("unknown dialect %s", cfg.Driver)
	}
	dsn, err := d.DSN(cfg)
	if err != nil {
		return nil, err
	}
	shape, err := ParseRowShape(cfg.RowShape)
	if err != nil {
		return nil, err
	}

	var log logger.Logger
	if opts != nil && opts.Logger != nil {
		log = opts.Logger
	} else {
		log, err = newLogger(cfg.Logging)
		if err != nil {
			return nil, err
		}
	}

	sqlDB, err := sql.Open(d.Name(), dsn)
	if err != nil {
		return nil, err
	}

	popts := &pool.Options{
		IdleTimeout: cfg.IdleTimeout(),
		Logger:      log,
	}
	if opts != nil {
		popts.OnFatal = opts.OnFatal
	}

	log.Debug("opened %s", cfg)
	return &DB{
		sqlDB:   sqlDB,
		pool:    pool.New(pool.NewStdConnector(sqlDB), popts),
		dialect: d,
		logger:  log,
		shape:   shape,
	}, nil
}

func newLogger(lc config.LoggingConfig) (logger.Logger, error) {
	level, err := logger.ParseLevel(lc.Level)
	if err != nil {
		return nil, err
	}
	l := logger.NewStdLogger()
	l.SetLevel(level)
	if lc.Format == string(logger.LogFormatJSON) {
		l.SetFormat(logger.LogFormatJSON)
	}
	return l, nil
}

// Close closes every pooled connection, shuts down middleware and closes
// the underlying driver handle. The DB cannot be used afterwards.
func (db *DB) Close() error {
	if db.closed.Swap(true) {
		return nil
	}
	var errs []error
	if err := db.pool.Close(); err != nil {
		errs = append(errs, err)
	}

	db.mu.Lock()
	for _, m := range db.middlewares {
		if err := m.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("shutdown %s: %w", m.Name(), err))
		}
	}
	db.middlewares = nil
	db.mu.Unlock()

	if err := db.sqlDB.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// CloseConnections closes and forgets every pooled connection. Workers
// stay registered; their next query opens a fresh connection.
func (db *DB) CloseConnections() error {
	return db.pool.Close()
}

// Register returns a new worker handle, alive until Release or until ctx
// is done.
func (db *DB) Register(ctx context.Context) *pool.Worker {
	return db.pool.Register(ctx)
}

// Do runs fn with a worker released when fn returns.
func (db *DB) Do(ctx context.Context, fn func(w *pool.Worker) error) error {
	return db.pool.Do(ctx, fn)
}

// Use registers middleware. Middleware added first runs outermost.
func (db *DB) Use(ms ...Middleware) error {
	for _, m := range ms {
		if err := m.Init(db); err != nil {
			return fmt.Errorf("init %s: %w", m.Name(), err)
		}
		db.mu.Lock()
		db.middlewares = append(db.middlewares, m)
		db.mu.Unlock()
		db.logger.Debug("middleware %s registered", m.Name())
	}
	return nil
}

// Escape escapes s for use inside a quoted string literal.
func (db *DB) Escape(s string) string {
	return db.dialect.Escape(s)
}

// Quote quotes an identifier.
func (db *DB) Quote(name string) string {
	return db.dialect.Quote(name)
}

// TranslateError maps a driver error onto ErrDuplicateKey, ErrForeignKey,
// ErrNoSuchTable or ErrConnectionFailed. The driver error stays in the
// chain; errors of other kinds are returned unchanged.
func (db *DB) TranslateError(err error) error {
	if err == nil {
		return nil
	}
	var sentinel error
	switch db.dialect.Classify(err) {
	case dialect.KindDuplicateKey:
		sentinel = ErrDuplicateKey
	case dialect.KindForeignKey:
		sentinel = ErrForeignKey
	case dialect.KindNoSuchTable:
		sentinel = ErrNoSuchTable
	case dialect.KindConnection:
		sentinel = ErrConnectionFailed
	default:
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// Pool returns the connection pool.
func (db *DB) Pool() *pool.Pool {
	return db.pool
}

// Dialect returns the dialect of the configured driver.
func (db *DB) Dialect() dialect.Dialect {
	return db.dialect
}

// Logger returns the DB logger.
func (db *DB) Logger() logger.Logger {
	return db.logger
}

// RowShape returns how rows of this DB render.
func (db *DB) RowShape() RowShape {
	return db.shape
}

// logSQL logs a statement that does not go through a cursor.
func (db *DB) logSQL(sql string, duration time.Duration, args ...any) {
	if db.logger != nil {
		db.logger.SQL(sql, duration, args...)
	}
}
