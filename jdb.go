// Package jdb is a per-worker connection pool with query helpers on top
// of database/sql.
//
//	cfg, _ := jdb.LoadConfig("jdb.yaml")
//	db, err := jdb.Open(cfg, nil)
//	...
//	err = db.Do(ctx, func(w *jdb.Worker) error {
//		n, err := db.FetchValue(ctx, jdb.OnWorker(w), "select count(*) from TestTable")
//		...
//	})
package jdb

import (
	"github.com/shrek82/jdb/config"
	"github.com/shrek82/jdb/core"
	_ "github.com/shrek82/jdb/dialect"
	"github.com/shrek82/jdb/pool"
)

// Re-export core types and functions
type DB = core.DB
type Options = core.Options
type Source = core.Source
type Cursor = core.Cursor
type Row = core.Row
type Object = core.Object
type Tx = core.Tx
type Middleware = core.Middleware

var (
	Open      = core.Open
	OnConn    = core.OnConn
	OnCursor  = core.OnCursor
	OnWorker  = core.OnWorker
	NewObject = core.NewObject
	RowObject = core.RowObject
	AsInt64   = core.AsInt64
)

var (
	ErrRecordNotFound   = core.ErrRecordNotFound
	ErrInvalidSource    = core.ErrInvalidSource
	ErrClosed           = core.ErrClosed
	ErrDuplicateKey     = core.ErrDuplicateKey
	ErrForeignKey       = core.ErrForeignKey
	ErrNoSuchTable      = core.ErrNoSuchTable
	ErrConnectionFailed = core.ErrConnectionFailed
	ErrConnectFailed    = pool.ErrConnectFailed
	ErrWorkerBusy       = pool.ErrWorkerBusy
	ErrConnRevoked      = pool.ErrConnRevoked
)

// Re-export pool types
type Worker = pool.Worker
type PoolStats = pool.Stats

// Re-export config types and functions
type Config = config.Config

var (
	DefaultConfig = config.DefaultConfig
	LoadConfig    = config.LoadConfig
)
