package core

import (
	"context"
)

// Component is the base interface for all jdb components/middleware.
type Component interface {
	Name() string
	Init(db *DB) error
	Shutdown() error
}

// Op names the helper a Call comes from.
type Op string

const (
	OpExecute     Op = "execute"
	OpFetchOne    Op = "fetch_one"
	OpFetchAll    Op = "fetch_all"
	OpFetchN      Op = "fetch_n"
	OpFetchValue  Op = "fetch_value"
	OpFetchValues Op = "fetch_values"
)

// ReadOnly reports whether the op only reads rows.
func (o Op) ReadOnly() bool {
	return o != OpExecute
}

// Unlimited as a Call limit fetches every row.
const Unlimited = -1

// Call describes one helper invocation as it passes through middleware.
type Call struct {
	Op    Op
	SQL   string
	Args  []any
	Limit int
	// Borrowed is set when the statement runs on a caller-supplied cursor,
	// which may belong to an open transaction.
	Borrowed bool
	// Fields are attached to the SQL log lines of this call.
	Fields map[string]any
}

// Result represents the result of a call.
type Result struct {
	RowsAffected int64
	Rows         []*Row
}

// CallFunc is the function type for the next step in the middleware chain.
type CallFunc func(ctx context.Context, call *Call) (*Result, error)

// Middleware intercepts the materialising helpers (Execute and Fetch*).
// Streams bypass the chain.
type Middleware interface {
	Component
	Process(ctx context.Context, call *Call, next CallFunc) (*Result, error)
}
