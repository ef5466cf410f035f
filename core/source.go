package core

import (
	"github.com/shrek82/jdb/pool"
)

type sourceKind int

const (
	sourceNone sourceKind = iota
	sourceConn
	sourceCursor
	sourceWorker
)

// Source tells a helper where its cursor comes from. Build one with
// OnConn, OnCursor or OnWorker; the zero value is invalid.
type Source struct {
	kind   sourceKind
	conn   Executor
	cursor *Cursor
	worker *pool.Worker
}

// OnConn runs on an explicit connection (or transaction). The helper opens
// its own cursor and closes it before returning.
func OnConn(conn Executor) Source {
	return Source{kind: sourceConn, conn: conn}
}

// OnCursor runs on a caller-owned cursor, which the helper leaves open.
func OnCursor(cur *Cursor) Source {
	return Source{kind: sourceCursor, cursor: cur}
}

// OnWorker runs on the pooled connection of w.
func OnWorker(w *pool.Worker) Source {
	return Source{kind: sourceWorker, worker: w}
}

func (s Source) String() string {
	switch s.kind {
	case sourceConn:
		return "conn"
	case sourceCursor:
		return "cursor"
	case sourceWorker:
		if s.worker != nil {
			return s.worker.String()
		}
		return "worker"
	}
	return "none"
}
