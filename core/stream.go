package core

import (
	"iter"
	"runtime"
)

// Stream is a lazy sequence of items read from a cursor.
//
//	s, err := db.YieldRows(ctx, core.OnWorker(w), "SELECT * FROM t")
//	if err != nil { ... }
//	defer s.Close()
//	for s.Next() {
//		row := s.Item()
//	}
//	if err := s.Err(); err != nil { ... }
//
// A stream that owns its cursor closes it when the rows run out, when a
// read fails, when Close is called, or when a range over All stops early.
// A stream on a borrowed cursor never closes it. A stream on a worker
// holds the worker's connection until it is closed: helpers called on the
// same worker meanwhile fail with pool.ErrWorkerBusy, and if the pool
// closes the connection anyway the stream ends with pool.ErrConnRevoked.
type Stream[T any] struct {
	b       *binding
	cur     *Cursor
	fetch   func(*Cursor) (T, bool, error)
	item    T
	err     error
	done    bool
	cleanup runtime.Cleanup
}

func newStream[T any](b *binding, fetch func(*Cursor) (T, bool, error)) *Stream[T] {
	s := &Stream[T]{b: b, cur: b.cur, fetch: fetch}
	if b.owned || b.lease != nil {
		// an abandoned stream still gives its result set and connection back
		s.cleanup = runtime.AddCleanup(s, func(b *binding) { _ = b.close() }, b)
	}
	return s
}

// Next advances to the next item and reports whether there is one.
func (s *Stream[T]) Next() bool {
	if s.done {
		return false
	}
	item, ok, err := s.fetch(s.cur)
	if err != nil || !ok {
		s.err = err
		if cerr := s.release(); s.err == nil {
			s.err = cerr
		}
		s.err = s.b.wrap(s.err)
		return false
	}
	s.item = item
	return true
}

// Item returns the current item.
func (s *Stream[T]) Item() T {
	return s.item
}

// Err returns the error that ended the stream, if any.
func (s *Stream[T]) Err() error {
	return s.err
}

// Close stops the stream. Closing twice is a no-op.
func (s *Stream[T]) Close() error {
	if s.done {
		return nil
	}
	return s.release()
}

func (s *Stream[T]) release() error {
	s.done = true
	var zero T
	s.item = zero
	if s.b.owned || s.b.lease != nil {
		s.cleanup.Stop()
	}
	return s.b.close()
}

// All returns an iterator over the remaining items. A read error is
// yielded once as the last pair. The stream is closed when the loop ends.
func (s *Stream[T]) All() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		defer s.Close()
		for s.Next() {
			if !yield(s.item, nil) {
				return
			}
		}
		if s.err != nil {
			var zero T
			yield(zero, s.err)
		}
	}
}

// Collect reads the remaining items into a slice and closes the stream.
func (s *Stream[T]) Collect() ([]T, error) {
	defer s.Close()
	items := []T{}
	for s.Next() {
		items = append(items, s.item)
	}
	return items, s.err
}
