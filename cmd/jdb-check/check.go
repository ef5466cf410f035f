package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/shrek82/jdb/config"
	"github.com/shrek82/jdb/core"
	"github.com/shrek82/jdb/pool"
)

type testRow struct {
	rowInt int64
	rowStr string
}

var testData = []testRow{
	{100, "a"},
	{110, "aa"},
	{111, "aaa"},
	{112, "aab"},
	{120, "ab"},
	{200, "b"},
	{210, "ba"},
	{211, "baa"},
	{212, "bab"},
	{220, "bb"},
}

// run executes the check scenario on the database described by cfg.
func run(ctx context.Context, cfg *config.Config, workers int, opts *core.Options) (err error) {
	db, err := core.Open(cfg, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); err == nil {
			err = cerr
		}
	}()
	log := db.Logger()
	table := db.Quote("TestTable")

	w := db.Register(ctx)
	defer w.Release()
	src := core.OnWorker(w)

	if _, err := db.Execute(ctx, src, "DROP TABLE IF EXISTS "+table); err != nil {
		return fmt.Errorf("drop stale table: %w", err)
	}
	if _, err := db.Execute(ctx, src, fmt.Sprintf(`CREATE TABLE %s (
		row_int INT NOT NULL DEFAULT 0,
		row_str VARCHAR(16) DEFAULT NULL,
		PRIMARY KEY (row_int)
	)`, table)); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	log.Info("table %s created", table)

	for _, r := range testData {
		if _, err := db.Execute(ctx, src, "insert into "+table+" values (?, ?)", r.rowInt, r.rowStr); err != nil {
			return fmt.Errorf("insert %d: %w", r.rowInt, err)
		}
	}

	count, err := db.FetchValue(ctx, src, "select count(*) from "+table)
	if err != nil {
		return err
	}
	if n, err := core.AsInt64(count); err != nil || n != int64(len(testData)) {
		return fmt.Errorf("row count: got %v, want %d", count, len(testData))
	}

	for _, i := range rand.Perm(len(testData))[:3] {
		r := testData[i]
		v, err := db.FetchValue(ctx, src, "select row_int from "+table+" where row_str = ?", r.rowStr)
		if err != nil {
			return err
		}
		if n, err := core.AsInt64(v); err != nil || n != r.rowInt {
			return fmt.Errorf("row_int for %q: got %v, want %d", r.rowStr, v, r.rowInt)
		}
	}

	values, err := db.FetchValues(ctx, src, "select row_int from "+table+" where row_int < 200 order by row_int")
	if err != nil {
		return err
	}
	ints := make([]int64, 0, len(values))
	for _, v := range values {
		n, err := core.AsInt64(v)
		if err != nil {
			return fmt.Errorf("fetch values: %w", err)
		}
		ints = append(ints, n)
	}
	if want := []int64{100, 110, 111, 112, 120}; !slices.Equal(ints, want) {
		return fmt.Errorf("fetch values: got %v, want %v", ints, want)
	}

	objects, err := db.YieldObjects(ctx, src, "select * from "+table+" where row_str >= ? order by row_int", "b")
	if err != nil {
		return err
	}
	var got []testRow
	for obj, err := range objects.All() {
		if err != nil {
			return err
		}
		log.Debug("row_object: %v, row_int=%v, row_str=%v", obj, obj.Attr("row_int"), obj.Attr("row_str"))
		n, err := core.AsInt64(obj.Attr("row_int"))
		if err != nil {
			return fmt.Errorf("yield objects: row_int: %w", err)
		}
		str, ok := obj.Attr("row_str").(string)
		if !ok {
			return fmt.Errorf("yield objects: row_str is %T", obj.Attr("row_str"))
		}
		got = append(got, testRow{n, str})
	}
	if want := testData[5:]; !slices.Equal(got, want) {
		return fmt.Errorf("yield objects: got %v, want %v", got, want)
	}

	if err := checkBusyWorker(ctx, db, table); err != nil {
		return err
	}
	if err := checkWorkers(ctx, db, table, workers); err != nil {
		return err
	}

	if _, err := db.Execute(ctx, src, "DROP TABLE IF EXISTS "+table); err != nil {
		return fmt.Errorf("drop table: %w", err)
	}
	log.Info("table %s dropped", table)

	return db.CloseConnections()
}

// checkBusyWorker checks that a worker reading a result set refuses other
// helpers, and that releasing it mid-stream ends the stream.
func checkBusyWorker(ctx context.Context, db *core.DB, table string) error {
	w := db.Register(ctx)
	defer w.Release()
	src := core.OnWorker(w)

	s, err := db.YieldRows(ctx, src, "select * from "+table+" order by row_int")
	if err != nil {
		return err
	}
	defer s.Close()
	if !s.Next() {
		return fmt.Errorf("busy worker: empty stream: %v", s.Err())
	}
	if _, err := db.FetchValue(ctx, src, "select count(*) from "+table); !errors.Is(err, pool.ErrWorkerBusy) {
		return fmt.Errorf("busy worker: got %v, want %v", err, pool.ErrWorkerBusy)
	}

	if err := w.Release(); err != nil {
		return fmt.Errorf("busy worker: release: %w", err)
	}
	if s.Next() || !errors.Is(s.Err(), pool.ErrConnRevoked) {
		return fmt.Errorf("busy worker: stream after release: %v", s.Err())
	}
	return nil
}

// checkWorkers has n workers query the table at the same time, each on
// its own pooled connection.
func checkWorkers(ctx context.Context, db *core.DB, table string, n int) error {
	if n <= 0 {
		return nil
	}
	before := db.Pool().Stats().Created

	ready := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)
	started := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			return db.Do(gctx, func(w *pool.Worker) error {
				if _, err := db.FetchValue(gctx, core.OnWorker(w), "select count(*) from "+table); err != nil {
					return fmt.Errorf("%s: %w", w, err)
				}
				started <- struct{}{}
				// keep the connection until every worker has one
				select {
				case <-ready:
				case <-gctx.Done():
					return gctx.Err()
				}
				return nil
			})
		})
	}
	for i := 0; i < n; i++ {
		select {
		case <-started:
		case <-gctx.Done():
			close(ready)
			return g.Wait()
		}
	}
	open := db.Pool().Len()
	close(ready)
	if err := g.Wait(); err != nil {
		return err
	}

	if created := db.Pool().Stats().Created - before; created != int64(n) {
		return fmt.Errorf("pool: %d workers opened %d connections", n, created)
	}
	// the main worker holds one more
	if open != n+1 {
		return errors.New("pool: workers did not hold distinct connections")
	}
	db.Logger().Info("%d workers held %d distinct connections", n, open-1)
	return nil
}
