package core

import (
	"context"

	"github.com/georgysavva/scany/sqlscan"
)

// YieldStructs streams the rows of the result scanned into T. Columns map
// onto fields by `db` tag or snake_cased field name.
func YieldStructs[T any](ctx context.Context, db *DB, src Source, query string, args ...any) (*Stream[T], error) {
	var scanner *sqlscan.RowScanner
	return openStream(ctx, db, src, query, args, func(c *Cursor) (T, bool, error) {
		var item T
		ok, err := c.next()
		if err != nil || !ok {
			return item, false, err
		}
		if scanner == nil {
			scanner = sqlscan.NewRowScanner(c.rows)
		}
		if err := scanner.Scan(&item); err != nil {
			return item, false, err
		}
		return item, true, nil
	})
}

// FetchStructs returns every row of the result scanned into T.
func FetchStructs[T any](ctx context.Context, db *DB, src Source, query string, args ...any) ([]T, error) {
	s, err := YieldStructs[T](ctx, db, src, query, args...)
	if err != nil {
		return nil, err
	}
	return s.Collect()
}
