package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shrek82/jdb/core"
)

// Forever as a cache TTL keeps an entry until it is evicted.
const Forever time.Duration = -1

type cacheTTLKey struct{}

// WithCache enables result caching for helper calls made with the
// returned context. ttl > 0 expires entries after ttl, Forever never
// expires them, and 0 disables caching again.
func WithCache(ctx context.Context, ttl time.Duration) context.Context {
	return context.WithValue(ctx, cacheTTLKey{}, ttl)
}

// cacheTTL reports the TTL requested on ctx, if any.
func cacheTTL(ctx context.Context) (time.Duration, bool) {
	ttl, ok := ctx.Value(cacheTTLKey{}).(time.Duration)
	if !ok || ttl == 0 {
		return 0, false
	}
	return ttl, true
}

// cacheable reports whether call may be answered from a cache. Writes
// and statements on a borrowed cursor always reach the database.
func cacheable(call *core.Call) bool {
	return call.Op.ReadOnly() && !call.Borrowed
}

func cacheKey(call *core.Call) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%d\x00%s", call.Op, call.Limit, call.SQL)
	for _, a := range call.Args {
		fmt.Fprintf(h, "\x00%T:%v", a, a)
	}
	return "jdb:cache:" + hex.EncodeToString(h.Sum(nil))
}
