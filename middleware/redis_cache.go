package middleware

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shrek82/jdb/core"
	"github.com/shrek82/jdb/logger"
)

// RedisCacheMiddleware caches query results in Redis, so that several
// processes can share them. Enable it per call with WithCache.
type RedisCacheMiddleware struct {
	Client *redis.Client
	shape  core.RowShape
	log    logger.Logger
}

func NewRedisCache(opt *redis.Options) *RedisCacheMiddleware {
	return &RedisCacheMiddleware{
		Client: redis.NewClient(opt),
	}
}

func (m *RedisCacheMiddleware) Name() string {
	return "RedisCache"
}

func (m *RedisCacheMiddleware) Init(db *core.DB) error {
	m.shape = db.RowShape()
	m.log = db.Logger()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.Client.Ping(ctx).Err()
}

func (m *RedisCacheMiddleware) Shutdown() error {
	return m.Client.Close()
}

func (m *RedisCacheMiddleware) Process(ctx context.Context, call *core.Call, next core.CallFunc) (*core.Result, error) {
	ttl, ok := cacheTTL(ctx)
	if !ok || !cacheable(call) {
		return next(ctx, call)
	}
	if ttl < 0 {
		// no expiration
		ttl = 0
	}
	key := cacheKey(call)

	data, err := m.Client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if rows, err := core.DecodeRows(data, m.shape); err == nil {
			return &core.Result{Rows: rows}, nil
		}
	case err != redis.Nil:
		m.log.Warn("redis cache get: %v", err)
	}

	res, err := next(ctx, call)
	if err != nil {
		return res, err
	}

	if data, err := core.EncodeRows(res.Rows); err == nil {
		if err := m.Client.Set(ctx, key, data, ttl).Err(); err != nil {
			m.log.Warn("redis cache set: %v", err)
		}
	}
	return res, nil
}
