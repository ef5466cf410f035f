package middleware

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shrek82/jdb/core"
)

// MemoryCacheMiddleware caches query results in memory.
// Enable it per call with WithCache.
type MemoryCacheMiddleware struct {
	items     map[string]memoryCacheEntry
	mu        sync.RWMutex
	stopClean chan struct{}
	stopOnce  sync.Once
	shape     core.RowShape

	hits   atomic.Int64
	misses atomic.Int64
}

type memoryCacheEntry struct {
	Data      []byte
	ExpiresAt time.Time
}

func NewMemoryCache() *MemoryCacheMiddleware {
	return &MemoryCacheMiddleware{
		items:     make(map[string]memoryCacheEntry),
		stopClean: make(chan struct{}),
	}
}

func (m *MemoryCacheMiddleware) Name() string {
	return "MemoryCache"
}

func (m *MemoryCacheMiddleware) Init(db *core.DB) error {
	m.shape = db.RowShape()
	go m.cleanupLoop()
	return nil
}

func (m *MemoryCacheMiddleware) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopClean:
			return
		case <-ticker.C:
			m.cleanup()
		}
	}
}

func (m *MemoryCacheMiddleware) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for k, v := range m.items {
		if !v.ExpiresAt.IsZero() && now.After(v.ExpiresAt) {
			delete(m.items, k)
		}
	}
}

func (m *MemoryCacheMiddleware) Shutdown() error {
	m.stopOnce.Do(func() { close(m.stopClean) })
	return nil
}

// Hits returns how many calls were answered from the cache.
func (m *MemoryCacheMiddleware) Hits() int64 {
	return m.hits.Load()
}

// Misses returns how many cacheable calls went to the database.
func (m *MemoryCacheMiddleware) Misses() int64 {
	return m.misses.Load()
}

// Len returns the number of cached results, expired ones included.
func (m *MemoryCacheMiddleware) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func (m *MemoryCacheMiddleware) Process(ctx context.Context, call *core.Call, next core.CallFunc) (*core.Result, error) {
	ttl, ok := cacheTTL(ctx)
	if !ok || !cacheable(call) {
		return next(ctx, call)
	}
	key := cacheKey(call)

	m.mu.RLock()
	entry, found := m.items[key]
	m.mu.RUnlock()

	if found {
		if entry.ExpiresAt.IsZero() || time.Now().Before(entry.ExpiresAt) {
			if rows, err := core.DecodeRows(entry.Data, m.shape); err == nil {
				m.hits.Add(1)
				return &core.Result{Rows: rows}, nil
			}
		}
		// expired or unreadable
		m.mu.Lock()
		delete(m.items, key)
		m.mu.Unlock()
	}

	m.misses.Add(1)
	res, err := next(ctx, call)
	if err != nil {
		return res, err
	}

	data, err := core.EncodeRows(res.Rows)
	if err == nil {
		e := memoryCacheEntry{Data: data}
		if ttl > 0 {
			e.ExpiresAt = time.Now().Add(ttl)
		}
		m.mu.Lock()
		m.items[key] = e
		m.mu.Unlock()
	}
	return res, nil
}
