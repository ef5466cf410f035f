package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shrek82/jdb/core"
)

// FileCacheMiddleware caches query results as files in CacheDir, so they
// survive a restart. Enable it per call with WithCache.
type FileCacheMiddleware struct {
	CacheDir string
	shape    core.RowShape
}

func NewFileCache(cacheDir string) *FileCacheMiddleware {
	return &FileCacheMiddleware{CacheDir: cacheDir}
}

func (m *FileCacheMiddleware) Name() string {
	return "FileCache"
}

func (m *FileCacheMiddleware) Init(db *core.DB) error {
	if m.CacheDir == "" {
		return fmt.Errorf("cache directory is required")
	}
	if err := os.MkdirAll(m.CacheDir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	m.shape = db.RowShape()
	return nil
}

func (m *FileCacheMiddleware) Shutdown() error {
	return nil
}

type fileCacheEntry struct {
	Data      json.RawMessage `json:"data"`
	ExpiresAt time.Time       `json:"expires_at"`
}

func (m *FileCacheMiddleware) path(call *core.Call) string {
	name := strings.TrimPrefix(cacheKey(call), "jdb:cache:")
	return filepath.Join(m.CacheDir, name+".json")
}

func (m *FileCacheMiddleware) Process(ctx context.Context, call *core.Call, next core.CallFunc) (*core.Result, error) {
	ttl, ok := cacheTTL(ctx)
	if !ok || !cacheable(call) {
		return next(ctx, call)
	}
	filename := m.path(call)

	if data, err := os.ReadFile(filename); err == nil {
		var entry fileCacheEntry
		if err := json.Unmarshal(data, &entry); err == nil {
			if entry.ExpiresAt.IsZero() || time.Now().Before(entry.ExpiresAt) {
				if rows, err := core.DecodeRows(entry.Data, m.shape); err == nil {
					return &core.Result{Rows: rows}, nil
				}
			}
		}
		// expired or unreadable
		_ = os.Remove(filename)
	}

	res, err := next(ctx, call)
	if err != nil {
		return res, err
	}

	if data, err := core.EncodeRows(res.Rows); err == nil {
		entry := fileCacheEntry{Data: data}
		if ttl > 0 {
			entry.ExpiresAt = time.Now().Add(ttl)
		}
		if fileBytes, err := json.Marshal(entry); err == nil {
			_ = os.WriteFile(filename, fileBytes, 0644)
		}
	}
	return res, nil
}
