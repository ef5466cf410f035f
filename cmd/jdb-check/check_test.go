package main

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shrek82/jdb/config"
	"github.com/shrek82/jdb/core"
	"github.com/shrek82/jdb/logger"
)

func TestRunSQLite(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Driver = "sqlite3"
	cfg.Database = filepath.Join(t.TempDir(), "check.db")

	err := run(context.Background(), cfg, 4, &core.Options{
		Logger:  logger.Discard(),
		OnFatal: func(err error) { t.Errorf("fatal: %v", err) },
	})
	require.NoError(t, err)
}

func TestRunMySQL(t *testing.T) {
	host := os.Getenv("JDB_MYSQL_HOST")
	if host == "" {
		t.Skip("JDB_MYSQL_HOST not set")
	}
	cfg := config.DefaultConfig()
	cfg.Host = host
	cfg.User = os.Getenv("JDB_MYSQL_USER")
	cfg.Password = os.Getenv("JDB_MYSQL_PASSWORD")
	if db := os.Getenv("JDB_MYSQL_DB"); db != "" {
		cfg.Database = db
	}
	if p := os.Getenv("JDB_MYSQL_PORT"); p != "" {
		port, err := strconv.Atoi(p)
		require.NoError(t, err)
		cfg.Port = port
	}

	err := run(context.Background(), cfg, 4, &core.Options{
		Logger:  logger.Discard(),
		OnFatal: func(err error) { t.Errorf("fatal: %v", err) },
	})
	require.NoError(t, err)
}
