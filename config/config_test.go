package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Driver)
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, "testdb", cfg.Database)
	assert.Equal(t, 600*time.Second, cfg.IdleTimeout())
	assert.Equal(t, RowShapeMap, cfg.RowShape)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jdb.yaml")
	data := []byte(`
driver: mysql
host: db.internal
port: 3307
db: inventory
user: app
password: secret
idle_timeout_seconds: 30
row_shape: list
params:
  charset: utf8mb4
logging:
  level: debug
  format: json
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	t.Setenv("JDB_HOST", "10.1.2.3")
	t.Setenv("JDB_IDLE_TIMEOUT", "45")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "10.1.2.3", cfg.Host)
	assert.Equal(t, 3307, cfg.Port)
	assert.Equal(t, "inventory", cfg.Database)
	assert.Equal(t, "utf8mb4", cfg.Params["charset"])
	assert.Equal(t, 45*time.Second, cfg.IdleTimeout())
	assert.Equal(t, RowShapeList, cfg.RowShape)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "mysql://app@10.1.2.3:3307/inventory", cfg.String())
}

func TestLoadConfigBadEnv(t *testing.T) {
	t.Setenv("JDB_PORT", "not-a-number")
	_, err := LoadConfig("")
	assert.ErrorContains(t, err, "JDB_PORT")
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = ""
	assert.ErrorContains(t, cfg.Validate(), "host is required")

	cfg = DefaultConfig()
	cfg.Driver = "sqlite3"
	cfg.Host = ""
	cfg.Database = filepath.Join(t.TempDir(), "test.db")
	assert.NoError(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Driver = "oracle"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Logging.Level = "loud"
	assert.ErrorContains(t, cfg.Validate(), "invalid log level")

	for _, shape := range []string{"", RowShapeMap, RowShapeDict, RowShapeList, RowShapeTuple} {
		cfg = DefaultConfig()
		cfg.RowShape = shape
		assert.NoError(t, cfg.Validate(), shape)
	}
	cfg = DefaultConfig()
	cfg.RowShape = "cube"
	assert.Error(t, cfg.Validate())
}
