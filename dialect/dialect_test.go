package dialect

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shrek82/jdb/config"
)

func mustGet(t *testing.T, name string) Dialect {
	t.Helper()
	d, ok := Get(name)
	require.True(t, ok, "%s dialect not registered", name)
	return d
}

func TestRegistered(t *testing.T) {
	assert.Equal(t, []string{"mysql", "pgx", "postgres", "sqlite3"}, Names())
	for _, name := range Names() {
		assert.Equal(t, name, mustGet(t, name).Name())
	}
}

func TestMySQLDSN(t *testing.T) {
	d := mustGet(t, "mysql")
	cfg := config.DefaultConfig()
	cfg.User = "app"
	cfg.Password = "pw"
	cfg.Params = map[string]string{"charset": "utf8mb4"}

	dsn, err := d.DSN(cfg)
	require.NoError(t, err)

	parsed, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "tcp", parsed.Net)
	assert.Equal(t, "localhost:3306", parsed.Addr)
	assert.Equal(t, "testdb", parsed.DBName)
	assert.Equal(t, "app", parsed.User)
	assert.True(t, parsed.ParseTime)
	assert.Contains(t, dsn, "charset=utf8mb4")

	cfg.Host = "/var/run/mysqld/mysqld.sock"
	dsn, err = d.DSN(cfg)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dsn, "app:pw@unix(/var/run/mysqld/mysqld.sock)/testdb"), dsn)
}

func TestSQLiteDSN(t *testing.T) {
	d := mustGet(t, "sqlite3")
	cfg := config.DefaultConfig()
	cfg.Database = "/tmp/x.db"

	dsn, err := d.DSN(cfg)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.db?_busy_timeout=5000", dsn)

	cfg.Params = map[string]string{"_busy_timeout": "10"}
	dsn, err = d.DSN(cfg)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.db?_busy_timeout=10", dsn)
}

func TestPostgresDSN(t *testing.T) {
	d := mustGet(t, "postgres")
	cfg := config.DefaultConfig()
	cfg.Port = 5432
	cfg.User = "app"
	cfg.Password = "it's"

	dsn, err := d.DSN(cfg)
	require.NoError(t, err)
	assert.Equal(t, `dbname='testdb' host='localhost' password='it\'s' port='5432' sslmode='disable' user='app'`, dsn)
}

func TestRebind(t *testing.T) {
	pg := mustGet(t, "postgres")
	assert.Equal(t,
		"select * from t where a = $1 and b = '?' and c = $2",
		pg.Rebind("select * from t where a = ? and b = '?' and c = ?"))
	assert.Equal(t, "$3", pg.Placeholder(3))

	my := mustGet(t, "mysql")
	q := "insert into TestTable values (?, ?)"
	assert.Equal(t, q, my.Rebind(q))
}

func TestEscape(t *testing.T) {
	assert.Equal(t, `O\'Brien\n\\ \"x\" \0`, mustGet(t, "mysql").Escape("O'Brien\n\\ \"x\" \x00"))
	assert.Equal(t, "O''Brien", mustGet(t, "sqlite3").Escape("O'Brien"))
	assert.Equal(t, "O''Brien", mustGet(t, "pgx").Escape("O'Brien"))
}

func TestQuote(t *testing.T) {
	assert.Equal(t, "`TestTable`", mustGet(t, "mysql").Quote("TestTable"))
	assert.Equal(t, `"row""int"`, mustGet(t, "postgres").Quote(`row"int`))
}

func TestClassify(t *testing.T) {
	my := mustGet(t, "mysql")
	assert.Equal(t, KindDuplicateKey, my.Classify(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}))
	assert.Equal(t, KindNoSuchTable, my.Classify(fmt.Errorf("wrapped: %w", &mysql.MySQLError{Number: 1146})))
	assert.Equal(t, KindConnection, my.Classify(mysql.ErrInvalidConn))
	assert.Equal(t, KindConnection, my.Classify(driver.ErrBadConn))
	assert.Equal(t, KindUnknown, my.Classify(errors.New("other")))

	lite := mustGet(t, "sqlite3")
	assert.Equal(t, KindDuplicateKey, lite.Classify(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintPrimaryKey}))
	assert.Equal(t, KindForeignKey, lite.Classify(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintForeignKey}))

	pg := mustGet(t, "postgres")
	assert.Equal(t, KindDuplicateKey, pg.Classify(&pq.Error{Code: "23505"}))
	assert.Equal(t, KindConnection, pg.Classify(&pq.Error{Code: "08006"}))

	px := mustGet(t, "pgx")
	assert.Equal(t, KindForeignKey, px.Classify(&pgconn.PgError{Code: "23503"}))
	assert.Equal(t, KindNoSuchTable, px.Classify(&pq.Error{Code: "42P01"}))
	assert.Equal(t, "duplicate key", KindDuplicateKey.String())
}
