package dialect

import (
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/shrek82/jdb/config"
)

// postgres serves lib/pq; pgx reuses everything but the driver name and
// the error type.
type postgres struct {
	driver string
}

func init() {
	Register("postgres", &postgres{driver: "postgres"})
}

func (d *postgres) Name() string {
	return d.driver
}

// DSN builds a key=value connection string understood by both lib/pq and pgx.
func (d *postgres) DSN(cfg *config.Config) (string, error) {
	kv := map[string]string{
		"host":   cfg.Host,
		"dbname": cfg.Database,
	}
	if cfg.Port != 0 {
		kv["port"] = strconv.Itoa(cfg.Port)
	}
	if cfg.User != "" {
		kv["user"] = cfg.User
	}
	if cfg.Password != "" {
		kv["password"] = cfg.Password
	}
	for k, v := range cfg.Params {
		kv[k] = v
	}
	if _, ok := kv["sslmode"]; !ok {
		kv["sslmode"] = "disable"
	}

	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := strings.ReplaceAll(kv[k], `\`, `\\`)
		v = strings.ReplaceAll(v, `'`, `\'`)
		parts = append(parts, k+"='"+v+"'")
	}
	return strings.Join(parts, " "), nil
}

func (d *postgres) Quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d *postgres) Placeholder(index int) string {
	return "$" + strconv.Itoa(index)
}

func (d *postgres) Rebind(query string) string {
	return rebindNumbered(query, "$")
}

func (d *postgres) Escape(s string) string {
	return escapeQuotes(s)
}

func (d *postgres) Classify(err error) ErrorKind {
	var pe *pq.Error
	if errors.As(err, &pe) {
		return classifySQLState(string(pe.Code))
	}
	if isBadConn(err) {
		return KindConnection
	}
	return KindUnknown
}
