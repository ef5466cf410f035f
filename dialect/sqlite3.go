package dialect

import (
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/shrek82/jdb/config"
)

// busy timeout applied when the configuration does not set one; every
// worker holds its own connection to the same file.
const defaultBusyTimeout = "5000"

type sqlite3Dialect struct{}

func init() {
	Register("sqlite3", &sqlite3Dialect{})
}

func (d *sqlite3Dialect) Name() string {
	return "sqlite3"
}

// DSN uses Database as the file path; Host and credentials are ignored.
func (d *sqlite3Dialect) DSN(cfg *config.Config) (string, error) {
	params := make(map[string]string, len(cfg.Params)+1)
	for k, v := range cfg.Params {
		params[k] = v
	}
	if _, ok := params["_busy_timeout"]; !ok {
		params["_busy_timeout"] = defaultBusyTimeout
	}
	sep := "?"
	if strings.Contains(cfg.Database, "?") {
		sep = "&"
	}
	return cfg.Database + sep + encodeParams(params), nil
}

func (d *sqlite3Dialect) Quote(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (d *sqlite3Dialect) Placeholder(index int) string {
	return "?"
}

func (d *sqlite3Dialect) Rebind(query string) string {
	return query
}

func (d *sqlite3Dialect) Escape(s string) string {
	return escapeQuotes(s)
}

func (d *sqlite3Dialect) Classify(err error) ErrorKind {
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return KindDuplicateKey
		case sqlite3.ErrConstraintForeignKey:
			return KindForeignKey
		}
		switch se.Code {
		case sqlite3.ErrCantOpen, sqlite3.ErrNotADB:
			return KindConnection
		case sqlite3.ErrError:
			if strings.Contains(se.Error(), "no such table") {
				return KindNoSuchTable
			}
		}
		return KindUnknown
	}
	if isBadConn(err) {
		return KindConnection
	}
	return KindUnknown
}
