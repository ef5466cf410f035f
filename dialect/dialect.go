package dialect

import (
	"database/sql/driver"
	"errors"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/shrek82/jdb/config"
)

// Dialect represents the database-specific parts of talking to a driver.
// Each supported driver registers one under its database/sql driver name.
type Dialect interface {
	// Name returns the database/sql driver name
	Name() string
	// DSN builds the driver connection string from the configuration
	DSN(cfg *config.Config) (string, error)
	// Quote wraps a name (table or column) in database-specific quotes
	Quote(name string) string
	// Placeholder returns the bind placeholder for the 1-based index
	Placeholder(index int) string
	// Rebind rewrites `?` placeholders into the driver's own convention
	Rebind(query string) string
	// Escape escapes s for use inside a quoted string literal
	Escape(s string) string
	// Classify maps a driver error onto an ErrorKind
	Classify(err error) ErrorKind
}

// ErrorKind is a driver-independent category of statement failure.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindDuplicateKey
	KindForeignKey
	KindNoSuchTable
	KindConnection
)

func (k ErrorKind) String() string {
	switch k {
	case KindDuplicateKey:
		return "duplicate key"
	case KindForeignKey:
		return "foreign key"
	case KindNoSuchTable:
		return "no such table"
	case KindConnection:
		return "connection"
	}
	return "unknown"
}

var (
	mu       sync.RWMutex
	dialects = make(map[string]Dialect)
)

// Register registers a new dialect for a given driver name
func Register(name string, d Dialect) {
	mu.Lock()
	defer mu.Unlock()
	dialects[name] = d
}

// Get retrieves a registered dialect by driver name
func Get(name string) (Dialect, bool) {
	mu.RLock()
	defer mu.RUnlock()
	d, ok := dialects[name]
	return d, ok
}

// Names returns the registered driver names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(dialects))
	for name := range dialects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// rebindNumbered replaces each `?` outside quoted text with prefix+n.
func rebindNumbered(query string, prefix string) string {
	if !strings.Contains(query, "?") {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	var quote byte
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"' || c == '`':
			quote = c
		case c == '?':
			n++
			sb.WriteString(prefix)
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

// escapeQuotes doubles single quotes, the SQL standard escape.
func escapeQuotes(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func encodeParams(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	return values.Encode()
}

func isBadConn(err error) bool {
	return errors.Is(err, driver.ErrBadConn)
}

// classifySQLState maps a PostgreSQL SQLSTATE onto an ErrorKind.
func classifySQLState(code string) ErrorKind {
	switch {
	case code == "23505":
		return KindDuplicateKey
	case code == "23503":
		return KindForeignKey
	case code == "42P01":
		return KindNoSuchTable
	case strings.HasPrefix(code, "08"):
		return KindConnection
	}
	return KindUnknown
}
