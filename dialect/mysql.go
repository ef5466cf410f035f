package dialect

import (
	"errors"
	"net"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/shrek82/jdb/config"
)

const defaultMySQLPort = 3306

type mysqlDialect struct{}

func init() {
	Register("mysql", &mysqlDialect{})
}

func (d *mysqlDialect) Name() string {
	return "mysql"
}

// DSN builds a go-sql-driver DSN. A host starting with "/" is a unix socket.
func (d *mysqlDialect) DSN(cfg *config.Config) (string, error) {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.DBName = cfg.Database
	mc.ParseTime = true
	if strings.HasPrefix(cfg.Host, "/") {
		mc.Net = "unix"
		mc.Addr = cfg.Host
	} else {
		port := cfg.Port
		if port == 0 {
			port = defaultMySQLPort
		}
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	}

	dsn := mc.FormatDSN()
	if extra := encodeParams(cfg.Params); extra != "" {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + extra
	}
	if _, err := mysql.ParseDSN(dsn); err != nil {
		return "", err
	}
	return dsn, nil
}

func (d *mysqlDialect) Quote(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (d *mysqlDialect) Placeholder(index int) string {
	return "?"
}

func (d *mysqlDialect) Rebind(query string) string {
	return query
}

// Escape follows mysql_real_escape_string for the default character sets.
func (d *mysqlDialect) Escape(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case 0:
			sb.WriteString(`\0`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\\':
			sb.WriteString(`\\`)
		case '\'':
			sb.WriteString(`\'`)
		case '"':
			sb.WriteString(`\"`)
		case '\032':
			sb.WriteString(`\Z`)
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

func (d *mysqlDialect) Classify(err error) ErrorKind {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case 1062, 1586:
			return KindDuplicateKey
		case 1216, 1217, 1451, 1452:
			return KindForeignKey
		case 1146:
			return KindNoSuchTable
		case 2006, 2013:
			return KindConnection
		}
		return KindUnknown
	}
	if errors.Is(err, mysql.ErrInvalidConn) || isBadConn(err) {
		return KindConnection
	}
	return KindUnknown
}
