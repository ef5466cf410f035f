package dialect

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// pgxDialect talks to PostgreSQL through pgx's database/sql adapter.
type pgxDialect struct {
	postgres
}

func init() {
	Register("pgx", &pgxDialect{postgres{driver: "pgx"}})
}

func (d *pgxDialect) Classify(err error) ErrorKind {
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return classifySQLState(pe.Code)
	}
	return d.postgres.Classify(err)
}
