package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Dialect captures the SQL differences between drivers.
type Dialect struct {
	Driver string
}

// DialectFor returns the dialect of a database/sql driver name.
func DialectFor(driver string) Dialect {
	return Dialect{Driver: driver}
}

// IsPostgres reports whether the driver talks to PostgreSQL.
func (d Dialect) IsPostgres() bool {
	return d.Driver == "pgx" || d.Driver == "postgres"
}

// Placeholder returns the bind parameter marker for the n-th argument,
// counting from 1.
func (d Dialect) Placeholder(n int) string {
	if d.IsPostgres() {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Quote quotes an identifier.
func (d Dialect) Quote(ident string) string {
	if d.Driver == "mysql" {
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// AutoIncrementPrimaryKey returns the column definition of an integer
// surrogate key.
func (d Dialect) AutoIncrementPrimaryKey() string {
	switch {
	case d.IsPostgres():
		return "SERIAL PRIMARY KEY"
	case d.Driver == "sqlite3":
		return "INTEGER PRIMARY KEY AUTOINCREMENT"
	default:
		return "INT NOT NULL AUTO_INCREMENT PRIMARY KEY"
	}
}

// TimestampType returns the column type used for application times.
func (d Dialect) TimestampType() string {
	if d.IsPostgres() {
		return "TIMESTAMP"
	}
	return "DATETIME"
}

// IsUniqueViolation reports whether err is a unique constraint violation
// from any supported driver.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
