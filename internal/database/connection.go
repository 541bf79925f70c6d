// Package database opens the connection pools of database slots and hides
// the differences between the supported SQL drivers.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/bpmigrate/bpmigrate/internal/config"
	"github.com/bpmigrate/bpmigrate/internal/logger"
)

// ConnectionError reports an unreachable database.
type ConnectionError struct {
	Driver   string
	Database string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s database %q: %v", e.Driver, e.Database, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Guidance tells the user where the failing settings come from.
func (e *ConnectionError) Guidance() string {
	return fmt.Sprintf("check the %q database settings (name, host, port, user, password or dsn) in the project config", e.Database)
}

// poolSettings follow the per-driver defaults that suit a short CLI run.
type poolSettings struct {
	maxOpen     int
	maxIdle     int
	maxLifetime time.Duration
}

func settingsFor(driver string) poolSettings {
	switch driver {
	case "sqlite3":
		return poolSettings{maxOpen: 1, maxIdle: 1, maxLifetime: 24 * time.Hour}
	case "mysql":
		return poolSettings{maxOpen: 10, maxIdle: 5, maxLifetime: 30 * time.Minute}
	default:
		return poolSettings{maxOpen: 10, maxIdle: 5, maxLifetime: 30 * time.Minute}
	}
}

// Open establishes a pool for db and verifies it with a ping.
func Open(ctx context.Context, db config.Database) (*sql.DB, error) {
	log := logger.Get()

	log.Debug("Attempting database connection",
		"driver", db.Driver,
		"host", db.Host,
		"port", db.Port,
		"database", db.Name,
		"user", db.User,
	)

	dsn, err := DSN(db)
	if err != nil {
		return nil, &ConnectionError{Driver: db.Driver, Database: db.Name, Err: err}
	}
	conn, err := sql.Open(db.Driver, dsn)
	if err != nil {
		log.Debug("Database connection failed", "error", err)
		return nil, &ConnectionError{Driver: db.Driver, Database: db.Name, Err: err}
	}

	s := settingsFor(db.Driver)
	conn.SetMaxOpenConns(s.maxOpen)
	conn.SetMaxIdleConns(s.maxIdle)
	conn.SetConnMaxLifetime(s.maxLifetime)

	if err := conn.PingContext(ctx); err != nil {
		log.Debug("Database ping failed", "error", err)
		conn.Close()
		return nil, &ConnectionError{Driver: db.Driver, Database: db.Name, Err: fmt.Errorf("failed to ping database: %w", err)}
	}

	log.Debug("Database connection established successfully", "database", db.Name)
	return conn, nil
}

// DSN returns the driver-specific connection string of db. An explicit dsn
// setting wins over the individual fields; a MySQL one still gets the
// options migrations and the tracking table rely on.
func DSN(db config.Database) (string, error) {
	if db.DSN != "" {
		if db.Driver != "mysql" {
			return db.DSN, nil
		}
		mc, err := mysql.ParseDSN(db.DSN)
		if err != nil {
			return "", fmt.Errorf("invalid mysql dsn: %w", err)
		}
		return formatMySQLDSN(mc), nil
	}

	switch db.Driver {
	case "mysql":
		return buildMySQLDSN(db), nil
	case "pgx", "postgres":
		return buildPostgresDSN(db), nil
	case "sqlite3":
		return db.Name, nil
	default:
		return "", fmt.Errorf("unsupported driver: %s", db.Driver)
	}
}

func buildMySQLDSN(db config.Database) string {
	host := db.Host
	if host == "" {
		host = "localhost"
	}
	port := db.Port
	if port == 0 {
		port = 3306
	}

	mc := mysql.NewConfig()
	mc.User = db.User
	mc.Passwd = db.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	mc.DBName = db.Name
	return formatMySQLDSN(mc)
}

// formatMySQLDSN enables multi statements, so a migration's operations are
// sent in one call, and parseTime, so the applied timestamp scans into a
// time value.
func formatMySQLDSN(mc *mysql.Config) string {
	mc.MultiStatements = true
	mc.ParseTime = true
	return mc.FormatDSN()
}

// buildPostgresDSN constructs a PostgreSQL connection string from connection parameters
func buildPostgresDSN(db config.Database) string {
	var parts []string

	host := db.Host
	if host == "" {
		host = "localhost"
	}
	port := db.Port
	if port == 0 {
		port = 5432
	}

	parts = append(parts, fmt.Sprintf("host=%s", host))
	parts = append(parts, fmt.Sprintf("port=%d", port))
	parts = append(parts, fmt.Sprintf("dbname=%s", db.Name))

	if db.User != "" {
		parts = append(parts, fmt.Sprintf("user=%s", db.User))
	}

	if db.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", db.Password))
	}

	return strings.Join(parts, " ")
}
