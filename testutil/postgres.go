// Package testutil starts throwaway PostgreSQL servers for integration tests.
package testutil

import (
	"context"
	"database/sql"
	"io"
	"log"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bpmigrate/bpmigrate/internal/config"
)

var suppressedLogger = log.New(io.Discard, "", 0)

// postgresImage honours BPMIGRATE_POSTGRES_VERSION and defaults to 17.
func postgresImage() string {
	v := os.Getenv("BPMIGRATE_POSTGRES_VERSION")
	if v == "" {
		v = "17"
	}
	return "postgres:" + v + "-alpine"
}

// ContainerInfo holds a running PostgreSQL container and an open pool to it.
type ContainerInfo struct {
	Container testcontainers.Container
	DSN       string
	Conn      *sql.DB

	host     string
	port     int
	user     string
	password string
}

// SetupPostgresContainer starts a container with the default test credentials.
func SetupPostgresContainer(ctx context.Context, t *testing.T) *ContainerInfo {
	return SetupPostgresContainerWithDB(ctx, t, "testdb", "testuser", "testpass")
}

// SetupPostgresContainerWithDB starts a container owning database and
// skips the test in -short mode.
func SetupPostgresContainerWithDB(ctx context.Context, t *testing.T, database, username, password string) *ContainerInfo {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping PostgreSQL integration test in short mode")
	}

	pg, err := postgres.Run(ctx,
		postgresImage(),
		postgres.WithDatabase(database),
		postgres.WithUsername(username),
		postgres.WithPassword(password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
		testcontainers.WithLogger(suppressedLogger),
	)
	if err != nil {
		t.Fatalf("Failed to start container: %v", err)
	}

	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	host, err := pg.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := pg.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	return &ContainerInfo{
		Container: pg,
		DSN:       dsn,
		Conn:      conn,
		host:      host,
		port:      port.Int(),
		user:      username,
		password:  password,
	}
}

// Terminate cleans up the container and connection
func (ci *ContainerInfo) Terminate(ctx context.Context, t *testing.T) {
	ci.Conn.Close()
	if err := ci.Container.Terminate(ctx); err != nil {
		t.Logf("Failed to terminate container: %v", err)
	}
}

// Database describes the container as a database slot reached through
// host, port and credentials rather than a DSN.
func (ci *ContainerInfo) Database(name, driver string) config.Database {
	return config.Database{
		Name:     name,
		Driver:   driver,
		Host:     ci.host,
		Port:     ci.port,
		User:     ci.user,
		Password: ci.password,
	}
}
