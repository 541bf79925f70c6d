// Package tracking persists which migrations have been applied, so that a
// migration is executed at most once across runs.
package tracking

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/bpmigrate/bpmigrate/internal/database"
)

// Applied records a migration that has been applied.
type Applied struct {
	Component string
	// Slot is stored in the db_name column.
	Slot      string
	Name      string
	AppliedAt time.Time
}

// ID returns the "component/slot/name" form of the record.
func (a Applied) ID() string {
	return a.Component + "/" + a.Slot + "/" + a.Name
}

// Store persists records of applied migrations.
type Store interface {
	// EnsureTable creates the tracking table when it does not exist.
	EnsureTable(ctx context.Context) error
	// Applied returns every recorded migration.
	Applied(ctx context.Context) ([]Applied, error)
	// Insert stores all rows in one statement.
	Insert(ctx context.Context, rows []Applied) error
}

// DuplicateApplicationError reports a row that is already recorded.
type DuplicateApplicationError struct {
	Row Applied
	Err error
}

func (e *DuplicateApplicationError) Error() string {
	return fmt.Sprintf("migration %s is already applied", e.Row.ID())
}

func (e *DuplicateApplicationError) Unwrap() error { return e.Err }

// SQLStore keeps the tracking table in a SQL database.
type SQLStore struct {
	db      *sql.DB
	dialect database.Dialect
	table   string
}

// NewSQLStore creates a store on db using the given table name.
func NewSQLStore(db *sql.DB, dialect database.Dialect, table string) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, table: table}
}

// EnsureTable creates the tracking table if it does not exist yet.
func (s *SQLStore) EnsureTable(ctx context.Context) error {
	d := s.dialect
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id %s,
    blueprint VARCHAR(100) NOT NULL,
    db_name VARCHAR(100) NOT NULL,
    %s VARCHAR(150) NOT NULL,
    applied %s NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (blueprint, db_name, %s)
)`, d.Quote(s.table), d.AutoIncrementPrimaryKey(), d.Quote("name"), d.TimestampType(), d.Quote("name"))

	if _, err := database.ExecContextWithLogging(ctx, s.db, stmt, "create tracking table"); err != nil {
		return fmt.Errorf("failed to create tracking table %s: %w", s.table, err)
	}
	return nil
}

// Applied returns every recorded migration.
func (s *SQLStore) Applied(ctx context.Context) ([]Applied, error) {
	d := s.dialect
	query := fmt.Sprintf("SELECT blueprint, db_name, %s, applied FROM %s ORDER BY id",
		d.Quote("name"), d.Quote(s.table))
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	var out []Applied
	for rows.Next() {
		var a Applied
		var appliedAt sql.NullTime
		if err := rows.Scan(&a.Component, &a.Slot, &a.Name, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan applied migration: %w", err)
		}
		a.AppliedAt = appliedAt.Time
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read applied migrations: %w", err)
	}
	return out, nil
}

// Insert writes all rows in one INSERT. A uniqueness violation is returned
// as a DuplicateApplicationError naming the first row already recorded.
func (s *SQLStore) Insert(ctx context.Context, rows []Applied) error {
	if len(rows) == 0 {
		return nil
	}

	d := s.dialect
	values := make([]string, 0, len(rows))
	args := make([]any, 0, len(rows)*4)
	for i, r := range rows {
		n := i * 4
		values = append(values, fmt.Sprintf("(%s, %s, %s, %s)",
			d.Placeholder(n+1), d.Placeholder(n+2), d.Placeholder(n+3), d.Placeholder(n+4)))
		appliedAt := r.AppliedAt
		if appliedAt.IsZero() {
			appliedAt = time.Now()
		}
		args = append(args, r.Component, r.Slot, r.Name, appliedAt.UTC())
	}
	stmt := fmt.Sprintf("INSERT INTO %s (blueprint, db_name, %s, applied) VALUES %s",
		d.Quote(s.table), d.Quote("name"), strings.Join(values, ", "))

	_, err := database.ExecContextWithLogging(ctx, s.db, stmt, "record applied migrations", args...)
	if err == nil {
		return nil
	}
	if database.IsUniqueViolation(err) {
		return &DuplicateApplicationError{Row: s.offendingRow(ctx, rows), Err: err}
	}
	return fmt.Errorf("failed to record applied migrations: %w", err)
}

// offendingRow finds the first row of the batch that is already recorded.
func (s *SQLStore) offendingRow(ctx context.Context, rows []Applied) Applied {
	seen := make(map[string]bool, len(rows))
	for _, r := range rows {
		if seen[r.ID()] {
			return r
		}
		seen[r.ID()] = true
	}
	existing, err := s.Applied(ctx)
	if err != nil {
		return rows[0]
	}
	recorded := SkipSet(existing)
	for _, r := range rows {
		if recorded[r.ID()] {
			return r
		}
	}
	return rows[0]
}

// SkipSet indexes applied rows by identifier.
func SkipSet(rows []Applied) map[string]bool {
	set := make(map[string]bool, len(rows))
	for _, r := range rows {
		set[r.ID()] = true
	}
	return set
}
