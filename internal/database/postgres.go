package database

import (
	"fmt"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// ValidatePostgres checks that sql parses as PostgreSQL and returns the
// number of statements it holds.
func ValidatePostgres(sql string) (int, error) {
	result, err := pg_query.Parse(sql)
	if err != nil {
		return 0, fmt.Errorf("invalid PostgreSQL syntax: %w", err)
	}
	return len(result.Stmts), nil
}
