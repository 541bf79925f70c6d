package applier

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownTarget is returned for a migration whose component or slot is
// not configured, or whose slot has no open connection.
var ErrUnknownTarget = errors.New("unknown migration target")

// ExecutionError reports a migration whose operations failed. The
// transaction was rolled back.
type ExecutionError struct {
	Migration string
	Err       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("failed to apply migration %s: %v", e.Migration, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// CyclicDependencyError reports a migration reached again while its own
// dependencies were being applied. Path starts and ends with that migration.
type CyclicDependencyError struct {
	Path []string
}

func (e *CyclicDependencyError) Error() string {
	return "cyclic migration dependency: " + strings.Join(e.Path, " -> ")
}
