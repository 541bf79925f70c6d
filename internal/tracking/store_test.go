package tracking

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	_ "github.com/mattn/go-sqlite3"

	"github.com/bpmigrate/bpmigrate/internal/database"
)

func newStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "tracking.db"))
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := NewSQLStore(db, database.DialectFor("sqlite3"), "migrations")
	if err := store.EnsureTable(context.Background()); err != nil {
		t.Fatalf("EnsureTable failed: %v", err)
	}
	return store
}

var ignoreTime = cmpopts.IgnoreFields(Applied{}, "AppliedAt")

func TestInsertAndApplied(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	// A second EnsureTable is a no-op.
	if err := store.EnsureTable(ctx); err != nil {
		t.Fatalf("second EnsureTable failed: %v", err)
	}

	rows := []Applied{
		{Component: "game", Slot: "common", Name: "001_init", AppliedAt: time.Now()},
		{Component: "game", Slot: "common", Name: "002_users"},
	}
	if err := store.Insert(ctx, rows); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.Applied(ctx)
	if err != nil {
		t.Fatalf("Applied failed: %v", err)
	}
	if diff := cmp.Diff(rows, got, ignoreTime); diff != "" {
		t.Errorf("applied mismatch (-want +got):\n%s", diff)
	}
	for _, a := range got {
		if a.AppliedAt.IsZero() {
			t.Errorf("expected applied time for %s", a.ID())
		}
	}

	skip := SkipSet(got)
	if !skip["game/common/001_init"] || skip["game/common/003_missing"] {
		t.Errorf("unexpected skip set %v", skip)
	}
}

func TestInsertEmptyBatch(t *testing.T) {
	store := newStore(t)
	if err := store.Insert(context.Background(), nil); err != nil {
		t.Errorf("expected empty batch to be a no-op, got %v", err)
	}
}

func TestInsertDuplicate(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	first := Applied{Component: "game", Slot: "common", Name: "001_init"}
	if err := store.Insert(ctx, []Applied{first}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	err := store.Insert(ctx, []Applied{
		{Component: "game", Slot: "common", Name: "002_users"},
		first,
	})
	var dup *DuplicateApplicationError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateApplicationError, got %v", err)
	}
	if dup.Row.ID() != "game/common/001_init" {
		t.Errorf("expected offending row game/common/001_init, got %s", dup.Row.ID())
	}
	if dup.Error() != "migration game/common/001_init is already applied" {
		t.Errorf("unexpected message %q", dup.Error())
	}

	// The whole batch is rejected.
	got, _ := store.Applied(ctx)
	if len(got) != 1 {
		t.Errorf("expected only the first row to be recorded, got %d rows", len(got))
	}
}
