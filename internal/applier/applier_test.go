package applier

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/bpmigrate/bpmigrate/internal/artifact"
	"github.com/bpmigrate/bpmigrate/internal/config"
	"github.com/bpmigrate/bpmigrate/internal/database"
	"github.com/bpmigrate/bpmigrate/internal/ignore"
	"github.com/bpmigrate/bpmigrate/internal/tracking"
)

type fixture struct {
	cfg   *config.Config
	pools *database.Pools
	store *tracking.SQLStore
}

// newFixture creates a project with one sqlite slot per component and a
// separate sqlite tracking database.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf(`
version: 1
tracking:
  name: %s
  driver: sqlite3
databases:
  db:
    name: %s
    driver: sqlite3
components:
  - name: comp
  - name: shop
`, filepath.Join(dir, "tracking.db"), filepath.Join(dir, "app.db"))
	path := filepath.Join(dir, "bpmigrate.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()
	slot, _ := cfg.Slot("comp", "db")
	pools, err := database.OpenAll(ctx, map[string]config.Database{
		"comp/db": slot,
		"shop/db": slot,
	})
	if err != nil {
		t.Fatalf("failed to open pools: %v", err)
	}
	t.Cleanup(pools.Close)

	trackingDB, err := cfg.TrackingDatabase()
	if err != nil {
		t.Fatalf("failed to resolve tracking database: %v", err)
	}
	db, err := database.Open(ctx, trackingDB)
	if err != nil {
		t.Fatalf("failed to open tracking database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := tracking.NewSQLStore(db, database.DialectFor(trackingDB.Driver), cfg.TrackingTable)
	if err := store.EnsureTable(ctx); err != nil {
		t.Fatalf("failed to create tracking table: %v", err)
	}
	return &fixture{cfg: cfg, pools: pools, store: store}
}

// write stores an artifact for component/slot/name.
func (f *fixture) write(t *testing.T, id string, operations string, deps ...string) {
	t.Helper()
	parsed, err := artifact.ParseID(id)
	if err != nil {
		t.Fatalf("bad id %s: %v", id, err)
	}
	dir := f.cfg.SlotPath(parsed.Component, parsed.Slot)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create %s: %v", dir, err)
	}
	a := &artifact.Artifact{Dependencies: deps, Operations: operations}
	if _, err := artifact.Write(filepath.Join(dir, parsed.Name+artifact.Ext), a); err != nil {
		t.Fatalf("failed to write artifact %s: %v", id, err)
	}
}

func (f *fixture) run(t *testing.T, store tracking.Store) (*Result, []Event, error) {
	t.Helper()
	if store == nil {
		store = f.store
	}
	var events []Event
	a := New(f.cfg, f.pools, store, nil)
	a.OnEvent = func(e Event) { events = append(events, e) }
	result, err := a.Run(context.Background())
	return result, events, err
}

func (f *fixture) recorded(t *testing.T) []string {
	t.Helper()
	rows, err := f.store.Applied(context.Background())
	if err != nil {
		t.Fatalf("failed to read tracking rows: %v", err)
	}
	var ids []string
	for _, r := range rows {
		ids = append(ids, r.ID())
	}
	return ids
}

func (f *fixture) tableExists(t *testing.T, table string) bool {
	t.Helper()
	db, _, _ := f.pools.Get("comp/db")
	var name string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return false
	}
	if err != nil {
		t.Fatalf("failed to query sqlite_master: %v", err)
	}
	return true
}

func TestRunAppliesDependenciesFirst(t *testing.T) {
	f := newFixture(t)
	f.write(t, "comp/db/1_orders_index", "CREATE INDEX idx_orders_user ON orders (user_id);", "comp/db/2_orders")
	f.write(t, "comp/db/2_orders", "CREATE TABLE orders (id INTEGER, user_id INTEGER REFERENCES users (id));", "comp/db/3_users")
	f.write(t, "comp/db/3_users", "CREATE TABLE users (id INTEGER PRIMARY KEY);")

	result, events, err := f.run(t, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	expected := []string{"comp/db/3_users", "comp/db/2_orders", "comp/db/1_orders_index"}
	if diff := cmp.Diff(expected, result.Applied); diff != "" {
		t.Errorf("application order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(expected, f.recorded(t)); diff != "" {
		t.Errorf("tracking rows mismatch (-want +got):\n%s", diff)
	}
	if result.Recorded != 3 {
		t.Errorf("expected 3 recorded rows, got %d", result.Recorded)
	}

	// The later listing entries were applied as dependencies already.
	if result.Skipped != 2 {
		t.Errorf("expected 2 skipped, got %d", result.Skipped)
	}

	type outcome struct {
		Migration string
		Depth     int
		State     State
	}
	var outcomes []outcome
	for _, e := range events {
		if e.Kind == EventOutcome {
			outcomes = append(outcomes, outcome{e.Migration, e.Depth, e.State})
		}
	}
	expectedOutcomes := []outcome{
		{"comp/db/3_users", 2, StateApplied},
		{"comp/db/2_orders", 1, StateApplied},
		{"comp/db/1_orders_index", 0, StateApplied},
		{"comp/db/2_orders", 0, StateSkipped},
		{"comp/db/3_users", 0, StateSkipped},
	}
	if diff := cmp.Diff(expectedOutcomes, outcomes); diff != "" {
		t.Errorf("outcomes mismatch (-want +got):\n%s", diff)
	}
}

func TestRunAppliesAtMostOnce(t *testing.T) {
	f := newFixture(t)
	f.write(t, "comp/db/0001_users", "CREATE TABLE users (id INTEGER PRIMARY KEY);")
	f.write(t, "shop/db/0001_orders", "CREATE TABLE orders (id INTEGER, user_id INTEGER);", "comp/db/0001_users")

	if _, _, err := f.run(t, nil); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}

	result, _, err := f.run(t, nil)
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if len(result.Applied) != 0 || result.Recorded != 0 {
		t.Errorf("expected nothing applied on the second run, got %+v", result)
	}
	if result.Skipped != 2 {
		t.Errorf("expected 2 skipped, got %d", result.Skipped)
	}
	if diff := cmp.Diff([]string{"comp/db/0001_users", "shop/db/0001_orders"}, f.recorded(t)); diff != "" {
		t.Errorf("tracking rows mismatch (-want +got):\n%s", diff)
	}
}

func TestRunContinuesAfterFailure(t *testing.T) {
	f := newFixture(t)
	f.write(t, "comp/db/0001_broken", "CREATE TABLE broken (id INTEGER); INSERT INTO missing VALUES (1);")
	f.write(t, "comp/db/0002_users", "CREATE TABLE users (id INTEGER PRIMARY KEY);")

	result, _, err := f.run(t, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if diff := cmp.Diff([]string{"comp/db/0002_users"}, result.Applied); diff != "" {
		t.Errorf("applied mismatch (-want +got):\n%s", diff)
	}
	if len(result.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %v", result.Failures)
	}
	var execErr *ExecutionError
	if !errors.As(result.Failures[0], &execErr) || execErr.Migration != "comp/db/0001_broken" {
		t.Errorf("expected ExecutionError for comp/db/0001_broken, got %v", result.Failures[0])
	}

	if f.tableExists(t, "broken") {
		t.Error("expected the failed migration to be rolled back")
	}
	if !f.tableExists(t, "users") {
		t.Error("expected users table to exist")
	}
	if diff := cmp.Diff([]string{"comp/db/0002_users"}, f.recorded(t)); diff != "" {
		t.Errorf("tracking rows mismatch (-want +got):\n%s", diff)
	}
}

func TestRunReportsBadArtifacts(t *testing.T) {
	f := newFixture(t)
	dir := f.cfg.SlotPath("comp", "db")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create %s: %v", dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "0001_notes.yaml"), []byte("title: notes\n"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	f.write(t, "comp/db/0002_orders", "CREATE TABLE orders (id INTEGER);", "ghost/db/0001_x", "comp/db/0009_missing")

	result, events, err := f.run(t, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	failed := make(map[string]error)
	for _, e := range events {
		if e.Kind == EventOutcome && e.State == StateFailed {
			failed[e.Migration] = e.Err
		}
	}
	if !errors.Is(failed["comp/db/0001_notes"], artifact.ErrNotMigration) {
		t.Errorf("expected not-a-migration failure, got %v", failed["comp/db/0001_notes"])
	}
	if !errors.Is(failed["ghost/db/0001_x"], ErrUnknownTarget) {
		t.Errorf("expected unknown target failure, got %v", failed["ghost/db/0001_x"])
	}
	if !errors.Is(failed["comp/db/0009_missing"], os.ErrNotExist) {
		t.Errorf("expected missing artifact failure, got %v", failed["comp/db/0009_missing"])
	}

	// Failed dependencies do not block the dependent.
	if diff := cmp.Diff([]string{"comp/db/0002_orders"}, result.Applied); diff != "" {
		t.Errorf("applied mismatch (-want +got):\n%s", diff)
	}
}

func TestRunStopsOnCycle(t *testing.T) {
	f := newFixture(t)
	f.write(t, "comp/db/0_users", "CREATE TABLE users (id INTEGER PRIMARY KEY);")
	f.write(t, "comp/db/1_a", "CREATE TABLE a (id INTEGER);", "comp/db/2_b")
	f.write(t, "comp/db/2_b", "CREATE TABLE b (id INTEGER);", "comp/db/1_a")

	result, _, err := f.run(t, nil)

	var cycle *CyclicDependencyError
	if !errors.As(err, &cycle) {
		t.Fatalf("expected CyclicDependencyError, got %v", err)
	}
	if diff := cmp.Diff([]string{"comp/db/1_a", "comp/db/2_b", "comp/db/1_a"}, cycle.Path); diff != "" {
		t.Errorf("cycle path mismatch (-want +got):\n%s", diff)
	}

	// Work committed before the cycle is still recorded.
	if diff := cmp.Diff([]string{"comp/db/0_users"}, f.recorded(t)); diff != "" {
		t.Errorf("tracking rows mismatch (-want +got):\n%s", diff)
	}
	if result.Recorded != 1 {
		t.Errorf("expected 1 recorded row, got %d", result.Recorded)
	}
}

// staleStore hides the recorded rows, as if another run recorded them after
// this one loaded its skip set.
type staleStore struct {
	*tracking.SQLStore
}

func (staleStore) Applied(context.Context) ([]tracking.Applied, error) {
	return nil, nil
}

func TestRunReportsDuplicateRecords(t *testing.T) {
	f := newFixture(t)
	f.write(t, "comp/db/0001_users", "CREATE TABLE IF NOT EXISTS users (id INTEGER PRIMARY KEY);")

	if _, _, err := f.run(t, nil); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}

	result, _, err := f.run(t, staleStore{f.store})
	var dup *tracking.DuplicateApplicationError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateApplicationError, got %v", err)
	}
	if dup.Row.ID() != "comp/db/0001_users" {
		t.Errorf("unexpected offending row %s", dup.Row.ID())
	}
	if diff := cmp.Diff([]string{"comp/db/0001_users"}, result.Applied, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("applied mismatch (-want +got):\n%s", diff)
	}
	if result.Recorded != 0 {
		t.Errorf("expected no recorded rows, got %d", result.Recorded)
	}
}

func TestRunSkipsIgnoredListingEntries(t *testing.T) {
	f := newFixture(t)
	f.write(t, "comp/db/0001_users", "CREATE TABLE users (id INTEGER PRIMARY KEY);")
	f.write(t, "comp/db/scratch_seed", "INSERT INTO users VALUES (1);", "comp/db/0001_users")
	f.write(t, "shop/db/0001_orders", "CREATE TABLE orders (id INTEGER);")

	a := New(f.cfg, f.pools, f.store, nil)
	a.Ignore = &ignore.IgnoreConfig{Components: []string{"shop"}, Migrations: []string{"scratch_*"}}
	result, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if diff := cmp.Diff([]string{"comp/db/0001_users"}, result.Applied); diff != "" {
		t.Errorf("applied mismatch (-want +got):\n%s", diff)
	}
	if f.tableExists(t, "orders") {
		t.Error("expected the ignored component to be left alone")
	}
}

func TestRunFollowsDependenciesOnIgnoredMigrations(t *testing.T) {
	f := newFixture(t)
	f.write(t, "comp/db/scratch_users", "CREATE TABLE users (id INTEGER PRIMARY KEY);")
	f.write(t, "comp/db/z_seed", "INSERT INTO users VALUES (1);", "comp/db/scratch_users")

	a := New(f.cfg, f.pools, f.store, nil)
	a.Ignore = &ignore.IgnoreConfig{Migrations: []string{"scratch_*"}}
	result, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if diff := cmp.Diff([]string{"comp/db/scratch_users", "comp/db/z_seed"}, result.Applied); diff != "" {
		t.Errorf("applied mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"comp/db/scratch_users", "comp/db/z_seed"}, f.recorded(t)); diff != "" {
		t.Errorf("recorded mismatch (-want +got):\n%s", diff)
	}
}
