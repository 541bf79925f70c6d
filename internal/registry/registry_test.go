package registry

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

type slots map[string]string

func (s slots) DatabaseName(component, slot string) (string, bool) {
	db, ok := s[component+"/"+slot]
	return db, ok
}

func newTestRegistry() *Registry {
	return New(slots{
		"comp/db":    "app",
		"comp/stats": "analytics",
		"other/db":   "app",
	})
}

func TestRecordTableMerges(t *testing.T) {
	r := newTestRegistry()
	r.RecordTable("users", "comp", "db", "file1", []string{"id", "name"})
	r.RecordTable("users", "comp", "db", "file2", []string{"email", "id"})

	m, ok := r.Find(Query{Kind: KindTable, Name: "users", Database: "app"})
	if !ok {
		t.Fatal("expected users to be found")
	}
	if diff := cmp.Diff([]string{"id", "name", "email"}, m.Record.Columns); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"file1", "file2"}, m.Record.Migrations); diff != "" {
		t.Errorf("migrations mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordTableEmptyColumnsIsNoop(t *testing.T) {
	r := newTestRegistry()
	r.RecordTable("users", "comp", "db", "file1", []string{"id"})
	r.RecordTable("users", "comp", "db", "file2", nil)
	r.RecordTable("ghost", "comp", "db", "file2", nil)

	m, _ := r.Find(Query{Kind: KindTable, Name: "users", Database: "app"})
	if diff := cmp.Diff([]string{"file1"}, m.Record.Migrations); diff != "" {
		t.Errorf("migrations mismatch (-want +got):\n%s", diff)
	}
	if r.Known(KindTable, "ghost") {
		t.Error("expected no record for a table recorded without columns")
	}
}

func TestRecordsAreScopedByComponentAndSlot(t *testing.T) {
	r := newTestRegistry()
	r.RecordTable("users", "comp", "db", "a", []string{"id"})
	r.RecordTable("users", "other", "db", "b", []string{"id"})
	r.RecordTable("users", "comp", "stats", "c", []string{"id"})
	r.RecordTable("users", "unknown", "db", "d", []string{"id"})

	if got := len(r.objects[KindTable]["users"]); got != 3 {
		t.Fatalf("expected 3 distinct records, got %d", got)
	}

	m, ok := r.Find(Query{Kind: KindTable, Name: "users", Database: "app", Component: "other"})
	if !ok || m.Record.Component != "other" {
		t.Fatalf("expected record of component other, got %+v", m.Record)
	}
	m, ok = r.Find(Query{Kind: KindTable, Name: "users", Database: "analytics"})
	if !ok || m.Record.Slot != "stats" {
		t.Fatalf("expected record in analytics database, got %+v", m.Record)
	}
}

func TestIndexRecordsScopedByTable(t *testing.T) {
	r := newTestRegistry()
	r.RecordIndex("idx_name", "comp", "users", "file1", "db", []string{"name"})
	r.RecordIndex("idx_name", "comp", "teams", "file2", "db", []string{"name"})
	r.RecordIndex("idx_empty", "comp", "users", "file3", "db", nil)

	if got := len(r.objects[KindIndex]["idx_name"]); got != 2 {
		t.Fatalf("expected 2 index records, got %d", got)
	}
	if r.Known(KindIndex, "idx_empty") {
		t.Error("expected index without columns to be ignored")
	}
	m, ok := r.Find(Query{Kind: KindIndex, Name: "idx_name", Database: "app", Table: "teams"})
	if !ok || m.Record.Migrations[0] != "file2" {
		t.Fatalf("expected index on teams, got %+v", m.Record)
	}
}

func TestColumnsFacetRequiresIntersection(t *testing.T) {
	r := newTestRegistry()
	r.RecordTable("users", "comp", "db", "file1", []string{"id", "name"})

	if _, ok := r.Find(Query{Kind: KindTable, Name: "users", Database: "app", Columns: []string{"email"}}); ok {
		t.Error("expected no match for a missing column")
	}
	m, ok := r.Find(Query{Kind: KindTable, Name: "users", Database: "app", Columns: []string{"email", "name"}})
	if !ok {
		t.Fatal("expected a match when one column is present")
	}
	if diff := cmp.Diff([]string{"name"}, m.Columns); diff != "" {
		t.Errorf("matched columns mismatch (-want +got):\n%s", diff)
	}
	if _, ok := r.Find(Query{Kind: KindTable, Name: "users", Database: "other"}); ok {
		t.Error("expected no match in another database")
	}
}

func TestRenamedMarkerIsConsumedOnce(t *testing.T) {
	r := newTestRegistry()
	r.RecordTable("t", "comp", "db", "A", []string{"c"})
	r.MarkColumnsRenamed("t", "comp", "db", "B", []Rename{{From: "c", To: "d"}})

	query := func(requester string) Query {
		return Query{
			Kind: KindTable, Name: "t", Database: "app", Component: "comp",
			Facet: FacetRenamed, Columns: []string{"c"},
			Requester: requester, RequesterComponent: "comp", RequesterSlot: "db",
		}
	}

	// The renaming migration itself does not use up the marker.
	if _, ok := r.Find(query("B")); !ok {
		t.Fatal("expected B to see its own rename")
	}
	m, ok := r.Find(query("C"))
	if !ok {
		t.Fatal("expected C to match the rename")
	}
	if diff := cmp.Diff([]string{"A", "B"}, m.Record.Migrations); diff != "" {
		t.Errorf("migrations mismatch (-want +got):\n%s", diff)
	}
	if _, ok := r.Find(query("D")); ok {
		t.Error("expected the rename marker to be consumed by C")
	}

	m, _ = r.Find(Query{Kind: KindTable, Name: "t", Database: "app"})
	if diff := cmp.Diff([]string{"d"}, m.Record.Columns); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
}

func TestDroppedMarker(t *testing.T) {
	r := newTestRegistry()
	r.RecordTable("t", "comp", "db", "A", []string{"a", "b"})
	r.MarkColumnsDropped("t", "comp", "db", "B", []string{"b", "missing"})
	r.MarkColumnsDropped("nope", "comp", "db", "B", []string{"a"})

	m, _ := r.Find(Query{Kind: KindTable, Name: "t", Database: "app"})
	if diff := cmp.Diff([]string{"a"}, m.Record.Columns); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]string{"b": "B"}, m.Record.Dropped); diff != "" {
		t.Errorf("dropped mismatch (-want +got):\n%s", diff)
	}

	q := Query{Kind: KindTable, Name: "t", Database: "app", Facet: FacetDropped, Columns: []string{"b"}, Requester: "C"}
	if _, ok := r.Find(q); !ok {
		t.Fatal("expected dropped column to match")
	}
	if _, ok := r.Find(q); ok {
		t.Error("expected dropped marker to be consumed")
	}
}

func TestRenameIndexKeepsHistory(t *testing.T) {
	r := newTestRegistry()
	r.RecordIndex("idx_a", "comp", "users", "file1", "db", []string{"name"})
	r.RenameIndex(KindIndex, "users", "comp", "db", "file2", []Rename{{From: "idx_a", To: "idx_b"}})
	// A second rename of the same object is ignored.
	r.RecordIndex("idx_a", "comp", "users", "file3", "db", []string{"email"})
	r.RenameIndex(KindIndex, "users", "comp", "db", "file4", []Rename{{From: "idx_a", To: "idx_c"}})

	m, ok := r.Find(Query{Kind: KindIndex, Name: "idx_b", Database: "app", Table: "users"})
	if !ok {
		t.Fatal("expected renamed index under its new name")
	}
	if diff := cmp.Diff([]string{"file1", "file2"}, m.Record.Migrations); diff != "" {
		t.Errorf("migrations mismatch (-want +got):\n%s", diff)
	}
	if !r.Known(KindIndex, "idx_a") {
		t.Error("expected the re-created idx_a to stay in place")
	}
	if r.Known(KindIndex, "idx_c") {
		t.Error("expected the second rename of idx_a to be ignored")
	}
}

func TestDropIndex(t *testing.T) {
	r := newTestRegistry()
	r.RecordIndex("idx_a", "comp", "users", "file1", "db", []string{"name"})
	r.DropIndex(KindIndex, "users", "comp", "db", "file2", []string{"idx_a"})

	if r.Known(KindIndex, "idx_a") {
		t.Error("expected dropped index to be gone from live records")
	}
	m, ok := r.Find(Query{Kind: KindIndex, Name: "idx_a", Database: "app", IncludeDropped: true})
	if !ok {
		t.Fatal("expected dropped index to be found with IncludeDropped")
	}
	if diff := cmp.Diff([]string{"file1", "file2"}, m.Record.Migrations); diff != "" {
		t.Errorf("migrations mismatch (-want +got):\n%s", diff)
	}
	if got := len(r.Dropped()); got != 1 {
		t.Errorf("expected 1 dropped record, got %d", got)
	}
}

func TestRecordTrigger(t *testing.T) {
	r := newTestRegistry()
	r.RecordTrigger("on_create", "comp", "users", "file1", "db")
	r.RecordTrigger("on_create", "comp", "users", "file2", "db")

	m, ok := r.Find(Query{Kind: KindTrigger, Name: "on_create", Database: "app", Component: "comp"})
	if !ok {
		t.Fatal("expected trigger to be found")
	}
	if diff := cmp.Diff([]string{"file1", "file2"}, m.Record.Migrations); diff != "" {
		t.Errorf("migrations mismatch (-want +got):\n%s", diff)
	}
}
