// Package registry keeps the in-memory model of every table, index and
// trigger seen during one generation run, together with the migrations that
// created or altered each of them.
package registry

import (
	"slices"
)

// Kind is the class of a schema object.
type Kind int

const (
	KindTable Kind = iota
	KindIndex
	KindTrigger
)

func (k Kind) String() string {
	switch k {
	case KindIndex:
		return "index"
	case KindTrigger:
		return "trigger"
	default:
		return "table"
	}
}

// Facet selects which column set of a record a lookup must intersect.
type Facet int

const (
	FacetColumns Facet = iota
	FacetRenamed
	FacetDropped
)

// DatabaseResolver maps a component's database slot to the database name.
type DatabaseResolver interface {
	DatabaseName(component, slot string) (string, bool)
}

// Record is one schema object as currently known.
type Record struct {
	Kind      Kind
	Name      string
	Component string
	Database  string
	Slot      string
	// Table is the owning table of an index or trigger; empty for tables.
	Table   string
	Columns []string
	// Renamed and Dropped map a column name to the migration that marked it.
	Renamed map[string]string
	Dropped map[string]string
	// Migrations lists the creating and altering migrations in the order
	// they were recorded.
	Migrations []string
}

// HasColumn reports whether the column is currently believed present.
func (r *Record) HasColumn(column string) bool {
	return slices.Contains(r.Columns, column)
}

func (r *Record) addMigration(migration string) {
	if !slices.Contains(r.Migrations, migration) {
		r.Migrations = append(r.Migrations, migration)
	}
}

func (r *Record) addColumns(columns []string) {
	for _, c := range columns {
		if !r.HasColumn(c) {
			r.Columns = append(r.Columns, c)
		}
	}
}

func (r *Record) clone() *Record {
	cp := *r
	cp.Columns = slices.Clone(r.Columns)
	cp.Migrations = slices.Clone(r.Migrations)
	cp.Renamed = cloneMarks(r.Renamed)
	cp.Dropped = cloneMarks(r.Dropped)
	return &cp
}

func cloneMarks(m map[string]string) map[string]string {
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

func (r *Record) marks(f Facet) map[string]string {
	switch f {
	case FacetRenamed:
		return r.Renamed
	case FacetDropped:
		return r.Dropped
	}
	return nil
}

// Registry is the schema state of one generation run. It is not safe for
// concurrent use.
type Registry struct {
	resolver DatabaseResolver
	objects  map[Kind]map[string][]*Record
	// dropped holds retired index records, still addressable by name.
	dropped map[string][]*Record
	// retired guards against renaming or dropping the same object twice.
	retired map[string]bool
}

// New creates an empty registry.
func New(resolver DatabaseResolver) *Registry {
	return &Registry{
		resolver: resolver,
		objects: map[Kind]map[string][]*Record{
			KindTable:   {},
			KindIndex:   {},
			KindTrigger: {},
		},
		dropped: map[string][]*Record{},
		retired: map[string]bool{},
	}
}

// find returns the position of the record owned by component/slot. An empty
// table matches any owning table.
func (r *Registry) find(kind Kind, name, component, slot, table string) (int, bool) {
	db, ok := r.resolver.DatabaseName(component, slot)
	if !ok {
		return -1, false
	}
	for i, rec := range r.objects[kind][name] {
		if rec.Component == component && rec.Database == db && rec.Slot == slot &&
			(rec.Table == "" || table == "" || rec.Table == table) {
			return i, true
		}
	}
	return -1, false
}

func (r *Registry) record(kind Kind, name, component, slot, table, migration string, columns []string, requireColumns bool) {
	if requireColumns && len(columns) == 0 {
		return
	}
	db, ok := r.resolver.DatabaseName(component, slot)
	if !ok {
		return
	}
	if i, ok := r.find(kind, name, component, slot, table); ok {
		rec := r.objects[kind][name][i]
		rec.addMigration(migration)
		rec.addColumns(columns)
		return
	}
	rec := &Record{
		Kind:       kind,
		Name:       name,
		Component:  component,
		Database:   db,
		Slot:       slot,
		Table:      table,
		Renamed:    map[string]string{},
		Dropped:    map[string]string{},
		Migrations: []string{migration},
	}
	rec.addColumns(columns)
	r.objects[kind][name] = append(r.objects[kind][name], rec)
}

// RecordTable upserts a table record, unioning columns and creators. An
// empty column set is a no-op.
func (r *Registry) RecordTable(table, component, slot, migration string, columns []string) {
	r.record(KindTable, table, component, slot, "", migration, columns, true)
}

// RecordIndex upserts an index on table. An empty column set is a no-op.
func (r *Registry) RecordIndex(name, component, table, migration, slot string, columns []string) {
	r.record(KindIndex, name, component, slot, table, migration, columns, true)
}

// RecordTrigger upserts a trigger firing on table.
func (r *Registry) RecordTrigger(name, component, table, migration, slot string) {
	r.record(KindTrigger, name, component, slot, table, migration, nil, false)
}

// Rename is an old to new column or index name pair.
type Rename struct {
	From string
	To   string
}

// MarkColumnsRenamed renames present columns of a known table and marks the
// old names as renamed by migration.
func (r *Registry) MarkColumnsRenamed(table, component, slot, migration string, renames []Rename) {
	i, ok := r.find(KindTable, table, component, slot, "")
	if !ok {
		return
	}
	rec := r.objects[KindTable][table][i]
	for _, rn := range renames {
		idx := slices.Index(rec.Columns, rn.From)
		if idx < 0 {
			continue
		}
		rec.Columns = slices.Delete(rec.Columns, idx, idx+1)
		rec.addColumns([]string{rn.To})
		rec.addMigration(migration)
		rec.Renamed[rn.From] = migration
	}
}

// MarkColumnsDropped removes present columns of a known table and marks them
// as dropped by migration.
func (r *Registry) MarkColumnsDropped(table, component, slot, migration string, columns []string) {
	i, ok := r.find(KindTable, table, component, slot, "")
	if !ok {
		return
	}
	rec := r.objects[KindTable][table][i]
	for _, col := range columns {
		idx := slices.Index(rec.Columns, col)
		if idx < 0 {
			continue
		}
		rec.Columns = slices.Delete(rec.Columns, idx, idx+1)
		rec.addMigration(migration)
		rec.Dropped[col] = migration
	}
}

func retiredKey(component, slot, table, name string) string {
	return component + "/" + slot + "/" + table + "/" + name
}

// RenameIndex moves index records of table to their new names. The renamed
// record keeps its history and gains migration as a contributor.
func (r *Registry) RenameIndex(kind Kind, table, component, slot, migration string, renames []Rename) {
	for _, rn := range renames {
		key := retiredKey(component, slot, table, rn.From)
		if r.retired[key] {
			continue
		}
		i, ok := r.find(kind, rn.From, component, slot, table)
		if !ok {
			continue
		}
		rec := r.objects[kind][rn.From][i].clone()
		r.objects[kind][rn.From] = slices.Delete(r.objects[kind][rn.From], i, i+1)
		rec.Name = rn.To
		rec.addMigration(migration)
		r.objects[kind][rn.To] = append(r.objects[kind][rn.To], rec)
		r.retired[key] = true
	}
}

// DropIndex retires index records of table. Dropped records are no longer
// visible to ordinary lookups but remain available through Dropped and
// through queries with IncludeDropped.
func (r *Registry) DropIndex(kind Kind, table, component, slot, migration string, names []string) {
	for _, name := range names {
		key := retiredKey(component, slot, table, name)
		if r.retired[key] {
			continue
		}
		i, ok := r.find(kind, name, component, slot, table)
		if !ok {
			continue
		}
		rec := r.objects[kind][name][i]
		r.objects[kind][name] = slices.Delete(r.objects[kind][name], i, i+1)
		rec.addMigration(migration)
		r.dropped[name] = append(r.dropped[name], rec)
		r.retired[key] = true
	}
}

// Dropped returns the retired index records ordered by name.
func (r *Registry) Dropped() []*Record {
	var out []*Record
	names := make([]string, 0, len(r.dropped))
	for name := range r.dropped {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		out = append(out, r.dropped[name]...)
	}
	return out
}

// Known reports whether any live record of kind exists under name.
func (r *Registry) Known(kind Kind, name string) bool {
	return len(r.objects[kind][name]) > 0
}

// Query describes a lookup. Component and Table are optional filters.
type Query struct {
	Kind      Kind
	Name      string
	Database  string
	Component string
	Table     string
	Facet     Facet
	Columns   []string
	// Requester is the migration performing the lookup. Rename and drop
	// markers it placed itself are matched but not consumed.
	Requester string
	// RequesterComponent and RequesterSlot qualify Requester.
	RequesterComponent string
	RequesterSlot      string
	IncludeDropped     bool
}

// Match is the result of a successful lookup.
type Match struct {
	Record *Record
	// Columns are the requested columns found in the selected facet.
	Columns []string
}

// Find returns the first record satisfying q. For the renamed and dropped
// facets the matched markers are consumed, so each marker satisfies at most
// one dependent lookup.
func (r *Registry) Find(q Query) (Match, bool) {
	candidates := r.objects[q.Kind][q.Name]
	if q.IncludeDropped {
		candidates = append(slices.Clone(candidates), r.dropped[q.Name]...)
	}

	for _, rec := range candidates {
		if rec.Database != q.Database {
			continue
		}
		if q.Component != "" && rec.Component != q.Component {
			continue
		}
		if q.Table != "" && rec.Table != q.Table {
			continue
		}
		matched := r.intersect(rec, q)
		if q.Facet != FacetColumns && len(matched) == 0 {
			continue
		}
		if q.Facet == FacetColumns && len(q.Columns) > 0 && len(matched) == 0 {
			continue
		}
		r.consume(rec, q, matched)
		return Match{Record: rec, Columns: matched}, true
	}
	return Match{}, false
}

func (r *Registry) intersect(rec *Record, q Query) []string {
	var matched []string
	for _, col := range q.Columns {
		var ok bool
		if q.Facet == FacetColumns {
			ok = rec.HasColumn(col)
		} else {
			_, ok = rec.marks(q.Facet)[col]
		}
		if ok && !slices.Contains(matched, col) {
			matched = append(matched, col)
		}
	}
	return matched
}

func (r *Registry) consume(rec *Record, q Query, matched []string) {
	marks := rec.marks(q.Facet)
	if marks == nil {
		return
	}
	for _, col := range matched {
		if marks[col] == q.Requester && rec.Component == q.RequesterComponent && rec.Slot == q.RequesterSlot {
			continue
		}
		delete(marks, col)
	}
}
