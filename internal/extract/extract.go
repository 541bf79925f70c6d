// Package extract turns the typed statements of one migration into the list
// of migrations it depends on, using the schema registry to find who created
// each referenced table, index or trigger.
package extract

import (
	"slices"

	"github.com/bpmigrate/bpmigrate/internal/logger"
	"github.com/bpmigrate/bpmigrate/internal/registry"
	"github.com/bpmigrate/bpmigrate/internal/sqltext"
)

// Migration identifies the migration being analyzed.
type Migration struct {
	Component string
	Slot      string
	// Database is the database name the slot resolves to.
	Database string
	Name     string
}

// ID returns the "component/slot/name" form used in artifacts.
func (m Migration) ID() string {
	return FormatID(m.Component, m.Slot, m.Name)
}

// FormatID joins the parts of a migration identifier.
func FormatID(component, slot, name string) string {
	return component + "/" + slot + "/" + name
}

// Warning is a reference to an object no known migration creates. Warnings
// are diagnostics only and never stop generation.
type Warning struct {
	Migration string
	Message   string
}

func (w Warning) Error() string {
	return w.Migration + ": " + w.Message
}

// Result accumulates the dependencies and unresolved references of one
// migration across all extractors.
type Result struct {
	migration    string
	dependencies []string
	warnings     []string
}

// NewResult returns an empty result for m.
func NewResult(m Migration) *Result {
	return &Result{migration: m.ID()}
}

// Dependencies returns the prerequisite identifiers in discovery order.
func (r *Result) Dependencies() []string {
	return slices.Clone(r.dependencies)
}

// Warnings returns the pending warnings in the order they were raised.
func (r *Result) Warnings() []Warning {
	out := make([]Warning, 0, len(r.warnings))
	for _, msg := range r.warnings {
		out = append(out, Warning{Migration: r.migration, Message: msg})
	}
	return out
}

func (r *Result) addDependency(id string) {
	if !slices.Contains(r.dependencies, id) {
		r.dependencies = append(r.dependencies, id)
	}
}

// Warn records a warning unless an identical one is already pending.
func (r *Result) Warn(msg string) {
	if !slices.Contains(r.warnings, msg) {
		r.warnings = append(r.warnings, msg)
	}
}

func (r *Result) clear(msg string) {
	if i := slices.Index(r.warnings, msg); i >= 0 {
		r.warnings = slices.Delete(r.warnings, i, i+1)
	}
}

// Extractor analyzes one statement family.
type Extractor interface {
	Name() string
	Extract(reg *registry.Registry, m Migration, stmts []sqltext.Statement, res *Result)
}

// All returns the extractors in the order they run.
func All() []Extractor {
	return []Extractor{
		ForeignKeys{},
		CreateIndexes{},
		CreateTriggers{},
		AlterTables{},
		DropTriggers{},
	}
}

// Run applies every extractor to the statements of m.
func Run(reg *registry.Registry, m Migration, stmts []sqltext.Statement) *Result {
	log := logger.Get()
	res := NewResult(m)
	for _, e := range All() {
		log.Debug("Making dependencies", "extractor", e.Name(), "migration", m.ID())
		e.Extract(reg, m, stmts, res)
	}
	return res
}

// resolve looks q up on behalf of m. Every warning is raised first and
// cleared again when the lookup succeeds. When there is one warning per
// queried column, only the warnings of the matched columns are cleared.
// On success every creator of the matched record becomes a dependency,
// except m itself.
func resolve(reg *registry.Registry, m Migration, q registry.Query, res *Result, warnings ...string) {
	for _, w := range warnings {
		res.Warn(w)
	}

	q.Requester = m.Name
	q.RequesterComponent = m.Component
	q.RequesterSlot = m.Slot
	match, ok := reg.Find(q)
	if !ok {
		return
	}

	if len(q.Columns) > 0 && len(q.Columns) == len(warnings) {
		for i, col := range q.Columns {
			if slices.Contains(match.Columns, col) {
				res.clear(warnings[i])
			}
		}
	} else {
		for _, w := range warnings {
			res.clear(w)
		}
	}

	rec := match.Record
	for _, creator := range rec.Migrations {
		if rec.Component == m.Component && rec.Slot == m.Slot && creator == m.Name {
			continue
		}
		res.addDependency(FormatID(rec.Component, rec.Slot, creator))
	}
}

// database returns the qualifier of n, or the migration's own database.
func database(m Migration, n sqltext.Name) string {
	if n.Database != "" {
		return n.Database
	}
	return m.Database
}
