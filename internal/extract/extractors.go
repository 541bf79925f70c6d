package extract

import (
	"fmt"
	"slices"
	"strings"

	"github.com/bpmigrate/bpmigrate/internal/registry"
	"github.com/bpmigrate/bpmigrate/internal/sqltext"
)

// ForeignKeys makes a migration depend on the creators of every table its
// foreign keys reference. The referenced table may belong to any component.
type ForeignKeys struct{}

func (ForeignKeys) Name() string { return "foreign keys" }

func (ForeignKeys) Extract(reg *registry.Registry, m Migration, stmts []sqltext.Statement, res *Result) {
	for _, stmt := range stmts {
		var fks []sqltext.ForeignKey
		switch s := stmt.(type) {
		case *sqltext.CreateTable:
			fks = s.ForeignKeys
		case *sqltext.AlterTable:
			fks = s.ForeignKeys
		}
		for _, fk := range fks {
			db := database(m, fk.Table)
			label := fk.Name
			if label == "" {
				label = "(" + strings.Join(fk.Columns, ", ") + ")"
			}
			resolve(reg, m, registry.Query{
				Kind:     registry.KindTable,
				Name:     fk.Table.Object,
				Database: db,
				Columns:  fk.RefColumns,
			}, res, fmt.Sprintf(`Related table "%s.%s" of foreign key "%s" is not created in any migration`,
				db, fk.Table.Object, label))
		}
	}
}

type createdIndex struct {
	table sqltext.Name
	index sqltext.IndexDef
}

func indexesCreatedBy(stmts []sqltext.Statement) []createdIndex {
	var out []createdIndex
	for _, stmt := range stmts {
		switch s := stmt.(type) {
		case *sqltext.CreateTable:
			for _, idx := range s.Indexes {
				out = append(out, createdIndex{table: s.Table, index: idx})
			}
		case *sqltext.AlterTable:
			for _, idx := range s.AddIndexes {
				out = append(out, createdIndex{table: s.Table, index: idx})
			}
		case *sqltext.CreateIndex:
			out = append(out, createdIndex{table: s.Table, index: s.Index})
		}
	}
	return out
}

// CreateIndexes makes a migration depend on the creators of the tables and
// columns it indexes, whether the index is standalone or embedded in a
// CREATE or ALTER TABLE.
type CreateIndexes struct{}

func (CreateIndexes) Name() string { return "create indexes" }

func (CreateIndexes) Extract(reg *registry.Registry, m Migration, stmts []sqltext.Statement, res *Result) {
	for _, ci := range indexesCreatedBy(stmts) {
		if len(ci.index.Columns) == 0 {
			continue
		}
		table := ci.table.Object
		if !reg.Known(registry.KindTable, table) {
			res.Warn(fmt.Sprintf(`Indexing table "%s" is not created in any migration`, table))
			continue
		}
		resolve(reg, m, registry.Query{
			Kind:      registry.KindTable,
			Name:      table,
			Database:  database(m, ci.table),
			Component: m.Component,
			Columns:   ci.index.Columns,
		}, res, fmt.Sprintf(`Table "%s" with columns (%s) to indexing is not created in any migration`,
			table, strings.Join(ci.index.Columns, ", ")))
	}
}

// CreateTriggers makes a migration depend on the creators of the tables its
// triggers fire on.
type CreateTriggers struct{}

func (CreateTriggers) Name() string { return "create triggers" }

func (CreateTriggers) Extract(reg *registry.Registry, m Migration, stmts []sqltext.Statement, res *Result) {
	for _, stmt := range stmts {
		ct, ok := stmt.(*sqltext.CreateTrigger)
		if !ok {
			continue
		}
		table := ct.Table.Object
		if !reg.Known(registry.KindTable, table) {
			res.Warn(fmt.Sprintf(`Table "%s" inside "%s" trigger is not created in any migration`, table, ct.Name.Object))
			continue
		}
		resolve(reg, m, registry.Query{
			Kind:      registry.KindTable,
			Name:      table,
			Database:  database(m, ct.Table),
			Component: m.Component,
		}, res, fmt.Sprintf(`Trigger "%s" on table "%s" is not created in any migration`, ct.Name.Object, table))
	}
}

// AlterTables makes a migration depend on the creators of the tables,
// columns and indexes its ALTER TABLE statements edit. Renamed and dropped
// columns are matched against the registry's rename and drop markers.
type AlterTables struct{}

func (AlterTables) Name() string { return "alter tables" }

func (AlterTables) Extract(reg *registry.Registry, m Migration, stmts []sqltext.Statement, res *Result) {
	for _, stmt := range stmts {
		at, ok := stmt.(*sqltext.AlterTable)
		if !ok {
			continue
		}
		table := at.Table.Object
		if !reg.Known(registry.KindTable, table) {
			res.Warn(fmt.Sprintf(`Altering table "%s" is not created in any migration`, table))
			continue
		}
		db := database(m, at.Table)

		renamed := make([]string, 0, len(at.RenameColumns))
		for _, rn := range at.RenameColumns {
			renamed = append(renamed, rn.From)
		}
		columnEdits := []struct {
			facet   registry.Facet
			verb    string
			columns []string
		}{
			{registry.FacetColumns, "modified/altered", at.ModifyColumns},
			{registry.FacetRenamed, "renamed", renamed},
			{registry.FacetDropped, "dropped", at.DropColumns},
		}
		for _, edit := range columnEdits {
			warnings := make([]string, 0, len(edit.columns))
			for _, col := range edit.columns {
				warnings = append(warnings, fmt.Sprintf(
					`Altering table "%s" with %s columns (%s) is not created in any migration`, table, edit.verb, col))
			}
			resolve(reg, m, registry.Query{
				Kind:      registry.KindTable,
				Name:      table,
				Database:  db,
				Component: m.Component,
				Facet:     edit.facet,
				Columns:   edit.columns,
			}, res, warnings...)
		}

		edited := at.EditedIndexes()
		for _, name := range append(edited, at.DropIndexes...) {
			resolve(reg, m, registry.Query{
				Kind:           registry.KindIndex,
				Name:           name,
				Database:       db,
				Component:      m.Component,
				Table:          table,
				IncludeDropped: !slices.Contains(edited, name),
			}, res, fmt.Sprintf(`Altering table "%s" with index "%s" is not created in any migration`, table, name))
		}
	}
}

// DropTriggers makes a migration depend on the creators of the triggers it
// drops.
type DropTriggers struct{}

func (DropTriggers) Name() string { return "drop triggers" }

func (DropTriggers) Extract(reg *registry.Registry, m Migration, stmts []sqltext.Statement, res *Result) {
	for _, stmt := range stmts {
		dt, ok := stmt.(*sqltext.DropTrigger)
		if !ok {
			continue
		}
		name := dt.Name.Object
		warning := fmt.Sprintf(`Trigger "%s" is not created in any migration`, name)
		if !reg.Known(registry.KindTrigger, name) {
			res.Warn(warning)
			continue
		}
		resolve(reg, m, registry.Query{
			Kind:      registry.KindTrigger,
			Name:      name,
			Database:  database(m, dt.Name),
			Component: m.Component,
		}, res, warning)
	}
}
