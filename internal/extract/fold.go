package extract

import (
	"github.com/bpmigrate/bpmigrate/internal/registry"
	"github.com/bpmigrate/bpmigrate/internal/sqltext"
)

// Fold records the tables, indexes and triggers that m creates or alters
// into reg, in statement order. It must run before Run for the same
// migration so that self references resolve without a dependency.
func Fold(reg *registry.Registry, m Migration, stmts []sqltext.Statement) {
	for _, stmt := range stmts {
		switch s := stmt.(type) {
		case *sqltext.CreateTable:
			table := s.Table.Object
			reg.RecordTable(table, m.Component, m.Slot, m.Name, s.Columns)
			for _, idx := range s.Indexes {
				reg.RecordIndex(idx.Name, m.Component, table, m.Name, m.Slot, idx.Columns)
			}

		case *sqltext.AlterTable:
			table := s.Table.Object
			reg.RecordTable(table, m.Component, m.Slot, m.Name, s.AddColumns)
			reg.MarkColumnsRenamed(table, m.Component, m.Slot, m.Name, renames(s.RenameColumns))
			reg.MarkColumnsDropped(table, m.Component, m.Slot, m.Name, s.DropColumns)
			for _, idx := range s.AddIndexes {
				reg.RecordIndex(idx.Name, m.Component, table, m.Name, m.Slot, idx.Columns)
			}
			reg.RenameIndex(registry.KindIndex, table, m.Component, m.Slot, m.Name, renames(s.RenameIndexes))
			reg.DropIndex(registry.KindIndex, table, m.Component, m.Slot, m.Name, s.DropIndexes)

		case *sqltext.CreateIndex:
			reg.RecordIndex(s.Index.Name, m.Component, s.Table.Object, m.Name, m.Slot, s.Index.Columns)

		case *sqltext.CreateTrigger:
			reg.RecordTrigger(s.Name.Object, m.Component, s.Table.Object, m.Name, m.Slot)
		}
	}
}

func renames(in []sqltext.Rename) []registry.Rename {
	out := make([]registry.Rename, 0, len(in))
	for _, rn := range in {
		out = append(out, registry.Rename{From: rn.From, To: rn.To})
	}
	return out
}
