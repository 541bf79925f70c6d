package sqltext

import "strings"

// Family tags the kind of a parsed statement.
type Family int

const (
	FamilyUnrecognized Family = iota
	FamilyCreateTable
	FamilyCreateIndex
	FamilyCreateTrigger
	FamilyAlterTable
	FamilyDropTrigger
)

func (f Family) String() string {
	switch f {
	case FamilyCreateTable:
		return "create table"
	case FamilyCreateIndex:
		return "create index"
	case FamilyCreateTrigger:
		return "create trigger"
	case FamilyAlterTable:
		return "alter table"
	case FamilyDropTrigger:
		return "drop trigger"
	default:
		return "unrecognized"
	}
}

// Statement is one typed DDL statement.
type Statement interface {
	Family() Family
	// Text returns the normalized text of the statement without terminator.
	Text() string
}

// Name is a possibly database-qualified object name.
type Name struct {
	Database string
	Object   string
}

// ParseName splits a word like "db.users" into its qualifier and object name.
func ParseName(word string) Name {
	if i := strings.LastIndexByte(word, '.'); i >= 0 {
		db := word[:i]
		if j := strings.LastIndexByte(db, '.'); j >= 0 {
			db = db[j+1:]
		}
		return Name{Database: db, Object: word[i+1:]}
	}
	return Name{Object: word}
}

func (n Name) String() string {
	if n.Database == "" {
		return n.Object
	}
	return n.Database + "." + n.Object
}

// IndexDef is an index definition with the columns it covers.
type IndexDef struct {
	Name    string
	Columns []string
}

// ForeignKey is a reference from local columns to columns of another table.
type ForeignKey struct {
	Name       string
	Columns    []string
	Table      Name
	RefColumns []string
}

// Rename maps an old column or index name to a new one.
type Rename struct {
	From string
	To   string
}

type base struct {
	text string
}

func (b base) Text() string { return b.text }

// CreateTable is CREATE TABLE with its columns and embedded definitions.
type CreateTable struct {
	base
	Table       Name
	Columns     []string
	Indexes     []IndexDef
	ForeignKeys []ForeignKey
}

func (*CreateTable) Family() Family { return FamilyCreateTable }

// CreateIndex is a standalone CREATE INDEX.
type CreateIndex struct {
	base
	Index IndexDef
	Table Name
}

func (*CreateIndex) Family() Family { return FamilyCreateIndex }

// CreateTrigger is CREATE TRIGGER; only the name and the table it fires on
// are kept.
type CreateTrigger struct {
	base
	Name  Name
	Table Name
}

func (*CreateTrigger) Family() Family { return FamilyCreateTrigger }

// AlterTable collects the column and index edits of one ALTER TABLE.
type AlterTable struct {
	base
	Table         Name
	AddColumns    []string
	ModifyColumns []string
	RenameColumns []Rename
	DropColumns   []string
	AddIndexes    []IndexDef
	RenameIndexes []Rename
	DropIndexes   []string
	AlterIndexes  []string
	ForeignKeys   []ForeignKey
}

func (*AlterTable) Family() Family { return FamilyAlterTable }

// EditedIndexes returns the names of pre-existing indexes this statement
// touches without creating them, as they are known after the statement ran:
// renamed indexes are reported under their new name.
func (a *AlterTable) EditedIndexes() []string {
	var names []string
	for _, r := range a.RenameIndexes {
		names = append(names, r.To)
	}
	names = append(names, a.AlterIndexes...)
	return names
}

// DropTrigger is DROP TRIGGER.
type DropTrigger struct {
	base
	Name Name
}

func (*DropTrigger) Family() Family { return FamilyDropTrigger }

// Unrecognized holds any statement outside the supported families. It adds
// no schema facts but is still executed verbatim at apply time.
type Unrecognized struct {
	base
}

func (*Unrecognized) Family() Family { return FamilyUnrecognized }
