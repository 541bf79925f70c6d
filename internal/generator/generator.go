// Package generator turns raw DDL files into migration artifacts carrying
// the dependencies inferred from the schema objects they reference.
package generator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bpmigrate/bpmigrate/internal/artifact"
	"github.com/bpmigrate/bpmigrate/internal/config"
	"github.com/bpmigrate/bpmigrate/internal/database"
	"github.com/bpmigrate/bpmigrate/internal/extract"
	"github.com/bpmigrate/bpmigrate/internal/ignore"
	"github.com/bpmigrate/bpmigrate/internal/registry"
	"github.com/bpmigrate/bpmigrate/internal/sqltext"
)

// Entry is the outcome of generating one artifact.
type Entry struct {
	Migration    extract.Migration
	RawPath      string
	Path         string
	Dependencies []string
	Warnings     []extract.Warning
	Status       artifact.Status
}

// SlotReport groups the entries of one slot folder.
type SlotReport struct {
	Slot    string
	Entries []Entry
}

// ComponentReport groups the slots of one component.
type ComponentReport struct {
	Component string
	// Missing is set when the component has no migrations folder.
	Missing bool
	Slots   []SlotReport
}

// Report describes a generation run in processing order.
type Report struct {
	Components []ComponentReport
}

// Entries returns every entry in processing order.
func (r *Report) Entries() []Entry {
	var out []Entry
	for _, c := range r.Components {
		for _, s := range c.Slots {
			out = append(out, s.Entries...)
		}
	}
	return out
}

// WarningCount returns the number of warnings across all entries.
func (r *Report) WarningCount() int {
	n := 0
	for _, e := range r.Entries() {
		n += len(e.Warnings)
	}
	return n
}

// Generator walks the project and writes one artifact per raw migration.
// A Generator holds the registry of one run and must not be reused.
type Generator struct {
	cfg *config.Config
	reg *registry.Registry
	log *slog.Logger

	// Ignore, when set, excludes components and migration files. Objects
	// created by an excluded file are unknown to the files after it.
	Ignore *ignore.IgnoreConfig
}

// New creates a generator for the project described by cfg.
func New(cfg *config.Config, log *slog.Logger) *Generator {
	if log == nil {
		log = slog.Default()
	}
	return &Generator{cfg: cfg, reg: registry.New(cfg), log: log}
}

// Run processes components in configuration order, slots and files in
// directory listing order. Objects created by a file are visible to every
// file processed after it, so dependencies only point backwards.
func (g *Generator) Run(ctx context.Context) (*Report, error) {
	report := &Report{}
	for _, comp := range g.cfg.Components {
		if g.Ignore.ShouldIgnoreComponent(comp.Name) {
			g.log.Debug("Ignoring component", "component", comp.Name)
			continue
		}
		cr, err := g.component(ctx, comp.Name)
		if err != nil {
			return report, err
		}
		report.Components = append(report.Components, cr)
	}
	return report, nil
}

func (g *Generator) component(ctx context.Context, component string) (ComponentReport, error) {
	cr := ComponentReport{Component: component}
	slots, err := g.cfg.SlotDirs(component)
	if errors.Is(err, fs.ErrNotExist) {
		g.log.Debug("No migrations folder", "component", component)
		cr.Missing = true
		return cr, nil
	}
	if err != nil {
		return cr, err
	}

	for _, slot := range slots {
		sr := SlotReport{Slot: slot}
		dir := g.cfg.SlotPath(component, slot)
		names, err := artifact.ListRaw(dir)
		if err != nil {
			return cr, err
		}
		db, _ := g.cfg.Slot(component, slot)
		for _, name := range names {
			if err := ctx.Err(); err != nil {
				return cr, err
			}
			if g.Ignore.ShouldIgnoreMigration(name) {
				g.log.Debug("Ignoring migration", "component", component, "slot", slot, "migration", name)
				continue
			}
			m := extract.Migration{Component: component, Slot: slot, Database: db.Name, Name: name}
			entry, err := g.generate(m, filepath.Join(dir, name+artifact.RawExt), database.DialectFor(db.Driver))
			if err != nil {
				return cr, err
			}
			sr.Entries = append(sr.Entries, entry)
		}
		cr.Slots = append(cr.Slots, sr)
	}
	return cr, nil
}

func (g *Generator) generate(m extract.Migration, rawPath string, dialect database.Dialect) (Entry, error) {
	data, err := os.ReadFile(rawPath)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to read migration %s: %w", rawPath, err)
	}
	raw := string(data)

	stmts := sqltext.Parse(raw)
	extract.Fold(g.reg, m, stmts)
	res := extract.Run(g.reg, m, stmts)

	if dialect.IsPostgres() {
		if _, err := database.ValidatePostgres(raw); err != nil {
			res.Warn(err.Error())
		}
	}

	a := &artifact.Artifact{Dependencies: res.Dependencies(), Operations: raw}
	path := artifact.PathFor(rawPath)
	status, err := artifact.Write(path, a)
	if err != nil {
		return Entry{}, err
	}

	g.log.Debug("Generated migration",
		"component", m.Component,
		"slot", m.Slot,
		"migration", m.Name,
		"dependencies", len(a.Dependencies),
		"status", status,
	)

	return Entry{
		Migration:    m,
		RawPath:      rawPath,
		Path:         path,
		Dependencies: a.Dependencies,
		Warnings:     res.Warnings(),
		Status:       status,
	}, nil
}
