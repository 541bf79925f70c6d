// Package applier executes migration artifacts against their databases,
// applying every dependency first and each migration at most once.
package applier

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"
	"time"

	"github.com/bpmigrate/bpmigrate/internal/artifact"
	"github.com/bpmigrate/bpmigrate/internal/config"
	"github.com/bpmigrate/bpmigrate/internal/database"
	"github.com/bpmigrate/bpmigrate/internal/ignore"
	"github.com/bpmigrate/bpmigrate/internal/tracking"
)

// State is the lifecycle state of one migration within a run. Migrations
// not visited yet are pending.
type State string

const (
	StatePending  State = "pending"
	StateApplying State = "applying"
	StateApplied  State = "applied"
	StateFailed   State = "failed"
	// StateSkipped marks a migration applied by an earlier run or earlier in
	// this one.
	StateSkipped State = "skipped"
)

// EventKind tells what an Event reports.
type EventKind int

const (
	// EventComponent starts the migrations of a component.
	EventComponent EventKind = iota
	// EventSlot starts the migrations of one slot folder.
	EventSlot
	// EventMigration starts a migration taken from the folder listing.
	EventMigration
	// EventDependency starts a migration required by another one.
	EventDependency
	// EventOutcome reports the final state of a migration.
	EventOutcome
)

// Event is emitted while a run progresses. Depth is zero for migrations
// taken from the folder listing and grows by one per dependency level.
type Event struct {
	Kind      EventKind
	Component string
	Slot      string
	// Migration is the "component/slot/name" identifier.
	Migration string
	// Name is the migration file name without extension.
	Name  string
	Index int
	Depth int
	State State
	Err   error
}

// Targets gives access to the open pool of a "component/slot" key.
type Targets interface {
	Get(key string) (*sql.DB, database.Dialect, bool)
}

// Result summarizes a run.
type Result struct {
	Applied  []string
	Skipped  int
	Failures []error
	// Recorded is the number of tracking rows written.
	Recorded int
}

// Applier applies the artifacts of a project. An Applier holds the state of
// one run and must not be reused.
type Applier struct {
	cfg     *config.Config
	targets Targets
	store   tracking.Store
	log     *slog.Logger

	// OnEvent, when set, receives progress events in order.
	OnEvent func(Event)
	// Ignore, when set, excludes components and migration files from the
	// listing. Ignored migrations still run when another one depends on them.
	Ignore *ignore.IgnoreConfig

	states map[string]State
	errs   map[string]error
	skip   map[string]bool
	batch  []tracking.Applied
	result Result
	now    func() time.Time
}

// New creates an applier for cfg executing on targets and recording into
// store.
func New(cfg *config.Config, targets Targets, store tracking.Store, log *slog.Logger) *Applier {
	if log == nil {
		log = slog.Default()
	}
	return &Applier{
		cfg:     cfg,
		targets: targets,
		store:   store,
		log:     log,
		states:  make(map[string]State),
		errs:    make(map[string]error),
		now:     time.Now,
	}
}

// Run applies every artifact of every component. Migrations recorded in the
// tracking store are skipped. Migrations applied during the run are recorded
// in one batch at the end, also when the run stops on a dependency cycle.
func (a *Applier) Run(ctx context.Context) (*Result, error) {
	applied, err := a.store.Applied(ctx)
	if err != nil {
		return nil, err
	}
	a.skip = tracking.SkipSet(applied)
	a.log.Debug("Loaded applied migrations", "count", len(applied))

	runErr := a.walk(ctx)

	if err := a.store.Insert(ctx, a.batch); err != nil {
		return &a.result, errors.Join(runErr, err)
	}
	a.result.Recorded = len(a.batch)
	return &a.result, runErr
}

func (a *Applier) walk(ctx context.Context) error {
	for _, comp := range a.cfg.Components {
		if a.Ignore.ShouldIgnoreComponent(comp.Name) {
			continue
		}
		slots, err := a.cfg.SlotDirs(comp.Name)
		if errors.Is(err, fs.ErrNotExist) {
			a.log.Debug("No migrations folder", "component", comp.Name)
			continue
		}
		if err != nil {
			return err
		}
		if len(slots) == 0 {
			continue
		}
		a.emit(Event{Kind: EventComponent, Component: comp.Name})

		for _, slot := range slots {
			names, err := artifact.List(a.cfg.SlotPath(comp.Name, slot))
			if err != nil {
				return err
			}
			names = slices.DeleteFunc(names, a.Ignore.ShouldIgnoreMigration)
			if len(names) == 0 {
				continue
			}
			a.emit(Event{Kind: EventSlot, Component: comp.Name, Slot: slot})

			for i, name := range names {
				id := artifact.ID{Component: comp.Name, Slot: slot, Name: name}
				a.emit(Event{
					Kind:      EventMigration,
					Component: id.Component,
					Slot:      id.Slot,
					Migration: id.String(),
					Name:      id.Name,
					Index:     i + 1,
				})
				if err := a.apply(ctx, id, 0, nil); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// apply runs the dependencies of id and then id itself. Only errors that
// stop the whole run are returned; a failing migration is reported through
// an event and the result.
func (a *Applier) apply(ctx context.Context, id artifact.ID, depth int, path []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := id.String()
	path = append(path, key)

	switch a.states[key] {
	case StateApplying:
		return &CyclicDependencyError{Path: slices.Clone(path)}
	case StateApplied:
		a.outcome(id, depth, StateSkipped, nil)
		return nil
	case StateFailed:
		a.outcome(id, depth, StateFailed, a.errs[key])
		return nil
	}
	if a.skip[key] {
		a.outcome(id, depth, StateSkipped, nil)
		return nil
	}

	if _, ok := a.cfg.Slot(id.Component, id.Slot); !ok {
		a.fail(id, depth, fmt.Errorf("migration %s: %w", key, ErrUnknownTarget))
		return nil
	}
	art, err := artifact.Read(filepath.Join(a.cfg.SlotPath(id.Component, id.Slot), id.Name+artifact.Ext))
	if err != nil {
		a.fail(id, depth, err)
		return nil
	}

	a.states[key] = StateApplying
	for _, dep := range art.Dependencies {
		depID, err := artifact.ParseID(dep)
		if err != nil {
			a.emit(Event{Kind: EventDependency, Migration: dep, Name: dep, Depth: depth + 1})
			a.result.Failures = append(a.result.Failures, err)
			a.emit(Event{Kind: EventOutcome, Migration: dep, Name: dep, Depth: depth + 1, State: StateFailed, Err: err})
			continue
		}
		a.emit(Event{
			Kind:      EventDependency,
			Component: depID.Component,
			Slot:      depID.Slot,
			Migration: dep,
			Name:      depID.Name,
			Depth:     depth + 1,
		})
		if err := a.apply(ctx, depID, depth+1, path); err != nil {
			return err
		}
	}

	if err := a.execute(ctx, id, art.Operations); err != nil {
		a.fail(id, depth, err)
		return nil
	}

	a.states[key] = StateApplied
	a.batch = append(a.batch, tracking.Applied{
		Component: id.Component,
		Slot:      id.Slot,
		Name:      id.Name,
		AppliedAt: a.now(),
	})
	a.result.Applied = append(a.result.Applied, key)
	a.outcome(id, depth, StateApplied, nil)
	return nil
}

// execute runs the operations of one migration in a transaction on its
// slot's pool.
func (a *Applier) execute(ctx context.Context, id artifact.ID, operations string) error {
	key := id.String()
	db, dialect, ok := a.targets.Get(id.Component + "/" + id.Slot)
	if !ok {
		return fmt.Errorf("no connection for %s/%s: %w", id.Component, id.Slot, ErrUnknownTarget)
	}

	a.log.Debug("Applying migration",
		"component", id.Component,
		"slot", id.Slot,
		"migration", id.Name,
		"driver", dialect.Driver,
	)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return &ExecutionError{Migration: key, Err: fmt.Errorf("failed to begin transaction: %w", err)}
	}
	if _, err := database.ExecContextWithLogging(ctx, tx, operations, "apply migration "+key); err != nil {
		_ = tx.Rollback()
		return &ExecutionError{Migration: key, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &ExecutionError{Migration: key, Err: fmt.Errorf("failed to commit: %w", err)}
	}
	return nil
}

func (a *Applier) fail(id artifact.ID, depth int, err error) {
	key := id.String()
	a.states[key] = StateFailed
	a.errs[key] = err
	a.result.Failures = append(a.result.Failures, err)
	a.log.Debug("Migration failed", "migration", key, "error", err)
	a.outcome(id, depth, StateFailed, err)
}

func (a *Applier) outcome(id artifact.ID, depth int, state State, err error) {
	if state == StateSkipped {
		a.result.Skipped++
	}
	a.emit(Event{
		Kind:      EventOutcome,
		Component: id.Component,
		Slot:      id.Slot,
		Migration: id.String(),
		Name:      id.Name,
		Depth:     depth,
		State:     state,
		Err:       err,
	})
}

func (a *Applier) emit(e Event) {
	if a.OnEvent != nil {
		a.OnEvent(e)
	}
}
