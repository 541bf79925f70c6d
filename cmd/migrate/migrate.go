package migrate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bpmigrate/bpmigrate/cmd/util"
	"github.com/bpmigrate/bpmigrate/internal/applier"
	"github.com/bpmigrate/bpmigrate/internal/artifact"
	"github.com/bpmigrate/bpmigrate/internal/color"
	"github.com/bpmigrate/bpmigrate/internal/config"
	"github.com/bpmigrate/bpmigrate/internal/database"
	"github.com/bpmigrate/bpmigrate/internal/ignore"
	"github.com/bpmigrate/bpmigrate/internal/logger"
	"github.com/bpmigrate/bpmigrate/internal/tracking"
)

var (
	migratePath    string
	migrateNoColor bool
)

var MigrateCmd = &cobra.Command{
	Use:          "migrate",
	Short:        "Apply pending migration artifacts",
	Long:         "Apply every migration artifact that is not recorded in the tracking table yet. Dependencies are applied first, each migration runs in its own transaction.",
	Args:         cobra.NoArgs,
	RunE:         runMigrate,
	SilenceUsage: true,
	PreRunE:      util.PreRunEWithConfig(&migratePath),
}

func init() {
	util.AddConfigFlag(MigrateCmd, &migratePath)
	MigrateCmd.Flags().BoolVar(&migrateNoColor, "no-color", false, "Disable colored output")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(migratePath)
	if err != nil {
		return err
	}
	ign, err := ignore.LoadIgnoreFile(cfg.RootDir())
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", ignore.IgnoreFileName, err)
	}
	return Migrate(cmd.Context(), cmd.OutOrStdout(), color.New(!migrateNoColor), cfg, ign)
}

// Migrate applies the pending artifacts of cfg and prints the progress to w.
// Unavailable databases and tracking failures are printed, not returned.
func Migrate(ctx context.Context, w io.Writer, c *color.Color, cfg *config.Config, ign *ignore.IgnoreConfig) error {
	log := logger.Get()

	trackingDB, err := cfg.TrackingDatabase()
	if err != nil {
		fmt.Fprintln(w, c.Failure(err.Error()))
		return nil
	}
	db, err := database.Open(ctx, trackingDB)
	if err != nil {
		printConnectionError(w, c, err)
		return nil
	}
	defer db.Close()

	store := tracking.NewSQLStore(db, database.DialectFor(trackingDB.Driver), cfg.TrackingTable)
	if err := store.EnsureTable(ctx); err != nil {
		fmt.Fprintln(w, c.Failure("Wrong data of migrations database: ")+c.Bold(err.Error()))
		return nil
	}

	targets, err := Targets(cfg, ign)
	if err != nil {
		return err
	}
	pools, err := database.OpenAll(ctx, targets)
	if err != nil {
		printConnectionError(w, c, err)
		return nil
	}
	defer pools.Close()

	a := applier.New(cfg, pools, store, log)
	a.Ignore = ign
	a.OnEvent = func(e applier.Event) { RenderEvent(w, c, e) }

	result, err := a.Run(ctx)
	if result == nil {
		fmt.Fprintln(w, c.Failure(err.Error()))
		return nil
	}

	var cycle *applier.CyclicDependencyError
	var dup *tracking.DuplicateApplicationError
	switch {
	case err == nil:
	case errors.As(err, &cycle) || errors.As(err, &dup):
		for _, e := range unwrapAll(err) {
			fmt.Fprintln(w, c.Failure(e.Error()))
		}
	default:
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, c.FormatApplySummary(len(result.Applied), result.Skipped, len(result.Failures)))
	return nil
}

// Targets returns the database of every component slot that has a
// migrations folder, keyed by "component/slot".
func Targets(cfg *config.Config, ign *ignore.IgnoreConfig) (map[string]config.Database, error) {
	targets := make(map[string]config.Database)
	for _, comp := range cfg.Components {
		if ign.ShouldIgnoreComponent(comp.Name) {
			continue
		}
		slots, err := cfg.SlotDirs(comp.Name)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, slot := range slots {
			db, _ := cfg.Slot(comp.Name, slot)
			targets[comp.Name+"/"+slot] = db
		}
	}
	return targets, nil
}

// RenderEvent prints one progress event. Migrations taken from the folder
// listing are indented by two tabs and every dependency level adds one.
func RenderEvent(w io.Writer, c *color.Color, e applier.Event) {
	tabs := strings.Repeat("\t", 2+e.Depth)
	switch e.Kind {
	case applier.EventComponent:
		fmt.Fprintf(w, "Applying migrations of component %s...\n", c.Name(e.Component))
	case applier.EventSlot:
		fmt.Fprintf(w, "\tIn folder %s...\n", c.Name(e.Slot))
	case applier.EventMigration:
		fmt.Fprintf(w, "\n\t\t%d. Migration %s...\n", e.Index, c.Name(e.Name))
	case applier.EventDependency:
		fmt.Fprintf(w, "%sCurrent operation: applying dependency migration %s...\n", tabs, c.Name(e.Migration))
	case applier.EventOutcome:
		switch e.State {
		case applier.StateApplied:
			fmt.Fprintln(w, tabs+c.Success("Migration ")+c.Name(e.Name)+c.Success(" applied"))
		case applier.StateSkipped:
			fmt.Fprintln(w, tabs+c.Skip("Migration is already applied"))
		case applier.StateFailed:
			fmt.Fprintln(w, tabs+failureLine(c, e))
		}
	}
}

func failureLine(c *color.Color, e applier.Event) string {
	if errors.Is(e.Err, artifact.ErrNotMigration) || errors.Is(e.Err, fs.ErrNotExist) {
		return c.Failure("File ") + c.Name(e.Name) + c.Failure(" is not a migration")
	}
	cause := e.Err
	var execErr *applier.ExecutionError
	if errors.As(e.Err, &execErr) {
		cause = execErr.Err
	}
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return c.Failure("Error while applying migration ") + c.Name(e.Name) + c.Failure(": ") + c.Bold(msg)
}

func printConnectionError(w io.Writer, c *color.Color, err error) {
	fmt.Fprintln(w, c.Failure(err.Error()))
	var connErr *database.ConnectionError
	if errors.As(err, &connErr) {
		fmt.Fprintln(w, connErr.Guidance())
	}
}

// unwrapAll splits an errors.Join result into its parts.
func unwrapAll(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []error
		for _, e := range joined.Unwrap() {
			if e != nil {
				out = append(out, e)
			}
		}
		return out
	}
	return []error{err}
}
