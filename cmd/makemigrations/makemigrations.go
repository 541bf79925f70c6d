package makemigrations

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bpmigrate/bpmigrate/cmd/util"
	"github.com/bpmigrate/bpmigrate/internal/artifact"
	"github.com/bpmigrate/bpmigrate/internal/color"
	"github.com/bpmigrate/bpmigrate/internal/config"
	"github.com/bpmigrate/bpmigrate/internal/generator"
	"github.com/bpmigrate/bpmigrate/internal/ignore"
	"github.com/bpmigrate/bpmigrate/internal/logger"
)

var (
	makePath    string
	makeNoColor bool
)

var MakeMigrationsCmd = &cobra.Command{
	Use:          "make_migrations",
	Short:        "Generate migration artifacts from raw SQL files",
	Long:         "Read every <component>/migrations/<slot>/*.sql file, infer the migrations it depends on and write a <name>.yaml artifact next to it.",
	Args:         cobra.NoArgs,
	RunE:         runMakeMigrations,
	SilenceUsage: true,
	PreRunE:      util.PreRunEWithConfig(&makePath),
}

func init() {
	util.AddConfigFlag(MakeMigrationsCmd, &makePath)
	MakeMigrationsCmd.Flags().BoolVar(&makeNoColor, "no-color", false, "Disable colored output")
}

func runMakeMigrations(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(makePath)
	if err != nil {
		return err
	}

	ign, err := ignore.LoadIgnoreFile(cfg.RootDir())
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", ignore.IgnoreFileName, err)
	}

	gen := generator.New(cfg, logger.Get())
	gen.Ignore = ign
	report, err := gen.Run(cmd.Context())
	if report != nil {
		Render(cmd.OutOrStdout(), color.New(!makeNoColor), report)
	}
	if err != nil {
		return fmt.Errorf("failed to make migrations: %w", err)
	}
	return nil
}

// Render prints a generation report grouped by component and folder.
func Render(w io.Writer, c *color.Color, report *generator.Report) {
	var created, updated, unchanged int
	for _, comp := range report.Components {
		if len(comp.Slots) == 0 {
			continue
		}
		fmt.Fprintf(w, "Making migrations for component %s...\n", c.Name(comp.Component))
		for _, slot := range comp.Slots {
			if len(slot.Entries) == 0 {
				continue
			}
			fmt.Fprintf(w, "\tIn folder %s...\n", c.Name(slot.Slot))
			for i, e := range slot.Entries {
				fmt.Fprintf(w, "\t\t%d. From file %s...\n", i+1, c.Name(filepath.Base(e.RawPath)))
				if len(e.Dependencies) > 0 {
					fmt.Fprintf(w, "\t\t\tDependencies: %s\n", strings.Join(e.Dependencies, ", "))
				}
				if len(e.Warnings) > 0 {
					msgs := make([]string, 0, len(e.Warnings))
					for _, warning := range e.Warnings {
						msgs = append(msgs, warning.Message)
					}
					fmt.Fprintln(w, c.Warning("\t\t\tWARNINGS:\n\t\t\t\t- "+strings.Join(msgs, "\n\t\t\t\t- ")))
				}

				var status string
				switch e.Status {
				case artifact.StatusCreated:
					created++
					status = c.Success("CREATED")
				case artifact.StatusUpdated:
					updated++
					status = c.Name("UPDATED")
				default:
					unchanged++
					status = "UNCHANGED"
				}
				fmt.Fprintf(w, "\t\t\tMigration file %s %s\n", c.Name(e.Path), status)
			}
		}
	}
	fmt.Fprintln(w, c.FormatGenerateSummary(created, updated, unchanged, report.WarningCount()))
}
