package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bpmigrate/bpmigrate/cmd/makemigrations"
	"github.com/bpmigrate/bpmigrate/cmd/migrate"
	"github.com/bpmigrate/bpmigrate/cmd/prepare"
	"github.com/bpmigrate/bpmigrate/internal/logger"
	"github.com/bpmigrate/bpmigrate/internal/version"
)

var Debug bool

var RootCmd = &cobra.Command{
	Use:   "bpmigrate",
	Short: "Dependency-aware SQL migration tool",
	Long: fmt.Sprintf(`bpmigrate generates and applies SQL migrations for multi-component projects.

Version: %s

Commands:
  prepare_migration_folders  Create the migration folders of every component
  make_migrations            Generate migration artifacts from raw SQL files
  migrate                    Apply pending migration artifacts

Use "bpmigrate [command] --help" for more information about a command.`,
		version.String()),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogger()
	},
}

func init() {
	RootCmd.PersistentFlags().BoolVar(&Debug, "debug", false, "Enable debug logging")
	RootCmd.AddCommand(prepare.PrepareCmd)
	RootCmd.AddCommand(makemigrations.MakeMigrationsCmd)
	RootCmd.AddCommand(migrate.MigrateCmd)
	RootCmd.AddCommand(VersionCmd)
}

func setupLogger() {
	logger.Setup(os.Stderr, Debug)
}

// LoadDotenv loads .env from the working directory so ${ENV:NAME} references
// in the project config can be kept out of it. Variables already set in the
// environment win and a missing file is not an error.
func LoadDotenv() {
	_ = godotenv.Load()
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
