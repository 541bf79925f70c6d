package prepare

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bpmigrate/bpmigrate/cmd/util"
	"github.com/bpmigrate/bpmigrate/internal/config"
)

var preparePath string

var PrepareCmd = &cobra.Command{
	Use:          "prepare_migration_folders",
	Short:        "Create the migration folders of every component",
	Long:         "Create <component>/migrations/<slot> for every component and database slot of the project. Existing folders are left alone.",
	Args:         cobra.NoArgs,
	RunE:         runPrepare,
	SilenceUsage: true,
	PreRunE:      util.PreRunEWithConfig(&preparePath),
}

func init() {
	util.AddConfigFlag(PrepareCmd, &preparePath)
}

func runPrepare(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(preparePath)
	if err != nil {
		return err
	}

	created, err := cfg.PrepareFolders()
	for _, dir := range created {
		fmt.Fprintf(cmd.OutOrStdout(), "Created folder %s\n", dir)
	}
	if err != nil {
		return err
	}
	if len(created) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Migration folders are up to date")
	}
	return nil
}
