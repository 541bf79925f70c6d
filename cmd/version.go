package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bpmigrate/bpmigrate/internal/version"
)

var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long:  "Display the version number of bpmigrate",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "bpmigrate %s\n", version.String())
	},
}
