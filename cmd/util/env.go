package util

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bpmigrate/bpmigrate/internal/config"
)

// GetEnvWithDefault returns the value of an environment variable or a default value if not set
func GetEnvWithDefault(envVar, defaultValue string) string {
	if value := os.Getenv(envVar); value != "" {
		return value
	}
	return defaultValue
}

// PreRunEWithConfig creates a PreRunE function that resolves the project config path
// It checks BPMIGRATE_CONFIG if the --config flag wasn't explicitly set
func PreRunEWithConfig(pathPtr *string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("config") {
			*pathPtr = GetEnvWithDefault(config.PathEnv, *pathPtr)
		}
		if *pathPtr == "" {
			*pathPtr = config.DefaultPath
		}

		if _, err := os.Stat(*pathPtr); err != nil {
			return fmt.Errorf("project config %s not found (use --config flag or %s environment variable)", *pathPtr, config.PathEnv)
		}
		return nil
	}
}

// AddConfigFlag registers the --config flag shared by every project command
func AddConfigFlag(cmd *cobra.Command, pathPtr *string) {
	cmd.Flags().StringVar(pathPtr, "config", config.DefaultPath, fmt.Sprintf("Path to the project config (env: %s)", config.PathEnv))
}
