package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// configPath is the --config flag shared by every command.
var configPath string

var rootCmd = &cobra.Command{
	Use:   "sessionwatch",
	Short: "Session telemetry anomaly classifier",
	Long: "Scores session telemetry records with a fitted isolation forest, appends every decision\n" +
		"to a CSV log and serves summaries of that log over HTTP and MCP.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML (default ~/.sessionwatch/config.yaml)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
