package cli

import (
	"github.com/spf13/cobra"

	"github.com/quarry-io/quarry/internal/logging"
)

var (
	logLevel string
	noColor  bool
)

var rootCmd = &cobra.Command{
	Use:   "quarry",
	Short: "PKL-native declarative infrastructure reconciliation",
	Long: `Quarry reconciles declared infrastructure with what actually exists.

Configuration is written in Apple's PKL language and resolved into a set
of desired resource instances. Quarry diffs that against the last-known
state, shows you the plan, and applies it through providers:
  • Typed variables with environment overlays
  • Computed locals and cross-resource references
  • Deterministic, dependency-ordered plans
  • Scoped state with locking and stale-write detection`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logLevel)
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(workspaceCmd)
	rootCmd.AddCommand(versionCmd)
}
