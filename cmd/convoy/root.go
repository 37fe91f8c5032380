package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "convoy",
	Short: "Task graph orchestrator with cost governance",
	Long: `Convoy executes a declarative graph of tasks by dispatching each to one
of several interchangeable worker agents, while tracking cost, enforcing
task and session budgets, and learning which agents perform best per task
type.

Core capabilities:
- Validates and topologically schedules task graphs under a concurrency cap
- Routes each task to an agent by pin or policy, with advisory
  recommendations from historical performance
- Records per-task cost or savings and enforces budgets mid-run
- Aggregates outcome telemetry for offline tuning`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(versionCmd)
}
