package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/convoy-run/convoy/internal/executor"
)

var validateCmd = &cobra.Command{
	Use:   "validate <graph-file>",
	Short: "Validate a task graph without executing it",
	Long: `Load and validate a task graph, then print the execution plan.

Nothing is dispatched and no session is created. All violations are
reported together: schema problems, empty graphs, dependency cycles (with
the full cycle path and the edge that breaks it), and dangling references.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	report, err := executor.DryRun(args[0])
	if err != nil {
		printLoadError(err)
		os.Exit(1)
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ %s: %d tasks, valid\n", report.SessionName, len(report.Tasks))
	if report.BudgetUSD > 0 {
		fmt.Printf("session budget: $%.2f\n", report.BudgetUSD)
	}

	fmt.Println("\nexecution plan:")
	ready := make(map[string]bool, len(report.ReadyIDs))
	for _, id := range report.ReadyIDs {
		ready[id] = true
	}
	for _, def := range report.Tasks {
		marker := " "
		if ready[def.ID] {
			marker = "*"
		}
		line := fmt.Sprintf("  %s %s (%s)", marker, def.ID, def.Type)
		if len(def.DependsOn) > 0 {
			line += fmt.Sprintf("  after %v", def.DependsOn)
		}
		if def.Agent != "" {
			line += fmt.Sprintf("  pinned to %s", def.Agent)
		}
		fmt.Println(line)
	}
	fmt.Println("\n* runs immediately")
	return nil
}
