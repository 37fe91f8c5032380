package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/convoy-run/convoy/internal/bus"
	"github.com/convoy-run/convoy/internal/config"
	"github.com/convoy-run/convoy/internal/monitor"
	"github.com/convoy-run/convoy/internal/router"
	"github.com/convoy-run/convoy/internal/state"
	"github.com/convoy-run/convoy/pkg/models"
)

var (
	statsDBPath  string
	statsPrune   bool
	statsRebuild bool
	statsReset   bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show agent performance and routing recommendations",
	Long: `Show per-agent performance aggregates and the recommendations the
monitor would attach to routing decisions.

Maintenance flags:
  --prune     delete raw telemetry older than the retention window
  --rebuild   recompute aggregates from the remaining raw telemetry
  --reset     clear all telemetry and aggregates

Examples:
  convoy stats
  convoy stats --prune --rebuild
  convoy stats --reset`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsDBPath, "db", "", "Database path (default: global Convoy database)")
	statsCmd.Flags().BoolVar(&statsPrune, "prune", false, "Prune telemetry older than the retention window")
	statsCmd.Flags().BoolVar(&statsRebuild, "rebuild", false, "Rebuild aggregates from raw telemetry")
	statsCmd.Flags().BoolVar(&statsReset, "reset", false, "Clear all telemetry and aggregates")
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	dbPath := statsDBPath
	if dbPath == "" {
		dbPath = state.GlobalDBPath()
	}
	db, err := state.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return err
	}

	r := router.New(cfg.Routing.Policy)
	mon := monitor.New(db, bus.New(), cfg.Monitor, r.PreferredAgent)

	if statsReset {
		if err := mon.ResetAllData(); err != nil {
			return err
		}
		fmt.Println("telemetry and aggregates cleared")
		return nil
	}
	if statsPrune {
		removed, err := mon.PruneOldData(cfg.Monitor.RetentionDays)
		if err != nil {
			return err
		}
		fmt.Printf("pruned %d telemetry rows older than %d days\n", removed, cfg.Monitor.RetentionDays)
	}
	if statsRebuild {
		if err := mon.RebuildAggregates(); err != nil {
			return err
		}
		fmt.Println("aggregates rebuilt from raw telemetry")
	}

	aggs, err := db.AllAggregates()
	if err != nil {
		return err
	}
	if len(aggs) == 0 {
		fmt.Println("no telemetry recorded yet")
		return nil
	}

	bold := color.New(color.Bold)
	bold.Println("agent performance:")
	for _, a := range aggs {
		fmt.Printf("  %-14s %-12s %4d tasks  %5.1f%% success  $%.4f total\n",
			a.Agent, a.TaskType, a.TotalTasks, a.SuccessRate(), a.TotalCost)
	}

	bold.Println("\nrecommendations:")
	found := false
	for _, taskType := range models.TaskTypes() {
		rec, err := mon.GetRecommendation(taskType)
		if err != nil || rec == nil {
			continue
		}
		found = true
		fmt.Printf("  %s: prefer %s over %s (+%.1f points, %s confidence, n=%d)\n",
			rec.TaskType, rec.RecommendedAgent, rec.CurrentAgent,
			rec.ImprovementPercentage, rec.Confidence, rec.SampleSize)
	}
	if !found {
		fmt.Println("  none (not enough comparable samples)")
	}
	return nil
}
