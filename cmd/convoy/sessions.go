package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/convoy-run/convoy/internal/config"
	"github.com/convoy-run/convoy/internal/state"
)

var (
	sessionsDBPath string
	sessionsPurge  bool
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List past execution sessions",
	Long: `List execution sessions, newest first, with status and cost.

With --purge, sessions older than the configured retention window are
deleted along with their task state and cost entries.`,
	RunE: runSessions,
}

func init() {
	sessionsCmd.Flags().StringVar(&sessionsDBPath, "db", "", "Database path (default: global Convoy database)")
	sessionsCmd.Flags().BoolVar(&sessionsPurge, "purge", false, "Delete sessions older than the retention window")
}

func runSessions(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	dbPath := sessionsDBPath
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

	if sessionsPurge {
		retention := time.Duration(cfg.Execution.SessionRetentionDays) * 24 * time.Hour
		purged, err := db.PurgeOldSessions(retention)
		if err != nil {
			return err
		}
		fmt.Printf("purged %d sessions older than %d days\n", purged, cfg.Execution.SessionRetentionDays)
	}

	sessions, err := db.ListSessions()
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("no sessions recorded")
		return nil
	}

	for _, s := range sessions {
		fmt.Printf("%s  %-20s %-10s $%.4f  %s\n",
			s.ID, s.Name, s.Status, s.TotalCostUSD, s.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}
