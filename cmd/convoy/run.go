package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/convoy-run/convoy/internal/bus"
	"github.com/convoy-run/convoy/internal/config"
	"github.com/convoy-run/convoy/internal/executor"
	"github.com/convoy-run/convoy/internal/graph"
	"github.com/convoy-run/convoy/internal/router"
	"github.com/convoy-run/convoy/internal/state"
	"github.com/convoy-run/convoy/internal/worker"
)

// Exit codes automated callers branch on.
const (
	exitAllFailed      = 3
	exitBudgetExceeded = 4
	exitInterrupted    = 130
)

var (
	runMaxConcurrency int
	runDBPath         string
	runSimLatencyMs   int
)

var runCmd = &cobra.Command{
	Use:   "run <graph-file>",
	Short: "Execute a task graph",
	Long: `Execute a task graph with the simulated worker pool.

The graph file is validated first; on any violation nothing is executed
and every violation is reported. Tasks run under the configured
concurrency cap, routed to agents by pin or policy, with budgets enforced
as costs are recorded.

Exit codes:
  0    all tasks succeeded, or some failed but not all
  3    every dispatched task failed
  4    a budget stop ended the run
  130  interrupted`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().IntVarP(&runMaxConcurrency, "max-concurrency", "c", 0, "Max tasks running at once (0 = config default)")
	runCmd.Flags().StringVar(&runDBPath, "db", "", "Database path (default: global Convoy database)")
	runCmd.Flags().IntVar(&runSimLatencyMs, "sim-latency-ms", 50, "Simulated worker latency per task")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	dbPath := runDBPath
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
	for _, a := range cfg.Agents {
		r.RegisterAgent(a)
	}

	exec := executor.New(db, cfg, r, func() worker.Pool {
		return worker.NewSimulatedPool(time.Duration(runSimLatencyMs)*time.Millisecond, worker.Outcome{
			InputTokens: 12_000, OutputTokens: 4_000, DurationMs: int64(runSimLatencyMs),
		})
	})

	sessionID, err := exec.Load(args[0], func(_ string, b *bus.Bus) {
		subscribeProgress(b)
	})
	if err != nil {
		printLoadError(err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Live-reload the routing policy when config files change mid-run.
	watcher := config.NewWatcher(config.GetUserConfigPath(), config.GetProjectConfigPath())
	if err := watcher.Start(ctx); err == nil {
		go func() {
			for range watcher.Events() {
				if reloaded, err := config.Load(); err == nil {
					r.SetPolicy(reloaded.Routing.Policy)
				}
			}
		}()
	}

	summary, err := exec.StartExecution(ctx, sessionID, runMaxConcurrency)
	if err != nil {
		return err
	}

	printSummary(summary)
	switch {
	case summary.Interrupted:
		os.Exit(exitInterrupted)
	case summary.BudgetExceeded:
		os.Exit(exitBudgetExceeded)
	case summary.AllFailed():
		os.Exit(exitAllFailed)
	}
	return nil
}

// subscribeProgress prints task lifecycle events as they happen.
func subscribeProgress(b *bus.Bus) {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	b.On(bus.TopicGraphLoaded, func(payload any) {
		ev := payload.(bus.GraphLoadedEvent)
		cyan.Printf("session %s: %d tasks loaded, %d ready\n", ev.SessionID, ev.TaskCount, ev.ReadyCount)
	})
	b.On(bus.TopicTaskStarted, func(payload any) {
		ev := payload.(bus.TaskStartedEvent)
		fmt.Printf("  %s → %s\n", ev.TaskID, ev.Agent)
	})
	b.On(bus.TopicTaskComplete, func(payload any) {
		ev := payload.(bus.TaskCompleteEvent)
		green.Printf("  ✓ %s (%d tokens)\n", ev.TaskID, ev.Result.TotalTokens())
	})
	b.On(bus.TopicTaskFailed, func(payload any) {
		ev := payload.(bus.TaskFailedEvent)
		red.Printf("  ✗ %s: %s\n", ev.TaskID, ev.Error.Message)
	})
	b.On(bus.TopicTaskCancelled, func(payload any) {
		ev := payload.(bus.TaskCancelledEvent)
		yellow.Printf("  - %s cancelled: %s\n", ev.TaskID, ev.Reason)
	})
	b.On(bus.TopicBudgetWarningTask, func(payload any) {
		ev := payload.(bus.BudgetWarningTaskEvent)
		yellow.Printf("  ! %s at %.0f%% of its budget\n", ev.TaskID, ev.PercentageUsed)
	})
	b.On(bus.TopicBudgetExceededTask, func(payload any) {
		ev := payload.(bus.BudgetExceededTaskEvent)
		red.Printf("  ! %s exceeded its $%.2f budget\n", ev.TaskID, ev.BudgetUSD)
	})
	b.On(bus.TopicSessionBudgetExceeded, func(payload any) {
		ev := payload.(bus.SessionBudgetExceededEvent)
		red.Printf("session budget of $%.2f exceeded, stopping dispatch\n", ev.BudgetUSD)
	})
}

func printSummary(s *executor.Summary) {
	fmt.Println()
	fmt.Printf("session %s: %d tasks, %d completed, %d failed, %d cancelled\n",
		s.SessionID, s.TotalTasks, s.Completed, s.Failed, s.Cancelled)
	fmt.Printf("cost: $%.4f", s.TotalCostUSD)
	if s.SavingsUSD > 0 {
		fmt.Printf("  (saved $%.4f vs API pricing)", s.SavingsUSD)
	}
	fmt.Println()
}

// printLoadError renders parse and validation failures, listing every
// violation rather than just the first.
func printLoadError(err error) {
	red := color.New(color.FgRed)

	var ve *graph.ValidationError
	if errors.As(err, &ve) {
		red.Printf("graph validation failed (%d violations):\n", len(ve.Violations))
		for _, v := range ve.Violations {
			fmt.Printf("  [%s] %s\n", v.Kind, v.Message)
		}
		return
	}
	red.Printf("error: %v\n", err)
}
