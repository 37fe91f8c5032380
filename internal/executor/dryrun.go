package executor

import (
	"github.com/convoy-run/convoy/internal/graph"
	"github.com/convoy-run/convoy/pkg/models"
)

// DryRunReport is the result of validating a graph source without
// executing it.
type DryRunReport struct {
	// SessionName is the name declared in the graph source.
	SessionName string
	// BudgetUSD is the session budget declared in the graph source.
	BudgetUSD float64
	// Tasks holds every task definition in declaration order.
	Tasks []models.TaskDefinition
	// ReadyIDs are the tasks with no dependencies, dispatchable first.
	ReadyIDs []string
}

// DryRun loads and validates a graph source and computes initial
// readiness. No session is created and nothing is dispatched.
func DryRun(path string) (*DryRunReport, error) {
	f, err := graph.Load(path)
	if err != nil {
		return nil, err
	}
	if violations := graph.Validate(f); len(violations) > 0 {
		return nil, &graph.ValidationError{Violations: violations}
	}

	g := graph.Build(f)
	return &DryRunReport{
		SessionName: g.Name(),
		BudgetUSD:   g.BudgetUSD(),
		Tasks:       g.Tasks(),
		ReadyIDs:    g.Ready(),
	}, nil
}
