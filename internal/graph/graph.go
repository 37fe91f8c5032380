package graph

import (
	"sort"
	"sync"

	"github.com/convoy-run/convoy/pkg/models"
)

// Graph is a validated directed acyclic graph of task dependencies.
// Tasks are nodes; edges represent "blocked by" relationships. Readiness
// is computed from the set of completed dependencies.
type Graph struct {
	mu sync.RWMutex
	// name is the session name from the graph source.
	name string
	// budgetUSD is the session budget from the graph source, if any.
	budgetUSD float64
	// defs holds the task definitions in declaration order.
	defs []models.TaskDefinition
	// nodes maps task ID to its index in defs.
	nodes map[string]int
	// edges maps task ID to IDs of tasks it depends on.
	edges map[string][]string
	// completed tracks tasks whose dependents may now run.
	completed map[string]bool
	// excluded tracks tasks that can never run (failed or cancelled).
	excluded map[string]bool
}

// Build constructs a Graph from a validated document. Callers must run
// Validate first; Build assumes the document is well-formed and acyclic.
func Build(f *File) *Graph {
	g := &Graph{
		name:      f.Session.Name,
		budgetUSD: f.Session.BudgetUSD,
		defs:      append([]models.TaskDefinition{}, f.Tasks...),
		nodes:     make(map[string]int, len(f.Tasks)),
		edges:     make(map[string][]string, len(f.Tasks)),
		completed: make(map[string]bool),
		excluded:  make(map[string]bool),
	}

	for i, def := range g.defs {
		g.nodes[def.ID] = i
		g.edges[def.ID] = append([]string{}, def.DependsOn...)
	}

	return g
}

// Name returns the session name declared in the graph source.
func (g *Graph) Name() string { return g.name }

// BudgetUSD returns the session budget declared in the graph source.
func (g *Graph) BudgetUSD() float64 { return g.budgetUSD }

// Size returns the number of tasks in the graph.
func (g *Graph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.defs)
}

// Task returns the definition for the given ID, or false if unknown.
func (g *Graph) Task(id string) (models.TaskDefinition, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	i, ok := g.nodes[id]
	if !ok {
		return models.TaskDefinition{}, false
	}
	return g.defs[i], true
}

// Tasks returns all task definitions in declaration order.
func (g *Graph) Tasks() []models.TaskDefinition {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]models.TaskDefinition{}, g.defs...)
}

// Ready returns the IDs of tasks whose dependencies are all complete and
// that are neither complete nor excluded themselves, in declaration order.
func (g *Graph) Ready() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []string
	for _, def := range g.defs {
		if g.completed[def.ID] || g.excluded[def.ID] {
			continue
		}

		allDone := true
		for _, dep := range g.edges[def.ID] {
			if !g.completed[dep] {
				allDone = false
				break
			}
		}
		if allDone {
			ready = append(ready, def.ID)
		}
	}
	return ready
}

// MarkComplete records that a task finished successfully, unblocking its
// dependents on the next Ready call.
func (g *Graph) MarkComplete(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completed[id] = true
}

// MarkExcluded records that a task can never run (it failed or was
// cancelled). Its dependents stay blocked.
func (g *Graph) MarkExcluded(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.excluded[id] = true
}

// Dependents returns the IDs of tasks that depend on the given task,
// in declaration order.
func (g *Graph) Dependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var deps []string
	for _, def := range g.defs {
		for _, dep := range g.edges[def.ID] {
			if dep == id {
				deps = append(deps, def.ID)
				break
			}
		}
	}
	return deps
}

// TransitiveDependents returns every task downstream of the given task,
// in declaration order.
func (g *Graph) TransitiveDependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := make(map[string]bool)
	var walk func(string)
	walk = func(cur string) {
		for _, def := range g.defs {
			for _, dep := range g.edges[def.ID] {
				if dep == cur && !seen[def.ID] {
					seen[def.ID] = true
					walk(def.ID)
				}
			}
		}
	}
	walk(id)

	out := make([]string, 0, len(seen))
	for tid := range seen {
		out = append(out, tid)
	}
	sort.Slice(out, func(i, j int) bool {
		return g.nodes[out[i]] < g.nodes[out[j]]
	})
	return out
}
