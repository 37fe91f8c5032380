package graph

import (
	"fmt"
	"strings"

	"github.com/convoy-run/convoy/pkg/models"
)

// ViolationKind classifies a validation violation.
type ViolationKind string

const (
	// ViolationSchema indicates a malformed or missing field.
	ViolationSchema ViolationKind = "schema"
	// ViolationEmptyGraph indicates the graph declares no tasks.
	ViolationEmptyGraph ViolationKind = "empty_graph"
	// ViolationCycle indicates a circular dependency.
	ViolationCycle ViolationKind = "cycle"
	// ViolationDanglingRef indicates a dependency on an unknown task.
	ViolationDanglingRef ViolationKind = "dangling_reference"
)

// Violation is one validation failure. All violations are collected before
// Validate returns, never just the first.
type Violation struct {
	// Kind classifies the violation.
	Kind ViolationKind
	// TaskID is the offending task, when the violation is task-scoped.
	TaskID string
	// Reference is the offending dependency reference, for dangling refs.
	Reference string
	// Message is the human-readable description.
	Message string
}

func (v Violation) String() string { return v.Message }

// ValidationError aggregates every violation found in a graph document.
// Load fails with it before any execution state is created.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Message
	}
	return fmt.Sprintf("graph validation failed (%d violations): %s",
		len(e.Violations), strings.Join(msgs, "; "))
}

// Validate runs all validation stages against a decoded graph document:
// schema check, empty-graph check, cycle detection, and dangling-reference
// check, in that order. Violations from every stage are collected.
func Validate(f *File) []Violation {
	var violations []Violation

	// Schema stage.
	if f.Version != SupportedVersion {
		violations = append(violations, Violation{
			Kind:    ViolationSchema,
			Message: fmt.Sprintf("unsupported graph version %d (want %d)", f.Version, SupportedVersion),
		})
	}
	if f.Session.Name == "" {
		violations = append(violations, Violation{
			Kind:    ViolationSchema,
			Message: "session.name is required",
		})
	}

	seen := make(map[string]bool, len(f.Tasks))
	for _, def := range f.Tasks {
		if seen[def.ID] {
			violations = append(violations, Violation{
				Kind:    ViolationSchema,
				TaskID:  def.ID,
				Message: fmt.Sprintf("task %s: duplicate id", def.ID),
			})
		}
		seen[def.ID] = true

		if def.Prompt == "" {
			violations = append(violations, Violation{
				Kind:    ViolationSchema,
				TaskID:  def.ID,
				Message: fmt.Sprintf("task %s: prompt is required", def.ID),
			})
		}
		if def.Type != "" && !def.Type.Valid() {
			violations = append(violations, Violation{
				Kind:    ViolationSchema,
				TaskID:  def.ID,
				Message: fmt.Sprintf("task %s: unknown type %q", def.ID, def.Type),
			})
		}
		if def.BudgetUSD < 0 {
			violations = append(violations, Violation{
				Kind:    ViolationSchema,
				TaskID:  def.ID,
				Message: fmt.Sprintf("task %s: budget_usd must not be negative", def.ID),
			})
		}
	}

	// Empty-graph stage.
	if len(f.Tasks) == 0 {
		violations = append(violations, Violation{
			Kind:    ViolationEmptyGraph,
			Message: "graph declares no tasks",
		})
		return violations
	}

	// Cycle stage.
	violations = append(violations, findCycles(f.Tasks)...)

	// Dangling-reference stage, one violation per offending reference.
	for _, def := range f.Tasks {
		for _, dep := range def.DependsOn {
			if !seen[dep] {
				violations = append(violations, Violation{
					Kind:      ViolationDanglingRef,
					TaskID:    def.ID,
					Reference: dep,
					Message:   fmt.Sprintf("task %s depends on unknown task %s", def.ID, dep),
				})
			}
		}
	}

	return violations
}

// findCycles detects circular dependencies with a colored depth-first
// search. Each cycle is reported once, with the full path and the single
// back edge whose removal breaks it.
func findCycles(tasks []models.TaskDefinition) []Violation {
	edges := make(map[string][]string, len(tasks))
	known := make(map[string]bool, len(tasks))
	for _, def := range tasks {
		known[def.ID] = true
	}
	for _, def := range tasks {
		for _, dep := range def.DependsOn {
			if known[dep] {
				edges[def.ID] = append(edges[def.ID], dep)
			}
		}
	}

	// Color states: 0 white, 1 gray (on stack), 2 black.
	colors := make(map[string]int, len(tasks))
	var stack []string
	var violations []Violation
	// reported avoids emitting the same cycle once per entry node.
	reported := make(map[string]bool)

	var visit func(id string)
	visit = func(id string) {
		colors[id] = 1
		stack = append(stack, id)

		for _, dep := range edges[id] {
			switch colors[dep] {
			case 1:
				// Back edge id -> dep closes a cycle. Recover the path from
				// dep to id off the stack.
				start := 0
				for i, v := range stack {
					if v == dep {
						start = i
						break
					}
				}
				cycle := append(append([]string{}, stack[start:]...), dep)
				key := strings.Join(cycle, "->")
				if !reported[key] {
					reported[key] = true
					violations = append(violations, Violation{
						Kind:   ViolationCycle,
						TaskID: id,
						Message: fmt.Sprintf(
							"dependency cycle: %s (removing edge %s -> %s breaks it)",
							strings.Join(cycle, " -> "), id, dep),
					})
				}
			case 0:
				visit(dep)
			}
		}

		stack = stack[:len(stack)-1]
		colors[id] = 2
	}

	// Iterate in declaration order so violation output is deterministic.
	for _, def := range tasks {
		if colors[def.ID] == 0 {
			visit(def.ID)
		}
	}

	return violations
}
