package monitor

import (
	"strings"

	"github.com/convoy-run/convoy/pkg/models"
)

// typeKeywords maps each task type to the phrases that suggest it. Checked
// against the lowercased title and description; the type with the most hits
// wins, ties broken by checkOrder.
var typeKeywords = map[models.TaskType][]string{
	models.TaskTypeTesting: {
		"test", "spec", "coverage", "assert", "regression", "e2e", "unit test",
	},
	models.TaskTypeDocs: {
		"document", "docs", "readme", "changelog", "docstring", "comment", "guide",
	},
	models.TaskTypeDebugging: {
		"debug", "fix", "bug", "crash", "broken", "investigate", "diagnose", "repro",
	},
	models.TaskTypeRefactoring: {
		"refactor", "cleanup", "clean up", "restructure", "rename", "simplify",
		"extract", "dedupe", "consolidate",
	},
	models.TaskTypeCoding: {
		"implement", "add", "build", "create", "write", "feature", "endpoint",
	},
}

// checkOrder fixes the tie-break order for keyword matches. More specific
// categories are checked before the generic coding bucket.
var checkOrder = []models.TaskType{
	models.TaskTypeTesting,
	models.TaskTypeDocs,
	models.TaskTypeDebugging,
	models.TaskTypeRefactoring,
	models.TaskTypeCoding,
}

// ClassifyTaskType infers a task type from its title and description.
// Falls back to coding when nothing matches.
func ClassifyTaskType(title, description string) models.TaskType {
	text := strings.ToLower(title + " " + description)

	best := models.TaskTypeCoding
	bestHits := 0
	for _, t := range checkOrder {
		hits := 0
		for _, kw := range typeKeywords[t] {
			if strings.Contains(text, kw) {
				hits++
			}
		}
		if hits > bestHits {
			best = t
			bestHits = hits
		}
	}
	return best
}
