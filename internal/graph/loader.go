// Package graph provides task graph loading, validation, and dependency
// readiness for the executor.
package graph

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/convoy-run/convoy/pkg/models"
)

// SupportedVersion is the graph document version this loader accepts.
const SupportedVersion = 1

// ParseError indicates the graph source could not be decoded at all.
// No session is created when Load fails with a ParseError.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("parse graph: %v", e.Err)
	}
	return fmt.Sprintf("parse graph %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// SessionHeader is the session block of a graph document.
type SessionHeader struct {
	// Name is the session name.
	Name string `yaml:"name"`
	// BudgetUSD is an optional session-level cost cap.
	BudgetUSD float64 `yaml:"budget_usd"`
}

// File is a decoded graph document before validation.
type File struct {
	// Version is the document format version.
	Version int `yaml:"version"`
	// Session is the session header block.
	Session SessionHeader `yaml:"session"`
	// Tasks holds the task definitions in declaration order.
	Tasks []models.TaskDefinition
}

// Load reads and decodes a graph document from disk. Both YAML and JSON
// encodings are accepted (JSON documents are valid YAML). The declaration
// order of the tasks map is preserved for deterministic tie-breaking.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	f, err := Parse(data)
	if err != nil {
		if pe, ok := err.(*ParseError); ok {
			pe.Path = path
		}
		return nil, err
	}
	return f, nil
}

// Parse decodes a graph document from raw bytes.
func Parse(data []byte) (*File, error) {
	// Decode through yaml.Node so the tasks map keeps declaration order;
	// a plain map[string]TaskDefinition would randomize it.
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &ParseError{Err: err}
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return &File{}, nil
	}

	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, &ParseError{Err: fmt.Errorf("document root must be a mapping, got %s", nodeKind(doc))}
	}

	f := &File{}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key := doc.Content[i]
		val := doc.Content[i+1]

		switch key.Value {
		case "version":
			if err := val.Decode(&f.Version); err != nil {
				return nil, &ParseError{Err: fmt.Errorf("version: %w", err)}
			}
		case "session":
			if err := val.Decode(&f.Session); err != nil {
				return nil, &ParseError{Err: fmt.Errorf("session: %w", err)}
			}
		case "tasks":
			tasks, err := parseTasks(val)
			if err != nil {
				return nil, err
			}
			f.Tasks = tasks
		}
	}

	return f, nil
}

// parseTasks decodes the tasks mapping, assigning each definition its ID
// from the map key and its declaration position.
func parseTasks(node *yaml.Node) ([]models.TaskDefinition, error) {
	if node.Kind != yaml.MappingNode {
		return nil, &ParseError{Err: fmt.Errorf("tasks must be a mapping of id to task, got %s", nodeKind(node))}
	}

	var tasks []models.TaskDefinition
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i]
		val := node.Content[i+1]

		var def models.TaskDefinition
		if err := val.Decode(&def); err != nil {
			return nil, &ParseError{Err: fmt.Errorf("task %q: %w", key.Value, err)}
		}
		def.ID = key.Value
		def.Order = len(tasks)
		tasks = append(tasks, def)
	}

	return tasks, nil
}

func nodeKind(n *yaml.Node) string {
	switch n.Kind {
	case yaml.DocumentNode:
		return "document"
	case yaml.MappingNode:
		return "mapping"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "unknown"
	}
}
