package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Execution.MaxConcurrency != 3 {
		t.Errorf("expected max_concurrency 3, got %d", cfg.Execution.MaxConcurrency)
	}
	if cfg.Budget.WarningThreshold != 0.80 {
		t.Errorf("expected warning threshold 0.80, got %f", cfg.Budget.WarningThreshold)
	}
	if cfg.Monitor.MinSampleSize != 10 {
		t.Errorf("expected min sample size 10, got %d", cfg.Monitor.MinSampleSize)
	}
	if cfg.Monitor.MediumConfidenceSamples != 20 {
		t.Errorf("expected medium confidence samples 20, got %d", cfg.Monitor.MediumConfidenceSamples)
	}
}

func TestLoadFromPath(t *testing.T) {
	content := `
execution:
  max_concurrency: 8

budget:
  default_task_budget_usd: 2.5
  session_budget_usd: 50.0
  warning_threshold: 0.75

monitor:
  min_sample_size: 15

routing:
  policy:
    coding: [claude-code, codex]
    testing: [codex]

agents:
  - id: claude-code
    billing_mode: subscription
    model: sonnet
    available: true
    pricing:
      input_per_million: 3.0
      output_per_million: 15.0
  - id: codex
    billing_mode: api
    available: true
    pricing:
      input_per_million: 1.5
      output_per_million: 6.0
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Execution.MaxConcurrency != 8 {
		t.Errorf("expected max_concurrency 8, got %d", cfg.Execution.MaxConcurrency)
	}
	if cfg.Budget.DefaultTaskBudgetUSD != 2.5 {
		t.Errorf("expected default task budget 2.5, got %f", cfg.Budget.DefaultTaskBudgetUSD)
	}
	if cfg.Budget.SessionBudgetUSD != 50.0 {
		t.Errorf("expected session budget 50.0, got %f", cfg.Budget.SessionBudgetUSD)
	}
	// Unset keys keep their defaults.
	if cfg.Monitor.ImprovementThreshold != 5.0 {
		t.Errorf("expected default improvement threshold 5.0, got %f", cfg.Monitor.ImprovementThreshold)
	}

	if len(cfg.Agents) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(cfg.Agents))
	}
	if cfg.Agents[0].ID != "claude-code" {
		t.Errorf("expected first agent claude-code, got %s", cfg.Agents[0].ID)
	}
	if cfg.Agents[0].Pricing.OutputPerMillion != 15.0 {
		t.Errorf("expected output pricing 15.0, got %f", cfg.Agents[0].Pricing.OutputPerMillion)
	}

	prefs := cfg.Routing.PreferredAgents("coding")
	if len(prefs) != 2 || prefs[0] != "claude-code" {
		t.Errorf("unexpected coding policy: %v", prefs)
	}
}

func TestLoadFromPathMissing(t *testing.T) {
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestWatcherSeesWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("execution:\n  max_concurrency: 2\n"), 0644); err != nil {
		t.Fatal(err)
	}

	w := NewWatcher(path)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("start watcher: %v", err)
	}

	if err := os.WriteFile(path, []byte("execution:\n  max_concurrency: 4\n"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case ev, ok := <-w.Events():
		if !ok {
			t.Fatal("events channel closed unexpectedly")
		}
		if filepath.Base(ev.Path) != "config.yaml" {
			t.Errorf("unexpected path %s", ev.Path)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload event")
	}
}
