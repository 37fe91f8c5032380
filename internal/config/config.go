// Package config handles configuration loading and management for Convoy.
// It supports XDG config paths, project-level overrides, and environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/convoy-run/convoy/pkg/models"
)

// Config holds all configuration for Convoy.
type Config struct {
	Execution ExecutionConfig `mapstructure:"execution"`
	Budget    BudgetConfig    `mapstructure:"budget"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Routing   RoutingConfig   `mapstructure:"routing"`
	Agents    []models.AgentProfile `mapstructure:"agents"`
}

// ExecutionConfig holds executor settings.
type ExecutionConfig struct {
	// MaxConcurrency is the maximum number of tasks running at once.
	MaxConcurrency int `mapstructure:"max_concurrency"`
	// SessionRetentionDays controls how long finished sessions are kept.
	SessionRetentionDays int `mapstructure:"session_retention_days"`
}

// BudgetConfig holds budget enforcement settings.
type BudgetConfig struct {
	// DefaultTaskBudgetUSD applies to tasks without an explicit budget_usd.
	// Zero disables per-task enforcement for such tasks.
	DefaultTaskBudgetUSD float64 `mapstructure:"default_task_budget_usd"`
	// SessionBudgetUSD caps the session total. Zero means no cap unless the
	// graph source declares one.
	SessionBudgetUSD float64 `mapstructure:"session_budget_usd"`
	// WarningThreshold is the fraction of a task budget (0.0-1.0) at which
	// a warning is emitted.
	WarningThreshold float64 `mapstructure:"warning_threshold"`
	// IncludePlanningCosts controls whether planning-phase costs count
	// against the session budget.
	IncludePlanningCosts bool `mapstructure:"include_planning_costs"`
}

// MonitorConfig holds recommendation engine thresholds.
type MonitorConfig struct {
	// Enabled controls whether the monitor is consulted during routing.
	Enabled bool `mapstructure:"enabled"`
	// MinSampleSize is the minimum per-agent sample count before an agent
	// qualifies for recommendation comparison.
	MinSampleSize int64 `mapstructure:"min_sample_size"`
	// ImprovementThreshold is the minimum success-rate delta, in percentage
	// points, before a recommendation is produced.
	ImprovementThreshold float64 `mapstructure:"improvement_threshold"`
	// MediumConfidenceSamples is the sample count at which confidence
	// reaches medium.
	MediumConfidenceSamples int64 `mapstructure:"medium_confidence_samples"`
	// HighConfidenceSamples is the sample count at which confidence
	// reaches high.
	HighConfidenceSamples int64 `mapstructure:"high_confidence_samples"`
	// RetentionDays is the raw telemetry retention window for pruning.
	RetentionDays int `mapstructure:"retention_days"`
}

// RoutingConfig maps task types to ordered agent preference lists.
type RoutingConfig struct {
	// Policy maps task type to the preferred agents, best first.
	Policy map[string][]string `mapstructure:"policy"`
}

// PreferredAgents returns the ordered agent list for a task type.
func (r RoutingConfig) PreferredAgents(t models.TaskType) []string {
	return r.Policy[string(t)]
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (CONVOY_*)
// 2. Project config (.convoy.yaml in current directory or parent)
// 3. User config (~/.config/convoy/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("CONVOY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("execution.max_concurrency", 3)
	v.SetDefault("execution.session_retention_days", 30)

	v.SetDefault("budget.default_task_budget_usd", 0.0)
	v.SetDefault("budget.session_budget_usd", 0.0)
	v.SetDefault("budget.warning_threshold", 0.80)
	v.SetDefault("budget.include_planning_costs", true)

	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.min_sample_size", 10)
	v.SetDefault("monitor.improvement_threshold", 5.0)
	v.SetDefault("monitor.medium_confidence_samples", 20)
	v.SetDefault("monitor.high_confidence_samples", 50)
	v.SetDefault("monitor.retention_days", 90)

	v.SetDefault("routing.policy", map[string][]string{})
}

// getUserConfigDir returns the XDG config directory for Convoy.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "convoy")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "convoy")
	}
	return filepath.Join(home, ".config", "convoy")
}

// findProjectConfig searches for .convoy.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".convoy.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Execution: ExecutionConfig{
			MaxConcurrency:       3,
			SessionRetentionDays: 30,
		},
		Budget: BudgetConfig{
			WarningThreshold:     0.80,
			IncludePlanningCosts: true,
		},
		Monitor: MonitorConfig{
			Enabled:                 true,
			MinSampleSize:           10,
			ImprovementThreshold:    5.0,
			MediumConfidenceSamples: 20,
			HighConfidenceSamples:   50,
			RetentionDays:           90,
		},
		Routing: RoutingConfig{
			Policy: map[string][]string{},
		},
	}
}
