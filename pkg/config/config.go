// Package config loads and validates the memory engine's configuration
// using Viper, following the same layered search-path convention as the
// rest of the stack.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is the recognized option set from the external interface contract:
// databaseUrl, namespace, consciousIngest, autoIngest,
// enableRelationshipExtraction, userContext, backgroundUpdateInterval, plus
// the performance/consolidation/stateManager/maintenance sub-blocks.
type Config struct {
	DatabaseURL                  string        `mapstructure:"database_url"`
	Namespace                    string        `mapstructure:"namespace"`
	ConsciousIngest              bool          `mapstructure:"conscious_ingest"`
	AutoIngest                   bool          `mapstructure:"auto_ingest"`
	EnableRelationshipExtraction bool          `mapstructure:"enable_relationship_extraction"`
	UserContext                  string        `mapstructure:"user_context"`
	BackgroundUpdateInterval     time.Duration `mapstructure:"background_update_interval"`

	Logging       LoggingConfig       `mapstructure:"logging"`
	Performance   PerformanceConfig   `mapstructure:"performance"`
	Consolidation ConsolidationConfig `mapstructure:"consolidation"`
	StateManager  StateManagerConfig  `mapstructure:"state_manager"`
	Maintenance   MaintenanceConfig   `mapstructure:"maintenance"`

	// MaxContentLength bounds MemoryRecord.Content per §4.3; not part of the
	// named external-interface keys but required by the Memory Manager
	// contract, so it is carried alongside rather than hardcoded.
	MaxContentLength int `mapstructure:"max_content_length"`

	// MaxRelationshipsPerMemory bounds the Relationship Engine's store() per
	// §4.4.
	MaxRelationshipsPerMemory int `mapstructure:"max_relationships_per_memory"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console, json
	Output string `mapstructure:"output"` // stderr, stdout, or a file path
}

// PerformanceConfig governs the Store Context's metrics ring buffer (§4.1).
type PerformanceConfig struct {
	Enabled              bool `mapstructure:"enabled"`
	SlowQueryThresholdMs int  `mapstructure:"slow_query_threshold_ms"`
	MaxSlowQueryHistory  int  `mapstructure:"max_slow_query_history"`
	CollectionIntervalMs int  `mapstructure:"collection_interval_ms"`
}

// ConsolidationConfig governs the Consolidation Engine's scheduler (§4.7).
type ConsolidationConfig struct {
	Enabled                 bool    `mapstructure:"enabled"`
	IntervalMinutes         int     `mapstructure:"interval_minutes"`
	MaxConsolidationsPerRun int     `mapstructure:"max_consolidations_per_run"`
	SimilarityThreshold     float64 `mapstructure:"similarity_threshold"`
	DryRun                  bool    `mapstructure:"dry_run"`
}

// StateManagerConfig governs the State Manager (§4.2).
type StateManagerConfig struct {
	EnableHistoryTracking bool `mapstructure:"enable_history_tracking"`
	EnableMetrics         bool `mapstructure:"enable_metrics"`
	MaxHistoryEntries     int  `mapstructure:"max_history_entries"`
}

// MaintenanceConfig governs the FTS Index Manager's scheduler (§4.5).
type MaintenanceConfig struct {
	HealthCheckMs      int `mapstructure:"health_check_ms"`
	OptimizationCheckMs int `mapstructure:"optimization_check_ms"`
	BackupMs           int `mapstructure:"backup_ms"`
}

// DefaultConfig returns the engine's default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	configDir := filepath.Join(homeDir, ".memengine")

	return &Config{
		DatabaseURL:                  filepath.Join(configDir, "memories.db"),
		Namespace:                    "default",
		ConsciousIngest:              false,
		AutoIngest:                   true,
		EnableRelationshipExtraction: true,
		BackgroundUpdateInterval:     5 * time.Minute,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Performance: PerformanceConfig{
			Enabled:              true,
			SlowQueryThresholdMs: 100,
			MaxSlowQueryHistory:  200,
			CollectionIntervalMs: 60000,
		},
		Consolidation: ConsolidationConfig{
			Enabled:                 true,
			IntervalMinutes:         60,
			MaxConsolidationsPerRun: 20,
			SimilarityThreshold:     0.7,
			DryRun:                  false,
		},
		StateManager: StateManagerConfig{
			EnableHistoryTracking: true,
			EnableMetrics:         true,
			MaxHistoryEntries:     100,
		},
		Maintenance: MaintenanceConfig{
			HealthCheckMs:       time.Hour.Milliseconds(),
			OptimizationCheckMs: (24 * time.Hour).Milliseconds(),
			BackupMs:            (7 * 24 * time.Hour).Milliseconds(),
		},
		MaxContentLength:          50000,
		MaxRelationshipsPerMemory: 100,
	}
}

// allowedKeys enumerates the only top-level keys §6 recognizes; anything
// else present in a loaded config file is a CONFIG error at bootstrap.
var allowedKeys = map[string]bool{
	"database_url": true, "namespace": true, "conscious_ingest": true,
	"auto_ingest": true, "enable_relationship_extraction": true,
	"user_context": true, "background_update_interval": true,
	"logging": true, "performance": true, "consolidation": true,
	"state_manager": true, "maintenance": true,
	"max_content_length": true, "max_relationships_per_memory": true,
}

// Load loads configuration from a YAML file with fallback to defaults.
// Searches in multiple locations:
//  1. ./config.yaml (current directory)
//  2. ~/.memengine/config.yaml (user home)
//  3. /etc/memengine/config.yaml (system-wide)
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	homeDir, _ := os.UserHomeDir()
	v.AddConfigPath(filepath.Join(homeDir, ".memengine"))
	v.AddConfigPath("/etc/memengine")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("CONFIG: error reading config file: %w", err)
	}

	for _, key := range v.AllKeys() {
		top := key
		if idx := indexOfDot(key); idx >= 0 {
			top = key[:idx]
		}
		if !allowedKeys[top] {
			return nil, fmt.Errorf("CONFIG: unrecognized configuration key %q", key)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("CONFIG: error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("CONFIG: invalid configuration: %w", err)
	}

	return cfg, nil
}

func indexOfDot(s string) int {
	for i, r := range s {
		if r == '.' {
			return i
		}
	}
	return -1
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("database_url", d.DatabaseURL)
	v.SetDefault("namespace", d.Namespace)
	v.SetDefault("conscious_ingest", d.ConsciousIngest)
	v.SetDefault("auto_ingest", d.AutoIngest)
	v.SetDefault("enable_relationship_extraction", d.EnableRelationshipExtraction)
	v.SetDefault("background_update_interval", d.BackgroundUpdateInterval)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)

	v.SetDefault("performance.enabled", d.Performance.Enabled)
	v.SetDefault("performance.slow_query_threshold_ms", d.Performance.SlowQueryThresholdMs)
	v.SetDefault("performance.max_slow_query_history", d.Performance.MaxSlowQueryHistory)
	v.SetDefault("performance.collection_interval_ms", d.Performance.CollectionIntervalMs)

	v.SetDefault("consolidation.enabled", d.Consolidation.Enabled)
	v.SetDefault("consolidation.interval_minutes", d.Consolidation.IntervalMinutes)
	v.SetDefault("consolidation.max_consolidations_per_run", d.Consolidation.MaxConsolidationsPerRun)
	v.SetDefault("consolidation.similarity_threshold", d.Consolidation.SimilarityThreshold)
	v.SetDefault("consolidation.dry_run", d.Consolidation.DryRun)

	v.SetDefault("state_manager.enable_history_tracking", d.StateManager.EnableHistoryTracking)
	v.SetDefault("state_manager.enable_metrics", d.StateManager.EnableMetrics)
	v.SetDefault("state_manager.max_history_entries", d.StateManager.MaxHistoryEntries)

	v.SetDefault("maintenance.health_check_ms", d.Maintenance.HealthCheckMs)
	v.SetDefault("maintenance.optimization_check_ms", d.Maintenance.OptimizationCheckMs)
	v.SetDefault("maintenance.backup_ms", d.Maintenance.BackupMs)

	v.SetDefault("max_content_length", d.MaxContentLength)
	v.SetDefault("max_relationships_per_memory", d.MaxRelationshipsPerMemory)
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required")
	}
	if c.Namespace == "" {
		return fmt.Errorf("namespace is required")
	}
	if c.MaxContentLength <= 0 {
		return fmt.Errorf("max_content_length must be > 0")
	}
	if c.MaxRelationshipsPerMemory <= 0 {
		return fmt.Errorf("max_relationships_per_memory must be > 0")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"console": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: console, json")
	}

	if c.Consolidation.Enabled {
		if c.Consolidation.IntervalMinutes <= 0 {
			return fmt.Errorf("consolidation.interval_minutes must be > 0 when enabled")
		}
		if c.Consolidation.SimilarityThreshold < 0 || c.Consolidation.SimilarityThreshold > 1 {
			return fmt.Errorf("consolidation.similarity_threshold must be in [0,1]")
		}
	}

	if c.StateManager.MaxHistoryEntries <= 0 {
		return fmt.Errorf("state_manager.max_history_entries must be > 0")
	}

	return nil
}

// EnsureConfigDir creates the directory holding the database file.
func (c *Config) EnsureConfigDir() error {
	dir := filepath.Dir(c.DatabaseURL)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return nil
}

// ConfigPath returns the default configuration directory.
func ConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".memengine")
}
