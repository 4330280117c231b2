package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Namespace != "default" {
		t.Errorf("Expected Namespace=default, got %s", cfg.Namespace)
	}
	if !cfg.AutoIngest {
		t.Error("Expected AutoIngest=true")
	}
	if cfg.ConsciousIngest {
		t.Error("Expected ConsciousIngest=false")
	}
	if !cfg.EnableRelationshipExtraction {
		t.Error("Expected EnableRelationshipExtraction=true")
	}
	if cfg.BackgroundUpdateInterval != 5*time.Minute {
		t.Errorf("Expected BackgroundUpdateInterval=5m, got %v", cfg.BackgroundUpdateInterval)
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("Expected Logging.Level=info, got %s", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "console" {
		t.Errorf("Expected Logging.Format=console, got %s", cfg.Logging.Format)
	}

	if !cfg.Performance.Enabled {
		t.Error("Expected Performance.Enabled=true")
	}
	if cfg.Performance.SlowQueryThresholdMs != 100 {
		t.Errorf("Expected SlowQueryThresholdMs=100, got %d", cfg.Performance.SlowQueryThresholdMs)
	}

	if !cfg.Consolidation.Enabled {
		t.Error("Expected Consolidation.Enabled=true")
	}
	if cfg.Consolidation.SimilarityThreshold != 0.7 {
		t.Errorf("Expected SimilarityThreshold=0.7, got %v", cfg.Consolidation.SimilarityThreshold)
	}

	if cfg.MaxContentLength != 50000 {
		t.Errorf("Expected MaxContentLength=50000, got %d", cfg.MaxContentLength)
	}
	if cfg.MaxRelationshipsPerMemory != 100 {
		t.Errorf("Expected MaxRelationshipsPerMemory=100, got %d", cfg.MaxRelationshipsPerMemory)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*Config)
		expectErr bool
	}{
		{
			name:      "valid config",
			modify:    func(c *Config) {},
			expectErr: false,
		},
		{
			name: "empty database url",
			modify: func(c *Config) {
				c.DatabaseURL = ""
			},
			expectErr: true,
		},
		{
			name: "empty namespace",
			modify: func(c *Config) {
				c.Namespace = ""
			},
			expectErr: true,
		},
		{
			name: "non-positive max content length",
			modify: func(c *Config) {
				c.MaxContentLength = 0
			},
			expectErr: true,
		},
		{
			name: "non-positive max relationships per memory",
			modify: func(c *Config) {
				c.MaxRelationshipsPerMemory = 0
			},
			expectErr: true,
		},
		{
			name: "invalid logging level",
			modify: func(c *Config) {
				c.Logging.Level = "invalid"
			},
			expectErr: true,
		},
		{
			name: "invalid logging format",
			modify: func(c *Config) {
				c.Logging.Format = "invalid"
			},
			expectErr: true,
		},
		{
			name: "consolidation enabled with non-positive interval",
			modify: func(c *Config) {
				c.Consolidation.Enabled = true
				c.Consolidation.IntervalMinutes = 0
			},
			expectErr: true,
		},
		{
			name: "consolidation similarity threshold out of range",
			modify: func(c *Config) {
				c.Consolidation.Enabled = true
				c.Consolidation.SimilarityThreshold = 1.5
			},
			expectErr: true,
		},
		{
			name: "non-positive max history entries",
			modify: func(c *Config) {
				c.StateManager.MaxHistoryEntries = 0
			},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.expectErr && err == nil {
				t.Error("Expected error, got nil")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}
		})
	}
}

func TestLoadConfig_NoFile(t *testing.T) {
	tmpDir := t.TempDir()
	oldWd, _ := os.Getwd()
	defer os.Chdir(oldWd) //nolint:errcheck
	_ = os.Chdir(tmpDir)

	oldHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", oldHome)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error with missing config, got: %v", err)
	}
	if cfg == nil {
		t.Fatal("Expected config, got nil")
	}
	if cfg.Namespace != "default" {
		t.Errorf("Expected default namespace, got %s", cfg.Namespace)
	}
}

func TestLoadConfig_WithFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
namespace: work
auto_ingest: false
enable_relationship_extraction: false
logging:
  level: debug
  format: json
consolidation:
  enabled: false
  interval_minutes: 30
max_content_length: 1000
max_relationships_per_memory: 10
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	oldWd, _ := os.Getwd()
	defer os.Chdir(oldWd) //nolint:errcheck
	_ = os.Chdir(tmpDir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Namespace != "work" {
		t.Errorf("Expected namespace=work, got %s", cfg.Namespace)
	}
	if cfg.AutoIngest {
		t.Error("Expected auto_ingest=false, got true")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected level=debug, got %s", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected format=json, got %s", cfg.Logging.Format)
	}
	if cfg.Consolidation.Enabled {
		t.Error("Expected consolidation.enabled=false, got true")
	}
	if cfg.MaxContentLength != 1000 {
		t.Errorf("Expected max_content_length=1000, got %d", cfg.MaxContentLength)
	}
}

func TestLoadConfig_RejectsUnrecognizedKey(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte("bogus_key: true\n"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	oldWd, _ := os.Getwd()
	defer os.Chdir(oldWd) //nolint:errcheck
	_ = os.Chdir(tmpDir)

	if _, err := Load(); err == nil {
		t.Error("Expected an error for an unrecognized configuration key, got nil")
	}
}

func TestEnsureConfigDir(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := &Config{
		DatabaseURL: filepath.Join(tmpDir, "subdir", "memories.db"),
	}

	if err := cfg.EnsureConfigDir(); err != nil {
		t.Fatalf("EnsureConfigDir failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, "subdir")); os.IsNotExist(err) {
		t.Error("Config directory was not created")
	}
}

func TestConfigPath(t *testing.T) {
	path := ConfigPath()
	if path == "" {
		t.Error("ConfigPath returned empty string")
	}

	homeDir, _ := os.UserHomeDir()
	expected := filepath.Join(homeDir, ".memengine")
	if path != expected {
		t.Errorf("Expected %s, got %s", expected, path)
	}
}
