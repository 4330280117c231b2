package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/memengine/memengine/internal/engine"
	"github.com/memengine/memengine/pkg/config"
)

var (
	// Version is set during build.
	Version = "0.1.0"

	// Global flags
	cfgFile   string
	logLevel  string
	quiet     bool
	namespace string
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "memengine",
	Short: "Conversational long-term memory engine",
	Long: `memengine stores and retrieves conversational memories with
automatic classification, relationship extraction, full-text search, and
background consolidation of near-duplicates.

Examples:
  memengine store "I prefer tabs over spaces" "Noted your preference."
  memengine search "tabs vs spaces"
  memengine consolidate <primary-id> <dup-id> [<dup-id>...]
  memengine stats
  memengine serve --addr :8080`,
	Version: Version,
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (accepted but not read; config.yaml is always searched in ., ~/.memengine and /etc/memengine)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress informational output")
	rootCmd.PersistentFlags().StringVarP(&namespace, "namespace", "n", "", "namespace to operate in (defaults to \"default\")")
}

// loadConfig loads configuration, applying --log-level and --namespace
// overrides from the command line.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if namespace != "" {
		cfg.Namespace = namespace
	}
	return cfg, nil
}

// openEngine loads configuration and wires an *engine.Engine with no model
// provider configured; every store falls back to the deterministic record.
func openEngine() (*engine.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return engine.New(cfg, nil)
}

func printf(format string, args ...interface{}) {
	if quiet {
		return
	}
	fmt.Printf(format, args...)
}
