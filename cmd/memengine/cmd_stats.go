package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store, state-manager, consolidation, and search-index health",
	Run: func(cmd *cobra.Command, args []string) {
		runStats()
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats() {
	eng, err := openEngine()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer eng.Close()

	ns := namespace
	if ns == "" {
		ns = "default"
	}

	st, err := eng.Stats(context.Background(), ns)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	printf("store:\n")
	printf("  total ops:       %d\n", st.Store.TotalOps)
	printf("  errors:          %d\n", st.Store.ErrorCount)
	printf("  slow queries:    %d\n", len(st.Store.SlowQueries))
	printf("state manager:\n")
	printf("  transitions:     %v\n", st.StateManager.TransitionCounts)
	printf("  states:          %v\n", st.StateManager.StateCounts)
	printf("consolidation:\n")
	printf("  total memories:  %d\n", st.Consolidation.TotalMemories)
	printf("  merged:          %d\n", st.Consolidation.TotalDuplicatesMerged)
	printf("  health:          %s\n", st.Consolidation.OverallHealth)
	printf("search index:\n")
	printf("  health:          %s (score=%.2f)\n", st.SearchIndex.Health, st.SearchIndex.Score)
}
