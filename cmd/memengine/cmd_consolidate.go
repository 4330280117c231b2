package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var consolidatePreview bool

var consolidateCmd = &cobra.Command{
	Use:   "consolidate <primary-id> <dup-id> [<dup-id>...]",
	Short: "Merge duplicate memories into a primary record",
	Long: `Consolidate merges one or more duplicate memories into primaryID,
marking each duplicate as a duplicate of the primary and the primary as
consolidated. Relationships on the duplicates are not moved to the
primary. Use --preview to see the outcome without mutating anything.

Examples:
  memengine consolidate 3f9c... 9a01... 9a02...
  memengine consolidate --preview 3f9c... 9a01...`,
	Args: cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runConsolidate(args[0], args[1:])
	},
}

func init() {
	rootCmd.AddCommand(consolidateCmd)
	consolidateCmd.Flags().BoolVar(&consolidatePreview, "preview", false, "estimate the outcome without mutating any record")
}

func runConsolidate(primaryID string, dupIDs []string) {
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
	ctx := context.Background()

	if consolidatePreview {
		preview, err := eng.PreviewConsolidation(ctx, ns, primaryID, dupIDs)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error previewing consolidation: %v\n", err)
			os.Exit(1)
		}
		printf("would consolidate %d duplicate(s) into %s (estimated confidence=%.2f, hash=%s)\n",
			len(preview.DupIDs), primaryID, preview.EstimatedConfidence, preview.EstimatedHash)
		return
	}

	result, err := eng.Consolidate(ctx, ns, primaryID, dupIDs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error consolidating: %v\n", err)
		os.Exit(1)
	}
	printf("consolidated %d duplicate(s) into %s (hash=%s)\n", result.ConsolidatedCount, result.PrimaryID, result.Hash)
}
