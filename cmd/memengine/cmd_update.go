package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/memengine/memengine/internal/memory"
)

var (
	updateContent        string
	updateSummary        string
	updateClassification string
	updateImportance     string
)

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Apply a partial update to a memory",
	Long: `update patches a stored memory's content, summary, classification,
or importance. An empty patch (no flags set) is a no-op.

Examples:
  memengine update 3f9c... --content "corrected content"
  memengine update 3f9c... --importance HIGH`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runUpdate(args[0])
	},
}

var forgetCmd = &cobra.Command{
	Use:   "forget <id>",
	Short: "Delete a memory",
	Long: `forget removes a memory by ID. With --cascade, also removes
relationships targeting it elsewhere in the namespace.

Examples:
  memengine forget 3f9c...
  memengine forget 3f9c... --cascade`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runForget(args[0])
	},
}

var forgetCascade bool

func init() {
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(forgetCmd)

	updateCmd.Flags().StringVar(&updateContent, "content", "", "new content")
	updateCmd.Flags().StringVar(&updateSummary, "summary", "", "new summary")
	updateCmd.Flags().StringVar(&updateClassification, "classification", "", "new classification")
	updateCmd.Flags().StringVar(&updateImportance, "importance", "", "new importance (LOW, MEDIUM, HIGH, CRITICAL)")

	forgetCmd.Flags().BoolVar(&forgetCascade, "cascade", false, "also remove relationships targeting this memory")
}

func runUpdate(id string) {
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

	patch := memory.UpdatePatch{}
	if updateContent != "" {
		patch.Content = &updateContent
	}
	if updateSummary != "" {
		patch.Summary = &updateSummary
	}
	if updateClassification != "" {
		patch.Classification = &updateClassification
	}
	if updateImportance != "" {
		patch.Importance = &updateImportance
	}

	ok, err := eng.UpdateMemory(context.Background(), id, patch, ns)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error updating memory: %v\n", err)
		os.Exit(1)
	}
	if !ok {
		fmt.Fprintf(os.Stderr, "memory not found or patch was empty: %s\n", id)
		os.Exit(1)
	}
	printf("updated memory %s\n", id)
}

func runForget(id string) {
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

	ok, err := eng.DeleteMemory(context.Background(), id, ns, memory.DeleteOptions{Cascade: forgetCascade})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error deleting memory: %v\n", err)
		os.Exit(1)
	}
	if !ok {
		fmt.Fprintf(os.Stderr, "memory not found: %s\n", id)
		os.Exit(1)
	}
	printf("deleted memory %s\n", id)
}
