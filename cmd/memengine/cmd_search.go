package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/memengine/memengine/internal/search"
)

var (
	searchLimit         int
	searchMinImportance string
	searchSince         string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search stored memories",
	Long: `Search memories by full-text query (BM25-ranked) or, with an empty
query, by recency. A relative time filter (--since) narrows a recency
search.

Examples:
  memengine search "tabs vs spaces"
  memengine search "" --since "2 days ago"
  memengine search "meeting notes" --min-importance HIGH --limit 5`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var query string
		if len(args) > 0 {
			query = args[0]
		}
		runSearch(query)
	},
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Get a memory by ID",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runGet(args[0])
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(getCmd)

	searchCmd.Flags().IntVarP(&searchLimit, "limit", "l", 20, "maximum results to return")
	searchCmd.Flags().StringVar(&searchMinImportance, "min-importance", "", "minimum importance tier (LOW, MEDIUM, HIGH, CRITICAL)")
	searchCmd.Flags().StringVar(&searchSince, "since", "", "relative time expression, e.g. \"2 days ago\"")
}

func runSearch(query string) {
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

	results, err := eng.SearchMemories(context.Background(), search.Query{
		Text:          query,
		Namespace:     ns,
		MinImportance: searchMinImportance,
		Since:         searchSince,
		Limit:         searchLimit,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error searching: %v\n", err)
		os.Exit(1)
	}

	if len(results) == 0 {
		printf("no results\n")
		return
	}
	for i, r := range results {
		printf("%d. [%s] score=%.3f  %s\n", i+1, r.ID, r.Score, truncate(r.Content, 80))
	}
}

func runGet(id string) {
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

	rec, err := eng.GetMemory(context.Background(), id, ns)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if rec == nil {
		fmt.Fprintf(os.Stderr, "memory not found: %s\n", id)
		os.Exit(1)
	}

	printf("id:             %s\n", rec.ID)
	printf("classification: %s\n", rec.Classification)
	printf("importance:     %s\n", rec.Importance)
	printf("content:        %s\n", rec.Content)
	if rec.Summary != "" {
		printf("summary:        %s\n", rec.Summary)
	}
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
