package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/memengine/memengine/internal/memory"
)

var (
	listLimit  int
	listOffset int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List memories in a namespace",
	Run: func(cmd *cobra.Command, args []string) {
		runListMemories()
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().IntVarP(&listLimit, "limit", "l", 50, "maximum results to return")
	listCmd.Flags().IntVarP(&listOffset, "offset", "o", 0, "offset for pagination")
}

func runListMemories() {
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

	records, err := eng.ListMemories(context.Background(), ns, memory.ListOptions{Limit: listLimit, Offset: listOffset})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if len(records) == 0 {
		printf("no memories found\n")
		return
	}
	for i, r := range records {
		printf("%d. [%s] (%s/%s) %s\n", i+1, r.ID, r.Classification, r.Importance, truncate(r.Content, 80))
	}
}
