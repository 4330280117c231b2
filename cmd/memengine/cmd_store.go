package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/memengine/memengine/internal/engine"
)

var (
	storeChatID  string
	storeExtract bool
)

var storeCmd = &cobra.Command{
	Use:   "store <user-input> <ai-output>",
	Short: "Store a conversational turn",
	Long: `Run a user/assistant turn through the memory pipeline: classify and
extract metadata (via the configured model provider, or a deterministic
fallback), persist the resulting record, and optionally extract
relationships against recent history.

Examples:
  memengine store "I prefer tabs over spaces" "Noted your preference."
  memengine store "remind me to renew the domain" "Added to your todo list" --extract-relationships`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runStore(args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(storeCmd)
	storeCmd.Flags().StringVar(&storeChatID, "chat-id", "", "conversation/chat identifier to group this turn under")
	storeCmd.Flags().BoolVar(&storeExtract, "extract-relationships", false, "extract relationships against recent history after storing")
}

func runStore(userInput, aiOutput string) {
	eng, err := openEngine()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer eng.Close()

	id, err := eng.StoreChat(context.Background(), engine.StoreChatOptions{
		Namespace:            namespace,
		ChatID:               storeChatID,
		UserInput:            userInput,
		AIOutput:             aiOutput,
		ExtractRelationships: storeExtract,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error storing memory: %v\n", err)
		os.Exit(1)
	}

	printf("stored memory %s\n", id)
}
