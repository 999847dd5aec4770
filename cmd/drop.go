package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vibeee34/chatbot-gemini/src/core/rag"
)

var dropCmd = &cobra.Command{
	Use:   "drop COLLECTION...",
	Short: "Drop collections left behind in the vector store",
	Long: `The drop command removes the named collections. Only names created by this
service (documents_<hex>) are accepted.`,
	Args: cobra.MinimumNArgs(1),
	RunE: Drop,
}

func init() {
	rootCmd.AddCommand(dropCmd)

	dropCmd.Flags().String("backend", "", "vector store backend, overrides store.backend")
	dropCmd.Flags().Duration("timeout", 30*time.Second, "timeout per drop")
}

func Drop(cmd *cobra.Command, args []string) error {
	backend, _ := cmd.Flags().GetString("backend")
	if backend == "" {
		backend = viper.GetString("store.backend")
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")

	for _, name := range args {
		if !strings.HasPrefix(name, rag.CollectionPrefix) {
			return fmt.Errorf("refusing to drop %q: not a %s collection", name, rag.CollectionPrefix)
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	store, closeStore, err := buildStore(ctx, backend)
	if err != nil {
		return err
	}
	defer closeStore()

	for _, name := range args {
		dropCtx, cancel := context.WithTimeout(ctx, timeout)
		err := store.Drop(dropCtx, name)
		cancel()
		if err != nil {
			return fmt.Errorf("drop %s: %w", name, err)
		}
		fmt.Printf("Dropped %s\n", name)
	}
	return nil
}
