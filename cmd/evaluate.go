/*
Copyright © 2024 Dean
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vibeee34/chatbot-gemini/src/core/rag"
	"github.com/vibeee34/chatbot-gemini/src/log"
)

// evaluateCmd represents the evaluate command
var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Measure retrieval recall on a document",
	Long: `The evaluate command ingests a document and runs every case of a JSON-lines
evaluation file against it. Each line looks like:

  {"query": "What is Alpha?", "golden_positions": [0, 3]}

where golden_positions are the chunk positions that should be retrieved.`,
	RunE: Evaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
	evaluateCmd.Flags().StringP("input", "i", "", "document to ingest")
	evaluateCmd.MarkFlagRequired("input")
	evaluateCmd.Flags().StringP("evaluate", "e", "", "evaluation JSON-lines file path")
	evaluateCmd.MarkFlagRequired("evaluate")
	evaluateCmd.Flags().String("backend", "memory", "vector store backend")
	evaluateCmd.Flags().IntP("k", "k", 0, "number of chunks to retrieve, defaults to rag.top_k")
}

func Evaluate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	inputPath, _ := cmd.Flags().GetString("input")
	evaluatePath, _ := cmd.Flags().GetString("evaluate")
	backend, _ := cmd.Flags().GetString("backend")
	k, _ := cmd.Flags().GetInt("k")
	if k <= 0 {
		k = viper.GetInt("rag.top_k")
	}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}
	evalFile, err := os.Open(evaluatePath)
	if err != nil {
		return fmt.Errorf("failed to open evaluation file: %w", err)
	}
	defer evalFile.Close()

	a, err := buildApp(ctx, backend)
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.pipeline.Ingest(ctx, rag.Upload{
		Filename: filepath.Base(inputPath),
		Data:     data,
		Progress: embeddingProgress(),
	})
	if err != nil {
		return err
	}
	// Cleanup: drop the evaluation collection
	defer func() {
		if err := a.store.Drop(ctx, res.Collection); err != nil {
			log.Error(err, "Failed to cleanup evaluation collection", "collection", res.Collection)
		}
	}()

	report, err := rag.EvaluateRetrieval(ctx, evalFile, a.embedder, a.store, rag.Collection{Name: res.Collection}, k)
	if err != nil {
		return err
	}

	if report.Cases == 0 {
		fmt.Println("No evaluations were processed")
		return nil
	}
	fmt.Printf("Evaluation Results:\n")
	fmt.Printf("Chunks: %d\n", res.Chunks)
	fmt.Printf("Total evaluations: %d (skipped %d)\n", report.Cases, report.Skipped)
	fmt.Printf("Average recall@%d: %.2f%%\n", k, report.AverageRecall*100)
	return nil
}
