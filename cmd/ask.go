package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/vibeee34/chatbot-gemini/src/core/rag"
	"github.com/vibeee34/chatbot-gemini/src/log"
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Ingest a local document and answer questions about it",
	Long: `The ask command ingests one file in-process and answers every --query,
or every line read from stdin when no query is given.`,
	RunE: Ask,
}

func init() {
	rootCmd.AddCommand(askCmd)

	askCmd.Flags().StringP("file", "f", "", "document to ingest (PDF or plain text)")
	askCmd.MarkFlagRequired("file")
	askCmd.Flags().StringArrayP("query", "q", nil, "question to ask, may be repeated")
	askCmd.Flags().String("backend", "memory", "vector store backend")
	askCmd.Flags().Bool("keep", false, "keep the collection after answering")
	askCmd.Flags().Bool("show-context", false, "print the retrieved chunks with each answer")
}

func Ask(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("file")
	queries, _ := cmd.Flags().GetStringArray("query")
	backend, _ := cmd.Flags().GetString("backend")
	keep, _ := cmd.Flags().GetBool("keep")
	showContext, _ := cmd.Flags().GetBool("show-context")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	a, err := buildApp(ctx, backend)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.startDrops(ctx); err != nil {
		return err
	}

	res, err := a.pipeline.Ingest(ctx, rag.Upload{
		Filename: filepath.Base(path),
		Data:     data,
		Progress: embeddingProgress(),
	})
	if err != nil {
		return err
	}
	fmt.Printf("Stored file '%s' as %s (%d chunks, dimension %d).\n", res.Filename, res.Collection, res.Chunks, res.Dimension)

	if !keep {
		defer func() {
			if err := a.store.Drop(context.WithoutCancel(ctx), res.Collection); err != nil {
				log.Error(err, "Failed to drop collection", "collection", res.Collection)
			}
		}()
	}

	answer := func(q string) error {
		ans, err := a.answerer.Answer(ctx, q)
		if err != nil {
			return err
		}
		if showContext {
			for _, m := range ans.Matches {
				fmt.Printf("  [%d] %.3f %s\n", m.Position, m.Score, oneLine(m.Content, 100))
			}
		}
		fmt.Println(ans.Text)
		return nil
	}

	if len(queries) > 0 {
		for _, q := range queries {
			if err := answer(q); err != nil {
				return err
			}
		}
		return nil
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		if strings.TrimSpace(scanner.Text()) == "" {
			continue
		}
		if err := answer(scanner.Text()); err != nil {
			if rag.Kind(err) != rag.KindInput {
				return err
			}
			fmt.Println(err)
		}
	}
}

// embeddingProgress draws a bar once the total is known.
func embeddingProgress() rag.ProgressFunc {
	var (
		mu  sync.Mutex
		bar *progressbar.ProgressBar
	)
	return func(done, total int) {
		mu.Lock()
		defer mu.Unlock()

		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Embedding[reset]"),
				progressbar.OptionOnCompletion(func() {
					fmt.Println()
				}),
			)
		}
		bar.Set(done)
	}
}

func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}
