/*
Copyright © 2024 Dean
*/
package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	httpHdlr "github.com/vibeee34/chatbot-gemini/handler/http"
	"github.com/vibeee34/chatbot-gemini/src/core/rag"
	"github.com/vibeee34/chatbot-gemini/src/log"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the document question-answering server",
	Long: `The serve command loads the embedding model, connects to the vector store and
starts an HTTP server with /upload-document and /query-rag.`,
	RunE: RunServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Bool("strict", false, "refuse to start without a generation credential")
	serveCmd.Flags().String("backend", "", "vector store backend, overrides store.backend")
}

func RunServer(cmd *cobra.Command, args []string) error {
	strict, _ := cmd.Flags().GetBool("strict")
	backend, _ := cmd.Flags().GetString("backend")
	if backend == "" {
		backend = viper.GetString("store.backend")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, backend)
	if err != nil {
		log.Error(err, "Failed to initialize")
		return err
	}
	defer a.close()

	if a.generator == nil && strict {
		return fmt.Errorf("refusing to start: %w", rag.ErrGeneratorUnconfigured)
	}

	// the embedding model must be usable before any request is served
	initCtx, cancel := context.WithTimeout(ctx, viper.GetDuration("embedding.timeout"))
	err = a.embedder.Init(initCtx)
	cancel()
	if err != nil {
		log.Error(err, "Embedding model failed to load on startup")
		return err
	}

	if err := a.startDrops(ctx); err != nil {
		log.Error(err, "Failed to start retire queue")
		return err
	}
	return serve(ctx, a)
}

func serve(ctx context.Context, a *app) error {
	gin.SetMode(gin.ReleaseMode)

	handler := httpHdlr.NewHandler(a.pipeline, a.answerer, a.system, viper.GetInt64("server.max_upload_bytes"))
	r := httpHdlr.NewRouter(handler, viper.GetStringSlice("server.cors_origins"))

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + viper.GetString("server.port"),
		Handler: r,
	}

	// Start server in a goroutine
	errc := make(chan error, 1)
	go func() {
		log.Info("Server listening", "addr", srv.Addr, "embedding_model", a.embedder.ModelName(), "dimension", a.embedder.Dimension())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	select {
	case <-ctx.Done():
	case err := <-errc:
		log.Error(err, "Failed to start server")
		return err
	}
	log.Info("Shutting down server...")

	timeout := viper.GetDuration("server.shutdown_timeout")
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "Server forced to shutdown")
	}

	log.Info("Server exited")
	return nil
}
