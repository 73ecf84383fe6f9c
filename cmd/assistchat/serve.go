package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"AssistChat/internal/cache"
	"AssistChat/internal/server"
	"AssistChat/internal/telemetry"

	"github.com/spf13/cobra"
)

// serveCmd runs the reference conversation service
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the conversation service",
	Long: `Run the reference conversation service backed by a sqlite database.

Answers come from Ollama when --ollama-url is set and are canned otherwise.
ASSISTCHAT_JWT_SECRET must be set; use "assistchat token" to mint a token.

Examples:
  # Serve canned answers on :8000
  ASSISTCHAT_JWT_SECRET=dev assistchat serve

  # Answer with a local model
  assistchat serve --ollama-url http://localhost:11434 --ollama-model llama3:latest`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address")
	serveCmd.Flags().String("db", "", "Path of the sqlite database")
	serveCmd.Flags().String("ollama-url", "", "Base URL of an Ollama server")
	serveCmd.Flags().String("ollama-model", "", "Ollama model (format: model:version)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Server.JWTSecret == "" {
		return fmt.Errorf("ASSISTCHAT_JWT_SECRET is required to serve")
	}

	logger, closeLog, err := telemetry.InitLogger(cfg.LogDir, cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer closeLog()

	ctx := cmd.Context()
	_, _, cleanup, err := telemetry.InitTelemetry(ctx, cfg.LogDir)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer cleanup()

	store, err := server.OpenStore(cfg.Server.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	var answerer server.Answerer = server.CannedAnswerer{}
	if cfg.Server.OllamaURL != "" {
		ollama := server.NewOllamaAnswerer(cfg.Server.OllamaURL, cfg.Server.OllamaModel, cfg.API.Timeout)
		if ok, err := ollama.HasModel(ctx); err != nil {
			logger.Warn("failed to list Ollama models", "error", err)
		} else if !ok {
			logger.Warn("Ollama model is not installed", "model", cfg.Server.OllamaModel)
		}
		answerer = ollama
	}

	srv, err := server.New(store, answerer, cache.New(cfg.Server.CacheTTL), []byte(cfg.Server.JWTSecret), logger)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("conversation service listening", "addr", cfg.Server.Addr, "db", cfg.Server.DBPath)
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", cfg.Server.Addr)
	return runServer(ctx, httpServer, logger)
}

func runServer(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down conversation service")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
