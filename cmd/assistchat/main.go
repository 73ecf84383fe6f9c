// Package main implements the assistchat CLI: the interactive chat client,
// the reference conversation service and a development token minter.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"AssistChat/internal/auth"
	"AssistChat/internal/backend"
	"AssistChat/internal/chatbot"
	"AssistChat/internal/config"
	"AssistChat/internal/telemetry"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "assistchat",
	Short: "Terminal client for the assistant conversation service",
	Long: `assistchat opens an interactive conversation with the assistant service.
Answers are revealed progressively; /help lists the available commands.

Examples:
  # Start a new conversation
  assistchat

  # Resume a stored conversation
  assistchat --session-id 42

  # Talk to another service
  assistchat --api-url https://assist.example.com/api --token-file ~/.assistchat/token`,
	Version:      version,
	SilenceUsage: true,
	RunE:         runChat,
}

func init() {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("log-dir", "", "Directory for logs, traces and metrics")

	rootCmd.Flags().String("session-id", "", "Resume the conversation with this id")
	rootCmd.Flags().String("api-url", "", "Base URL of the conversation service")
	rootCmd.Flags().String("token", "", "Bearer token for the conversation service")
	rootCmd.Flags().String("token-file", "", "File holding the bearer token, re-read on every call")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tokenCmd)
}

// loadConfig reads .env, the environment and then the flags that were set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: failed to load .env file: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	flags := cmd.Flags()
	overrides := map[string]*string{
		"log-dir":      &cfg.LogDir,
		"session-id":   &cfg.SessionID,
		"api-url":      &cfg.API.BaseURL,
		"token":        &cfg.API.Token,
		"token-file":   &cfg.API.TokenFile,
		"addr":         &cfg.Server.Addr,
		"db":           &cfg.Server.DBPath,
		"ollama-url":   &cfg.Server.OllamaURL,
		"ollama-model": &cfg.Server.OllamaModel,
	}
	for name, dst := range overrides {
		if flags.Lookup(name) == nil || !flags.Changed(name) {
			continue
		}
		if *dst, err = flags.GetString(name); err != nil {
			return nil, err
		}
	}
	if flags.Changed("debug") {
		if cfg.Debug, err = flags.GetBool("debug"); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, closeLog, err := telemetry.InitLogger(cfg.LogDir, cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer closeLog()

	ctx := cmd.Context()
	tracer, meter, cleanup, err := telemetry.InitTelemetry(ctx, cfg.LogDir)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer cleanup()

	tokens := auth.FromConfig(cfg.API.Token, cfg.API.TokenFile)
	client, err := backend.NewClient(cfg.API, tokens, logger, backend.WithTelemetry(tracer, meter))
	if err != nil {
		return fmt.Errorf("failed to create API client: %w", err)
	}

	bot, err := chatbot.NewChatBot(*cfg, client, client, logger, cmd.InOrStdin(), cmd.OutOrStdout())
	if err != nil {
		return fmt.Errorf("failed to initialize chatbot: %w", err)
	}

	return bot.Run(ctx)
}
