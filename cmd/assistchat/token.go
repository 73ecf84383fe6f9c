package main

import (
	"fmt"
	"time"

	"AssistChat/internal/server"

	"github.com/spf13/cobra"
)

// tokenCmd mints a bearer token accepted by the conversation service
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a development bearer token",
	Long: `Mint an HS256 token for a user, signed with ASSISTCHAT_JWT_SECRET.

Examples:
  # Token for user 1, saved where the client reads it
  assistchat token --user 1 > ~/.assistchat/token`,
	Args: cobra.NoArgs,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().Int64("user", 0, "User id placed in the token subject")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	_ = tokenCmd.MarkFlagRequired("user")
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Server.JWTSecret == "" {
		return fmt.Errorf("ASSISTCHAT_JWT_SECRET is required to mint tokens")
	}

	userID, err := cmd.Flags().GetInt64("user")
	if err != nil {
		return err
	}
	if userID <= 0 {
		return fmt.Errorf("user id must be positive, got %d", userID)
	}
	ttl, err := cmd.Flags().GetDuration("ttl")
	if err != nil {
		return err
	}

	token, err := server.MintToken([]byte(cfg.Server.JWTSecret), userID, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
