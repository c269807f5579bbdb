package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/garagehq/vhc/internal/api"
	"github.com/garagehq/vhc/internal/config"
)

func newTokenCmd() *cobra.Command {
	var (
		configPath string
		userID     string
		orgID      string
		role       string
		ttl        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a staff bearer token for local use",
		Long:  "Signs a staff token with auth.jwt_secret. Intended for development and scripted access.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			tok, err := api.IssueToken(cfg.Auth.JWTSecret, userID, orgID, role, ttl, time.Now())
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to vhc config file")
	cmd.Flags().StringVar(&userID, "user", "", "staff user id (required)")
	cmd.Flags().StringVar(&orgID, "org", "", "organization id (required)")
	cmd.Flags().StringVar(&role, "role", "advisor", "staff role")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}
