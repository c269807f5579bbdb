package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/garagehq/vhc/internal/followup"
)

func newFollowupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "followup",
		Short: "Deferred work follow-up",
	}
	cmd.AddCommand(newFollowupRunCmd())
	return cmd
}

func newFollowupRunCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Announce deferred items that are now due, once",
		Long:  "Publishes one deferral-due event per health check whose deferred items have reached their date. Each item is announced once.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFollowup(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to vhc config file")
	return cmd
}

func runFollowup(cmd *cobra.Command, configPath string) error {
	ctx := context.Background()
	s, err := buildStack(ctx, configPath, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := followup.NewSweeper(s.db, s.pub, s.log).Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Announced %d deferred items across %d health checks\n", len(res.Notified), res.HealthChecks)
	return nil
}
