package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/garagehq/vhc/internal/api"
	"github.com/garagehq/vhc/internal/followup"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the staff API and customer portal",
		Long: `Serves the staff repair API and the public customer portal.

When followup.schedule is set, the deferred-work sweep runs on that cron
schedule in the same process.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to vhc config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides server.port)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := buildStack(ctx, configPath, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.Close()

	if port == 0 {
		port = s.cfg.Server.Port
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	if expr := s.cfg.Followup.Schedule; expr != "" {
		sweeper := followup.NewSweeper(s.db, s.pub, s.log)
		if err := followup.ValidateSchedule(expr); err != nil {
			return err
		}
		go func() {
			if err := sweeper.Schedule(ctx, expr); err != nil {
				s.log.WithError(err).Error("followup schedule stopped")
			}
		}()
	}

	return api.Start(ctx, api.StartOpts{
		RouterOpts: api.RouterOpts{
			Service:     s.service,
			Log:         s.log,
			JWTSecret:   s.cfg.Auth.JWTSecret,
			CORSOrigins: s.cfg.Server.CORSOrigins,
		},
		Port: port,
		Out:  cmd.OutOrStdout(),
	})
}
