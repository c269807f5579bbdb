package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/garagehq/vhc/internal/db"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBMigrateCmd())
	cmd.AddCommand(newDBSeedCmd())
	return cmd
}

func newDBMigrateCmd() *cobra.Command {
	var (
		configPath string
		seed       bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the repair tables",
		Long:  "Migrates health check, repair item, option, authorisation, signature, reason and lock tables.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBMigrate(cmd, configPath, seed)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to vhc config file")
	cmd.Flags().BoolVar(&seed, "seed", true, "also seed the default reason catalogs")
	return cmd
}

func runDBMigrate(cmd *cobra.Command, configPath string, seed bool) error {
	out := cmd.OutOrStdout()

	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Connected to %s database\n", cfg.Database.Driver)

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))

	if seed {
		if err := db.SeedReasons(gormDB); err != nil {
			return err
		}
		printSeeded(cmd)
	}
	return nil
}

func newDBSeedCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Install or refresh the default declined and deleted reasons",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			if err := db.SeedReasons(gormDB); err != nil {
				return err
			}
			printSeeded(cmd)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to vhc config file")
	return cmd
}

func printSeeded(cmd *cobra.Command) {
	fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d declined and %d deleted reasons\n",
		len(db.DefaultDeclinedReasons), len(db.DefaultDeletedReasons))
}
