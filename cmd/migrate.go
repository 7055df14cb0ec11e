package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-access/internal/config"
	"github.com/kozaktomas/face-access/internal/database/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and show their status",
	Long: `Apply pending PostgreSQL migrations. The server also migrates on startup;
this command is meant for deploy pipelines that migrate before rolling out.

Use --status to list migrations without applying anything.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().Bool("status", false, "Only show migration status")
	migrateCmd.Flags().Bool("json", false, "Output as JSON")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	statusOnly := mustGetBool(cmd, "status")
	jsonOutput := mustGetBool(cmd, "json")
	ctx := context.Background()
	cfg := config.Load()

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}
	pool, err := postgres.NewPool(&cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	if !statusOnly {
		applied, err := pool.Migrate(ctx)
		if err != nil {
			return err
		}
		if !jsonOutput {
			for _, file := range applied {
				fmt.Printf("Applied migration: %s\n", file)
			}
			if len(applied) == 0 {
				fmt.Println("Database is up to date.")
			}
		}
	}

	status, err := pool.MigrationStatus(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		return outputJSON(status)
	}

	fmt.Println("\nMigrations:")
	for _, s := range status {
		if s.Applied {
			fmt.Printf("  [x] %s  (%s)\n", s.Version, s.AppliedAt)
		} else {
			fmt.Printf("  [ ] %s\n", s.Version)
		}
	}
	return nil
}
