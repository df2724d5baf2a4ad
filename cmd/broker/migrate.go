package main

import (
	"context"
	"fmt"
	"os"

	"github.com/goodtune/ghbroker/internal/audit"
	"github.com/goodtune/ghbroker/internal/config"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run audit database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			if cfgPath == "" {
				cfgPath = os.Getenv("BROKER_CONFIG")
			}

			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}

			store, err := audit.Open(cfg.Database.Driver, cfg.Database.DSN)
			if err != nil {
				return fmt.Errorf("opening audit database: %w", err)
			}
			defer store.Close()

			migrator := audit.NewMigrator(store)

			ctx := context.Background()
			if err := migrator.Migrate(ctx); err != nil {
				return fmt.Errorf("running migrations: %w", err)
			}

			fmt.Println("Migrations complete.")
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Check migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			if cfgPath == "" {
				cfgPath = os.Getenv("BROKER_CONFIG")
			}

			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}

			store, err := audit.Open(cfg.Database.Driver, cfg.Database.DSN)
			if err != nil {
				return fmt.Errorf("opening audit database: %w", err)
			}
			defer store.Close()

			migrator := audit.NewMigrator(store)

			ctx := context.Background()
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("checking migration status: %w", err)
			}

			for _, s := range statuses {
				status := "pending"
				if s.Applied {
					status = "applied"
				}
				fmt.Printf("%-40s %s\n", s.Name, status)
			}

			if len(statuses) == 0 {
				fmt.Println("No migrations found.")
			}

			return nil
		},
	})

	return cmd
}
