package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sudo-init-do/handyhub/internal/db"
)

func migrateCmd() *cobra.Command {
	m := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
				return err
			}
			if cfg.DBDriver != "postgres" {
				return errors.New("migrate only applies to DB_DRIVER=postgres; SQLite migrates on open")
			}
			return nil
		},
	}
	m.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return db.MigrateUp(cfg.PostgresDSN())
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return db.MigrateDown(cfg.PostgresDSN(), steps)
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	m.AddCommand(down)

	m.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, dirty, err := db.MigrationVersion(cfg.PostgresDSN())
			if err != nil {
				return err
			}
			fmt.Printf("version %d (dirty=%t)\n", v, dirty)
			return nil
		},
	})
	return m
}
