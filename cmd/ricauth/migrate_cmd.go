package main

import (
	"database/sql"

	"github.com/spf13/cobra"

	"ricauth/internal/migrations"
)

func newMigrateCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	step := func(use, short string, run func(cmd *cobra.Command, db *sql.DB) error) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := open(cmd)
				if err != nil {
					return err
				}
				defer a.Close()
				return run(cmd, a.DB)
			},
		}
	}

	cmd.AddCommand(
		step("up", "Apply all pending migrations", func(cmd *cobra.Command, db *sql.DB) error {
			return migrations.Up(cmd.Context(), db)
		}),
		step("down", "Roll back the latest migration", func(cmd *cobra.Command, db *sql.DB) error {
			return migrations.Down(cmd.Context(), db)
		}),
		step("status", "Print the migration status", func(cmd *cobra.Command, db *sql.DB) error {
			return migrations.Status(cmd.Context(), db)
		}),
	)
	return cmd
}
