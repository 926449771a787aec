package cmd

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/restcore/internal/config"
	"github.com/fluxbase-eu/restcore/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:     "migrate",
	Aliases: []string{"migration", "migrations"},
	Short:   "Manage the sample database schema",
	Long: `Apply, roll back and inspect the migrations of the sample schema.
Connection settings are read from restcore.yaml and RESTCORE_* variables.`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConnection(cmd, func(db *database.Connection) error {
			if err := db.Migrate(); err != nil {
				return err
			}
			formatter.PrintSuccess("Migrations applied")
			return nil
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back every migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConnection(cmd, func(db *database.Connection) error {
			formatter.PrintWarning("Rolling back every migration")
			if err := db.MigrateDown(); err != nil {
				return err
			}
			formatter.PrintSuccess("Migrations rolled back")
			return nil
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConnection(cmd, func(db *database.Connection) error {
			version, dirty, err := db.MigrationVersion()
			if err != nil {
				return err
			}
			formatter.PrintKeyValue("version", strconv.FormatUint(uint64(version), 10))
			formatter.PrintKeyValue("dirty", strconv.FormatBool(dirty))
			return nil
		})
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateVersionCmd)
}

func withConnection(cmd *cobra.Command, fn func(db *database.Connection) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := database.NewConnection(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(db)
}
