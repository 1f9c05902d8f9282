package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxsorter/internal/config"
	"github.com/teemow/inboxsorter/internal/store"
)

func newMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Long: `Connect to the configured SQL database (DATABASE_DRIVER and DATABASE_URL),
apply every pending schema migration and print the resulting schema version.

The serve command migrates on startup as well; this command is meant for
deployments that run migrations as a separate step.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runMigrate(cmd.Context(), cmd, cfg.Database)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a YAML configuration file")

	return cmd
}

func runMigrate(ctx context.Context, cmd *cobra.Command, db config.DatabaseConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if db.Driver != config.DriverSQLite && db.Driver != config.DriverPostgres {
		return fmt.Errorf("migrate requires a SQL database driver (sqlite or postgres), got %q", db.Driver)
	}

	s, err := store.OpenSQL(ctx, db.Driver, db.URL)
	if err != nil {
		return err
	}
	defer s.Close()

	v, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "database schema is at version %d\n", v)
	return nil
}
