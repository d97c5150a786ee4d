package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/medreport-explainer/internal/app"
	"github.com/medreport-explainer/internal/database"
)

// NewMigrateCmd creates the migrate command for the PostgreSQL result store.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL result store schema",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cliCtx, err := postgresContext(cmd)
				if err != nil {
					return err
				}
				return app.Migrate(database.ConfigFromDomain(cliCtx.Config.Database), cliCtx.Logger)
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the latest migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withRunner(cmd, func(r *database.MigrationRunner) error {
					return r.Down()
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withRunner(cmd, func(r *database.MigrationRunner) error {
					version, dirty, err := r.Version()
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
					return nil
				})
			},
		},
	)
	return cmd
}

func postgresContext(cmd *cobra.Command) (*CLIContext, error) {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(cliCtx.Config.Storage.Driver, app.StoragePostgres) {
		return nil, fmt.Errorf("migrations apply to the postgres storage driver, configured driver is %q", cliCtx.Config.Storage.Driver)
	}
	return cliCtx, nil
}

func withRunner(cmd *cobra.Command, fn func(*database.MigrationRunner) error) error {
	cliCtx, err := postgresContext(cmd)
	if err != nil {
		return err
	}

	db, err := database.OpenSQL(database.ConfigFromDomain(cliCtx.Config.Database))
	if err != nil {
		return err
	}
	defer db.Close()

	runner, err := database.NewMigrationRunner(db, cliCtx.Logger)
	if err != nil {
		return err
	}
	defer runner.Close()

	return fn(runner)
}
