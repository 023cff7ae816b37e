package main

import (
	"fmt"
	"io"

	"github.com/JonMunkholm/policyimport/internal/config"
	"github.com/JonMunkholm/policyimport/internal/store/postgres"
	"github.com/spf13/cobra"
)

type migrateOptions struct {
	down bool
}

func newMigrateCmd() *cobra.Command {
	var opts migrateOptions

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the PostgreSQL schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runMigrate(cmd, cmd.OutOrStdout(), cfg.Database, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.down, "down", false, "Roll back the most recent migration")
	return cmd
}

func runMigrate(cmd *cobra.Command, stdout io.Writer, db config.DatabaseConfig, opts migrateOptions) error {
	ctx := cmd.Context()

	s, err := postgres.Open(ctx, db)
	if err != nil {
		return err
	}
	defer s.Close()

	if opts.down {
		err = s.MigrateDown(ctx)
	} else {
		err = s.Migrate(ctx)
	}
	if err != nil {
		return err
	}

	version, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "schema version %d\n", version)
	return nil
}
