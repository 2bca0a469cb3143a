package commands

import (
	"context"
	"fmt"

	"github.com/benvon/ai-task/internal/config"
	"github.com/benvon/ai-task/internal/database"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewMigrateCmd creates the migrate command
func NewMigrateCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd, opts, database.Migrate)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd, opts, database.MigrationStatus)
		},
	})

	return cmd
}

func withDatabase(cmd *cobra.Command, opts *options, run func(ctx context.Context, db *database.DB, log *zap.Logger) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log, err := opts.logger()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to close database: %v\n", err)
		}
	}()

	return run(ctx, db, log)
}
