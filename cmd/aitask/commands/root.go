// Package commands implements the aitask operations CLI.
package commands

import (
	"context"
	"fmt"

	"github.com/benvon/ai-task/internal/app"
	"github.com/benvon/ai-task/internal/config"
	"github.com/benvon/ai-task/internal/logger"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type options struct {
	debug bool
}

// NewRootCmd builds the aitask command tree
func NewRootCmd() *cobra.Command {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:          "aitask",
		Short:        "Operations tool for the ai-task backend",
		Long:         "CLI tool for schema migrations, cache and queue maintenance, and task context inspection",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(NewMigrateCmd(opts))
	rootCmd.AddCommand(NewCacheCmd(opts))
	rootCmd.AddCommand(NewContextCmd(opts))
	rootCmd.AddCommand(NewDLQCmd(opts))
	return rootCmd
}

func (o *options) logger() (*zap.Logger, error) {
	log, err := logger.NewConsole(o.debug)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return log, nil
}

// services connects to the stores. withAI also builds the provider and the
// chat service.
func (o *options) services(ctx context.Context, withAI bool) (*app.Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := o.logger()
	if err != nil {
		return nil, err
	}

	svc, err := app.New(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if withAI {
		if err := svc.InitAI(ctx, o.debug); err != nil {
			_ = svc.Close()
			return nil, err
		}
	}
	return svc, nil
}

// taskFlags are the --task and --user flags shared by task-scoped commands
type taskFlags struct {
	task string
	user string
}

func (f *taskFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.task, "task", "", "Task ID")
	cmd.Flags().StringVar(&f.user, "user", "", "ID of the user owning the task")
	_ = cmd.MarkFlagRequired("task")
	_ = cmd.MarkFlagRequired("user")
}

func (f *taskFlags) ids() (taskID, userID uuid.UUID, err error) {
	taskID, err = uuid.Parse(f.task)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid --task: %w", err)
	}
	userID, err = uuid.Parse(f.user)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid --user: %w", err)
	}
	return taskID, userID, nil
}

func closeServices(cmd *cobra.Command, svc *app.Services) {
	if err := svc.Close(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to close connections: %v\n", err)
	}
}
