package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/benvon/ai-task/internal/cache"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type contextInvalidator interface {
	Invalidate(ctx context.Context, taskID, userID uuid.UUID)
}

// NewCacheCmd creates the cache command
func NewCacheCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the task context cache",
	}

	var flags taskFlags
	invalidateCmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Drop the cached context and exchanges of a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, userID, err := flags.ids()
			if err != nil {
				return err
			}
			svc, err := opts.services(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer closeServices(cmd, svc)

			return invalidate(cmd.Context(), cmd.OutOrStdout(), svc.Cache, taskID, userID)
		},
	}
	flags.register(invalidateCmd)
	cmd.AddCommand(invalidateCmd)

	return cmd
}

func invalidate(ctx context.Context, out io.Writer, c contextInvalidator, taskID, userID uuid.UUID) error {
	c.Invalidate(ctx, taskID, userID)
	_, err := fmt.Fprintf(out, "Invalidated %s and %s\n", cache.ContextKey(taskID, userID), cache.ExchangesKey(taskID, userID))
	return err
}
