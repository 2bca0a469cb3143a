package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/benvon/ai-task/internal/models"
	"github.com/benvon/ai-task/internal/services/ai"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type taskLookup interface {
	GetByID(ctx context.Context, id, userID uuid.UUID) (*models.Task, error)
}

type contextResolver interface {
	RefreshContext(ctx context.Context, task *models.Task) (ai.Resolution, error)
	Regenerate(ctx context.Context, task *models.Task) (ai.Resolution, error)
}

// NewContextCmd creates the context command
func NewContextCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Resolve and regenerate task contexts",
	}

	cmd.AddCommand(newContextSubcommand(opts, "show", "Resolve the context of a task and print it", false))
	cmd.AddCommand(newContextSubcommand(opts, "regenerate", "Drop the cached context of a task and generate a new one", true))
	return cmd
}

func newContextSubcommand(opts *options, use, short string, regenerate bool) *cobra.Command {
	var flags taskFlags
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, userID, err := flags.ids()
			if err != nil {
				return err
			}
			svc, err := opts.services(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer closeServices(cmd, svc)

			return resolveContext(cmd.Context(), cmd.OutOrStdout(), svc.Tasks, svc.Chat, taskID, userID, regenerate)
		},
	}
	flags.register(cmd)
	return cmd
}

// resolveContext prints the state and text of a task context. A degraded
// regeneration is reported as an error after the fallback is printed.
func resolveContext(ctx context.Context, out io.Writer, tasks taskLookup, chat contextResolver, taskID, userID uuid.UUID, regenerate bool) error {
	task, err := tasks.GetByID(ctx, taskID, userID)
	if err != nil {
		return fmt.Errorf("failed to load task: %w", err)
	}

	resolve := chat.RefreshContext
	if regenerate {
		resolve = chat.Regenerate
	}
	res, err := resolve(ctx, task)
	if err != nil {
		return fmt.Errorf("failed to resolve context: %w", err)
	}

	if _, err := fmt.Fprintf(out, "Task:  %s (%s)\nState: %s\n\n%s\n", task.Name, task.ID, res.State, res.Context); err != nil {
		return err
	}
	if regenerate && res.State == ai.StateDegraded && res.Err != nil {
		return fmt.Errorf("context generation degraded: %w", res.Err)
	}
	return nil
}
