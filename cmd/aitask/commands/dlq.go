package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/benvon/ai-task/internal/config"
	"github.com/benvon/ai-task/internal/queue"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewDLQCmd creates the dlq command
func NewDLQCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Maintain the dead-letter queue",
	}

	var olderThan time.Duration
	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Drop dead-lettered jobs older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cfg.RabbitMQURL == "" {
				return fmt.Errorf("RABBITMQ_URL is required")
			}
			log, err := opts.logger()
			if err != nil {
				return err
			}

			jobQueue, err := queue.NewRabbitMQQueue(cfg.RabbitMQURL, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := jobQueue.Close(); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to close RabbitMQ connection: %v\n", err)
				}
			}()

			retention := cfg.DLQRetention
			if cmd.Flags().Changed("older-than") {
				retention = olderThan
			}
			return purgeDLQ(cmd.Context(), cmd.OutOrStdout(), jobQueue, retention, log)
		},
	}
	purgeCmd.Flags().DurationVar(&olderThan, "older-than", 0, "Retention window (defaults to DLQ_RETENTION)")
	cmd.AddCommand(purgeCmd)

	return cmd
}

func purgeDLQ(ctx context.Context, out io.Writer, purger queue.DLQPurger, retention time.Duration, log *zap.Logger) error {
	if retention <= 0 {
		return fmt.Errorf("retention must be positive, got %s", retention)
	}
	purged, err := queue.NewDLQCollector(purger, retention, retention, log).Collect(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "Purged %d dead-lettered jobs older than %s\n", purged, retention)
	return err
}
