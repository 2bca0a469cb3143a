// Package workers consumes queued jobs and runs them against the chat service.
package workers

import (
	"context"
	"errors"
	"fmt"

	"github.com/benvon/ai-task/internal/database"
	"github.com/benvon/ai-task/internal/logger"
	"github.com/benvon/ai-task/internal/models"
	"github.com/benvon/ai-task/internal/queue"
	"github.com/benvon/ai-task/internal/services/ai"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TaskLookup loads a task owned by a user
type TaskLookup interface {
	GetByID(ctx context.Context, id, userID uuid.UUID) (*models.Task, error)
}

// ChatRunner is the part of the chat service jobs drive
type ChatRunner interface {
	Regenerate(ctx context.Context, task *models.Task) (ai.Resolution, error)
	Chat(ctx context.Context, task *models.Task, prompt string) (*ai.ChatResult, error)
}

// Enqueuer publishes retries
type Enqueuer interface {
	Enqueue(ctx context.Context, job *queue.Job) error
}

// errPermanent marks failures retrying cannot fix
var errPermanent = errors.New("permanent job failure")

// JobProcessor runs generate_task_context and process_chat jobs
type JobProcessor struct {
	tasks  TaskLookup
	chat   ChatRunner
	queue  Enqueuer
	logger *zap.Logger
}

// NewJobProcessor creates a job processor. jobQueue receives delayed retries;
// when nil, failed jobs are dead-lettered at once.
func NewJobProcessor(tasks TaskLookup, chat ChatRunner, jobQueue Enqueuer, log *zap.Logger) *JobProcessor {
	return &JobProcessor{
		tasks:  tasks,
		chat:   chat,
		queue:  jobQueue,
		logger: logger.OrNop(log),
	}
}

// ProcessJob runs the job and settles its message: ack on success or after a
// retry was scheduled, nack without requeue once retries are exhausted.
func (p *JobProcessor) ProcessJob(ctx context.Context, msg queue.MessageInterface) error {
	job := msg.GetJob()
	if err := p.run(ctx, job); err != nil {
		return p.handleJobError(ctx, msg, job, err)
	}
	if err := msg.Ack(); err != nil {
		return fmt.Errorf("failed to ack job: %w", err)
	}
	return nil
}

func (p *JobProcessor) run(ctx context.Context, job *queue.Job) error {
	task, err := p.tasks.GetByID(ctx, job.TaskID, job.UserID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("%w: task %s not found for user", errPermanent, job.TaskID)
		}
		return fmt.Errorf("failed to load task: %w", err)
	}

	switch job.Type {
	case queue.JobTypeGenerateContext:
		res, err := p.chat.Regenerate(ctx, task)
		if err != nil {
			return err
		}
		// a degraded context is served but not stored; retry for a real one
		if res.State == ai.StateDegraded && res.Err != nil {
			return res.Err
		}
		p.logger.Info("task_context_generated",
			zap.String("job_id", job.ID.String()),
			zap.String("task_id", task.ID.String()),
			zap.String("state", string(res.State)),
		)
		return nil

	case queue.JobTypeProcessChat:
		prompt := job.Prompt()
		if prompt == "" {
			return fmt.Errorf("%w: chat job without prompt", errPermanent)
		}
		result, err := p.chat.Chat(ctx, task, prompt)
		if err != nil {
			return err
		}
		p.logger.Info("chat_job_completed",
			zap.String("job_id", job.ID.String()),
			zap.String("task_id", task.ID.String()),
			zap.String("exchange_id", result.Exchange.ID.String()),
		)
		return nil

	default:
		return fmt.Errorf("%w: unknown job type %s", errPermanent, job.Type)
	}
}

// handleJobError schedules a delayed retry or dead-letters the job
func (p *JobProcessor) handleJobError(ctx context.Context, msg queue.MessageInterface, job *queue.Job, err error) error {
	fields := []zap.Field{
		zap.String("job_id", job.ID.String()),
		zap.String("job_type", string(job.Type)),
		zap.Int("retry_count", job.RetryCount),
		zap.Int("max_retries", job.MaxRetries),
		zap.String("error", logger.SanitizeError(err)),
	}

	if !errors.Is(err, errPermanent) && job.CanRetry() && p.queue != nil {
		delay := ai.GetRetryDelay(err, job.RetryCount)
		enqueueErr := p.queue.Enqueue(ctx, job.Retry(delay))
		if enqueueErr == nil {
			if ackErr := msg.Ack(); ackErr != nil {
				p.logger.Warn("job_ack_failed", zap.String("job_id", job.ID.String()), zap.Error(ackErr))
			}
			p.logger.Warn("job_retry_scheduled", append(fields,
				zap.Duration("delay", delay),
				zap.Bool("rate_limited", ai.IsRateLimitError(err)),
				zap.Bool("quota_exhausted", ai.IsQuotaError(err)),
			)...)
			return fmt.Errorf("job failed (will retry): %w", err)
		}
		p.logger.Error("job_retry_enqueue_failed", append(fields, zap.NamedError("enqueue_error", enqueueErr))...)
	}

	p.logger.Error("job_dead_lettered", fields...)
	if nackErr := msg.Nack(false); nackErr != nil {
		p.logger.Warn("job_nack_failed", zap.String("job_id", job.ID.String()), zap.Error(nackErr))
	}
	return fmt.Errorf("job failed (dead-lettered): %w", err)
}

// Run processes messages until msgs is closed or ctx is cancelled
func (p *JobProcessor) Run(ctx context.Context, msgs <-chan *queue.Message, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			p.logger.Error("queue_error", zap.Error(err))
		case msg, ok := <-msgs:
			if !ok {
				p.logger.Info("message_channel_closed")
				return
			}
			if err := p.ProcessJob(ctx, msg); err != nil {
				p.logger.Debug("job_failed", zap.String("job_id", msg.GetJob().ID.String()), zap.Error(err))
			}
		}
	}
}
