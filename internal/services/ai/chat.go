package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/benvon/ai-task/internal/logger"
	"github.com/benvon/ai-task/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TaskContextWriter persists a task's context.
type TaskContextWriter interface {
	UpdateContext(ctx context.Context, id, userID uuid.UUID, value string) error
}

// ExchangeWriter appends exchanges.
type ExchangeWriter interface {
	Create(ctx context.Context, exchange *models.Exchange) error
}

// ChatResult is a stored exchange together with the context it was answered with
type ChatResult struct {
	Exchange   models.Exchange `json:"exchange"`
	Resolution Resolution      `json:"context"`
}

// ChatService answers prompts about a task and records them as exchanges.
// The caller has already verified that the task belongs to its user.
type ChatService struct {
	generator *ContextGenerator
	tasks     TaskContextWriter
	exchanges ExchangeWriter
	logger    *zap.Logger
}

// NewChatService creates a new chat service
func NewChatService(generator *ContextGenerator, tasks TaskContextWriter, exchanges ExchangeWriter, log *zap.Logger) *ChatService {
	return &ChatService{
		generator: generator,
		tasks:     tasks,
		exchanges: exchanges,
		logger:    logger.OrNop(log),
	}
}

// Generator returns the underlying context generator
func (s *ChatService) Generator() *ContextGenerator {
	return s.generator
}

// RefreshContext resolves the task context and stores it on the task when a
// new one was generated. Degraded and cached values are never written back.
// task.Context is updated in place on a successful write.
func (s *ChatService) RefreshContext(ctx context.Context, task *models.Task) (Resolution, error) {
	res := s.generator.Resolve(ctx, RequestForTask(task))
	if !res.State.Generated() || res.Context == task.Context {
		return res, nil
	}
	if err := s.tasks.UpdateContext(ctx, task.ID, task.UserID, res.Context); err != nil {
		return res, fmt.Errorf("failed to store task context: %w", err)
	}
	task.Context = res.Context
	return res, nil
}

// EditContext replaces the stored context with a user supplied value.
func (s *ChatService) EditContext(ctx context.Context, task *models.Task, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		value = models.NoContext
	}
	if err := s.tasks.UpdateContext(ctx, task.ID, task.UserID, value); err != nil {
		return fmt.Errorf("failed to store task context: %w", err)
	}
	task.Context = value
	s.generator.Invalidate(ctx, task.ID, task.UserID)
	return nil
}

// Regenerate discards the cached context and resolves again.
func (s *ChatService) Regenerate(ctx context.Context, task *models.Task) (Resolution, error) {
	s.generator.Invalidate(ctx, task.ID, task.UserID)
	return s.RefreshContext(ctx, task)
}

// Chat answers prompt with the task context and records the exchange.
func (s *ChatService) Chat(ctx context.Context, task *models.Task, prompt string) (*ChatResult, error) {
	res := s.context(ctx, task)

	answer, err := s.generator.Answer(ctx, prompt, res.Context)
	if err != nil {
		return nil, err
	}
	return s.record(ctx, task, prompt, answer, res)
}

// ChatStream is Chat with the answer delivered incrementally. onChunk gets
// each fragment and the text so far; an error from it aborts the chat and
// nothing is recorded.
func (s *ChatService) ChatStream(ctx context.Context, task *models.Task, prompt string, onChunk func(chunk, full string) error) (*ChatResult, error) {
	res := s.context(ctx, task)

	var full strings.Builder
	for fragment, err := range s.generator.AnswerStream(ctx, prompt, res.Context) {
		if err != nil {
			return nil, err
		}
		full.WriteString(fragment)
		if onChunk != nil {
			if err := onChunk(fragment, full.String()); err != nil {
				return nil, fmt.Errorf("failed to deliver chunk: %w", err)
			}
		}
	}
	return s.record(ctx, task, prompt, full.String(), res)
}

func (s *ChatService) context(ctx context.Context, task *models.Task) Resolution {
	res, err := s.RefreshContext(ctx, task)
	if err != nil {
		s.logger.Warn("task_context_store_failed",
			zap.String("task_id", task.ID.String()),
			zap.String("error", logger.SanitizeError(err)),
		)
	}
	return res
}

func (s *ChatService) record(ctx context.Context, task *models.Task, prompt, answer string, res Resolution) (*ChatResult, error) {
	exchange := &models.Exchange{
		TaskID:   task.ID,
		UserID:   task.UserID,
		Prompt:   prompt,
		Response: answer,
	}
	if err := s.exchanges.Create(ctx, exchange); err != nil {
		return nil, fmt.Errorf("failed to record exchange: %w", err)
	}
	s.generator.Invalidate(ctx, task.ID, task.UserID)

	s.logger.Info("chat_exchange_recorded",
		zap.String("task_id", task.ID.String()),
		zap.String("user_id", logger.SanitizeUserID(task.UserID)),
		zap.String("context_state", string(res.State)),
		zap.Int("response_length", len(answer)),
	)
	return &ChatResult{Exchange: *exchange, Resolution: res}, nil
}
