package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/benvon/ai-task/internal/logger"
	"github.com/benvon/ai-task/internal/models"
	"github.com/benvon/ai-task/internal/queue"
	"github.com/benvon/ai-task/internal/services/ai"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// TaskLookup loads a task owned by a user
type TaskLookup interface {
	GetByID(ctx context.Context, id, userID uuid.UUID) (*models.Task, error)
}

// ExchangeLister lists a task's exchange history
type ExchangeLister interface {
	ListExchanges(ctx context.Context, taskID, userID uuid.UUID) ([]models.Exchange, error)
}

// ChatService is the AI surface the handlers drive
type ChatService interface {
	Chat(ctx context.Context, task *models.Task, prompt string) (*ai.ChatResult, error)
	ChatStream(ctx context.Context, task *models.Task, prompt string, onChunk func(chunk, full string) error) (*ai.ChatResult, error)
	RefreshContext(ctx context.Context, task *models.Task) (ai.Resolution, error)
	EditContext(ctx context.Context, task *models.Task, value string) error
	Regenerate(ctx context.Context, task *models.Task) (ai.Resolution, error)
}

// JobEnqueuer publishes background jobs
type JobEnqueuer interface {
	Enqueue(ctx context.Context, job *queue.Job) error
}

// AIHandler serves exchanges and task contexts
type AIHandler struct {
	tasks     TaskLookup
	exchanges ExchangeLister
	chat      ChatService
	jobs      JobEnqueuer
	logger    *zap.Logger
}

// AIHandlerOption configures an AIHandler
type AIHandlerOption func(*AIHandler)

// WithJobQueue enables asynchronous chat and context regeneration
func WithJobQueue(jobs JobEnqueuer) AIHandlerOption {
	return func(h *AIHandler) {
		h.jobs = jobs
	}
}

// NewAIHandler creates a new AI handler
func NewAIHandler(tasks TaskLookup, exchanges ExchangeLister, chat ChatService, log *zap.Logger, opts ...AIHandlerOption) *AIHandler {
	h := &AIHandler{
		tasks:     tasks,
		exchanges: exchanges,
		chat:      chat,
		logger:    logger.OrNop(log),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers routes on a router already carrying the /tasks prefix
func (h *AIHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/{id}/exchanges", h.ListExchanges).Methods("GET")
	r.HandleFunc("/{id}/exchanges", h.CreateExchange).Methods("POST")
	r.HandleFunc("/{id}/context", h.GetContext).Methods("GET")
	r.HandleFunc("/{id}/context", h.UpdateContext).Methods("PUT")
	r.HandleFunc("/{id}/context/regenerate", h.RegenerateContext).Methods("POST")
}

// ChatRequest represents a prompt for a task
type ChatRequest struct {
	Prompt string `json:"prompt" validate:"required,notblank,max=10000"`
}

// UpdateContextRequest represents a manual context edit
type UpdateContextRequest struct {
	Context string `json:"task_context" validate:"max=20000"`
}

// ContextResponse is the body of the context endpoints
type ContextResponse struct {
	TaskID  uuid.UUID       `json:"task_id"`
	Context string          `json:"task_context"`
	State   ai.ContextState `json:"state,omitempty"`
}

// JobAccepted is returned when work was queued
type JobAccepted struct {
	JobID   uuid.UUID     `json:"job_id"`
	JobType queue.JobType `json:"job_type"`
	TaskID  uuid.UUID     `json:"task_id"`
}

// loadTask resolves the {id} task for the authenticated user, writing the error response itself
func (h *AIHandler) loadTask(w http.ResponseWriter, r *http.Request) *models.Task {
	user := currentUser(w, r)
	if user == nil {
		return nil
	}
	id, ok := pathID(w, r)
	if !ok {
		return nil
	}
	task, err := h.tasks.GetByID(r.Context(), id, user.ID)
	if err != nil {
		respondStoreError(w, err, "get task")
		return nil
	}
	return task
}

// ListExchanges returns the task's exchanges, oldest first
func (h *AIHandler) ListExchanges(w http.ResponseWriter, r *http.Request) {
	task := h.loadTask(w, r)
	if task == nil {
		return
	}

	exchanges, err := h.exchanges.ListExchanges(r.Context(), task.ID, task.UserID)
	if err != nil {
		h.logger.Error("failed_to_list_exchanges", zap.String("task_id", task.ID.String()), zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to list exchanges")
		return
	}
	if exchanges == nil {
		exchanges = []models.Exchange{}
	}
	respondJSON(w, http.StatusOK, exchanges)
}

// CreateExchange answers a prompt about the task. With ?async=true the
// prompt is queued and 202 is returned.
func (h *AIHandler) CreateExchange(w http.ResponseWriter, r *http.Request) {
	task := h.loadTask(w, r)
	if task == nil {
		return
	}

	var req ChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if r.URL.Query().Get("async") == "true" {
		h.enqueue(w, r, queue.NewChatJob(task.UserID, task.ID, req.Prompt))
		return
	}

	result, err := h.chat.Chat(r.Context(), task, req.Prompt)
	if err != nil {
		h.respondAIError(w, task, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

// GetContext resolves the task context, generating it when needed
func (h *AIHandler) GetContext(w http.ResponseWriter, r *http.Request) {
	task := h.loadTask(w, r)
	if task == nil {
		return
	}

	res, err := h.chat.RefreshContext(r.Context(), task)
	if err != nil {
		h.logger.Warn("task_context_store_failed",
			zap.String("task_id", task.ID.String()),
			zap.String("error", logger.SanitizeError(err)),
		)
	}
	respondJSON(w, http.StatusOK, ContextResponse{TaskID: task.ID, Context: res.Context, State: res.State})
}

// UpdateContext stores a user supplied context
func (h *AIHandler) UpdateContext(w http.ResponseWriter, r *http.Request) {
	task := h.loadTask(w, r)
	if task == nil {
		return
	}

	var req UpdateContextRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.chat.EditContext(r.Context(), task, req.Context); err != nil {
		respondStoreError(w, err, "update task context")
		return
	}
	respondJSON(w, http.StatusOK, ContextResponse{TaskID: task.ID, Context: task.Context})
}

// RegenerateContext discards the cached context. With a job queue the
// regeneration is queued; otherwise it runs inline.
func (h *AIHandler) RegenerateContext(w http.ResponseWriter, r *http.Request) {
	task := h.loadTask(w, r)
	if task == nil {
		return
	}

	if h.jobs != nil {
		h.enqueue(w, r, queue.NewJob(queue.JobTypeGenerateContext, task.UserID, task.ID))
		return
	}

	res, err := h.chat.Regenerate(r.Context(), task)
	if err != nil {
		respondStoreError(w, err, "store task context")
		return
	}
	respondJSON(w, http.StatusOK, ContextResponse{TaskID: task.ID, Context: res.Context, State: res.State})
}

func (h *AIHandler) enqueue(w http.ResponseWriter, r *http.Request, job *queue.Job) {
	if h.jobs == nil {
		respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "Job queue is not configured")
		return
	}
	if err := h.jobs.Enqueue(r.Context(), job); err != nil {
		h.logger.Error("failed_to_enqueue_job",
			zap.String("job_type", string(job.Type)),
			zap.String("task_id", job.TaskID.String()),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "Failed to queue job")
		return
	}

	h.logger.Info("job_enqueued",
		zap.String("job_id", job.ID.String()),
		zap.String("job_type", string(job.Type)),
		zap.String("task_id", job.TaskID.String()),
	)
	respondJSON(w, http.StatusAccepted, JobAccepted{JobID: job.ID, JobType: job.Type, TaskID: job.TaskID})
}

// respondAIError maps provider failures to 429 or 502
func (h *AIHandler) respondAIError(w http.ResponseWriter, task *models.Task, err error) {
	h.logger.Error("chat_failed",
		zap.String("task_id", task.ID.String()),
		zap.String("error", logger.SanitizeError(err)),
	)
	if ai.IsRateLimitError(err) || ai.IsQuotaError(err) {
		respondJSONError(w, http.StatusTooManyRequests, "Too Many Requests", "AI provider is rate limited, try again later")
		return
	}
	var apiErr *ai.APIError
	if errors.As(err, &apiErr) || errors.Is(err, ai.ErrEmptyCompletion) {
		respondJSONError(w, http.StatusBadGateway, "Bad Gateway", "AI provider request failed")
		return
	}
	respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to answer prompt")
}
