package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/benvon/ai-task/internal/database"
	"github.com/benvon/ai-task/internal/logger"
	"github.com/benvon/ai-task/internal/models"
	"github.com/benvon/ai-task/internal/validation"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	// DefaultPageSize is the default page size for public listings
	DefaultPageSize = 50
	// MaxPageSize is the maximum page size for public listings
	MaxPageSize = 100
)

// ContextInvalidator drops cached state derived from a task
type ContextInvalidator interface {
	Invalidate(ctx context.Context, taskID, userID uuid.UUID)
}

// TaskHandler handles task CRUD requests
type TaskHandler struct {
	tasks  database.TaskStore
	cache  ContextInvalidator
	logger *zap.Logger
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(tasks database.TaskStore, cache ContextInvalidator, log *zap.Logger) *TaskHandler {
	return &TaskHandler{tasks: tasks, cache: cache, logger: logger.OrNop(log)}
}

// RegisterRoutes registers task routes on a router already carrying the /tasks prefix
func (h *TaskHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListTasks).Methods("GET")
	r.HandleFunc("", h.CreateTask).Methods("POST")
	r.HandleFunc("/{id}", h.GetTask).Methods("GET")
	r.HandleFunc("/{id}", h.UpdateTask).Methods("PATCH")
	r.HandleFunc("/{id}", h.DeleteTask).Methods("DELETE")
	r.HandleFunc("/{id}/status", h.UpdateStatus).Methods("PATCH")
	r.HandleFunc("/{id}/privacy", h.UpdatePrivacy).Methods("PATCH")
}

// RegisterPublicRoutes registers unauthenticated routes on a router carrying the /public/tasks prefix
func (h *TaskHandler) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListPublicTasks).Methods("GET")
	r.HandleFunc("/{id}", h.GetPublicTask).Methods("GET")
}

// CreateTaskRequest represents a create task request
type CreateTaskRequest struct {
	Name        string `json:"task_name" validate:"required,notblank,max=255"`
	Description string `json:"task_description" validate:"max=10000"`
	Private     bool   `json:"private"`
}

// UpdateTaskRequest represents a task details update
type UpdateTaskRequest struct {
	Name        *string `json:"task_name,omitempty" validate:"omitempty,notblank,max=255"`
	Description *string `json:"task_description,omitempty" validate:"omitempty,max=10000"`
}

// UpdateStatusRequest represents a task status update
type UpdateStatusRequest struct {
	Status string `json:"task_status" validate:"required,task_status"`
}

// UpdatePrivacyRequest represents a task privacy update
type UpdatePrivacyRequest struct {
	Private *bool `json:"private" validate:"required"`
}

// ListTasks lists the authenticated user's tasks, optionally filtered by ?status=
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}

	var status *models.TaskStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		if err := validation.ValidateTaskStatus(raw); err != nil {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
		s := models.TaskStatus(raw)
		status = &s
	}

	tasks, err := h.tasks.ListByUser(r.Context(), user.ID, status)
	if err != nil {
		h.logger.Error("failed_to_list_tasks", zap.String("user_id", logger.SanitizeUserID(user.ID)), zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to list tasks")
		return
	}
	if tasks == nil {
		tasks = []*models.Task{}
	}
	respondJSON(w, http.StatusOK, tasks)
}

// CreateTask creates a task for the authenticated user
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}

	var req CreateTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	task := &models.Task{
		UserID:      user.ID,
		Name:        validation.SanitizeText(req.Name),
		Description: validation.SanitizeText(req.Description),
		Status:      models.TaskStatusNew,
		Context:     models.NoContext,
		Private:     req.Private,
	}
	if err := h.tasks.Create(r.Context(), task); err != nil {
		h.logger.Error("failed_to_create_task", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to create task")
		return
	}

	h.logger.Info("task_created",
		zap.String("task_id", task.ID.String()),
		zap.String("user_id", logger.SanitizeUserID(user.ID)),
	)
	respondJSON(w, http.StatusCreated, task)
}

// GetTask returns one of the authenticated user's tasks
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	task, err := h.tasks.GetByID(r.Context(), id, user.ID)
	if err != nil {
		respondStoreError(w, err, "get task")
		return
	}
	respondJSON(w, http.StatusOK, task)
}

// UpdateTask changes a task's name or description. The cached context is
// dropped since it was derived from the old details.
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req UpdateTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	task, err := h.tasks.GetByID(ctx, id, user.ID)
	if err != nil {
		respondStoreError(w, err, "get task")
		return
	}
	if req.Name != nil {
		task.Name = validation.SanitizeText(*req.Name)
	}
	if req.Description != nil {
		task.Description = validation.SanitizeText(*req.Description)
	}

	if err := h.tasks.UpdateDetails(ctx, id, user.ID, task.Name, task.Description); err != nil {
		respondStoreError(w, err, "update task")
		return
	}
	h.invalidate(ctx, id, user.ID)
	respondJSON(w, http.StatusOK, task)
}

// UpdateStatus changes a task's status
func (h *TaskHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	status := models.TaskStatus(req.Status)
	if err := h.tasks.UpdateStatus(r.Context(), id, user.ID, status); err != nil {
		respondStoreError(w, err, "update task status")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"id": id, "task_status": status})
}

// UpdatePrivacy toggles whether a task appears in public listings
func (h *TaskHandler) UpdatePrivacy(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req UpdatePrivacyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.tasks.UpdatePrivacy(r.Context(), id, user.ID, *req.Private); err != nil {
		respondStoreError(w, err, "update task privacy")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"id": id, "private": *req.Private})
}

// DeleteTask removes a task and its exchanges
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	if err := h.tasks.Delete(ctx, id, user.ID); err != nil {
		respondStoreError(w, err, "delete task")
		return
	}
	h.invalidate(ctx, id, user.ID)

	h.logger.Info("task_deleted", zap.String("task_id", id.String()))
	w.WriteHeader(http.StatusNoContent)
}

// ListPublicTasks lists non-private tasks of all users
func (h *TaskHandler) ListPublicTasks(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", DefaultPageSize)
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	tasks, err := h.tasks.ListPublic(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("failed_to_list_public_tasks", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to list tasks")
		return
	}
	if tasks == nil {
		tasks = []*models.Task{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"tasks":  tasks,
		"limit":  limit,
		"offset": offset,
	})
}

// GetPublicTask returns a non-private task of any user
func (h *TaskHandler) GetPublicTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	task, err := h.tasks.GetPublic(r.Context(), id)
	if err != nil {
		respondStoreError(w, err, "get task")
		return
	}
	respondJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) invalidate(ctx context.Context, taskID, userID uuid.UUID) {
	if h.cache != nil {
		h.cache.Invalidate(ctx, taskID, userID)
	}
}

func queryInt(r *http.Request, key string, defaultValue int) int {
	if raw := r.URL.Query().Get(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return defaultValue
}
