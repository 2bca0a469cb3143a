package database

import (
	"context"
	"time"

	"github.com/benvon/ai-task/internal/models"
	"github.com/google/uuid"
)

// UserStore defines the user operations used by the auth layer
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByGoogleID(ctx context.Context, googleID string) (*models.User, error)
	UpsertGoogleUser(ctx context.Context, profile models.GoogleProfile, accessToken, refreshToken string, expiresAt *time.Time) (*models.User, error)
}

// TaskStore defines the task operations used by handlers, workers and the chat service
type TaskStore interface {
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id, userID uuid.UUID) (*models.Task, error)
	GetPublic(ctx context.Context, id uuid.UUID) (*models.Task, error)
	ListByUser(ctx context.Context, userID uuid.UUID, status *models.TaskStatus) ([]*models.Task, error)
	ListPublic(ctx context.Context, limit, offset int) ([]*models.Task, error)
	UpdateContext(ctx context.Context, id, userID uuid.UUID, value string) error
	UpdateStatus(ctx context.Context, id, userID uuid.UUID, status models.TaskStatus) error
	UpdatePrivacy(ctx context.Context, id, userID uuid.UUID, private bool) error
	UpdateDetails(ctx context.Context, id, userID uuid.UUID, name, description string) error
	Delete(ctx context.Context, id, userID uuid.UUID) error
}

// ExchangeStore defines the exchange history operations
type ExchangeStore interface {
	Create(ctx context.Context, exchange *models.Exchange) error
	ListExchanges(ctx context.Context, taskID, userID uuid.UUID) ([]models.Exchange, error)
}

// Ensure concrete types implement the interfaces
var (
	_ UserStore     = (*UserRepository)(nil)
	_ TaskStore     = (*TaskRepository)(nil)
	_ ExchangeStore = (*ExchangeRepository)(nil)
)
