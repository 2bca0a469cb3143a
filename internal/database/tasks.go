package database

import (
	"context"
	"fmt"
	"time"

	"github.com/benvon/ai-task/internal/models"
	"github.com/google/uuid"
)

// TaskRepository handles task database operations. Every owner-facing query is
// scoped by user id so a foreign task reads as not found.
type TaskRepository struct {
	db *DB
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *DB) *TaskRepository {
	return &TaskRepository{db: db}
}

const taskColumns = `id, user_id, task_name, task_description, task_status, task_context, private, created_at, updated_at`

// Create inserts a new task. Missing status and context get their defaults.
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.Status == "" {
		task.Status = models.TaskStatusNew
	}
	if task.Context == "" {
		task.Context = models.NoContext
	}

	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		task.ID,
		task.UserID,
		task.Name,
		task.Description,
		task.Status,
		task.Context,
		task.Private,
		time.Now(),
	).Scan(&task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		if nf := notFound(err, "user"); nf != nil {
			return nf
		}
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// GetByID retrieves a task owned by userID
func (r *TaskRepository) GetByID(ctx context.Context, id, userID uuid.UUID) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND user_id = $2`
	task, err := scanTask(r.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if nf := notFound(err, "task"); nf != nil {
			return nil, nf
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// GetPublic retrieves a non-private task of any user
func (r *TaskRepository) GetPublic(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND private = FALSE`
	task, err := scanTask(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if nf := notFound(err, "task"); nf != nil {
			return nil, nf
		}
		return nil, fmt.Errorf("failed to get public task: %w", err)
	}
	return task, nil
}

// ListByUser returns the user's tasks, newest first
func (r *TaskRepository) ListByUser(ctx context.Context, userID uuid.UUID, status *models.TaskStatus) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = $1`
	args := []any{userID}
	if status != nil {
		query += ` AND task_status = $2`
		args = append(args, string(*status))
	}
	query += ` ORDER BY created_at DESC`

	return r.list(ctx, query, args...)
}

// ListPublic returns a page of public tasks, newest first
func (r *TaskRepository) ListPublic(ctx context.Context, limit, offset int) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE private = FALSE ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	return r.list(ctx, query, limit, offset)
}

func (r *TaskRepository) list(ctx context.Context, query string, args ...any) ([]*models.Task, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tasks := []*models.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

// UpdateContext stores a new context string for the task
func (r *TaskRepository) UpdateContext(ctx context.Context, id, userID uuid.UUID, value string) error {
	return r.exec(ctx, "context",
		`UPDATE tasks SET task_context = $3, updated_at = now() WHERE id = $1 AND user_id = $2`,
		id, userID, value)
}

// UpdateStatus changes the task status
func (r *TaskRepository) UpdateStatus(ctx context.Context, id, userID uuid.UUID, status models.TaskStatus) error {
	return r.exec(ctx, "status",
		`UPDATE tasks SET task_status = $3, updated_at = now() WHERE id = $1 AND user_id = $2`,
		id, userID, string(status))
}

// UpdatePrivacy toggles whether the task is visible in the public listing
func (r *TaskRepository) UpdatePrivacy(ctx context.Context, id, userID uuid.UUID, private bool) error {
	return r.exec(ctx, "privacy",
		`UPDATE tasks SET private = $3, updated_at = now() WHERE id = $1 AND user_id = $2`,
		id, userID, private)
}

// UpdateDetails changes the task name and description
func (r *TaskRepository) UpdateDetails(ctx context.Context, id, userID uuid.UUID, name, description string) error {
	return r.exec(ctx, "details",
		`UPDATE tasks SET task_name = $3, task_description = $4, updated_at = now() WHERE id = $1 AND user_id = $2`,
		id, userID, name, description)
}

// Delete removes the task and, by cascade, its exchanges
func (r *TaskRepository) Delete(ctx context.Context, id, userID uuid.UUID) error {
	return r.exec(ctx, "delete", `DELETE FROM tasks WHERE id = $1 AND user_id = $2`, id, userID)
}

func (r *TaskRepository) exec(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update task %s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("task %w", ErrNotFound)
	}
	return nil
}

func scanTask(row rowScanner) (*models.Task, error) {
	task := &models.Task{}
	err := row.Scan(
		&task.ID,
		&task.UserID,
		&task.Name,
		&task.Description,
		&task.Status,
		&task.Context,
		&task.Private,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return task, nil
}
