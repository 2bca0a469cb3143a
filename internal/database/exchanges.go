package database

import (
	"context"
	"fmt"
	"time"

	"github.com/benvon/ai-task/internal/models"
	"github.com/google/uuid"
)

// ExchangeRepository stores the append-only conversation history of tasks
type ExchangeRepository struct {
	db *DB
}

// NewExchangeRepository creates a new exchange repository
func NewExchangeRepository(db *DB) *ExchangeRepository {
	return &ExchangeRepository{db: db}
}

// Create appends an exchange. The insert only succeeds when the task exists
// and belongs to the exchange's user; otherwise ErrNotFound is returned.
func (r *ExchangeRepository) Create(ctx context.Context, exchange *models.Exchange) error {
	if exchange.ID == uuid.Nil {
		exchange.ID = uuid.New()
	}

	query := `
		INSERT INTO exchanges (id, task_id, user_id, prompt, response, created_at)
		SELECT $1::uuid, t.id, t.user_id, $4::text, $5::text, $6::timestamptz
		FROM tasks t
		WHERE t.id = $2 AND t.user_id = $3
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		exchange.ID,
		exchange.TaskID,
		exchange.UserID,
		exchange.Prompt,
		exchange.Response,
		time.Now(),
	).Scan(&exchange.CreatedAt)
	if err != nil {
		if nf := notFound(err, "task"); nf != nil {
			return nf
		}
		return fmt.Errorf("failed to create exchange: %w", err)
	}
	return nil
}

// ListExchanges returns the task's exchanges for userID in creation order
func (r *ExchangeRepository) ListExchanges(ctx context.Context, taskID, userID uuid.UUID) ([]models.Exchange, error) {
	query := `
		SELECT id, task_id, user_id, prompt, response, created_at
		FROM exchanges
		WHERE task_id = $1 AND user_id = $2
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, taskID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query exchanges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	exchanges := []models.Exchange{}
	for rows.Next() {
		var e models.Exchange
		if err := rows.Scan(&e.ID, &e.TaskID, &e.UserID, &e.Prompt, &e.Response, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan exchange: %w", err)
		}
		exchanges = append(exchanges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating exchanges: %w", err)
	}
	return exchanges, nil
}
