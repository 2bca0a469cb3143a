package models

import (
	"time"

	"github.com/google/uuid"
)

// Exchange is one recorded prompt/response turn for a task and user.
type Exchange struct {
	ID        uuid.UUID `json:"id"`
	TaskID    uuid.UUID `json:"task_id"`
	UserID    uuid.UUID `json:"user_id"`
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"created_at"`
}
