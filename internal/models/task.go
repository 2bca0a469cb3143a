package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NoContext is stored on tasks whose context has never been generated.
const NoContext = "No context"

// TaskStatus represents the lifecycle state of a task
type TaskStatus string

const (
	TaskStatusNew        TaskStatus = "new"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// IsValid reports whether s is a known status.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusNew, TaskStatusInProgress, TaskStatusCompleted, TaskStatusCancelled:
		return true
	}
	return false
}

// Task is a unit of work owned by a user. Context is the AI generated or
// user edited summary used as the system preamble for answers about the task.
type Task struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	Name        string     `json:"task_name"`
	Description string     `json:"task_description"`
	Status      TaskStatus `json:"task_status"`
	Context     string     `json:"task_context"`
	Private     bool       `json:"private"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// HasContext reports whether value is a usable context rather than empty or
// the "no context" marker. The comparison ignores case and surrounding space.
func HasContext(value string) bool {
	v := strings.TrimSpace(value)
	return v != "" && !strings.EqualFold(v, NoContext)
}
