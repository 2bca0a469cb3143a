package queue

import (
	"time"

	"github.com/google/uuid"
)

// JobType represents the type of job
type JobType string

const (
	// JobTypeGenerateContext resolves and stores a task's context
	JobTypeGenerateContext JobType = "generate_task_context"
	// JobTypeProcessChat answers a prompt about a task and records the exchange
	JobTypeProcessChat JobType = "process_chat"

	// DefaultMaxRetries is how often a failed job is retried before it is dead-lettered
	DefaultMaxRetries = 2

	metadataPrompt = "prompt"
)

// Job represents a job in the queue
type Job struct {
	ID         uuid.UUID      `json:"id"`
	Type       JobType        `json:"type"`
	UserID     uuid.UUID      `json:"user_id"`
	TaskID     uuid.UUID      `json:"task_id"`
	NotBefore  *time.Time     `json:"not_before,omitempty"` // Earliest time to process job (nil = immediate)
	NotAfter   *time.Time     `json:"not_after,omitempty"`  // Latest time to process job (nil = no expiration)
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	RetryCount int            `json:"retry_count"`
	MaxRetries int            `json:"max_retries"`
}

// NewJob creates a new job for a task
func NewJob(jobType JobType, userID, taskID uuid.UUID) *Job {
	return &Job{
		ID:         uuid.New(),
		Type:       jobType,
		UserID:     userID,
		TaskID:     taskID,
		Metadata:   make(map[string]any),
		CreatedAt:  time.Now(),
		MaxRetries: DefaultMaxRetries,
	}
}

// NewChatJob creates a process_chat job carrying prompt
func NewChatJob(userID, taskID uuid.UUID, prompt string) *Job {
	job := NewJob(JobTypeProcessChat, userID, taskID)
	job.Metadata[metadataPrompt] = prompt
	return job
}

// Prompt returns the prompt of a chat job
func (j *Job) Prompt() string {
	s, _ := j.Metadata[metadataPrompt].(string)
	return s
}

// ShouldProcess checks if the job should be processed now
func (j *Job) ShouldProcess() bool {
	now := time.Now()
	if j.NotBefore != nil && now.Before(*j.NotBefore) {
		return false
	}
	return !j.IsExpired()
}

// IsExpired checks if the job has expired
func (j *Job) IsExpired() bool {
	return j.NotAfter != nil && time.Now().After(*j.NotAfter)
}

// CanRetry checks if the job can be retried
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// Retry returns a copy scheduled delay from now with the retry count bumped.
func (j *Job) Retry(delay time.Duration) *Job {
	next := *j
	next.RetryCount++
	notBefore := time.Now().Add(delay)
	next.NotBefore = &notBefore
	return &next
}
