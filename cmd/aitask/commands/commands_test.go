package commands

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/benvon/ai-task/internal/database"
	"github.com/benvon/ai-task/internal/models"
	"github.com/benvon/ai-task/internal/services/ai"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type fakeTasks struct {
	task *models.Task
}

func (f *fakeTasks) GetByID(_ context.Context, id, userID uuid.UUID) (*models.Task, error) {
	if f.task == nil || f.task.ID != id || f.task.UserID != userID {
		return nil, database.ErrNotFound
	}
	return f.task, nil
}

type fakeResolver struct {
	refreshed   int
	regenerated int
	res         ai.Resolution
}

func (f *fakeResolver) RefreshContext(context.Context, *models.Task) (ai.Resolution, error) {
	f.refreshed++
	return f.res, nil
}

func (f *fakeResolver) Regenerate(context.Context, *models.Task) (ai.Resolution, error) {
	f.regenerated++
	return f.res, nil
}

type fakeInvalidator struct {
	taskID, userID uuid.UUID
}

func (f *fakeInvalidator) Invalidate(_ context.Context, taskID, userID uuid.UUID) {
	f.taskID, f.userID = taskID, userID
}

func TestRootCmdFlagValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "missing task and user", args: []string{"cache", "invalidate"}, wantErr: "required flag"},
		{name: "invalid task id", args: []string{"context", "show", "--task", "nope", "--user", uuid.NewString()}, wantErr: "invalid --task"},
		{name: "invalid user id", args: []string{"context", "regenerate", "--task", uuid.NewString(), "--user", "nope"}, wantErr: "invalid --user"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cmd := NewRootCmd()
			cmd.SetArgs(tt.args)
			cmd.SetOut(io.Discard)
			cmd.SetErr(io.Discard)

			err := cmd.Execute()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Execute(%v) error = %v, want containing %q", tt.args, err, tt.wantErr)
			}
		})
	}
}

func TestRootCmdTree(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()
	for _, path := range [][]string{
		{"migrate", "up"},
		{"migrate", "status"},
		{"cache", "invalidate"},
		{"context", "show"},
		{"context", "regenerate"},
		{"dlq", "purge"},
	} {
		found, _, err := cmd.Find(path)
		if err != nil || found.Name() != path[len(path)-1] {
			t.Errorf("command %v not found: %v", path, err)
		}
	}
}

func TestInvalidate(t *testing.T) {
	t.Parallel()

	taskID, userID := uuid.New(), uuid.New()
	c := &fakeInvalidator{}
	var out bytes.Buffer

	if err := invalidate(context.Background(), &out, c, taskID, userID); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if c.taskID != taskID || c.userID != userID {
		t.Errorf("Invalidate called with %s/%s, want %s/%s", c.taskID, c.userID, taskID, userID)
	}
	if !strings.Contains(out.String(), "task_context:"+taskID.String()+":"+userID.String()) {
		t.Errorf("output %q does not name the context key", out.String())
	}
}

func TestResolveContext(t *testing.T) {
	t.Parallel()

	task := &models.Task{ID: uuid.New(), UserID: uuid.New(), Name: "Write report"}

	tests := []struct {
		name          string
		userID        uuid.UUID
		regenerate    bool
		res           ai.Resolution
		wantErr       string
		wantRefreshed int
		wantRegen     int
		wantOutput    string
	}{
		{
			name:          "show",
			userID:        task.UserID,
			res:           ai.Resolution{Context: "Draft the outline.", State: ai.StateCacheHit},
			wantRefreshed: 1,
			wantOutput:    "State: cache_hit\n\nDraft the outline.\n",
		},
		{
			name:       "regenerate",
			userID:     task.UserID,
			regenerate: true,
			res:        ai.Resolution{Context: "Objectives: ship it.", State: ai.StateCreate},
			wantRegen:  1,
			wantOutput: "State: create\n",
		},
		{
			name:       "degraded regeneration",
			userID:     task.UserID,
			regenerate: true,
			res:        ai.Resolution{Context: "fallback", State: ai.StateDegraded, Err: errors.New("boom")},
			wantErr:    "context generation degraded: boom",
			wantRegen:  1,
			wantOutput: "fallback",
		},
		{
			name:    "foreign task",
			userID:  uuid.New(),
			wantErr: "failed to load task",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			chat := &fakeResolver{res: tt.res}
			var out bytes.Buffer

			err := resolveContext(context.Background(), &out, &fakeTasks{task: task}, chat, task.ID, tt.userID, tt.regenerate)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("error = %v, want containing %q", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if chat.refreshed != tt.wantRefreshed || chat.regenerated != tt.wantRegen {
				t.Errorf("refreshed=%d regenerated=%d, want %d/%d", chat.refreshed, chat.regenerated, tt.wantRefreshed, tt.wantRegen)
			}
			if !strings.Contains(out.String(), tt.wantOutput) {
				t.Errorf("output %q does not contain %q", out.String(), tt.wantOutput)
			}
		})
	}
}

type fakePurger struct {
	retention time.Duration
	purged    int
}

func (f *fakePurger) PurgeOlderThan(_ context.Context, retention time.Duration) (int, error) {
	f.retention = retention
	return f.purged, nil
}

func TestPurgeDLQ(t *testing.T) {
	t.Parallel()

	purger := &fakePurger{purged: 4}
	var out bytes.Buffer

	if err := purgeDLQ(context.Background(), &out, purger, 72*time.Hour, zap.NewNop()); err != nil {
		t.Fatalf("purgeDLQ: %v", err)
	}
	if purger.retention != 72*time.Hour {
		t.Errorf("retention = %s, want 72h", purger.retention)
	}
	if got := out.String(); got != "Purged 4 dead-lettered jobs older than 72h0m0s\n" {
		t.Errorf("output = %q", got)
	}

	if err := purgeDLQ(context.Background(), io.Discard, purger, 0, zap.NewNop()); err == nil {
		t.Error("expected error for zero retention")
	}
}
