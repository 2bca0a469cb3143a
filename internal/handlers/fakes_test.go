package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/benvon/ai-task/internal/database"
	"github.com/benvon/ai-task/internal/models"
	"github.com/benvon/ai-task/internal/queue"
	"github.com/benvon/ai-task/internal/request"
	"github.com/benvon/ai-task/internal/services/ai"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// fakeTaskStore is an in-memory database.TaskStore
type fakeTaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*models.Task
	err   error
}

func newFakeTaskStore(tasks ...*models.Task) *fakeTaskStore {
	s := &fakeTaskStore{tasks: make(map[uuid.UUID]*models.Task)}
	for _, t := range tasks {
		s.tasks[t.ID] = t
	}
	return s
}

func (s *fakeTaskStore) owned(id, userID uuid.UUID) (*models.Task, error) {
	if s.err != nil {
		return nil, s.err
	}
	t, ok := s.tasks[id]
	if !ok || t.UserID != userID {
		return nil, database.ErrNotFound
	}
	return t, nil
}

func (s *fakeTaskStore) Create(_ context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	task.ID = uuid.New()
	task.CreatedAt = time.Now()
	task.UpdatedAt = task.CreatedAt
	s.tasks[task.ID] = task
	return nil
}

func (s *fakeTaskStore) GetByID(_ context.Context, id, userID uuid.UUID) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.owned(id, userID)
	if err != nil {
		return nil, err
	}
	cp := *t
	return &cp, nil
}

func (s *fakeTaskStore) GetPublic(_ context.Context, id uuid.UUID) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.Private {
		return nil, database.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *fakeTaskStore) ListByUser(_ context.Context, userID uuid.UUID, status *models.TaskStatus) ([]*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []*models.Task
	for _, t := range s.tasks {
		if t.UserID == userID && (status == nil || t.Status == *status) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeTaskStore) ListPublic(_ context.Context, limit, offset int) ([]*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Task
	for _, t := range s.tasks {
		if !t.Private {
			out = append(out, t)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeTaskStore) update(id, userID uuid.UUID, fn func(*models.Task)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.owned(id, userID)
	if err != nil {
		return err
	}
	fn(t)
	return nil
}

func (s *fakeTaskStore) UpdateContext(_ context.Context, id, userID uuid.UUID, value string) error {
	return s.update(id, userID, func(t *models.Task) { t.Context = value })
}

func (s *fakeTaskStore) UpdateStatus(_ context.Context, id, userID uuid.UUID, status models.TaskStatus) error {
	return s.update(id, userID, func(t *models.Task) { t.Status = status })
}

func (s *fakeTaskStore) UpdatePrivacy(_ context.Context, id, userID uuid.UUID, private bool) error {
	return s.update(id, userID, func(t *models.Task) { t.Private = private })
}

func (s *fakeTaskStore) UpdateDetails(_ context.Context, id, userID uuid.UUID, name, description string) error {
	return s.update(id, userID, func(t *models.Task) {
		t.Name = name
		t.Description = description
	})
}

func (s *fakeTaskStore) Delete(_ context.Context, id, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.owned(id, userID); err != nil {
		return err
	}
	delete(s.tasks, id)
	return nil
}

func (s *fakeTaskStore) get(id uuid.UUID) *models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks[id]
}

var _ database.TaskStore = (*fakeTaskStore)(nil)

type invalidation struct {
	taskID, userID uuid.UUID
}

type fakeInvalidator struct {
	mu    sync.Mutex
	calls []invalidation
}

func (f *fakeInvalidator) Invalidate(_ context.Context, taskID, userID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, invalidation{taskID, userID})
}

type fakeExchanges struct {
	exchanges []models.Exchange
	err       error
}

func (f *fakeExchanges) ListExchanges(_ context.Context, taskID, _ uuid.UUID) ([]models.Exchange, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Exchange
	for _, e := range f.exchanges {
		if e.TaskID == taskID {
			out = append(out, e)
		}
	}
	return out, nil
}

// fakeChat implements ChatService with overridable function fields
type fakeChat struct {
	chat       func(task *models.Task, prompt string) (*ai.ChatResult, error)
	chunks     []string
	streamErr  error
	resolution ai.Resolution
	refreshErr error
	editErr    error
	edited     []string
	regens     int
}

func (f *fakeChat) Chat(_ context.Context, task *models.Task, prompt string) (*ai.ChatResult, error) {
	if f.chat != nil {
		return f.chat(task, prompt)
	}
	return &ai.ChatResult{
		Exchange:   models.Exchange{ID: uuid.New(), TaskID: task.ID, UserID: task.UserID, Prompt: prompt, Response: "answer"},
		Resolution: f.resolution,
	}, nil
}

func (f *fakeChat) ChatStream(_ context.Context, task *models.Task, prompt string, onChunk func(chunk, full string) error) (*ai.ChatResult, error) {
	var full string
	for _, c := range f.chunks {
		full += c
		if err := onChunk(c, full); err != nil {
			return nil, err
		}
	}
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	return &ai.ChatResult{
		Exchange:   models.Exchange{ID: uuid.New(), TaskID: task.ID, UserID: task.UserID, Prompt: prompt, Response: full},
		Resolution: f.resolution,
	}, nil
}

func (f *fakeChat) RefreshContext(_ context.Context, task *models.Task) (ai.Resolution, error) {
	return f.resolution, f.refreshErr
}

func (f *fakeChat) EditContext(_ context.Context, task *models.Task, value string) error {
	if f.editErr != nil {
		return f.editErr
	}
	f.edited = append(f.edited, value)
	task.Context = value
	return nil
}

func (f *fakeChat) Regenerate(_ context.Context, task *models.Task) (ai.Resolution, error) {
	f.regens++
	return f.resolution, f.refreshErr
}

type fakeEnqueuer struct {
	mu   sync.Mutex
	jobs []*queue.Job
	err  error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, job *queue.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func testUser() *models.User {
	return &models.User{ID: uuid.New(), GoogleID: "g-123", Email: "ada@example.com"}
}

func testTaskFor(user *models.User) *models.Task {
	return &models.Task{
		ID:          uuid.New(),
		UserID:      user.ID,
		Name:        "Plan trip",
		Description: "Two weeks in Japan",
		Status:      models.TaskStatusNew,
		Context:     models.NoContext,
	}
}

// serve routes req through a router built by register, with user (if any) in the request context
func serve(t *testing.T, register func(*mux.Router), user *models.User, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	r := mux.NewRouter()
	register(r)
	if user != nil {
		req = req.WithContext(request.WithUser(req.Context(), user))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func jsonRequest(method, path string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// envelope decodes the response envelope, unmarshalling data into dst when non-nil
func envelope(t *testing.T, w *httptest.ResponseRecorder, dst any) map[string]any {
	t.Helper()
	var raw struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	if dst != nil && len(raw.Data) > 0 {
		if err := json.Unmarshal(raw.Data, dst); err != nil {
			t.Fatalf("failed to decode data %s: %v", raw.Data, err)
		}
	}
	return map[string]any{"success": raw.Success, "error": raw.Error, "message": raw.Message}
}
