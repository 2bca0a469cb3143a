package ai

import (
	"context"
	"iter"
	"sync"
	"time"

	"github.com/benvon/ai-task/internal/models"
	"github.com/google/uuid"
)

// fakeProvider records calls and returns canned output.
type fakeProvider struct {
	mu          sync.Mutex
	completeFn  func(messages []Message) (string, error)
	contextFn   func(ctx context.Context) (string, error)
	fragments   []string
	streamErr   error
	calls       int
	streamCalls int
	lastMsgs    []Message
}

func (p *fakeProvider) Complete(ctx context.Context, messages []Message) (string, error) {
	p.mu.Lock()
	p.calls++
	p.lastMsgs = messages
	fn, ctxFn := p.completeFn, p.contextFn
	p.mu.Unlock()
	if ctxFn != nil {
		return ctxFn(ctx)
	}
	if fn == nil {
		return "", nil
	}
	return fn(messages)
}

func (p *fakeProvider) CompleteStream(_ context.Context, messages []Message) iter.Seq2[string, error] {
	p.mu.Lock()
	p.streamCalls++
	p.lastMsgs = messages
	p.mu.Unlock()
	return func(yield func(string, error) bool) {
		for _, f := range p.fragments {
			if !yield(f, nil) {
				return
			}
		}
		if p.streamErr != nil {
			yield("", p.streamErr)
		}
	}
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type cacheWrite struct {
	value string
	ttl   time.Duration
}

// fakeCache is an in-memory ContextCache that records writes.
type fakeCache struct {
	mu          sync.Mutex
	values      map[string]string
	writes      []cacheWrite
	invalidated int
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: map[string]string{}}
}

func cacheKey(taskID, userID uuid.UUID) string {
	return taskID.String() + ":" + userID.String()
}

func (c *fakeCache) GetTaskContext(_ context.Context, taskID, userID uuid.UUID) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[cacheKey(taskID, userID)]
	return v, ok
}

func (c *fakeCache) SetTaskContext(_ context.Context, taskID, userID uuid.UUID, value string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[cacheKey(taskID, userID)] = value
	c.writes = append(c.writes, cacheWrite{value: value, ttl: ttl})
}

func (c *fakeCache) Invalidate(_ context.Context, taskID, userID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, cacheKey(taskID, userID))
	c.invalidated++
}

func (c *fakeCache) lastWrite() (cacheWrite, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.writes) == 0 {
		return cacheWrite{}, false
	}
	return c.writes[len(c.writes)-1], true
}

// fakeHistory returns a fixed exchange list.
type fakeHistory struct {
	mu        sync.Mutex
	exchanges []models.Exchange
	err       error
	calls     int
}

func (h *fakeHistory) ListExchanges(context.Context, uuid.UUID, uuid.UUID) ([]models.Exchange, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	return h.exchanges, h.err
}

// fakeTasks records context writes.
type fakeTasks struct {
	updates []string
	err     error
}

func (t *fakeTasks) UpdateContext(_ context.Context, _, _ uuid.UUID, value string) error {
	if t.err != nil {
		return t.err
	}
	t.updates = append(t.updates, value)
	return nil
}

// fakeExchanges records created exchanges.
type fakeExchanges struct {
	created []models.Exchange
	err     error
}

func (e *fakeExchanges) Create(_ context.Context, exchange *models.Exchange) error {
	if e.err != nil {
		return e.err
	}
	exchange.ID = uuid.New()
	exchange.CreatedAt = time.Now()
	e.created = append(e.created, *exchange)
	return nil
}

func exchanges(n int) []models.Exchange {
	out := make([]models.Exchange, 0, n)
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		out = append(out, models.Exchange{
			ID:        uuid.New(),
			Prompt:    "question " + string(rune('A'+i)),
			Response:  "answer " + string(rune('A'+i)),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	return out
}
