package ai

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRequest(existing string) ContextRequest {
	return ContextRequest{
		TaskID:          uuid.New(),
		UserID:          uuid.New(),
		TaskName:        "Write quarterly report",
		TaskDescription: "Summarize Q3 numbers for the board",
		ExistingContext: existing,
	}
}

func userPrompt(msgs []Message) string {
	for _, m := range msgs {
		if m.Role == RoleUser {
			return m.Content
		}
	}
	return ""
}

func TestResolve_CacheHitShortCircuits(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{}
	cache := newFakeCache()
	history := &fakeHistory{exchanges: exchanges(2)}
	g := NewContextGenerator(provider, cache, history)

	req := newRequest("Some prior context")
	cache.values[cacheKey(req.TaskID, req.UserID)] = "cached context"

	res := g.Resolve(context.Background(), req)

	if res.Context != "cached context" || res.State != StateCacheHit {
		t.Errorf("Resolve = %+v, want cached context with cache_hit", res)
	}
	if history.calls != 0 {
		t.Errorf("history fetched %d times, want 0", history.calls)
	}
	if provider.callCount() != 0 {
		t.Errorf("provider called %d times, want 0", provider.callCount())
	}
}

func TestResolve_NoHistoryReusesExisting(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{}
	cache := newFakeCache()
	g := NewContextGenerator(provider, cache, &fakeHistory{})

	req := newRequest("Some prior context")
	res := g.Resolve(context.Background(), req)

	if res.Context != "Some prior context" {
		t.Errorf("Context = %q, want %q", res.Context, "Some prior context")
	}
	if res.State != StateReuse {
		t.Errorf("State = %q, want reuse", res.State)
	}
	if provider.callCount() != 0 {
		t.Errorf("provider called %d times, want 0", provider.callCount())
	}
	w, ok := cache.lastWrite()
	if !ok || w.value != "Some prior context" || w.ttl != FreshTTL {
		t.Errorf("cache write = %+v, want existing context with 24h TTL", w)
	}
}

func TestResolve_SentinelTakesCreateBranch(t *testing.T) {
	t.Parallel()

	for _, sentinel := range []string{"no context", "No context", "  NO CONTEXT ", ""} {
		provider := &fakeProvider{completeFn: func([]Message) (string, error) { return "fresh context", nil }}
		g := NewContextGenerator(provider, newFakeCache(), &fakeHistory{exchanges: exchanges(2)})

		res := g.Resolve(context.Background(), newRequest(sentinel))

		if res.State != StateCreate {
			t.Errorf("existing %q: State = %q, want create", sentinel, res.State)
		}
		if !strings.HasPrefix(userPrompt(provider.lastMsgs), "Create the working context") {
			t.Errorf("existing %q: expected create prompt, got %q", sentinel, userPrompt(provider.lastMsgs))
		}
	}
}

func TestResolve_CreateWithoutHistory(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{completeFn: func([]Message) (string, error) { return "  fresh context \n", nil }}
	cache := newFakeCache()
	g := NewContextGenerator(provider, cache, &fakeHistory{})

	res := g.Resolve(context.Background(), newRequest("No context"))

	if res.State != StateCreate || res.Context != "fresh context" {
		t.Errorf("Resolve = %+v, want trimmed create result", res)
	}
	if !strings.Contains(userPrompt(provider.lastMsgs), noHistoryNote) {
		t.Error("create prompt should note that there is no history")
	}
	if w, _ := cache.lastWrite(); w.ttl != FreshTTL {
		t.Errorf("TTL = %v, want 24h", w.ttl)
	}
}

func TestResolve_MergeBranch(t *testing.T) {
	t.Parallel()

	history := exchanges(5)
	history[4].Response = strings.Repeat("x", 150)

	provider := &fakeProvider{completeFn: func([]Message) (string, error) { return "merged context", nil }}
	cache := newFakeCache()
	g := NewContextGenerator(provider, cache, &fakeHistory{exchanges: history})

	res := g.Resolve(context.Background(), newRequest("Some prior context"))

	if res.State != StateUpdate || res.Context != "merged context" {
		t.Errorf("Resolve = %+v, want merged context with update", res)
	}
	if provider.callCount() != 1 {
		t.Errorf("provider called %d times, want 1", provider.callCount())
	}
	w, ok := cache.lastWrite()
	if !ok || w.value != "merged context" || w.ttl != FreshTTL {
		t.Errorf("cache write = %+v, want merged context with 24h TTL", w)
	}

	prompt := userPrompt(provider.lastMsgs)
	if !strings.Contains(prompt, "Some prior context") {
		t.Error("update prompt must include the existing context")
	}
	if strings.Contains(prompt, "question A") || strings.Contains(prompt, "question B") {
		t.Error("update prompt must only include the last 3 exchanges")
	}
	for _, want := range []string{"question C", "question D", "question E"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("update prompt missing %q", want)
		}
	}
	if strings.Contains(prompt, strings.Repeat("x", 101)) || !strings.Contains(prompt, strings.Repeat("x", 100)+"...") {
		t.Error("responses must be cut to a 100 character preview")
	}
}

func TestResolve_GeneratedContextStripsThinking(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{completeFn: func([]Message) (string, error) {
		return "<think>planning the summary</think>\nObjectives: ship it", nil
	}}
	g := NewContextGenerator(provider, newFakeCache(), &fakeHistory{})

	res := g.Resolve(context.Background(), newRequest(""))
	if res.Context != "Objectives: ship it" {
		t.Errorf("Context = %q, want reasoning removed", res.Context)
	}
}

func TestResolve_UnclosedReasoningKeepsGeneratedContext(t *testing.T) {
	t.Parallel()

	const reply = "<think>Objectives: ship it"
	provider := &fakeProvider{completeFn: func([]Message) (string, error) { return reply, nil }}
	g := NewContextGenerator(provider, newFakeCache(), &fakeHistory{})

	res := g.Resolve(context.Background(), newRequest(""))
	if res.State != StateCreate || res.Err != nil {
		t.Fatalf("State = %s, Err = %v, want create without error", res.State, res.Err)
	}
	if res.Context != reply {
		t.Errorf("Context = %q, want the full reply %q", res.Context, reply)
	}
}

func TestResolve_Degradation(t *testing.T) {
	t.Parallel()

	errLLM := errors.New("llm unavailable")

	tests := []struct {
		name     string
		existing string
		provider *fakeProvider
		history  *fakeHistory
		check    func(t *testing.T, res Resolution, req ContextRequest)
	}{
		{
			name:     "generation failure keeps existing context",
			existing: "Some prior context",
			provider: &fakeProvider{completeFn: func([]Message) (string, error) { return "", errLLM }},
			history:  &fakeHistory{exchanges: exchanges(1)},
			check: func(t *testing.T, res Resolution, _ ContextRequest) {
				if res.Context != "Some prior context" {
					t.Errorf("Context = %q, want existing context", res.Context)
				}
				if !errors.Is(res.Err, errLLM) {
					t.Errorf("Err = %v, want wrapped llm error", res.Err)
				}
			},
		},
		{
			name:     "generation failure without context uses template",
			existing: "no context",
			provider: &fakeProvider{completeFn: func([]Message) (string, error) { return "", errLLM }},
			history:  &fakeHistory{exchanges: exchanges(1)},
			check: func(t *testing.T, res Resolution, req ContextRequest) {
				for _, want := range []string{req.TaskName, req.TaskDescription, "error", "llm unavailable"} {
					if !strings.Contains(res.Context, want) {
						t.Errorf("template %q missing %q", res.Context, want)
					}
				}
			},
		},
		{
			name:     "history failure degrades",
			existing: "Some prior context",
			provider: &fakeProvider{},
			history:  &fakeHistory{err: errors.New("db down")},
			check: func(t *testing.T, res Resolution, _ ContextRequest) {
				if res.Context != "Some prior context" {
					t.Errorf("Context = %q, want existing context", res.Context)
				}
			},
		},
		{
			name:     "empty completion is a failure",
			existing: "",
			provider: &fakeProvider{completeFn: func([]Message) (string, error) { return "<think>only reasoning</think>  ", nil }},
			history:  &fakeHistory{},
			check: func(t *testing.T, res Resolution, _ ContextRequest) {
				if !errors.Is(res.Err, ErrEmptyCompletion) {
					t.Errorf("Err = %v, want ErrEmptyCompletion", res.Err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cache := newFakeCache()
			g := NewContextGenerator(tt.provider, cache, tt.history)
			req := newRequest(tt.existing)

			res := g.Resolve(context.Background(), req)

			if res.State != StateDegraded {
				t.Errorf("State = %q, want degraded", res.State)
			}
			w, ok := cache.lastWrite()
			if !ok || w.ttl != DegradedTTL || w.value != res.Context {
				t.Errorf("cache write = %+v, want returned context with 1h TTL", w)
			}
			tt.check(t, res, req)
		})
	}
}

func TestResolve_CoalescesConcurrentCalls(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	provider := &fakeProvider{completeFn: func([]Message) (string, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return "shared context", nil
	}}
	g := NewContextGenerator(provider, newFakeCache(), &fakeHistory{}, WithCoalescing(true))
	req := newRequest("")

	const callers = 8
	results := make([]Resolution, callers)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0] = g.Resolve(context.Background(), req)
	}()
	<-started
	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = g.Resolve(context.Background(), req)
		}(i)
	}
	close(release)
	wg.Wait()

	if provider.callCount() != 1 {
		t.Errorf("provider called %d times, want 1", provider.callCount())
	}
	for i, res := range results {
		if res.Context != "shared context" {
			t.Errorf("caller %d got %q", i, res.Context)
		}
	}
}

func TestResolve_CancelledCallerDoesNotCachePlaceholder(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{contextFn: func(ctx context.Context) (string, error) { return "", ctx.Err() }}
	cache := newFakeCache()
	g := NewContextGenerator(provider, cache, &fakeHistory{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := g.Resolve(ctx, newRequest(""))
	if res.State != StateDegraded || !errors.Is(res.Err, context.Canceled) {
		t.Fatalf("State = %s, Err = %v, want degraded by cancellation", res.State, res.Err)
	}
	if len(cache.writes) != 0 {
		t.Errorf("cache writes = %+v, want none for a cancelled caller", cache.writes)
	}

	provider.contextFn = func(context.Context) (string, error) { return "fresh context", nil }
	if res := g.Resolve(context.Background(), newRequest("")); res.Context != "fresh context" {
		t.Errorf("next caller got %q, want a freshly generated context", res.Context)
	}
}

func TestResolve_CoalescedCallSurvivesFirstCallerCancel(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{})
	provider := &fakeProvider{contextFn: func(ctx context.Context) (string, error) {
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return "shared context", nil
	}}
	cache := newFakeCache()
	g := NewContextGenerator(provider, cache, &fakeHistory{}, WithCoalescing(true))
	req := newRequest("")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Resolution, 1)
	go func() { done <- g.Resolve(ctx, req) }()

	<-started
	cancel()
	close(release)

	res := <-done
	if res.State != StateCreate || res.Context != "shared context" {
		t.Fatalf("got %s %q, want the generated context", res.State, res.Context)
	}
	if len(cache.writes) != 1 || cache.writes[0].ttl != FreshTTL {
		t.Errorf("cache writes = %+v, want one fresh write", cache.writes)
	}
}

func TestResolve_RecordsStateOnSpan(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	g := NewContextGenerator(&fakeProvider{}, newFakeCache(), &fakeHistory{}, WithTracer(tp.Tracer("test")))
	g.Resolve(context.Background(), newRequest("Some prior context"))

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name != "ai.resolve_context" {
		t.Errorf("span name = %q", spans[0].Name)
	}
	found := false
	for _, attr := range spans[0].Attributes {
		if attr.Key == "context.state" && attr.Value.AsString() == string(StateReuse) {
			found = true
		}
	}
	if !found {
		t.Errorf("span attributes %v missing context.state=reuse", spans[0].Attributes)
	}
}

func TestInvalidateDelegatesToCache(t *testing.T) {
	t.Parallel()

	cache := newFakeCache()
	g := NewContextGenerator(&fakeProvider{}, cache, &fakeHistory{})
	req := newRequest("")
	cache.values[cacheKey(req.TaskID, req.UserID)] = "v"

	g.Invalidate(context.Background(), req.TaskID, req.UserID)

	if _, ok := cache.GetTaskContext(context.Background(), req.TaskID, req.UserID); ok {
		t.Error("context should be invalidated")
	}
}
