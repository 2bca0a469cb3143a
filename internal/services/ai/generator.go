package ai

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/benvon/ai-task/internal/logger"
	"github.com/benvon/ai-task/internal/models"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// FreshTTL is the cache lifetime of a context that was generated or confirmed.
	FreshTTL = 24 * time.Hour
	// DegradedTTL is the cache lifetime of a context served after a failure.
	DegradedTTL = time.Hour

	// coalescedResolveTimeout bounds a shared resolution, which outlives
	// the cancellation of the callers waiting on it.
	coalescedResolveTimeout = 2 * time.Minute

	// NoAnswer is returned when the provider produced no visible text.
	NoAnswer = "No answer"

	tracerName = "github.com/benvon/ai-task/internal/services/ai"
)

// ContextState names the path Resolve took.
type ContextState string

const (
	StateCacheHit ContextState = "cache_hit"
	StateReuse    ContextState = "reuse"
	StateUpdate   ContextState = "update"
	StateCreate   ContextState = "create"
	StateDegraded ContextState = "degraded"
)

// Generated reports whether the state produced a new context from the provider.
func (s ContextState) Generated() bool {
	return s == StateUpdate || s == StateCreate
}

// ContextCache is the advisory cache consulted before generation.
type ContextCache interface {
	GetTaskContext(ctx context.Context, taskID, userID uuid.UUID) (string, bool)
	SetTaskContext(ctx context.Context, taskID, userID uuid.UUID, value string, ttl time.Duration)
	Invalidate(ctx context.Context, taskID, userID uuid.UUID)
}

// HistorySource returns exchanges oldest first.
type HistorySource interface {
	ListExchanges(ctx context.Context, taskID, userID uuid.UUID) ([]models.Exchange, error)
}

// ContextRequest identifies a task and carries the context stored on it.
type ContextRequest struct {
	TaskID          uuid.UUID
	UserID          uuid.UUID
	TaskName        string
	TaskDescription string
	ExistingContext string
}

// RequestForTask builds a ContextRequest from a stored task.
func RequestForTask(task *models.Task) ContextRequest {
	return ContextRequest{
		TaskID:          task.ID,
		UserID:          task.UserID,
		TaskName:        task.Name,
		TaskDescription: task.Description,
		ExistingContext: task.Context,
	}
}

// Resolution is the outcome of Resolve. Err is set on the degraded path only.
type Resolution struct {
	Context string       `json:"context"`
	State   ContextState `json:"state"`
	Err     error        `json:"-"`
}

// ContextGenerator decides whether a task context is served from cache,
// reused, merged with new history or generated from scratch.
type ContextGenerator struct {
	provider Provider
	cache    ContextCache
	history  HistorySource
	logger   *zap.Logger
	tracer   trace.Tracer
	inflight *singleflight.Group
}

// GeneratorOption configures a ContextGenerator
type GeneratorOption func(*ContextGenerator)

// WithLogger sets the generator logger
func WithLogger(l *zap.Logger) GeneratorOption {
	return func(g *ContextGenerator) { g.logger = logger.OrNop(l) }
}

// WithTracer sets the tracer used for resolve spans
func WithTracer(t trace.Tracer) GeneratorOption {
	return func(g *ContextGenerator) { g.tracer = t }
}

// WithCoalescing makes concurrent Resolve calls for the same task and user
// share one in-flight resolution. The shared call keeps the first caller's
// context values but not its cancellation.
func WithCoalescing(enabled bool) GeneratorOption {
	return func(g *ContextGenerator) {
		if enabled {
			g.inflight = &singleflight.Group{}
		} else {
			g.inflight = nil
		}
	}
}

// NewContextGenerator creates a generator. cache may be a no-op but not nil.
func NewContextGenerator(provider Provider, cache ContextCache, history HistorySource, opts ...GeneratorOption) *ContextGenerator {
	g := &ContextGenerator{
		provider: provider,
		cache:    cache,
		history:  history,
		logger:   zap.NewNop(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Resolve returns a usable context for the task. It never fails: provider
// and history errors degrade to the existing context or a placeholder.
func (g *ContextGenerator) Resolve(ctx context.Context, req ContextRequest) Resolution {
	ctx, span := g.tracer.Start(ctx, "ai.resolve_context", trace.WithAttributes(
		attribute.String("task.id", req.TaskID.String()),
	))
	defer span.End()

	start := time.Now()
	var res Resolution
	if g.inflight != nil {
		key := req.TaskID.String() + ":" + req.UserID.String()
		v, _, shared := g.inflight.Do(key, func() (any, error) {
			sharedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), coalescedResolveTimeout)
			defer cancel()
			return g.resolve(sharedCtx, req), nil
		})
		res = v.(Resolution)
		span.SetAttributes(attribute.Bool("context.coalesced", shared))
	} else {
		res = g.resolve(ctx, req)
	}

	span.SetAttributes(attribute.String("context.state", string(res.State)))
	fields := []zap.Field{
		zap.String("task_id", req.TaskID.String()),
		zap.String("user_id", logger.SanitizeUserID(req.UserID)),
		zap.String("state", string(res.State)),
		zap.Int("context_length", len(res.Context)),
		zap.Duration("duration", time.Since(start)),
	}
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, "context degraded")
		g.logger.Warn("task_context_degraded", append(fields, zap.String("error", logger.SanitizeError(res.Err)))...)
	} else {
		g.logger.Debug("task_context_resolved", fields...)
	}
	return res
}

func (g *ContextGenerator) resolve(ctx context.Context, req ContextRequest) Resolution {
	if cached, ok := g.cache.GetTaskContext(ctx, req.TaskID, req.UserID); ok {
		return Resolution{Context: cached, State: StateCacheHit}
	}

	history, err := g.history.ListExchanges(ctx, req.TaskID, req.UserID)
	if err != nil {
		return g.degrade(ctx, req, fmt.Errorf("failed to load history: %w", err))
	}

	hasExisting := models.HasContext(req.ExistingContext)
	var (
		state  ContextState
		prompt string
	)
	switch {
	case hasExisting && len(history) > 0:
		state = StateUpdate
		prompt = BuildUpdatePrompt(req.TaskName, req.TaskDescription, req.ExistingContext, history)
	case hasExisting:
		g.cache.SetTaskContext(ctx, req.TaskID, req.UserID, req.ExistingContext, FreshTTL)
		return Resolution{Context: req.ExistingContext, State: StateReuse}
	default:
		state = StateCreate
		prompt = BuildCreatePrompt(req.TaskName, req.TaskDescription, history)
	}

	text, err := g.provider.Complete(ctx, []Message{
		{Role: RoleSystem, Content: contextSystemPrompt},
		{Role: RoleUser, Content: prompt},
	})
	if err != nil {
		return g.degrade(ctx, req, fmt.Errorf("failed to generate context: %w", err))
	}
	generated := StripThinking(text)
	if generated == "" {
		return g.degrade(ctx, req, fmt.Errorf("failed to generate context: %w", ErrEmptyCompletion))
	}

	g.cache.SetTaskContext(ctx, req.TaskID, req.UserID, generated, FreshTTL)
	return Resolution{Context: generated, State: state}
}

func (g *ContextGenerator) degrade(ctx context.Context, req ContextRequest, cause error) Resolution {
	value := req.ExistingContext
	if !models.HasContext(value) {
		value = DegradedContext(req.TaskName, req.TaskDescription, cause)
	}
	// a caller that went away does not get to pin its placeholder
	if ctx.Err() == nil {
		g.cache.SetTaskContext(ctx, req.TaskID, req.UserID, value, DegradedTTL)
	}
	return Resolution{Context: value, State: StateDegraded, Err: cause}
}

// Invalidate drops the cached context and exchange list of the pair. Call it
// after appending an exchange or editing the stored context.
func (g *ContextGenerator) Invalidate(ctx context.Context, taskID, userID uuid.UUID) {
	g.cache.Invalidate(ctx, taskID, userID)
}

func answerMessages(prompt, taskContext string) []Message {
	return []Message{
		{Role: RoleSystem, Content: taskContext},
		{Role: RoleUser, Content: prompt},
	}
}

// Answer replies to prompt with taskContext as the system message. A
// reasoning preamble is removed; an empty reply becomes NoAnswer.
func (g *ContextGenerator) Answer(ctx context.Context, prompt, taskContext string) (string, error) {
	text, err := g.provider.Complete(ctx, answerMessages(prompt, taskContext))
	if err != nil {
		return "", fmt.Errorf("failed to get answer: %w", err)
	}
	if answer := StripThinking(text); answer != "" {
		return answer, nil
	}
	return NoAnswer, nil
}

// AnswerStream is the incremental form of Answer. The concatenated fragments
// equal what Answer returns for the same provider output. A provider error
// is yielded once and ends the sequence.
func (g *ContextGenerator) AnswerStream(ctx context.Context, prompt, taskContext string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		var filter thinkFilter
		emitted := false
		for fragment, err := range g.provider.CompleteStream(ctx, answerMessages(prompt, taskContext)) {
			if err != nil {
				yield("", fmt.Errorf("failed to stream answer: %w", err))
				return
			}
			if out := filter.Write(fragment); out != "" {
				emitted = true
				if !yield(out, nil) {
					return
				}
			}
		}
		if out := filter.Flush(); out != "" {
			emitted = true
			if !yield(out, nil) {
				return
			}
		}
		if !emitted {
			yield(NoAnswer, nil)
		}
	}
}

// CollectStream drains an answer stream into one string.
func CollectStream(seq iter.Seq2[string, error]) (string, error) {
	var b strings.Builder
	for fragment, err := range seq {
		if err != nil {
			return b.String(), err
		}
		b.WriteString(fragment)
	}
	return b.String(), nil
}
