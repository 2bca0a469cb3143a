package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/benvon/ai-task/internal/logger"
	"github.com/benvon/ai-task/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// ContextTTL is the lifetime of a freshly generated context.
	ContextTTL = 24 * time.Hour
	// DegradedTTL is the lifetime of fallback contexts written after a failure.
	DegradedTTL = time.Hour
	// ExchangesTTL is the lifetime of a cached exchange list.
	ExchangesTTL = time.Hour
)

// ContextKey is the cache key of the context for a task and user.
func ContextKey(taskID, userID uuid.UUID) string {
	return fmt.Sprintf("task_context:%s:%s", taskID, userID)
}

// ExchangesKey is the cache key of the exchange list for a task and user.
func ExchangesKey(taskID, userID uuid.UUID) string {
	return fmt.Sprintf("task_exchanges:%s:%s", taskID, userID)
}

// Coordinator is the advisory cache in front of task contexts and exchange
// history. Backend failures are logged and swallowed: reads miss and writes
// are dropped. A Coordinator without a backend does nothing.
type Coordinator struct {
	backend Backend
	log     *zap.Logger
}

// NewCoordinator creates a coordinator over backend, which may be nil.
func NewCoordinator(backend Backend, log *zap.Logger) *Coordinator {
	return &Coordinator{backend: backend, log: logger.OrNop(log)}
}

func (c *Coordinator) enabled() bool {
	return c != nil && c.backend != nil
}

// GetTaskContext returns the cached context, if any.
func (c *Coordinator) GetTaskContext(ctx context.Context, taskID, userID uuid.UUID) (string, bool) {
	if !c.enabled() {
		return "", false
	}
	key := ContextKey(taskID, userID)
	value, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.unavailable("get", key, err)
		return "", false
	}
	return value, ok
}

// SetTaskContext caches value. A non-positive ttl means ContextTTL.
func (c *Coordinator) SetTaskContext(ctx context.Context, taskID, userID uuid.UUID, value string, ttl time.Duration) {
	if !c.enabled() {
		return
	}
	if ttl <= 0 {
		ttl = ContextTTL
	}
	key := ContextKey(taskID, userID)
	if err := c.backend.Set(ctx, key, value, ttl); err != nil {
		c.unavailable("set", key, err)
	}
}

// Invalidate removes both the context and the exchange list of the pair.
func (c *Coordinator) Invalidate(ctx context.Context, taskID, userID uuid.UUID) {
	if !c.enabled() {
		return
	}
	keys := []string{ContextKey(taskID, userID), ExchangesKey(taskID, userID)}
	if err := c.backend.Delete(ctx, keys...); err != nil {
		c.unavailable("delete", keys[0], err)
		return
	}
	c.log.Debug("task_cache_invalidated",
		zap.String("task_id", taskID.String()),
		zap.String("user_id", logger.SanitizeUserID(userID)),
	)
}

// CacheExchanges stores the exchange list as JSON. A non-positive ttl means ExchangesTTL.
func (c *Coordinator) CacheExchanges(ctx context.Context, taskID, userID uuid.UUID, exchanges []models.Exchange, ttl time.Duration) {
	if !c.enabled() {
		return
	}
	if ttl <= 0 {
		ttl = ExchangesTTL
	}
	key := ExchangesKey(taskID, userID)
	body, err := json.Marshal(exchanges)
	if err != nil {
		c.log.Warn("cache_encode_failed", zap.String("key", key), zap.String("error", logger.SanitizeError(err)))
		return
	}
	if err := c.backend.Set(ctx, key, string(body), ttl); err != nil {
		c.unavailable("set", key, err)
	}
}

// GetCachedExchanges returns the cached exchange list, if any. A corrupt
// entry reads as a miss.
func (c *Coordinator) GetCachedExchanges(ctx context.Context, taskID, userID uuid.UUID) ([]models.Exchange, bool) {
	if !c.enabled() {
		return nil, false
	}
	key := ExchangesKey(taskID, userID)
	value, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.unavailable("get", key, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var exchanges []models.Exchange
	if err := json.Unmarshal([]byte(value), &exchanges); err != nil {
		c.log.Warn("cache_decode_failed", zap.String("key", key), zap.String("error", logger.SanitizeError(err)))
		return nil, false
	}
	return exchanges, true
}

// Ping reports backend health for the health endpoint. No backend is healthy.
func (c *Coordinator) Ping(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	return c.backend.Ping(ctx)
}

func (c *Coordinator) unavailable(op, key string, err error) {
	c.log.Warn("cache_unavailable",
		zap.String("op", op),
		zap.String("key", key),
		zap.String("error", logger.SanitizeError(err)),
	)
}
