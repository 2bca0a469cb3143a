package cache

import (
	"context"

	"github.com/benvon/ai-task/internal/models"
	"github.com/google/uuid"
)

// HistoryStore is the record store of exchange history.
type HistoryStore interface {
	ListExchanges(ctx context.Context, taskID, userID uuid.UUID) ([]models.Exchange, error)
}

// CachedHistory reads exchange history through the coordinator's exchange cache.
type CachedHistory struct {
	store HistoryStore
	cache *Coordinator
}

// NewCachedHistory wraps store with a read-through cache.
func NewCachedHistory(store HistoryStore, cache *Coordinator) *CachedHistory {
	return &CachedHistory{store: store, cache: cache}
}

// ListExchanges returns the cached list or loads it from the store and caches it.
func (h *CachedHistory) ListExchanges(ctx context.Context, taskID, userID uuid.UUID) ([]models.Exchange, error) {
	if exchanges, ok := h.cache.GetCachedExchanges(ctx, taskID, userID); ok {
		return exchanges, nil
	}
	exchanges, err := h.store.ListExchanges(ctx, taskID, userID)
	if err != nil {
		return nil, err
	}
	h.cache.CacheExchanges(ctx, taskID, userID, exchanges, ExchangesTTL)
	return exchanges, nil
}
