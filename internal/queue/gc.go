package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/benvon/ai-task/internal/logger"
	"go.uber.org/zap"
)

// purgeTimeout bounds a single DLQ sweep
const purgeTimeout = 2 * time.Minute

// DLQCollector drops dead-lettered jobs once they are older than the
// retention window. It sweeps once at start and then every interval.
type DLQCollector struct {
	purger    DLQPurger
	interval  time.Duration
	retention time.Duration
	logger    *zap.Logger
}

// NewDLQCollector creates a collector. A nil purger turns sweeps into no-ops.
func NewDLQCollector(purger DLQPurger, interval, retention time.Duration, log *zap.Logger) *DLQCollector {
	return &DLQCollector{
		purger:    purger,
		interval:  interval,
		retention: retention,
		logger:    logger.OrNop(log),
	}
}

// Run sweeps until ctx is cancelled and returns ctx.Err().
func (c *DLQCollector) Run(ctx context.Context) error {
	c.sweep(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

func (c *DLQCollector) sweep(ctx context.Context) {
	if _, err := c.Collect(ctx); err != nil {
		c.logger.Warn("dlq_gc_failed", zap.Error(err), zap.Duration("retention", c.retention))
	}
}

// Collect runs one sweep and returns how many jobs were dropped.
func (c *DLQCollector) Collect(ctx context.Context) (int, error) {
	if c.purger == nil {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, purgeTimeout)
	defer cancel()

	purged, err := c.purger.PurgeOlderThan(ctx, c.retention)
	if err != nil {
		return purged, fmt.Errorf("failed to purge dead-lettered jobs: %w", err)
	}
	if purged > 0 {
		c.logger.Info("dlq_gc_purged", zap.Int("count", purged), zap.Duration("retention", c.retention))
	}
	return purged, nil
}
