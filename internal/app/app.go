// Package app wires the stores, cache and AI services shared by the binaries.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/benvon/ai-task/internal/cache"
	"github.com/benvon/ai-task/internal/config"
	"github.com/benvon/ai-task/internal/database"
	"github.com/benvon/ai-task/internal/logger"
	"github.com/benvon/ai-task/internal/services/ai"
	"github.com/benvon/ai-task/internal/services/ai/gemini"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Services holds the shared dependencies of the server, worker and CLI
type Services struct {
	Config    *config.Config
	Logger    *zap.Logger
	DB        *database.DB
	Redis     *redis.Client
	Cache     *cache.Coordinator
	Users     *database.UserRepository
	Tasks     *database.TaskRepository
	Exchanges *database.ExchangeRepository
	Generator *ai.ContextGenerator
	Chat      *ai.ChatService

	closers []func() error
}

// New connects to the database and cache. With AUTO_MIGRATE the schema is
// migrated before returning. A Redis failure falls back to the memory cache.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Services, error) {
	log = logger.OrNop(log)

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	s := &Services{Config: cfg, Logger: log, DB: db}
	s.closers = append(s.closers, db.Close)
	log.Info("connected_to_database")

	if cfg.AutoMigrate {
		if err := database.Migrate(ctx, db, log); err != nil {
			_ = s.Close()
			return nil, err
		}
	}

	backend, client, err := NewCacheBackend(ctx, cfg, log)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	if client != nil {
		s.Redis = client
		s.closers = append(s.closers, client.Close)
	}
	s.Cache = cache.NewCoordinator(backend, log)

	s.Users = database.NewUserRepository(db)
	s.Tasks = database.NewTaskRepository(db)
	s.Exchanges = database.NewExchangeRepository(db)
	return s, nil
}

// InitAI builds the provider, the context generator and the chat service
func (s *Services) InitAI(ctx context.Context, debugMode bool) error {
	provider, err := NewProvider(ctx, s.Config, s.Logger, debugMode)
	if err != nil {
		return err
	}

	s.Generator = ai.NewContextGenerator(
		provider,
		s.Cache,
		cache.NewCachedHistory(s.Exchanges, s.Cache),
		ai.WithLogger(s.Logger),
		ai.WithCoalescing(s.Config.ContextCoalesce),
	)
	s.Chat = ai.NewChatService(s.Generator, s.Tasks, s.Exchanges, s.Logger)

	s.Logger.Info("initialized_ai_provider",
		zap.String("provider", s.Config.AIProvider),
		zap.Bool("context_coalescing", s.Config.ContextCoalesce),
	)
	return nil
}

// Close releases connections in reverse order of creation
func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// NewCacheBackend returns a Redis backend when REDIS_URL is set and
// reachable, otherwise an in-process LRU. The Redis client is returned so it
// can be shared with the rate limiter; it is nil for the memory backend.
func NewCacheBackend(ctx context.Context, cfg *config.Config, log *zap.Logger) (cache.Backend, *redis.Client, error) {
	if cfg.RedisURL != "" {
		backend, err := cache.NewRedisBackend(ctx, cfg.RedisURL)
		if err == nil {
			log.Info("connected_to_redis")
			return backend, backend.Client(), nil
		}
		log.Warn("cache_unavailable",
			zap.String("backend", "redis"),
			zap.String("fallback", "memory"),
			zap.String("error", logger.SanitizeError(err)),
		)
	}

	memory, err := cache.NewMemoryBackend(cfg.MemoryCacheSize)
	if err != nil {
		return nil, nil, err
	}
	log.Info("using_memory_cache", zap.Int("size", cfg.MemoryCacheSize))
	return memory, nil, nil
}

// NewProvider builds the provider named by AI_PROVIDER
func NewProvider(ctx context.Context, cfg *config.Config, log *zap.Logger, debugMode bool) (ai.Provider, error) {
	registry := ai.NewProviderRegistry()
	ai.RegisterOpenAI(registry)
	gemini.Register(registry)

	pc := ai.ProviderConfig{
		APIKey:    cfg.AIKey(),
		Logger:    log,
		DebugMode: debugMode,
	}
	switch cfg.AIProvider {
	case "gemini":
		pc.Model = cfg.GeminiModel
	default:
		pc.Model = cfg.OpenAIModel
		pc.BaseURL = cfg.OpenAIBase
	}

	provider, err := registry.GetProvider(cfg.AIProvider, pc)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", cfg.AIProvider, err)
	}
	return provider, nil
}
