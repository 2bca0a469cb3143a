package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benvon/ai-task/api"
	"github.com/benvon/ai-task/internal/app"
	"github.com/benvon/ai-task/internal/config"
	"github.com/benvon/ai-task/internal/handlers"
	"github.com/benvon/ai-task/internal/logger"
	"github.com/benvon/ai-task/internal/middleware"
	"github.com/benvon/ai-task/internal/queue"
	"github.com/benvon/ai-task/internal/services/oidc"
	"github.com/benvon/ai-task/internal/telemetry"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging, including LLM request previews")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.New(debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		_ = logger.Sync(zapLogger)
	}()

	zapLogger.Info("starting_server",
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("frontend_url", cfg.FrontendURL),
		zap.String("ai_provider", cfg.AIProvider),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	ctx := context.Background()

	var tracer trace.TracerProvider
	if cfg.OTELEnabled {
		if cfg.OTELEndpoint == "" {
			zapLogger.Warn("otel_enabled_but_endpoint_not_configured")
		} else if tp, err := telemetry.InitTracer(ctx, telemetry.ServiceName, cfg.OTELEndpoint); err != nil {
			zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		} else {
			tracer = tp
			zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
					zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
				}
			}()
		}
	}

	services, err := app.New(ctx, cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_initialize_services", zap.Error(err))
	}
	defer func() {
		if err := services.Close(); err != nil {
			zapLogger.Warn("failed_to_close_connections", zap.Error(err))
		}
	}()

	if err := services.InitAI(ctx, debugMode); err != nil {
		zapLogger.Fatal("failed_to_create_ai_provider", zap.Error(err))
	}

	sessions, err := oidc.NewSessionManager(cfg.SessionSecret, cfg.SessionTTL)
	if err != nil {
		zapLogger.Fatal("failed_to_create_session_manager", zap.Error(err))
	}
	google := oidc.NewClient(oidc.GoogleConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	if !google.Configured() {
		zapLogger.Warn("google_sign_in_not_configured")
	}
	verifier := oidc.NewVerifier(oidc.NewJWKSManager(), oidc.GoogleJWKSURL, google.ClientID())

	jobQueue := connectQueue(cfg, zapLogger)
	if jobQueue != nil {
		defer func() {
			if err := jobQueue.Close(); err != nil {
				zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
			}
		}()
	}

	limiterStore, err := middleware.NewLimiterStore(services.Redis)
	if err != nil {
		zapLogger.Fatal("failed_to_create_rate_limiter", zap.Error(err))
	}

	openAPIHandler, err := handlers.NewOpenAPIHandler(api.OpenAPI)
	if err != nil {
		zapLogger.Fatal("failed_to_load_openapi_document", zap.Error(err))
	}

	health := handlers.NewHealthChecker().
		WithCheck("database", handlers.PingFunc(services.DB.HealthCheck)).
		WithCheck("cache", services.Cache)

	var aiOpts []handlers.AIHandlerOption
	if jobQueue != nil {
		aiOpts = append(aiOpts, handlers.WithJobQueue(jobQueue))
		health.WithCheck("queue", handlers.PingFunc(jobQueue.HealthCheck))
	}

	router, err := newRouter(routerDeps{
		logger:       zapLogger,
		frontendURL:  cfg.FrontendURL,
		enableHSTS:   cfg.EnableHSTS,
		rateLimit:    cfg.RateLimit,
		limiterStore: limiterStore,
		tracer:       tracer,
		sessions:     sessions,
		users:        services.Users,
		auth:         handlers.NewAuthHandler(google, sessions, verifier, services.Users, zapLogger),
		tasks:        handlers.NewTaskHandler(services.Tasks, services.Cache, zapLogger),
		ai:           handlers.NewAIHandler(services.Tasks, services.Exchanges, services.Chat, zapLogger, aiOpts...),
		stream:       handlers.NewStreamHandler(services.Tasks, services.Chat, middleware.AllowedOrigins(cfg.FrontendURL), zapLogger),
		health:       health,
		openapi:      openAPIHandler,
	})
	if err != nil {
		zapLogger.Fatal("failed_to_build_router", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      requestTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("server_shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
	}

	zapLogger.Info("server_exited")
}

// connectQueue connects to RabbitMQ with exponential backoff. Without
// RABBITMQ_URL, or after the retries run out, async jobs are disabled.
func connectQueue(cfg *config.Config, log *zap.Logger) *queue.RabbitMQQueue {
	if cfg.RabbitMQURL == "" {
		log.Info("job_queue_not_configured")
		return nil
	}

	const maxRetries = 10
	const initialDelay = 2 * time.Second
	var lastErr error
	for attempt := range maxRetries {
		q, err := queue.NewRabbitMQQueue(cfg.RabbitMQURL, log)
		if err == nil {
			log.Info("connected_to_rabbitmq")
			return q
		}
		lastErr = err

		delay := min(initialDelay*time.Duration(1<<uint(attempt)), 30*time.Second)
		log.Warn("failed_to_connect_to_rabbitmq_retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", maxRetries),
			zap.Error(err),
			zap.Duration("retry_delay", delay),
		)
		time.Sleep(delay)
	}

	log.Error("job_queue_disabled", zap.Int("max_retries", maxRetries), zap.Error(lastErr))
	return nil
}
