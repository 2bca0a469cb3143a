package main

import (
	"net/http"
	"time"

	"github.com/benvon/ai-task/internal/handlers"
	"github.com/benvon/ai-task/internal/middleware"
	"github.com/benvon/ai-task/internal/telemetry"
	"github.com/gorilla/mux"
	"github.com/ulule/limiter/v3"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// requestTimeout leaves room for a synchronous completion
const requestTimeout = 90 * time.Second

type routerDeps struct {
	logger       *zap.Logger
	frontendURL  string
	enableHSTS   bool
	rateLimit    string
	limiterStore limiter.Store
	tracer       trace.TracerProvider

	sessions middleware.SessionVerifier
	users    middleware.UserLookup

	auth    *handlers.AuthHandler
	tasks   *handlers.TaskHandler
	ai      *handlers.AIHandler
	stream  *handlers.StreamHandler
	health  *handlers.HealthChecker
	openapi *handlers.OpenAPIHandler
}

// newRouter builds the HTTP routes. In gorilla/mux the middleware
// registered first is the outermost wrapper.
func newRouter(d routerDeps) (*mux.Router, error) {
	r := mux.NewRouter()

	if d.tracer != nil {
		r.Use(telemetry.Middleware(telemetry.ServiceName, d.tracer))
	}
	r.Use(middleware.SecurityHeaders(d.enableHSTS))
	r.Use(middleware.CORS(d.frontendURL))
	r.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize))
	r.Use(middleware.ContentType)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.ErrorHandler(d.logger))
	r.Use(middleware.Audit(d.logger))
	r.Use(middleware.Logging(d.logger))

	rateLimit, err := middleware.RateLimit(d.limiterStore, d.rateLimit)
	if err != nil {
		return nil, err
	}
	auth := middleware.Auth(d.sessions, d.users, d.logger)

	r.HandleFunc("/healthz", d.health.HealthCheck).Methods("GET")
	d.openapi.RegisterRoutes(r)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(rateLimit)

	authRouter := api.PathPrefix("/auth").Subrouter()
	d.auth.RegisterRoutes(authRouter)
	me := authRouter.PathPrefix("/me").Subrouter()
	me.Use(auth)
	me.HandleFunc("", d.auth.GetMe).Methods("GET")

	d.tasks.RegisterPublicRoutes(api.PathPrefix("/public/tasks").Subrouter())

	tasks := api.PathPrefix("/tasks").Subrouter()
	tasks.Use(auth)
	d.tasks.RegisterRoutes(tasks)
	d.ai.RegisterRoutes(tasks)

	ws := r.PathPrefix("/ws").Subrouter()
	ws.Use(rateLimit)
	ws.Use(auth)
	d.stream.RegisterRoutes(ws)

	// preflight requests reach CORS through a matching route. A method
	// matcher here would turn every unknown path into a 405.
	r.MatcherFunc(func(req *http.Request, _ *mux.RouteMatch) bool {
		return req.Method == http.MethodOptions
	}).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return r, nil
}
