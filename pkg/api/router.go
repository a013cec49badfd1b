package api

import (
	"net/http"
	"time"

	"githubevents/internal"
	"githubevents/pkg/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// WebhookPath is where GitHub deliveries are received.
const WebhookPath = "/webhook"

// Dependencies are the collaborators wired into the router.
type Dependencies struct {
	Config  internal.Config
	Store   storage.EventStore
	Webhook http.Handler
	Metrics *internal.Metrics
	Limiter *internal.RateLimiter
	Logger  *zap.Logger
	Now     func() time.Time
}

// NewRouter builds the HTTP routes and middleware.
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	server := deps.Config.Server

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(logger))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-GitHub-Event", "X-GitHub-Delivery", "X-Hub-Signature-256"},
		MaxAge:         300,
	}))

	r.Get("/", (&IndexHandler{PublicBaseURL: server.PublicBaseURL, WebhookPath: WebhookPath}).ServeHTTP)
	r.Get("/health", (&HealthHandler{Store: deps.Store, Metrics: deps.Metrics, Logger: logger, Now: deps.Now}).ServeHTTP)
	r.Get("/events", (&EventsHandler{Store: deps.Store, Metrics: deps.Metrics, Logger: logger}).ServeHTTP)

	r.Get(WebhookPath, (&WebhookInfoHandler{WebhookPath: WebhookPath}).ServeHTTP)
	if deps.Webhook != nil {
		r.With(deps.Limiter.Middleware).Post(WebhookPath, deps.Webhook.ServeHTTP)
	}

	if server.MetricsEnabled && deps.Metrics != nil {
		path := server.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, deps.Metrics.Handler())
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		internal.WriteError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		internal.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return r
}
