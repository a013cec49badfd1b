package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"githubevents/internal"
	"githubevents/pkg/model"
	"githubevents/pkg/normalize"
	"githubevents/pkg/storage"

	"go.uber.org/zap"
)

// Version is reported by the index route.
const Version = "1.0.0"

// EventsHandler lists stored events, newest first.
type EventsHandler struct {
	Store   storage.EventStore
	Metrics *internal.Metrics
	Logger  *zap.Logger
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	limit := storage.DefaultListLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			internal.WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	events, err := h.Store.ListEvents(r.Context(), limit)
	if err != nil {
		h.Metrics.IncStorageError("list")
		if h.Logger != nil {
			h.Logger.Error("list events failed", zap.Int("limit", limit), zap.Error(err))
		}
		internal.WriteError(w, http.StatusInternalServerError, "Failed to fetch events")
		return
	}
	if events == nil {
		events = []model.Event{}
	}

	internal.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"events":  events,
		"count":   len(events),
	})
}

// HealthHandler reports whether the database answers a ping.
type HealthHandler struct {
	Store   storage.EventStore
	Metrics *internal.Metrics
	Logger  *zap.Logger
	Now     func() time.Time
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}

	if err := h.Store.Ping(r.Context()); err != nil {
		h.Metrics.IncStorageError("ping")
		if h.Logger != nil {
			h.Logger.Warn("health check failed", zap.Error(err))
		}
		internal.WriteJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"status":    "unhealthy",
			"error":     err.Error(),
			"timestamp": model.FormatTimestamp(now()),
		})
		return
	}

	internal.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": model.FormatTimestamp(now()),
	})
}

// IndexHandler describes the service and how to point GitHub at it.
type IndexHandler struct {
	// PublicBaseURL overrides the scheme and host taken from the request.
	PublicBaseURL string
	WebhookPath   string
}

func (h *IndexHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := h.webhookPath()
	internal.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message": "GitHub Webhook API",
		"version": Version,
		"endpoints": map[string]string{
			"webhook": path + " (POST)",
			"events":  "/events (GET)",
			"health":  "/health (GET)",
		},
		"webhook_setup": map[string]interface{}{
			"url":          baseURL(r, h.PublicBaseURL) + path,
			"content_type": "application/json",
			"events":       supportedEvents(),
		},
	})
}

func (h *IndexHandler) webhookPath() string {
	if h.WebhookPath == "" {
		return "/webhook"
	}
	return h.WebhookPath
}

// WebhookInfoHandler answers GET on the webhook route with setup instructions.
type WebhookInfoHandler struct {
	WebhookPath string
}

func (h *WebhookInfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := h.WebhookPath
	if path == "" {
		path = "/webhook"
	}
	internal.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message": "GitHub Webhook Endpoint",
		"instructions": map[string]interface{}{
			"url":          path,
			"method":       http.MethodPost,
			"content_type": "application/json",
			"events":       supportedEvents(),
		},
	})
}

func supportedEvents() []string {
	out := make([]string, 0, len(normalize.SupportedEvents))
	for _, event := range normalize.SupportedEvents {
		out = append(out, string(event))
	}
	return out
}

func baseURL(r *http.Request, configured string) string {
	if configured != "" {
		return strings.TrimRight(configured, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}
