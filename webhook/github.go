package webhook

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"githubevents/internal"
	"githubevents/pkg/normalize"
	"githubevents/pkg/storage"

	"github.com/go-chi/chi/v5/middleware"
	hooks "github.com/go-playground/webhooks/v6/github"
	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
)

const (
	msgProcessed    = "Webhook processed successfully"
	msgNotProcessed = "Webhook received but not processed"
	msgInvalid      = "Invalid webhook payload"
	msgTooLarge     = "Payload too large"
	msgInternal     = "Internal server error"
)

// GitHubHandler receives GitHub deliveries, stores the normalized record and
// notifies subscribers.
type GitHubHandler struct {
	hook       *hooks.Webhook
	normalizer *normalize.Normalizer
	store      storage.EventStore
	notifier   *Notifier
	metrics    *internal.Metrics
	logger     *zap.Logger
	maxBody    int64
}

// GitHubHandlerConfig carries the collaborators of a GitHubHandler.
type GitHubHandlerConfig struct {
	Normalizer   *normalize.Normalizer
	Store        storage.EventStore
	Notifier     *Notifier
	Metrics      *internal.Metrics
	Logger       *zap.Logger
	MaxBodyBytes int64
}

func NewGitHubHandler(cfg GitHubHandlerConfig) (*GitHubHandler, error) {
	if cfg.Store == nil {
		return nil, errors.New("webhook handler needs a store")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	normalizer := cfg.Normalizer
	if normalizer == nil {
		normalizer = normalize.New(normalize.WithLogger(logger))
	}
	// No secret: deliveries are not signature checked.
	hook, err := hooks.New()
	if err != nil {
		return nil, err
	}
	return &GitHubHandler{
		hook:       hook,
		normalizer: normalizer,
		store:      cfg.Store,
		notifier:   cfg.Notifier,
		metrics:    cfg.Metrics,
		logger:     logger,
		maxBody:    cfg.MaxBodyBytes,
	}, nil
}

func (h *GitHubHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	eventType := github.WebHookType(r)
	logger := internal.WithRequestID(h.logger, middleware.GetReqID(r.Context())).With(
		zap.String("event", eventType),
		zap.String("delivery", github.DeliveryID(r)),
	)

	body := r.Body
	if h.maxBody > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		h.metrics.IncWebhook(eventType, internal.OutcomeRejected)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.Warn("webhook body too large", zap.Int64("limit", tooLarge.Limit))
			internal.WriteError(w, http.StatusRequestEntityTooLarge, msgTooLarge)
			return
		}
		logger.Warn("read webhook body failed", zap.Error(err))
		internal.WriteError(w, http.StatusBadRequest, msgInvalid)
		return
	}

	payload, err := decodeObject(raw)
	if err != nil {
		h.metrics.IncWebhook(eventType, internal.OutcomeRejected)
		logger.Info("webhook rejected", zap.Error(err))
		internal.WriteError(w, http.StatusBadRequest, msgInvalid)
		return
	}

	r.Body = io.NopCloser(bytes.NewReader(raw))
	parsed, err := h.hook.Parse(r, normalize.SupportedEvents...)
	switch {
	case errors.Is(err, hooks.ErrMissingGithubEventHeader):
		h.metrics.IncWebhook(eventType, internal.OutcomeRejected)
		logger.Info("webhook rejected: missing X-GitHub-Event header")
		internal.WriteError(w, http.StatusBadRequest, msgInvalid)
		return
	case errors.Is(err, hooks.ErrEventNotFound):
		h.notProcessed(w, logger, eventType, internal.OutcomeSkipped)
		return
	case err != nil:
		logger.Warn("webhook payload does not match the event schema", zap.Error(err))
		h.notProcessed(w, logger, eventType, internal.OutcomeFault)
		return
	}
	if repo := repositoryName(parsed); repo != "" {
		logger = logger.With(zap.String("repository", repo))
	}

	res := h.normalizer.Normalize(eventType, raw)
	if res.Outcome != normalize.Record {
		outcome := internal.OutcomeSkipped
		if res.Outcome == normalize.Fault {
			outcome = internal.OutcomeFault
		}
		h.notProcessed(w, logger, eventType, outcome)
		return
	}

	event := *res.Event
	id, err := h.store.InsertEvent(r.Context(), event)
	if err != nil {
		h.metrics.IncStorageError("insert")
		h.metrics.IncWebhook(eventType, internal.OutcomeError)
		logger.Error("store event failed", zap.String("request_id", event.RequestID), zap.Error(err))
		internal.WriteError(w, http.StatusInternalServerError, msgInternal)
		return
	}
	event.ID = id
	h.metrics.IncWebhook(eventType, internal.OutcomeStored)
	logger.Info("event stored",
		zap.String("event_id", id),
		zap.String("action", string(event.Action)),
		zap.String("author", event.Author),
		zap.String("to_branch", event.ToBranch),
	)

	h.notifier.Notify(r.Context(), eventType, event, payload)

	internal.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"message":    msgProcessed,
		"event_id":   id,
		"event_data": event,
	})
}

func (h *GitHubHandler) notProcessed(w http.ResponseWriter, logger *zap.Logger, eventType, outcome string) {
	h.metrics.IncWebhook(eventType, outcome)
	logger.Debug("webhook not processed", zap.String("outcome", outcome))
	internal.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": msgNotProcessed,
	})
}

func repositoryName(parsed interface{}) string {
	switch pl := parsed.(type) {
	case hooks.PushPayload:
		return pl.Repository.FullName
	case hooks.PullRequestPayload:
		return pl.Repository.FullName
	default:
		return ""
	}
}
