package webhook

import (
	"errors"
	"io"
	"net/http"
	"time"

	"gitevents/internal"
	"gitevents/pkg/events"
	"gitevents/pkg/storage"

	gogithub "github.com/google/go-github/v57/github"
	"github.com/rs/zerolog"
)

const providerGitHub = "github"

// GitHubHandler stores push and pull request deliveries from GitHub.
type GitHubHandler struct {
	store       storage.EventStore
	normalizer  events.Normalizer
	rules       *internal.RuleEngine
	publisher   internal.Publisher
	logger      zerolog.Logger
	maxBody     int64
	debugEvents bool

	// publishTimeout bounds emit, retries included. Zero means the request context only.
	publishTimeout time.Duration
}

// GitHubOption configures a GitHubHandler.
type GitHubOption func(*GitHubHandler)

// WithNotifications publishes stored records on the topics selected by rules.
func WithNotifications(rules *internal.RuleEngine, publisher internal.Publisher) GitHubOption {
	return func(h *GitHubHandler) {
		h.rules = rules
		h.publisher = publisher
	}
}

// WithPublishTimeout bounds notification publishing per delivery.
func WithPublishTimeout(d time.Duration) GitHubOption {
	return func(h *GitHubHandler) {
		h.publishTimeout = d
	}
}

// WithMaxBody limits the request body size in bytes.
func WithMaxBody(n int64) GitHubOption {
	return func(h *GitHubHandler) {
		h.maxBody = n
	}
}

// WithDebugEvents logs every raw delivery at debug level.
func WithDebugEvents(enabled bool) GitHubOption {
	return func(h *GitHubHandler) {
		h.debugEvents = enabled
	}
}

// WithNormalizer replaces the default wall-clock normalizer.
func WithNormalizer(n events.Normalizer) GitHubOption {
	return func(h *GitHubHandler) {
		h.normalizer = n
	}
}

// NewGitHubHandler creates a new GitHubHandler.
func NewGitHubHandler(store storage.EventStore, logger zerolog.Logger, opts ...GitHubOption) (*GitHubHandler, error) {
	if store == nil {
		return nil, errors.New("event store is required")
	}
	h := &GitHubHandler{store: store, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// ServeHTTP handles an incoming HTTP request.
func (h *GitHubHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}

	reqID := requestID(gogithub.DeliveryID(r), r)
	w.Header().Set("X-Request-Id", reqID)
	logger := internal.WithRequestID(h.logger, reqID)
	eventName := gogithub.WebHookType(r)
	internal.IncRequest(eventLabel(eventName))

	defer func() {
		if rec := recover(); rec != nil {
			internal.IncWebhookError("panic")
			logger.Error().Interface("panic", rec).Str("event", eventName).Msg("webhook handler panic")
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
		}
	}()

	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		internal.IncWebhookError("payload")
		logger.Warn().Err(err).Msg("read body failed")
		writeError(w, http.StatusBadRequest, "No payload received")
		return
	}

	if h.debugEvents {
		logDebugEvent(logger, providerGitHub, eventName, rawBody)
	}

	rawObject, body, err := decodePayload(rawBody)
	if err != nil {
		internal.IncWebhookError("payload")
		logger.Warn().Err(err).Str("event", eventName).Msg("invalid payload")
		writeError(w, http.StatusBadRequest, "No payload received")
		return
	}

	record, err := h.normalizer.Normalize(eventName, body)
	if err != nil {
		internal.IncWebhookError("normalize")
		logger.Error().Err(err).Str("event", eventName).Msg("normalize failed")
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if record == nil {
		internal.IncIgnored(eventLabel(eventName))
		logger.Debug().Str("event", eventName).Msg("event ignored")
		writeStatus(w, "ignored")
		return
	}

	if err := h.store.InsertEvent(r.Context(), *record); err != nil {
		internal.IncWebhookError("store")
		logger.Error().Err(err).Str("event", eventName).Msg("store event failed")
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	internal.IncStored(string(record.Action))
	logger.Info().Str("event", eventName).Str("action", string(record.Action)).Msg("event stored")

	emit(r, logger, h.rules, h.publisher, h.publishTimeout, internal.Event{
		Provider:   providerGitHub,
		Name:       eventName,
		RequestID:  reqID,
		Record:     *record,
		RawPayload: rawBody,
		RawObject:  rawObject,
	})

	writeStatus(w, "success")
}
