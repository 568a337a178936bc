package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"gitevents/internal"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var errEmptyPayload = errors.New("no payload received")

// decodeObject parses raw as a non-empty JSON object.
func decodeObject(raw []byte) (map[string]interface{}, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, errEmptyPayload
	}
	var object map[string]interface{}
	if err := json.Unmarshal(raw, &object); err != nil {
		return nil, err
	}
	if len(object) == 0 {
		return nil, errEmptyPayload
	}
	return object, nil
}

// decodePayload parses raw once for rules and re-encodes the same object for
// the normalizer, so both see the last value of a duplicated key. Numbers are
// kept as written.
func decodePayload(raw []byte) (map[string]interface{}, []byte, error) {
	object, err := decodeObject(raw)
	if err != nil {
		return nil, nil, err
	}
	var exact map[string]interface{}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&exact); err != nil {
		return nil, nil, err
	}
	body, err := json.Marshal(exact)
	if err != nil {
		return nil, nil, err
	}
	return object, body, nil
}

// requestID prefers the provider delivery id, then a caller-supplied
// X-Request-Id, then a fresh uuid.
func requestID(deliveryID string, r *http.Request) string {
	if id := strings.TrimSpace(deliveryID); id != "" {
		return id
	}
	if id := strings.TrimSpace(r.Header.Get("X-Request-Id")); id != "" {
		return id
	}
	return uuid.NewString()
}

// eventLabel bounds metric label cardinality to the events this service knows.
func eventLabel(name string) string {
	switch name {
	case "push", "pull_request", "ping":
		return name
	default:
		return "other"
	}
}

func logDebugEvent(logger zerolog.Logger, provider, name string, raw []byte) {
	logger.Debug().
		Str("provider", provider).
		Str("event", name).
		RawJSON("payload", raw).
		Msg("webhook payload")
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeStatus(w http.ResponseWriter, status string) {
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

// emit publishes the event on every matched topic. Failures are logged and
// counted; they never fail the delivery.
func emit(r *http.Request, logger zerolog.Logger, rules *internal.RuleEngine, publisher internal.Publisher, timeout time.Duration, event internal.Event) {
	if rules == nil || publisher == nil {
		return
	}
	matches := rules.EvaluateWithLogger(event, logger)
	if len(matches) == 0 {
		return
	}
	topics := make([]string, 0, len(matches))
	for _, match := range matches {
		topics = append(topics, match.Topic)
	}
	logger.Debug().Strs("topics", topics).Msg("rules matched")

	ctx := r.Context()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	for _, match := range matches {
		if err := publisher.PublishForDrivers(ctx, match.Topic, event, match.Drivers); err != nil {
			logger.Warn().Err(err).Str("topic", match.Topic).Msg("publish failed")
		}
	}
}
