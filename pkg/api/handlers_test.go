package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"gitevents/pkg/events"
	"gitevents/pkg/storage"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStore struct {
	records   []events.Record
	err       error
	lastLimit int
}

func (s *stubStore) InsertEvent(ctx context.Context, record events.Record) error { return nil }

func (s *stubStore) RecentEvents(ctx context.Context, limit int) ([]events.Record, error) {
	s.lastLimit = limit
	return s.records, s.err
}

func (s *stubStore) Close() error { return nil }

func strPtr(value string) *string {
	return &value
}

// TestHealthHandler tests the liveness body.
func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthHandler{}.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	HealthHandler{}.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// TestEventsHandler tests the listing body and the default window.
func TestEventsHandler(t *testing.T) {
	store := &stubStore{records: []events.Record{{
		RequestID:  strPtr("abc123"),
		Author:     strPtr("alice"),
		Action:     events.ActionPush,
		FromBranch: strPtr(""),
		ToBranch:   strPtr("main"),
		Timestamp:  nil,
	}}}
	handler := &EventsHandler{Store: store, Logger: zerolog.Nop()}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, storage.DefaultRecentLimit, store.lastLimit)
	assert.JSONEq(t, `[{"request_id":"abc123","author":"alice","action":"PUSH","from_branch":"","to_branch":"main","timestamp":null}]`, rec.Body.String())
}

// TestEventsHandlerEmpty tests that an empty store lists as [] rather than null.
func TestEventsHandlerEmpty(t *testing.T) {
	handler := &EventsHandler{Store: &stubStore{}, Limit: 5, Logger: zerolog.Nop()}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body []events.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotNil(t, body)
	assert.Empty(t, body)
}

// TestEventsHandlerErrors tests storage failures and unsupported methods.
func TestEventsHandlerErrors(t *testing.T) {
	handler := &EventsHandler{Store: &stubStore{err: errors.New("db down")}, Logger: zerolog.Nop()}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db down")

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/events", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	(&EventsHandler{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
