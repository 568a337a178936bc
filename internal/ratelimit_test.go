package internal

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestRateLimiterAllow tests that a bucket empties and refills.
func TestRateLimiterAllow(t *testing.T) {
	limiter := newRateLimiter(1, 1, time.Minute)

	assert.True(t, limiter.allow("client"), "expected first request to be allowed")
	assert.False(t, limiter.allow("client"), "expected second request to be rate limited")
	assert.True(t, limiter.allow("other"), "expected other clients to have their own bucket")

	time.Sleep(1100 * time.Millisecond)

	assert.True(t, limiter.allow("client"), "expected request after refill to be allowed")
}

// TestRateLimiterSweep tests that idle buckets are dropped.
func TestRateLimiterSweep(t *testing.T) {
	limiter := newRateLimiter(1, 1, time.Millisecond)
	limiter.allow("client")

	time.Sleep(5 * time.Millisecond)
	limiter.allow("other")

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	assert.NotContains(t, limiter.store, "client")
	assert.Contains(t, limiter.store, "other")
}

// TestRateLimitHandler tests the 429 response and the disabled mode.
func TestRateLimitHandler(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	limited := NewRateLimitHandler(ok, 1, 1, time.Minute)
	first := httptest.NewRecorder()
	limited.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/webhook", nil))
	second := httptest.NewRecorder()
	limited.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/webhook", nil))
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	open := NewRateLimitHandler(ok, 0, 0, time.Minute)
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		open.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

// TestClientIP tests forwarded header precedence.
func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", clientIP(req))

	req.Header.Set("X-Real-Ip", "10.0.0.2")
	assert.Equal(t, "10.0.0.2", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.3")
	assert.Equal(t, "203.0.113.9", clientIP(req))
}
