package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiterRefills(t *testing.T) {
	now := time.Date(2026, 2, 9, 8, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 2)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "keys have separate buckets")

	now = now.Add(1500 * time.Millisecond)
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
}

func TestRateLimiterSweepsIdleBuckets(t *testing.T) {
	now := time.Date(2026, 2, 9, 8, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 1)
	rl.now = func() time.Time { return now }

	rl.Allow("a")
	now = now.Add(limiterIdleAfter + time.Minute)
	rl.Allow("b")

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.limiters, "a")
	assert.Contains(t, rl.limiters, "b")
}

func TestRateLimitMiddlewareKeysByTenant(t *testing.T) {
	r := chi.NewRouter()
	r.With(RateLimit(0.001, 1)).Post("/webhooks/{tenantID}/messages", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	send := func(tenant string) int {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/"+tenant+"/messages", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusAccepted, send("t1"))
	assert.Equal(t, http.StatusTooManyRequests, send("t1"))
	assert.Equal(t, http.StatusAccepted, send("t2"))
}

func TestRateLimiterReportsWaitUntilNextToken(t *testing.T) {
	now := time.Date(2026, 2, 9, 8, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(0.25, 1)
	rl.now = func() time.Time { return now }

	ok, wait := rl.reserve("a")
	assert.True(t, ok)
	assert.Zero(t, wait)

	ok, wait = rl.reserve("a")
	assert.False(t, ok)
	assert.Equal(t, 4*time.Second, wait)
	assert.Equal(t, "4", retryAfter(wait))

	now = now.Add(time.Second)
	ok, wait = rl.reserve("a")
	assert.False(t, ok, "a rejected request does not consume the refill")
	assert.Equal(t, 3*time.Second, wait)

	now = now.Add(3 * time.Second)
	assert.True(t, rl.Allow("a"))
}

func TestRateLimitMiddlewareSetsRetryAfter(t *testing.T) {
	r := chi.NewRouter()
	r.With(RateLimit(0.5, 1)).Post("/webhooks/{tenantID}/messages", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/t1/messages", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusAccepted, send().Code)
	rec := send()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
}
