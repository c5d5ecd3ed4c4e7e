package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/require"
)

func ok(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	w.WriteHeader(http.StatusOK)
}

func TestRateLimiterAllowsUpToLimitThenRejects(t *testing.T) {
	rl := NewRateLimiter()
	handle := rl.Limit(ok)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.RemoteAddr = "203.0.113.5:1234"

	for i := 0; i < rateLimitRequests; i++ {
		rec := httptest.NewRecorder()
		handle(rec, req, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	handle(rec, req, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRateLimiterTracksClientsIndependently(t *testing.T) {
	rl := NewRateLimiter()
	handle := rl.Limit(ok)

	reqA := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	reqA.RemoteAddr = "203.0.113.1:1"
	reqB := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	reqB.RemoteAddr = "203.0.113.2:1"

	for i := 0; i < rateLimitRequests; i++ {
		rec := httptest.NewRecorder()
		handle(rec, reqA, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	handle(rec, reqB, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
