package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestClerkAuthMiddleware_RejectsMissingOrMalformedHeader(t *testing.T) {
	h := ClerkAuthMiddleware(zaptest.NewLogger(t))(okHandler)

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"no bearer prefix", "Token abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/user/profile", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), "error")
		})
	}
}

func TestGetClerkID(t *testing.T) {
	_, ok := GetClerkID(context.Background())
	assert.False(t, ok)

	_, ok = GetClerkID(context.WithValue(context.Background(), ClerkIDKey, ""))
	assert.False(t, ok)

	id, ok := GetClerkID(context.WithValue(context.Background(), ClerkIDKey, "user_1"))
	assert.True(t, ok)
	assert.Equal(t, "user_1", id)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	h := rl.Middleware(okHandler)

	call := func(ip string) int {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = ip + ":1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1"))
	assert.Equal(t, http.StatusOK, call("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1"))
	assert.Equal(t, http.StatusOK, call("10.0.0.2"))

	rl.evict(time.Now().Add(visitorTTL + time.Second))
	assert.Empty(t, rl.visitors)
}

func TestClientIP_PrefersFirstForwardedAddress(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", clientIP(req))
}

func TestBasicAuthMiddleware(t *testing.T) {
	h := BasicAuthMiddleware("ops", "s3cret")(okHandler)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req.SetBasicAuth("ops", "s3cret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	closed := BasicAuthMiddleware("", "")(okHandler)
	req = httptest.NewRequest("GET", "/metrics", nil)
	req.SetBasicAuth("", "")
	rec = httptest.NewRecorder()
	closed.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPprofSecurityMiddleware(t *testing.T) {
	h := PprofSecurityMiddleware("pp")(okHandler)

	req := httptest.NewRequest("GET", "/debug/pprof/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req.Header.Set("X-Pprof-Secret", "pp")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
