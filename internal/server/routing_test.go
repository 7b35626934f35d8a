package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	salonmw "github.com/salonbook/salonapi/internal/middleware"
	"github.com/salonbook/salonapi/internal/respond"
)

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	ts := newTestServer(t)

	res := ts.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, res.Status)
	assert.Equal(t, "application/json", res.Header.Get("Content-Type"))
	assert.Equal(t, false, res.Body["success"])
	assert.Equal(t, "route not found", res.Body["message"])
}

func TestWrongMethodUsesEnvelope(t *testing.T) {
	ts := newTestServer(t)

	res := ts.do(t, http.MethodDelete, "/auth/login", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, res.Status)
	assert.Equal(t, "application/json", res.Header.Get("Content-Type"))
	assert.Equal(t, false, res.Body["success"])
	assert.Equal(t, "method not allowed", res.Body["message"])
}

// limitedServer mounts a one-request-per-minute limiter backed by miniredis.
func limitedServer(t *testing.T, trustProxy bool) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ts := newTestServer(t, func(o *RouterOptions) {
		o.RateLimiter = salonmw.NewRateLimiter(client, 1, time.Minute, "test", respond.New(false, nil), nil)
		o.TrustProxyHeaders = trustProxy
	})
	return ts.handler
}

func guestFrom(h http.Handler, peer string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth/guest", nil)
	req.RemoteAddr = peer
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitIgnoresSpoofedForwardingHeaders(t *testing.T) {
	h := limitedServer(t, false)

	spoofed := []map[string]string{
		{"X-Real-IP": "198.51.100.1"},
		{"X-Forwarded-For": "198.51.100.2"},
		{"True-Client-IP": "198.51.100.3"},
		{"X-Real-IP": "198.51.100.4"},
	}

	assert.Equal(t, http.StatusCreated, guestFrom(h, "203.0.113.9:4000", nil).Code)
	for _, headers := range spoofed {
		rec := guestFrom(h, "203.0.113.9:4000", headers)
		require.Equal(t, http.StatusTooManyRequests, rec.Code, "headers %v", headers)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, false, body["success"])
	}
}

func TestRateLimitHonoursProxyHeadersWhenTrusted(t *testing.T) {
	h := limitedServer(t, true)

	assert.Equal(t, http.StatusCreated, guestFrom(h, "10.0.0.2:4000", map[string]string{"X-Real-IP": "198.51.100.1"}).Code)
	assert.Equal(t, http.StatusCreated, guestFrom(h, "10.0.0.2:4000", map[string]string{"X-Real-IP": "198.51.100.2"}).Code)
	assert.Equal(t, http.StatusTooManyRequests, guestFrom(h, "10.0.0.2:4000", map[string]string{"X-Real-IP": "198.51.100.1"}).Code)
}
