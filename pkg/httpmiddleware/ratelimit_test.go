package httpmiddleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func newTestLimiter(max int, window time.Duration) (*limiter, *time.Time) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newLimiter(RateLimitConfig{Max: max, Window: window})
	l.now = func() time.Time { return now }
	return l, &now
}

func get(h http.Handler, remote string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.RemoteAddr = remote
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_Burst(t *testing.T) {
	l, _ := newTestLimiter(5, time.Minute)
	h := l.middleware(okHandler())

	for i := range 5 {
		w := get(h, "192.168.1.1:12345", nil)
		assert.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
	}

	w := get(h, "192.168.1.1:12345", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "12", w.Header().Get("Retry-After"))

	var body struct {
		Code int    `json:"code"`
		Kind string `json:"kind"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, http.StatusTooManyRequests, body.Code)
	assert.Equal(t, "rate_limited", body.Kind)
}

func TestRateLimit_Refills(t *testing.T) {
	l, now := newTestLimiter(2, time.Minute)
	h := l.middleware(okHandler())

	require.Equal(t, http.StatusOK, get(h, "10.0.0.1:1", nil).Code)
	require.Equal(t, http.StatusOK, get(h, "10.0.0.1:1", nil).Code)
	require.Equal(t, http.StatusTooManyRequests, get(h, "10.0.0.1:1", nil).Code)

	*now = now.Add(30 * time.Second)
	assert.Equal(t, http.StatusOK, get(h, "10.0.0.1:1", nil).Code)
}

func TestRateLimit_SeparateKeys(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)
	h := l.middleware(okHandler())

	assert.Equal(t, http.StatusOK, get(h, "10.0.0.1:1", nil).Code)
	assert.Equal(t, http.StatusOK, get(h, "10.0.0.2:1", nil).Code)
	// Same IP, but a credential gets its own bucket.
	assert.Equal(t, http.StatusOK, get(h, "10.0.0.1:1", map[string]string{"api_key": "k1"}).Code)
	assert.Equal(t, http.StatusTooManyRequests, get(h, "10.0.0.1:1", map[string]string{"api_key": "k1"}).Code)
}

func TestRateLimit_Evict(t *testing.T) {
	l, now := newTestLimiter(1, time.Minute)
	h := l.middleware(okHandler())
	get(h, "10.0.0.1:1", nil)
	require.Len(t, l.buckets, 1)

	l.evict(now.Add(time.Second))
	assert.Empty(t, l.buckets)
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{name: "remote addr", remote: "10.0.0.1:5555", want: "ip:10.0.0.1"},
		{name: "forwarded for", remote: "10.0.0.1:5555", headers: map[string]string{"X-Forwarded-For": "1.2.3.4, 10.0.0.1"}, want: "ip:1.2.3.4"},
		{name: "real ip", remote: "10.0.0.1:5555", headers: map[string]string{"X-Real-IP": "5.6.7.8"}, want: "ip:5.6.7.8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientKey(req))
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc")
	assert.Contains(t, ClientKey(req), "cred:")
}
