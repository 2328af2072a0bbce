package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareHeadersAndRejection(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(0, WithMemoryClock(clock.Now))
	defer store.Close()
	l := NewLimiter("api", Rule{Max: 2, Window: 90 * time.Second, Message: "API rate limit exceeded, please slow down"}, store, WithLimiterClock(clock.Now))

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(Middleware(l, nil))
	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	call := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("X-Forwarded-For", ip)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	resetEpoch := strconv.FormatInt(clock.Now().Add(90*time.Second).Unix(), 10)

	rec := call("198.51.100.7")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "2", rec.Header().Get(HeaderLimit))
	require.Equal(t, "1", rec.Header().Get(HeaderRemaining))
	require.Equal(t, resetEpoch, rec.Header().Get(HeaderReset))
	require.Empty(t, rec.Header().Get(HeaderRetryAfter))

	rec = call("198.51.100.7")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "0", rec.Header().Get(HeaderRemaining))

	clock.Advance(30*time.Second + 200*time.Millisecond)
	rec = call("198.51.100.7")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "0", rec.Header().Get(HeaderRemaining))
	require.Equal(t, "60", rec.Header().Get(HeaderRetryAfter), "Retry-After 無條件進位")

	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.False(t, body.Success)
	require.Equal(t, "RATE_LIMITED", body.Error.Code)
	require.Equal(t, "API rate limit exceeded, please slow down", body.Error.Message)

	rec = call("198.51.100.8")
	require.Equal(t, http.StatusNoContent, rec.Code, "不同 IP 各自計數")
}
