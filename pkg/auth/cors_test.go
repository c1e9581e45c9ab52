package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func corsRequest(t *testing.T, handler http.Handler, method, origin string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, "/", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestCORS_AllowlistedOrigin(t *testing.T) {
	handler := CORSMiddleware([]string{"https://app.example.com"})(okHandler())

	rr := corsRequest(t, handler, http.MethodGet, "https://app.example.com")
	assert.Equal(t, "https://app.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rr.Header().Values("Vary"), "Origin")
}

func TestCORS_UnlistedOriginGetsNoAllowHeader(t *testing.T) {
	handler := CORSMiddleware([]string{"https://app.example.com"})(okHandler())

	rr := corsRequest(t, handler, http.MethodGet, "https://evil.example.com")
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestCORS_EmptyListAllowsAll(t *testing.T) {
	handler := CORSMiddleware(nil)(okHandler())

	rr := corsRequest(t, handler, http.MethodGet, "http://localhost:3000")
	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_Preflight(t *testing.T) {
	handler := CORSMiddleware([]string{"https://app.example.com"})(okHandler())

	rr := corsRequest(t, handler, http.MethodOptions, "https://app.example.com")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Headers"), "Idempotency-Key")
}

func TestRequestID_SanitizesClientValue(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "trace-123_abc")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, "trace-123_abc", seen)
	assert.Equal(t, "trace-123_abc", rr.Header().Get("X-Request-ID"))

	// Ids with header-breaking characters are replaced, not echoed.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "bad\tvalue; injection")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.NotEqual(t, "bad\tvalue; injection", rr.Header().Get("X-Request-ID"))
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}
