package httpmw

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequestIDGenerates(t *testing.T) {
	var seen string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	})

	rec := httptest.NewRecorder()
	RequestID("")(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if seen == "" {
		t.Fatal("no request ID in context")
	}
	if got := rec.Header().Get("X-Request-Id"); got != seen {
		t.Errorf("response header = %q, context = %q", got, seen)
	}
	if len(seen) != 32 {
		t.Errorf("id length = %d, want 32 hex chars", len(seen))
	}
}

func TestRequestIDPropagates(t *testing.T) {
	var seen string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set("X-Request-Id", "upstream-id")
	rec := httptest.NewRecorder()
	RequestID("")(h).ServeHTTP(rec, req)

	if seen != "upstream-id" {
		t.Errorf("context id = %q, want %q", seen, "upstream-id")
	}
	if got := rec.Header().Get("X-Request-Id"); got != "upstream-id" {
		t.Errorf("response header = %q, want %q", got, "upstream-id")
	}
}

func TestRequestIDCustomHeader(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	RequestID("X-Correlation-Id")(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if rec.Header().Get("X-Correlation-Id") == "" {
		t.Error("custom header not set")
	}
}
