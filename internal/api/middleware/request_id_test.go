package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestRequestIDGenerated(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if _, err := uuid.Parse(seen); err != nil {
		t.Fatalf("expected uuid request id, got %q", seen)
	}
	if rr.Header().Get("X-Request-ID") != seen {
		t.Fatalf("response header %q does not match context %q", rr.Header().Get("X-Request-ID"), seen)
	}
}

func TestRequestIDPreserved(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc123")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if seen != "abc123" {
		t.Fatalf("expected client request id, got %q", seen)
	}
}

func TestOwner(t *testing.T) {
	var seen string
	h := Owner(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetOwnerID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Owner-ID", "user-7")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if seen != "user-7" {
		t.Fatalf("owner = %q, want user-7", seen)
	}
}
