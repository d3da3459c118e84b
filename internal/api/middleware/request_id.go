package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey ContextKey = "request_id"
	// OwnerIDKey is the context key for the caller's owner id
	OwnerIDKey ContextKey = "owner_id"
)

// RequestID adds a request ID to each request, reusing a client supplied
// X-Request-ID when present. The ID is echoed in the response headers and
// stored in the request context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Owner stores the X-Owner-ID header in the request context. Scans created
// and listed by a request are scoped to that owner.
func Owner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), OwnerIDKey, r.Header.Get("X-Owner-ID"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request ID from the context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// GetOwnerID retrieves the owner id from the context, "" when unscoped.
func GetOwnerID(ctx context.Context) string {
	if id, ok := ctx.Value(OwnerIDKey).(string); ok {
		return id
	}
	return ""
}
