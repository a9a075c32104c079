// Package middleware provides HTTP middleware for Switchyard.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/switchyard-ai/switchyard/internal/logger"
)

const headerRequestID = "X-Request-ID"

// maxRequestIDLen caps inbound IDs so a hostile client cannot bloat every
// log line of the request.
const maxRequestIDLen = 64

// RequestID is HTTP middleware that adopts the caller's X-Request-ID or
// mints a fresh UUID. The ID rides the request context for log correlation
// and is echoed on the response header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}

		ctx := logger.WithRequestID(r.Context(), id)
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
