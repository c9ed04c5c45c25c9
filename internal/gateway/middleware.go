package gateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type requestIDKey struct{}

// maxClientRequestID bounds the client-supplied id that is echoed in logs.
const maxClientRequestID = 128

// RequestID assigns every request a server-generated id, sets it as the
// X-Request-ID response header and stores it in the context. The id is the
// usage ledger's idempotency key, so a client-supplied X-Request-ID is only
// logged, never reused.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := generateRequestID()
		if client := r.Header.Get("X-Request-ID"); client != "" {
			if len(client) > maxClientRequestID {
				client = client[:maxClientRequestID]
			}
			slog.Debug("client request id", "request_id", reqID, "client_request_id", client)
		}
		w.Header().Set("X-Request-ID", reqID)
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFromContext returns the id set by RequestID.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// generateRequestID returns req_<unix millis>_<16 hex chars>.
func generateRequestID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return "req_" + strconv.FormatInt(time.Now().UnixMilli(), 10) + "_" + hex.EncodeToString(b[:])
}

var (
	allowHeaders  = strings.Join([]string{"Authorization", "Content-Type", "X-Request-ID"}, ", ")
	exposeHeaders = strings.Join([]string{
		"X-Request-ID",
		"X-RateLimit-Limit-Requests",
		"X-RateLimit-Remaining-Requests",
		"X-RateLimit-Reset-Requests",
		"Retry-After",
	}, ", ")
)

// CORS allows browser clients from origin. An empty origin disables the headers.
func CORS(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Headers", allowHeaders)
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Expose-Headers", exposeHeaders)
			if origin != "*" {
				h.Add("Vary", "Origin")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
