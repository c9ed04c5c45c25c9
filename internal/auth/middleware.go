package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/af-corp/quieter-gateway/internal/httputil"
)

const usage = "Use: Authorization: Bearer <api-key>"

// bearerToken extracts the key from an Authorization header. On failure it
// returns the message shown to the client.
func bearerToken(header string) (token, problem string) {
	if header == "" {
		return "", "Missing Authorization header. " + usage
	}
	scheme, rest, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", "Invalid Authorization format. " + usage
	}
	token = strings.TrimSpace(rest)
	if token == "" {
		return "", "Empty API key"
	}
	return token, ""
}

// Middleware resolves the bearer key to a tenant and stores it on the request
// context. Only the key hash is sent to the store; logs carry the prefix.
func Middleware(store TenantStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := w.Header().Get("X-Request-ID")

			token, problem := bearerToken(r.Header.Get("Authorization"))
			if problem != "" {
				httputil.Write(w, reqID, httputil.ErrAuth, problem)
				return
			}
			prefix := KeyPrefix(token)

			tenant, err := store.Lookup(r.Context(), HashKey(token))
			switch {
			case err != nil:
				slog.Error("tenant lookup failed", "request_id", reqID, "key_prefix", prefix, "error", err)
				httputil.Write(w, reqID, httputil.ErrInternal, "Internal error during authentication")
				return
			case tenant == nil:
				slog.Warn("unknown api key", "request_id", reqID, "key_prefix", prefix)
				httputil.Write(w, reqID, httputil.ErrAuth, "Invalid API key")
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithAuth(r.Context(), &AuthInfo{
				TenantID:             tenant.ID,
				TenantName:           tenant.Name,
				Plan:                 tenant.Plan,
				KeyPrefix:            prefix,
				RPMLimit:             tenant.RPMLimit,
				DailySpendLimitCents: tenant.DailySpendLimitCents,
			})))
		})
	}
}
