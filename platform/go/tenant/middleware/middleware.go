package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	platformauth "github.com/quillbooks/quillbooks-core/platform/go/auth"
	platformlogging "github.com/quillbooks/quillbooks-core/platform/go/logging"
	"github.com/quillbooks/quillbooks-core/platform/go/tenant"
)

// WithTenant resolves the active tenant for each request (parameter, header,
// cookie, identity claim, configured default, in that order) and attaches the
// resolution to the context. Requests with no resolvable tenant are rejected
// with a 400; resolution failure is a client problem, never a server one.
func WithTenant(resolver tenant.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := map[string]string{}
			if creds, ok := platformauth.UserFromContext(r.Context()); ok && creds != nil && creds.TenantID != nil {
				claims[tenant.ClaimName] = *creds.TenantID
			}

			tc, err := resolver.Resolve(r, claims)
			if err != nil {
				if logger := platformlogging.FromRequest(r, nil); logger != nil && !errors.Is(err, tenant.ErrNoTenant) {
					logger.Error("resolve tenant", zap.Error(err))
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]interface{}{
					"success": false,
					"error":   "NO_TENANT",
					"message": "no tenant identifier supplied with the request",
				})
				return
			}

			if logger := platformlogging.FromRequest(r, nil); logger != nil {
				logger = logger.With(
					zap.String("tenant_id", tc.TenantID.String()),
					zap.String("tenant_source", string(tc.ResolvedFrom)),
				)
				r = r.WithContext(platformlogging.WithLogger(r.Context(), logger))
			}

			next.ServeHTTP(w, r.WithContext(tenant.IntoContext(r.Context(), tc)))
		})
	}
}
