package middleware

import (
	"net/http"

	"github.com/hireloop/hireloop/internal/auth"
	"github.com/hireloop/hireloop/internal/model"
)

// Route guards. Each runs after Auth.
var (
	RequireRead     = RequireScope(model.ScopeRead)
	RequireWrite    = RequireScope(model.ScopeWrite)
	RequireWebhook  = RequireScope(model.ScopeWebhook)
	RequireAdmin    = RequireScope(model.ScopeAdmin)
	RequirePlatform = RequireScope(model.ScopePlatform)

	// RequireTenant rejects platform keys on company routes.
	RequireTenant = guard("TENANT_REQUIRED", "This endpoint requires a company API key",
		func(c *model.AuthContext) bool { return c.CompanyID != "" })
)

// RequireScope admits callers holding scope. Tenant admin holds every
// tenant scope but never platform.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return guard("FORBIDDEN", "Insufficient permissions. Required scope: "+scope,
		func(c *model.AuthContext) bool { return c.HasScope(scope) })
}

// guard answers 401 without a caller and 403 with code when allow rejects.
func guard(code, message string, allow func(*model.AuthContext) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := auth.AuthFromContext(r.Context())
			switch {
			case caller == nil:
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
			case !allow(caller):
				writeError(w, http.StatusForbidden, code, message)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}
