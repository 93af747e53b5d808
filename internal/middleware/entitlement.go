package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hireloop/hireloop/internal/auth"
	"github.com/hireloop/hireloop/internal/billing"
)

// EntitlementResolver returns the current entitlements of a company.
type EntitlementResolver interface {
	Entitlements(ctx context.Context, companyID string) (*billing.Entitlements, error)
}

type entitlementsKey struct{}

// EntitlementsFromContext returns the entitlements resolved by RequireAccess.
func EntitlementsFromContext(ctx context.Context) *billing.Entitlements {
	e, _ := ctx.Value(entitlementsKey{}).(*billing.Entitlements)
	return e
}

// RequireAccess gates tenant routes on the subscription. Safe methods need
// read access and everything else needs write access. Platform keys pass
// through untouched. Must be applied after Auth.
func RequireAccess(logger *slog.Logger, resolver EntitlementResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := auth.AuthFromContext(r.Context())
			if authCtx == nil || authCtx.CompanyID == "" {
				next.ServeHTTP(w, r)
				return
			}

			ent, err := resolver.Entitlements(r.Context(), authCtx.CompanyID)
			if err != nil {
				logger.Error("resolve entitlements failed",
					slog.String("error", err.Error()),
					slog.String("company_id", authCtx.CompanyID),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to resolve subscription")
				return
			}

			allowed := ent.CanWrite()
			if isSafeMethod(r.Method) {
				allowed = ent.CanRead()
			}
			if !allowed {
				writeError(w, http.StatusPaymentRequired, "SUBSCRIPTION_INACTIVE",
					"Subscription is "+string(ent.Status)+"; this action is not available")
				return
			}

			ctx := context.WithValue(r.Context(), entitlementsKey{}, ent)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireFeature rejects requests when the plan lacks feature.
// Must be applied after RequireAccess.
func RequireFeature(feature string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ent := EntitlementsFromContext(r.Context())
			if ent == nil {
				// Platform keys carry no tenant entitlements.
				next.ServeHTTP(w, r)
				return
			}
			if !ent.HasFeature(feature) {
				writeError(w, http.StatusPaymentRequired, "FEATURE_NOT_AVAILABLE",
					"Your plan does not include "+feature)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
