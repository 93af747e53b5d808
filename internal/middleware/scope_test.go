package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hireloop/hireloop/internal/auth"
	"github.com/hireloop/hireloop/internal/model"
)

func TestGuards(t *testing.T) {
	tenant := func(scopes ...string) *model.AuthContext {
		return &model.AuthContext{KeyID: "key_1", CompanyID: "co_1", Scopes: scopes}
	}
	staff := &model.AuthContext{KeyID: "key_p", Scopes: []string{model.ScopePlatform}}

	tests := []struct {
		name       string
		guard      func(http.Handler) http.Handler
		caller     *model.AuthContext
		wantStatus int
		wantCode   string
	}{
		{"read with read", RequireRead, tenant(model.ScopeRead), http.StatusOK, ""},
		{"write with read", RequireWrite, tenant(model.ScopeRead), http.StatusForbidden, "FORBIDDEN"},
		{"write with write", RequireWrite, tenant(model.ScopeWrite), http.StatusOK, ""},
		{"admin implies write", RequireWrite, tenant(model.ScopeAdmin), http.StatusOK, ""},
		{"admin implies webhook", RequireWebhook, tenant(model.ScopeAdmin), http.StatusOK, ""},
		{"webhook needs webhook", RequireWebhook, tenant(model.ScopeRead, model.ScopeWrite), http.StatusForbidden, "FORBIDDEN"},
		{"admin with write", RequireAdmin, tenant(model.ScopeWrite), http.StatusForbidden, "FORBIDDEN"},
		{"tenant admin is not staff", RequirePlatform, tenant(model.ScopeAdmin), http.StatusForbidden, "FORBIDDEN"},
		{"staff on platform route", RequirePlatform, staff, http.StatusOK, ""},
		{"staff on tenant route", RequireTenant, staff, http.StatusForbidden, "TENANT_REQUIRED"},
		{"tenant on tenant route", RequireTenant, tenant(model.ScopeRead), http.StatusOK, ""},
		{"anonymous", RequireRead, nil, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"anonymous tenant route", RequireTenant, nil, http.StatusUnauthorized, "UNAUTHORIZED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
			if tt.caller != nil {
				req = req.WithContext(auth.ContextWithAuth(req.Context(), tt.caller))
			}
			rec := httptest.NewRecorder()
			tt.guard(okHandler).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantCode != "" {
				if got := decodeCode(t, rec); got != tt.wantCode {
					t.Errorf("code = %q, want %q", got, tt.wantCode)
				}
			}
		})
	}
}
