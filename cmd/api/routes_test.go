package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hireloop/hireloop/internal/config"
)

// newTestRouter builds the production router without backing services.
// Only routes that never reach a service are safe to call.
func newTestRouter() *chi.Mux {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return setupRouter(services{}, nil, nil, nil, nil, &config.Config{MaxRequestBodySize: 1 << 20}, logger)
}

func TestSetupRouter_RegistersRoutes(t *testing.T) {
	routes := make(map[string]bool)
	err := chi.Walk(newTestRouter(), func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes[method+" "+strings.TrimSuffix(route, "/")] = true
		return nil
	})
	if err != nil {
		t.Fatalf("walk routes: %v", err)
	}

	want := []string{
		"GET /healthz",
		"GET /readyz",
		"GET /metrics",
		"POST /webhooks/payments",
		"POST /api/v1/signup",
		"POST /api/v1/invitations/accept",
		"GET /api/v1/careers/{slug}/jobs",
		"GET /api/v1/careers/{slug}/jobs/{jobID}",
		"POST /api/v1/careers/{slug}/jobs/{jobID}/apply",
		"GET /api/v1/jobs",
		"POST /api/v1/jobs/{id}/publish",
		"GET /api/v1/jobs/{id}/stats",
		"POST /api/v1/applications/{id}/rescore",
		"GET /api/v1/talent",
		"GET /api/v1/billing/subscription",
		"POST /api/v1/billing/change-plan",
		"POST /api/v1/tickets",
		"GET /api/v1/calendar/events",
		"PUT /api/v1/tasks/{id}/completed",
		"GET /api/v1/webhooks/event-types",
		"POST /api/v1/webhooks/{id}/rotate-secret",
		"POST /api/v1/admin/companies/{companyID}/subscription/actions",
		"POST /api/v1/admin/sweep",
	}
	for _, route := range want {
		if !routes[route] {
			t.Errorf("route %s is not registered", route)
		}
	}
}

func TestSetupRouter_Healthz(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("request ID middleware did not run")
	}
}

func TestSetupRouter_NotFound(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != "NOT_FOUND" {
		t.Errorf("code = %q, want NOT_FOUND", body.Code)
	}
}

func TestScrub(t *testing.T) {
	dsn := "postgres://hireloop:s3cret@db:5432/hireloop"
	secrets := scrubber{dsn, ""}
	err := errors.New("dial " + dsn + " failed: password=s3cret rejected")

	got := secrets.scrub(err)
	if strings.Contains(got, "s3cret") {
		t.Errorf("secret leaked: %s", got)
	}
	if !strings.Contains(got, "postgres://hireloop@db:5432/hireloop") {
		t.Errorf("expected redacted URL in %q", got)
	}
	if secrets.scrub(nil) != "" {
		t.Error("nil error should scrub to empty string")
	}
}

func TestWithoutPassword(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"redis://:pw@cache:6379/0", "redis://redacted@cache:6379/0"},
		{"postgres://user:pw@db/app", "postgres://user@db/app"},
		{"postgres://db/app", "postgres://db/app"},
	}
	for _, tt := range tests {
		if got := withoutPassword(tt.in); got != tt.want {
			t.Errorf("withoutPassword(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	var buf strings.Builder
	logger := newLogger(&buf, "warn", "json")
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line logged at warn level: %s", out)
	}
	var line map[string]any
	if err := json.Unmarshal([]byte(out), &line); err != nil {
		t.Fatalf("expected one JSON line, got %q: %v", out, err)
	}
	if line["msg"] != "shown" || line["k"] != "v" {
		t.Errorf("line = %v", line)
	}

	if newLogger(io.Discard, "bogus", "text").Enabled(context.Background(), slog.LevelDebug) {
		t.Error("unknown level should fall back to info")
	}
}
