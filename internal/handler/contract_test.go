package handler

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/go-chi/chi/v5"

	"github.com/hireloop/hireloop/internal/billing"
	"github.com/hireloop/hireloop/internal/metrics"
	"github.com/hireloop/hireloop/internal/model"
	"github.com/hireloop/hireloop/internal/service"
	"github.com/hireloop/hireloop/internal/testutil"
)

// loadSpec loads and validates docs/api/openapi.yaml.
func loadSpec(t *testing.T) (*openapi3.T, routers.Router) {
	t.Helper()

	root, err := testutil.ProjectRoot()
	if err != nil {
		t.Fatalf("project root: %v", err)
	}
	path := filepath.Join(root, "docs", "api", "openapi.yaml")

	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromFile(path)
	if err != nil {
		t.Fatalf("Failed to load OpenAPI document from %s: %v", path, err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		t.Fatalf("OpenAPI document validation failed: %v", err)
	}

	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		t.Fatalf("Failed to create router from document: %v", err)
	}
	return doc, router
}

type contractJobs struct {
	JobService
}

func (contractJobs) JobStats(_ context.Context, _, jobID string, from, to time.Time) (*model.JobStats, error) {
	if jobID != "job_1" {
		return nil, service.ErrJobNotFound
	}
	stats := &model.JobStats{
		JobID:     jobID,
		Daily:     []model.DailyViewPoint{{Date: from.Format(time.DateOnly), Views: 3, UniqueVisitors: 2}},
		Sources:   []model.CountBreakdown{{Key: "careers_page", Count: 3}},
		Referrers: []model.CountBreakdown{},
	}
	stats.Period.From = from.Format(time.DateOnly)
	stats.Period.To = to.Format(time.DateOnly)
	stats.Summary.Views = 3
	stats.Summary.UniqueVisitors = 2
	stats.Summary.Applications = 1
	stats.Summary.ConversionRate = 0.5
	return stats, nil
}

// contractRouter mounts the documented handlers on fakes the same way
// cmd/api does.
func contractRouter(payments *fakePaymentEvents) http.Handler {
	careers := newCareersFixture()
	careersHandler := NewCareersHandler(careers, careers, careers, discardLogger())
	health := NewHealthHandler(Dependency{"postgres", stubPinger{}}, Dependency{"redis", stubPinger{}})
	tenancy := NewTenancyHandler(&fakeTenancy{}, discardLogger())
	jobs := NewJobHandler(contractJobs{}, discardLogger())
	webhook := NewPaymentWebhookHandler(payments, testPaymentSecret, 5*time.Minute, metrics.NewNoop(), discardLogger())

	r := chi.NewRouter()
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)
	r.Post("/webhooks/payments", webhook.Receive)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/signup", tenancy.Signup)
		r.Route("/careers/{slug}", func(r chi.Router) {
			r.Get("/jobs", careersHandler.ListJobs)
			r.Get("/jobs/{jobID}", careersHandler.GetJob)
			r.Post("/jobs/{jobID}/apply", careersHandler.Apply)
		})
		r.With(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, asCaller(req, "co_1", "usr_1", model.ScopeRead))
			})
		}).Get("/jobs/{id}/stats", jobs.Stats)
	})
	return r
}

func TestOpenAPISpecValid(t *testing.T) {
	doc, _ := loadSpec(t)

	expectedPaths := []string{
		"/healthz",
		"/readyz",
		"/api/v1/signup",
		"/api/v1/careers/{slug}/jobs",
		"/api/v1/careers/{slug}/jobs/{jobID}",
		"/api/v1/careers/{slug}/jobs/{jobID}/apply",
		"/api/v1/jobs/{id}/stats",
		"/webhooks/payments",
	}
	for _, path := range expectedPaths {
		if doc.Paths.Find(path) == nil {
			t.Errorf("Expected path %s not found in document", path)
		}
	}
}

func TestResponsesMatchContract(t *testing.T) {
	_, router := loadSpec(t)

	validEvent := `{"id":"evt_1","type":"invoice.paid","created":1760000000,"data":{"company_id":"co_1"}}`

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		header     map[string]string
		wantStatus int
	}{
		{"healthz", http.MethodGet, "/healthz", "", nil, http.StatusOK},
		{"readyz", http.MethodGet, "/readyz", "", nil, http.StatusOK},
		{"signup", http.MethodPost, "/api/v1/signup",
			`{"company_name":"Acme","owner_email":"owner@acme.test"}`, nil, http.StatusCreated},
		{"signup invalid", http.MethodPost, "/api/v1/signup", `{"company_name":""}`, nil, http.StatusBadRequest},
		{"careers list", http.MethodGet, "/api/v1/careers/acme/jobs", "", nil, http.StatusOK},
		{"careers unknown company", http.MethodGet, "/api/v1/careers/nope/jobs", "", nil, http.StatusNotFound},
		{"careers job", http.MethodGet, "/api/v1/careers/acme/jobs/job_1", "", nil, http.StatusOK},
		{"careers job missing", http.MethodGet, "/api/v1/careers/acme/jobs/job_9", "", nil, http.StatusNotFound},
		{"apply", http.MethodPost, "/api/v1/careers/acme/jobs/job_1/apply",
			`{"email":"ada@example.com","full_name":"Ada Lovelace"}`, nil, http.StatusCreated},
		{"job stats", http.MethodGet, "/api/v1/jobs/job_1/stats?from=2026-03-01&to=2026-03-02", "", nil, http.StatusOK},
		{"job stats bad date", http.MethodGet, "/api/v1/jobs/job_1/stats?from=March", "", nil, http.StatusBadRequest},
		{"payment processed", http.MethodPost, "/webhooks/payments", validEvent,
			map[string]string{billing.SignatureHeader: billing.SignPayload(testPaymentSecret, []byte(validEvent), time.Now())},
			http.StatusOK},
		{"payment bad signature", http.MethodPost, "/webhooks/payments", validEvent,
			map[string]string{billing.SignatureHeader: "t=1,v1=00"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := contractRouter(&fakePaymentEvents{outcome: service.OutcomeProcessed})

			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}

			// The recorded request body has been consumed; route lookup only
			// needs the method and URL.
			lookup := httptest.NewRequest(tt.method, tt.path, nil)
			route, pathParams, err := router.FindRoute(lookup)
			if err != nil {
				t.Fatalf("Could not find route in document: %v", err)
			}

			input := &openapi3filter.ResponseValidationInput{
				RequestValidationInput: &openapi3filter.RequestValidationInput{
					Request:    lookup,
					PathParams: pathParams,
					Route:      route,
				},
				Status: rec.Code,
				Header: rec.Header(),
				Body:   io.NopCloser(bytes.NewReader(rec.Body.Bytes())),
			}
			if err := openapi3filter.ValidateResponse(context.Background(), input); err != nil {
				t.Errorf("Response validation failed: %v\nBody: %s", err, rec.Body.String())
			}
		})
	}
}
