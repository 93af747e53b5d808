package handler

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hireloop/hireloop/internal/analytics"
	"github.com/hireloop/hireloop/internal/handler/dto"
	"github.com/hireloop/hireloop/internal/model"
	"github.com/hireloop/hireloop/internal/service"
)

type companyResolver interface {
	GetCompanyBySlug(ctx context.Context, slug string) (*model.Company, error)
}

type openJobLister interface {
	ListOpenJobs(ctx context.Context, companyID string) ([]*model.Job, error)
	GetOpenJob(ctx context.Context, companyID, id string) (*model.Job, error)
}

// ViewPublisher records careers-page job views.
type ViewPublisher interface {
	PublishAsync(event analytics.ViewEventPayload)
}

type applier interface {
	Apply(ctx context.Context, companyID string, in service.ApplyInput) (*model.Application, error)
}

// CareersHandler serves the unauthenticated careers page.
type CareersHandler struct {
	companies companyResolver
	jobs      openJobLister
	apps      applier
	views     ViewPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewCareersHandler creates a new CareersHandler.
func NewCareersHandler(companies companyResolver, jobs openJobLister, apps applier, logger *slog.Logger) *CareersHandler {
	return &CareersHandler{
		companies: companies,
		jobs:      jobs,
		apps:      apps,
		logger:    logger.With("handler", "careers"),
		now:       time.Now,
	}
}

// TrackViews enables job view analytics on GetJob.
func (h *CareersHandler) TrackViews(p ViewPublisher) *CareersHandler {
	h.views = p
	return h
}

// ListJobs handles GET /api/v1/careers/{slug}/jobs.
func (h *CareersHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	company, err := h.companies.GetCompanyBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	jobs, err := h.jobs.ListOpenJobs(r.Context(), company.ID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	out := make([]model.PublicJob, len(jobs))
	for i, j := range jobs {
		out[i] = j.ToPublic()
	}
	writeJSON(w, http.StatusOK, dto.CareersResponse{Company: company.Name, Jobs: out})
}

// GetJob handles GET /api/v1/careers/{slug}/jobs/{jobID}.
func (h *CareersHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	company, err := h.companies.GetCompanyBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	job, err := h.jobs.GetOpenJob(r.Context(), company.ID, chi.URLParam(r, "jobID"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	if h.views != nil {
		h.views.PublishAsync(h.viewEvent(r, company.ID, job.ID))
	}
	writeJSON(w, http.StatusOK, job.ToPublic())
}

func (h *CareersHandler) viewEvent(r *http.Request, companyID, jobID string) analytics.ViewEventPayload {
	now := h.now()
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return analytics.ViewEventPayload{
		JobID:       jobID,
		CompanyID:   companyID,
		Source:      analytics.NormalizeSource(r.URL.Query().Get("utm_source")),
		Referrer:    analytics.SanitizeReferrer(r.Referer()),
		VisitorHash: analytics.GenerateVisitorHash(ip, r.UserAgent(), now),
		CountryCode: analytics.ExtractCountryCode(r.Header.Get("CF-IPCountry")),
		ViewedAt:    now.UnixMilli(),
	}
}

// Apply handles POST /api/v1/careers/{slug}/jobs/{jobID}/apply.
func (h *CareersHandler) Apply(w http.ResponseWriter, r *http.Request) {
	var req dto.ApplyRequest
	if !decodeJSON(w, r, &req) || !validLink(w, "linkedin_url", &req.LinkedInURL) {
		return
	}
	company, err := h.companies.GetCompanyBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	source := req.Source
	if source == "" {
		source = "careers_page"
	}
	app, err := h.apps.Apply(r.Context(), company.ID, toApplyInput(chi.URLParam(r, "jobID"), req, source))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.ApplyResponse{ApplicationID: app.ID, Status: app.Status})
}

func toApplyInput(jobID string, req dto.ApplyRequest, source string) service.ApplyInput {
	return service.ApplyInput{
		JobID: jobID,
		Candidate: service.CandidateInput{
			Email:           req.Email,
			FullName:        req.FullName,
			Phone:           req.Phone,
			Location:        req.Location,
			Headline:        req.Headline,
			Summary:         req.Summary,
			ResumeText:      req.ResumeText,
			Skills:          req.Skills,
			YearsExperience: req.YearsExperience,
			LinkedInURL:     req.LinkedInURL,
		},
		CoverLetter: req.CoverLetter,
		Source:      source,
	}
}
