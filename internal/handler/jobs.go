package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hireloop/hireloop/internal/handler/dto"
	"github.com/hireloop/hireloop/internal/model"
	"github.com/hireloop/hireloop/internal/service"
)

// JobService is the job surface the handlers need.
type JobService interface {
	CreateJob(ctx context.Context, companyID, userID string, in service.JobInput) (*model.Job, error)
	GetJob(ctx context.Context, companyID, id string) (*model.Job, error)
	ListJobs(ctx context.Context, companyID string, status model.JobStatus, cursor string, limit int) ([]*model.Job, string, error)
	ListOpenJobs(ctx context.Context, companyID string) ([]*model.Job, error)
	UpdateJob(ctx context.Context, companyID, id string, in service.JobInput) (*model.Job, error)
	PublishJob(ctx context.Context, companyID, id string) (*model.Job, error)
	CloseJob(ctx context.Context, companyID, id string) (*model.Job, error)
	ArchiveJob(ctx context.Context, companyID, id string) (*model.Job, error)
	JobStats(ctx context.Context, companyID, jobID string, from, to time.Time) (*model.JobStats, error)
}

// JobHandler handles job postings.
type JobHandler struct {
	svc    JobService
	logger *slog.Logger
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(svc JobService, logger *slog.Logger) *JobHandler {
	return &JobHandler{svc: svc, logger: logger.With("handler", "jobs")}
}

func toJobInput(req dto.JobRequest) service.JobInput {
	return service.JobInput{
		Title:          req.Title,
		Department:     req.Department,
		Location:       req.Location,
		EmploymentType: req.EmploymentType,
		Remote:         req.Remote,
		Description:    req.Description,
		Requirements:   req.Requirements,
		SalaryMin:      req.SalaryMin,
		SalaryMax:      req.SalaryMax,
		Currency:       req.Currency,
	}
}

// Create handles POST /api/v1/jobs.
func (h *JobHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req dto.JobRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	job, err := h.svc.CreateJob(r.Context(), caller.CompanyID, caller.UserID, toJobInput(req))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

// Get handles GET /api/v1/jobs/{id}.
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	job, err := h.svc.GetJob(r.Context(), caller.CompanyID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// Stats handles GET /api/v1/jobs/{id}/stats?from=YYYY-MM-DD&to=YYYY-MM-DD.
func (h *JobHandler) Stats(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	from, ok := parseDateParam(w, r, "from")
	if !ok {
		return
	}
	to, ok := parseDateParam(w, r, "to")
	if !ok {
		return
	}
	stats, err := h.svc.JobStats(r.Context(), caller.CompanyID, chi.URLParam(r, "id"), from, to)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// parseDateParam reads an optional YYYY-MM-DD query value. Absent values
// are the zero time.
func parseDateParam(w http.ResponseWriter, r *http.Request, name string) (time.Time, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", name+" must be a YYYY-MM-DD date")
		return time.Time{}, false
	}
	return t, true
}

// List handles GET /api/v1/jobs.
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	cursor, limit := pageParams(r)
	status := model.JobStatus(r.URL.Query().Get("status"))
	jobs, next, err := h.svc.ListJobs(r.Context(), caller.CompanyID, status, cursor, limit)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewPage(jobs, next))
}

// Update handles PATCH /api/v1/jobs/{id}.
func (h *JobHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req dto.JobRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	job, err := h.svc.UpdateJob(r.Context(), caller.CompanyID, chi.URLParam(r, "id"), toJobInput(req))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// Publish handles POST /api/v1/jobs/{id}/publish.
func (h *JobHandler) Publish(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.PublishJob)
}

// Close handles POST /api/v1/jobs/{id}/close.
func (h *JobHandler) Close(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.CloseJob)
}

// Archive handles DELETE /api/v1/jobs/{id}.
func (h *JobHandler) Archive(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.ArchiveJob)
}

func (h *JobHandler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, companyID, id string) (*model.Job, error)) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	job, err := fn(r.Context(), caller.CompanyID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
