package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hireloop/hireloop/internal/handler/dto"
	"github.com/hireloop/hireloop/internal/model"
	"github.com/hireloop/hireloop/internal/repository"
	"github.com/hireloop/hireloop/internal/service"
)

// ApplicationService is the application surface the handlers need.
type ApplicationService interface {
	Apply(ctx context.Context, companyID string, in service.ApplyInput) (*model.Application, error)
	GetApplication(ctx context.Context, companyID, id string) (*model.Application, error)
	ListByJob(ctx context.Context, companyID, jobID string, sort repository.ApplicationSort, cursor string, limit int) ([]*model.Application, string, error)
	ListByCandidate(ctx context.Context, companyID, candidateID string) ([]*model.Application, error)
	MoveStage(ctx context.Context, companyID, id string, to model.ApplicationStatus, reason string) (*model.Application, error)
	AddNote(ctx context.Context, companyID, id, authorID, body string) (*model.ApplicationNote, error)
	ListNotes(ctx context.Context, companyID, id string) ([]*model.ApplicationNote, error)
	Rescore(ctx context.Context, companyID, id string) error
}

// ApplicationHandler handles the hiring pipeline.
type ApplicationHandler struct {
	svc    ApplicationService
	logger *slog.Logger
}

// NewApplicationHandler creates a new ApplicationHandler.
func NewApplicationHandler(svc ApplicationService, logger *slog.Logger) *ApplicationHandler {
	return &ApplicationHandler{svc: svc, logger: logger.With("handler", "applications")}
}

// Create handles POST /api/v1/jobs/{id}/applications for recruiter-sourced
// applicants.
func (h *ApplicationHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req dto.ApplyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	source := req.Source
	if source == "" {
		source = "manual"
	}
	app, err := h.svc.Apply(r.Context(), caller.CompanyID, toApplyInput(chi.URLParam(r, "id"), req, source))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

// ListByJob handles GET /api/v1/jobs/{id}/applications?sort=score|recent.
func (h *ApplicationHandler) ListByJob(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	cursor, limit := pageParams(r)
	sort := repository.ApplicationSort(r.URL.Query().Get("sort"))
	apps, next, err := h.svc.ListByJob(r.Context(), caller.CompanyID, chi.URLParam(r, "id"), sort, cursor, limit)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewPage(apps, next))
}

// Get handles GET /api/v1/applications/{id}.
func (h *ApplicationHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	app, err := h.svc.GetApplication(r.Context(), caller.CompanyID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

// MoveStage handles POST /api/v1/applications/{id}/stage.
func (h *ApplicationHandler) MoveStage(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req dto.MoveStageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	app, err := h.svc.MoveStage(r.Context(), caller.CompanyID, chi.URLParam(r, "id"), req.Status, req.Reason)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

// AddNote handles POST /api/v1/applications/{id}/notes.
func (h *ApplicationHandler) AddNote(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req dto.NoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	note, err := h.svc.AddNote(r.Context(), caller.CompanyID, chi.URLParam(r, "id"), caller.UserID, req.Body)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// ListNotes handles GET /api/v1/applications/{id}/notes.
func (h *ApplicationHandler) ListNotes(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	notes, err := h.svc.ListNotes(r.Context(), caller.CompanyID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewList(notes))
}

// Rescore handles POST /api/v1/applications/{id}/rescore.
func (h *ApplicationHandler) Rescore(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	if err := h.svc.Rescore(r.Context(), caller.CompanyID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": string(model.ScorePending)})
}
