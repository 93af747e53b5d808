package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hireloop/hireloop/internal/handler/dto"
	"github.com/hireloop/hireloop/internal/model"
	"github.com/hireloop/hireloop/internal/service"
)

// CandidateService is the candidate surface the handlers need.
type CandidateService interface {
	GetCandidate(ctx context.Context, companyID, id string) (*model.CandidateProfile, error)
	ListCandidates(ctx context.Context, companyID, cursor string, limit int) ([]*model.CandidateProfile, string, error)
	UpdateCandidate(ctx context.Context, companyID, id string, in service.CandidateUpdate) (*model.CandidateProfile, error)
	DeleteCandidate(ctx context.Context, companyID, id string) error
	SearchTalent(ctx context.Context, companyID string, q model.TalentQuery, cursor string, limit int) ([]*model.CandidateProfile, string, error)
}

type candidateApplications interface {
	ListByCandidate(ctx context.Context, companyID, candidateID string) ([]*model.Application, error)
}

// CandidateHandler handles candidate profiles and talent search.
type CandidateHandler struct {
	svc    CandidateService
	apps   candidateApplications
	logger *slog.Logger
}

// NewCandidateHandler creates a new CandidateHandler.
func NewCandidateHandler(svc CandidateService, apps candidateApplications, logger *slog.Logger) *CandidateHandler {
	return &CandidateHandler{svc: svc, apps: apps, logger: logger.With("handler", "candidates")}
}

// List handles GET /api/v1/candidates.
func (h *CandidateHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	cursor, limit := pageParams(r)
	cands, next, err := h.svc.ListCandidates(r.Context(), caller.CompanyID, cursor, limit)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewPage(cands, next))
}

// Get handles GET /api/v1/candidates/{id}.
func (h *CandidateHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	cand, err := h.svc.GetCandidate(r.Context(), caller.CompanyID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, cand)
}

// Applications handles GET /api/v1/candidates/{id}/applications.
func (h *CandidateHandler) Applications(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := h.svc.GetCandidate(r.Context(), caller.CompanyID, id); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	apps, err := h.apps.ListByCandidate(r.Context(), caller.CompanyID, id)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewList(apps))
}

// Update handles PATCH /api/v1/candidates/{id}.
func (h *CandidateHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req dto.UpdateCandidateRequest
	if !decodeJSON(w, r, &req) || !validLink(w, "linkedin_url", req.LinkedInURL) {
		return
	}
	cand, err := h.svc.UpdateCandidate(r.Context(), caller.CompanyID, chi.URLParam(r, "id"), service.CandidateUpdate{
		FullName:        req.FullName,
		Phone:           req.Phone,
		Location:        req.Location,
		Headline:        req.Headline,
		Summary:         req.Summary,
		ResumeText:      req.ResumeText,
		Skills:          req.Skills,
		YearsExperience: req.YearsExperience,
		LinkedInURL:     req.LinkedInURL,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, cand)
}

// Delete handles DELETE /api/v1/candidates/{id}.
func (h *CandidateHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteCandidate(r.Context(), caller.CompanyID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles GET /api/v1/talent?q=&skills=go,sql&location=&min_years=.
func (h *CandidateHandler) Search(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	req := dto.TalentSearchRequest{
		Query:    query.Get("q"),
		Location: query.Get("location"),
	}
	if skills := query.Get("skills"); skills != "" {
		req.Skills = strings.Split(skills, ",")
	}
	if v := query.Get("min_years"); v != "" {
		years, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", "min_years must be a number")
			return
		}
		req.MinYears = years
	}
	if err := dto.Validate(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return
	}

	cursor, limit := pageParams(r)
	cands, next, err := h.svc.SearchTalent(r.Context(), caller.CompanyID, model.TalentQuery{
		Text:     req.Query,
		Skills:   req.Skills,
		Location: req.Location,
		MinYears: req.MinYears,
	}, cursor, limit)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewPage(cands, next))
}
