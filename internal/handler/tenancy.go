package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hireloop/hireloop/internal/handler/dto"
	"github.com/hireloop/hireloop/internal/middleware"
	"github.com/hireloop/hireloop/internal/model"
	"github.com/hireloop/hireloop/internal/service"
)

// TenancyService is the tenancy surface the handlers need.
type TenancyService interface {
	Signup(ctx context.Context, in service.SignupInput) (*service.SignupResult, error)
	GetCompany(ctx context.Context, companyID string) (*model.Company, error)
	UpdateCompany(ctx context.Context, companyID string, in service.CompanyUpdate) (*model.Company, error)
	GetUser(ctx context.Context, userID string) (*model.User, error)
	UpdateUser(ctx context.Context, userID string, in service.UserUpdate) (*model.User, error)
	ListMembers(ctx context.Context, companyID string) ([]*model.Membership, error)
	ChangeRole(ctx context.Context, companyID, actorID, userID string, role model.Role) (*model.Membership, error)
	RemoveMember(ctx context.Context, companyID, userID string) error
	Invite(ctx context.Context, companyID, email string, role model.Role) (*service.Invitation, error)
	AcceptInvite(ctx context.Context, token, name string) (*service.AcceptResult, error)

	CreateAPIKey(ctx context.Context, companyID, userID string, in service.CreateKeyInput) (service.IssuedKey, error)
	ListAPIKeys(ctx context.Context, companyID, userID string, all bool) ([]*model.APIKey, error)
	RevokeAPIKey(ctx context.Context, companyID, keyID string) error
	RotateAPIKey(ctx context.Context, companyID, keyID string) (service.IssuedKey, *model.APIKey, error)
	CreatePlatformKey(ctx context.Context, email, name string) (service.IssuedKey, error)
}

// TenancyHandler serves signup, company, profile and team endpoints.
type TenancyHandler struct {
	svc    TenancyService
	logger *slog.Logger
}

// NewTenancyHandler creates a new TenancyHandler.
func NewTenancyHandler(svc TenancyService, logger *slog.Logger) *TenancyHandler {
	return &TenancyHandler{
		svc:    svc,
		logger: logger.With("handler", "tenancy"),
	}
}

// Signup handles POST /api/v1/signup.
func (h *TenancyHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req dto.SignupRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	slug, derived := req.Slug, false
	if slug == "" {
		slug, derived = middleware.Slugify(req.CompanyName), true
	}
	if err := middleware.ValidateSlug(slug); err != nil {
		msg := err.Error()
		if derived {
			msg = "Cannot derive a slug from the company name, provide one explicitly"
		}
		writeError(w, http.StatusBadRequest, "INVALID_SLUG", msg)
		return
	}

	res, err := h.svc.Signup(r.Context(), service.SignupInput{
		CompanyName:  req.CompanyName,
		Slug:         slug,
		SlugFromName: derived,
		OwnerEmail:   req.OwnerEmail,
		OwnerName:    req.OwnerName,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.SignupResponse{
		Company:      res.Company,
		Owner:        res.Owner,
		Subscription: res.Subscription,
		APIKey:       res.APIKey.Key.ToCreateResponse(res.APIKey.Plaintext),
	})
}

// AcceptInvite handles POST /api/v1/invitations/accept.
func (h *TenancyHandler) AcceptInvite(w http.ResponseWriter, r *http.Request) {
	var req dto.AcceptInviteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.svc.AcceptInvite(r.Context(), req.Token, req.Name)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.AcceptInviteResponse{
		Company:    res.Company,
		User:       res.User,
		Membership: res.Membership,
		APIKey:     res.APIKey.Key.ToCreateResponse(res.APIKey.Plaintext),
	})
}

// GetCompany handles GET /api/v1/company.
func (h *TenancyHandler) GetCompany(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	company, err := h.svc.GetCompany(r.Context(), caller.CompanyID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, company)
}

// UpdateCompany handles PATCH /api/v1/company.
func (h *TenancyHandler) UpdateCompany(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req dto.UpdateCompanyRequest
	if !decodeJSON(w, r, &req) || !validLink(w, "website", req.Website) {
		return
	}
	company, err := h.svc.UpdateCompany(r.Context(), caller.CompanyID, service.CompanyUpdate{
		Name:     req.Name,
		Website:  req.Website,
		Industry: req.Industry,
		Size:     req.Size,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, company)
}

// GetMe handles GET /api/v1/me.
func (h *TenancyHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	user, err := h.svc.GetUser(r.Context(), caller.UserID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdateMe handles PATCH /api/v1/me.
func (h *TenancyHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req dto.UpdateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.svc.UpdateUser(r.Context(), caller.UserID, service.UserUpdate{
		Name:  req.Name,
		Title: req.Title,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// ListMembers handles GET /api/v1/members.
func (h *TenancyHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	members, err := h.svc.ListMembers(r.Context(), caller.CompanyID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewList(members))
}

// ChangeRole handles PUT /api/v1/members/{userID}/role.
func (h *TenancyHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req dto.ChangeRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	m, err := h.svc.ChangeRole(r.Context(), caller.CompanyID, caller.UserID, chi.URLParam(r, "userID"), req.Role)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// RemoveMember handles DELETE /api/v1/members/{userID}.
func (h *TenancyHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	if err := h.svc.RemoveMember(r.Context(), caller.CompanyID, chi.URLParam(r, "userID")); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Invite handles POST /api/v1/invitations.
func (h *TenancyHandler) Invite(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req dto.InviteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	inv, err := h.svc.Invite(r.Context(), caller.CompanyID, req.Email, req.Role)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}
