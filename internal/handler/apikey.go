package handler

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"github.com/hireloop/hireloop/internal/handler/dto"
	"github.com/hireloop/hireloop/internal/model"
	"github.com/hireloop/hireloop/internal/service"
)

// APIKeyHandler handles API key management endpoints.
type APIKeyHandler struct {
	logger *slog.Logger
	svc    TenancyService
}

// NewAPIKeyHandler creates a new APIKeyHandler.
func NewAPIKeyHandler(logger *slog.Logger, svc TenancyService) *APIKeyHandler {
	return &APIKeyHandler{
		logger: logger.With("handler", "apikey"),
		svc:    svc,
	}
}

// CreateAPIKey handles POST /api/v1/api-keys
func (h *APIKeyHandler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var req dto.CreateAPIKeyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	issued, err := h.svc.CreateAPIKey(r.Context(), authCtx.CompanyID, authCtx.UserID, service.CreateKeyInput{
		Name:   req.Name,
		Scopes: req.Scopes,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	// Plaintext is shown once only.
	writeJSON(w, http.StatusCreated, issued.Key.ToCreateResponse(issued.Plaintext))
}

// ListAPIKeys handles GET /api/v1/api-keys. Admins see every company key.
func (h *APIKeyHandler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := callerFrom(w, r)
	if !ok {
		return
	}

	keys, err := h.svc.ListAPIKeys(r.Context(), authCtx.CompanyID, authCtx.UserID, authCtx.HasScope(model.ScopeAdmin))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	resp := make([]model.APIKeyResponse, len(keys))
	for i, k := range keys {
		resp[i] = k.ToResponse()
	}
	writeJSON(w, http.StatusOK, dto.NewList(resp))
}

// RevokeAPIKey handles DELETE /api/v1/api-keys/{id}
func (h *APIKeyHandler) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := callerFrom(w, r)
	if !ok {
		return
	}

	keyID := chi.URLParam(r, "id")
	if !h.mayManage(w, r, authCtx, keyID) {
		return
	}

	if err := h.svc.RevokeAPIKey(r.Context(), authCtx.CompanyID, keyID); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RotateAPIKey handles POST /api/v1/api-keys/{id}/rotate
func (h *APIKeyHandler) RotateAPIKey(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := callerFrom(w, r)
	if !ok {
		return
	}

	keyID := chi.URLParam(r, "id")
	if !h.mayManage(w, r, authCtx, keyID) {
		return
	}

	fresh, old, err := h.svc.RotateAPIKey(r.Context(), authCtx.CompanyID, keyID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	resp := model.APIKeyRotateResponse{
		OldKeyID: old.ID,
		NewKey:   fresh.Key.ToCreateResponse(fresh.Plaintext),
	}
	if old.RevokedAt != nil {
		resp.OldKeyRevokedAt = *old.RevokedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

// mayManage lets admins manage any company key and everyone else only
// their own. Foreign keys look like missing ones.
func (h *APIKeyHandler) mayManage(w http.ResponseWriter, r *http.Request, authCtx *model.AuthContext, keyID string) bool {
	if authCtx.HasScope(model.ScopeAdmin) {
		return true
	}
	own, err := h.svc.ListAPIKeys(r.Context(), authCtx.CompanyID, authCtx.UserID, false)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return false
	}
	if !slices.ContainsFunc(own, func(k *model.APIKey) bool { return k.ID == keyID }) {
		handleServiceError(w, h.logger, service.ErrAPIKeyNotFound)
		return false
	}
	return true
}
