package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/hireloop/hireloop/internal/handler/dto"
	"github.com/hireloop/hireloop/internal/middleware"
	"github.com/hireloop/hireloop/internal/model"
	"github.com/hireloop/hireloop/internal/webhook"
)

// WebhookStore persists tenant webhook endpoints and their deliveries.
type WebhookStore interface {
	CreateEndpoint(ctx context.Context, endpoint *model.WebhookEndpoint) error
	CompanyEndpoint(ctx context.Context, companyID, id string) (*model.WebhookEndpoint, error)
	CompanyEndpoints(ctx context.Context, companyID string) ([]*model.WebhookEndpoint, error)
	UpdateEndpoint(ctx context.Context, endpoint *model.WebhookEndpoint) error
	SetSigningKey(ctx context.Context, id, key string) error
	DeleteEndpoint(ctx context.Context, id string) error
	EndpointDeliveries(ctx context.Context, endpointID string, q webhook.DeliveryQuery) ([]*model.WebhookDelivery, int, error)
	Requeue(ctx context.Context, endpointID, id string) error
}

// WebhookHandler handles webhook management endpoints.
type WebhookHandler struct {
	repo    WebhookStore
	logger  *slog.Logger
	targets webhook.TargetPolicy
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(repo WebhookStore, logger *slog.Logger, allowInsecure bool) *WebhookHandler {
	return &WebhookHandler{
		repo:    repo,
		logger:  logger.With("handler", "webhook"),
		targets: webhook.TargetPolicy{AllowInsecure: allowInsecure},
	}
}

// Create handles POST /api/v1/webhooks
func (h *WebhookHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var req model.WebhookEndpointInput
	if !decodeJSON(w, r, &req) {
		return
	}
	if !h.validTarget(w, r, req.TargetURL) {
		return
	}

	eventTypes := model.AllEventTypes()
	if len(req.EventTypes) > 0 {
		var ok bool
		if eventTypes, ok = normalizeEventTypes(w, req.EventTypes); !ok {
			return
		}
	}

	secret, err := webhook.NewSecret()
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	now := time.Now().UTC()
	endpoint := &model.WebhookEndpoint{
		ID:          ulid.Make().String(),
		CompanyID:   caller.CompanyID,
		TargetURL:   req.TargetURL,
		SecretHash:  webhook.SigningKey(secret),
		Enabled:     true,
		EventTypes:  eventTypes,
		Name:        req.Name,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.repo.CreateEndpoint(r.Context(), endpoint); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("webhook endpoint created",
		"endpoint_id", endpoint.ID,
		"company_id", caller.CompanyID,
	)

	// Secret is shown once.
	writeJSON(w, http.StatusCreated, model.WebhookEndpointCreateResponse{
		WebhookEndpointResponse: endpoint.ToResponse(),
		Secret:                  secret,
	})
}

// EventTypes handles GET /api/v1/webhooks/event-types
func (h *WebhookHandler) EventTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dto.NewList(model.EventCatalog))
}

// List handles GET /api/v1/webhooks
func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	endpoints, err := h.repo.CompanyEndpoints(r.Context(), caller.CompanyID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	resp := make([]model.WebhookEndpointResponse, len(endpoints))
	for i, ep := range endpoints {
		resp[i] = ep.ToResponse()
	}
	writeJSON(w, http.StatusOK, dto.NewList(resp))
}

// Get handles GET /api/v1/webhooks/{id}
func (h *WebhookHandler) Get(w http.ResponseWriter, r *http.Request) {
	endpoint, ok := h.loadEndpoint(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, endpoint.ToResponse())
}

// Update handles PATCH /api/v1/webhooks/{id}
func (h *WebhookHandler) Update(w http.ResponseWriter, r *http.Request) {
	endpoint, ok := h.loadEndpoint(w, r)
	if !ok {
		return
	}

	var req model.WebhookEndpointPatch
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.Name != nil {
		endpoint.Name = *req.Name
	}
	if req.Description != nil {
		endpoint.Description = *req.Description
	}
	if req.TargetURL != nil {
		if !h.validTarget(w, r, *req.TargetURL) {
			return
		}
		endpoint.TargetURL = *req.TargetURL
	}
	if req.Enabled != nil {
		endpoint.Enabled = *req.Enabled
	}
	if req.EventTypes != nil {
		if len(*req.EventTypes) == 0 {
			writeError(w, http.StatusBadRequest, "INVALID_EVENT_TYPE", "At least one event type is required")
			return
		}
		eventTypes, ok := normalizeEventTypes(w, *req.EventTypes)
		if !ok {
			return
		}
		endpoint.EventTypes = eventTypes
	}
	endpoint.UpdatedAt = time.Now().UTC()

	if err := h.repo.UpdateEndpoint(r.Context(), endpoint); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("webhook endpoint updated",
		"endpoint_id", endpoint.ID,
		"company_id", endpoint.CompanyID,
	)
	writeJSON(w, http.StatusOK, endpoint.ToResponse())
}

// Delete handles DELETE /api/v1/webhooks/{id}
func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	endpoint, ok := h.loadEndpoint(w, r)
	if !ok {
		return
	}

	if err := h.repo.DeleteEndpoint(r.Context(), endpoint.ID); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("webhook endpoint deleted",
		"endpoint_id", endpoint.ID,
		"company_id", endpoint.CompanyID,
	)
	w.WriteHeader(http.StatusNoContent)
}

// RotateSecret handles POST /api/v1/webhooks/{id}/rotate-secret
func (h *WebhookHandler) RotateSecret(w http.ResponseWriter, r *http.Request) {
	endpoint, ok := h.loadEndpoint(w, r)
	if !ok {
		return
	}

	newSecret, err := webhook.NewSecret()
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	if err := h.repo.SetSigningKey(r.Context(), endpoint.ID, webhook.SigningKey(newSecret)); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("webhook secret rotated",
		"endpoint_id", endpoint.ID,
		"company_id", endpoint.CompanyID,
	)
	writeJSON(w, http.StatusOK, map[string]string{"secret": newSecret})
}

// ListDeliveries handles GET /api/v1/webhooks/{id}/deliveries
func (h *WebhookHandler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	endpoint, ok := h.loadEndpoint(w, r)
	if !ok {
		return
	}

	statuses := r.URL.Query()["status"]
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 || perPage > 100 {
		perPage = defaultPageSize
	}
	deliveries, total, err := h.repo.EndpointDeliveries(r.Context(), endpoint.ID, webhook.DeliveryQuery{
		Statuses: statuses,
		Limit:    perPage,
		Offset:   (page - 1) * perPage,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	resp := make([]model.WebhookDeliveryResponse, len(deliveries))
	for i, d := range deliveries {
		resp[i] = d.ToResponse()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deliveries": resp,
		"pagination": map[string]any{
			"total":    total,
			"page":     page,
			"per_page": perPage,
		},
	})
}

// RetryDelivery handles POST /api/v1/webhooks/{id}/deliveries/{deliveryId}/retry
func (h *WebhookHandler) RetryDelivery(w http.ResponseWriter, r *http.Request) {
	endpoint, ok := h.loadEndpoint(w, r)
	if !ok {
		return
	}

	deliveryID := chi.URLParam(r, "deliveryId")
	if err := h.repo.Requeue(r.Context(), endpoint.ID, deliveryID); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("webhook delivery retry requested",
		"delivery_id", deliveryID,
		"endpoint_id", endpoint.ID,
		"company_id", endpoint.CompanyID,
	)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "retry_scheduled"})
}

// loadEndpoint resolves {id} within the caller's company. Other companies'
// endpoints look like missing ones.
func (h *WebhookHandler) loadEndpoint(w http.ResponseWriter, r *http.Request) (*model.WebhookEndpoint, bool) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return nil, false
	}
	endpoint, err := h.repo.CompanyEndpoint(r.Context(), caller.CompanyID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return nil, false
	}
	return endpoint, true
}

func (h *WebhookHandler) validTarget(w http.ResponseWriter, r *http.Request, target string) bool {
	if err := middleware.ValidateWebhookURL(target); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_URL", err.Error())
		return false
	}
	if err := h.targets.Check(r.Context(), target); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_URL", err.Error())
		return false
	}
	return true
}

func normalizeEventTypes(w http.ResponseWriter, in []model.EventType) ([]model.EventType, bool) {
	out, err := model.NormalizeEventTypes(in)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_EVENT_TYPE", err.Error())
		return nil, false
	}
	return out, true
}
