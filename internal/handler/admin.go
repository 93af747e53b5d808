package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hireloop/hireloop/internal/handler/dto"
	"github.com/hireloop/hireloop/internal/service"
)

// PlatformKeyIssuer mints staff API keys.
type PlatformKeyIssuer interface {
	CreatePlatformKey(ctx context.Context, email, name string) (service.IssuedKey, error)
}

// AdminHandler provides platform staff endpoints for billing operations
// and support.
type AdminHandler struct {
	billing   BillingAdmin
	tickets   TicketService
	keys      PlatformKeyIssuer
	logger    *slog.Logger
	startedAt time.Time
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(billing BillingAdmin, tickets TicketService, keys PlatformKeyIssuer, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		billing:   billing,
		tickets:   tickets,
		keys:      keys,
		logger:    logger.With("handler", "admin"),
		startedAt: time.Now(),
	}
}

// ListTickets handles GET /api/v1/admin/tickets?status=.
func (h *AdminHandler) ListTickets(w http.ResponseWriter, r *http.Request) {
	listTickets(w, r, h.tickets, h.logger, "")
}

// GetTicket handles GET /api/v1/admin/tickets/{id}.
func (h *AdminHandler) GetTicket(w http.ResponseWriter, r *http.Request) {
	t, err := h.tickets.GetTicket(r.Context(), "", chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// ReplyTicket handles POST /api/v1/admin/tickets/{id}/messages.
func (h *AdminHandler) ReplyTicket(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req dto.ReplyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	msg, err := h.tickets.StaffReply(r.Context(), chi.URLParam(r, "id"), caller.UserID, req.Body)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// SetTicketStatus handles PUT /api/v1/admin/tickets/{id}/status.
func (h *AdminHandler) SetTicketStatus(w http.ResponseWriter, r *http.Request) {
	var req dto.TicketStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	t, err := h.tickets.SetStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// AssignTicket handles PUT /api/v1/admin/tickets/{id}/assignee.
func (h *AdminHandler) AssignTicket(w http.ResponseWriter, r *http.Request) {
	var req dto.TicketAssignRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	t, err := h.tickets.Assign(r.Context(), chi.URLParam(r, "id"), req.AssigneeID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// SetTicketPriority handles PUT /api/v1/admin/tickets/{id}/priority.
func (h *AdminHandler) SetTicketPriority(w http.ResponseWriter, r *http.Request) {
	var req dto.TicketPriorityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	t, err := h.tickets.SetPriority(r.Context(), chi.URLParam(r, "id"), req.Priority)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// CreatePlatformKey handles POST /api/v1/admin/platform-keys.
func (h *AdminHandler) CreatePlatformKey(w http.ResponseWriter, r *http.Request) {
	var req dto.CreatePlatformKeyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	issued, err := h.keys.CreatePlatformKey(r.Context(), req.Email, req.Name)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, issued.Key.ToCreateResponse(issued.Plaintext))
}

// StatsResponse represents operational statistics.
type StatsResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
	Uptime    string    `json:"uptime"`
}

// Stats handles GET /api/v1/admin/stats.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatsResponse{
		Timestamp: time.Now().UTC(),
		Service:   "hireloop",
		Version:   Version,
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
	})
}
