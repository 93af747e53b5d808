package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hireloop/hireloop/internal/handler/dto"
	"github.com/hireloop/hireloop/internal/model"
	"github.com/hireloop/hireloop/internal/service"
)

// TicketService is the support surface the handlers need. An empty
// companyID is the staff view across tenants.
type TicketService interface {
	OpenTicket(ctx context.Context, companyID, userID string, in service.TicketInput) (*model.SupportTicket, error)
	ListTickets(ctx context.Context, companyID string, status model.TicketStatus, cursor string, limit int) ([]*model.SupportTicket, string, error)
	GetTicket(ctx context.Context, companyID, id string) (*model.SupportTicket, error)
	Reply(ctx context.Context, companyID, id, userID, body string) (*model.TicketMessage, error)
	CloseTicket(ctx context.Context, companyID, id string) (*model.SupportTicket, error)

	StaffReply(ctx context.Context, id, staffID, body string) (*model.TicketMessage, error)
	SetStatus(ctx context.Context, id string, status model.TicketStatus) (*model.SupportTicket, error)
	Assign(ctx context.Context, id, assigneeID string) (*model.SupportTicket, error)
	SetPriority(ctx context.Context, id string, priority model.TicketPriority) (*model.SupportTicket, error)
}

// TicketHandler serves a tenant's support tickets.
type TicketHandler struct {
	svc    TicketService
	logger *slog.Logger
}

// NewTicketHandler creates a new TicketHandler.
func NewTicketHandler(svc TicketService, logger *slog.Logger) *TicketHandler {
	return &TicketHandler{svc: svc, logger: logger.With("handler", "tickets")}
}

// Open handles POST /api/v1/tickets.
func (h *TicketHandler) Open(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req dto.OpenTicketRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	t, err := h.svc.OpenTicket(r.Context(), caller.CompanyID, caller.UserID, service.TicketInput{
		Subject:  req.Subject,
		Body:     req.Body,
		Category: req.Category,
		Priority: req.Priority,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// List handles GET /api/v1/tickets?status=.
func (h *TicketHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	listTickets(w, r, h.svc, h.logger, caller.CompanyID)
}

// Get handles GET /api/v1/tickets/{id}.
func (h *TicketHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	t, err := h.svc.GetTicket(r.Context(), caller.CompanyID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Reply handles POST /api/v1/tickets/{id}/messages.
func (h *TicketHandler) Reply(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req dto.ReplyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	msg, err := h.svc.Reply(r.Context(), caller.CompanyID, chi.URLParam(r, "id"), caller.UserID, req.Body)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// Close handles POST /api/v1/tickets/{id}/close.
func (h *TicketHandler) Close(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	t, err := h.svc.CloseTicket(r.Context(), caller.CompanyID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func listTickets(w http.ResponseWriter, r *http.Request, svc TicketService, logger *slog.Logger, companyID string) {
	cursor, limit := pageParams(r)
	status := model.TicketStatus(r.URL.Query().Get("status"))
	tickets, next, err := svc.ListTickets(r.Context(), companyID, status, cursor, limit)
	if err != nil {
		handleServiceError(w, logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewPage(tickets, next))
}
