package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/hireloop/hireloop/internal/model"
	"github.com/hireloop/hireloop/internal/repository"
)

const maxTicketSubject = 200

type ticketStore interface {
	txRunner
	CreateTicket(ctx context.Context, t *model.SupportTicket) error
	GetTicket(ctx context.Context, companyID, id string) (*model.SupportTicket, error)
	UpdateTicket(ctx context.Context, t *model.SupportTicket) error
	ListTickets(ctx context.Context, filter repository.TicketFilter, cursor string, limit int) ([]*model.SupportTicket, string, error)
	CreateTicketMessage(ctx context.Context, m *model.TicketMessage) error
	ListTicketMessages(ctx context.Context, ticketID string) ([]model.TicketMessage, error)
}

// TicketService is the support desk. Tenants reach it in every
// subscription status, so nothing here consults entitlements.
type TicketService struct {
	store  ticketStore
	logger *slog.Logger
	now    func() time.Time
}

// NewTicketService creates a TicketService.
func NewTicketService(store ticketStore, logger *slog.Logger) *TicketService {
	return &TicketService{
		store:  store,
		logger: logger.With("component", "support"),
		now:    time.Now,
	}
}

// TicketInput opens a ticket.
type TicketInput struct {
	Subject  string
	Body     string
	Category model.TicketCategory
	Priority model.TicketPriority
}

// OpenTicket files a new ticket for a company.
func (s *TicketService) OpenTicket(ctx context.Context, companyID, userID string, in TicketInput) (*model.SupportTicket, error) {
	subject := strings.TrimSpace(in.Subject)
	body := strings.TrimSpace(in.Body)
	if subject == "" || body == "" {
		return nil, invalidf("subject and body are required")
	}
	if len(subject) > maxTicketSubject {
		return nil, invalidf("subject must be at most %d characters", maxTicketSubject)
	}
	if in.Category == "" {
		in.Category = model.TicketOther
	}
	if !in.Category.IsValid() {
		return nil, invalidf("unknown category %q", in.Category)
	}
	if in.Priority == "" {
		in.Priority = model.PriorityNormal
	}
	if !in.Priority.IsValid() {
		return nil, invalidf("unknown priority %q", in.Priority)
	}

	now := s.now().UTC()
	t := &model.SupportTicket{
		ID:        newID(),
		CompanyID: companyID,
		OpenedBy:  userID,
		Subject:   subject,
		Body:      body,
		Category:  in.Category,
		Priority:  in.Priority,
		Status:    model.TicketOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateTicket(ctx, t); err != nil {
		return nil, err
	}
	s.logger.Info("ticket_opened", "company_id", companyID, "ticket_id", t.ID, "category", t.Category)
	return t, nil
}

// ListTickets lists a company's tickets. Staff pass an empty companyID to
// list across tenants.
func (s *TicketService) ListTickets(ctx context.Context, companyID string, status model.TicketStatus, cursor string, limit int) ([]*model.SupportTicket, string, error) {
	if status != "" && !status.IsValid() {
		return nil, "", invalidf("unknown status %q", status)
	}
	out, next, err := s.store.ListTickets(ctx, repository.TicketFilter{CompanyID: companyID, Status: status}, cursor, clampLimit(limit))
	if errors.Is(err, repository.ErrInvalidCursor) {
		return nil, "", invalidf("invalid cursor")
	}
	return out, next, err
}

// GetTicket returns a ticket with its thread. An empty companyID is the
// staff view.
func (s *TicketService) GetTicket(ctx context.Context, companyID, id string) (*model.SupportTicket, error) {
	t, err := s.load(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	msgs, err := s.store.ListTicketMessages(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	t.Messages = msgs
	return t, nil
}

// Reply adds a tenant message. A ticket waiting on the customer goes back
// to open.
func (s *TicketService) Reply(ctx context.Context, companyID, id, userID, body string) (*model.TicketMessage, error) {
	return s.reply(ctx, companyID, id, userID, body, false)
}

// StaffReply adds a support message and marks the ticket as waiting on the
// customer.
func (s *TicketService) StaffReply(ctx context.Context, id, staffID, body string) (*model.TicketMessage, error) {
	return s.reply(ctx, "", id, staffID, body, true)
}

func (s *TicketService) reply(ctx context.Context, companyID, id, authorID, body string, staff bool) (*model.TicketMessage, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, invalidf("body is required")
	}

	var msg *model.TicketMessage
	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		t, err := s.load(ctx, companyID, id)
		if err != nil {
			return err
		}
		if t.Status == model.TicketClosed {
			return ErrTicketClosed
		}

		now := s.now().UTC()
		msg = &model.TicketMessage{
			ID:        newID(),
			TicketID:  t.ID,
			AuthorID:  authorID,
			Staff:     staff,
			Body:      body,
			CreatedAt: now,
		}
		if err := s.store.CreateTicketMessage(ctx, msg); err != nil {
			return mapTicketErr(err)
		}

		switch {
		case staff && t.Status == model.TicketOpen:
			t.Status = model.TicketPending
		case !staff && t.Status != model.TicketOpen:
			t.Status = model.TicketOpen
			t.ResolvedAt = nil
		}
		t.UpdatedAt = now
		return mapTicketErr(s.store.UpdateTicket(ctx, t))
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// CloseTicket lets a tenant close their own ticket.
func (s *TicketService) CloseTicket(ctx context.Context, companyID, id string) (*model.SupportTicket, error) {
	return s.update(ctx, companyID, id, func(t *model.SupportTicket) error {
		if t.Status == model.TicketClosed {
			return ErrTicketClosed
		}
		s.setStatus(t, model.TicketClosed)
		return nil
	})
}

// SetStatus moves a ticket to any status.
func (s *TicketService) SetStatus(ctx context.Context, id string, status model.TicketStatus) (*model.SupportTicket, error) {
	if !status.IsValid() {
		return nil, invalidf("unknown status %q", status)
	}
	return s.update(ctx, "", id, func(t *model.SupportTicket) error {
		s.setStatus(t, status)
		return nil
	})
}

// Assign hands a ticket to a staff member; an empty assignee unassigns.
func (s *TicketService) Assign(ctx context.Context, id, assigneeID string) (*model.SupportTicket, error) {
	return s.update(ctx, "", id, func(t *model.SupportTicket) error {
		if assigneeID == "" {
			t.AssigneeID = nil
		} else {
			t.AssigneeID = &assigneeID
		}
		return nil
	})
}

// SetPriority reprioritizes a ticket.
func (s *TicketService) SetPriority(ctx context.Context, id string, priority model.TicketPriority) (*model.SupportTicket, error) {
	if !priority.IsValid() {
		return nil, invalidf("unknown priority %q", priority)
	}
	return s.update(ctx, "", id, func(t *model.SupportTicket) error {
		t.Priority = priority
		return nil
	})
}

func (s *TicketService) update(ctx context.Context, companyID, id string, mutate func(*model.SupportTicket) error) (*model.SupportTicket, error) {
	t, err := s.load(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if err := mutate(t); err != nil {
		return nil, err
	}
	t.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateTicket(ctx, t); err != nil {
		return nil, mapTicketErr(err)
	}
	s.logger.Info("ticket_updated", "ticket_id", t.ID, "status", t.Status, "priority", t.Priority)
	return t, nil
}

func (s *TicketService) setStatus(t *model.SupportTicket, status model.TicketStatus) {
	t.Status = status
	switch status {
	case model.TicketResolved, model.TicketClosed:
		if t.ResolvedAt == nil {
			now := s.now().UTC()
			t.ResolvedAt = &now
		}
	default:
		t.ResolvedAt = nil
	}
}

func (s *TicketService) load(ctx context.Context, companyID, id string) (*model.SupportTicket, error) {
	t, err := s.store.GetTicket(ctx, companyID, id)
	if err != nil {
		return nil, mapTicketErr(err)
	}
	return t, nil
}

func mapTicketErr(err error) error {
	if errors.Is(err, repository.ErrTicketNotFound) {
		return ErrTicketNotFound
	}
	return err
}
