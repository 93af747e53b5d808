package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/hireloop/hireloop/internal/model"
)

// ErrTicketNotFound is returned when a ticket does not exist or belongs to
// another company.
var ErrTicketNotFound = errors.New("ticket not found")

// TicketFilter narrows a ticket listing. An empty CompanyID lists tickets of
// every company, which only platform staff may do.
type TicketFilter struct {
	CompanyID string
	Status    model.TicketStatus
}

const ticketColumns = `id, company_id, opened_by, subject, body, category, priority, status, assignee_id,
	created_at, updated_at, resolved_at`

// CreateTicket inserts a support ticket.
func (r *Repository) CreateTicket(ctx context.Context, t *model.SupportTicket) error {
	_, err := r.db(ctx).Exec(ctx, `
		INSERT INTO support_tickets (`+ticketColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, t.ID, t.CompanyID, t.OpenedBy, t.Subject, t.Body, t.Category, t.Priority, t.Status, t.AssigneeID,
		t.CreatedAt, t.UpdatedAt, t.ResolvedAt)
	if err != nil {
		return fmt.Errorf("failed to create ticket: %w", err)
	}
	return nil
}

// GetTicket retrieves a ticket. A non-empty companyID scopes the lookup.
func (r *Repository) GetTicket(ctx context.Context, companyID, id string) (*model.SupportTicket, error) {
	t, err := scanTicket(r.db(ctx).QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM support_tickets
		WHERE id = $1 AND ($2 = '' OR company_id = $2)
	`, id, companyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTicketNotFound
		}
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return t, nil
}

// UpdateTicket writes a ticket's workflow fields.
func (r *Repository) UpdateTicket(ctx context.Context, t *model.SupportTicket) error {
	result, err := r.db(ctx).Exec(ctx, `
		UPDATE support_tickets
		SET priority = $2, status = $3, assignee_id = $4, updated_at = $5, resolved_at = $6
		WHERE id = $1
	`, t.ID, t.Priority, t.Status, t.AssigneeID, t.UpdatedAt, t.ResolvedAt)
	if err != nil {
		return fmt.Errorf("failed to update ticket: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrTicketNotFound
	}
	return nil
}

// ListTickets returns a page of tickets, newest first.
func (r *Repository) ListTickets(ctx context.Context, filter TicketFilter, cursor string, limit int) ([]*model.SupportTicket, string, error) {
	cur, err := decodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}

	query := `SELECT ` + ticketColumns + ` FROM support_tickets WHERE true`
	var args []any
	if filter.CompanyID != "" {
		args = append(args, filter.CompanyID)
		query += fmt.Sprintf(" AND company_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if cur != nil {
		args = append(args, cur.CreatedAt, cur.ID)
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", len(args)-1, len(args))
	}
	args = append(args, limit+1)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list tickets: %w", err)
	}
	defer rows.Close()

	var tickets []*model.SupportTicket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, "", fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("error iterating tickets: %w", err)
	}

	tickets, next := page(tickets, limit, func(t *model.SupportTicket) PaginationCursor {
		return PaginationCursor{ID: t.ID, CreatedAt: t.CreatedAt}
	})
	return tickets, next, nil
}

// CreateTicketMessage appends a message to a ticket thread.
func (r *Repository) CreateTicketMessage(ctx context.Context, m *model.TicketMessage) error {
	_, err := r.db(ctx).Exec(ctx, `
		INSERT INTO ticket_messages (id, ticket_id, author_id, staff, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, m.ID, m.TicketID, m.AuthorID, m.Staff, m.Body, m.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrTicketNotFound
		}
		return fmt.Errorf("failed to create ticket message: %w", err)
	}
	return nil
}

// ListTicketMessages returns a ticket thread, oldest first.
func (r *Repository) ListTicketMessages(ctx context.Context, ticketID string) ([]model.TicketMessage, error) {
	rows, err := r.db(ctx).Query(ctx, `
		SELECT id, ticket_id, author_id, staff, body, created_at
		FROM ticket_messages
		WHERE ticket_id = $1
		ORDER BY created_at, id
	`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ticket messages: %w", err)
	}
	defer rows.Close()

	var msgs []model.TicketMessage
	for rows.Next() {
		var m model.TicketMessage
		if err := rows.Scan(&m.ID, &m.TicketID, &m.AuthorID, &m.Staff, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ticket message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ticket messages: %w", err)
	}
	return msgs, nil
}

func scanTicket(row pgx.Row) (*model.SupportTicket, error) {
	var t model.SupportTicket
	if err := row.Scan(
		&t.ID, &t.CompanyID, &t.OpenedBy, &t.Subject, &t.Body, &t.Category, &t.Priority, &t.Status,
		&t.AssigneeID, &t.CreatedAt, &t.UpdatedAt, &t.ResolvedAt,
	); err != nil {
		return nil, err
	}
	return &t, nil
}
