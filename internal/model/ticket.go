package model

import (
	"slices"
	"time"
)

// TicketCategory classifies a support ticket.
type TicketCategory string

const (
	TicketBilling   TicketCategory = "billing"
	TicketTechnical TicketCategory = "technical"
	TicketAccount   TicketCategory = "account"
	TicketOther     TicketCategory = "other"
)

// TicketPriority orders support work.
type TicketPriority string

const (
	PriorityLow    TicketPriority = "low"
	PriorityNormal TicketPriority = "normal"
	PriorityHigh   TicketPriority = "high"
	PriorityUrgent TicketPriority = "urgent"
)

// TicketStatus is the state of a support ticket.
type TicketStatus string

const (
	TicketOpen     TicketStatus = "open"
	TicketPending  TicketStatus = "pending"
	TicketResolved TicketStatus = "resolved"
	TicketClosed   TicketStatus = "closed"
)

var (
	validCategories = []TicketCategory{TicketBilling, TicketTechnical, TicketAccount, TicketOther}
	validPriorities = []TicketPriority{PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent}
	validTicketStat = []TicketStatus{TicketOpen, TicketPending, TicketResolved, TicketClosed}
)

func (c TicketCategory) IsValid() bool { return slices.Contains(validCategories, c) }
func (p TicketPriority) IsValid() bool { return slices.Contains(validPriorities, p) }
func (s TicketStatus) IsValid() bool   { return slices.Contains(validTicketStat, s) }

// SupportTicket is a tenant's request to platform support.
type SupportTicket struct {
	ID         string         `json:"id"`
	CompanyID  string         `json:"company_id"`
	OpenedBy   string         `json:"opened_by"`
	Subject    string         `json:"subject"`
	Body       string         `json:"body"`
	Category   TicketCategory `json:"category"`
	Priority   TicketPriority `json:"priority"`
	Status     TicketStatus   `json:"status"`
	AssigneeID *string        `json:"assignee_id,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`

	Messages []TicketMessage `json:"messages,omitempty"`
}

// TicketMessage is a reply on a ticket from a tenant user or staff.
type TicketMessage struct {
	ID        string    `json:"id"`
	TicketID  string    `json:"ticket_id"`
	AuthorID  string    `json:"author_id"`
	Staff     bool      `json:"staff"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}
