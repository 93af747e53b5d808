package dto

import (
	"time"

	"github.com/hireloop/hireloop/internal/model"
)

// OpenTicketRequest opens a support ticket.
type OpenTicketRequest struct {
	Subject  string               `json:"subject" validate:"required,max=200"`
	Body     string               `json:"body" validate:"required,max=20000"`
	Category model.TicketCategory `json:"category,omitempty" validate:"omitempty,oneof=billing technical account other"`
	Priority model.TicketPriority `json:"priority,omitempty" validate:"omitempty,oneof=low normal high urgent"`
}

// ReplyRequest appends a message to a ticket.
type ReplyRequest struct {
	Body string `json:"body" validate:"required,max=20000"`
}

// TicketStatusRequest sets a ticket's status.
type TicketStatusRequest struct {
	Status model.TicketStatus `json:"status" validate:"required,oneof=open pending resolved closed"`
}

// TicketAssignRequest assigns a ticket to a staff member. An empty
// assignee unassigns it.
type TicketAssignRequest struct {
	AssigneeID string `json:"assignee_id" validate:"max=64"`
}

// TicketPriorityRequest sets a ticket's priority.
type TicketPriorityRequest struct {
	Priority model.TicketPriority `json:"priority" validate:"required,oneof=low normal high urgent"`
}

// EventRequest creates or updates a calendar event.
type EventRequest struct {
	Title         *string    `json:"title,omitempty" validate:"omitempty,max=200"`
	Kind          *string    `json:"kind,omitempty" validate:"omitempty,oneof=interview meeting other"`
	ApplicationID *string    `json:"application_id,omitempty"`
	StartsAt      *time.Time `json:"starts_at,omitempty"`
	EndsAt        *time.Time `json:"ends_at,omitempty"`
	Location      *string    `json:"location,omitempty" validate:"omitempty,max=500"`
	Attendees     []string   `json:"attendees,omitempty" validate:"max=50,dive,max=254"`
}

// TaskRequest creates or updates a task.
type TaskRequest struct {
	Title         *string    `json:"title,omitempty" validate:"omitempty,max=200"`
	Notes         *string    `json:"notes,omitempty" validate:"omitempty,max=10000"`
	DueAt         *time.Time `json:"due_at,omitempty"`
	AssigneeID    *string    `json:"assignee_id,omitempty"`
	ApplicationID *string    `json:"application_id,omitempty"`
}

// TaskCompleteRequest marks a task done or reopens it.
type TaskCompleteRequest struct {
	Completed bool `json:"completed"`
}
