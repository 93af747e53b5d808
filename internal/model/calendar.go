package model

import "time"

// Calendar event kinds.
const (
	EventKindInterview = "interview"
	EventKindMeeting   = "meeting"
	EventKindOther     = "other"
)

// CalendarEvent is a scheduled interview or meeting.
type CalendarEvent struct {
	ID            string    `json:"id"`
	CompanyID     string    `json:"company_id"`
	Title         string    `json:"title"`
	Kind          string    `json:"kind"`
	ApplicationID *string   `json:"application_id,omitempty"`
	StartsAt      time.Time `json:"starts_at"`
	EndsAt        time.Time `json:"ends_at"`
	Location      string    `json:"location,omitempty"`
	Attendees     []string  `json:"attendees"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Task is a to-do item for the hiring team.
type Task struct {
	ID            string     `json:"id"`
	CompanyID     string     `json:"company_id"`
	Title         string     `json:"title"`
	Notes         string     `json:"notes,omitempty"`
	DueAt         *time.Time `json:"due_at,omitempty"`
	AssigneeID    *string    `json:"assignee_id,omitempty"`
	ApplicationID *string    `json:"application_id,omitempty"`
	Completed     bool       `json:"completed"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedBy     string     `json:"created_by"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TaskFilter narrows task listings.
type TaskFilter struct {
	AssigneeID  string
	IncludeDone bool
}
