package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/hireloop/hireloop/internal/model"
)

// Calendar repository errors.
var (
	ErrEventNotFound = errors.New("calendar event not found")
	ErrTaskNotFound  = errors.New("task not found")
	// ErrInvalidReference means a linked application does not exist.
	ErrInvalidReference = errors.New("referenced application not found")
)

const eventColumns = `id, company_id, title, kind, application_id, starts_at, ends_at, location, attendees,
	created_by, created_at, updated_at`

const taskColumns = `id, company_id, title, notes, due_at, assignee_id, application_id, completed, completed_at,
	created_by, created_at, updated_at`

// CreateEvent inserts a calendar event.
func (r *Repository) CreateEvent(ctx context.Context, e *model.CalendarEvent) error {
	_, err := r.db(ctx).Exec(ctx, `
		INSERT INTO calendar_events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, e.ID, e.CompanyID, e.Title, e.Kind, e.ApplicationID, e.StartsAt, e.EndsAt, e.Location,
		pq.Array(nonNil(e.Attendees)), e.CreatedBy, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrInvalidReference
		}
		return fmt.Errorf("failed to create event: %w", err)
	}
	return nil
}

// GetEvent retrieves a calendar event scoped to a company.
func (r *Repository) GetEvent(ctx context.Context, companyID, id string) (*model.CalendarEvent, error) {
	e, err := scanEvent(r.db(ctx).QueryRow(ctx,
		`SELECT `+eventColumns+` FROM calendar_events WHERE company_id = $1 AND id = $2`, companyID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return e, nil
}

// UpdateEvent writes a calendar event's mutable fields.
func (r *Repository) UpdateEvent(ctx context.Context, e *model.CalendarEvent) error {
	result, err := r.db(ctx).Exec(ctx, `
		UPDATE calendar_events
		SET title = $3, kind = $4, application_id = $5, starts_at = $6, ends_at = $7, location = $8,
			attendees = $9, updated_at = $10
		WHERE company_id = $1 AND id = $2
	`, e.CompanyID, e.ID, e.Title, e.Kind, e.ApplicationID, e.StartsAt, e.EndsAt, e.Location,
		pq.Array(nonNil(e.Attendees)), e.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrInvalidReference
		}
		return fmt.Errorf("failed to update event: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

// DeleteEvent removes a calendar event.
func (r *Repository) DeleteEvent(ctx context.Context, companyID, id string) error {
	result, err := r.db(ctx).Exec(ctx, `DELETE FROM calendar_events WHERE company_id = $1 AND id = $2`, companyID, id)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

// ListEvents returns the events overlapping [from, to), earliest first.
func (r *Repository) ListEvents(ctx context.Context, companyID string, from, to time.Time) ([]*model.CalendarEvent, error) {
	rows, err := r.db(ctx).Query(ctx, `
		SELECT `+eventColumns+`
		FROM calendar_events
		WHERE company_id = $1 AND starts_at < $3 AND ends_at > $2
		ORDER BY starts_at, id
	`, companyID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []*model.CalendarEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

func scanEvent(row pgx.Row) (*model.CalendarEvent, error) {
	var e model.CalendarEvent
	var attendees []string
	if err := row.Scan(
		&e.ID, &e.CompanyID, &e.Title, &e.Kind, &e.ApplicationID, &e.StartsAt, &e.EndsAt, &e.Location,
		pq.Array(&attendees), &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	e.Attendees = nonNil(attendees)
	return &e, nil
}

// CreateTask inserts a task.
func (r *Repository) CreateTask(ctx context.Context, t *model.Task) error {
	_, err := r.db(ctx).Exec(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, t.ID, t.CompanyID, t.Title, t.Notes, t.DueAt, t.AssigneeID, t.ApplicationID, t.Completed,
		t.CompletedAt, t.CreatedBy, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrInvalidReference
		}
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// GetTask retrieves a task scoped to a company.
func (r *Repository) GetTask(ctx context.Context, companyID, id string) (*model.Task, error) {
	t, err := scanTask(r.db(ctx).QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE company_id = $1 AND id = $2`, companyID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// UpdateTask writes a task's mutable fields.
func (r *Repository) UpdateTask(ctx context.Context, t *model.Task) error {
	result, err := r.db(ctx).Exec(ctx, `
		UPDATE tasks
		SET title = $3, notes = $4, due_at = $5, assignee_id = $6, application_id = $7, completed = $8,
			completed_at = $9, updated_at = $10
		WHERE company_id = $1 AND id = $2
	`, t.CompanyID, t.ID, t.Title, t.Notes, t.DueAt, t.AssigneeID, t.ApplicationID, t.Completed,
		t.CompletedAt, t.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrInvalidReference
		}
		return fmt.Errorf("failed to update task: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// DeleteTask removes a task.
func (r *Repository) DeleteTask(ctx context.Context, companyID, id string) error {
	result, err := r.db(ctx).Exec(ctx, `DELETE FROM tasks WHERE company_id = $1 AND id = $2`, companyID, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// ListTasks returns tasks ordered by due date, undated last.
func (r *Repository) ListTasks(ctx context.Context, companyID string, filter model.TaskFilter) ([]*model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE company_id = $1`
	args := []any{companyID}
	if !filter.IncludeDone {
		query += " AND NOT completed"
	}
	if filter.AssigneeID != "" {
		args = append(args, filter.AssigneeID)
		query += fmt.Sprintf(" AND assignee_id = $%d", len(args))
	}
	query += " ORDER BY completed, due_at NULLS LAST, created_at, id"

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

func scanTask(row pgx.Row) (*model.Task, error) {
	var t model.Task
	if err := row.Scan(
		&t.ID, &t.CompanyID, &t.Title, &t.Notes, &t.DueAt, &t.AssigneeID, &t.ApplicationID, &t.Completed,
		&t.CompletedAt, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &t, nil
}
