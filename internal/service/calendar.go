package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/hireloop/hireloop/internal/model"
	"github.com/hireloop/hireloop/internal/repository"
)

const (
	defaultEventWindow = 7 * 24 * time.Hour
	maxEventWindow     = 92 * 24 * time.Hour
)

var validEventKinds = []string{model.EventKindInterview, model.EventKindMeeting, model.EventKindOther}

type calendarStore interface {
	GetApplication(ctx context.Context, companyID, id string) (*model.Application, error)
	CreateEvent(ctx context.Context, e *model.CalendarEvent) error
	GetEvent(ctx context.Context, companyID, id string) (*model.CalendarEvent, error)
	UpdateEvent(ctx context.Context, e *model.CalendarEvent) error
	DeleteEvent(ctx context.Context, companyID, id string) error
	ListEvents(ctx context.Context, companyID string, from, to time.Time) ([]*model.CalendarEvent, error)
	CreateTask(ctx context.Context, t *model.Task) error
	GetTask(ctx context.Context, companyID, id string) (*model.Task, error)
	UpdateTask(ctx context.Context, t *model.Task) error
	DeleteTask(ctx context.Context, companyID, id string) error
	ListTasks(ctx context.Context, companyID string, filter model.TaskFilter) ([]*model.Task, error)
}

// CalendarService schedules interviews and tracks team tasks. Routes gate
// it on the calendar feature.
type CalendarService struct {
	store  calendarStore
	logger *slog.Logger
	now    func() time.Time
}

// NewCalendarService creates a CalendarService.
func NewCalendarService(store calendarStore, logger *slog.Logger) *CalendarService {
	return &CalendarService{
		store:  store,
		logger: logger.With("component", "calendar"),
		now:    time.Now,
	}
}

// EventInput holds event fields. On update nil fields are left unchanged.
type EventInput struct {
	Title         *string
	Kind          *string
	ApplicationID *string
	StartsAt      *time.Time
	EndsAt        *time.Time
	Location      *string
	Attendees     []string
}

// CreateEvent schedules an event.
func (s *CalendarService) CreateEvent(ctx context.Context, companyID, userID string, in EventInput) (*model.CalendarEvent, error) {
	if in.StartsAt == nil || in.EndsAt == nil {
		return nil, invalidf("starts_at and ends_at are required")
	}
	now := s.now().UTC()
	e := &model.CalendarEvent{
		ID:        newID(),
		CompanyID: companyID,
		Kind:      model.EventKindInterview,
		Attendees: []string{},
		CreatedBy: userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.applyEventInput(ctx, e, in); err != nil {
		return nil, err
	}
	if e.Title == "" {
		return nil, invalidf("title is required")
	}
	if err := s.store.CreateEvent(ctx, e); err != nil {
		return nil, mapCalendarErr(err)
	}
	s.logger.Info("event_created", "company_id", companyID, "event_id", e.ID, "kind", e.Kind)
	return e, nil
}

// GetEvent returns one event.
func (s *CalendarService) GetEvent(ctx context.Context, companyID, id string) (*model.CalendarEvent, error) {
	e, err := s.store.GetEvent(ctx, companyID, id)
	if err != nil {
		return nil, mapCalendarErr(err)
	}
	return e, nil
}

// UpdateEvent reschedules or edits an event.
func (s *CalendarService) UpdateEvent(ctx context.Context, companyID, id string, in EventInput) (*model.CalendarEvent, error) {
	e, err := s.GetEvent(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if err := s.applyEventInput(ctx, e, in); err != nil {
		return nil, err
	}
	e.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateEvent(ctx, e); err != nil {
		return nil, mapCalendarErr(err)
	}
	return e, nil
}

// DeleteEvent cancels an event.
func (s *CalendarService) DeleteEvent(ctx context.Context, companyID, id string) error {
	return mapCalendarErr(s.store.DeleteEvent(ctx, companyID, id))
}

// ListEvents returns events overlapping [from, to). A zero from means now;
// a zero to means a week after from.
func (s *CalendarService) ListEvents(ctx context.Context, companyID string, from, to time.Time) ([]*model.CalendarEvent, error) {
	if from.IsZero() {
		from = s.now().UTC()
	}
	if to.IsZero() {
		to = from.Add(defaultEventWindow)
	}
	if !to.After(from) {
		return nil, invalidf("to must be after from")
	}
	if to.Sub(from) > maxEventWindow {
		return nil, invalidf("window must not exceed %d days", int(maxEventWindow.Hours()/24))
	}
	return s.store.ListEvents(ctx, companyID, from, to)
}

func (s *CalendarService) applyEventInput(ctx context.Context, e *model.CalendarEvent, in EventInput) error {
	if v := trimmed(in.Title); v != nil {
		if *v == "" {
			return invalidf("title must not be empty")
		}
		e.Title = *v
	}
	if in.Kind != nil {
		if !slices.Contains(validEventKinds, *in.Kind) {
			return invalidf("kind must be one of %s", strings.Join(validEventKinds, ", "))
		}
		e.Kind = *in.Kind
	}
	if in.StartsAt != nil {
		e.StartsAt = in.StartsAt.UTC()
	}
	if in.EndsAt != nil {
		e.EndsAt = in.EndsAt.UTC()
	}
	if !e.EndsAt.After(e.StartsAt) {
		return invalidf("ends_at must be after starts_at")
	}
	if v := trimmed(in.Location); v != nil {
		e.Location = *v
	}
	if in.Attendees != nil {
		e.Attendees = normalizeAttendees(in.Attendees)
	}
	if in.ApplicationID != nil {
		ref, err := s.reference(ctx, e.CompanyID, *in.ApplicationID)
		if err != nil {
			return err
		}
		e.ApplicationID = ref
	}
	return nil
}

// TaskInput holds task fields. On update nil fields are left unchanged.
type TaskInput struct {
	Title         *string
	Notes         *string
	DueAt         *time.Time
	AssigneeID    *string
	ApplicationID *string
}

// CreateTask adds a task.
func (s *CalendarService) CreateTask(ctx context.Context, companyID, userID string, in TaskInput) (*model.Task, error) {
	now := s.now().UTC()
	t := &model.Task{
		ID:        newID(),
		CompanyID: companyID,
		CreatedBy: userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.applyTaskInput(ctx, t, in); err != nil {
		return nil, err
	}
	if t.Title == "" {
		return nil, invalidf("title is required")
	}
	if err := s.store.CreateTask(ctx, t); err != nil {
		return nil, mapCalendarErr(err)
	}
	return t, nil
}

// GetTask returns one task.
func (s *CalendarService) GetTask(ctx context.Context, companyID, id string) (*model.Task, error) {
	t, err := s.store.GetTask(ctx, companyID, id)
	if err != nil {
		return nil, mapCalendarErr(err)
	}
	return t, nil
}

// UpdateTask edits a task.
func (s *CalendarService) UpdateTask(ctx context.Context, companyID, id string, in TaskInput) (*model.Task, error) {
	t, err := s.GetTask(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if err := s.applyTaskInput(ctx, t, in); err != nil {
		return nil, err
	}
	if err := s.saveTask(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// SetTaskCompleted completes or reopens a task.
func (s *CalendarService) SetTaskCompleted(ctx context.Context, companyID, id string, completed bool) (*model.Task, error) {
	t, err := s.GetTask(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if t.Completed == completed {
		return t, nil
	}
	t.Completed = completed
	if completed {
		now := s.now().UTC()
		t.CompletedAt = &now
	} else {
		t.CompletedAt = nil
	}
	if err := s.saveTask(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// DeleteTask removes a task.
func (s *CalendarService) DeleteTask(ctx context.Context, companyID, id string) error {
	return mapCalendarErr(s.store.DeleteTask(ctx, companyID, id))
}

// ListTasks lists open tasks, or all of them when includeDone is set.
func (s *CalendarService) ListTasks(ctx context.Context, companyID string, filter model.TaskFilter) ([]*model.Task, error) {
	return s.store.ListTasks(ctx, companyID, filter)
}

func (s *CalendarService) saveTask(ctx context.Context, t *model.Task) error {
	t.UpdatedAt = s.now().UTC()
	return mapCalendarErr(s.store.UpdateTask(ctx, t))
}

func (s *CalendarService) applyTaskInput(ctx context.Context, t *model.Task, in TaskInput) error {
	if v := trimmed(in.Title); v != nil {
		if *v == "" {
			return invalidf("title must not be empty")
		}
		t.Title = *v
	}
	if in.Notes != nil {
		t.Notes = *in.Notes
	}
	if in.DueAt != nil {
		due := in.DueAt.UTC()
		t.DueAt = &due
	}
	if v := trimmed(in.AssigneeID); v != nil {
		if *v == "" {
			t.AssigneeID = nil
		} else {
			t.AssigneeID = v
		}
	}
	if in.ApplicationID != nil {
		ref, err := s.reference(ctx, t.CompanyID, *in.ApplicationID)
		if err != nil {
			return err
		}
		t.ApplicationID = ref
	}
	return nil
}

// reference resolves a link to an application of the same company. An
// empty id clears the link.
func (s *CalendarService) reference(ctx context.Context, companyID, applicationID string) (*string, error) {
	applicationID = strings.TrimSpace(applicationID)
	if applicationID == "" {
		return nil, nil
	}
	if _, err := s.store.GetApplication(ctx, companyID, applicationID); err != nil {
		if errors.Is(err, repository.ErrApplicationNotFound) {
			return nil, ErrInvalidReference
		}
		return nil, err
	}
	return &applicationID, nil
}

func normalizeAttendees(in []string) []string {
	out := make([]string, 0, len(in))
	for _, a := range in {
		a = normalizeEmail(a)
		if a != "" && !slices.Contains(out, a) {
			out = append(out, a)
		}
	}
	return out
}

func mapCalendarErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrEventNotFound):
		return ErrEventNotFound
	case errors.Is(err, repository.ErrTaskNotFound):
		return ErrTaskNotFound
	case errors.Is(err, repository.ErrInvalidReference):
		return ErrInvalidReference
	}
	return err
}
