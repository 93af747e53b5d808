package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hireloop/hireloop/internal/handler/dto"
	"github.com/hireloop/hireloop/internal/model"
	"github.com/hireloop/hireloop/internal/service"
)

const defaultEventWindow = 30 * 24 * time.Hour

// CalendarService is the calendar and task surface the handlers need.
type CalendarService interface {
	CreateEvent(ctx context.Context, companyID, userID string, in service.EventInput) (*model.CalendarEvent, error)
	GetEvent(ctx context.Context, companyID, id string) (*model.CalendarEvent, error)
	UpdateEvent(ctx context.Context, companyID, id string, in service.EventInput) (*model.CalendarEvent, error)
	DeleteEvent(ctx context.Context, companyID, id string) error
	ListEvents(ctx context.Context, companyID string, from, to time.Time) ([]*model.CalendarEvent, error)

	CreateTask(ctx context.Context, companyID, userID string, in service.TaskInput) (*model.Task, error)
	GetTask(ctx context.Context, companyID, id string) (*model.Task, error)
	UpdateTask(ctx context.Context, companyID, id string, in service.TaskInput) (*model.Task, error)
	SetTaskCompleted(ctx context.Context, companyID, id string, completed bool) (*model.Task, error)
	DeleteTask(ctx context.Context, companyID, id string) error
	ListTasks(ctx context.Context, companyID string, filter model.TaskFilter) ([]*model.Task, error)
}

// CalendarHandler serves calendar events and tasks.
type CalendarHandler struct {
	svc    CalendarService
	logger *slog.Logger
	now    func() time.Time
}

// NewCalendarHandler creates a new CalendarHandler.
func NewCalendarHandler(svc CalendarService, logger *slog.Logger) *CalendarHandler {
	return &CalendarHandler{svc: svc, logger: logger.With("handler", "calendar"), now: time.Now}
}

func toEventInput(req dto.EventRequest) service.EventInput {
	return service.EventInput{
		Title:         req.Title,
		Kind:          req.Kind,
		ApplicationID: req.ApplicationID,
		StartsAt:      req.StartsAt,
		EndsAt:        req.EndsAt,
		Location:      req.Location,
		Attendees:     req.Attendees,
	}
}

func toTaskInput(req dto.TaskRequest) service.TaskInput {
	return service.TaskInput{
		Title:         req.Title,
		Notes:         req.Notes,
		DueAt:         req.DueAt,
		AssigneeID:    req.AssigneeID,
		ApplicationID: req.ApplicationID,
	}
}

// CreateEvent handles POST /api/v1/calendar/events.
func (h *CalendarHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req dto.EventRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	e, err := h.svc.CreateEvent(r.Context(), caller.CompanyID, caller.UserID, toEventInput(req))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// ListEvents handles GET /api/v1/calendar/events?from=&to= (RFC 3339).
// The window defaults to the next 30 days.
func (h *CalendarHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	from, ok := parseTimeParam(w, r, "from", h.now().UTC())
	if !ok {
		return
	}
	to, ok := parseTimeParam(w, r, "to", from.Add(defaultEventWindow))
	if !ok {
		return
	}
	events, err := h.svc.ListEvents(r.Context(), caller.CompanyID, from, to)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewList(events))
}

// GetEvent handles GET /api/v1/calendar/events/{id}.
func (h *CalendarHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	e, err := h.svc.GetEvent(r.Context(), caller.CompanyID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// UpdateEvent handles PATCH /api/v1/calendar/events/{id}.
func (h *CalendarHandler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req dto.EventRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	e, err := h.svc.UpdateEvent(r.Context(), caller.CompanyID, chi.URLParam(r, "id"), toEventInput(req))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// DeleteEvent handles DELETE /api/v1/calendar/events/{id}.
func (h *CalendarHandler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteEvent(r.Context(), caller.CompanyID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateTask handles POST /api/v1/tasks.
func (h *CalendarHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req dto.TaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	t, err := h.svc.CreateTask(r.Context(), caller.CompanyID, caller.UserID, toTaskInput(req))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// ListTasks handles GET /api/v1/tasks?assignee=me|<user id>&include_done=true.
func (h *CalendarHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	filter := model.TaskFilter{
		AssigneeID:  query.Get("assignee"),
		IncludeDone: query.Get("include_done") == "true",
	}
	if filter.AssigneeID == "me" {
		filter.AssigneeID = caller.UserID
	}
	tasks, err := h.svc.ListTasks(r.Context(), caller.CompanyID, filter)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewList(tasks))
}

// GetTask handles GET /api/v1/tasks/{id}.
func (h *CalendarHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	t, err := h.svc.GetTask(r.Context(), caller.CompanyID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// UpdateTask handles PATCH /api/v1/tasks/{id}.
func (h *CalendarHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req dto.TaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	t, err := h.svc.UpdateTask(r.Context(), caller.CompanyID, chi.URLParam(r, "id"), toTaskInput(req))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// CompleteTask handles PUT /api/v1/tasks/{id}/completed.
func (h *CalendarHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req dto.TaskCompleteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	t, err := h.svc.SetTaskCompleted(r.Context(), caller.CompanyID, chi.URLParam(r, "id"), req.Completed)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// DeleteTask handles DELETE /api/v1/tasks/{id}.
func (h *CalendarHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteTask(r.Context(), caller.CompanyID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseTimeParam(w http.ResponseWriter, r *http.Request, name string, fallback time.Time) (time.Time, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback, true
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", name+" must be an RFC 3339 timestamp")
		return time.Time{}, false
	}
	return t.UTC(), true
}
