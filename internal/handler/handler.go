// Package handler provides HTTP request handlers.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hireloop/hireloop/internal/auth"
	"github.com/hireloop/hireloop/internal/billing"
	"github.com/hireloop/hireloop/internal/handler/dto"
	"github.com/hireloop/hireloop/internal/middleware"
	"github.com/hireloop/hireloop/internal/model"
	"github.com/hireloop/hireloop/internal/repository"
	"github.com/hireloop/hireloop/internal/service"
	"github.com/hireloop/hireloop/internal/webhook"
)

// Version is reported by the index endpoint.
const Version = "1.0.0"

const defaultPageSize = 20

// Handler serves the router-level endpoints.
type Handler struct{}

// New creates a new Handler instance.
func New() *Handler {
	return &Handler{}
}

// Index identifies the service.
// GET /
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "hireloop",
		"version": Version,
	})
}

// NotFound handles 404 responses.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
}

// MethodNotAllowed handles 405 responses.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{Error: message, Code: code})
}

// decodeJSON reads the body into dst and validates it. It writes the error
// response itself and reports whether the handler should continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return false
	}
	if err := dto.Validate(dst); err != nil {
		var verr *dto.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", verr.Error())
			return false
		}
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return false
	}
	return true
}

// validLink checks an optional profile link and writes 400 when it is
// unusable.
func validLink(w http.ResponseWriter, field string, link *string) bool {
	if link == nil {
		return true
	}
	if err := middleware.ValidateURL(*link); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_URL", field+": "+err.Error())
		return false
	}
	return true
}

// callerFrom returns the authenticated caller or writes 401.
func callerFrom(w http.ResponseWriter, r *http.Request) (*model.AuthContext, bool) {
	authCtx := auth.AuthFromContext(r.Context())
	if authCtx == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return nil, false
	}
	return authCtx, true
}

// pageParams reads cursor and limit query parameters.
func pageParams(r *http.Request) (string, int) {
	query := r.URL.Query()
	limit := defaultPageSize
	if l := query.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	return query.Get("cursor"), limit
}

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// Empty messages fall back to the error text.
var errorMappings = []errorMapping{
	{service.ErrCompanyNotFound, http.StatusNotFound, "COMPANY_NOT_FOUND", "Company not found"},
	{service.ErrUserNotFound, http.StatusNotFound, "USER_NOT_FOUND", "User not found"},
	{service.ErrMemberNotFound, http.StatusNotFound, "MEMBER_NOT_FOUND", "Member not found"},
	{service.ErrAPIKeyNotFound, http.StatusNotFound, "API_KEY_NOT_FOUND", "API key not found"},
	{service.ErrJobNotFound, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found"},
	{service.ErrCandidateNotFound, http.StatusNotFound, "CANDIDATE_NOT_FOUND", "Candidate not found"},
	{service.ErrApplicationNotFound, http.StatusNotFound, "APPLICATION_NOT_FOUND", "Application not found"},
	{service.ErrSubscriptionNotFound, http.StatusNotFound, "SUBSCRIPTION_NOT_FOUND", "Subscription not found"},
	{service.ErrPlanNotFound, http.StatusNotFound, "PLAN_NOT_FOUND", "Plan not found"},
	{service.ErrTicketNotFound, http.StatusNotFound, "TICKET_NOT_FOUND", "Ticket not found"},
	{service.ErrEventNotFound, http.StatusNotFound, "EVENT_NOT_FOUND", "Calendar event not found"},
	{service.ErrTaskNotFound, http.StatusNotFound, "TASK_NOT_FOUND", "Task not found"},
	{webhook.ErrEndpointNotFound, http.StatusNotFound, "NOT_FOUND", "Webhook not found"},
	{webhook.ErrDeliveryNotFound, http.StatusNotFound, "NOT_FOUND", "Delivery not found or not exhausted"},

	{service.ErrInvalidInput, http.StatusBadRequest, "INVALID_INPUT", ""},
	{service.ErrInvalidReference, http.StatusBadRequest, "INVALID_REFERENCE", ""},
	{service.ErrInvalidInvite, http.StatusBadRequest, "INVALID_INVITE", "Invitation is invalid"},
	{repository.ErrInvalidCursor, http.StatusBadRequest, "INVALID_CURSOR", "Invalid pagination cursor"},
	{billing.ErrInvalidAction, http.StatusBadRequest, "INVALID_ACTION", ""},

	{service.ErrInviteExpired, http.StatusGone, "INVITE_EXPIRED", "Invitation has expired"},
	{service.ErrInviteUsed, http.StatusGone, "INVITE_USED", "Invitation was already used"},

	{service.ErrOwnerRequired, http.StatusForbidden, "OWNER_REQUIRED", "Only owners can grant or revoke ownership"},
	{service.ErrScopeNotAllowed, http.StatusForbidden, "SCOPE_NOT_ALLOWED", "Requested scopes exceed your role"},

	{service.ErrSeatLimitReached, http.StatusPaymentRequired, "SEAT_LIMIT_REACHED", "Plan seat limit reached"},
	{service.ErrJobLimitReached, http.StatusPaymentRequired, "JOB_LIMIT_REACHED", "Plan active job limit reached"},
	{service.ErrSubscriptionInactive, http.StatusPaymentRequired, "SUBSCRIPTION_INACTIVE", "Subscription does not allow this action"},
	{service.ErrFeatureNotAvailable, http.StatusPaymentRequired, "FEATURE_NOT_AVAILABLE", "Your plan does not include this feature"},
	{service.ErrPlanUnavailable, http.StatusPaymentRequired, "PLAN_UNAVAILABLE", "Plan is not available to this company"},

	{service.ErrAlreadyMember, http.StatusConflict, "ALREADY_MEMBER", "User is already a member"},
	{service.ErrLastOwner, http.StatusConflict, "LAST_OWNER", "Company must keep at least one owner"},
	{service.ErrSlugTaken, http.StatusConflict, "SLUG_TAKEN", "Slug is already taken"},
	{service.ErrJobNotOpen, http.StatusConflict, "JOB_NOT_OPEN", "Job is not accepting applications"},
	{service.ErrInvalidJobTransition, http.StatusConflict, "INVALID_TRANSITION", ""},
	{service.ErrAlreadyApplied, http.StatusConflict, "ALREADY_APPLIED", "Candidate already applied to this job"},
	{service.ErrInvalidStageTransition, http.StatusConflict, "INVALID_TRANSITION", ""},
	{service.ErrStageConflict, http.StatusConflict, "STAGE_CONFLICT", "Application stage changed concurrently, retry"},
	{service.ErrPlanCodeExists, http.StatusConflict, "PLAN_CODE_EXISTS", "Plan code already exists"},
	{service.ErrTicketClosed, http.StatusConflict, "TICKET_CLOSED", "Ticket is closed"},
	{billing.ErrInvalidTransition, http.StatusConflict, "INVALID_TRANSITION", ""},
}

// handleServiceError maps domain errors to responses. Unknown errors are
// logged and reported as 500.
func handleServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			msg := m.message
			if msg == "" {
				msg = err.Error()
			}
			writeError(w, m.status, m.code, msg)
			return
		}
	}
	logger.Error("internal_error", "error", err)
	writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
}
