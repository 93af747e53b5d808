package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hireloop/hireloop/internal/billing"
	"github.com/hireloop/hireloop/internal/handler/dto"
	"github.com/hireloop/hireloop/internal/metrics"
	"github.com/hireloop/hireloop/internal/model"
	"github.com/hireloop/hireloop/internal/service"
)

// BillingService is the billing surface the handlers need.
type BillingService interface {
	GetSubscription(ctx context.Context, companyID string) (*service.SubscriptionView, error)
	ListPlans(ctx context.Context, companyID string) ([]*model.Plan, error)
	History(ctx context.Context, companyID string) ([]*model.SubscriptionEvent, error)
	ChangePlan(ctx context.Context, companyID, planCode string) (*service.SubscriptionView, error)
}

// BillingHandler serves the tenant's own subscription.
type BillingHandler struct {
	svc    BillingService
	logger *slog.Logger
}

// NewBillingHandler creates a new BillingHandler.
func NewBillingHandler(svc BillingService, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{svc: svc, logger: logger.With("handler", "billing")}
}

// Subscription handles GET /api/v1/billing/subscription.
func (h *BillingHandler) Subscription(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	view, err := h.svc.GetSubscription(r.Context(), caller.CompanyID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Plans handles GET /api/v1/billing/plans.
func (h *BillingHandler) Plans(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	plans, err := h.svc.ListPlans(r.Context(), caller.CompanyID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewList(plans))
}

// History handles GET /api/v1/billing/history.
func (h *BillingHandler) History(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	events, err := h.svc.History(r.Context(), caller.CompanyID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewList(events))
}

// ChangePlan handles POST /api/v1/billing/change-plan.
func (h *BillingHandler) ChangePlan(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req dto.ChangePlanRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	view, err := h.svc.ChangePlan(r.Context(), caller.CompanyID, req.PlanCode)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// PaymentEventHandler applies verified processor events.
type PaymentEventHandler interface {
	HandlePaymentEvent(ctx context.Context, ev *billing.PaymentEvent, payload []byte) (string, error)
}

// PaymentWebhookHandler receives the payment processor's webhooks.
type PaymentWebhookHandler struct {
	svc     PaymentEventHandler
	secret  string
	window  time.Duration
	metrics metrics.Recorder
	logger  *slog.Logger
}

// NewPaymentWebhookHandler creates a receiver verifying with secret.
func NewPaymentWebhookHandler(svc PaymentEventHandler, secret string, window time.Duration, recorder metrics.Recorder, logger *slog.Logger) *PaymentWebhookHandler {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &PaymentWebhookHandler{
		svc:     svc,
		secret:  secret,
		window:  window,
		metrics: recorder,
		logger:  logger.With("handler", "payments"),
	}
}

// Receive handles POST /webhooks/payments. Anything other than a 2xx makes
// the processor redeliver, so only transient failures return 500.
func (h *PaymentWebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Could not read request body")
		return
	}

	if err := billing.VerifySignature(h.secret, r.Header.Get(billing.SignatureHeader), body, h.window); err != nil {
		h.logger.Warn("payment webhook rejected", "reason", err.Error())
		h.metrics.IncPaymentWebhook(service.OutcomeRejected)
		writeError(w, http.StatusBadRequest, "INVALID_SIGNATURE", "Invalid payment signature")
		return
	}

	ev, err := billing.ParseEvent(body)
	if err != nil {
		h.metrics.IncPaymentWebhook(service.OutcomeRejected)
		writeError(w, http.StatusBadRequest, "MALFORMED_EVENT", err.Error())
		return
	}

	outcome, err := h.svc.HandlePaymentEvent(r.Context(), ev, body)
	if err != nil {
		if errors.Is(err, billing.ErrMalformedEvent) {
			writeError(w, http.StatusBadRequest, "MALFORMED_EVENT", err.Error())
			return
		}
		h.logger.Error("payment webhook failed",
			"event_id", ev.ID,
			"event_type", ev.Type,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Event processing failed")
		return
	}

	writeJSON(w, http.StatusOK, dto.PaymentWebhookResponse{Status: outcome})
}

// BillingAdmin is the staff billing surface.
type BillingAdmin interface {
	GetSubscription(ctx context.Context, companyID string) (*service.SubscriptionView, error)
	ListSubscriptions(ctx context.Context, status model.SubscriptionStatus, cursor string, limit int) ([]*model.Subscription, string, error)
	ApplyAdminAction(ctx context.Context, companyID string, in service.AdminActionInput) (*service.SubscriptionView, error)
	CreatePlan(ctx context.Context, in service.PlanInput) (*model.Plan, error)
	ListAllPlans(ctx context.Context) ([]*model.Plan, error)
	DeactivatePlan(ctx context.Context, id string) error
	Sweep(ctx context.Context) (int, error)
}

// ListSubscriptions handles GET /api/v1/admin/subscriptions?status=.
func (h *AdminHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	cursor, limit := pageParams(r)
	status := model.SubscriptionStatus(r.URL.Query().Get("status"))
	subs, next, err := h.billing.ListSubscriptions(r.Context(), status, cursor, limit)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewPage(subs, next))
}

// GetSubscription handles GET /api/v1/admin/companies/{companyID}/subscription.
func (h *AdminHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	view, err := h.billing.GetSubscription(r.Context(), chi.URLParam(r, "companyID"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ApplyAction handles POST /api/v1/admin/companies/{companyID}/subscription/actions.
func (h *AdminHandler) ApplyAction(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req dto.AdminActionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	view, err := h.billing.ApplyAdminAction(r.Context(), chi.URLParam(r, "companyID"), service.AdminActionInput{
		Kind:      req.Kind,
		Days:      req.Days,
		PeriodEnd: req.PeriodEnd,
		PlanCode:  req.PlanCode,
		Reason:    req.Reason,
		ActorID:   caller.UserID,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ListPlans handles GET /api/v1/admin/plans.
func (h *AdminHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.billing.ListAllPlans(r.Context())
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewList(plans))
}

// CreatePlan handles POST /api/v1/admin/plans.
func (h *AdminHandler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var req dto.CreatePlanRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	plan, err := h.billing.CreatePlan(r.Context(), service.PlanInput{
		Code:            req.Code,
		Name:            req.Name,
		PriceCents:      req.PriceCents,
		Currency:        req.Currency,
		Interval:        req.Interval,
		MaxActiveJobs:   req.MaxActiveJobs,
		MaxSeats:        req.MaxSeats,
		MonthlyAIScores: req.MonthlyAIScores,
		Features:        req.Features,
		CompanyID:       req.CompanyID,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, plan)
}

// DeactivatePlan handles DELETE /api/v1/admin/plans/{id}.
func (h *AdminHandler) DeactivatePlan(w http.ResponseWriter, r *http.Request) {
	if err := h.billing.DeactivatePlan(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Sweep handles POST /api/v1/admin/sweep.
func (h *AdminHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	n, err := h.billing.Sweep(r.Context())
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.SweepResponse{Advanced: n})
}
