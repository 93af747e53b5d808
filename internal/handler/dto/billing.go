package dto

import (
	"time"

	"github.com/hireloop/hireloop/internal/billing"
)

// ChangePlanRequest switches the tenant to another plan.
type ChangePlanRequest struct {
	PlanCode string `json:"plan_code" validate:"required,max=64"`
}

// AdminActionRequest is a staff override of a subscription.
type AdminActionRequest struct {
	Kind      billing.AdminActionKind `json:"kind" validate:"required,oneof=activate extend_trial grant_grace cancel expire assign_plan"`
	Days      int                     `json:"days,omitempty" validate:"gte=0,lte=365"`
	PeriodEnd *time.Time              `json:"period_end,omitempty"`
	PlanCode  string                  `json:"plan_code,omitempty" validate:"max=64"`
	Reason    string                  `json:"reason,omitempty" validate:"max=500"`
}

// CreatePlanRequest defines a catalog or custom plan.
type CreatePlanRequest struct {
	Code            string   `json:"code" validate:"required,max=64"`
	Name            string   `json:"name" validate:"required,max=100"`
	PriceCents      int64    `json:"price_cents" validate:"gte=0"`
	Currency        string   `json:"currency,omitempty" validate:"omitempty,len=3"`
	Interval        string   `json:"interval,omitempty" validate:"omitempty,oneof=month year"`
	MaxActiveJobs   int      `json:"max_active_jobs" validate:"gte=0"`
	MaxSeats        int      `json:"max_seats" validate:"gte=0"`
	MonthlyAIScores int      `json:"monthly_ai_scores" validate:"gte=0"`
	Features        []string `json:"features,omitempty" validate:"max=20,dive,max=64"`
	CompanyID       string   `json:"company_id,omitempty"`
}

// PaymentWebhookResponse reports how an event was handled.
type PaymentWebhookResponse struct {
	Status string `json:"status"`
}

// SweepResponse reports the number of subscriptions advanced.
type SweepResponse struct {
	Advanced int `json:"advanced"`
}
