package model

import (
	"slices"
	"time"
)

// Feature flags granted by a plan.
const (
	FeatureAIScoring      = "ai_scoring"
	FeatureTalentSearch   = "talent_search"
	FeatureCalendar       = "calendar"
	FeatureAPIAccess      = "api_access"
	FeatureCustomBranding = "custom_branding"
)

// ValidFeatures contains all known feature flags.
var ValidFeatures = []string{
	FeatureAIScoring,
	FeatureTalentSearch,
	FeatureCalendar,
	FeatureAPIAccess,
	FeatureCustomBranding,
}

// Billing intervals.
const (
	IntervalMonth = "month"
	IntervalYear  = "year"
)

// Plan describes a purchasable set of limits and features.
// Limits of 0 mean unlimited. A plan with CompanyID set is a custom plan
// visible only to that company.
type Plan struct {
	ID              string    `json:"id"`
	Code            string    `json:"code"`
	Name            string    `json:"name"`
	PriceCents      int64     `json:"price_cents"`
	Currency        string    `json:"currency"`
	Interval        string    `json:"interval"`
	MaxActiveJobs   int       `json:"max_active_jobs"`
	MaxSeats        int       `json:"max_seats"`
	MonthlyAIScores int       `json:"monthly_ai_scores"`
	Features        []string  `json:"features"`
	CompanyID       *string   `json:"company_id,omitempty"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
}

// HasFeature checks if the plan includes a feature.
func (p *Plan) HasFeature(f string) bool {
	return slices.Contains(p.Features, f)
}

// IsCustom returns true for tenant-specific plans.
func (p *Plan) IsCustom() bool {
	return p.CompanyID != nil
}

// SubscriptionStatus is a state of the subscription lifecycle.
type SubscriptionStatus string

const (
	SubTrialing    SubscriptionStatus = "trialing"
	SubActive      SubscriptionStatus = "active"
	SubGracePeriod SubscriptionStatus = "grace_period"
	SubPastDue     SubscriptionStatus = "past_due"
	SubCanceled    SubscriptionStatus = "canceled"
	SubExpired     SubscriptionStatus = "expired"
)

// ValidSubscriptionStatuses contains all lifecycle states.
var ValidSubscriptionStatuses = []SubscriptionStatus{
	SubTrialing, SubActive, SubGracePeriod, SubPastDue, SubCanceled, SubExpired,
}

// IsValid checks if the status is known.
func (s SubscriptionStatus) IsValid() bool {
	return slices.Contains(ValidSubscriptionStatuses, s)
}

// Subscription is a company's billing relationship. There is exactly one
// per company.
type Subscription struct {
	ID                     string             `json:"id"`
	CompanyID              string             `json:"company_id"`
	PlanID                 string             `json:"plan_id"`
	Status                 SubscriptionStatus `json:"status"`
	ExternalCustomerID     string             `json:"external_customer_id,omitempty"`
	ExternalSubscriptionID string             `json:"external_subscription_id,omitempty"`
	TrialEndsAt            *time.Time         `json:"trial_ends_at,omitempty"`
	CurrentPeriodStart     *time.Time         `json:"current_period_start,omitempty"`
	CurrentPeriodEnd       *time.Time         `json:"current_period_end,omitempty"`
	GraceEndsAt            *time.Time         `json:"grace_ends_at,omitempty"`
	PastDueSince           *time.Time         `json:"past_due_since,omitempty"`
	CancelAtPeriodEnd      bool               `json:"cancel_at_period_end"`
	CanceledAt             *time.Time         `json:"canceled_at,omitempty"`
	EndedAt                *time.Time         `json:"ended_at,omitempty"`
	AIScoresUsed           int                `json:"ai_scores_used"`
	LastEventAt            *time.Time         `json:"last_event_at,omitempty"`
	CreatedAt              time.Time          `json:"created_at"`
	UpdatedAt              time.Time          `json:"updated_at"`
}

// Clone returns a copy that can be mutated without touching the original.
func (s *Subscription) Clone() *Subscription {
	c := *s
	return &c
}

// Trigger identifies what caused a subscription transition.
type Trigger string

const (
	TriggerWebhook Trigger = "webhook"
	TriggerTime    Trigger = "time"
	TriggerAdmin   Trigger = "admin"
	TriggerTenant  Trigger = "tenant"
)

// SubscriptionEvent is one row of a subscription's transition history.
type SubscriptionEvent struct {
	ID             string             `json:"id"`
	SubscriptionID string             `json:"subscription_id"`
	From           SubscriptionStatus `json:"from"`
	To             SubscriptionStatus `json:"to"`
	Trigger        Trigger            `json:"trigger"`
	Reason         string             `json:"reason,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}

// BillingEvent is the durable record of a processed payment webhook.
type BillingEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	CompanyID  string    `json:"company_id,omitempty"`
	Outcome    string    `json:"outcome"`
	Payload    []byte    `json:"-"`
	ReceivedAt time.Time `json:"received_at"`
}
