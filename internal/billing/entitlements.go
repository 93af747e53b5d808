package billing

import (
	"slices"
	"time"

	"github.com/hireloop/hireloop/internal/model"
)

// Access is the level of product access a subscription grants.
type Access string

const (
	AccessFull     Access = "full"
	AccessReadOnly Access = "read_only"
	AccessNone     Access = "none"
)

// Entitlements is what a company may do right now. It is derived from the
// subscription and plan and is safe to cache.
type Entitlements struct {
	CompanyID        string                   `json:"company_id"`
	Status           model.SubscriptionStatus `json:"status"`
	Access           Access                   `json:"access"`
	PlanID           string                   `json:"plan_id"`
	PlanCode         string                   `json:"plan_code"`
	Features         []string                 `json:"features"`
	MaxActiveJobs    int                      `json:"max_active_jobs"`
	MaxSeats         int                      `json:"max_seats"`
	MonthlyAIScores  int                      `json:"monthly_ai_scores"`
	AIScoresUsed     int                      `json:"ai_scores_used"`
	TrialEndsAt      *time.Time               `json:"trial_ends_at,omitempty"`
	CurrentPeriodEnd *time.Time               `json:"current_period_end,omitempty"`
	GraceEndsAt      *time.Time               `json:"grace_ends_at,omitempty"`
}

// Resolve derives entitlements at time now.
func Resolve(sub *model.Subscription, plan *model.Plan, now time.Time) Entitlements {
	e := Entitlements{
		CompanyID:        sub.CompanyID,
		Status:           sub.Status,
		Access:           accessFor(sub, now),
		PlanID:           plan.ID,
		PlanCode:         plan.Code,
		Features:         append([]string(nil), plan.Features...),
		MaxActiveJobs:    plan.MaxActiveJobs,
		MaxSeats:         plan.MaxSeats,
		MonthlyAIScores:  plan.MonthlyAIScores,
		AIScoresUsed:     sub.AIScoresUsed,
		TrialEndsAt:      sub.TrialEndsAt,
		CurrentPeriodEnd: sub.CurrentPeriodEnd,
		GraceEndsAt:      sub.GraceEndsAt,
	}
	return e
}

func accessFor(sub *model.Subscription, now time.Time) Access {
	switch sub.Status {
	case model.SubTrialing, model.SubActive, model.SubGracePeriod:
		return AccessFull
	case model.SubPastDue:
		return AccessReadOnly
	case model.SubCanceled:
		if sub.CurrentPeriodEnd != nil && now.Before(*sub.CurrentPeriodEnd) {
			return AccessFull
		}
		return AccessNone
	default:
		return AccessNone
	}
}

// CanRead reports whether tenant data may be viewed.
func (e Entitlements) CanRead() bool {
	return e.Access != AccessNone
}

// CanWrite reports whether tenant data may be changed.
func (e Entitlements) CanWrite() bool {
	return e.Access == AccessFull
}

// HasFeature reports whether a plan feature is usable.
func (e Entitlements) HasFeature(f string) bool {
	return e.Access != AccessNone && slices.Contains(e.Features, f)
}

// JobLimitReached reports whether publishing another job would exceed the plan.
func (e Entitlements) JobLimitReached(activeJobs int) bool {
	return e.MaxActiveJobs > 0 && activeJobs >= e.MaxActiveJobs
}

// SeatLimitReached reports whether adding a member would exceed the plan.
func (e Entitlements) SeatLimitReached(seats int) bool {
	return e.MaxSeats > 0 && seats >= e.MaxSeats
}

// AIQuotaRemaining returns the AI scores left this period, or -1 when
// unlimited.
func (e Entitlements) AIQuotaRemaining() int {
	if e.MonthlyAIScores == 0 {
		return -1
	}
	return max(e.MonthlyAIScores-e.AIScoresUsed, 0)
}
