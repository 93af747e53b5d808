package billing

import (
	"fmt"
	"slices"
	"time"

	"github.com/hireloop/hireloop/internal/model"
)

// AdminActionKind names a platform staff override.
type AdminActionKind string

const (
	ActionActivate    AdminActionKind = "activate"
	ActionExtendTrial AdminActionKind = "extend_trial"
	ActionGrantGrace  AdminActionKind = "grant_grace"
	ActionCancel      AdminActionKind = "cancel"
	ActionExpire      AdminActionKind = "expire"
	ActionAssignPlan  AdminActionKind = "assign_plan"
)

// ValidAdminActions lists every admin action kind.
var ValidAdminActions = []AdminActionKind{
	ActionActivate, ActionExtendTrial, ActionGrantGrace, ActionCancel, ActionExpire, ActionAssignPlan,
}

// AdminAction is a manual lifecycle change by platform staff.
type AdminAction struct {
	Kind      AdminActionKind `json:"kind"`
	Days      int             `json:"days,omitempty"`
	PeriodEnd *time.Time      `json:"period_end,omitempty"`
	// PlanID must already be resolved and belong to the company or be public.
	PlanID string `json:"plan_id,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Validate checks parameters independent of the subscription state.
func (a AdminAction) Validate() error {
	if !slices.Contains(ValidAdminActions, a.Kind) {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidAction, a.Kind)
	}
	switch a.Kind {
	case ActionExtendTrial, ActionGrantGrace:
		if a.Days <= 0 || a.Days > 365 {
			return fmt.Errorf("%w: days must be between 1 and 365", ErrInvalidAction)
		}
	case ActionAssignPlan:
		if a.PlanID == "" {
			return fmt.Errorf("%w: plan_id is required", ErrInvalidAction)
		}
	}
	return nil
}

// ApplyAdmin applies a staff action to sub.
func (m *Machine) ApplyAdmin(sub *model.Subscription, a AdminAction) (*Outcome, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}

	now := m.Now()
	out := &Outcome{From: sub.Status, Trigger: model.TriggerAdmin, Reason: string(a.Kind)}
	if a.Reason != "" {
		out.Reason += ": " + a.Reason
	}
	days := time.Duration(a.Days) * 24 * time.Hour

	switch a.Kind {
	case ActionActivate:
		end := now.AddDate(0, 1, 0)
		if a.PeriodEnd != nil {
			if !a.PeriodEnd.After(now) {
				return nil, fmt.Errorf("%w: period_end must be in the future", ErrInvalidAction)
			}
			end = a.PeriodEnd.UTC()
		}
		if sub.Status != model.SubActive {
			sub.CurrentPeriodStart = &now
			sub.AIScoresUsed = 0
			out.ResetUsage = true
		}
		sub.Status = model.SubActive
		sub.CurrentPeriodEnd = &end
		sub.GraceEndsAt = nil
		sub.PastDueSince = nil
		sub.CanceledAt = nil
		sub.EndedAt = nil
		sub.CancelAtPeriodEnd = false
		if a.PlanID != "" {
			sub.PlanID = a.PlanID
		}

	case ActionExtendTrial:
		if sub.Status != model.SubTrialing && sub.Status != model.SubExpired {
			return nil, invalid(sub.Status, string(a.Kind))
		}
		base := now
		if sub.Status == model.SubTrialing && sub.TrialEndsAt != nil && sub.TrialEndsAt.After(now) {
			base = *sub.TrialEndsAt
		}
		end := base.Add(days)
		sub.Status = model.SubTrialing
		sub.TrialEndsAt = &end
		sub.EndedAt = nil

	case ActionGrantGrace:
		if sub.Status != model.SubPastDue && sub.Status != model.SubActive {
			return nil, invalid(sub.Status, string(a.Kind))
		}
		end := now.Add(days)
		sub.Status = model.SubGracePeriod
		sub.GraceEndsAt = &end
		sub.PastDueSince = nil

	case ActionCancel:
		if sub.Status == model.SubExpired {
			return nil, invalid(sub.Status, string(a.Kind))
		}
		if sub.Status != model.SubCanceled {
			sub.CanceledAt = &now
		}
		sub.Status = model.SubCanceled
		sub.CancelAtPeriodEnd = false

	case ActionExpire:
		sub.Status = model.SubExpired
		sub.EndedAt = &now

	case ActionAssignPlan:
		sub.PlanID = a.PlanID
	}

	sub.UpdatedAt = now
	out.To = sub.Status
	return out, nil
}
