// Package billing implements the subscription lifecycle and the
// entitlements derived from it.
//
// The Machine is pure: it mutates the subscription it is given and reports
// what happened, leaving persistence and side effects to the caller.
package billing

import (
	"fmt"
	"time"

	"github.com/hireloop/hireloop/internal/model"
)

// Policy holds the lifecycle durations.
type Policy struct {
	TrialPeriod      time.Duration
	GracePeriod      time.Duration
	PastDueRetention time.Duration
}

// DefaultPolicy returns the standard lifecycle durations.
func DefaultPolicy() Policy {
	return Policy{
		TrialPeriod:      14 * 24 * time.Hour,
		GracePeriod:      7 * 24 * time.Hour,
		PastDueRetention: 14 * 24 * time.Hour,
	}
}

// Outcome describes the effect of one trigger on a subscription.
type Outcome struct {
	From    model.SubscriptionStatus
	To      model.SubscriptionStatus
	Trigger model.Trigger
	Reason  string

	// PlanCode is a plan change requested by a processor event. The caller
	// resolves it to a plan id.
	PlanCode string
	// ResetUsage is set when a new billing period started.
	ResetUsage bool
}

// StatusChanged reports whether the status moved.
func (o *Outcome) StatusChanged() bool {
	return o.From != o.To
}

// Machine applies lifecycle triggers to subscriptions.
type Machine struct {
	policy Policy
	now    func() time.Time
}

// NewMachine creates a machine with the given policy.
func NewMachine(policy Policy) *Machine {
	return &Machine{policy: policy, now: time.Now}
}

// SetClock overrides the time source.
func (m *Machine) SetClock(now func() time.Time) {
	m.now = now
}

// Policy returns the machine's lifecycle durations.
func (m *Machine) Policy() Policy {
	return m.policy
}

// Now returns the machine's current time in UTC.
func (m *Machine) Now() time.Time {
	return m.now().UTC()
}

// StartTrial initializes a new subscription in the trialing state.
func (m *Machine) StartTrial(sub *model.Subscription) {
	now := m.Now()
	end := now.Add(m.policy.TrialPeriod)
	sub.Status = model.SubTrialing
	sub.TrialEndsAt = &end
	sub.CreatedAt = now
	sub.UpdatedAt = now
}

// ApplyEvent applies a processor webhook event to sub.
//
// Events created before sub.LastEventAt return ErrStaleEvent and leave sub
// untouched. Unknown types return ErrUnknownEventType.
func (m *Machine) ApplyEvent(sub *model.Subscription, ev *PaymentEvent) (*Outcome, error) {
	created := ev.CreatedAt()
	if sub.LastEventAt != nil && created.Before(*sub.LastEventAt) {
		return nil, ErrStaleEvent
	}

	now := m.Now()
	out := &Outcome{From: sub.Status, To: sub.Status, Trigger: model.TriggerWebhook, Reason: ev.Type}

	switch ev.Type {
	case EventSubscriptionActivated, EventInvoicePaid:
		m.activate(sub, ev, out)

	case EventInvoicePaymentFailed:
		switch sub.Status {
		case model.SubActive:
			graceEnd := now.Add(m.policy.GracePeriod)
			sub.Status = model.SubGracePeriod
			sub.GraceEndsAt = &graceEnd
		case model.SubTrialing:
			sub.Status = model.SubPastDue
			sub.PastDueSince = &now
		case model.SubGracePeriod, model.SubPastDue:
			// Already delinquent; deadlines are not extended.
		default:
			return nil, invalid(sub.Status, ev.Type)
		}

	case EventSubscriptionCanceled:
		if sub.Status == model.SubExpired {
			return nil, invalid(sub.Status, ev.Type)
		}
		if ev.Data.CancelAtPeriodEnd {
			sub.CancelAtPeriodEnd = true
			break
		}
		if sub.Status != model.SubCanceled {
			sub.Status = model.SubCanceled
			sub.CanceledAt = &now
		}
		sub.CancelAtPeriodEnd = false

	case EventSubscriptionUpdated:
		out.PlanCode = ev.Data.PlanCode

	default:
		return nil, ErrUnknownEventType
	}

	if ev.Data.CustomerID != "" {
		sub.ExternalCustomerID = ev.Data.CustomerID
	}
	if ev.Data.SubscriptionID != "" {
		sub.ExternalSubscriptionID = ev.Data.SubscriptionID
	}
	sub.LastEventAt = &created
	sub.UpdatedAt = now
	out.To = sub.Status
	return out, nil
}

// activate moves sub to active and opens the period carried by ev.
func (m *Machine) activate(sub *model.Subscription, ev *PaymentEvent, out *Outcome) {
	start := unixPtr(ev.Data.PeriodStart)
	end := unixPtr(ev.Data.PeriodEnd)

	if start != nil && (sub.CurrentPeriodStart == nil || !start.Equal(*sub.CurrentPeriodStart)) {
		out.ResetUsage = true
		sub.AIScoresUsed = 0
	}
	if start != nil {
		sub.CurrentPeriodStart = start
	}
	if end != nil {
		sub.CurrentPeriodEnd = end
	}

	sub.Status = model.SubActive
	sub.GraceEndsAt = nil
	sub.PastDueSince = nil
	sub.EndedAt = nil

	if ev.Type == EventSubscriptionActivated {
		sub.CanceledAt = nil
		sub.CancelAtPeriodEnd = ev.Data.CancelAtPeriodEnd
	}
	out.PlanCode = ev.Data.PlanCode
}

// Advance applies at most one time-based transition whose deadline has
// passed. The second return value is false when nothing was due.
func (m *Machine) Advance(sub *model.Subscription) (*Outcome, bool) {
	now := m.Now()
	out := &Outcome{From: sub.Status, Trigger: model.TriggerTime}

	switch sub.Status {
	case model.SubTrialing:
		if !passed(sub.TrialEndsAt, now) {
			return nil, false
		}
		sub.Status = model.SubExpired
		sub.EndedAt = &now
		out.Reason = "trial ended"

	case model.SubGracePeriod:
		if !passed(sub.GraceEndsAt, now) {
			return nil, false
		}
		sub.Status = model.SubPastDue
		sub.PastDueSince = &now
		out.Reason = "grace period ended"

	case model.SubPastDue:
		if sub.PastDueSince == nil || now.Before(sub.PastDueSince.Add(m.policy.PastDueRetention)) {
			return nil, false
		}
		sub.Status = model.SubExpired
		sub.EndedAt = &now
		out.Reason = "past due retention ended"

	case model.SubActive:
		if !sub.CancelAtPeriodEnd || !passed(sub.CurrentPeriodEnd, now) {
			return nil, false
		}
		sub.Status = model.SubCanceled
		sub.CanceledAt = &now
		sub.CancelAtPeriodEnd = false
		out.Reason = "canceled at period end"

	case model.SubCanceled:
		if sub.CurrentPeriodEnd != nil && now.Before(*sub.CurrentPeriodEnd) {
			return nil, false
		}
		sub.Status = model.SubExpired
		sub.EndedAt = &now
		out.Reason = "paid access ended"

	default:
		return nil, false
	}

	sub.UpdatedAt = now
	out.To = sub.Status
	return out, true
}

// NextDeadline returns when the next time-based transition is due, or nil
// if the current status has none.
func (m *Machine) NextDeadline(sub *model.Subscription) *time.Time {
	switch sub.Status {
	case model.SubTrialing:
		return sub.TrialEndsAt
	case model.SubGracePeriod:
		return sub.GraceEndsAt
	case model.SubPastDue:
		if sub.PastDueSince == nil {
			return nil
		}
		t := sub.PastDueSince.Add(m.policy.PastDueRetention)
		return &t
	case model.SubActive:
		if sub.CancelAtPeriodEnd {
			return sub.CurrentPeriodEnd
		}
	case model.SubCanceled:
		if sub.CurrentPeriodEnd == nil {
			now := m.Now()
			return &now
		}
		return sub.CurrentPeriodEnd
	}
	return nil
}

func passed(deadline *time.Time, now time.Time) bool {
	return deadline != nil && !now.Before(*deadline)
}

func invalid(from model.SubscriptionStatus, trigger string) error {
	return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, trigger, from)
}
