package billing

import (
	"encoding/json"
	"fmt"
	"time"
)

// Payment processor event types.
const (
	EventSubscriptionActivated = "subscription.activated"
	EventInvoicePaid           = "invoice.paid"
	EventInvoicePaymentFailed  = "invoice.payment_failed"
	EventSubscriptionCanceled  = "subscription.canceled"
	EventSubscriptionUpdated   = "subscription.updated"
)

// PaymentEvent is a webhook notification from the payment processor.
type PaymentEvent struct {
	ID      string           `json:"id"`
	Type    string           `json:"type"`
	Created int64            `json:"created"`
	Data    PaymentEventData `json:"data"`
}

// PaymentEventData carries the subscription fields of an event. Period
// bounds are unix seconds; zero means absent.
type PaymentEventData struct {
	CompanyID         string `json:"company_id"`
	CustomerID        string `json:"customer_id"`
	SubscriptionID    string `json:"subscription_id"`
	PlanCode          string `json:"plan_code"`
	PeriodStart       int64  `json:"period_start"`
	PeriodEnd         int64  `json:"period_end"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
}

// CreatedAt returns the event creation time in UTC.
func (e *PaymentEvent) CreatedAt() time.Time {
	return time.Unix(e.Created, 0).UTC()
}

func unixPtr(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

// ParseEvent decodes and validates a webhook body.
func ParseEvent(body []byte) (*PaymentEvent, error) {
	var ev PaymentEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if ev.ID == "" || ev.Type == "" || ev.Created <= 0 {
		return nil, fmt.Errorf("%w: id, type and created are required", ErrMalformedEvent)
	}
	return &ev, nil
}
