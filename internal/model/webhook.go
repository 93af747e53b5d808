package model

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// EventType names an outbound webhook event.
type EventType string

const (
	EventApplicationCreated        EventType = "application.created"
	EventApplicationStatusChanged  EventType = "application.status_changed"
	EventApplicationScored         EventType = "application.scored"
	EventSubscriptionStatusChanged EventType = "subscription.status_changed"
)

// EventDescriptor documents one event in the catalog served to tenants.
type EventDescriptor struct {
	Type        EventType `json:"type"`
	Description string    `json:"description"`
}

// EventCatalog lists every event Hireloop emits, in display order.
var EventCatalog = []EventDescriptor{
	{EventApplicationCreated, "A candidate applied to one of your jobs."},
	{EventApplicationStatusChanged, "An application moved through the pipeline."},
	{EventApplicationScored, "AI scoring finished for an application."},
	{EventSubscriptionStatusChanged, "Your subscription changed state."},
}

// ErrUnknownEventType is returned for event names outside the catalog.
var ErrUnknownEventType = errors.New("unknown event type")

// AllEventTypes returns every cataloged event type.
func AllEventTypes() []EventType {
	out := make([]EventType, len(EventCatalog))
	for i, d := range EventCatalog {
		out[i] = d.Type
	}
	return out
}

func (et EventType) IsValid() bool {
	return slices.Contains(AllEventTypes(), et)
}

// NormalizeEventTypes validates a subscription list and returns it
// deduplicated in catalog order.
func NormalizeEventTypes(in []EventType) ([]EventType, error) {
	for _, et := range in {
		if !et.IsValid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, et)
		}
	}
	out := make([]EventType, 0, len(in))
	for _, et := range AllEventTypes() {
		if slices.Contains(in, et) {
			out = append(out, et)
		}
	}
	return out, nil
}

type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusSuccess   DeliveryStatus = "success"
	DeliveryStatusFailed    DeliveryStatus = "failed"
	DeliveryStatusExhausted DeliveryStatus = "exhausted"
)

// Final reports whether the worker will never pick the delivery up again.
func (s DeliveryStatus) Final() bool {
	return s == DeliveryStatusSuccess || s == DeliveryStatusExhausted
}

// WebhookEndpoint is a tenant-registered receiver. SecretHash holds the
// HMAC signing key derived from the secret shown at creation.
type WebhookEndpoint struct {
	ID          string      `json:"id"`
	CompanyID   string      `json:"company_id"`
	TargetURL   string      `json:"target_url"`
	SecretHash  string      `json:"-"`
	Enabled     bool        `json:"enabled"`
	EventTypes  []EventType `json:"event_types"`
	Name        string      `json:"name,omitempty"`
	Description string      `json:"description,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	DeletedAt   *time.Time  `json:"-"`
}

func (e *WebhookEndpoint) IsActive() bool {
	return e.Enabled && e.DeletedAt == nil
}

func (e *WebhookEndpoint) SubscribesToEvent(et EventType) bool {
	return slices.Contains(e.EventTypes, et)
}

// WebhookDelivery is one event queued for one endpoint.
type WebhookDelivery struct {
	ID             string
	EndpointID     string
	EventID        string
	EventType      EventType
	PayloadJSON    string
	Status         DeliveryStatus
	AttemptCount   int
	MaxAttempts    int
	NextRetryAt    time.Time
	LastAttemptAt  *time.Time
	LastHTTPStatus *int
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// WebhookEndpointInput is the body of POST /api/v1/webhooks. An empty
// EventTypes subscribes to the whole catalog.
type WebhookEndpointInput struct {
	Name        string      `json:"name,omitempty"`
	Description string      `json:"description,omitempty"`
	TargetURL   string      `json:"target_url"`
	EventTypes  []EventType `json:"event_types,omitempty"`
}

// WebhookEndpointPatch is the body of PATCH /api/v1/webhooks/{id}; nil
// fields are left alone.
type WebhookEndpointPatch struct {
	Name        *string      `json:"name,omitempty"`
	Description *string      `json:"description,omitempty"`
	TargetURL   *string      `json:"target_url,omitempty"`
	Enabled     *bool        `json:"enabled,omitempty"`
	EventTypes  *[]EventType `json:"event_types,omitempty"`
}

type WebhookEndpointResponse struct {
	ID          string      `json:"id"`
	Name        string      `json:"name,omitempty"`
	Description string      `json:"description,omitempty"`
	TargetURL   string      `json:"target_url"`
	Enabled     bool        `json:"enabled"`
	EventTypes  []EventType `json:"event_types"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

func (e *WebhookEndpoint) ToResponse() WebhookEndpointResponse {
	return WebhookEndpointResponse{
		ID:          e.ID,
		Name:        e.Name,
		Description: e.Description,
		TargetURL:   e.TargetURL,
		Enabled:     e.Enabled,
		EventTypes:  e.EventTypes,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

// WebhookEndpointCreateResponse carries the plaintext secret. It is the
// only response that ever does.
type WebhookEndpointCreateResponse struct {
	WebhookEndpointResponse
	Secret string `json:"secret"`
}

type WebhookDeliveryResponse struct {
	ID             string         `json:"id"`
	EventID        string         `json:"event_id"`
	EventType      EventType      `json:"event_type"`
	Status         DeliveryStatus `json:"status"`
	AttemptCount   int            `json:"attempt_count"`
	MaxAttempts    int            `json:"max_attempts"`
	NextRetryAt    *time.Time     `json:"next_retry_at,omitempty"`
	LastAttemptAt  *time.Time     `json:"last_attempt_at,omitempty"`
	LastHTTPStatus *int           `json:"last_http_status,omitempty"`
	LastError      string         `json:"last_error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ToResponse omits the payload. NextRetryAt is only shown while the
// delivery can still be attempted.
func (d *WebhookDelivery) ToResponse() WebhookDeliveryResponse {
	resp := WebhookDeliveryResponse{
		ID:             d.ID,
		EventID:        d.EventID,
		EventType:      d.EventType,
		Status:         d.Status,
		AttemptCount:   d.AttemptCount,
		MaxAttempts:    d.MaxAttempts,
		LastAttemptAt:  d.LastAttemptAt,
		LastHTTPStatus: d.LastHTTPStatus,
		LastError:      d.LastError,
		CreatedAt:      d.CreatedAt,
	}
	if !d.Status.Final() && !d.NextRetryAt.IsZero() {
		next := d.NextRetryAt
		resp.NextRetryAt = &next
	}
	return resp
}

// WebhookPayload is the signed body POSTed to endpoints.
type WebhookPayload struct {
	EventType string         `json:"event_type"`
	EventID   string         `json:"event_id"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// ApplicationEventData is the data of application.* events.
type ApplicationEventData struct {
	ApplicationID  string `json:"application_id"`
	JobID          string `json:"job_id"`
	CandidateID    string `json:"candidate_id"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previous_status,omitempty"`
	Score          *int   `json:"score,omitempty"`
}

type SubscriptionEventData struct {
	SubscriptionID string `json:"subscription_id"`
	From           string `json:"from"`
	To             string `json:"to"`
	Trigger        string `json:"trigger"`
	PlanCode       string `json:"plan_code,omitempty"`
}
