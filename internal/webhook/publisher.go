package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hireloop/hireloop/internal/model"
)

// fanout is the part of Store the publisher writes through.
type fanout interface {
	SubscribedEndpoints(ctx context.Context, companyID string, et model.EventType) ([]*model.WebhookEndpoint, error)
	Enqueue(ctx context.Context, d *model.WebhookDelivery) error
}

// Publisher turns domain events into queued deliveries, one per
// subscribed endpoint. Sending is the Worker's job.
type Publisher struct {
	store  fanout
	logger *slog.Logger
	now    func() time.Time
}

func NewPublisher(store fanout, logger *slog.Logger) *Publisher {
	return &Publisher{
		store:  store,
		logger: logger.With("component", "webhook.publisher"),
		now:    time.Now,
	}
}

// Publish queues eventType for every active endpoint of companyID that
// subscribes to it. data must encode to a JSON object. Every subscriber
// shares one event ID, and an endpoint whose delivery cannot be queued is
// logged and skipped.
func (p *Publisher) Publish(ctx context.Context, companyID string, eventType model.EventType, data any) error {
	targets, err := p.store.SubscribedEndpoints(ctx, companyID, eventType)
	if err != nil {
		return fmt.Errorf("find subscribers: %w", err)
	}
	if len(targets) == 0 {
		return nil
	}

	at := p.now().UTC()
	eventID := ulid.Make().String()
	body, err := encodeEvent(eventType, eventID, at, data)
	if err != nil {
		return err
	}

	queued := 0
	for _, ep := range targets {
		d := &model.WebhookDelivery{
			ID:          ulid.Make().String(),
			EndpointID:  ep.ID,
			EventID:     eventID,
			EventType:   eventType,
			PayloadJSON: body,
			Status:      model.DeliveryStatusPending,
			MaxAttempts: DefaultMaxAttempts,
			NextRetryAt: at,
			CreatedAt:   at,
			UpdatedAt:   at,
		}
		if err := p.store.Enqueue(ctx, d); err != nil {
			p.logger.Warn("delivery not queued", "endpoint_id", ep.ID, "event_id", eventID, "event_type", eventType, "error", err)
			continue
		}
		queued++
	}

	p.logger.Debug("event published", "event_id", eventID, "event_type", eventType, "queued", queued, "subscribers", len(targets))
	return nil
}

func encodeEvent(eventType model.EventType, eventID string, at time.Time, data any) (string, error) {
	fields, ok := data.(map[string]any)
	if !ok {
		raw, err := json.Marshal(data)
		if err != nil {
			return "", fmt.Errorf("marshal event data: %w", err)
		}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return "", fmt.Errorf("event data must be an object: %w", err)
		}
	}
	body, err := json.Marshal(model.WebhookPayload{
		EventType: string(eventType),
		EventID:   eventID,
		Timestamp: at,
		Data:      fields,
	})
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(body), nil
}
