// Package analytics moves careers-page job views through a Redis stream
// into per-day job statistics.
package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/hireloop/hireloop/internal/metrics"
	"github.com/hireloop/hireloop/internal/model"
)

const (
	StreamKey           = "hl:stream:job_views"
	DeadLetterStreamKey = "hl:stream:job_views:dlq"

	// MaxStreamLen caps the stream (approximately) when workers fall behind.
	MaxStreamLen = 100000

	// PublishTimeout bounds one fire-and-forget publish.
	PublishTimeout = 100 * time.Millisecond
)

// ViewEventPayload is the compact stream form of a job view.
type ViewEventPayload struct {
	JobID       string `json:"jid"`
	CompanyID   string `json:"cid"`
	Source      string `json:"src,omitempty"`
	Referrer    string `json:"r,omitempty"`
	VisitorHash string `json:"vh"`
	CountryCode string `json:"cc,omitempty"`
	ViewedAt    int64  `json:"t"` // unix ms
}

func (p ViewEventPayload) Validate() error {
	var errs []error
	if p.JobID == "" {
		errs = append(errs, errors.New("job id is required"))
	}
	if p.CompanyID == "" {
		errs = append(errs, errors.New("company id is required"))
	}
	if len(p.VisitorHash) != visitorHashLen || !isHex(p.VisitorHash) {
		errs = append(errs, fmt.Errorf("visitor hash must be %d hex chars", visitorHashLen))
	}
	if p.CountryCode != "" && len(p.CountryCode) != 2 {
		errs = append(errs, errors.New("country code must be 2 chars"))
	}
	if p.ViewedAt <= 0 {
		errs = append(errs, errors.New("viewed at must be set"))
	}
	if len(p.Referrer) > maxMetaLength || len(p.Source) > maxMetaLength {
		errs = append(errs, errors.New("referrer or source too long"))
	}
	return errors.Join(errs...)
}

func (p ViewEventPayload) view(eventID string) *model.JobView {
	return &model.JobView{
		ID:          ulid.Make().String(),
		EventID:     eventID,
		CompanyID:   p.CompanyID,
		JobID:       p.JobID,
		Source:      p.Source,
		Referrer:    p.Referrer,
		VisitorHash: strings.ToLower(p.VisitorHash),
		CountryCode: p.CountryCode,
		ViewedAt:    time.UnixMilli(p.ViewedAt).UTC(),
	}
}

// Publisher appends job views to StreamKey.
type Publisher struct {
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder
}

func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "analytics.publisher"),
		metrics: recorder,
	}
}

// Publish appends one view and returns the stream entry ID.
func (p *Publisher) Publish(ctx context.Context, event ViewEventPayload) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal view: %w", err)
	}
	id, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true,
		Values: map[string]any{"payload": string(data)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("append view: %w", err)
	}
	return id, nil
}

// PublishAsync publishes off the request path. Views that cannot be
// appended within PublishTimeout are dropped and counted.
func (p *Publisher) PublishAsync(event ViewEventPayload) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		defer cancel()

		outcome := "success"
		if _, err := p.Publish(ctx, event); err != nil {
			outcome = "dropped"
			p.logger.Warn("job view dropped", "job_id", event.JobID, "error", err)
		}
		p.metrics.IncJobViewPublished(outcome)
	}()
}
