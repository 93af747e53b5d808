package webhook

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hireloop/hireloop/internal/model"
)

// ClaimLease is how long a claimed delivery stays invisible to other workers.
const ClaimLease = 2 * time.Minute

const maxErrorLen = 500

const deliveryColumns = `id, endpoint_id, event_id, event_type, payload_json,
	status, attempt_count, max_attempts, next_retry_at,
	last_attempt_at, last_http_status, last_error,
	created_at, updated_at`

// Failure describes one unsuccessful attempt.
type Failure struct {
	HTTPStatus  *int
	Reason      string
	NextAttempt time.Time
	Exhausted   bool
}

// DeliveryQuery pages through an endpoint's deliveries. An empty Statuses
// matches every status.
type DeliveryQuery struct {
	Statuses []string
	Limit    int
	Offset   int
}

func scanDelivery(row scanner) (*model.WebhookDelivery, error) {
	var (
		d                 model.WebhookDelivery
		eventType, status string
		lastError         sql.NullString
	)
	err := row.Scan(&d.ID, &d.EndpointID, &d.EventID, &eventType, &d.PayloadJSON,
		&status, &d.AttemptCount, &d.MaxAttempts, &d.NextRetryAt,
		&d.LastAttemptAt, &d.LastHTTPStatus, &lastError,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.EventType = model.EventType(eventType)
	d.Status = model.DeliveryStatus(status)
	d.LastError = lastError.String
	return &d, nil
}

func (s *Store) deliveries(ctx context.Context, query string, args ...any) ([]*model.WebhookDelivery, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.WebhookDelivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Enqueue stores a delivery. Re-enqueueing the same event for the same
// endpoint is a no-op.
func (s *Store) Enqueue(ctx context.Context, d *model.WebhookDelivery) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_deliveries (id, endpoint_id, event_id, event_type, payload_json,
			status, attempt_count, max_attempts, next_retry_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (event_id, endpoint_id) DO NOTHING`,
		d.ID, d.EndpointID, d.EventID, string(d.EventType), d.PayloadJSON,
		string(d.Status), d.AttemptCount, d.MaxAttempts, d.NextRetryAt, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("enqueue delivery: %w", err)
	}
	return nil
}

// ClaimDue leases up to limit due deliveries by pushing next_retry_at out
// by ClaimLease. SKIP LOCKED keeps concurrent workers off each other's rows.
// Deliveries of disabled or deleted endpoints are claimed too, so the
// worker can close them out.
func (s *Store) ClaimDue(ctx context.Context, limit int) ([]*model.WebhookDelivery, error) {
	now := s.now()
	claimed, err := s.deliveries(ctx, `
		UPDATE webhook_deliveries SET next_retry_at = $3
		WHERE id IN (
			SELECT id FROM webhook_deliveries
			WHERE status IN ('pending', 'failed') AND next_retry_at <= $1
			ORDER BY next_retry_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+deliveryColumns, now, limit, now.Add(ClaimLease))
	if err != nil {
		return nil, fmt.Errorf("claim due deliveries: %w", err)
	}
	return claimed, nil
}

func (s *Store) MarkDelivered(ctx context.Context, id string, httpStatus int) error {
	return s.execOne(ctx, ErrDeliveryNotFound, "mark delivered", `
		UPDATE webhook_deliveries
		SET status = 'success', attempt_count = attempt_count + 1,
		    last_attempt_at = $2, last_http_status = $3, last_error = NULL, updated_at = $2
		WHERE id = $1`, id, s.now(), httpStatus)
}

// MarkFailed records a failed attempt and either reschedules the delivery
// or exhausts it.
func (s *Store) MarkFailed(ctx context.Context, id string, f Failure) error {
	status := model.DeliveryStatusFailed
	if f.Exhausted {
		status = model.DeliveryStatusExhausted
	}
	reason := f.Reason
	if len(reason) > maxErrorLen {
		reason = reason[:maxErrorLen]
	}
	return s.execOne(ctx, ErrDeliveryNotFound, "mark failed", `
		UPDATE webhook_deliveries
		SET status = $2, attempt_count = attempt_count + 1,
		    last_attempt_at = $3, last_http_status = $4, last_error = $5,
		    next_retry_at = $6, updated_at = $3
		WHERE id = $1`, id, string(status), s.now(), f.HTTPStatus, reason, f.NextAttempt)
}

func (s *Store) Delivery(ctx context.Context, id string) (*model.WebhookDelivery, error) {
	d, err := scanDelivery(s.db.QueryRowContext(ctx,
		`SELECT `+deliveryColumns+` FROM webhook_deliveries WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeliveryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load delivery: %w", err)
	}
	return d, nil
}

// EndpointDeliveries returns one page of an endpoint's deliveries, newest
// first, with the total matching q.
func (s *Store) EndpointDeliveries(ctx context.Context, endpointID string, q DeliveryQuery) ([]*model.WebhookDelivery, int, error) {
	var statuses any
	if len(q.Statuses) > 0 {
		statuses = pq.StringArray(q.Statuses)
	}
	const filter = `WHERE endpoint_id = $1 AND ($2::text[] IS NULL OR status = ANY($2::text[]))`

	var total int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM webhook_deliveries `+filter,
		endpointID, statuses).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count deliveries: %w", err)
	}

	page, err := s.deliveries(ctx, `SELECT `+deliveryColumns+`
		FROM webhook_deliveries `+filter+`
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`, endpointID, statuses, q.Limit, q.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list deliveries: %w", err)
	}
	return page, total, nil
}

// Requeue gives an exhausted delivery of endpointID a fresh start. Any
// other state is reported as ErrDeliveryNotFound.
func (s *Store) Requeue(ctx context.Context, endpointID, id string) error {
	return s.execOne(ctx, ErrDeliveryNotFound, "requeue delivery", `
		UPDATE webhook_deliveries
		SET status = 'pending', next_retry_at = $3, updated_at = $3
		WHERE id = $1 AND endpoint_id = $2 AND status = 'exhausted'`,
		id, endpointID, s.now())
}

// Backlog counts deliveries still waiting to be sent.
func (s *Store) Backlog(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM webhook_deliveries WHERE status IN ('pending', 'failed')`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count backlog: %w", err)
	}
	return n, nil
}
