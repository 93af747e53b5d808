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

var (
	ErrEndpointNotFound = errors.New("webhook endpoint not found")
	ErrDeliveryNotFound = errors.New("webhook delivery not found")
)

// Store keeps endpoints and the delivery queue in Postgres through
// database/sql and lib/pq. Soft-deleted endpoints are invisible to every
// read except the worker's, which needs them to abandon queued deliveries.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

type scanner interface {
	Scan(dest ...any) error
}

// execOne runs a single-row write and maps "no row touched" to notFound.
func (s *Store) execOne(ctx context.Context, notFound error, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound
	}
	return nil
}

const endpointColumns = `id, company_id, target_url, secret_hash, enabled, event_types,
	name, description, created_at, updated_at, deleted_at`

func eventTypeArray(types []model.EventType) any {
	out := make(pq.StringArray, len(types))
	for i, et := range types {
		out[i] = string(et)
	}
	return out
}

func scanEndpoint(row scanner) (*model.WebhookEndpoint, error) {
	var (
		ep                model.WebhookEndpoint
		events            pq.StringArray
		name, description sql.NullString
	)
	err := row.Scan(&ep.ID, &ep.CompanyID, &ep.TargetURL, &ep.SecretHash, &ep.Enabled, &events,
		&name, &description, &ep.CreatedAt, &ep.UpdatedAt, &ep.DeletedAt)
	if err != nil {
		return nil, err
	}
	ep.Name, ep.Description = name.String, description.String
	ep.EventTypes = make([]model.EventType, len(events))
	for i, et := range events {
		ep.EventTypes[i] = model.EventType(et)
	}
	return &ep, nil
}

func (s *Store) oneEndpoint(ctx context.Context, query string, args ...any) (*model.WebhookEndpoint, error) {
	ep, err := scanEndpoint(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEndpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load webhook endpoint: %w", err)
	}
	return ep, nil
}

func (s *Store) endpoints(ctx context.Context, query string, args ...any) ([]*model.WebhookEndpoint, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list webhook endpoints: %w", err)
	}
	defer rows.Close()

	var out []*model.WebhookEndpoint
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook endpoint: %w", err)
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

func (s *Store) CreateEndpoint(ctx context.Context, ep *model.WebhookEndpoint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_endpoints (id, company_id, target_url, secret_hash, enabled,
			event_types, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		ep.ID, ep.CompanyID, ep.TargetURL, ep.SecretHash, ep.Enabled,
		eventTypeArray(ep.EventTypes), ep.Name, ep.Description, ep.CreatedAt, ep.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create webhook endpoint: %w", err)
	}
	return nil
}

// Endpoint loads a live endpoint regardless of company.
func (s *Store) Endpoint(ctx context.Context, id string) (*model.WebhookEndpoint, error) {
	return s.oneEndpoint(ctx, `SELECT `+endpointColumns+`
		FROM webhook_endpoints WHERE id = $1 AND deleted_at IS NULL`, id)
}

// CompanyEndpoint loads an endpoint owned by companyID. Another company's
// endpoint is reported as missing.
func (s *Store) CompanyEndpoint(ctx context.Context, companyID, id string) (*model.WebhookEndpoint, error) {
	return s.oneEndpoint(ctx, `SELECT `+endpointColumns+`
		FROM webhook_endpoints
		WHERE id = $1 AND company_id = $2 AND deleted_at IS NULL`, id, companyID)
}

// CompanyEndpoints lists a company's endpoints, newest first.
func (s *Store) CompanyEndpoints(ctx context.Context, companyID string) ([]*model.WebhookEndpoint, error) {
	return s.endpoints(ctx, `SELECT `+endpointColumns+`
		FROM webhook_endpoints
		WHERE company_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC`, companyID)
}

// SubscribedEndpoints lists the enabled endpoints an event fans out to.
func (s *Store) SubscribedEndpoints(ctx context.Context, companyID string, et model.EventType) ([]*model.WebhookEndpoint, error) {
	return s.endpoints(ctx, `SELECT `+endpointColumns+`
		FROM webhook_endpoints
		WHERE company_id = $1 AND $2 = ANY(event_types)
		  AND enabled AND deleted_at IS NULL
		ORDER BY created_at`, companyID, string(et))
}

func (s *Store) UpdateEndpoint(ctx context.Context, ep *model.WebhookEndpoint) error {
	return s.execOne(ctx, ErrEndpointNotFound, "update webhook endpoint", `
		UPDATE webhook_endpoints
		SET target_url = $2, enabled = $3, event_types = $4,
		    name = $5, description = $6, updated_at = $7
		WHERE id = $1 AND deleted_at IS NULL`,
		ep.ID, ep.TargetURL, ep.Enabled, eventTypeArray(ep.EventTypes),
		ep.Name, ep.Description, s.now())
}

// SetSigningKey replaces the endpoint's signing key after a rotation.
// Deliveries already queued are signed with the new key when sent.
func (s *Store) SetSigningKey(ctx context.Context, id, key string) error {
	return s.execOne(ctx, ErrEndpointNotFound, "set signing key", `
		UPDATE webhook_endpoints SET secret_hash = $2, updated_at = $3
		WHERE id = $1 AND deleted_at IS NULL`, id, key, s.now())
}

// DeleteEndpoint soft-deletes. The worker abandons its queued deliveries.
func (s *Store) DeleteEndpoint(ctx context.Context, id string) error {
	return s.execOne(ctx, ErrEndpointNotFound, "delete webhook endpoint", `
		UPDATE webhook_endpoints SET deleted_at = $2, updated_at = $2
		WHERE id = $1 AND deleted_at IS NULL`, id, s.now())
}
