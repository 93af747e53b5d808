package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/hireloop/hireloop/internal/model"
)

var ErrAPIKeyNotFound = errors.New("API key not found")

const apiKeyColumns = `id, company_id, user_id, key_hash, key_prefix, scopes,
	rate_limit_tier, name, revoked_at, last_used_at, created_at`

// scanAPIKey reads a row of apiKeyColumns. Platform keys have a NULL
// company_id, surfaced as "".
func scanAPIKey(row pgx.Row) (*model.APIKey, error) {
	var (
		k         model.APIKey
		companyID *string
		scopes    pq.StringArray
	)
	err := row.Scan(&k.ID, &companyID, &k.UserID, &k.KeyHash, &k.KeyPrefix, &scopes,
		&k.RateLimitTier, &k.Name, &k.RevokedAt, &k.LastUsedAt, &k.CreatedAt)
	if err != nil {
		return nil, err
	}
	if companyID != nil {
		k.CompanyID = *companyID
	}
	k.Scopes = scopes
	return &k, nil
}

func (r *Repository) apiKeys(ctx context.Context, where string, args ...any) ([]*model.APIKey, error) {
	keys, err := queryAll(ctx, r, scanAPIKey,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("list API keys: %w", err)
	}
	return keys, nil
}

// CreateAPIKey stores a hashed key. An empty CompanyID stores a platform
// staff key.
func (r *Repository) CreateAPIKey(ctx context.Context, k *model.APIKey) error {
	_, err := r.db(ctx).Exec(ctx, `
		INSERT INTO api_keys (id, company_id, user_id, key_hash, key_prefix, scopes,
			rate_limit_tier, name, created_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9)`,
		k.ID, k.CompanyID, k.UserID, k.KeyHash, k.KeyPrefix, pq.StringArray(k.Scopes),
		k.RateLimitTier, k.Name, k.CreatedAt)
	if err != nil {
		return fmt.Errorf("create API key: %w", err)
	}
	return nil
}

func (r *Repository) GetAPIKeyByID(ctx context.Context, id string) (*model.APIKey, error) {
	k, err := queryOne(ctx, r, scanAPIKey, ErrAPIKeyNotFound,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE id = $1`, id)
	if err != nil && !errors.Is(err, ErrAPIKeyNotFound) {
		return nil, fmt.Errorf("get API key: %w", err)
	}
	return k, err
}

// GetAPIKeysByPrefix returns the live keys sharing a lookup prefix. The
// caller verifies the secret against each.
func (r *Repository) GetAPIKeysByPrefix(ctx context.Context, prefix string) ([]*model.APIKey, error) {
	return r.apiKeys(ctx, `key_prefix = $1 AND revoked_at IS NULL`, prefix)
}

func (r *Repository) ListAPIKeysByCompany(ctx context.Context, companyID string) ([]*model.APIKey, error) {
	return r.apiKeys(ctx, `company_id = $1 ORDER BY created_at DESC`, companyID)
}

func (r *Repository) ListAPIKeysByMember(ctx context.Context, companyID, userID string) ([]*model.APIKey, error) {
	return r.apiKeys(ctx, `company_id = $1 AND user_id = $2 ORDER BY created_at DESC`, companyID, userID)
}

// RevokeAPIKey is not idempotent: revoking twice reports ErrAPIKeyNotFound.
func (r *Repository) RevokeAPIKey(ctx context.Context, id string) error {
	err := r.execOne(ctx, ErrAPIKeyNotFound,
		`UPDATE api_keys SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`,
		id, time.Now().UTC())
	if err != nil && !errors.Is(err, ErrAPIKeyNotFound) {
		return fmt.Errorf("revoke API key: %w", err)
	}
	return err
}

// RevokeMemberAPIKeys revokes a member's live keys in one company and
// reports how many there were.
func (r *Repository) RevokeMemberAPIKeys(ctx context.Context, companyID, userID string) (int64, error) {
	tag, err := r.db(ctx).Exec(ctx, `
		UPDATE api_keys SET revoked_at = $3
		WHERE company_id = $1 AND user_id = $2 AND revoked_at IS NULL`,
		companyID, userID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("revoke member API keys: %w", err)
	}
	return tag.RowsAffected(), nil
}

// UpdateAPIKeyLastUsed stamps a successful authentication.
func (r *Repository) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	if _, err := r.db(ctx).Exec(ctx,
		`UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("touch API key: %w", err)
	}
	return nil
}
