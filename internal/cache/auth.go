package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hireloop/hireloop/internal/model"
)

// authTTL bounds how long a revoked key or a changed role can keep
// working from cache when explicit invalidation is missed.
const authTTL = 5 * time.Minute

type authEntry struct {
	KeyID     string   `json:"key_id"`
	KeyPrefix string   `json:"key_prefix"`
	CompanyID string   `json:"company_id,omitempty"`
	UserID    string   `json:"user_id"`
	Scopes    []string `json:"scopes"`
	Tier      string   `json:"tier"`
}

// GetAuthContext returns the cached caller for an auth cache key
// (auth.CacheKey of the presented API key), or nil on a miss.
func (c *Cache) GetAuthContext(ctx context.Context, cacheKey string) (*model.AuthContext, error) {
	var e authEntry
	ok, err := c.getJSON(ctx, key("auth", "ctx", cacheKey), &e)
	if !ok {
		return nil, err
	}
	return &model.AuthContext{
		KeyID:         e.KeyID,
		KeyPrefix:     e.KeyPrefix,
		CompanyID:     e.CompanyID,
		UserID:        e.UserID,
		Scopes:        e.Scopes,
		RateLimitTier: e.Tier,
	}, nil
}

// SetAuthContext caches a verified caller. Tenant entries are also indexed
// by company so InvalidateCompanyAuthContexts can find them.
func (c *Cache) SetAuthContext(ctx context.Context, cacheKey string, a *model.AuthContext) error {
	data, err := json.Marshal(authEntry{
		KeyID:     a.KeyID,
		KeyPrefix: a.KeyPrefix,
		CompanyID: a.CompanyID,
		UserID:    a.UserID,
		Scopes:    a.Scopes,
		Tier:      a.RateLimitTier,
	})
	if err != nil {
		return fmt.Errorf("marshal auth context: %w", err)
	}

	entry := key("auth", "ctx", cacheKey)
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, entry, data, authTTL)
	if a.CompanyID != "" {
		idx := key("auth", "company", a.CompanyID)
		pipe.SAdd(ctx, idx, entry)
		pipe.Expire(ctx, idx, authTTL)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// InvalidateCompanyAuthContexts drops every cached caller of a company.
// Called on key revocation, role changes and member removal.
func (c *Cache) InvalidateCompanyAuthContexts(ctx context.Context, companyID string) error {
	idx := key("auth", "company", companyID)
	entries, err := c.client.SMembers(ctx, idx).Result()
	if err != nil {
		return fmt.Errorf("read auth index: %w", err)
	}
	return c.client.Del(ctx, append(entries, idx)...).Err()
}
