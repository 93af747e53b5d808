package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hireloop/hireloop/internal/billing"
)

// entitlementsTTL caps staleness when a subscription changes without an
// explicit invalidation, e.g. a sweeper transition on another replica.
const entitlementsTTL = 5 * time.Minute

// GetEntitlements returns the cached entitlements of a company, or nil on
// a miss.
func (c *Cache) GetEntitlements(ctx context.Context, companyID string) (*billing.Entitlements, error) {
	var ent billing.Entitlements
	ok, err := c.getJSON(ctx, key("entitlements", companyID), &ent)
	if !ok {
		return nil, err
	}
	return &ent, nil
}

func (c *Cache) SetEntitlements(ctx context.Context, ent *billing.Entitlements) error {
	data, err := json.Marshal(ent)
	if err != nil {
		return fmt.Errorf("marshal entitlements: %w", err)
	}
	return c.client.Set(ctx, key("entitlements", ent.CompanyID), data, entitlementsTTL).Err()
}

func (c *Cache) InvalidateEntitlements(ctx context.Context, companyID string) error {
	return c.client.Del(ctx, key("entitlements", companyID)).Err()
}
