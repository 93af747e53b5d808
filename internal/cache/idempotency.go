package cache

import (
	"context"
	"fmt"
	"time"
)

// ClaimEvent marks a payment processor event id as seen. It reports false
// when the id was already claimed within ttl.
func (c *Cache) ClaimEvent(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, key("billing", "event", eventID), time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim event: %w", err)
	}
	return ok, nil
}

// ReleaseEvent forgets a claim so a redelivery is processed again. Used
// when processing fails after the claim.
func (c *Cache) ReleaseEvent(ctx context.Context, eventID string) error {
	return c.client.Del(ctx, key("billing", "event", eventID)).Err()
}
