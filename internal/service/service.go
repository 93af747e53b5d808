// Package service holds the business logic of the hiring and billing
// domains. Services depend on narrow store interfaces that
// *repository.Repository satisfies.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/hireloop/hireloop/internal/billing"
	"github.com/hireloop/hireloop/internal/model"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Publisher fans domain events out to tenant webhooks.
type Publisher interface {
	Publish(ctx context.Context, companyID string, eventType model.EventType, data any) error
}

// EntitlementSource resolves what a company may do right now.
type EntitlementSource interface {
	Entitlements(ctx context.Context, companyID string) (*billing.Entitlements, error)
}

// txRunner runs fn in a database transaction.
type txRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, model.EventType, any) error { return nil }

func newID() string {
	return ulid.Make().String()
}

// clampLimit normalizes a page size.
func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	return min(limit, maxPageSize)
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// requireWrite fails unless the company's subscription grants full access.
func requireWrite(ctx context.Context, src EntitlementSource, companyID string) (*billing.Entitlements, error) {
	ent, err := src.Entitlements(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if !ent.CanWrite() {
		return nil, ErrSubscriptionInactive
	}
	return ent, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
