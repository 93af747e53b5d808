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

// Billing repository errors.
var (
	ErrPlanNotFound         = errors.New("plan not found")
	ErrPlanCodeExists       = errors.New("plan code already exists")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrSubscriptionExists   = errors.New("company already has a subscription")
)

const planColumns = `id, code, name, price_cents, currency, billing_interval, max_active_jobs, max_seats,
	monthly_ai_scores, features, company_id, active, created_at`

const subscriptionColumns = `id, company_id, plan_id, status, external_customer_id, external_subscription_id,
	trial_ends_at, current_period_start, current_period_end, grace_ends_at, past_due_since,
	cancel_at_period_end, canceled_at, ended_at, ai_scores_used, last_event_at, created_at, updated_at`

// ============================================================================
// Plans
// ============================================================================

// CreatePlan inserts a plan. A plan with CompanyID set is a custom plan.
func (r *Repository) CreatePlan(ctx context.Context, p *model.Plan) error {
	_, err := r.db(ctx).Exec(ctx, `
		INSERT INTO plans (id, code, name, price_cents, currency, billing_interval, max_active_jobs, max_seats,
			monthly_ai_scores, features, company_id, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		p.ID, p.Code, p.Name, p.PriceCents, p.Currency, p.Interval, p.MaxActiveJobs, p.MaxSeats,
		p.MonthlyAIScores, pq.Array(nonNil(p.Features)), p.CompanyID, p.Active, p.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrPlanCodeExists
		}
		if isForeignKeyViolation(err) {
			return ErrCompanyNotFound
		}
		return fmt.Errorf("failed to create plan: %w", err)
	}
	return nil
}

// GetPlanByID retrieves a plan, active or not.
func (r *Repository) GetPlanByID(ctx context.Context, id string) (*model.Plan, error) {
	return r.getPlan(ctx, `SELECT `+planColumns+` FROM plans WHERE id = $1`, id)
}

// GetPlanByCode retrieves a plan by its code, active or not.
func (r *Repository) GetPlanByCode(ctx context.Context, code string) (*model.Plan, error) {
	return r.getPlan(ctx, `SELECT `+planColumns+` FROM plans WHERE code = $1`, code)
}

func (r *Repository) getPlan(ctx context.Context, query, arg string) (*model.Plan, error) {
	p, err := scanPlan(r.db(ctx).QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return p, nil
}

// ListPlansForCompany returns the active public plans plus the company's
// active custom plans, cheapest first.
func (r *Repository) ListPlansForCompany(ctx context.Context, companyID string) ([]*model.Plan, error) {
	return r.queryPlans(ctx, `
		SELECT `+planColumns+`
		FROM plans
		WHERE active AND (company_id IS NULL OR company_id = $1)
		ORDER BY price_cents, code
	`, companyID)
}

// ListAllPlans returns every plan including custom and inactive ones.
func (r *Repository) ListAllPlans(ctx context.Context) ([]*model.Plan, error) {
	return r.queryPlans(ctx, `SELECT `+planColumns+` FROM plans ORDER BY company_id NULLS FIRST, price_cents, code`)
}

// DeactivatePlan hides a plan from new assignments. Subscriptions already
// on it keep it.
func (r *Repository) DeactivatePlan(ctx context.Context, id string) error {
	result, err := r.db(ctx).Exec(ctx, `UPDATE plans SET active = false WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate plan: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrPlanNotFound
	}
	return nil
}

func (r *Repository) queryPlans(ctx context.Context, query string, args ...any) ([]*model.Plan, error) {
	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var plans []*model.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating plans: %w", err)
	}
	return plans, nil
}

func scanPlan(row pgx.Row) (*model.Plan, error) {
	var p model.Plan
	var features []string
	if err := row.Scan(
		&p.ID, &p.Code, &p.Name, &p.PriceCents, &p.Currency, &p.Interval, &p.MaxActiveJobs, &p.MaxSeats,
		&p.MonthlyAIScores, pq.Array(&features), &p.CompanyID, &p.Active, &p.CreatedAt,
	); err != nil {
		return nil, err
	}
	p.Features = nonNil(features)
	return &p, nil
}

// ============================================================================
// Subscriptions
// ============================================================================

// CreateSubscription inserts the company's subscription.
func (r *Repository) CreateSubscription(ctx context.Context, s *model.Subscription) error {
	_, err := r.db(ctx).Exec(ctx, `
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, subscriptionArgs(s)...)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSubscriptionExists
		}
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

// GetSubscriptionByCompany retrieves a company's subscription.
func (r *Repository) GetSubscriptionByCompany(ctx context.Context, companyID string) (*model.Subscription, error) {
	return r.getSubscription(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE company_id = $1`, companyID)
}

// GetSubscriptionForUpdate retrieves and row-locks a company's subscription.
// Must run inside WithinTx.
func (r *Repository) GetSubscriptionForUpdate(ctx context.Context, companyID string) (*model.Subscription, error) {
	return r.getSubscription(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE company_id = $1 FOR UPDATE`, companyID)
}

// GetSubscriptionByExternalIDForUpdate locks the subscription the payment
// processor knows by externalID. Must run inside WithinTx.
func (r *Repository) GetSubscriptionByExternalIDForUpdate(ctx context.Context, externalID string) (*model.Subscription, error) {
	return r.getSubscription(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE external_subscription_id = $1 AND external_subscription_id <> ''
		FOR UPDATE
	`, externalID)
}

func (r *Repository) getSubscription(ctx context.Context, query, arg string) (*model.Subscription, error) {
	s, err := scanSubscription(r.db(ctx).QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return s, nil
}

// UpdateSubscription writes every mutable field of a subscription.
func (r *Repository) UpdateSubscription(ctx context.Context, s *model.Subscription) error {
	result, err := r.db(ctx).Exec(ctx, `
		UPDATE subscriptions
		SET plan_id = $3, status = $4, external_customer_id = $5, external_subscription_id = $6,
			trial_ends_at = $7, current_period_start = $8, current_period_end = $9, grace_ends_at = $10,
			past_due_since = $11, cancel_at_period_end = $12, canceled_at = $13, ended_at = $14,
			ai_scores_used = $15, last_event_at = $16, updated_at = $17
		WHERE id = $1 AND company_id = $2
	`,
		s.ID, s.CompanyID, s.PlanID, s.Status, s.ExternalCustomerID, s.ExternalSubscriptionID,
		s.TrialEndsAt, s.CurrentPeriodStart, s.CurrentPeriodEnd, s.GraceEndsAt, s.PastDueSince,
		s.CancelAtPeriodEnd, s.CanceledAt, s.EndedAt, s.AIScoresUsed, s.LastEventAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// ListSubscriptionsByStatus returns a page of subscriptions, newest first.
// An empty status lists all.
func (r *Repository) ListSubscriptionsByStatus(ctx context.Context, status model.SubscriptionStatus, cursor string, limit int) ([]*model.Subscription, string, error) {
	cur, err := decodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}

	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE true`
	var args []any
	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if cur != nil {
		args = append(args, cur.CreatedAt, cur.ID)
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", len(args)-1, len(args))
	}
	args = append(args, limit+1)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	subs, err := r.querySubscriptions(ctx, query, args...)
	if err != nil {
		return nil, "", err
	}
	subs, next := page(subs, limit, func(s *model.Subscription) PaginationCursor {
		return PaginationCursor{ID: s.ID, CreatedAt: s.CreatedAt}
	})
	return subs, next, nil
}

// ListDueSubscriptions returns the companies whose subscription has a
// time-based transition due at now.
func (r *Repository) ListDueSubscriptions(ctx context.Context, now time.Time, pastDueRetention time.Duration, limit int) ([]string, error) {
	rows, err := r.db(ctx).Query(ctx, `
		SELECT company_id
		FROM subscriptions
		WHERE (status = 'trialing' AND trial_ends_at <= $1)
		   OR (status = 'grace_period' AND grace_ends_at <= $1)
		   OR (status = 'past_due' AND past_due_since <= $2)
		   OR (status = 'active' AND cancel_at_period_end AND current_period_end <= $1)
		   OR (status = 'canceled' AND (current_period_end IS NULL OR current_period_end <= $1))
		ORDER BY updated_at
		LIMIT $3
	`, now, now.Add(-pastDueRetention), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due subscriptions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan company id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating due subscriptions: %w", err)
	}
	return ids, nil
}

// ConsumeAIScore takes one unit of the monthly AI quota. It returns false
// without consuming when the quota is exhausted. A limit of 0 is unlimited.
func (r *Repository) ConsumeAIScore(ctx context.Context, companyID string, limit int) (bool, error) {
	result, err := r.db(ctx).Exec(ctx, `
		UPDATE subscriptions
		SET ai_scores_used = ai_scores_used + 1
		WHERE company_id = $1 AND ($2 <= 0 OR ai_scores_used < $2)
	`, companyID, limit)
	if err != nil {
		return false, fmt.Errorf("failed to consume AI score: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// RefundAIScore returns a unit consumed for a scoring attempt that failed.
func (r *Repository) RefundAIScore(ctx context.Context, companyID string) error {
	_, err := r.db(ctx).Exec(ctx, `
		UPDATE subscriptions SET ai_scores_used = GREATEST(ai_scores_used - 1, 0) WHERE company_id = $1
	`, companyID)
	if err != nil {
		return fmt.Errorf("failed to refund AI score: %w", err)
	}
	return nil
}

func (r *Repository) querySubscriptions(ctx context.Context, query string, args ...any) ([]*model.Subscription, error) {
	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscriptions: %w", err)
	}
	return subs, nil
}

func subscriptionArgs(s *model.Subscription) []any {
	return []any{
		s.ID, s.CompanyID, s.PlanID, s.Status, s.ExternalCustomerID, s.ExternalSubscriptionID,
		s.TrialEndsAt, s.CurrentPeriodStart, s.CurrentPeriodEnd, s.GraceEndsAt, s.PastDueSince,
		s.CancelAtPeriodEnd, s.CanceledAt, s.EndedAt, s.AIScoresUsed, s.LastEventAt, s.CreatedAt, s.UpdatedAt,
	}
}

func scanSubscription(row pgx.Row) (*model.Subscription, error) {
	var s model.Subscription
	if err := row.Scan(
		&s.ID, &s.CompanyID, &s.PlanID, &s.Status, &s.ExternalCustomerID, &s.ExternalSubscriptionID,
		&s.TrialEndsAt, &s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.GraceEndsAt, &s.PastDueSince,
		&s.CancelAtPeriodEnd, &s.CanceledAt, &s.EndedAt, &s.AIScoresUsed, &s.LastEventAt, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &s, nil
}

// ============================================================================
// History
// ============================================================================

// InsertSubscriptionEvent appends a transition to the history.
func (r *Repository) InsertSubscriptionEvent(ctx context.Context, e *model.SubscriptionEvent) error {
	_, err := r.db(ctx).Exec(ctx, `
		INSERT INTO subscription_events (id, subscription_id, from_status, to_status, trigger, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.SubscriptionID, e.From, e.To, e.Trigger, e.Reason, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert subscription event: %w", err)
	}
	return nil
}

// ListSubscriptionEvents returns the most recent transitions first.
func (r *Repository) ListSubscriptionEvents(ctx context.Context, subscriptionID string, limit int) ([]*model.SubscriptionEvent, error) {
	rows, err := r.db(ctx).Query(ctx, `
		SELECT id, subscription_id, from_status, to_status, trigger, reason, created_at
		FROM subscription_events
		WHERE subscription_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, subscriptionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscription events: %w", err)
	}
	defer rows.Close()

	var events []*model.SubscriptionEvent
	for rows.Next() {
		var e model.SubscriptionEvent
		if err := rows.Scan(&e.ID, &e.SubscriptionID, &e.From, &e.To, &e.Trigger, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan subscription event: %w", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscription events: %w", err)
	}
	return events, nil
}

// RecordBillingEvent stores a processed payment webhook. It returns false if
// the event id was already recorded.
func (r *Repository) RecordBillingEvent(ctx context.Context, e *model.BillingEvent) (bool, error) {
	result, err := r.db(ctx).Exec(ctx, `
		INSERT INTO billing_events (id, type, company_id, outcome, payload, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, e.ID, e.Type, e.CompanyID, e.Outcome, e.Payload, e.ReceivedAt)
	if err != nil {
		return false, fmt.Errorf("failed to record billing event: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// BillingEventExists reports whether a processor event id was processed.
func (r *Repository) BillingEventExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := r.db(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM billing_events WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check billing event: %w", err)
	}
	return exists, nil
}
