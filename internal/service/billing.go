package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/hireloop/hireloop/internal/billing"
	"github.com/hireloop/hireloop/internal/metrics"
	"github.com/hireloop/hireloop/internal/model"
	"github.com/hireloop/hireloop/internal/repository"
)

const (
	// eventClaimTTL bounds how long a processed event id blocks redelivery
	// in Redis. The billing_events table is the durable record.
	eventClaimTTL  = 72 * time.Hour
	sweepBatchSize = 100
	historyLimit   = 100
)

// Payment webhook outcomes.
const (
	OutcomeProcessed = "processed"
	OutcomeIgnored   = "ignored"
	OutcomeDuplicate = "duplicate"
	OutcomeStale     = "stale"
	OutcomeRejected  = "rejected"
)

var errDuplicateEvent = errors.New("duplicate payment event")

var (
	_ EntitlementSource = (*BillingService)(nil)
	_ trialStarter      = (*BillingService)(nil)
)

type billingStore interface {
	txRunner
	CreatePlan(ctx context.Context, p *model.Plan) error
	GetPlanByID(ctx context.Context, id string) (*model.Plan, error)
	GetPlanByCode(ctx context.Context, code string) (*model.Plan, error)
	ListPlansForCompany(ctx context.Context, companyID string) ([]*model.Plan, error)
	ListAllPlans(ctx context.Context) ([]*model.Plan, error)
	DeactivatePlan(ctx context.Context, id string) error

	CreateSubscription(ctx context.Context, s *model.Subscription) error
	GetSubscriptionByCompany(ctx context.Context, companyID string) (*model.Subscription, error)
	GetSubscriptionForUpdate(ctx context.Context, companyID string) (*model.Subscription, error)
	GetSubscriptionByExternalIDForUpdate(ctx context.Context, externalID string) (*model.Subscription, error)
	UpdateSubscription(ctx context.Context, s *model.Subscription) error
	ListSubscriptionsByStatus(ctx context.Context, status model.SubscriptionStatus, cursor string, limit int) ([]*model.Subscription, string, error)
	ListDueSubscriptions(ctx context.Context, now time.Time, pastDueRetention time.Duration, limit int) ([]string, error)
	ConsumeAIScore(ctx context.Context, companyID string, limit int) (bool, error)
	RefundAIScore(ctx context.Context, companyID string) error

	InsertSubscriptionEvent(ctx context.Context, e *model.SubscriptionEvent) error
	ListSubscriptionEvents(ctx context.Context, subscriptionID string, limit int) ([]*model.SubscriptionEvent, error)
	RecordBillingEvent(ctx context.Context, e *model.BillingEvent) (bool, error)
	BillingEventExists(ctx context.Context, id string) (bool, error)
}

// billingCache is the Redis side of billing: entitlement snapshots and
// webhook idempotency claims.
type billingCache interface {
	GetEntitlements(ctx context.Context, companyID string) (*billing.Entitlements, error)
	SetEntitlements(ctx context.Context, ent *billing.Entitlements) error
	InvalidateEntitlements(ctx context.Context, companyID string) error
	ClaimEvent(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	ReleaseEvent(ctx context.Context, eventID string) error
}

// BillingService owns plans, subscriptions and their lifecycle.
type BillingService struct {
	store       billingStore
	cache       billingCache
	machine     *billing.Machine
	publisher   Publisher
	metrics     metrics.Recorder
	logger      *slog.Logger
	defaultPlan string
}

// BillingOptions configures a BillingService.
type BillingOptions struct {
	Policy          billing.Policy
	DefaultPlanCode string
	Publisher       Publisher
	Metrics         metrics.Recorder
}

// NewBillingService creates a BillingService.
func NewBillingService(store billingStore, cache billingCache, logger *slog.Logger, opts BillingOptions) *BillingService {
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoop()
	}
	if opts.Publisher == nil {
		opts.Publisher = noopPublisher{}
	}
	if opts.Policy == (billing.Policy{}) {
		opts.Policy = billing.DefaultPolicy()
	}
	if opts.DefaultPlanCode == "" {
		opts.DefaultPlanCode = "starter"
	}
	return &BillingService{
		store:       store,
		cache:       cache,
		machine:     billing.NewMachine(opts.Policy),
		publisher:   opts.Publisher,
		metrics:     opts.Metrics,
		logger:      logger.With("component", "billing"),
		defaultPlan: opts.DefaultPlanCode,
	}
}

// SetClock overrides the lifecycle clock.
func (s *BillingService) SetClock(now func() time.Time) {
	s.machine.SetClock(now)
}

// SubscriptionView is a subscription with its plan and current entitlements.
type SubscriptionView struct {
	Subscription *model.Subscription  `json:"subscription"`
	Plan         *model.Plan          `json:"plan"`
	Entitlements billing.Entitlements `json:"entitlements"`
	NextDeadline *time.Time           `json:"next_deadline,omitempty"`
}

// StartTrial creates a trialing subscription on the default plan. It joins
// the caller's transaction when there is one.
func (s *BillingService) StartTrial(ctx context.Context, companyID string) (*model.Subscription, error) {
	plan, err := s.store.GetPlanByCode(ctx, s.defaultPlan)
	if err != nil {
		if errors.Is(err, repository.ErrPlanNotFound) {
			return nil, fmt.Errorf("default plan %q: %w", s.defaultPlan, ErrPlanNotFound)
		}
		return nil, err
	}

	sub := &model.Subscription{ID: newID(), CompanyID: companyID, PlanID: plan.ID}
	s.machine.StartTrial(sub)
	if err := s.store.CreateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	if err := s.store.InsertSubscriptionEvent(ctx, &model.SubscriptionEvent{
		ID:             newID(),
		SubscriptionID: sub.ID,
		From:           "",
		To:             sub.Status,
		Trigger:        model.TriggerTenant,
		Reason:         "signup",
		CreatedAt:      sub.CreatedAt,
	}); err != nil {
		return nil, err
	}
	return sub, nil
}

// Entitlements returns the company's entitlements, served from Redis when
// possible.
func (s *BillingService) Entitlements(ctx context.Context, companyID string) (*billing.Entitlements, error) {
	if ent, err := s.cache.GetEntitlements(ctx, companyID); err == nil && ent != nil {
		return ent, nil
	} else if err != nil {
		s.logger.Warn("entitlement cache read failed", "company_id", companyID, "error", err)
	}

	view, err := s.GetSubscription(ctx, companyID)
	if err != nil {
		return nil, err
	}
	ent := view.Entitlements
	if err := s.cache.SetEntitlements(ctx, &ent); err != nil {
		s.logger.Warn("entitlement cache write failed", "company_id", companyID, "error", err)
	}
	return &ent, nil
}

// GetSubscription returns the company's subscription, plan and entitlements
// computed from the store.
func (s *BillingService) GetSubscription(ctx context.Context, companyID string) (*SubscriptionView, error) {
	sub, err := s.store.GetSubscriptionByCompany(ctx, companyID)
	if err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return s.view(ctx, sub)
}

func (s *BillingService) view(ctx context.Context, sub *model.Subscription) (*SubscriptionView, error) {
	plan, err := s.store.GetPlanByID(ctx, sub.PlanID)
	if err != nil {
		return nil, fmt.Errorf("load plan %s: %w", sub.PlanID, err)
	}
	return &SubscriptionView{
		Subscription: sub,
		Plan:         plan,
		Entitlements: billing.Resolve(sub, plan, s.machine.Now()),
		NextDeadline: s.machine.NextDeadline(sub),
	}, nil
}

// ListPlans returns the plans a company may choose from.
func (s *BillingService) ListPlans(ctx context.Context, companyID string) ([]*model.Plan, error) {
	return s.store.ListPlansForCompany(ctx, companyID)
}

// History returns the newest transitions of the company's subscription.
func (s *BillingService) History(ctx context.Context, companyID string) ([]*model.SubscriptionEvent, error) {
	sub, err := s.store.GetSubscriptionByCompany(ctx, companyID)
	if err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return s.store.ListSubscriptionEvents(ctx, sub.ID, historyLimit)
}

// ChangePlan switches the company to another available plan without
// touching the lifecycle status.
func (s *BillingService) ChangePlan(ctx context.Context, companyID, planCode string) (*SubscriptionView, error) {
	plan, err := s.availablePlan(ctx, companyID, planCode)
	if err != nil {
		return nil, err
	}

	var changed []transition
	err = s.store.WithinTx(ctx, func(ctx context.Context) error {
		sub, err := s.lockByCompany(ctx, companyID)
		if err != nil {
			return err
		}
		ent := billing.Resolve(sub, plan, s.machine.Now())
		if !ent.CanWrite() {
			return ErrSubscriptionInactive
		}
		if sub.PlanID == plan.ID {
			return nil
		}
		sub.PlanID = plan.ID
		sub.UpdatedAt = s.machine.Now()
		out := &billing.Outcome{
			From: sub.Status, To: sub.Status,
			Trigger: model.TriggerTenant,
			Reason:  "plan changed to " + plan.Code,
		}
		if err := s.persist(ctx, sub, out); err != nil {
			return err
		}
		changed = append(changed, transition{sub: sub, out: out})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, companyID, changed)
	return s.GetSubscription(ctx, companyID)
}

// ============================================================================
// Payment webhooks
// ============================================================================

// HandlePaymentEvent applies a verified processor event. It returns the
// outcome to acknowledge with. An error means the processor should retry.
func (s *BillingService) HandlePaymentEvent(ctx context.Context, ev *billing.PaymentEvent, payload []byte) (string, error) {
	claimed, err := s.cache.ClaimEvent(ctx, ev.ID, eventClaimTTL)
	if err != nil {
		// The billing_events row still deduplicates.
		s.logger.Warn("event claim failed", "event_id", ev.ID, "error", err)
		claimed = true
	}
	if !claimed {
		// A claim can outlive a failed attempt whose release was lost, so
		// only the billing_events row proves the event was applied.
		seen, err := s.store.BillingEventExists(ctx, ev.ID)
		if err != nil {
			return "", err
		}
		if seen {
			s.metrics.IncPaymentWebhook(OutcomeDuplicate)
			return OutcomeDuplicate, nil
		}
		s.logger.Warn("stale event claim", "event_id", ev.ID)
	}

	outcome, companyID, changed, err := s.applyPaymentEvent(ctx, ev, payload)
	if errors.Is(err, errDuplicateEvent) {
		s.metrics.IncPaymentWebhook(OutcomeDuplicate)
		return OutcomeDuplicate, nil
	}
	if err != nil {
		if rerr := s.cache.ReleaseEvent(ctx, ev.ID); rerr != nil {
			s.logger.Warn("event release failed", "event_id", ev.ID, "error", rerr)
		}
		s.metrics.IncPaymentWebhook("error")
		return "", err
	}

	s.logger.Info("payment_event_handled",
		"event_id", ev.ID,
		"event_type", ev.Type,
		"company_id", companyID,
		"outcome", outcome,
	)
	s.metrics.IncPaymentWebhook(outcome)
	if outcome == OutcomeProcessed {
		s.afterCommit(ctx, companyID, changed)
	}
	return outcome, nil
}

func (s *BillingService) applyPaymentEvent(ctx context.Context, ev *billing.PaymentEvent, payload []byte) (string, string, []transition, error) {
	var (
		outcome   string
		companyID string
		changed   []transition
	)

	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		sub, err := s.lockForEvent(ctx, ev)
		switch {
		case errors.Is(err, ErrSubscriptionNotFound):
			outcome = OutcomeIgnored
		case err != nil:
			return err
		default:
			companyID = sub.CompanyID
			outcome, changed, err = s.applyToSubscription(ctx, sub, ev)
			if err != nil {
				return err
			}
		}

		recorded, err := s.store.RecordBillingEvent(ctx, &model.BillingEvent{
			ID:         ev.ID,
			Type:       ev.Type,
			CompanyID:  companyID,
			Outcome:    outcome,
			Payload:    payload,
			ReceivedAt: s.machine.Now(),
		})
		if err != nil {
			return err
		}
		if !recorded {
			return errDuplicateEvent
		}
		return nil
	})
	return outcome, companyID, changed, err
}

func (s *BillingService) lockForEvent(ctx context.Context, ev *billing.PaymentEvent) (*model.Subscription, error) {
	var (
		sub *model.Subscription
		err error
	)
	switch {
	case ev.Data.CompanyID != "":
		sub, err = s.store.GetSubscriptionForUpdate(ctx, ev.Data.CompanyID)
	case ev.Data.SubscriptionID != "":
		sub, err = s.store.GetSubscriptionByExternalIDForUpdate(ctx, ev.Data.SubscriptionID)
	default:
		return nil, ErrSubscriptionNotFound
	}
	if errors.Is(err, repository.ErrSubscriptionNotFound) {
		return nil, ErrSubscriptionNotFound
	}
	return sub, err
}

func (s *BillingService) applyToSubscription(ctx context.Context, sub *model.Subscription, ev *billing.PaymentEvent) (string, []transition, error) {
	out, err := s.machine.ApplyEvent(sub, ev)
	switch {
	case errors.Is(err, billing.ErrStaleEvent):
		return OutcomeStale, nil, nil
	case errors.Is(err, billing.ErrUnknownEventType):
		return OutcomeIgnored, nil, nil
	case errors.Is(err, billing.ErrInvalidTransition):
		s.logger.Warn("payment event rejected",
			"event_id", ev.ID,
			"company_id", sub.CompanyID,
			"status", sub.Status,
			"error", err,
		)
		return OutcomeRejected, nil, nil
	case err != nil:
		return "", nil, err
	}

	if out.PlanCode != "" {
		plan, err := s.store.GetPlanByCode(ctx, out.PlanCode)
		switch {
		case err == nil && planAvailableTo(plan, sub.CompanyID):
			sub.PlanID = plan.ID
		case err == nil || errors.Is(err, repository.ErrPlanNotFound):
			s.logger.Warn("payment event names unusable plan",
				"event_id", ev.ID,
				"plan_code", out.PlanCode,
				"company_id", sub.CompanyID,
			)
		default:
			return "", nil, err
		}
	}

	if err := s.persist(ctx, sub, out); err != nil {
		return "", nil, err
	}
	return OutcomeProcessed, []transition{{sub: sub, out: out}}, nil
}

// ============================================================================
// Time-based transitions
// ============================================================================

// Sweep applies every time-based transition that is due. It returns the
// number of transitions applied.
func (s *BillingService) Sweep(ctx context.Context) (int, error) {
	total := 0
	for {
		ids, err := s.store.ListDueSubscriptions(ctx, s.machine.Now(), s.machine.Policy().PastDueRetention, sweepBatchSize)
		if err != nil {
			return total, fmt.Errorf("list due subscriptions: %w", err)
		}

		progressed := 0
		for _, companyID := range ids {
			if err := ctx.Err(); err != nil {
				return total, err
			}
			n, err := s.advance(ctx, companyID)
			if err != nil {
				s.logger.Error("sweep failed for company", "company_id", companyID, "error", err)
				continue
			}
			progressed += n
		}
		total += progressed

		if len(ids) < sweepBatchSize || progressed == 0 {
			return total, nil
		}
	}
}

// AdvanceCompany applies the due time-based transitions of one company.
func (s *BillingService) AdvanceCompany(ctx context.Context, companyID string) (int, error) {
	return s.advance(ctx, companyID)
}

func (s *BillingService) advance(ctx context.Context, companyID string) (int, error) {
	var changed []transition
	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		sub, err := s.lockByCompany(ctx, companyID)
		if err != nil {
			return err
		}
		for {
			out, due := s.machine.Advance(sub)
			if !due {
				break
			}
			if err := s.store.InsertSubscriptionEvent(ctx, historyRow(sub, out, s.machine.Now())); err != nil {
				return err
			}
			changed = append(changed, transition{sub: sub, out: out})
		}
		if len(changed) == 0 {
			return nil
		}
		return s.store.UpdateSubscription(ctx, sub)
	})
	if err != nil {
		return 0, err
	}
	s.afterCommit(ctx, companyID, changed)
	return len(changed), nil
}

// RunSweeper runs Sweep on every tick until ctx is cancelled.
func (s *BillingService) RunSweeper(ctx context.Context, interval time.Duration) error {
	s.logger.Info("billing sweeper started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("billing sweeper stopping")
			return nil
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("sweep error", "error", err)
			}
			if n > 0 {
				s.logger.Info("sweep_completed", "transitions", n)
			}
		}
	}
}

// ============================================================================
// Platform staff
// ============================================================================

// AdminActionInput is a staff override. PlanCode is resolved to a plan the
// company may use.
type AdminActionInput struct {
	Kind      billing.AdminActionKind
	Days      int
	PeriodEnd *time.Time
	PlanCode  string
	Reason    string
	ActorID   string
}

// ApplyAdminAction applies a staff override to a company's subscription.
func (s *BillingService) ApplyAdminAction(ctx context.Context, companyID string, in AdminActionInput) (*SubscriptionView, error) {
	action := billing.AdminAction{
		Kind:      in.Kind,
		Days:      in.Days,
		PeriodEnd: in.PeriodEnd,
		Reason:    in.Reason,
	}
	if in.PlanCode != "" {
		plan, err := s.availablePlan(ctx, companyID, in.PlanCode)
		if err != nil {
			return nil, err
		}
		action.PlanID = plan.ID
	}
	if err := action.Validate(); err != nil {
		return nil, err
	}

	var changed []transition
	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		sub, err := s.lockByCompany(ctx, companyID)
		if err != nil {
			return err
		}
		out, err := s.machine.ApplyAdmin(sub, action)
		if err != nil {
			return err
		}
		if err := s.persist(ctx, sub, out); err != nil {
			return err
		}
		changed = append(changed, transition{sub: sub, out: out})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("admin_action_applied",
		"company_id", companyID,
		"kind", in.Kind,
		"actor_id", in.ActorID,
	)
	s.afterCommit(ctx, companyID, changed)
	return s.GetSubscription(ctx, companyID)
}

// ListSubscriptions pages through subscriptions in a status. An empty
// status lists all.
func (s *BillingService) ListSubscriptions(ctx context.Context, status model.SubscriptionStatus, cursor string, limit int) ([]*model.Subscription, string, error) {
	if status != "" && !status.IsValid() {
		return nil, "", invalidf("unknown status %q", status)
	}
	subs, next, err := s.store.ListSubscriptionsByStatus(ctx, status, cursor, clampLimit(limit))
	if errors.Is(err, repository.ErrInvalidCursor) {
		return nil, "", invalidf("invalid cursor")
	}
	return subs, next, err
}

// PlanInput describes a new plan. CompanyID makes it a custom plan.
type PlanInput struct {
	Code            string
	Name            string
	PriceCents      int64
	Currency        string
	Interval        string
	MaxActiveJobs   int
	MaxSeats        int
	MonthlyAIScores int
	Features        []string
	CompanyID       string
}

// CreatePlan adds a public or custom plan.
func (s *BillingService) CreatePlan(ctx context.Context, in PlanInput) (*model.Plan, error) {
	code := strings.ToLower(strings.TrimSpace(in.Code))
	if code == "" || strings.TrimSpace(in.Name) == "" {
		return nil, invalidf("code and name are required")
	}
	if in.MaxActiveJobs < 0 || in.MaxSeats < 0 || in.MonthlyAIScores < 0 || in.PriceCents < 0 {
		return nil, invalidf("limits and price must not be negative")
	}
	interval := in.Interval
	if interval == "" {
		interval = model.IntervalMonth
	}
	if interval != model.IntervalMonth && interval != model.IntervalYear {
		return nil, invalidf("interval must be month or year")
	}
	for _, f := range in.Features {
		if !slices.Contains(model.ValidFeatures, f) {
			return nil, invalidf("unknown feature %q", f)
		}
	}
	currency := strings.ToLower(in.Currency)
	if currency == "" {
		currency = "usd"
	}

	plan := &model.Plan{
		ID:              newID(),
		Code:            code,
		Name:            strings.TrimSpace(in.Name),
		PriceCents:      in.PriceCents,
		Currency:        currency,
		Interval:        interval,
		MaxActiveJobs:   in.MaxActiveJobs,
		MaxSeats:        in.MaxSeats,
		MonthlyAIScores: in.MonthlyAIScores,
		Features:        append([]string{}, in.Features...),
		Active:          true,
		CreatedAt:       s.machine.Now(),
	}
	if in.CompanyID != "" {
		companyID := in.CompanyID
		plan.CompanyID = &companyID
	}

	if err := s.store.CreatePlan(ctx, plan); err != nil {
		switch {
		case errors.Is(err, repository.ErrPlanCodeExists):
			return nil, ErrPlanCodeExists
		case errors.Is(err, repository.ErrCompanyNotFound):
			return nil, ErrCompanyNotFound
		}
		return nil, err
	}
	s.logger.Info("plan_created", "plan_id", plan.ID, "code", plan.Code, "custom", plan.IsCustom())
	return plan, nil
}

// ListAllPlans returns every plan including inactive and custom ones.
func (s *BillingService) ListAllPlans(ctx context.Context) ([]*model.Plan, error) {
	return s.store.ListAllPlans(ctx)
}

// DeactivatePlan hides a plan from new selection. Existing subscribers keep it.
func (s *BillingService) DeactivatePlan(ctx context.Context, id string) error {
	if err := s.store.DeactivatePlan(ctx, id); err != nil {
		if errors.Is(err, repository.ErrPlanNotFound) {
			return ErrPlanNotFound
		}
		return err
	}
	return nil
}

// ============================================================================
// AI quota
// ============================================================================

// ConsumeAIScore takes one unit of the company's monthly AI quota. It
// returns false when the plan lacks AI scoring or the quota is spent.
func (s *BillingService) ConsumeAIScore(ctx context.Context, companyID string) (bool, error) {
	ent, err := s.Entitlements(ctx, companyID)
	if err != nil {
		return false, err
	}
	if !ent.CanWrite() || !ent.HasFeature(model.FeatureAIScoring) {
		return false, nil
	}
	ok, err := s.store.ConsumeAIScore(ctx, companyID, ent.MonthlyAIScores)
	if err != nil {
		return false, err
	}
	if ok {
		s.invalidate(ctx, companyID)
	}
	return ok, nil
}

// RefundAIScore returns a quota unit after a failed scoring attempt.
func (s *BillingService) RefundAIScore(ctx context.Context, companyID string) error {
	if err := s.store.RefundAIScore(ctx, companyID); err != nil {
		return err
	}
	s.invalidate(ctx, companyID)
	return nil
}

// ============================================================================
// Helpers
// ============================================================================

type transition struct {
	sub *model.Subscription
	out *billing.Outcome
}

// subscriptionChange is the payload of subscription.status_changed.
type subscriptionChange struct {
	SubscriptionID string                   `json:"subscription_id"`
	From           model.SubscriptionStatus `json:"from"`
	To             model.SubscriptionStatus `json:"to"`
	Trigger        model.Trigger            `json:"trigger"`
	Reason         string                   `json:"reason,omitempty"`
	PlanID         string                   `json:"plan_id"`
}

func (s *BillingService) lockByCompany(ctx context.Context, companyID string) (*model.Subscription, error) {
	sub, err := s.store.GetSubscriptionForUpdate(ctx, companyID)
	if errors.Is(err, repository.ErrSubscriptionNotFound) {
		return nil, ErrSubscriptionNotFound
	}
	return sub, err
}

// persist writes sub and, for status changes, a history row.
func (s *BillingService) persist(ctx context.Context, sub *model.Subscription, out *billing.Outcome) error {
	if err := s.store.UpdateSubscription(ctx, sub); err != nil {
		return err
	}
	if !out.StatusChanged() && out.Trigger != model.TriggerTenant && out.Trigger != model.TriggerAdmin {
		return nil
	}
	return s.store.InsertSubscriptionEvent(ctx, historyRow(sub, out, s.machine.Now()))
}

func historyRow(sub *model.Subscription, out *billing.Outcome, now time.Time) *model.SubscriptionEvent {
	return &model.SubscriptionEvent{
		ID:             newID(),
		SubscriptionID: sub.ID,
		From:           out.From,
		To:             out.To,
		Trigger:        out.Trigger,
		Reason:         out.Reason,
		CreatedAt:      now,
	}
}

// afterCommit drops cached entitlements and announces status changes.
func (s *BillingService) afterCommit(ctx context.Context, companyID string, changed []transition) {
	if len(changed) == 0 {
		return
	}
	s.invalidate(ctx, companyID)

	for _, t := range changed {
		if !t.out.StatusChanged() {
			continue
		}
		s.metrics.IncSubscriptionTransition(string(t.out.From), string(t.out.To), string(t.out.Trigger))
		s.logger.Info("subscription_transitioned",
			"company_id", companyID,
			"subscription_id", t.sub.ID,
			"from", t.out.From,
			"to", t.out.To,
			"trigger", t.out.Trigger,
		)
		err := s.publisher.Publish(ctx, companyID, model.EventSubscriptionStatusChanged, subscriptionChange{
			SubscriptionID: t.sub.ID,
			From:           t.out.From,
			To:             t.out.To,
			Trigger:        t.out.Trigger,
			Reason:         t.out.Reason,
			PlanID:         t.sub.PlanID,
		})
		if err != nil {
			s.logger.Warn("publish subscription change failed", "company_id", companyID, "error", err)
		}
	}
}

func (s *BillingService) invalidate(ctx context.Context, companyID string) {
	if err := s.cache.InvalidateEntitlements(ctx, companyID); err != nil {
		s.logger.Warn("entitlement cache invalidation failed", "company_id", companyID, "error", err)
	}
}

func (s *BillingService) availablePlan(ctx context.Context, companyID, code string) (*model.Plan, error) {
	plan, err := s.store.GetPlanByCode(ctx, strings.ToLower(strings.TrimSpace(code)))
	if err != nil {
		if errors.Is(err, repository.ErrPlanNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	if !planAvailableTo(plan, companyID) {
		return nil, ErrPlanUnavailable
	}
	return plan, nil
}

func planAvailableTo(plan *model.Plan, companyID string) bool {
	return plan.Active && (plan.CompanyID == nil || *plan.CompanyID == companyID)
}
