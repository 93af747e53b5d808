package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hireloop/hireloop/internal/billing"
	"github.com/hireloop/hireloop/internal/metrics"
	"github.com/hireloop/hireloop/internal/model"
)

var billingEpoch = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

type billingFixture struct {
	svc     *BillingService
	store   *memStore
	cache   *memCache
	pub     *recordingPublisher
	metrics *metrics.InMemoryRecorder
	now     time.Time
}

func newBillingFixture(t *testing.T) *billingFixture {
	t.Helper()

	f := &billingFixture{
		store:   newMemStore(),
		cache:   newMemCache(),
		pub:     &recordingPublisher{},
		metrics: metrics.NewInMemory(),
		now:     billingEpoch,
	}
	f.store.addPlan(&model.Plan{
		ID: "plan_starter", Code: "starter", Name: "Starter", Active: true,
		MaxActiveJobs: 3, MaxSeats: 2, MonthlyAIScores: 2,
		Features: []string{model.FeatureAIScoring},
	})
	f.store.addPlan(&model.Plan{
		ID: "plan_growth", Code: "growth", Name: "Growth", Active: true,
		MaxActiveJobs: 20, MaxSeats: 10, MonthlyAIScores: 500,
		Features: []string{model.FeatureAIScoring, model.FeatureTalentSearch},
	})
	f.svc = NewBillingService(f.store, f.cache, discardLogger(), BillingOptions{
		Publisher: f.pub,
		Metrics:   f.metrics,
	})
	f.svc.SetClock(func() time.Time { return f.now })
	return f
}

func (f *billingFixture) trial(t *testing.T, companyID string) *model.Subscription {
	t.Helper()
	sub, err := f.svc.StartTrial(context.Background(), companyID)
	require.NoError(t, err)
	return sub
}

func paymentEvent(id, typ, companyID string, created time.Time) *billing.PaymentEvent {
	ev := &billing.PaymentEvent{ID: id, Type: typ, Created: created.Unix()}
	ev.Data.CompanyID = companyID
	return ev
}

func TestBillingService_StartTrial(t *testing.T) {
	f := newBillingFixture(t)
	sub := f.trial(t, "co_1")

	assert.Equal(t, model.SubTrialing, sub.Status)
	assert.Equal(t, "plan_starter", sub.PlanID)
	require.NotNil(t, sub.TrialEndsAt)
	assert.Equal(t, billingEpoch.Add(14*24*time.Hour), *sub.TrialEndsAt)

	hist := f.store.history()
	require.Len(t, hist, 1)
	assert.Equal(t, model.SubscriptionStatus(""), hist[0].From)
	assert.Equal(t, model.SubTrialing, hist[0].To)
	assert.Equal(t, model.TriggerTenant, hist[0].Trigger)

	_, err := f.svc.StartTrial(context.Background(), "co_1")
	assert.Error(t, err, "a company has exactly one subscription")
}

func TestBillingService_StartTrial_MissingDefaultPlan(t *testing.T) {
	f := newBillingFixture(t)
	f.svc.defaultPlan = "enterprise"

	_, err := f.svc.StartTrial(context.Background(), "co_1")
	require.ErrorIs(t, err, ErrPlanNotFound)
}

func TestBillingService_HandlePaymentEvent_Processed(t *testing.T) {
	f := newBillingFixture(t)
	f.trial(t, "co_1")
	ctx := context.Background()

	// Prime the entitlement cache so invalidation is observable.
	_, err := f.svc.Entitlements(ctx, "co_1")
	require.NoError(t, err)

	ev := paymentEvent("evt_1", billing.EventSubscriptionActivated, "co_1", billingEpoch)
	outcome, err := f.svc.HandlePaymentEvent(ctx, ev, []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)

	sub := f.store.subscription("co_1")
	assert.Equal(t, model.SubActive, sub.Status)
	assert.Contains(t, f.cache.invalidated, "co_1")
	assert.Equal(t, []model.EventType{model.EventSubscriptionStatusChanged}, f.pub.types())

	snap := f.metrics.Snapshot()
	assert.Equal(t, uint64(1), snap.PaymentWebhooks[OutcomeProcessed])
	assert.Equal(t, uint64(1), snap.Transitions[metrics.TransitionKey("trialing", "active", "webhook")])

	hist := f.store.history()
	last := hist[len(hist)-1]
	assert.Equal(t, model.SubTrialing, last.From)
	assert.Equal(t, model.SubActive, last.To)
	assert.Equal(t, model.TriggerWebhook, last.Trigger)
}

func TestBillingService_HandlePaymentEvent_DuplicateClaim(t *testing.T) {
	f := newBillingFixture(t)
	f.trial(t, "co_1")
	ctx := context.Background()

	ev := paymentEvent("evt_dup", billing.EventSubscriptionActivated, "co_1", billingEpoch)
	_, err := f.svc.HandlePaymentEvent(ctx, ev, nil)
	require.NoError(t, err)

	outcome, err := f.svc.HandlePaymentEvent(ctx, ev, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Len(t, f.pub.types(), 1, "a duplicate must not publish again")
}

func TestBillingService_HandlePaymentEvent_DuplicateRecordRollsBack(t *testing.T) {
	f := newBillingFixture(t)
	f.trial(t, "co_1")
	f.store.recordDuplicate = true

	ev := paymentEvent("evt_seen", billing.EventSubscriptionActivated, "co_1", billingEpoch)
	outcome, err := f.svc.HandlePaymentEvent(context.Background(), ev, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Equal(t, model.SubTrialing, f.store.subscription("co_1").Status)
	assert.Empty(t, f.pub.types())
}

func TestBillingService_HandlePaymentEvent_RedeliveryAfterLostRelease(t *testing.T) {
	f := newBillingFixture(t)
	f.trial(t, "co_1")
	ctx := context.Background()

	f.store.recordErr = errors.New("connection reset")
	f.cache.releaseErr = errors.New("redis down")

	ev := paymentEvent("evt_retry", billing.EventSubscriptionActivated, "co_1", billingEpoch)
	_, err := f.svc.HandlePaymentEvent(ctx, ev, nil)
	require.Error(t, err)
	assert.Equal(t, model.SubTrialing, f.store.subscription("co_1").Status)

	// The claim is still held, but nothing was committed.
	f.store.recordErr = nil
	outcome, err := f.svc.HandlePaymentEvent(ctx, ev, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)
	assert.Equal(t, model.SubActive, f.store.subscription("co_1").Status)

	outcome, err = f.svc.HandlePaymentEvent(ctx, ev, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Len(t, f.pub.types(), 1)
}

func TestBillingService_HandlePaymentEvent_ClaimErrorFallsBackToStore(t *testing.T) {
	f := newBillingFixture(t)
	f.trial(t, "co_1")
	f.cache.claimErr = errors.New("redis down")

	ev := paymentEvent("evt_2", billing.EventSubscriptionActivated, "co_1", billingEpoch)
	outcome, err := f.svc.HandlePaymentEvent(context.Background(), ev, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)
}

func TestBillingService_HandlePaymentEvent_LatestWins(t *testing.T) {
	f := newBillingFixture(t)
	f.trial(t, "co_1")
	ctx := context.Background()

	_, err := f.svc.HandlePaymentEvent(ctx, paymentEvent("evt_a", billing.EventSubscriptionActivated, "co_1", billingEpoch), nil)
	require.NoError(t, err)
	_, err = f.svc.HandlePaymentEvent(ctx, paymentEvent("evt_b", billing.EventInvoicePaymentFailed, "co_1", billingEpoch.Add(time.Hour)), nil)
	require.NoError(t, err)
	require.Equal(t, model.SubGracePeriod, f.store.subscription("co_1").Status)

	// A paid event created before the failure arrives late.
	outcome, err := f.svc.HandlePaymentEvent(ctx, paymentEvent("evt_c", billing.EventInvoicePaid, "co_1", billingEpoch.Add(30*time.Minute)), nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeStale, outcome)
	assert.Equal(t, model.SubGracePeriod, f.store.subscription("co_1").Status)
}

func TestBillingService_HandlePaymentEvent_Outcomes(t *testing.T) {
	testCases := []struct {
		name    string
		status  model.SubscriptionStatus
		ev      *billing.PaymentEvent
		outcome string
	}{
		{
			name:    "unknown company",
			status:  model.SubActive,
			ev:      paymentEvent("evt_x", billing.EventInvoicePaid, "co_other", billingEpoch),
			outcome: OutcomeIgnored,
		},
		{
			name:    "no company reference",
			status:  model.SubActive,
			ev:      paymentEvent("evt_y", billing.EventInvoicePaid, "", billingEpoch),
			outcome: OutcomeIgnored,
		},
		{
			name:    "unknown type",
			status:  model.SubActive,
			ev:      paymentEvent("evt_z", "customer.created", "co_1", billingEpoch),
			outcome: OutcomeIgnored,
		},
		{
			name:    "failure after expiry",
			status:  model.SubExpired,
			ev:      paymentEvent("evt_w", billing.EventInvoicePaymentFailed, "co_1", billingEpoch),
			outcome: OutcomeRejected,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newBillingFixture(t)
			f.store.addSubscription(&model.Subscription{ID: "sub_1", CompanyID: "co_1", PlanID: "plan_starter", Status: tc.status})

			outcome, err := f.svc.HandlePaymentEvent(context.Background(), tc.ev, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.outcome, outcome)
			assert.Equal(t, tc.status, f.store.subscription("co_1").Status)
			assert.Empty(t, f.pub.types())
			assert.Contains(t, f.store.billingEvents, tc.ev.ID, "every handled event is recorded")
		})
	}
}

func TestBillingService_HandlePaymentEvent_ByExternalSubscription(t *testing.T) {
	f := newBillingFixture(t)
	f.store.addSubscription(&model.Subscription{
		ID: "sub_1", CompanyID: "co_1", PlanID: "plan_starter",
		Status: model.SubActive, ExternalSubscriptionID: "ext_9",
	})

	ev := &billing.PaymentEvent{ID: "evt_ext", Type: billing.EventSubscriptionUpdated, Created: billingEpoch.Unix()}
	ev.Data.SubscriptionID = "ext_9"
	ev.Data.PlanCode = "growth"

	outcome, err := f.svc.HandlePaymentEvent(context.Background(), ev, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)
	assert.Equal(t, "plan_growth", f.store.subscription("co_1").PlanID)
	assert.Empty(t, f.pub.types(), "a plan change alone is not a status change")
}

func TestBillingService_Sweep(t *testing.T) {
	f := newBillingFixture(t)
	f.trial(t, "co_expiring")
	f.trial(t, "co_fresh")
	ctx := context.Background()

	// Push co_fresh's trial out so only one is due.
	_, err := f.svc.ApplyAdminAction(ctx, "co_fresh", AdminActionInput{Kind: billing.ActionExtendTrial, Days: 30})
	require.NoError(t, err)

	f.now = billingEpoch.Add(15 * 24 * time.Hour)
	n, err := f.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, model.SubExpired, f.store.subscription("co_expiring").Status)
	assert.Equal(t, model.SubTrialing, f.store.subscription("co_fresh").Status)

	hist := f.store.history()
	last := hist[len(hist)-1]
	assert.Equal(t, model.TriggerTime, last.Trigger)
	assert.Equal(t, model.SubExpired, last.To)

	// A second sweep finds nothing.
	n, err = f.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBillingService_AdvanceCompany_Chains(t *testing.T) {
	f := newBillingFixture(t)
	end := billingEpoch.Add(-time.Hour)
	f.store.addSubscription(&model.Subscription{
		ID: "sub_1", CompanyID: "co_1", PlanID: "plan_starter",
		Status: model.SubActive, CancelAtPeriodEnd: true, CurrentPeriodEnd: &end,
	})

	n, err := f.svc.AdvanceCompany(context.Background(), "co_1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, model.SubExpired, f.store.subscription("co_1").Status)
	assert.Len(t, f.pub.types(), 2)
}

func TestBillingService_ApplyAdminAction(t *testing.T) {
	f := newBillingFixture(t)
	f.store.addSubscription(&model.Subscription{ID: "sub_1", CompanyID: "co_1", PlanID: "plan_starter", Status: model.SubExpired})
	ctx := context.Background()

	view, err := f.svc.ApplyAdminAction(ctx, "co_1", AdminActionInput{
		Kind: billing.ActionExtendTrial, Days: 7, Reason: "sales request", ActorID: "usr_staff",
	})
	require.NoError(t, err)
	assert.Equal(t, model.SubTrialing, view.Subscription.Status)
	assert.True(t, view.Entitlements.CanWrite())

	hist := f.store.history()
	last := hist[len(hist)-1]
	assert.Equal(t, model.TriggerAdmin, last.Trigger)
	assert.Equal(t, "extend_trial: sales request", last.Reason)

	_, err = f.svc.ApplyAdminAction(ctx, "co_1", AdminActionInput{Kind: billing.ActionGrantGrace, Days: 3})
	require.ErrorIs(t, err, billing.ErrInvalidTransition)

	_, err = f.svc.ApplyAdminAction(ctx, "co_1", AdminActionInput{Kind: "refund"})
	require.ErrorIs(t, err, billing.ErrInvalidAction)

	_, err = f.svc.ApplyAdminAction(ctx, "co_missing", AdminActionInput{Kind: billing.ActionExpire})
	require.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestBillingService_AssignCustomPlan(t *testing.T) {
	f := newBillingFixture(t)
	f.trial(t, "co_1")
	ctx := context.Background()

	custom, err := f.svc.CreatePlan(ctx, PlanInput{Code: "Acme-Deal", Name: "Acme", MaxSeats: 50, CompanyID: "co_other"})
	require.NoError(t, err)
	assert.Equal(t, "acme-deal", custom.Code)
	assert.True(t, custom.IsCustom())

	_, err = f.svc.ApplyAdminAction(ctx, "co_1", AdminActionInput{Kind: billing.ActionAssignPlan, PlanCode: "acme-deal"})
	require.ErrorIs(t, err, ErrPlanUnavailable)

	view, err := f.svc.ApplyAdminAction(ctx, "co_1", AdminActionInput{Kind: billing.ActionAssignPlan, PlanCode: "growth"})
	require.NoError(t, err)
	assert.Equal(t, "growth", view.Plan.Code)
	assert.Equal(t, model.SubTrialing, view.Subscription.Status)
}

func TestBillingService_CreatePlan_Validation(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()

	testCases := []struct {
		name string
		in   PlanInput
		err  error
	}{
		{"missing name", PlanInput{Code: "x"}, ErrInvalidInput},
		{"negative limit", PlanInput{Code: "x", Name: "X", MaxSeats: -1}, ErrInvalidInput},
		{"bad interval", PlanInput{Code: "x", Name: "X", Interval: "week"}, ErrInvalidInput},
		{"unknown feature", PlanInput{Code: "x", Name: "X", Features: []string{"teleport"}}, ErrInvalidInput},
		{"duplicate code", PlanInput{Code: "starter", Name: "Again"}, ErrPlanCodeExists},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreatePlan(ctx, tc.in)
			require.ErrorIs(t, err, tc.err)
		})
	}
}

func TestBillingService_ChangePlan(t *testing.T) {
	f := newBillingFixture(t)
	f.trial(t, "co_1")
	ctx := context.Background()

	view, err := f.svc.ChangePlan(ctx, "co_1", "growth")
	require.NoError(t, err)
	assert.Equal(t, "growth", view.Plan.Code)
	assert.Equal(t, model.SubTrialing, view.Subscription.Status)

	_, err = f.svc.ChangePlan(ctx, "co_1", "platinum")
	require.ErrorIs(t, err, ErrPlanNotFound)

	_, err = f.svc.ApplyAdminAction(ctx, "co_1", AdminActionInput{Kind: billing.ActionExpire})
	require.NoError(t, err)
	_, err = f.svc.ChangePlan(ctx, "co_1", "starter")
	require.ErrorIs(t, err, ErrSubscriptionInactive)
}

func TestBillingService_Entitlements_Cached(t *testing.T) {
	f := newBillingFixture(t)
	f.trial(t, "co_1")
	ctx := context.Background()

	first, err := f.svc.Entitlements(ctx, "co_1")
	require.NoError(t, err)
	assert.Equal(t, billing.AccessFull, first.Access)
	assert.Equal(t, "starter", first.PlanCode)

	_, err = f.svc.Entitlements(ctx, "co_1")
	require.NoError(t, err)
	assert.Equal(t, 1, f.cache.entCacheHits)

	_, err = f.svc.Entitlements(ctx, "co_none")
	require.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestBillingService_AIQuota(t *testing.T) {
	f := newBillingFixture(t)
	f.trial(t, "co_1")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := f.svc.ConsumeAIScore(ctx, "co_1")
		require.NoError(t, err)
		require.True(t, ok, "unit %d", i+1)
	}
	ok, err := f.svc.ConsumeAIScore(ctx, "co_1")
	require.NoError(t, err)
	assert.False(t, ok, "quota of 2 is spent")

	require.NoError(t, f.svc.RefundAIScore(ctx, "co_1"))
	ok, err = f.svc.ConsumeAIScore(ctx, "co_1")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.svc.ApplyAdminAction(ctx, "co_1", AdminActionInput{Kind: billing.ActionExpire})
	require.NoError(t, err)
	require.NoError(t, f.svc.RefundAIScore(ctx, "co_1"))
	ok, err = f.svc.ConsumeAIScore(ctx, "co_1")
	require.NoError(t, err)
	assert.False(t, ok, "an expired subscription cannot score")
}

func TestBillingService_ListSubscriptions_InvalidStatus(t *testing.T) {
	f := newBillingFixture(t)
	_, _, err := f.svc.ListSubscriptions(context.Background(), "paused", "", 10)
	require.ErrorIs(t, err, ErrInvalidInput)
}
