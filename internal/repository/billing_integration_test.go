//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/hireloop/hireloop/internal/model"
	"github.com/hireloop/hireloop/internal/testutil"
)

func TestIntegrationBilling_CustomPlans(t *testing.T) {
	ctx, repo := newTestEnv(t)
	company, _ := seedCompany(t, ctx, repo)
	other, _ := seedCompany(t, ctx, repo)

	custom := testutil.NewTestPlan("acme-enterprise", 100, 50, 5000, model.FeatureAIScoring)
	custom.CompanyID = &company.ID
	if err := repo.CreatePlan(ctx, custom); err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}

	mine, err := repo.ListPlansForCompany(ctx, company.ID)
	if err != nil {
		t.Fatalf("ListPlansForCompany: %v", err)
	}
	theirs, err := repo.ListPlansForCompany(ctx, other.ID)
	if err != nil {
		t.Fatalf("ListPlansForCompany other: %v", err)
	}
	if len(mine) != 4 || len(theirs) != 3 {
		t.Errorf("plans visible = %d and %d, want 4 and 3", len(mine), len(theirs))
	}

	if err := repo.DeactivatePlan(ctx, custom.ID); err != nil {
		t.Fatalf("DeactivatePlan: %v", err)
	}
	mine, _ = repo.ListPlansForCompany(ctx, company.ID)
	if len(mine) != 3 {
		t.Errorf("deactivated plan still listed")
	}
}

func TestIntegrationBilling_SubscriptionLifecycle(t *testing.T) {
	ctx, repo := newTestEnv(t)
	company, _ := seedCompany(t, ctx, repo)

	now := time.Now().UTC().Truncate(time.Microsecond)
	sub, err := repo.GetSubscriptionByCompany(ctx, company.ID)
	if err != nil {
		t.Fatalf("GetSubscriptionByCompany: %v", err)
	}
	sub.Status = model.SubGracePeriod
	sub.GraceEndsAt = testutil.TimePtr(now.Add(-time.Minute))
	sub.ExternalSubscriptionID = "sub_ext_1"
	sub.UpdatedAt = now
	if err := repo.UpdateSubscription(ctx, sub); err != nil {
		t.Fatalf("UpdateSubscription: %v", err)
	}

	due, err := repo.ListDueSubscriptions(ctx, now, 14*24*time.Hour, 10)
	if err != nil {
		t.Fatalf("ListDueSubscriptions: %v", err)
	}
	if len(due) != 1 || due[0] != company.ID {
		t.Errorf("due = %v, want [%s]", due, company.ID)
	}

	var locked *model.Subscription
	err = repo.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		locked, err = repo.GetSubscriptionByExternalIDForUpdate(ctx, "sub_ext_1")
		if err != nil {
			return err
		}
		return repo.InsertSubscriptionEvent(ctx, &model.SubscriptionEvent{
			ID: testutil.UniqueID("sev"), SubscriptionID: locked.ID,
			From: model.SubActive, To: model.SubGracePeriod, Trigger: model.TriggerWebhook, CreatedAt: now,
		})
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
	events, err := repo.ListSubscriptionEvents(ctx, locked.ID, 10)
	if err != nil || len(events) != 1 {
		t.Errorf("ListSubscriptionEvents = %d, %v; want 1", len(events), err)
	}
}

func TestIntegrationBilling_AIQuota(t *testing.T) {
	ctx, repo := newTestEnv(t)
	company, _ := seedCompany(t, ctx, repo)

	for i := 0; i < 2; i++ {
		ok, err := repo.ConsumeAIScore(ctx, company.ID, 2)
		if err != nil || !ok {
			t.Fatalf("ConsumeAIScore #%d = %v, %v", i, ok, err)
		}
	}
	ok, err := repo.ConsumeAIScore(ctx, company.ID, 2)
	if err != nil || ok {
		t.Errorf("ConsumeAIScore past limit = %v, %v; want false", ok, err)
	}

	if err := repo.RefundAIScore(ctx, company.ID); err != nil {
		t.Fatalf("RefundAIScore: %v", err)
	}
	ok, _ = repo.ConsumeAIScore(ctx, company.ID, 2)
	if !ok {
		t.Error("refunded unit not available")
	}
	ok, _ = repo.ConsumeAIScore(ctx, company.ID, 0)
	if !ok {
		t.Error("limit 0 must be unlimited")
	}
}

func TestIntegrationBilling_RecordEventOnce(t *testing.T) {
	ctx, repo := newTestEnv(t)

	ev := &model.BillingEvent{
		ID: "evt_1", Type: "invoice.paid", Outcome: "applied",
		Payload: []byte(`{"id":"evt_1"}`), ReceivedAt: time.Now().UTC(),
	}
	first, err := repo.RecordBillingEvent(ctx, ev)
	if err != nil || !first {
		t.Fatalf("RecordBillingEvent = %v, %v", first, err)
	}
	second, err := repo.RecordBillingEvent(ctx, ev)
	if err != nil || second {
		t.Errorf("duplicate RecordBillingEvent = %v, %v; want false", second, err)
	}
	exists, err := repo.BillingEventExists(ctx, "evt_1")
	if err != nil || !exists {
		t.Errorf("BillingEventExists = %v, %v", exists, err)
	}
}
