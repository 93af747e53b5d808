//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/hireloop/hireloop/internal/model"
	"github.com/hireloop/hireloop/internal/testutil"
)

func newTestEnv(t *testing.T) (context.Context, *Repository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	repo, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(repo.Close)

	unlock, err := testutil.AcquireDBLock(ctx, repo.Pool())
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_ = unlock()
	})

	if err := testutil.ResetSchema(ctx, repo.Pool()); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	return ctx, repo
}

// seedCompany creates a company with an owner and a trialing subscription
// on the seeded starter plan.
func seedCompany(t *testing.T, ctx context.Context, repo *Repository) (*model.Company, *model.User) {
	t.Helper()

	company := testutil.NewTestCompany(t)
	if err := repo.CreateCompany(ctx, company); err != nil {
		t.Fatalf("CreateCompany: %v", err)
	}
	user := testutil.NewTestUser(t)
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := repo.CreateMembership(ctx, &model.Membership{
		CompanyID: company.ID, UserID: user.ID, Role: model.RoleOwner, CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("CreateMembership: %v", err)
	}
	sub := testutil.NewTestSubscription(company.ID, "plan_starter", model.SubTrialing)
	if err := repo.CreateSubscription(ctx, sub); err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}
	return company, user
}
