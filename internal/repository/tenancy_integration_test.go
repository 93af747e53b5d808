//go:build integration

package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hireloop/hireloop/internal/model"
	"github.com/hireloop/hireloop/internal/testutil"
)

func TestIntegrationMigration_Tables(t *testing.T) {
	ctx, repo := newTestEnv(t)

	tables := []string{
		"companies", "users", "memberships", "api_keys",
		"plans", "subscriptions", "subscription_events", "billing_events",
		"jobs", "candidate_profiles", "applications", "application_notes",
		"webhook_endpoints", "webhook_deliveries",
		"support_tickets", "ticket_messages", "calendar_events", "tasks",
	}
	for _, table := range tables {
		var exists bool
		err := repo.Pool().QueryRow(ctx, `
			SELECT EXISTS (
				SELECT FROM information_schema.tables
				WHERE table_schema = 'public' AND table_name = $1
			)
		`, table).Scan(&exists)
		if err != nil {
			t.Fatalf("check table %s: %v", table, err)
		}
		if !exists {
			t.Errorf("table %q should exist after migrations", table)
		}
	}

	plans, err := repo.ListAllPlans(ctx)
	if err != nil {
		t.Fatalf("ListAllPlans: %v", err)
	}
	if len(plans) != 3 {
		t.Errorf("seeded plans = %d, want 3", len(plans))
	}
}

func TestIntegrationTenancy_CompanyAndMembers(t *testing.T) {
	ctx, repo := newTestEnv(t)
	company, owner := seedCompany(t, ctx, repo)

	got, err := repo.GetCompanyBySlug(ctx, company.Slug)
	if err != nil {
		t.Fatalf("GetCompanyBySlug: %v", err)
	}
	if got.ID != company.ID {
		t.Errorf("company id = %q, want %q", got.ID, company.ID)
	}

	dup := testutil.NewTestCompany(t)
	dup.Slug = company.Slug
	if err := repo.CreateCompany(ctx, dup); !errors.Is(err, ErrSlugExists) {
		t.Errorf("duplicate slug error = %v, want ErrSlugExists", err)
	}

	recruiter := testutil.NewTestUser(t)
	if err := repo.CreateUser(ctx, recruiter); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	m := &model.Membership{CompanyID: company.ID, UserID: recruiter.ID, Role: model.RoleRecruiter, CreatedAt: time.Now().UTC()}
	if err := repo.CreateMembership(ctx, m); err != nil {
		t.Fatalf("CreateMembership: %v", err)
	}
	if err := repo.CreateMembership(ctx, m); !errors.Is(err, ErrAlreadyMember) {
		t.Errorf("duplicate membership error = %v, want ErrAlreadyMember", err)
	}

	members, err := repo.ListMembers(ctx, company.ID)
	if err != nil {
		t.Fatalf("ListMembers: %v", err)
	}
	if len(members) != 2 || members[0].User == nil || members[0].UserID != owner.ID {
		t.Fatalf("ListMembers = %+v", members)
	}

	owners, err := repo.CountOwners(ctx, company.ID)
	if err != nil || owners != 1 {
		t.Errorf("CountOwners = %d, %v; want 1", owners, err)
	}

	if err := repo.UpdateMemberRole(ctx, company.ID, recruiter.ID, model.RoleAdmin); err != nil {
		t.Fatalf("UpdateMemberRole: %v", err)
	}
	if err := repo.DeleteMembership(ctx, company.ID, recruiter.ID); err != nil {
		t.Fatalf("DeleteMembership: %v", err)
	}
	if _, err := repo.GetMembership(ctx, company.ID, recruiter.ID); !errors.Is(err, ErrMembershipNotFound) {
		t.Errorf("GetMembership after delete = %v, want ErrMembershipNotFound", err)
	}
}

func TestIntegrationTenancy_ConsumeInviteOnce(t *testing.T) {
	ctx, repo := newTestEnv(t)

	company := testutil.NewTestCompany(t)
	if err := repo.CreateCompany(ctx, company); err != nil {
		t.Fatalf("CreateCompany: %v", err)
	}

	now := time.Now().UTC()
	inv := &model.ConsumedInvite{
		ID:         testutil.UniqueID("inv"),
		CompanyID:  company.ID,
		Email:      "invitee@example.com",
		ConsumedAt: now,
		ExpiresAt:  now.Add(time.Hour),
	}
	first, err := repo.ConsumeInvite(ctx, inv)
	if err != nil || !first {
		t.Fatalf("first ConsumeInvite = %v, %v; want true", first, err)
	}
	second, err := repo.ConsumeInvite(ctx, inv)
	if err != nil || second {
		t.Errorf("second ConsumeInvite = %v, %v; want false", second, err)
	}
}

func TestIntegrationTenancy_GetOrCreateUserNormalizesEmail(t *testing.T) {
	ctx, repo := newTestEnv(t)

	u := testutil.NewTestUser(t)
	u.Email = "  Mixed.Case@Example.COM "
	created, err := repo.GetOrCreateUser(ctx, u)
	if err != nil {
		t.Fatalf("GetOrCreateUser: %v", err)
	}
	again, err := repo.GetOrCreateUser(ctx, &model.User{ID: "other", Email: "mixed.case@example.com"})
	if err != nil {
		t.Fatalf("GetOrCreateUser again: %v", err)
	}
	if again.ID != created.ID {
		t.Errorf("second lookup id = %q, want %q", again.ID, created.ID)
	}
}

func TestIntegrationAPIKeys_CompanyScope(t *testing.T) {
	ctx, repo := newTestEnv(t)
	company, owner := seedCompany(t, ctx, repo)

	key := testutil.NewTestAPIKey(t, company.ID, owner.ID)
	if err := repo.CreateAPIKey(ctx, key); err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}
	staff := testutil.NewTestAPIKey(t, "", owner.ID)
	staff.Scopes = []string{model.ScopePlatform}
	if err := repo.CreateAPIKey(ctx, staff); err != nil {
		t.Fatalf("CreateAPIKey staff: %v", err)
	}

	got, err := repo.GetAPIKeyByID(ctx, staff.ID)
	if err != nil {
		t.Fatalf("GetAPIKeyByID: %v", err)
	}
	if got.CompanyID != "" {
		t.Errorf("staff key company = %q, want empty", got.CompanyID)
	}

	keys, err := repo.ListAPIKeysByCompany(ctx, company.ID)
	if err != nil {
		t.Fatalf("ListAPIKeysByCompany: %v", err)
	}
	if len(keys) != 1 || keys[0].ID != key.ID {
		t.Errorf("ListAPIKeysByCompany = %+v", keys)
	}

	n, err := repo.RevokeMemberAPIKeys(ctx, company.ID, owner.ID)
	if err != nil || n != 1 {
		t.Errorf("RevokeMemberAPIKeys = %d, %v; want 1", n, err)
	}
	active, err := repo.GetAPIKeysByPrefix(ctx, key.KeyPrefix)
	if err != nil {
		t.Fatalf("GetAPIKeysByPrefix: %v", err)
	}
	for _, k := range active {
		if k.ID == key.ID {
			t.Error("revoked key returned by prefix lookup")
		}
	}
}

func TestIntegrationWithinTx_RollsBack(t *testing.T) {
	ctx, repo := newTestEnv(t)

	company := testutil.NewTestCompany(t)
	sentinel := errors.New("boom")
	err := repo.WithinTx(ctx, func(ctx context.Context) error {
		if err := repo.CreateCompany(ctx, company); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("WithinTx error = %v, want sentinel", err)
	}
	if _, err := repo.GetCompanyByID(ctx, company.ID); !errors.Is(err, ErrCompanyNotFound) {
		t.Errorf("company after rollback: %v, want ErrCompanyNotFound", err)
	}
}
