package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hireloop/hireloop/internal/auth"
	"github.com/hireloop/hireloop/internal/model"
)

type tenancyFixture struct {
	svc   *TenancyService
	store *memStore
	cache *memCache
}

func newTenancyFixture(t *testing.T) *tenancyFixture {
	t.Helper()
	store := newMemStore()
	store.addPlan(&model.Plan{
		ID: "plan_starter", Code: "starter", Name: "Starter", Active: true,
		MaxSeats: 2,
	})
	store.addPlan(&model.Plan{
		ID: "plan_pro", Code: "pro", Name: "Pro", Active: true,
		Features: []string{model.FeatureAPIAccess},
	})
	cache := newMemCache()
	billingSvc := NewBillingService(store, cache, discardLogger(), BillingOptions{})
	svc := NewTenancyService(store, billingSvc, cache, auth.NewInviteSigner("test-invite-secret"), auth.EnvTest, discardLogger())
	return &tenancyFixture{svc: svc, store: store, cache: cache}
}

func (f *tenancyFixture) signup(t *testing.T, slug string) *SignupResult {
	t.Helper()
	res, err := f.svc.Signup(context.Background(), SignupInput{
		CompanyName: "Acme Corp",
		Slug:        slug,
		OwnerEmail:  "Owner@Acme.test",
		OwnerName:   "Olivia Owner",
	})
	require.NoError(t, err)
	return res
}

// join invites email with role and accepts the invitation.
func (f *tenancyFixture) join(t *testing.T, companyID, email string, role model.Role) *AcceptResult {
	t.Helper()
	ctx := context.Background()
	inv, err := f.svc.Invite(ctx, companyID, email, role)
	require.NoError(t, err)
	res, err := f.svc.AcceptInvite(ctx, inv.Token, "New Member")
	require.NoError(t, err)
	return res
}

func TestTenancyService_Signup(t *testing.T) {
	f := newTenancyFixture(t)
	res := f.signup(t, "acme")

	assert.Equal(t, "acme", res.Company.Slug)
	assert.Equal(t, "owner@acme.test", res.Owner.Email)
	assert.Equal(t, model.SubTrialing, res.Subscription.Status)
	assert.True(t, strings.HasPrefix(res.APIKey.Plaintext, "hl_test_"))
	assert.ElementsMatch(t, model.RoleOwner.AllowedScopes(), res.APIKey.Key.Scopes)
	assert.Equal(t, res.Company.ID, res.APIKey.Key.CompanyID)

	m, err := f.store.GetMembership(context.Background(), res.Company.ID, res.Owner.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleOwner, m.Role)
}

func TestTenancyService_Signup_Slugs(t *testing.T) {
	f := newTenancyFixture(t)
	f.signup(t, "acme")
	ctx := context.Background()

	_, err := f.svc.Signup(ctx, SignupInput{CompanyName: "Acme Two", Slug: "acme", OwnerEmail: "b@acme.test"})
	require.ErrorIs(t, err, ErrSlugTaken)

	res, err := f.svc.Signup(ctx, SignupInput{CompanyName: "Acme", Slug: "acme", SlugFromName: true, OwnerEmail: "c@acme.test"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Company.Slug, "acme-"))
	assert.NotEqual(t, "acme", res.Company.Slug)

	_, err = f.svc.Signup(ctx, SignupInput{Slug: "empty", OwnerEmail: "d@acme.test"})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestTenancyService_Signup_RollsBackWithoutPlan(t *testing.T) {
	f := newTenancyFixture(t)
	delete(f.store.plans, "plan_starter")

	_, err := f.svc.Signup(context.Background(), SignupInput{CompanyName: "Acme", Slug: "acme", OwnerEmail: "o@acme.test"})
	require.ErrorIs(t, err, ErrPlanNotFound)
	assert.Empty(t, f.store.companies)
	assert.Empty(t, f.store.members)
}

func TestTenancyService_InviteAndSeats(t *testing.T) {
	f := newTenancyFixture(t)
	res := f.signup(t, "acme")
	ctx := context.Background()
	companyID := res.Company.ID

	_, err := f.svc.Invite(ctx, companyID, "owner@acme.test", model.RoleAdmin)
	require.ErrorIs(t, err, ErrAlreadyMember)

	_, err = f.svc.Invite(ctx, companyID, "x@acme.test", model.RoleOwner)
	require.ErrorIs(t, err, ErrInvalidInput, "owners are not invited")

	joined := f.join(t, companyID, "Rita@Acme.test", model.RoleRecruiter)
	assert.Equal(t, "rita@acme.test", joined.User.Email)
	assert.Equal(t, model.RoleRecruiter, joined.Membership.Role)
	assert.ElementsMatch(t, []string{model.ScopeRead, model.ScopeWrite}, joined.APIKey.Key.Scopes)

	// The starter plan has two seats.
	_, err = f.svc.Invite(ctx, companyID, "third@acme.test", model.RoleViewer)
	require.ErrorIs(t, err, ErrSeatLimitReached)
}

func TestTenancyService_AcceptInvite_Invalid(t *testing.T) {
	f := newTenancyFixture(t)
	ctx := context.Background()

	_, err := f.svc.AcceptInvite(ctx, "not-a-token", "x")
	require.ErrorIs(t, err, ErrInvalidInvite)

	forged, _, err := auth.NewInviteSigner("other-secret").Issue("co_1", "x@acme.test", model.RoleViewer)
	require.NoError(t, err)
	_, err = f.svc.AcceptInvite(ctx, forged, "x")
	require.ErrorIs(t, err, ErrInvalidInvite)
}

func TestTenancyService_AcceptInvite_SingleUse(t *testing.T) {
	f := newTenancyFixture(t)
	res := f.signup(t, "acme")
	ctx := context.Background()
	companyID := res.Company.ID

	inv, err := f.svc.Invite(ctx, companyID, "rita@acme.test", model.RoleRecruiter)
	require.NoError(t, err)
	joined, err := f.svc.AcceptInvite(ctx, inv.Token, "Rita")
	require.NoError(t, err)

	require.NoError(t, f.svc.RemoveMember(ctx, companyID, joined.User.ID))

	_, err = f.svc.AcceptInvite(ctx, inv.Token, "Rita")
	require.ErrorIs(t, err, ErrInviteUsed)
	_, err = f.store.GetMembership(ctx, companyID, joined.User.ID)
	assert.Error(t, err, "a removed member stays removed")

	// A fresh invitation still works.
	again := f.join(t, companyID, "rita@acme.test", model.RoleViewer)
	assert.Equal(t, joined.User.ID, again.User.ID)
}

func TestTenancyService_AcceptInvite_RolledBackInviteStaysUsable(t *testing.T) {
	f := newTenancyFixture(t)
	res := f.signup(t, "acme")
	ctx := context.Background()
	companyID := res.Company.ID

	inv, err := f.svc.Invite(ctx, companyID, "rita@acme.test", model.RoleRecruiter)
	require.NoError(t, err)
	f.join(t, companyID, "vic@acme.test", model.RoleViewer)

	// Both seats are taken, so nothing is consumed.
	_, err = f.svc.AcceptInvite(ctx, inv.Token, "Rita")
	require.ErrorIs(t, err, ErrSeatLimitReached)
	assert.Len(t, f.store.invites, 1)
}

func TestTenancyService_ChangeRole(t *testing.T) {
	f := newTenancyFixture(t)
	res := f.signup(t, "acme")
	ctx := context.Background()
	companyID, ownerID := res.Company.ID, res.Owner.ID

	member := f.join(t, companyID, "rita@acme.test", model.RoleRecruiter)
	memberID := member.User.ID

	_, err := f.svc.ChangeRole(ctx, companyID, ownerID, ownerID, model.RoleAdmin)
	require.ErrorIs(t, err, ErrLastOwner)

	_, err = f.svc.ChangeRole(ctx, companyID, memberID, memberID, model.RoleOwner)
	require.ErrorIs(t, err, ErrOwnerRequired)

	_, err = f.svc.ChangeRole(ctx, companyID, ownerID, memberID, "superuser")
	require.ErrorIs(t, err, ErrInvalidInput)

	updated, err := f.svc.ChangeRole(ctx, companyID, ownerID, memberID, model.RoleViewer)
	require.NoError(t, err)
	assert.Equal(t, model.RoleViewer, updated.Role)

	key, err := f.store.GetAPIKeyByID(ctx, member.APIKey.Key.ID)
	require.NoError(t, err)
	assert.True(t, key.IsRevoked(), "a write key exceeds the viewer role")
	assert.Contains(t, f.cache.authDropped, companyID)
}

func TestTenancyService_RemoveMember(t *testing.T) {
	f := newTenancyFixture(t)
	res := f.signup(t, "acme")
	ctx := context.Background()
	companyID := res.Company.ID

	require.ErrorIs(t, f.svc.RemoveMember(ctx, companyID, res.Owner.ID), ErrLastOwner)

	member := f.join(t, companyID, "rita@acme.test", model.RoleRecruiter)
	require.NoError(t, f.svc.RemoveMember(ctx, companyID, member.User.ID))

	key, err := f.store.GetAPIKeyByID(ctx, member.APIKey.Key.ID)
	require.NoError(t, err)
	assert.True(t, key.IsRevoked())

	require.ErrorIs(t, f.svc.RemoveMember(ctx, companyID, member.User.ID), ErrMemberNotFound)
}

func TestTenancyService_APIKeys(t *testing.T) {
	f := newTenancyFixture(t)
	res := f.signup(t, "acme")
	ctx := context.Background()
	companyID, ownerID := res.Company.ID, res.Owner.ID

	viewer := f.join(t, companyID, "vic@acme.test", model.RoleViewer)
	_, err := f.svc.CreateAPIKey(ctx, companyID, viewer.User.ID, CreateKeyInput{Scopes: []string{model.ScopeWrite}})
	require.ErrorIs(t, err, ErrScopeNotAllowed)

	readKey, err := f.svc.CreateAPIKey(ctx, companyID, viewer.User.ID, CreateKeyInput{Name: "CI"})
	require.NoError(t, err)
	assert.Equal(t, []string{model.ScopeRead}, readKey.Key.Scopes)
	assert.Equal(t, model.TierFree, readKey.Key.RateLimitTier)

	fresh, old, err := f.svc.RotateAPIKey(ctx, companyID, readKey.Key.ID)
	require.NoError(t, err)
	assert.True(t, old.IsRevoked())
	assert.Equal(t, "CI", fresh.Key.Name)
	assert.Equal(t, readKey.Key.Scopes, fresh.Key.Scopes)
	assert.NotEqual(t, readKey.Plaintext, fresh.Plaintext)

	require.ErrorIs(t, f.svc.RevokeAPIKey(ctx, companyID, readKey.Key.ID), ErrAPIKeyNotFound, "already revoked")
	require.ErrorIs(t, f.svc.RevokeAPIKey(ctx, "co_other", fresh.Key.ID), ErrAPIKeyNotFound)
	require.NoError(t, f.svc.RevokeAPIKey(ctx, companyID, fresh.Key.ID))

	mine, err := f.svc.ListAPIKeys(ctx, companyID, ownerID, false)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
	all, err := f.svc.ListAPIKeys(ctx, companyID, ownerID, true)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestTenancyService_APIKeyTierFollowsPlan(t *testing.T) {
	f := newTenancyFixture(t)
	res := f.signup(t, "acme")
	ctx := context.Background()

	billingSvc := f.svc.billing.(*BillingService)
	_, err := billingSvc.ChangePlan(ctx, res.Company.ID, "pro")
	require.NoError(t, err)

	key, err := f.svc.CreateAPIKey(ctx, res.Company.ID, res.Owner.ID, CreateKeyInput{Scopes: []string{model.ScopeRead, model.ScopeAdmin}})
	require.NoError(t, err)
	assert.Equal(t, model.TierPro, key.Key.RateLimitTier)

	joined := f.join(t, res.Company.ID, "rita@acme.test", model.RoleRecruiter)
	assert.Equal(t, model.TierPro, joined.APIKey.Key.RateLimitTier)
}

func TestTenancyService_SignupKeyTierFollowsDefaultPlan(t *testing.T) {
	f := newTenancyFixture(t)
	f.svc.billing.(*BillingService).defaultPlan = "pro"

	res := f.signup(t, "acme")
	assert.Equal(t, model.TierPro, res.APIKey.Key.RateLimitTier)

	starter := newTenancyFixture(t).signup(t, "acme")
	assert.Equal(t, model.TierFree, starter.APIKey.Key.RateLimitTier)
}

func TestTenancyService_CreatePlatformKey(t *testing.T) {
	f := newTenancyFixture(t)

	key, err := f.svc.CreatePlatformKey(context.Background(), "Staff@Hireloop.test", "Sam Staff")
	require.NoError(t, err)
	assert.Empty(t, key.Key.CompanyID)
	assert.Equal(t, []string{model.ScopePlatform}, key.Key.Scopes)
	assert.Equal(t, model.TierUnlimited, key.Key.RateLimitTier)

	_, err = f.svc.CreatePlatformKey(context.Background(), " ", "")
	require.ErrorIs(t, err, ErrInvalidInput)
}
