package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hireloop/hireloop/internal/auth"
	"github.com/hireloop/hireloop/internal/model"
	"github.com/hireloop/hireloop/internal/repository"
)

const slugAttempts = 4

type tenancyStore interface {
	txRunner
	CreateCompany(ctx context.Context, c *model.Company) error
	GetCompanyByID(ctx context.Context, id string) (*model.Company, error)
	GetCompanyBySlug(ctx context.Context, slug string) (*model.Company, error)
	UpdateCompany(ctx context.Context, c *model.Company) error
	SlugExists(ctx context.Context, slug string) (bool, error)

	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetOrCreateUser(ctx context.Context, user *model.User) (*model.User, error)
	UpdateUser(ctx context.Context, user *model.User) error

	CreateMembership(ctx context.Context, m *model.Membership) error
	GetMembership(ctx context.Context, companyID, userID string) (*model.Membership, error)
	ListMembers(ctx context.Context, companyID string) ([]*model.Membership, error)
	UpdateMemberRole(ctx context.Context, companyID, userID string, role model.Role) error
	DeleteMembership(ctx context.Context, companyID, userID string) error
	ConsumeInvite(ctx context.Context, inv *model.ConsumedInvite) (bool, error)
	CountMembers(ctx context.Context, companyID string) (int, error)
	CountOwners(ctx context.Context, companyID string) (int, error)

	CreateAPIKey(ctx context.Context, key *model.APIKey) error
	GetAPIKeyByID(ctx context.Context, id string) (*model.APIKey, error)
	ListAPIKeysByCompany(ctx context.Context, companyID string) ([]*model.APIKey, error)
	ListAPIKeysByMember(ctx context.Context, companyID, userID string) ([]*model.APIKey, error)
	RevokeAPIKey(ctx context.Context, id string) error
	RevokeMemberAPIKeys(ctx context.Context, companyID, userID string) (int64, error)
}

// trialStarter opens the subscription of a new company.
type trialStarter interface {
	EntitlementSource
	StartTrial(ctx context.Context, companyID string) (*model.Subscription, error)
}

// authInvalidator drops cached auth contexts after keys change.
type authInvalidator interface {
	InvalidateCompanyAuthContexts(ctx context.Context, companyID string) error
}

// TenancyService manages companies, their members and API keys.
type TenancyService struct {
	store   tenancyStore
	billing trialStarter
	authc   authInvalidator
	invites *auth.InviteSigner
	keyEnv  string
	logger  *slog.Logger
	now     func() time.Time
}

// NewTenancyService creates a TenancyService. keyEnv selects the live or
// test API key prefix.
func NewTenancyService(store tenancyStore, billing trialStarter, authc authInvalidator, invites *auth.InviteSigner, keyEnv string, logger *slog.Logger) *TenancyService {
	return &TenancyService{
		store:   store,
		billing: billing,
		authc:   authc,
		invites: invites,
		keyEnv:  keyEnv,
		logger:  logger.With("component", "tenancy"),
		now:     time.Now,
	}
}

// IssuedKey is a stored key with its plaintext, which is shown once.
type IssuedKey struct {
	Key       *model.APIKey
	Plaintext string
}

// SignupInput creates a new tenant. Slug must already be a valid slug;
// when SlugFromName is set a random suffix resolves collisions.
type SignupInput struct {
	CompanyName  string
	Slug         string
	SlugFromName bool
	OwnerEmail   string
	OwnerName    string
}

// SignupResult is everything a new tenant needs to start.
type SignupResult struct {
	Company      *model.Company
	Owner        *model.User
	Subscription *model.Subscription
	APIKey       IssuedKey
}

// Signup creates a company, its owner, a trial subscription and an owner
// API key in one transaction.
func (s *TenancyService) Signup(ctx context.Context, in SignupInput) (*SignupResult, error) {
	name := strings.TrimSpace(in.CompanyName)
	email := normalizeEmail(in.OwnerEmail)
	if name == "" || email == "" {
		return nil, invalidf("company name and owner email are required")
	}

	slug, err := s.pickSlug(ctx, in.Slug, in.SlugFromName)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	res := &SignupResult{
		Company: &model.Company{
			ID:        newID(),
			Name:      name,
			Slug:      slug,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.store.CreateCompany(ctx, res.Company); err != nil {
			if errors.Is(err, repository.ErrSlugExists) {
				return ErrSlugTaken
			}
			return err
		}

		owner, err := s.store.GetOrCreateUser(ctx, &model.User{
			ID:        newID(),
			Email:     email,
			Name:      strings.TrimSpace(in.OwnerName),
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return err
		}
		res.Owner = owner

		if err := s.store.CreateMembership(ctx, &model.Membership{
			CompanyID: res.Company.ID,
			UserID:    owner.ID,
			Role:      model.RoleOwner,
			CreatedAt: now,
		}); err != nil {
			return err
		}

		if res.Subscription, err = s.billing.StartTrial(ctx, res.Company.ID); err != nil {
			return err
		}

		tier, err := s.keyTier(ctx, res.Company.ID)
		if err != nil {
			return err
		}
		res.APIKey, err = s.issueKey(ctx, res.Company.ID, owner.ID, "Owner key", model.RoleOwner.AllowedScopes(), tier)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("company_signed_up",
		"company_id", res.Company.ID,
		"slug", res.Company.Slug,
		"owner_id", res.Owner.ID,
	)
	return res, nil
}

func (s *TenancyService) pickSlug(ctx context.Context, slug string, derived bool) (string, error) {
	candidate := slug
	for i := 0; i < slugAttempts; i++ {
		exists, err := s.store.SlugExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		if !derived {
			return "", ErrSlugTaken
		}
		candidate = slug + "-" + strings.ToLower(newID()[20:])
	}
	return "", ErrSlugTaken
}

// ============================================================================
// Company and profile
// ============================================================================

// GetCompany returns a company by id.
func (s *TenancyService) GetCompany(ctx context.Context, companyID string) (*model.Company, error) {
	c, err := s.store.GetCompanyByID(ctx, companyID)
	if errors.Is(err, repository.ErrCompanyNotFound) {
		return nil, ErrCompanyNotFound
	}
	return c, err
}

// GetCompanyBySlug returns a company by its public slug.
func (s *TenancyService) GetCompanyBySlug(ctx context.Context, slug string) (*model.Company, error) {
	c, err := s.store.GetCompanyBySlug(ctx, slug)
	if errors.Is(err, repository.ErrCompanyNotFound) {
		return nil, ErrCompanyNotFound
	}
	return c, err
}

// CompanyUpdate holds optional company profile changes.
type CompanyUpdate struct {
	Name     *string
	Website  *string
	Industry *string
	Size     *string
}

// UpdateCompany applies profile changes.
func (s *TenancyService) UpdateCompany(ctx context.Context, companyID string, in CompanyUpdate) (*model.Company, error) {
	c, err := s.GetCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if name := trimmed(in.Name); name != nil {
		if *name == "" {
			return nil, invalidf("name must not be empty")
		}
		c.Name = *name
	}
	if v := trimmed(in.Website); v != nil {
		c.Website = *v
	}
	if v := trimmed(in.Industry); v != nil {
		c.Industry = *v
	}
	if v := trimmed(in.Size); v != nil {
		c.Size = *v
	}
	c.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateCompany(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// GetUser returns a user profile.
func (s *TenancyService) GetUser(ctx context.Context, userID string) (*model.User, error) {
	u, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// UserUpdate holds optional profile changes for the caller.
type UserUpdate struct {
	Name  *string
	Title *string
}

// UpdateUser applies profile changes to the caller.
func (s *TenancyService) UpdateUser(ctx context.Context, userID string, in UserUpdate) (*model.User, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if v := trimmed(in.Name); v != nil {
		u.Name = *v
	}
	if v := trimmed(in.Title); v != nil {
		u.Title = *v
	}
	u.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// ============================================================================
// Members and invitations
// ============================================================================

// ListMembers returns the team with user profiles.
func (s *TenancyService) ListMembers(ctx context.Context, companyID string) ([]*model.Membership, error) {
	return s.store.ListMembers(ctx, companyID)
}

// ChangeRole sets a member's role. Only owners may grant ownership and the
// last owner cannot be demoted. Keys whose scopes exceed the new role are
// revoked.
func (s *TenancyService) ChangeRole(ctx context.Context, companyID, actorID, userID string, role model.Role) (*model.Membership, error) {
	if !role.IsValid() {
		return nil, invalidf("unknown role %q", role)
	}

	var member *model.Membership
	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		actor, err := s.membership(ctx, companyID, actorID)
		if err != nil {
			return err
		}
		member, err = s.membership(ctx, companyID, userID)
		if err != nil {
			return err
		}
		if (role == model.RoleOwner || member.Role == model.RoleOwner) && actor.Role != model.RoleOwner {
			return ErrOwnerRequired
		}
		if member.Role == role {
			return nil
		}
		if member.Role == model.RoleOwner {
			if err := s.ensureAnotherOwner(ctx, companyID); err != nil {
				return err
			}
		}

		if err := s.store.UpdateMemberRole(ctx, companyID, userID, role); err != nil {
			return err
		}
		member.Role = role

		keys, err := s.store.ListAPIKeysByMember(ctx, companyID, userID)
		if err != nil {
			return err
		}
		for _, k := range keys {
			if !k.IsRevoked() && !role.PermitsScopes(k.Scopes) {
				if err := s.store.RevokeAPIKey(ctx, k.ID); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.dropAuthCache(ctx, companyID)
	s.logger.Info("member_role_changed", "company_id", companyID, "user_id", userID, "role", role)
	return member, nil
}

// RemoveMember deletes a membership and revokes the member's keys.
func (s *TenancyService) RemoveMember(ctx context.Context, companyID, userID string) error {
	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		member, err := s.membership(ctx, companyID, userID)
		if err != nil {
			return err
		}
		if member.Role == model.RoleOwner {
			if err := s.ensureAnotherOwner(ctx, companyID); err != nil {
				return err
			}
		}
		if err := s.store.DeleteMembership(ctx, companyID, userID); err != nil {
			return err
		}
		_, err = s.store.RevokeMemberAPIKeys(ctx, companyID, userID)
		return err
	})
	if err != nil {
		return err
	}

	s.dropAuthCache(ctx, companyID)
	s.logger.Info("member_removed", "company_id", companyID, "user_id", userID)
	return nil
}

func (s *TenancyService) ensureAnotherOwner(ctx context.Context, companyID string) error {
	owners, err := s.store.CountOwners(ctx, companyID)
	if err != nil {
		return err
	}
	if owners <= 1 {
		return ErrLastOwner
	}
	return nil
}

// Invitation is a signed invite token for a prospective member.
type Invitation struct {
	Token     string     `json:"token"`
	Email     string     `json:"email"`
	Role      model.Role `json:"role"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// Invite signs an invitation for email to join with role.
func (s *TenancyService) Invite(ctx context.Context, companyID, email string, role model.Role) (*Invitation, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, invalidf("a valid email is required")
	}
	if !role.IsValid() || role == model.RoleOwner {
		return nil, invalidf("role must be admin, recruiter or viewer")
	}

	if err := s.checkSeats(ctx, companyID); err != nil {
		return nil, err
	}

	if u, err := s.store.GetUserByEmail(ctx, email); err == nil {
		if _, err := s.store.GetMembership(ctx, companyID, u.ID); err == nil {
			return nil, ErrAlreadyMember
		} else if !errors.Is(err, repository.ErrMembershipNotFound) {
			return nil, err
		}
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}

	token, exp, err := s.invites.Issue(companyID, email, role)
	if err != nil {
		return nil, err
	}
	s.logger.Info("member_invited", "company_id", companyID, "role", role)
	return &Invitation{Token: token, Email: email, Role: role, ExpiresAt: exp}, nil
}

// AcceptResult is the new member and their first API key.
type AcceptResult struct {
	Company    *model.Company
	User       *model.User
	Membership *model.Membership
	APIKey     IssuedKey
}

// AcceptInvite redeems an invitation token. Each token joins at most once,
// so a removed member cannot rejoin with the same invitation.
func (s *TenancyService) AcceptInvite(ctx context.Context, token, name string) (*AcceptResult, error) {
	claims, err := s.invites.Verify(token)
	switch {
	case errors.Is(err, auth.ErrInviteExpired):
		return nil, ErrInviteExpired
	case err != nil:
		return nil, ErrInvalidInvite
	}

	company, err := s.GetCompany(ctx, claims.CompanyID)
	if err != nil {
		if errors.Is(err, ErrCompanyNotFound) {
			return nil, ErrInvalidInvite
		}
		return nil, err
	}

	now := s.now().UTC()
	res := &AcceptResult{Company: company}
	err = s.store.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.checkSeats(ctx, company.ID); err != nil {
			return err
		}

		fresh, err := s.store.ConsumeInvite(ctx, &model.ConsumedInvite{
			ID:         claims.ID,
			CompanyID:  company.ID,
			Email:      claims.Email,
			ConsumedAt: now,
			ExpiresAt:  claims.ExpiresAt.Time,
		})
		if err != nil {
			return err
		}
		if !fresh {
			return ErrInviteUsed
		}

		user, err := s.store.GetOrCreateUser(ctx, &model.User{
			ID:        newID(),
			Email:     claims.Email,
			Name:      strings.TrimSpace(name),
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return err
		}
		res.User = user

		res.Membership = &model.Membership{
			CompanyID: company.ID,
			UserID:    user.ID,
			Role:      claims.Role,
			CreatedAt: now,
		}
		if err := s.store.CreateMembership(ctx, res.Membership); err != nil {
			if errors.Is(err, repository.ErrAlreadyMember) {
				return ErrAlreadyMember
			}
			return err
		}

		tier, err := s.keyTier(ctx, company.ID)
		if err != nil {
			return err
		}
		res.APIKey, err = s.issueKey(ctx, company.ID, user.ID, "Default key", claims.Role.AllowedScopes(), tier)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("invite_accepted", "company_id", company.ID, "user_id", res.User.ID, "role", claims.Role)
	return res, nil
}

// checkSeats fails when the subscription is not writable or another member
// would exceed the plan.
func (s *TenancyService) checkSeats(ctx context.Context, companyID string) error {
	ent, err := requireWrite(ctx, s.billing, companyID)
	if err != nil {
		return err
	}
	seats, err := s.store.CountMembers(ctx, companyID)
	if err != nil {
		return err
	}
	if ent.SeatLimitReached(seats) {
		return ErrSeatLimitReached
	}
	return nil
}

// ============================================================================
// API keys
// ============================================================================

// CreateKeyInput requests a key for the calling member.
type CreateKeyInput struct {
	Name   string
	Scopes []string
}

// CreateAPIKey issues a key bound to (company, user). Scopes default to read
// and must be within the member's role.
func (s *TenancyService) CreateAPIKey(ctx context.Context, companyID, userID string, in CreateKeyInput) (IssuedKey, error) {
	member, err := s.membership(ctx, companyID, userID)
	if err != nil {
		return IssuedKey{}, err
	}
	scopes := in.Scopes
	if len(scopes) == 0 {
		scopes = []string{model.ScopeRead}
	}
	if !member.Role.PermitsScopes(scopes) {
		return IssuedKey{}, ErrScopeNotAllowed
	}

	tier, err := s.keyTier(ctx, companyID)
	if err != nil {
		return IssuedKey{}, err
	}
	key, err := s.issueKey(ctx, companyID, userID, strings.TrimSpace(in.Name), scopes, tier)
	if err != nil {
		return IssuedKey{}, err
	}
	s.logger.Info("API key created",
		"key_id", key.Key.ID,
		"key_prefix", key.Key.KeyPrefix,
		"company_id", companyID,
		"user_id", userID,
	)
	return key, nil
}

// ListAPIKeys lists the company's keys. Members without admin see only
// their own.
func (s *TenancyService) ListAPIKeys(ctx context.Context, companyID, userID string, all bool) ([]*model.APIKey, error) {
	if all {
		return s.store.ListAPIKeysByCompany(ctx, companyID)
	}
	return s.store.ListAPIKeysByMember(ctx, companyID, userID)
}

// RevokeAPIKey revokes a company key. Revoked and foreign keys are
// reported as not found.
func (s *TenancyService) RevokeAPIKey(ctx context.Context, companyID, keyID string) error {
	if _, err := s.activeKey(ctx, companyID, keyID); err != nil {
		return err
	}
	if err := s.store.RevokeAPIKey(ctx, keyID); err != nil {
		if errors.Is(err, repository.ErrAPIKeyNotFound) {
			return ErrAPIKeyNotFound
		}
		return err
	}
	s.dropAuthCache(ctx, companyID)
	s.logger.Info("API key revoked", "key_id", keyID, "company_id", companyID)
	return nil
}

// RotateAPIKey replaces a key with a new one carrying the same name,
// scopes and tier, then revokes the old key.
func (s *TenancyService) RotateAPIKey(ctx context.Context, companyID, keyID string) (IssuedKey, *model.APIKey, error) {
	old, err := s.activeKey(ctx, companyID, keyID)
	if err != nil {
		return IssuedKey{}, nil, err
	}

	var fresh IssuedKey
	err = s.store.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		fresh, err = s.issueKey(ctx, companyID, old.UserID, old.Name, old.Scopes, old.RateLimitTier)
		if err != nil {
			return err
		}
		return s.store.RevokeAPIKey(ctx, old.ID)
	})
	if err != nil {
		return IssuedKey{}, nil, err
	}

	now := s.now().UTC()
	old.RevokedAt = &now
	s.dropAuthCache(ctx, companyID)
	s.logger.Info("API key rotated", "old_key_id", old.ID, "new_key_id", fresh.Key.ID, "company_id", companyID)
	return fresh, old, nil
}

// CreatePlatformKey mints a staff key for email, creating the user when
// needed. Staff keys are not bound to a company.
func (s *TenancyService) CreatePlatformKey(ctx context.Context, email, name string) (IssuedKey, error) {
	email = normalizeEmail(email)
	if email == "" {
		return IssuedKey{}, invalidf("email is required")
	}
	now := s.now().UTC()
	user, err := s.store.GetOrCreateUser(ctx, &model.User{
		ID:        newID(),
		Email:     email,
		Name:      strings.TrimSpace(name),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return IssuedKey{}, err
	}
	key, err := s.issueKey(ctx, "", user.ID, "Platform staff", []string{model.ScopePlatform}, model.TierUnlimited)
	if err != nil {
		return IssuedKey{}, err
	}
	s.logger.Info("platform key created", "key_id", key.Key.ID, "user_id", user.ID)
	return key, nil
}

func (s *TenancyService) issueKey(ctx context.Context, companyID, userID, name string, scopes []string, tier string) (IssuedKey, error) {
	gen, err := auth.NewAPIKey(s.keyEnv)
	if err != nil {
		return IssuedKey{}, err
	}
	key := &model.APIKey{
		ID:            newID(),
		CompanyID:     companyID,
		UserID:        userID,
		KeyHash:       gen.Hash,
		KeyPrefix:     gen.Lookup,
		Scopes:        append([]string{}, scopes...),
		RateLimitTier: tier,
		Name:          name,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return IssuedKey{}, fmt.Errorf("create API key: %w", err)
	}
	return IssuedKey{Key: key, Plaintext: gen.Plaintext}, nil
}

// keyTier grants the higher rate limit to plans with API access.
func (s *TenancyService) keyTier(ctx context.Context, companyID string) (string, error) {
	ent, err := s.billing.Entitlements(ctx, companyID)
	if err != nil {
		return "", err
	}
	if ent.HasFeature(model.FeatureAPIAccess) {
		return model.TierPro, nil
	}
	return model.TierFree, nil
}

func (s *TenancyService) activeKey(ctx context.Context, companyID, keyID string) (*model.APIKey, error) {
	key, err := s.store.GetAPIKeyByID(ctx, keyID)
	if err != nil {
		if errors.Is(err, repository.ErrAPIKeyNotFound) {
			return nil, ErrAPIKeyNotFound
		}
		return nil, err
	}
	if key.CompanyID != companyID || key.IsRevoked() {
		return nil, ErrAPIKeyNotFound
	}
	return key, nil
}

func (s *TenancyService) membership(ctx context.Context, companyID, userID string) (*model.Membership, error) {
	m, err := s.store.GetMembership(ctx, companyID, userID)
	if errors.Is(err, repository.ErrMembershipNotFound) {
		return nil, ErrMemberNotFound
	}
	return m, err
}

func (s *TenancyService) dropAuthCache(ctx context.Context, companyID string) {
	if err := s.authc.InvalidateCompanyAuthContexts(ctx, companyID); err != nil {
		s.logger.Warn("auth cache invalidation failed", "company_id", companyID, "error", err)
	}
}
