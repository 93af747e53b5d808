package testutil

import (
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hireloop/hireloop/internal/model"
)

// UniqueID returns prefix joined to a fresh lowercase ULID, which is also
// safe to use as a slug or email local part.
func UniqueID(prefix string) string {
	return prefix + "-" + strings.ToLower(ulid.Make().String())
}

func TimePtr(t time.Time) *time.Time { return &t }

func NewTestCompany(t testing.TB) *model.Company {
	t.Helper()
	slug := UniqueID("co")
	at := time.Now().UTC()
	return &model.Company{ID: slug, Name: "Acme " + slug, Slug: slug, CreatedAt: at, UpdatedAt: at}
}

func NewTestUser(t testing.TB) *model.User {
	t.Helper()
	id := UniqueID("user")
	at := time.Now().UTC()
	return &model.User{ID: id, Email: id + "@example.com", Name: "Test User", CreatedAt: at, UpdatedAt: at}
}

// NewTestAPIKey returns a read/write tenant key. Its hash verifies nothing.
func NewTestAPIKey(t testing.TB, companyID, userID string) *model.APIKey {
	t.Helper()
	return &model.APIKey{
		ID:            UniqueID("key"),
		CompanyID:     companyID,
		UserID:        userID,
		KeyHash:       UniqueID("hash"),
		KeyPrefix:     "0badc0de",
		Scopes:        []string{model.ScopeRead, model.ScopeWrite},
		RateLimitTier: model.TierFree,
		Name:          "fixture",
		CreatedAt:     time.Now().UTC(),
	}
}

// NewTestPlan builds a monthly plan; it is not persisted.
func NewTestPlan(code string, maxJobs, maxSeats, aiScores int, features ...string) *model.Plan {
	return &model.Plan{
		ID:              "plan_" + code,
		Code:            code,
		Name:            strings.ToUpper(code[:1]) + code[1:],
		PriceCents:      1000,
		Currency:        "usd",
		Interval:        model.IntervalMonth,
		MaxActiveJobs:   maxJobs,
		MaxSeats:        maxSeats,
		MonthlyAIScores: aiScores,
		Features:        features,
		Active:          true,
		CreatedAt:       time.Now().UTC(),
	}
}

func NewTestSubscription(companyID, planID string, status model.SubscriptionStatus) *model.Subscription {
	at := time.Now().UTC()
	return &model.Subscription{
		ID:        UniqueID("sub"),
		CompanyID: companyID,
		PlanID:    planID,
		Status:    status,
		CreatedAt: at,
		UpdatedAt: at,
	}
}
