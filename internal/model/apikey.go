// Package model defines Hireloop's domain entities.
package model

import (
	"slices"
	"time"
)

// API key scopes. Tenant admin implies every tenant scope.
const (
	ScopeRead    = "read"
	ScopeWrite   = "write"
	ScopeWebhook = "webhook"
	ScopeAdmin   = "admin"

	// ScopePlatform marks platform staff keys. Tenant admin never implies it.
	ScopePlatform = "platform"
)

// ValidScopes are the scopes a tenant may request for a key.
var ValidScopes = []string{ScopeRead, ScopeWrite, ScopeWebhook, ScopeAdmin}

// Rate limit tiers. Keys of companies whose plan includes API access are
// issued TierPro; platform keys are TierUnlimited.
const (
	TierFree      = "free"
	TierPro       = "pro"
	TierUnlimited = "unlimited"
)

// RateLimit is a token bucket refilled at PerMinute with room for Burst.
type RateLimit struct {
	PerMinute int
	Burst     int
}

var tierLimits = map[string]RateLimit{
	TierFree: {PerMinute: 60, Burst: 10},
	TierPro:  {PerMinute: 600, Burst: 50},
}

// LimitForTier returns the bucket of a tier. ok is false for
// TierUnlimited. Unknown tiers get the free bucket.
func LimitForTier(tier string) (limit RateLimit, ok bool) {
	if tier == TierUnlimited {
		return RateLimit{}, false
	}
	if l, found := tierLimits[tier]; found {
		return l, true
	}
	return tierLimits[TierFree], true
}

// APIKey is a stored credential. Platform staff keys have no CompanyID.
// KeyPrefix holds the lookup segment of the plaintext key.
type APIKey struct {
	ID            string     `json:"id"`
	CompanyID     string     `json:"company_id,omitempty"`
	UserID        string     `json:"user_id"`
	KeyHash       string     `json:"-"`
	KeyPrefix     string     `json:"key_prefix"`
	Scopes        []string   `json:"scopes"`
	RateLimitTier string     `json:"rate_limit_tier"`
	Name          string     `json:"name,omitempty"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
	LastUsedAt    *time.Time `json:"last_used_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func (k *APIKey) IsRevoked() bool { return k.RevokedAt != nil }

func (k *APIKey) HasScope(scope string) bool { return hasScope(k.Scopes, scope) }

// AuthContext is the authenticated caller of a request.
type AuthContext struct {
	KeyID         string
	KeyPrefix     string
	CompanyID     string
	UserID        string
	Scopes        []string
	RateLimitTier string
}

func (a *AuthContext) HasScope(scope string) bool { return hasScope(a.Scopes, scope) }

// IsPlatform reports whether the caller is platform staff.
func (a *AuthContext) IsPlatform() bool {
	return slices.Contains(a.Scopes, ScopePlatform)
}

func hasScope(scopes []string, scope string) bool {
	if scope != ScopePlatform && slices.Contains(scopes, ScopeAdmin) {
		return true
	}
	return slices.Contains(scopes, scope)
}

// APIKeyResponse is a key as listed to its owner. The hash never leaves
// the server.
type APIKeyResponse struct {
	ID            string     `json:"id"`
	Name          string     `json:"name,omitempty"`
	UserID        string     `json:"user_id"`
	KeyPrefix     string     `json:"key_prefix"`
	Scopes        []string   `json:"scopes"`
	RateLimitTier string     `json:"rate_limit_tier"`
	CreatedAt     time.Time  `json:"created_at"`
	LastUsedAt    *time.Time `json:"last_used_at,omitempty"`
	Revoked       bool       `json:"revoked"`
}

func (k *APIKey) ToResponse() APIKeyResponse {
	return APIKeyResponse{
		ID:            k.ID,
		Name:          k.Name,
		UserID:        k.UserID,
		KeyPrefix:     k.KeyPrefix,
		Scopes:        k.Scopes,
		RateLimitTier: k.RateLimitTier,
		CreatedAt:     k.CreatedAt,
		LastUsedAt:    k.LastUsedAt,
		Revoked:       k.IsRevoked(),
	}
}

// APIKeyCreateResponse is returned once, when a key is issued, and is the
// only place the plaintext key appears.
type APIKeyCreateResponse struct {
	APIKeyResponse
	Key string `json:"key"`
}

func (k *APIKey) ToCreateResponse(plaintext string) APIKeyCreateResponse {
	return APIKeyCreateResponse{APIKeyResponse: k.ToResponse(), Key: plaintext}
}

// APIKeyRotateResponse reports a rotation: the old key is revoked and a
// replacement with the same scopes is issued.
type APIKeyRotateResponse struct {
	OldKeyID        string               `json:"old_key_id"`
	OldKeyRevokedAt time.Time            `json:"old_key_revoked_at"`
	NewKey          APIKeyCreateResponse `json:"new_key"`
}
