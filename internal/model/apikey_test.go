package model

import (
	"encoding/json"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestHasScope(t *testing.T) {
	tests := []struct {
		name   string
		scopes []string
		check  string
		want   bool
	}{
		{"exact", []string{ScopeRead, ScopeWrite}, ScopeRead, true},
		{"missing", []string{ScopeRead}, ScopeWrite, false},
		{"admin implies write", []string{ScopeAdmin}, ScopeWrite, true},
		{"admin implies webhook", []string{ScopeAdmin}, ScopeWebhook, true},
		{"admin never implies platform", []string{ScopeAdmin}, ScopePlatform, false},
		{"platform held explicitly", []string{ScopePlatform}, ScopePlatform, true},
		{"platform is not tenant admin", []string{ScopePlatform}, ScopeWrite, false},
		{"no scopes", nil, ScopeRead, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := &APIKey{Scopes: tt.scopes}
			caller := &AuthContext{Scopes: tt.scopes}
			if got := key.HasScope(tt.check); got != tt.want {
				t.Errorf("APIKey.HasScope(%s) = %v, want %v", tt.check, got, tt.want)
			}
			if got := caller.HasScope(tt.check); got != tt.want {
				t.Errorf("AuthContext.HasScope(%s) = %v, want %v", tt.check, got, tt.want)
			}
		})
	}
}

func TestAuthContext_IsPlatform(t *testing.T) {
	if (&AuthContext{Scopes: []string{ScopeAdmin}}).IsPlatform() {
		t.Error("tenant admin must not be platform staff")
	}
	if !(&AuthContext{Scopes: []string{ScopePlatform}}).IsPlatform() {
		t.Error("platform scope should report IsPlatform")
	}
}

func TestLimitForTier(t *testing.T) {
	tests := []struct {
		tier   string
		want   RateLimit
		wantOK bool
	}{
		{TierFree, RateLimit{PerMinute: 60, Burst: 10}, true},
		{TierPro, RateLimit{PerMinute: 600, Burst: 50}, true},
		{TierUnlimited, RateLimit{}, false},
		{"enterprise", RateLimit{PerMinute: 60, Burst: 10}, true},
		{"", RateLimit{PerMinute: 60, Burst: 10}, true},
	}
	for _, tt := range tests {
		got, ok := LimitForTier(tt.tier)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("LimitForTier(%q) = %+v, %v; want %+v, %v", tt.tier, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestValidScopes_ExcludePlatform(t *testing.T) {
	if slices.Contains(ValidScopes, ScopePlatform) {
		t.Error("platform scope must not be requestable by tenants")
	}
}

func TestAPIKey_CreateResponseShowsPlaintextOnce(t *testing.T) {
	revoked := time.Now()
	key := &APIKey{
		ID:            "key_1",
		CompanyID:     "co_1",
		UserID:        "usr_1",
		KeyHash:       "$argon2id$v=19$m=65536,t=3,p=4$c2FsdA$aGFzaA",
		KeyPrefix:     "3f9a1c0b",
		Scopes:        []string{ScopeRead},
		RateLimitTier: TierFree,
	}

	listed, err := json.Marshal(key.ToResponse())
	if err != nil {
		t.Fatal(err)
	}
	created, err := json.Marshal(key.ToCreateResponse("hl_live_3f9a1c0b_secret"))
	if err != nil {
		t.Fatal(err)
	}

	for name, body := range map[string]string{"list": string(listed), "create": string(created)} {
		if strings.Contains(body, "argon2id") {
			t.Errorf("%s response leaks the key hash: %s", name, body)
		}
		if !strings.Contains(body, `"key_prefix":"3f9a1c0b"`) {
			t.Errorf("%s response lacks key_prefix: %s", name, body)
		}
	}
	if strings.Contains(string(listed), "hl_live_") {
		t.Error("list response must not carry the plaintext key")
	}
	if !strings.Contains(string(created), `"key":"hl_live_3f9a1c0b_secret"`) {
		t.Errorf("create response lacks the plaintext key: %s", created)
	}

	key.RevokedAt = &revoked
	if !key.ToResponse().Revoked {
		t.Error("revoked key should list as revoked")
	}
}
