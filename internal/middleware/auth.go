package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hireloop/hireloop/internal/auth"
	"github.com/hireloop/hireloop/internal/model"
)

const (
	// Every authenticated request, good or bad, takes at least this long.
	minAuthDuration = 200 * time.Millisecond
	lastUsedTimeout = 5 * time.Second
)

type KeyStore interface {
	GetAPIKeysByPrefix(ctx context.Context, prefix string) ([]*model.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id string) error
}

// AuthCache holds verified callers under auth.CacheKey of the plaintext.
type AuthCache interface {
	GetAuthContext(ctx context.Context, cacheKey string) (*model.AuthContext, error)
	SetAuthContext(ctx context.Context, cacheKey string, auth *model.AuthContext) error
}

type AuthConfig struct {
	Logger *slog.Logger
	Keys   KeyStore
	Cache  AuthCache
	// MinDuration replaces minAuthDuration when non-zero.
	MinDuration time.Duration
}

// authFailure carries the reason logged for a rejected key. Clients only
// ever see a generic 401.
type authFailure string

func (f authFailure) Error() string { return string(f) }

const (
	failMissing authFailure = "missing_key"
	failFormat  authFailure = "invalid_format"
	failLookup  authFailure = "lookup_error"
	failNoMatch authFailure = "invalid_key"
	failBinding authFailure = "key_binding"
)

type authenticator struct {
	AuthConfig
}

// resolve maps a plaintext key to its caller, consulting the cache first.
func (a *authenticator) resolve(ctx context.Context, key string) (*model.AuthContext, bool, error) {
	if key == "" {
		return nil, false, failMissing
	}
	parts, err := auth.SplitAPIKey(key)
	if err != nil {
		return nil, false, failFormat
	}

	cacheKey := auth.CacheKey(key)
	if cached, _ := a.Cache.GetAuthContext(ctx, cacheKey); cached != nil {
		return cached, true, nil
	}

	candidates, err := a.Keys.GetAPIKeysByPrefix(ctx, parts.Lookup)
	if err != nil {
		a.Logger.Error("api key lookup failed", "error", err, "request_id", GetRequestID(ctx))
		return nil, false, failLookup
	}
	// Lookup segments can collide. The hash decides.
	for _, k := range candidates {
		if ok, err := auth.VerifySecret(key, k.KeyHash); err != nil || !ok {
			continue
		}
		caller := &model.AuthContext{
			KeyID:         k.ID,
			KeyPrefix:     k.KeyPrefix,
			CompanyID:     k.CompanyID,
			UserID:        k.UserID,
			Scopes:        k.Scopes,
			RateLimitTier: k.RateLimitTier,
		}
		_ = a.Cache.SetAuthContext(ctx, cacheKey, caller)
		a.touch(ctx, k.ID)
		return caller, false, nil
	}
	return nil, false, failNoMatch
}

// touch records key usage without holding up the request.
func (a *authenticator) touch(ctx context.Context, keyID string) {
	bg := context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(bg, lastUsedTimeout)
		defer cancel()
		if err := a.Keys.UpdateAPIKeyLastUsed(ctx, keyID); err != nil {
			a.Logger.Debug("last used not recorded", "key_id", keyID, "error", err)
		}
	}()
}

// Auth authenticates the API key from Authorization: Bearer or X-API-Key
// and stores the caller in the request context. Tenant keys must carry a
// company and platform keys must not.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	if cfg.MinDuration == 0 {
		cfg.MinDuration = minAuthDuration
	}
	a := &authenticator{cfg}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deadline := time.Now().Add(cfg.MinDuration)
			ctx := r.Context()

			caller, cached, err := a.resolve(ctx, credential(r))
			if err == nil && caller.IsPlatform() == (caller.CompanyID != "") {
				err = failBinding
			}
			if err != nil {
				var reason authFailure
				errors.As(err, &reason)
				cfg.Logger.Warn("authentication failed",
					"reason", string(reason),
					"ip", r.RemoteAddr,
					"endpoint", r.Method+" "+r.URL.Path,
					"request_id", GetRequestID(ctx),
				)
				time.Sleep(time.Until(deadline))
				unauthorized(w)
				return
			}

			cfg.Logger.Debug("authenticated",
				"key_id", caller.KeyID,
				"company_id", caller.CompanyID,
				"user_id", caller.UserID,
				"cache_hit", cached,
				"request_id", GetRequestID(ctx),
			)
			noteCaller(ctx, caller.CompanyID, caller.KeyID)
			time.Sleep(time.Until(deadline))
			next.ServeHTTP(w, r.WithContext(auth.ContextWithAuth(ctx, caller)))
		})
	}
}

// credential prefers a Bearer token over X-API-Key.
func credential(r *http.Request) string {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return token
	}
	return r.Header.Get("X-API-Key")
}

// unauthorized is the single response for every auth failure, so callers
// cannot tell a malformed key from a revoked one.
func unauthorized(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing API key")
}
