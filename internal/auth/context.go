package auth

import (
	"context"

	"github.com/hireloop/hireloop/internal/model"
)

type callerKey struct{}

// ContextWithAuth attaches the authenticated caller to ctx.
func ContextWithAuth(ctx context.Context, caller *model.AuthContext) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// AuthFromContext returns the caller Auth attached, or nil on public routes.
func AuthFromContext(ctx context.Context) *model.AuthContext {
	caller, _ := ctx.Value(callerKey{}).(*model.AuthContext)
	return caller
}
