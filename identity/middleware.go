package identity

import (
	"context"
	"net/http"
	"strings"

	"github.com/BaSui01/snowgate/auth"
	"github.com/BaSui01/snowgate/types"
)

// ctxKey keys the request-scoped identity context. Request-scoped context
// values are the one sanctioned alternative to explicit parameters; the
// value itself is still per-request and never global.
type ctxKey struct{}

// WithContext stores the identity context in ctx for the current request.
func WithContext(ctx context.Context, ic *types.IdentityContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, ic)
}

// FromContext extracts the request's identity context, if present.
func FromContext(ctx context.Context) (*types.IdentityContext, bool) {
	ic, ok := ctx.Value(ctxKey{}).(*types.IdentityContext)
	return ic, ok && ic != nil
}

// FromRequest extracts and verifies the caller's bearer credential,
// returning an identity context bound to this request. With the "none"
// strategy, a missing Authorization header yields an anonymous context;
// every other strategy requires a well-formed bearer token.
func FromRequest(ctx context.Context, r *http.Request, strategy auth.Strategy) (*types.IdentityContext, error) {
	authHeader := r.Header.Get("Authorization")

	if authHeader == "" {
		if strategy == nil || strategy.Type() == auth.StrategyNone {
			return types.NewIdentityContext(""), nil
		}
		return nil, types.NewError(types.ErrUnauthorized, "missing Authorization header").WithHTTPStatus(401)
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, types.NewError(types.ErrUnauthorized, "malformed Authorization header").WithHTTPStatus(401)
	}
	raw := strings.TrimPrefix(authHeader, "Bearer ")

	ic := types.NewIdentityContext(raw)
	if strategy != nil && strategy.Type() != auth.StrategyNone {
		claims, err := strategy.Verify(ctx, raw)
		if err != nil {
			return nil, err
		}
		ic.WithClaims(claims.Subject, claims.ClientID, claims.Scopes)
	}
	return ic, nil
}
