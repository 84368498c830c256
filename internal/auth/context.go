package auth

import (
	"context"
	"strings"
)

// Identity is an opaque, already verified caller token. It is only ever
// compared for equality against stored owners.
type Identity string

// Anonymous is the identity of callers that presented no credentials.
const Anonymous Identity = "2vxsx-fae"

func (id Identity) String() string { return string(id) }

type callerContextKey struct{}
type tokenContextKey struct{}

// ContextWithCaller attaches the verified caller identity to the context.
func ContextWithCaller(ctx context.Context, id Identity) context.Context {
	id = Identity(strings.TrimSpace(string(id)))
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, callerContextKey{}, id)
}

// CallerFromContext returns the caller identity, or Anonymous when none was attached.
func CallerFromContext(ctx context.Context) Identity {
	if ctx == nil {
		return Anonymous
	}
	if v, ok := ctx.Value(callerContextKey{}).(Identity); ok && v != "" {
		return v
	}
	return Anonymous
}

// ContextWithToken stores the raw bearer token inside the context.
func ContextWithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext returns the bearer token if it was previously attached.
func TokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(tokenContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
