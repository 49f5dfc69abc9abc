package auth

import "context"

type principalKey struct{}

// ContextWithPrincipal attaches the resolved caller to ctx.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the caller set by ContextWithPrincipal.
// Anonymous requests report false.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && p.IdentityID() != ""
}
