package auth

import "context"

type credentialContextKey struct{}
type tokenContextKey struct{}
type originContextKey struct{}

// ContextWithCredential attaches the verified credential to the context.
func ContextWithCredential(ctx context.Context, info CredentialInfo) context.Context {
	return context.WithValue(ctx, credentialContextKey{}, &info)
}

// CredentialFromContext extracts the verified credential from the context.
func CredentialFromContext(ctx context.Context) (CredentialInfo, bool) {
	if ctx == nil {
		return CredentialInfo{}, false
	}
	v, ok := ctx.Value(credentialContextKey{}).(*CredentialInfo)
	if !ok || v == nil {
		return CredentialInfo{}, false
	}
	return *v, true
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

// ContextWithOrigin records the network origin of the request for audit entries.
func ContextWithOrigin(ctx context.Context, origin Origin) context.Context {
	return context.WithValue(ctx, originContextKey{}, origin)
}

// OriginFromContext returns the zero Origin when none was attached.
func OriginFromContext(ctx context.Context) Origin {
	if ctx == nil {
		return Origin{}
	}
	v, _ := ctx.Value(originContextKey{}).(Origin)
	return v
}
