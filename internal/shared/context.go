package shared

import "context"

type sessionContextKey struct{}

type principalContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// ContextWithPrincipalID records the principal that passed authorization.
func ContextWithPrincipalID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, principalContextKey{}, id)
}

// PrincipalIDFromContext returns the authorized principal, if any.
func PrincipalIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(principalContextKey{}).(int64)
	return id, ok
}
