package gatekit

import "context"

type sessionContextKey struct{}
type requestContextKey struct{}

// WithSession attaches a validated session to ctx. The guard middleware
// sets it; handlers read it back with SessionFromContext.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// SessionFromContext returns the session attached by WithSession, or nil.
func SessionFromContext(ctx context.Context) *Session {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(sessionContextKey{}).(*Session)
	return s
}

// WithRequestContext attaches the admission gate's view of the request to
// ctx so downstream handlers can reuse the resolved identifiers.
func WithRequestContext(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// RequestContextFromContext returns the value attached by
// WithRequestContext. The bool reports whether one was present.
func RequestContextFromContext(ctx context.Context) (RequestContext, bool) {
	if ctx == nil {
		return RequestContext{}, false
	}
	rc, ok := ctx.Value(requestContextKey{}).(RequestContext)
	return rc, ok
}
