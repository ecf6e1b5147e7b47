package tenant

import (
	"context"

	"github.com/google/uuid"
)

// Source records which input a tenant id was resolved from, in priority order.
type Source string

const (
	SourceParam   Source = "param"
	SourceHeader  Source = "header"
	SourceCookie  Source = "cookie"
	SourceClaim   Source = "claim"
	SourceDefault Source = "default"
)

// Context captures the resolved tenant for one inbound request. It is created
// per request by the middleware and never persisted.
type Context struct {
	TenantID     uuid.UUID
	ResolvedFrom Source
}

type ctxKey string

const contextKey ctxKey = "QUILL_TENANT_CONTEXT"

// IntoContext returns a derived context carrying the tenant Context.
func IntoContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, contextKey, tc)
}

// FromContext extracts the tenant Context and a boolean indicating presence.
func FromContext(ctx context.Context) (Context, bool) {
	v := ctx.Value(contextKey)
	if v == nil {
		return Context{}, false
	}
	tc, ok := v.(Context)
	return tc, ok
}
