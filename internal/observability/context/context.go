package context

import (
	"context"
	"strings"

	"github.com/smallbiznis/rentflow/internal/orgcontext"
)

type requestIDKey struct{}

// WithRequestID stores the correlation id for the current request.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey{}).(string)
	return value
}

// OrgIDFromContext returns the tenant id as a log-friendly string.
func OrgIDFromContext(ctx context.Context) string {
	id, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return ""
	}
	return id.String()
}
