package context

import (
	stdcontext "context"
	"strings"
)

type requestIDKey struct{}
type memberIDKey struct{}

// WithRequestID stores the inbound request id.
func WithRequestID(ctx stdcontext.Context, requestID string) stdcontext.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return stdcontext.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx stdcontext.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey{}).(string)
	return value
}

// WithMemberID tags the context with the member a request acts on, for log
// correlation only.
func WithMemberID(ctx stdcontext.Context, memberID string) stdcontext.Context {
	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return ctx
	}
	return stdcontext.WithValue(ctx, memberIDKey{}, memberID)
}

func MemberIDFromContext(ctx stdcontext.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(memberIDKey{}).(string)
	return value
}
