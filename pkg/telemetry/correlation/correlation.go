package correlation

import (
	"context"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"
)

type correlationKey struct{}

// ExtractCorrelationID fetches a correlation ID from the context if present.
func ExtractCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if val, ok := ctx.Value(correlationKey{}).(string); ok {
		return val
	}
	return ""
}

// ContextWithCorrelationID sets the correlation ID onto the context.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// EnsureCorrelationID guarantees a correlation ID on the context, generating one when missing.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	cid := ExtractCorrelationID(ctx)
	if cid == "" {
		cid = ulid.Make().String()
	}
	return ContextWithCorrelationID(ctx, cid), cid
}

// Metadata returns the correlation and trace identifiers carried by ctx,
// suitable for message headers.
func Metadata(ctx context.Context) map[string]string {
	_, cid := EnsureCorrelationID(ctx)
	md := map[string]string{"correlation_id": cid}

	sc := trace.SpanContextFromContext(ctx)
	if sc.IsValid() {
		md["trace_id"] = sc.TraceID().String()
		md["span_id"] = sc.SpanID().String()
	}
	return md
}
