package context

import (
	stdcontext "context"
	"testing"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(stdcontext.Background(), " req-1 ")
	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Fatalf("expected req-1, got %q", got)
	}
}

func TestBlankValuesAreIgnored(t *testing.T) {
	ctx := WithMemberID(WithRequestID(stdcontext.Background(), ""), "  ")
	if RequestIDFromContext(ctx) != "" || MemberIDFromContext(ctx) != "" {
		t.Fatalf("expected empty values")
	}
}
