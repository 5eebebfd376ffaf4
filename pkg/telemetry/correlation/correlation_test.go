package correlation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnsureCorrelationIDKeepsExisting(t *testing.T) {
	ctx := ContextWithCorrelationID(context.Background(), "cid-1")

	_, cid := EnsureCorrelationID(ctx)
	assert.Equal(t, "cid-1", cid)
}

func TestEnsureCorrelationIDGenerates(t *testing.T) {
	ctx, cid := EnsureCorrelationID(context.Background())

	assert.Len(t, cid, 26)
	assert.Equal(t, cid, ExtractCorrelationID(ctx))
}

func TestMetadataWithoutSpan(t *testing.T) {
	md := Metadata(ContextWithCorrelationID(context.Background(), "cid-2"))

	assert.Equal(t, "cid-2", md["correlation_id"])
	_, ok := md["trace_id"]
	assert.False(t, ok)
}
