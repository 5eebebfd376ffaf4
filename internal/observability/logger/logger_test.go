package logger

import (
	"context"
	"testing"

	obscontext "github.com/smallbiznis/studioledger/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsRequestFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-42")
	ctx = obscontext.WithMemberID(ctx, "1001")
	WithContext(ctx, base).Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-42", fields["request_id"])
	assert.Equal(t, "1001", fields["member_id"])
	_, hasTrace := fields["trace_id"]
	assert.False(t, hasTrace)
}

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "UPDATE", operationFromSQL("  update subscriptions set status = ?"))
	assert.Equal(t, "SELECT", operationFromSQL("(SELECT 1)"))
	assert.Equal(t, "UNKNOWN", operationFromSQL(""))
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(nil, Config{Level: "loud"})
	require.Error(t, err)
}
