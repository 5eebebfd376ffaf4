package cache

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	plandomain "github.com/smallbiznis/studioledger/internal/plan/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingReader struct {
	calls int
	plan  *plandomain.Plan
}

func (r *countingReader) GetPlanByID(context.Context, snowflake.ID) (*plandomain.Plan, error) {
	r.calls++
	return r.plan, nil
}

func TestNewPlanReaderWithoutClientIsPassthrough(t *testing.T) {
	inner := &countingReader{}
	reader := NewPlanReader(inner, nil, time.Minute, zap.NewNop())

	assert.Same(t, inner, reader)
}

func TestPlanReaderFallsBackWhenRedisUnavailable(t *testing.T) {
	inner := &countingReader{plan: &plandomain.Plan{ID: 42, Name: "Unlimited", Price: decimal.NewFromInt(80)}}
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	reader := NewPlanReader(inner, client, time.Minute, zap.NewNop())

	plan, err := reader.GetPlanByID(context.Background(), 42)
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, "Unlimited", plan.Name)
	assert.Equal(t, 1, inner.calls)
}
