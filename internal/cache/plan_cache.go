package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	plandomain "github.com/smallbiznis/studioledger/internal/plan/domain"
	"go.uber.org/zap"
)

const (
	keyPlan        = "studioledger:plan:%s"
	defaultPlanTTL = 30 * time.Second
)

// planReader is a read-through cache in front of the plan catalog. Cache
// failures degrade to direct catalog reads.
type planReader struct {
	next   plandomain.Reader
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

// NewPlanReader wraps next with redis caching. A nil client returns next
// unchanged.
func NewPlanReader(next plandomain.Reader, client *redis.Client, ttl time.Duration, log *zap.Logger) plandomain.Reader {
	if client == nil {
		return next
	}
	if ttl <= 0 {
		ttl = defaultPlanTTL
	}
	return &planReader{
		next:   next,
		client: client,
		ttl:    ttl,
		log:    log.Named("cache.plan"),
	}
}

func (r *planReader) GetPlanByID(ctx context.Context, id snowflake.ID) (*plandomain.Plan, error) {
	key := fmt.Sprintf(keyPlan, id.String())

	raw, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var plan plandomain.Plan
		if jsonErr := json.Unmarshal(raw, &plan); jsonErr == nil {
			return &plan, nil
		}
		r.log.Warn("discarding undecodable cached plan", zap.String("plan_id", id.String()))
	case !errors.Is(err, redis.Nil):
		r.log.Warn("plan cache read failed", zap.String("plan_id", id.String()), zap.Error(err))
	}

	plan, err := r.next.GetPlanByID(ctx, id)
	if err != nil || plan == nil {
		return plan, err
	}

	if payload, err := json.Marshal(plan); err == nil {
		if err := r.client.Set(ctx, key, payload, r.ttl).Err(); err != nil {
			r.log.Warn("plan cache write failed", zap.String("plan_id", id.String()), zap.Error(err))
		}
	}
	return plan, nil
}
