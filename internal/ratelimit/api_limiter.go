package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/studioledger/internal/config"
	"go.uber.org/zap"
)

const keyAPIClient = "studioledger:ratelimit:api:%s"

// APILimiter throttles API calls per client address. A nil *APILimiter
// allows everything.
type APILimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewAPILimiter(cfg config.Config, client *redis.Client, log *zap.Logger) *APILimiter {
	limitCfg := cfg.RateLimit
	if limitCfg.RequestsPerSecond <= 0 || limitCfg.Burst <= 0 {
		return nil
	}
	if client == nil {
		log.Warn("api rate limit configured without redis, limiter disabled")
		return nil
	}

	return &APILimiter{
		bucket: NewTokenBucket(client),
		rate:   limitCfg.RequestsPerSecond,
		burst:  limitCfg.Burst,
	}
}

func (l *APILimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *APILimiter) Allow(ctx context.Context, clientKey string) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}
	clientKey = strings.TrimSpace(clientKey)
	if clientKey == "" {
		clientKey = "unknown"
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyAPIClient, clientKey), l.rate, l.burst)
}
