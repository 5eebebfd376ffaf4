package ratelimit

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local nowData = redis.call("TIME")
local now = (nowData[1] * 1000) + math.floor(nowData[2] / 1000)

local data = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(data[1])
local ts = tonumber(data[2])

if tokens == nil then
  tokens = burst
  ts = now
else
  local delta = math.max(0, now - ts)
  tokens = math.min(burst, tokens + (delta / 1000) * rate)
  ts = now
end

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", ts)
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, tostring(tokens)}
`

// TokenBucket is a redis-backed token bucket shared by every API replica.
type TokenBucket struct {
	client *redis.Client
	script *redis.Script
}

type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{
		client: client,
		script: redis.NewScript(tokenBucketScript),
	}
}

func (t *TokenBucket) Allow(ctx context.Context, key string, rate float64, burst int) (Result, error) {
	if t == nil || t.client == nil {
		return Result{}, errors.New("token bucket not configured")
	}
	if key == "" {
		return Result{}, errors.New("token bucket key is empty")
	}
	if rate <= 0 || burst <= 0 {
		return Result{}, errors.New("token bucket rate and burst must be positive")
	}

	res, err := t.script.Run(ctx, t.client, []string{key},
		rate, burst, bucketTTL(rate, burst).Milliseconds(),
	).Slice()
	if err != nil {
		return Result{}, err
	}
	if len(res) < 2 {
		return Result{}, errors.New("unexpected token bucket response")
	}

	allowed, _ := res[0].(int64)
	tokens := parseTokens(res[1])

	out := Result{
		Allowed:   allowed == 1,
		Limit:     burst,
		Remaining: int(math.Floor(tokens)),
	}
	if !out.Allowed {
		out.RetryAfter = retryAfter(tokens, rate)
	}
	return out, nil
}

// retryAfter is the time needed to refill a single token.
func retryAfter(tokens, rate float64) time.Duration {
	needed := 1 - tokens
	if needed <= 0 || rate <= 0 {
		return 0
	}
	return time.Duration(math.Ceil(needed / rate * float64(time.Second)))
}

func bucketTTL(rate float64, burst int) time.Duration {
	seconds := math.Ceil(float64(burst) / rate * 2)
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}

func parseTokens(v interface{}) float64 {
	switch val := v.(type) {
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0
		}
		return f
	case int64:
		return float64(val)
	default:
		return 0
	}
}
