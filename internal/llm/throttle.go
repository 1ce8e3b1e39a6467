package llm

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisThrottle gates outbound cloud-provider calls with a Redis-backed
// token bucket, adapted from the reference service's RedisLuaLimiter: one
// Lua script reads, refills, and debits the bucket atomically so every
// worker process sharing the same OpenAI account draws from one budget
// instead of each process keeping its own local counter.
type redisThrottle struct {
	client     *redis.Client
	script     *redis.Script
	key        string
	capacity   int64
	refillRate float64
	logger     *slog.Logger
}

const luaCloudTokenBucketScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])

local tokens = capacity
local last_refill = now

local data = redis.call("HMGET", key, "tokens", "last_refill")
if data[1] ~= false and data[1] ~= nil then
  tokens = tonumber(data[1])
end
if data[2] ~= false and data[2] ~= nil then
  last_refill = tonumber(data[2])
end

local delta = now - last_refill
if delta < 0 then
  delta = 0
end

tokens = math.min(capacity, tokens + delta * refill_rate)
last_refill = now

local allowed = 0
local retry_after = 0

if tokens >= cost then
  tokens = tokens - cost
  allowed = 1
else
  local shortage = cost - tokens
  if refill_rate > 0 then
    retry_after = math.ceil(shortage / refill_rate * 1000)
  end
end

redis.call("HMSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, 3600)

return { allowed, tokens, last_refill, retry_after }
`

// newRedisThrottle builds a throttle backed by client, bucketed under key,
// refilling at perMinute tokens/minute. A nil client or non-positive
// perMinute disables the throttle (wait becomes a no-op).
func newRedisThrottle(client *redis.Client, key string, perMinute int, logger *slog.Logger) *redisThrottle {
	if client == nil || perMinute <= 0 {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &redisThrottle{
		client:     client,
		script:     redis.NewScript(luaCloudTokenBucketScript),
		key:        "cloud-throttle:" + key,
		capacity:   int64(perMinute),
		refillRate: float64(perMinute) / 60.0,
		logger:     logger,
	}
}

// wait blocks until cost tokens are available, sleeping for the script's
// reported retry_after between attempts. A nil receiver or a script error
// fails open rather than blocking calls on a Redis outage.
func (t *redisThrottle) wait(ctx context.Context, cost int64) error {
	if t == nil {
		return nil
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		allowed, retryAfter, err := t.allow(ctx, cost)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			t.logger.WarnContext(ctx, "cloud throttle script error, failing open", "error", err)
			return nil
		}
		if allowed {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryAfter):
		}
	}
}

func (t *redisThrottle) allow(ctx context.Context, cost int64) (bool, time.Duration, error) {
	now := float64(time.Now().UnixNano()) / 1e9
	res, err := t.script.Run(ctx, t.client, []string{t.key}, t.capacity, t.refillRate, now, cost).Result()
	if err != nil {
		return true, 0, err
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) < 4 {
		return true, 0, nil
	}
	allowed := toInt64(vals[0]) == 1
	// retry_after is whole milliseconds: Redis truncates Lua numbers to
	// integer replies, so a fractional-seconds value would read back as 0.
	retryAfterMs := toFloat64(vals[3])
	return allowed, time.Duration(retryAfterMs * float64(time.Millisecond)), nil
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func toFloat64(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	default:
		return math.NaN()
	}
}
