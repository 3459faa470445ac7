package gateway

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript performs the read-modify-write as a single atomic Lua
// script, avoiding the race a plain GET-then-SET would have under
// concurrent admission from many HTTP goroutines.
//
// Adapted from the sibling rate-limiter/gateway/ratelimiter package's
// TokenBucket, kept almost verbatim — the algorithm doesn't change between
// rate-limiting HTTP requests in general and rate-limiting order
// submissions specifically.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local bucket_size = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local tokens = tonumber(redis.call('HGET', key, 'tokens'))
local last_refill = tonumber(redis.call('HGET', key, 'last_refill'))

if tokens == nil then
    tokens = bucket_size
    last_refill = now
end

local elapsed = now - last_refill
local tokens_to_add = elapsed * refill_rate
tokens = math.min(bucket_size, tokens + tokens_to_add)

local allowed = 0
if tokens >= 1 then
    tokens = tokens - 1
    allowed = 1
end

local retry_after = 0
if allowed == 0 then
    retry_after = math.ceil((1 - tokens) / refill_rate)
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill', now)
redis.call('EXPIRE', key, 3600)

return {allowed, math.floor(tokens), retry_after}
`)

// RateLimitResult is the outcome of a TokenBucket.Allow call.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int64
	Limit      int64
	RetryAfter time.Duration
}

// TokenBucket rate-limits order admission per account using Redis as the
// shared counter store, so the limit holds across every Gateway instance
// behind a load balancer rather than per-process.
type TokenBucket struct {
	client     redis.Cmdable
	bucketSize int64
	refillRate float64 // tokens per second
}

// NewTokenBucket creates a rate limiter backed by client.
func NewTokenBucket(client redis.Cmdable, bucketSize int64, refillRatePerSec float64) *TokenBucket {
	return &TokenBucket{client: client, bucketSize: bucketSize, refillRate: refillRatePerSec}
}

// Allow checks whether a request identified by key (typically the
// account ID) may proceed.
func (tb *TokenBucket) Allow(ctx context.Context, key string) (*RateLimitResult, error) {
	now := float64(time.Now().UnixNano()) / float64(time.Second)

	result, err := tokenBucketScript.Run(ctx, tb.client, []string{key}, tb.bucketSize, tb.refillRate, now).Int64Slice()
	if err != nil {
		return nil, err
	}

	return &RateLimitResult{
		Allowed:    result[0] == 1,
		Remaining:  result[1],
		Limit:      tb.bucketSize,
		RetryAfter: time.Duration(result[2]) * time.Second,
	}, nil
}
