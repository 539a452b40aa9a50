package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "photoflow:ratelimit"

type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// Limiter decides whether subject may make another request.
type Limiter interface {
	Allow(ctx context.Context, subject string) (Decision, error)
}

// takeScript refills the bucket for the elapsed time, then tries to take
// ARGV[4] tokens. Token counts are kept as floats in the hash so partial
// refills are not lost between calls.
var takeScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local rate     = tonumber(ARGV[2])
local now      = tonumber(ARGV[3])
local cost     = tonumber(ARGV[4])

local tokens = tonumber(redis.call("HGET", KEYS[1], "tokens") or capacity)
local last   = tonumber(redis.call("HGET", KEYS[1], "updated_ms") or now)

if now > last then
  tokens = math.min(capacity, tokens + (now - last) * rate)
end

local ok, wait = 0, 0
if tokens >= cost then
  tokens = tokens - cost
  ok = 1
else
  wait = math.ceil((cost - tokens) / rate)
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "updated_ms", now)
redis.call("PEXPIRE", KEYS[1], ARGV[5])
return {ok, math.floor(tokens), wait}
`)

// RedisTokenBucket is a token bucket shared by every API replica. Each
// subject's bucket holds up to capacity tokens and refills continuously at
// capacity per window.
type RedisTokenBucket struct {
	client    redis.Scripter
	capacity  int64
	perMS     float64
	idleTTL   time.Duration
	keyPrefix string
	now       func() time.Time
}

func NewRedisTokenBucket(client redis.Scripter, capacity int, window time.Duration, keyPrefix string) (*RedisTokenBucket, error) {
	switch {
	case client == nil:
		return nil, errors.New("redis client is required")
	case capacity <= 0:
		return nil, errors.New("capacity must be positive")
	case window <= 0:
		return nil, errors.New("window must be positive")
	}

	keyPrefix = strings.TrimSpace(keyPrefix)
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}

	return &RedisTokenBucket{
		client:    client,
		capacity:  int64(capacity),
		perMS:     float64(capacity) / float64(max(window.Milliseconds(), 1)),
		idleTTL:   2 * window,
		keyPrefix: keyPrefix,
		now:       time.Now,
	}, nil
}

// Key returns the redis key that holds subject's bucket.
func (b *RedisTokenBucket) Key(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "anonymous"
	}
	return b.keyPrefix + ":" + subject
}

// Allow takes one token from subject's bucket.
func (b *RedisTokenBucket) Allow(ctx context.Context, subject string) (Decision, error) {
	vals, err := takeScript.Run(ctx, b.client, []string{b.Key(subject)},
		b.capacity,
		b.perMS,
		b.now().UTC().UnixMilli(),
		1,
		b.idleTTL.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("run token bucket script: %w", err)
	}
	return decisionFrom(vals)
}

func decisionFrom(vals []int64) (Decision, error) {
	if len(vals) != 3 {
		return Decision{}, fmt.Errorf("token bucket returned %d values, want 3", len(vals))
	}
	return Decision{
		Allowed:    vals[0] == 1,
		Remaining:  vals[1],
		RetryAfter: time.Duration(vals[2]) * time.Millisecond,
	}, nil
}
