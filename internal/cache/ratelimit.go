package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limit is a token bucket: Rate tokens per second, at most Burst stored.
type Limit struct {
	Rate  float64
	Burst int
}

// Decision is the outcome of taking one token.
type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
	// ResetAt is when the bucket is full again.
	ResetAt time.Time
}

// takeScript refills and takes one token atomically. Time is in
// milliseconds so low rates refill smoothly.
var takeScript = redis.NewScript(`
local rate = tonumber(ARGV[1]) / 1000
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens = tonumber(state[1]) or burst
local ts = tonumber(state[2]) or now

tokens = math.min(burst, tokens + math.max(0, now - ts) * rate)

local allowed = 0
local wait = 0
if tokens >= 1 then
	tokens = tokens - 1
	allowed = 1
else
	wait = math.ceil((1 - tokens) / rate)
end

redis.call('HSET', KEYS[1], 'tokens', tokens, 'ts', now)
redis.call('PEXPIRE', KEYS[1], ttl)

local refill = math.ceil((burst - tokens) / rate)
return {allowed, wait, math.floor(tokens), refill}
`)

// Take spends one token from the bucket of subject within a named bucket
// family ("key", "signup", "careers", ...). Subjects are hashed so client
// IPs are not stored.
func (c *Cache) Take(ctx context.Context, bucket, subject string, l Limit) (*Decision, error) {
	if l.Rate <= 0 || l.Burst <= 0 {
		return nil, fmt.Errorf("invalid limit %+v", l)
	}
	now := time.Now()
	// A bucket idle for a full refill is indistinguishable from a new one.
	ttl := int64(math.Ceil(float64(l.Burst)/l.Rate*1000)) + 1000

	res, err := takeScript.Run(ctx, c.client, []string{bucketKey(bucket, subject)},
		l.Rate, l.Burst, now.UnixMilli(), ttl).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("take token: %w", err)
	}
	if len(res) != 4 {
		return nil, fmt.Errorf("take token: unexpected reply %v", res)
	}
	return &Decision{
		Allowed:    res[0] == 1,
		RetryAfter: time.Duration(res[1]) * time.Millisecond,
		Remaining:  res[2],
		ResetAt:    now.Add(time.Duration(res[3]) * time.Millisecond),
	}, nil
}

func bucketKey(bucket, subject string) string {
	if bucket == "" {
		bucket = "default"
	}
	sum := sha256.Sum256([]byte(subject))
	return key("rl", bucket, hex.EncodeToString(sum[:8]))
}
