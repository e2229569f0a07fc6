package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// LoginThrottle decides whether another login attempt for a subject may proceed.
type LoginThrottle interface {
	Allow(ctx context.Context, subject string) (ThrottleDecision, error)
}

// ThrottleDecision is the result of one throttle check.
type ThrottleDecision struct {
	Allowed    bool
	Attempts   int
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds the wait up to whole seconds, never below one.
func (d ThrottleDecision) RetryAfterSeconds() int {
	secs := int((d.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// Rejected attempts do not count, so a blocked client cannot push its own
// window further out.
var loginWindowScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
if current >= tonumber(ARGV[1]) then
  return {0, current, redis.call("PTTL", KEYS[1])}
end
current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return {1, current, redis.call("PTTL", KEYS[1])}
`)

// RedisLoginThrottle allows limit attempts per subject in each fixed window.
// Subjects are hashed before they become keys so no email is stored in Redis.
type RedisLoginThrottle struct {
	client redis.Scripter
	prefix string
	limit  int
	window time.Duration
}

func NewRedisLoginThrottle(client redis.Scripter, prefix string, limit int, window time.Duration) *RedisLoginThrottle {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "bank_api:rate_limit"
	}
	if window < time.Second {
		window = time.Second
	}
	return &RedisLoginThrottle{client: client, prefix: prefix, limit: limit, window: window}
}

func (t *RedisLoginThrottle) key(subject string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(subject))))
	return t.prefix + ":login:" + hex.EncodeToString(sum[:])
}

// Allow records an attempt for subject unless its window is already full.
func (t *RedisLoginThrottle) Allow(ctx context.Context, subject string) (ThrottleDecision, error) {
	if t.client == nil || t.limit <= 0 || strings.TrimSpace(subject) == "" {
		return ThrottleDecision{Allowed: true}, nil
	}

	reply, err := loginWindowScript.Run(ctx, t.client, []string{t.key(subject)}, t.limit, t.window.Milliseconds()).Int64Slice()
	if err != nil {
		return ThrottleDecision{}, fmt.Errorf("login throttle script failed: %w", err)
	}
	if len(reply) != 3 {
		return ThrottleDecision{}, fmt.Errorf("login throttle returned %d values, want 3", len(reply))
	}

	ttl := time.Duration(reply[2]) * time.Millisecond
	if ttl <= 0 {
		ttl = t.window
	}
	return ThrottleDecision{
		Allowed:    reply[0] == 1,
		Attempts:   int(reply[1]),
		RetryAfter: ttl,
	}, nil
}
