package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sandeepkv93/observation-service/internal/observability"
)

// Fields: count, window_start_ms, locked_until_ms (0 when unlocked).
// Returns {locked, newly_locked}.
var redisLoginFailureScript = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local lock_ms = tonumber(ARGV[3])
local max_attempts = tonumber(ARGV[4])

local exists = redis.call("EXISTS", key) == 1
local count = tonumber(redis.call("HGET", key, "count") or "0")
local window_start = tonumber(redis.call("HGET", key, "window_start_ms") or "0")
local locked_until = tonumber(redis.call("HGET", key, "locked_until_ms") or "0")

local newly_locked = 0
if (not exists) or (locked_until > 0 and now_ms >= locked_until) then
  count = 1
  window_start = now_ms
  locked_until = 0
elseif locked_until > 0 then
  count = count + 1
elseif (now_ms - window_start) > window_ms then
  count = 1
  window_start = now_ms
else
  count = count + 1
end

if locked_until == 0 and count >= max_attempts and (now_ms - window_start) <= window_ms then
  locked_until = now_ms + lock_ms
  newly_locked = 1
end

redis.call("HSET", key, "count", tostring(count), "window_start_ms", tostring(window_start), "locked_until_ms", tostring(locked_until))
local ttl_ms = window_ms
if locked_until > now_ms then
  ttl_ms = math.max(ttl_ms, locked_until - now_ms)
end
redis.call("PEXPIRE", key, ttl_ms + 1000)

local locked = 0
if locked_until > now_ms then
  locked = 1
end
return {locked, newly_locked}
`)

// Returns 1 for an active lock; deletes the record when the lock has expired.
var redisLoginLockCheckScript = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local locked_until = tonumber(redis.call("HGET", key, "locked_until_ms") or "0")
if locked_until == 0 then
  return 0
end
if now_ms < locked_until then
  return 1
end
redis.call("DEL", key)
return 0
`)

type RedisLoginAttemptGuard struct {
	client redis.UniversalClient
	prefix string
	policy LoginPolicy
	now    func() time.Time
}

func NewRedisLoginAttemptGuard(client redis.UniversalClient, prefix string, policy LoginPolicy) *RedisLoginAttemptGuard {
	if prefix == "" {
		prefix = "obs"
	}
	return &RedisLoginAttemptGuard{
		client: client,
		prefix: prefix,
		policy: normalizeLoginPolicy(policy),
		now:    time.Now,
	}
}

func (g *RedisLoginAttemptGuard) IsLocked(ctx context.Context, identity string) (bool, error) {
	res, err := redisLoginLockCheckScript.Run(ctx, g.client, []string{g.stateKey(identity)}, g.now().UnixMilli()).Result()
	if err != nil {
		observability.RecordLoginGuardEvent(ctx, "redis", "check", "error")
		return false, fmt.Errorf("check login lock: %w", err)
	}
	locked, err := parseRedisInt64(res)
	if err != nil {
		return false, err
	}
	if locked == 1 {
		observability.RecordLoginGuardEvent(ctx, "redis", "check", "locked")
		return true, nil
	}
	return false, nil
}

func (g *RedisLoginAttemptGuard) RecordFailure(ctx context.Context, identity string) (bool, error) {
	res, err := redisLoginFailureScript.Run(
		ctx,
		g.client,
		[]string{g.stateKey(identity)},
		g.now().UnixMilli(),
		g.policy.Window.Milliseconds(),
		g.policy.LockDuration.Milliseconds(),
		g.policy.MaxAttempts,
	).Result()
	if err != nil {
		observability.RecordLoginGuardEvent(ctx, "redis", "failure", "error")
		return false, fmt.Errorf("record login failure: %w", err)
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return false, fmt.Errorf("unexpected redis response %T", res)
	}
	locked, err := parseRedisInt64(vals[0])
	if err != nil {
		return false, err
	}
	newlyLocked, err := parseRedisInt64(vals[1])
	if err != nil {
		return false, err
	}
	if newlyLocked == 1 {
		observability.RecordLockout(ctx, "redis")
		observability.RecordLockoutDuration(ctx, "redis", g.policy.LockDuration)
	}
	observability.RecordLoginGuardEvent(ctx, "redis", "failure", lockOutcome(locked == 1))
	return locked == 1, nil
}

func (g *RedisLoginAttemptGuard) Clear(ctx context.Context, identity string) error {
	if err := g.client.Del(ctx, g.stateKey(identity)).Err(); err != nil {
		observability.RecordLoginGuardEvent(ctx, "redis", "clear", "error")
		return fmt.Errorf("clear login attempts: %w", err)
	}
	observability.RecordLoginGuardEvent(ctx, "redis", "clear", "ok")
	return nil
}

func (g *RedisLoginAttemptGuard) stateKey(identity string) string {
	return fmt.Sprintf("%s:login:%s", g.prefix, hashToken(identity))
}

func parseRedisInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("redis response overflows int64")
		}
		return int64(n), nil
	case int:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("unexpected redis response type %T", v)
	}
}
