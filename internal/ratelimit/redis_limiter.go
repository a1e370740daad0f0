package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/credgate/go-core/internal/auth"
)

// fixedWindowScript atomically charges one event against a window counter.
// KEYS[1] = window key, ARGV[1] = quota, ARGV[2] = expiry seconds.
// The increment happens before the bound check: a denied attempt still
// counts (charge-then-check, no rollback).
var fixedWindowScript = redis.NewScript(`
	local count = redis.call('INCR', KEYS[1])
	if count == 1 then
		redis.call('EXPIRE', KEYS[1], ARGV[2])
	end
	if count > tonumber(ARGV[1]) then
		return 0
	end
	return 1
`)

// RedisLimiter implements Limiter with per-rule fixed windows in Redis.
// Counters are linearizable only at the granularity of one script run;
// there is no coordination across rules or requests.
type RedisLimiter struct {
	client    redis.UniversalClient
	keyPrefix string

	// now is injectable for deterministic window tests
	now func() time.Time
}

// NewRedisLimiter creates a Redis-backed limiter
func NewRedisLimiter(client redis.UniversalClient, keyPrefix string) *RedisLimiter {
	if keyPrefix == "" {
		keyPrefix = "ratelimit"
	}
	return &RedisLimiter{
		client:    client,
		keyPrefix: keyPrefix,
		now:       time.Now,
	}
}

// Hit charges one event against the rule's current window. A store error
// fails closed: the caller must deny the request, never default to allow.
func (l *RedisLimiter) Hit(ctx context.Context, rule Rule, identity string) (bool, error) {
	windowKey, _ := l.windowKey(rule, identity)
	expiry := int64(rule.Window/time.Second) + 1

	result, err := fixedWindowScript.Run(ctx, l.client, []string{windowKey}, rule.Quota, expiry).Result()
	if err != nil {
		return false, fmt.Errorf("%w: charge %s: %v", auth.ErrStoreUnavailable, rule.Name, err)
	}

	allowed, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("charge %s: unexpected script result %T", rule.Name, result)
	}
	return allowed == 1, nil
}

// WindowStats reports the rule's current window without charging it
func (l *RedisLimiter) WindowStats(ctx context.Context, rule Rule, identity string) (Stats, error) {
	windowKey, windowStart := l.windowKey(rule, identity)

	count, err := l.client.Get(ctx, windowKey).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Stats{}, fmt.Errorf("%w: window stats for %s: %v", auth.ErrStoreUnavailable, rule.Name, err)
	}

	remaining := rule.Quota - count
	if remaining < 0 {
		remaining = 0
	}
	return Stats{
		Limit:     rule.Quota,
		Remaining: remaining,
		Reset:     windowStart.Add(rule.Window).Sub(l.now()),
	}, nil
}

// windowKey derives the counter key for the rule's current fixed window
func (l *RedisLimiter) windowKey(rule Rule, identity string) (string, time.Time) {
	windowStart := l.now().Truncate(rule.Window)
	key := fmt.Sprintf("%s:%s:%s:%d", l.keyPrefix, rule.Name, identity, windowStart.Unix())
	return key, windowStart
}
