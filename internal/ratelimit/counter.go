// Package ratelimit provides fixed-window request counters whose state lives
// in Redis and expires with the window.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Window is the state of one key's counter after a hit.
type Window struct {
	Count   int64
	ResetAt time.Time
}

// Counter counts hits per key within a fixed window.
type Counter interface {
	Hit(ctx context.Context, key string, window time.Duration) (Window, error)
}

// incrScript increments the counter and starts the window on the first hit,
// returning the count and remaining window in milliseconds.
var incrScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisCounter is a Counter backed by Redis keys that expire with their window,
// so the number of tracked keys never outgrows the active population.
type RedisCounter struct {
	client    redis.UniversalClient
	prefix    string
	opTimeout time.Duration
	now       func() time.Time
}

// NewRedisCounter creates a RedisCounter.
func NewRedisCounter(client redis.UniversalClient, prefix string, opTimeout time.Duration) *RedisCounter {
	return &RedisCounter{client: client, prefix: prefix, opTimeout: opTimeout, now: time.Now}
}

// Hit records one hit for key and returns the window state.
func (c *RedisCounter) Hit(ctx context.Context, key string, window time.Duration) (Window, error) {
	if c.opTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opTimeout)
		defer cancel()
	}

	res, err := incrScript.Run(ctx, c.client, []string{c.prefix + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Window{}, fmt.Errorf("incrementing rate counter: %w", err)
	}
	if len(res) != 2 {
		return Window{}, fmt.Errorf("unexpected rate counter reply: %v", res)
	}

	return Window{
		Count:   res[0],
		ResetAt: c.now().Add(time.Duration(res[1]) * time.Millisecond),
	}, nil
}
