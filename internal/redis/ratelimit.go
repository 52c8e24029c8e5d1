package redisclient

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrRateLimited = errors.New("rate limit exceeded")

// Limiter gates requests per client IP and action before they reach the
// booking core.
type Limiter interface {
	Allow(ctx context.Context, ip, action string) error
}

type fixedWindowLimiter struct {
	client    *redis.Client
	perWindow int
	window    time.Duration
}

// NewFixedWindowLimiter allows perWindow requests per key per window, counted
// in Redis so the budget holds across instances.
func NewFixedWindowLimiter(client *redis.Client, perWindow int, window time.Duration) Limiter {
	if perWindow <= 0 {
		perWindow = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &fixedWindowLimiter{
		client:    client,
		perWindow: perWindow,
		window:    window,
	}
}

var incrWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

func (l *fixedWindowLimiter) Allow(ctx context.Context, ip, action string) error {
	key := fmt.Sprintf("ratelimit:%s:%s", action, ip)

	res, err := incrWindowScript.Run(ctx, l.client, []string{key}, l.window.Milliseconds()).Int64()
	if err != nil {
		// Throttling is a guard, not a dependency; if Redis is down the
		// request goes through.
		log.Printf("rate limiter unavailable, allowing request: %v", err)
		return nil
	}

	if res > int64(l.perWindow) {
		return ErrRateLimited
	}
	return nil
}
