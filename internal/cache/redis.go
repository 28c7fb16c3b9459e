// Package cache owns the shared Redis client used for caching, rate limits,
// token revocation, websocket tickets and realtime fan-out.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"carkey/internal/middleware"

	"github.com/redis/go-redis/v9"
)

const (
	pingAttempts = 3
	pingBackoff  = 250 * time.Millisecond
)

var client *redis.Client

// errorHook counts failed commands. redis.Nil is a miss, not a failure.
type errorHook struct{}

func (errorHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (errorHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		if err != nil && !errors.Is(err, redis.Nil) {
			middleware.RedisErrors.WithLabelValues(cmd.Name()).Inc()
		}
		return err
	}
}

func (errorHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		if err != nil && !errors.Is(err, redis.Nil) {
			middleware.RedisErrors.WithLabelValues("pipeline").Inc()
		}
		return err
	}
}

// Options accepts a redis:// or rediss:// URL, or a bare host:port.
func Options(addr string) (*redis.Options, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("empty Redis address")
	}
	if !strings.Contains(addr, "://") {
		return &redis.Options{Addr: addr}, nil
	}
	opts, err := redis.ParseURL(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	return opts, nil
}

// InitRedis connects the shared client. The first ping is retried while Redis
// starts up. On error the shared client is nil and callers run without Redis.
func InitRedis(ctx context.Context, addr string) error {
	client = nil
	opts, err := Options(addr)
	if err != nil {
		return err
	}

	c := redis.NewClient(opts)
	c.AddHook(errorHook{})

	for attempt := 1; ; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err = c.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			break
		}
		if attempt == pingAttempts {
			_ = c.Close()
			return fmt.Errorf("redis ping after %d attempts: %w", attempt, err)
		}
		select {
		case <-ctx.Done():
			_ = c.Close()
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * pingBackoff):
		}
	}

	client = c
	middleware.Logger.Info("Redis connected", "addr", opts.Addr, "db", opts.DB)
	return nil
}

// GetClient returns the shared client, or nil when Redis is unavailable.
func GetClient() *redis.Client {
	return client
}

// SetClient replaces the shared client; tests point it at miniredis.
func SetClient(c *redis.Client) {
	client = c
}
