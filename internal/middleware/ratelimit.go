package middleware

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// Environments where limits are not enforced, so local runs and the test
// suite never need Redis.
var unlimitedEnvs = map[string]bool{"": true, "test": true, "development": true, "stress": true}

var errNoLimiterStore = errors.New("rate limit store not configured")

// Rule is a fixed-window limit: at most Limit hits per Window for one subject.
type Rule struct {
	Name   string
	Limit  int
	Window time.Duration
	// FailClosed rejects requests with 503 when Redis cannot be reached.
	// The default lets them through.
	FailClosed bool
}

// Decision is the outcome of one hit against a Rule.
type Decision struct {
	Allowed    bool
	Count      int64
	Remaining  int64
	RetryAfter time.Duration
}

func (r Rule) key(subject string) string {
	return "rl:" + r.Name + ":" + subject
}

// Hit counts one request by subject. The window starts with the first hit;
// counter creation, increment and TTL read share one round trip.
func (r Rule) Hit(ctx context.Context, rdb *redis.Client, subject string) (Decision, error) {
	if unlimitedEnvs[strings.ToLower(os.Getenv("APP_ENV"))] {
		return Decision{Allowed: true, Remaining: int64(r.Limit)}, nil
	}
	if rdb == nil {
		return Decision{}, errNoLimiterStore
	}

	key := r.key(subject)
	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SetNX(ctx, key, 0, r.Window)
		incr = p.Incr(ctx, key)
		ttl = p.TTL(ctx, key)
		return nil
	})
	if err != nil {
		return Decision{}, err
	}

	count := incr.Val()
	d := Decision{Count: count, Allowed: count <= int64(r.Limit)}
	if d.Allowed {
		d.Remaining = int64(r.Limit) - count
	} else {
		d.RetryAfter = ttl.Val()
	}
	return d, nil
}

// subject keys authenticated callers by user and everyone else by IP.
func subject(c *fiber.Ctx) string {
	if uid, ok := c.Locals("userID").(uint); ok && uid != 0 {
		return "user:" + strconv.FormatUint(uint64(uid), 10)
	}
	return "ip:" + c.IP()
}

// RateLimit enforces rule per caller and sets the X-RateLimit headers.
func RateLimit(rdb *redis.Client, rule Rule) fiber.Handler {
	if rule.Name == "" {
		panic("middleware: rate limit rule needs a name")
	}
	return func(c *fiber.Ctx) error {
		d, err := rule.Hit(c.UserContext(), rdb, subject(c))
		if err != nil {
			if !rule.FailClosed {
				return c.Next()
			}
			Logger.WarnContext(c.UserContext(), "rate limit store unavailable, rejecting", "rule", rule.Name, "error", err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "rate limit unavailable"})
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
		if d.Allowed {
			return c.Next()
		}
		if secs := int((d.RetryAfter + time.Second - 1) / time.Second); secs > 0 {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(secs))
		}
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded"})
	}
}
