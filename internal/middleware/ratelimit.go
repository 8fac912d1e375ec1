package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/timelock/internal/auth"
)

const rateLimitPrefix = "rl:v1:"

// RateLimit caps each caller (or client IP when unauthenticated) at perMinute
// requests per fixed one-minute window. Without Redis it is a no-op, and it
// fails open on Redis errors.
func RateLimit(cache *redis.Client, perMinute int, logger *slog.Logger) fiber.Handler {
	if perMinute <= 0 {
		perMinute = 120
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		subject := auth.Caller(c)
		if subject == "" {
			subject = "ip:" + c.IP()
		}
		window := time.Now().Unix() / 60
		key := rateLimitPrefix + subject + ":" + strconv.FormatInt(window, 10)

		ctx := c.UserContext()
		pipe := cache.TxPipeline()
		incr := pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, time.Minute)
		if _, err := pipe.Exec(ctx); err != nil {
			logger.Warn("rate limit lookup failed", slog.String("subject", subject), slog.Any("error", err))
			return c.Next()
		}

		count := incr.Val()
		remaining := int64(perMinute) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Set("X-RateLimit-Limit", strconv.Itoa(perMinute))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		if count > int64(perMinute) {
			return fiber.NewError(http.StatusTooManyRequests, "rate limit exceeded, try again later")
		}
		return c.Next()
	}
}
