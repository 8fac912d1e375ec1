package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/timelock/internal/auth"
)

// Audit emits one structured log line per request, tagged with the caller
// when one is authenticated. It logs the matched route pattern rather than the
// raw path, since link paths carry claim tokens.
func Audit(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("route", c.Route().Path),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
		}
		if requestID := RequestIDFrom(c); requestID != "" {
			attrs = append(attrs, slog.String("request_id", requestID))
		}
		if caller := auth.Caller(c); caller != "" {
			attrs = append(attrs, slog.String("caller", caller))
		}
		switch {
		case err != nil && status >= fiber.StatusInternalServerError:
			attrs = append(attrs, slog.Any("error", err))
			logger.Error("request completed", attrs...)
			return err
		case err != nil:
			attrs = append(attrs, slog.Any("error", err))
			logger.Warn("request rejected", attrs...)
			return err
		}

		logger.Info("request completed", attrs...)
		return nil
	}
}
