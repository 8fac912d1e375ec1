package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/timelock/internal/auth"
)

// TokenVerifier checks a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(raw string) (auth.Claims, error)
}

// JWTAuth validates the bearer token and stores its subject as the caller.
func JWTAuth(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if len(authz) < len("bearer ") || !strings.EqualFold(authz[:len("bearer ")], "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		claims, err := verifier.Verify(strings.TrimSpace(authz[len("bearer "):]))
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		c.Locals(auth.CallerLocal, claims.Subject)
		return c.Next()
	}
}
