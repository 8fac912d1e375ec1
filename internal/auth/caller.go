package auth

import "github.com/gofiber/fiber/v2"

// CallerLocal is the fiber local holding the authenticated caller identity.
const CallerLocal = "caller"

// Caller returns the identity JWTAuth attached to the request, or "".
func Caller(c *fiber.Ctx) string {
	caller, _ := c.Locals(CallerLocal).(string)
	return caller
}
