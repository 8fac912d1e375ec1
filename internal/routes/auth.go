package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/timelock/internal/auth"
)

// RegisterDevAuthRoutes mounts the development token endpoint.
func RegisterDevAuthRoutes(r fiber.Router, h *auth.Handler) {
	r.Post("/dev/token", h.DevToken)
}
