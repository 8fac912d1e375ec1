package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/timelock/internal/link"
	"github.com/congo-pay/timelock/internal/stream"
	"github.com/congo-pay/timelock/internal/vesting"
)

// RegisterStreamRoutes wires payment stream endpoints.
func RegisterStreamRoutes(r fiber.Router, h *stream.Handler) {
	r.Post("/streams", h.Create)
	r.Get("/streams", h.List)
	r.Get("/streams/:owner/:kind/:id", h.Get)
	r.Get("/streams/:owner/:kind/:id/claimable", h.Claimable)
	r.Post("/streams/:owner/:kind/:id/withdraw", h.Withdraw)
	r.Post("/streams/:owner/:kind/:id/pause", h.Pause)
	r.Post("/streams/:owner/:kind/:id/resume", h.Resume)
	r.Post("/streams/:owner/:kind/:id/cancel", h.Cancel)
}

// RegisterVestingRoutes wires vesting schedule endpoints.
func RegisterVestingRoutes(r fiber.Router, h *vesting.Handler) {
	r.Post("/vesting", h.Create)
	r.Get("/vesting", h.List)
	r.Get("/vesting/:owner/:kind/:id", h.Get)
	r.Get("/vesting/:owner/:kind/:id/claimable", h.Claimable)
	r.Post("/vesting/:owner/:kind/:id/claim", h.Claim)
	r.Post("/vesting/:owner/:kind/:id/cancel", h.Cancel)
}

// RegisterLinkRoutes wires link transfer endpoints.
func RegisterLinkRoutes(r fiber.Router, h *link.Handler) {
	r.Post("/links", h.Create)
	r.Get("/links", h.List)
	r.Get("/links/:sender/:commitment", h.Get)
	r.Post("/links/:sender/:commitment/claim", h.Claim)
	r.Post("/links/:sender/:commitment/cancel", h.Cancel)
}
