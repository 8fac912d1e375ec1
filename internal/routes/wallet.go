package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/timelock/internal/wallet"
)

// RegisterAccountRoutes wires balance endpoints. Funding from the treasury is
// only mounted when fund is true.
func RegisterAccountRoutes(r fiber.Router, h *wallet.Handler, fund bool) {
	r.Get("/accounts/:kind/balance", h.Balance)
	if fund {
		r.Post("/accounts/:kind/fund", h.Fund)
	}
}
