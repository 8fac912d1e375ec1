package wallet

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/timelock/internal/apierr"
	"github.com/congo-pay/timelock/internal/asset"
	"github.com/congo-pay/timelock/internal/auth"
)

// Handler exposes balance HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type fundRequest struct {
	Amount     uint64 `json:"amount"`
	ClientTxID string `json:"client_tx_id"`
}

// Balance returns the caller's balance of :kind.
func (h *Handler) Balance(c *fiber.Ctx) error {
	kind, err := asset.ParseKind(c.Params("kind"))
	if err != nil {
		return apierr.From(err)
	}
	balance, err := h.service.Balance(c.UserContext(), auth.Caller(c), kind)
	if err != nil {
		return apierr.From(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"owner":        balance.Owner,
		"kind":         string(balance.Kind),
		"account_code": balance.AccountCode,
		"balance":      balance.Amount,
		"timestamp":    balance.AsOf,
	})
}

// Fund tops up the caller's balance of :kind from the treasury.
func (h *Handler) Fund(c *fiber.Ctx) error {
	kind, err := asset.ParseKind(c.Params("kind"))
	if err != nil {
		return apierr.From(err)
	}
	var req fundRequest
	if err := c.BodyParser(&req); err != nil {
		return apierr.BadRequest(err)
	}
	res, err := h.service.Fund(c.UserContext(), FundInput{
		Owner:      auth.Caller(c),
		Kind:       kind,
		Amount:     req.Amount,
		ClientTxID: req.ClientTxID,
	})
	if err != nil {
		return apierr.From(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"transaction_id": res.TransactionID,
		"balance":        res.Balance,
		"completed_at":   res.CompletedAt,
	})
}
