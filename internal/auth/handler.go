package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler issues development tokens.
type Handler struct {
	issuer *Issuer
}

func NewHandler(issuer *Issuer) *Handler {
	return &Handler{issuer: issuer}
}

type tokenRequest struct {
	Subject string `json:"subject"`
}

// DevToken issues a token for any subject. Mounted only in development.
func (h *Handler) DevToken(c *fiber.Ctx) error {
	var req tokenRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	token, exp, err := h.issuer.Issue(req.Subject)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_at":   exp.Unix(),
	})
}
