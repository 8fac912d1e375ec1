package link

import (
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/timelock/internal/apierr"
	"github.com/congo-pay/timelock/internal/asset"
	"github.com/congo-pay/timelock/internal/auth"
	"github.com/congo-pay/timelock/internal/custody"
)

// Handler exposes link HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a link HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// createRequest carries either a hex commitment or the secret it is derived
// from. With neither, a secret is generated and returned once.
type createRequest struct {
	Kind           string `json:"kind"`
	Amount         uint64 `json:"amount"`
	Commitment     string `json:"commitment"`
	Secret         string `json:"secret"`
	ExpiryDuration uint64 `json:"expiry_seconds"`
}

type linkResponse struct {
	Sender        string `json:"sender"`
	Kind          string `json:"kind"`
	Amount        uint64 `json:"amount"`
	Commitment    string `json:"commitment"`
	CreatedAt     int64  `json:"created_at"`
	ExpiresAt     int64  `json:"expires_at"`
	Claimed       bool   `json:"claimed"`
	Claimer       string `json:"claimer,omitempty"`
	EscrowBalance uint64 `json:"escrow_balance"`
	Status        string `json:"status"`
}

func (h *Handler) view(t Transfer) linkResponse {
	var escrow uint64
	if t.Escrow != nil {
		escrow = t.Escrow.Value()
	}
	return linkResponse{
		Sender:        t.Sender,
		Kind:          string(t.Kind),
		Amount:        t.Amount,
		Commitment:    t.Commitment.String(),
		CreatedAt:     t.CreatedAt,
		ExpiresAt:     t.ExpiresAt,
		Claimed:       t.Claimed,
		Claimer:       t.Claimer,
		EscrowBalance: escrow,
		Status:        Status(t, h.service.clock.Now()),
	}
}

// Create escrows funds from the caller behind a commitment.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return apierr.BadRequest(err)
	}
	kind, err := asset.ParseKind(req.Kind)
	if err != nil {
		return apierr.From(err)
	}

	var secret string
	var commitment Commitment
	switch {
	case req.Commitment != "":
		if commitment, err = ParseCommitment(req.Commitment); err != nil {
			return apierr.From(err)
		}
	case req.Secret != "":
		commitment = CommitmentFor([]byte(req.Secret))
	default:
		raw, err := NewSecret()
		if err != nil {
			return apierr.From(err)
		}
		secret = fmt.Sprintf("%x", raw)
		commitment = CommitmentFor([]byte(secret))
	}

	t, err := h.service.Create(c.UserContext(), CreateInput{
		Sender:         auth.Caller(c),
		Kind:           kind,
		Amount:         req.Amount,
		Commitment:     commitment[:],
		ExpiryDuration: req.ExpiryDuration,
	})
	if err != nil {
		return apierr.From(err)
	}
	if secret != "" {
		return c.Status(http.StatusCreated).JSON(fiber.Map{"link": h.view(t), "secret": secret})
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"link": h.view(t)})
}

// List returns the caller's links. Commitments are claim tokens, so ?sender=
// may only name the caller.
func (h *Handler) List(c *fiber.Ctx) error {
	sender := c.Query("sender", auth.Caller(c))
	if err := custody.Authorize(auth.Caller(c), sender); err != nil {
		return apierr.From(err)
	}
	links, err := h.service.ListBySender(c.UserContext(), sender)
	if err != nil {
		return apierr.From(err)
	}
	out := make([]linkResponse, 0, len(links))
	for _, t := range links {
		out = append(out, h.view(t))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"sender": sender, "links": out})
}

// Get returns one link to its sender.
func (h *Handler) Get(c *fiber.Ctx) error {
	key, err := keyFrom(c)
	if err != nil {
		return err
	}
	if err := custody.Authorize(auth.Caller(c), key.Sender); err != nil {
		return apierr.From(err)
	}
	t, err := h.service.Get(c.UserContext(), key)
	if err != nil {
		return apierr.From(err)
	}
	return c.Status(http.StatusOK).JSON(h.view(t))
}

// Claim pays the link out to the caller.
func (h *Handler) Claim(c *fiber.Ctx) error {
	key, err := keyFrom(c)
	if err != nil {
		return err
	}
	t, err := h.service.Claim(c.UserContext(), auth.Caller(c), key)
	if err != nil {
		return apierr.From(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"amount": t.Amount, "link": h.view(t)})
}

// Cancel refunds the link to its sender.
func (h *Handler) Cancel(c *fiber.Ctx) error {
	key, err := keyFrom(c)
	if err != nil {
		return err
	}
	refunded, err := h.service.Cancel(c.UserContext(), auth.Caller(c), key)
	if err != nil {
		return apierr.From(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"key": key.String(), "refunded": refunded})
}

func keyFrom(c *fiber.Ctx) (Key, error) {
	sender := c.Params("sender")
	if sender == "" {
		return Key{}, apierr.From(fmt.Errorf("%w: sender is required", custody.ErrInvalidKey))
	}
	commitment, err := ParseCommitment(c.Params("commitment"))
	if err != nil {
		return Key{}, apierr.From(err)
	}
	return Key{Sender: sender, Commitment: commitment}, nil
}
