package stream

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/timelock/internal/accrual"
	"github.com/congo-pay/timelock/internal/apierr"
	"github.com/congo-pay/timelock/internal/asset"
	"github.com/congo-pay/timelock/internal/auth"
	"github.com/congo-pay/timelock/internal/custody"
)

// Handler exposes stream HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a stream HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	Beneficiary       string `json:"beneficiary"`
	Kind              string `json:"kind"`
	TotalAmount       uint64 `json:"total_amount"`
	StartTime         int64  `json:"start_time"`
	EndTime           int64  `json:"end_time"`
	Duration          uint64 `json:"duration"`
	CliffDuration     uint64 `json:"cliff_duration"`
	AmountPerInterval uint64 `json:"amount_per_interval"`
	Interval          string `json:"interval"`
}

type streamResponse struct {
	Owner           string `json:"owner"`
	Kind            string `json:"kind"`
	ID              uint64 `json:"id"`
	Beneficiary     string `json:"beneficiary"`
	TotalAmount     uint64 `json:"total_amount"`
	WithdrawnAmount uint64 `json:"withdrawn_amount"`
	EscrowBalance   uint64 `json:"escrow_balance"`
	FlowRate        string `json:"flow_rate_per_second"`
	StartTime       int64  `json:"start_time"`
	EndTime         int64  `json:"end_time"`
	CliffTime       int64  `json:"cliff_time"`
	Active          bool   `json:"active"`
	LastPauseTime   int64  `json:"last_pause_time,omitempty"`
	Claimable       uint64 `json:"claimable"`
	Status          string `json:"status"`
	Progress        string `json:"progress"`
}

func (h *Handler) view(s Stream) streamResponse {
	now := h.service.clock.Now()
	var escrow uint64
	if s.Escrow != nil {
		escrow = s.Escrow.Value()
	}
	return streamResponse{
		Owner:           s.Owner,
		Kind:            string(s.Kind),
		ID:              s.ID,
		Beneficiary:     s.Beneficiary,
		TotalAmount:     s.TotalAmount,
		WithdrawnAmount: s.WithdrawnAmount,
		EscrowBalance:   escrow,
		FlowRate:        s.FlowRate.String(),
		StartTime:       s.StartTime,
		EndTime:         s.EndTime,
		CliffTime:       s.CliffTime,
		Active:          s.Active,
		LastPauseTime:   s.LastPauseTime,
		Claimable:       ClaimableAmount(s, now),
		Status:          Status(s, now),
		Progress:        custody.Progress(s.WithdrawnAmount, s.TotalAmount),
	}
}

// Create opens a stream funded by the caller.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return apierr.BadRequest(err)
	}
	kind, err := asset.ParseKind(req.Kind)
	if err != nil {
		return apierr.From(err)
	}
	owner := auth.Caller(c)

	var st Stream
	if req.AmountPerInterval > 0 {
		interval, err := accrual.ParseInterval(req.Interval)
		if err != nil {
			return apierr.BadRequest(err)
		}
		st, err = h.service.CreateByRate(c.UserContext(), RateInput{
			Owner:             owner,
			Beneficiary:       req.Beneficiary,
			Kind:              kind,
			AmountPerInterval: req.AmountPerInterval,
			Interval:          interval,
			Duration:          req.Duration,
			StartTime:         req.StartTime,
			CliffDuration:     req.CliffDuration,
		})
		if err != nil {
			return apierr.From(err)
		}
	} else {
		st, err = h.service.Create(c.UserContext(), CreateInput{
			Owner:         owner,
			Beneficiary:   req.Beneficiary,
			Kind:          kind,
			TotalAmount:   req.TotalAmount,
			StartTime:     req.StartTime,
			EndTime:       req.EndTime,
			Duration:      req.Duration,
			CliffDuration: req.CliffDuration,
		})
		if err != nil {
			return apierr.From(err)
		}
	}
	return c.Status(http.StatusCreated).JSON(h.view(st))
}

// List returns the streams funded by ?owner=, defaulting to the caller.
// Only records the caller owns or benefits from are listed.
func (h *Handler) List(c *fiber.Ctx) error {
	owner := c.Query("owner", auth.Caller(c))
	streams, err := h.service.ListByOwner(c.UserContext(), owner)
	if err != nil {
		return apierr.From(err)
	}
	caller := auth.Caller(c)
	out := make([]streamResponse, 0, len(streams))
	for _, s := range streams {
		if custody.Authorize(caller, s.Owner, s.Beneficiary) != nil {
			continue
		}
		out = append(out, h.view(s))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"owner": owner, "streams": out})
}

// Get returns one stream.
func (h *Handler) Get(c *fiber.Ctx) error {
	key, err := keyFrom(c)
	if err != nil {
		return err
	}
	st, err := h.service.Get(c.UserContext(), key)
	if err != nil {
		return apierr.From(err)
	}
	return c.Status(http.StatusOK).JSON(h.view(st))
}

// Claimable reports what the beneficiary could withdraw now.
func (h *Handler) Claimable(c *fiber.Ctx) error {
	key, err := keyFrom(c)
	if err != nil {
		return err
	}
	amount, err := h.service.Claimable(c.UserContext(), key)
	if err != nil {
		return apierr.From(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"key":       key.String(),
		"claimable": amount,
		"as_of":     h.service.clock.Now(),
	})
}

// Withdraw releases the claimable amount to the calling beneficiary.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	key, err := keyFrom(c)
	if err != nil {
		return err
	}
	st, amount, err := h.service.Withdraw(c.UserContext(), auth.Caller(c), key)
	if err != nil {
		return apierr.From(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"amount":    amount,
		"completed": st.Exhausted(),
		"stream":    h.view(st),
	})
}

// Pause freezes accrual.
func (h *Handler) Pause(c *fiber.Ctx) error {
	key, err := keyFrom(c)
	if err != nil {
		return err
	}
	st, err := h.service.Pause(c.UserContext(), auth.Caller(c), key)
	if err != nil {
		return apierr.From(err)
	}
	return c.Status(http.StatusOK).JSON(h.view(st))
}

// Resume restarts accrual.
func (h *Handler) Resume(c *fiber.Ctx) error {
	key, err := keyFrom(c)
	if err != nil {
		return err
	}
	st, err := h.service.Resume(c.UserContext(), auth.Caller(c), key)
	if err != nil {
		return apierr.From(err)
	}
	return c.Status(http.StatusOK).JSON(h.view(st))
}

// Cancel settles and destroys the stream.
func (h *Handler) Cancel(c *fiber.Ctx) error {
	key, err := keyFrom(c)
	if err != nil {
		return err
	}
	settled, err := h.service.Cancel(c.UserContext(), auth.Caller(c), key)
	if err != nil {
		return apierr.From(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"key": key.String(), "settlement": settled})
}

func keyFrom(c *fiber.Ctx) (custody.Key, error) {
	key, err := custody.ParseKey(c.Params("owner"), c.Params("kind"), c.Params("id"))
	if err != nil {
		return custody.Key{}, apierr.From(err)
	}
	return key, nil
}
