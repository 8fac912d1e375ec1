package vesting

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/timelock/internal/apierr"
	"github.com/congo-pay/timelock/internal/asset"
	"github.com/congo-pay/timelock/internal/auth"
	"github.com/congo-pay/timelock/internal/custody"
)

// Handler exposes vesting HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a vesting HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	Beneficiary    string `json:"beneficiary"`
	Kind           string `json:"kind"`
	TotalAmount    uint64 `json:"total_amount"`
	StartTime      int64  `json:"start_time"`
	CliffDuration  uint64 `json:"cliff_duration"`
	PeriodDuration uint64 `json:"period_duration"`
	NumPeriods     uint64 `json:"num_periods"`
}

type scheduleResponse struct {
	Owner           string `json:"owner"`
	Kind            string `json:"kind"`
	ID              uint64 `json:"id"`
	Beneficiary     string `json:"beneficiary"`
	TotalAmount     uint64 `json:"total_amount"`
	WithdrawnAmount uint64 `json:"withdrawn_amount"`
	EscrowBalance   uint64 `json:"escrow_balance"`
	StartTime       int64  `json:"start_time"`
	CliffTime       int64  `json:"cliff_time"`
	EndTime         int64  `json:"end_time"`
	PeriodDuration  uint64 `json:"period_duration"`
	NumPeriods      uint64 `json:"num_periods"`
	AmountPerPeriod uint64 `json:"amount_per_period"`
	UnlockedPeriods uint64 `json:"unlocked_periods"`
	NextUnlock      int64  `json:"next_unlock,omitempty"`
	Claimable       uint64 `json:"claimable"`
	Progress        string `json:"progress"`
}

func (h *Handler) view(v Schedule) scheduleResponse {
	now := h.service.clock.Now()
	var escrow uint64
	if v.Escrow != nil {
		escrow = v.Escrow.Value()
	}
	return scheduleResponse{
		Owner:           v.Owner,
		Kind:            string(v.Kind),
		ID:              v.ID,
		Beneficiary:     v.Beneficiary,
		TotalAmount:     v.TotalAmount,
		WithdrawnAmount: v.WithdrawnAmount,
		EscrowBalance:   escrow,
		StartTime:       v.StartTime,
		CliffTime:       v.CliffTime,
		EndTime:         v.EndTime,
		PeriodDuration:  v.PeriodDuration,
		NumPeriods:      v.NumPeriods,
		AmountPerPeriod: v.AmountPerPeriod,
		UnlockedPeriods: UnlockedPeriods(v, now),
		NextUnlock:      NextUnlock(v, now),
		Claimable:       ClaimableAmount(v, now),
		Progress:        custody.Progress(v.WithdrawnAmount, v.TotalAmount),
	}
}

// Create opens a vesting schedule funded by the caller.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return apierr.BadRequest(err)
	}
	kind, err := asset.ParseKind(req.Kind)
	if err != nil {
		return apierr.From(err)
	}
	v, err := h.service.Create(c.UserContext(), CreateInput{
		Owner:          auth.Caller(c),
		Beneficiary:    req.Beneficiary,
		Kind:           kind,
		TotalAmount:    req.TotalAmount,
		StartTime:      req.StartTime,
		CliffDuration:  req.CliffDuration,
		PeriodDuration: req.PeriodDuration,
		NumPeriods:     req.NumPeriods,
	})
	if err != nil {
		return apierr.From(err)
	}
	return c.Status(http.StatusCreated).JSON(h.view(v))
}

// List returns the schedules funded by ?owner=, defaulting to the caller.
// Only records the caller owns or benefits from are listed.
func (h *Handler) List(c *fiber.Ctx) error {
	owner := c.Query("owner", auth.Caller(c))
	schedules, err := h.service.ListByOwner(c.UserContext(), owner)
	if err != nil {
		return apierr.From(err)
	}
	caller := auth.Caller(c)
	out := make([]scheduleResponse, 0, len(schedules))
	for _, v := range schedules {
		if custody.Authorize(caller, v.Owner, v.Beneficiary) != nil {
			continue
		}
		out = append(out, h.view(v))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"owner": owner, "schedules": out})
}

// Get returns one schedule.
func (h *Handler) Get(c *fiber.Ctx) error {
	key, err := custody.ParseKey(c.Params("owner"), c.Params("kind"), c.Params("id"))
	if err != nil {
		return apierr.From(err)
	}
	v, err := h.service.Get(c.UserContext(), key)
	if err != nil {
		return apierr.From(err)
	}
	return c.Status(http.StatusOK).JSON(h.view(v))
}

// Claimable reports what the beneficiary could claim now.
func (h *Handler) Claimable(c *fiber.Ctx) error {
	key, err := custody.ParseKey(c.Params("owner"), c.Params("kind"), c.Params("id"))
	if err != nil {
		return apierr.From(err)
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

// Claim releases unlocked periods to the calling beneficiary.
func (h *Handler) Claim(c *fiber.Ctx) error {
	key, err := custody.ParseKey(c.Params("owner"), c.Params("kind"), c.Params("id"))
	if err != nil {
		return apierr.From(err)
	}
	v, amount, err := h.service.Claim(c.UserContext(), auth.Caller(c), key)
	if err != nil {
		return apierr.From(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"amount":    amount,
		"completed": v.Exhausted(),
		"schedule":  h.view(v),
	})
}

// Cancel settles and destroys the schedule.
func (h *Handler) Cancel(c *fiber.Ctx) error {
	key, err := custody.ParseKey(c.Params("owner"), c.Params("kind"), c.Params("id"))
	if err != nil {
		return apierr.From(err)
	}
	settled, err := h.service.Cancel(c.UserContext(), auth.Caller(c), key)
	if err != nil {
		return apierr.From(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"key": key.String(), "settlement": settled})
}
