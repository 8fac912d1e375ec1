package vesting

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/congo-pay/timelock/internal/accrual"
	"github.com/congo-pay/timelock/internal/asset"
	"github.com/congo-pay/timelock/internal/clock"
	"github.com/congo-pay/timelock/internal/custody"
	"github.com/congo-pay/timelock/internal/events"
)

// Service is the vesting ledger: escrowed funds unlock in equal steps, one
// per elapsed period after the cliff.
type Service struct {
	repo    Repository
	bank    asset.Bank
	clock   clock.Clock
	emitter events.Emitter
	logger  *slog.Logger
}

// NewService builds a vesting service.
func NewService(repo Repository, bank asset.Bank, clk clock.Clock, emitter events.Emitter, logger *slog.Logger) *Service {
	return &Service{repo: repo, bank: bank, clock: clk, emitter: emitter, logger: logger}
}

// CreateInput describes a vesting schedule. A zero StartTime means now; the
// first period starts CliffDuration seconds after StartTime.
type CreateInput struct {
	Owner          string
	Beneficiary    string
	Kind           asset.Kind
	TotalAmount    uint64
	StartTime      int64
	CliffDuration  uint64
	PeriodDuration uint64
	NumPeriods     uint64
}

// Create escrows TotalAmount from the owner and opens the schedule.
func (s *Service) Create(ctx context.Context, input CreateInput) (Schedule, error) {
	if input.TotalAmount == 0 {
		return Schedule{}, custody.ErrInvalidAmount
	}
	span, err := accrual.PeriodsSpan(input.NumPeriods, input.PeriodDuration)
	if err != nil {
		return Schedule{}, fmt.Errorf("%w: %v", custody.ErrInvalidDuration, err)
	}
	if input.CliffDuration > span {
		return Schedule{}, custody.ErrInvalidCliff
	}
	if input.TotalAmount%input.NumPeriods != 0 {
		return Schedule{}, custody.ErrAmountNotDivisible
	}
	start := input.StartTime
	if start == 0 {
		start = s.clock.Now()
	}
	// span and cliff are both bounded by MaxInt64, so their sum cannot wrap a uint64
	if start < 0 || input.CliffDuration+span > uint64(math.MaxInt64-start) {
		return Schedule{}, custody.ErrInvalidDuration
	}
	owner, beneficiary := strings.TrimSpace(input.Owner), strings.TrimSpace(input.Beneficiary)
	if owner == "" || beneficiary == "" {
		return Schedule{}, custody.ErrInvalidParty
	}
	if !input.Kind.Valid() {
		return Schedule{}, fmt.Errorf("%w: %q", custody.ErrInvalidAssetKind, input.Kind)
	}

	cliffEnd := start + int64(input.CliffDuration)
	ns := custody.Namespace{Owner: owner, Kind: input.Kind}
	v, err := s.repo.Insert(ctx, ns, func(ctx context.Context, id uint64) (Schedule, error) {
		key := custody.Key{Owner: owner, Kind: input.Kind, ID: id}
		escrow, err := s.bank.Withdraw(ctx, owner, input.Kind, input.TotalAmount, ref(key, "create"))
		if err != nil {
			return Schedule{}, err
		}
		return Schedule{
			Schedule: custody.Schedule{
				Key:         key,
				Beneficiary: beneficiary,
				TotalAmount: input.TotalAmount,
				StartTime:   start,
				EndTime:     cliffEnd + int64(span),
				CliffTime:   cliffEnd,
				Active:      true,
				Escrow:      escrow,
				CreatedAt:   time.Now().UTC(),
			},
			PeriodDuration:  input.PeriodDuration,
			NumPeriods:      input.NumPeriods,
			AmountPerPeriod: input.TotalAmount / input.NumPeriods,
		}, nil
	})
	if err != nil {
		return Schedule{}, err
	}

	s.logger.Info("vesting schedule created",
		slog.String("key", v.Key.String()),
		slog.String("beneficiary", v.Beneficiary),
		slog.Uint64("total", v.TotalAmount),
		slog.Uint64("periods", v.NumPeriods),
	)
	s.emit(ctx, events.KindVestingCreated, v.Key, map[string]any{
		"owner":             v.Owner,
		"beneficiary":       v.Beneficiary,
		"kind":              string(v.Kind),
		"total":             v.TotalAmount,
		"start_time":        v.StartTime,
		"cliff_time":        v.CliffTime,
		"end_time":          v.EndTime,
		"period_duration":   v.PeriodDuration,
		"num_periods":       v.NumPeriods,
		"amount_per_period": v.AmountPerPeriod,
	})
	return v, nil
}

// Get returns the schedule under key.
func (s *Service) Get(ctx context.Context, key custody.Key) (Schedule, error) {
	return s.repo.Get(ctx, key)
}

// ListByOwner returns every live schedule funded by owner.
func (s *Service) ListByOwner(ctx context.Context, owner string) ([]Schedule, error) {
	return s.repo.ListByOwner(ctx, owner)
}

// Claimable returns what the beneficiary of key may claim right now.
func (s *Service) Claimable(ctx context.Context, key custody.Key) (uint64, error) {
	v, err := s.repo.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	return ClaimableAmount(v, s.clock.Now()), nil
}

// Claim releases every unlocked unit to the beneficiary. The schedule is
// destroyed once fully claimed.
func (s *Service) Claim(ctx context.Context, caller string, key custody.Key) (Schedule, uint64, error) {
	now := s.clock.Now()
	var amount uint64
	v, err := s.repo.Update(ctx, key, func(ctx context.Context, v *Schedule) (bool, error) {
		if err := custody.Authorize(caller, v.Beneficiary); err != nil {
			return false, err
		}
		amount = ClaimableAmount(*v, now)
		if amount == 0 {
			return false, custody.ErrNothingToWithdraw
		}
		funds, err := v.Escrow.Withdraw(amount)
		if err != nil {
			return false, err
		}
		v.WithdrawnAmount += amount
		payout := asset.Payout{To: v.Beneficiary, Funds: funds}
		if err := s.bank.Deposit(ctx, ref(v.Key, fmt.Sprintf("claim:%d", v.WithdrawnAmount)), payout); err != nil {
			return false, err
		}
		return !v.Exhausted(), nil
	})
	if err != nil {
		return Schedule{}, 0, err
	}

	s.logger.Info("vesting claimed", slog.String("key", key.String()), slog.Uint64("amount", amount))
	s.emit(ctx, events.KindVestingClaimed, key, map[string]any{
		"beneficiary": v.Beneficiary,
		"amount":      amount,
		"withdrawn":   v.WithdrawnAmount,
		"periods":     UnlockedPeriods(v, now),
	})
	if v.Exhausted() {
		s.emit(ctx, events.KindVestingCompleted, key, map[string]any{"total": v.TotalAmount})
	}
	return v, amount, nil
}

// Cancel settles the schedule between beneficiary and owner and destroys it.
// Either party may cancel.
func (s *Service) Cancel(ctx context.Context, caller string, key custody.Key) (custody.Settlement, error) {
	now := s.clock.Now()
	var settled custody.Settlement
	v, err := s.repo.Update(ctx, key, func(ctx context.Context, v *Schedule) (bool, error) {
		if err := custody.Authorize(caller, v.Owner, v.Beneficiary); err != nil {
			return false, err
		}
		owed := ClaimableAmount(*v, now)
		toBeneficiary, err := v.Escrow.Withdraw(owed)
		if err != nil {
			return false, err
		}
		toOwner := v.Escrow.DrainAll()
		v.WithdrawnAmount += owed
		err = s.bank.Deposit(ctx, ref(v.Key, "cancel"),
			asset.Payout{To: v.Beneficiary, Funds: toBeneficiary},
			asset.Payout{To: v.Owner, Funds: toOwner},
		)
		if err != nil {
			return false, err
		}
		settled = custody.Settlement{ToBeneficiary: toBeneficiary.Amount, ToOwner: toOwner.Amount}
		return false, nil
	})
	if err != nil {
		return custody.Settlement{}, err
	}

	s.logger.Info("vesting cancelled",
		slog.String("key", key.String()),
		slog.String("caller", caller),
		slog.Uint64("to_beneficiary", settled.ToBeneficiary),
		slog.Uint64("to_owner", settled.ToOwner),
	)
	s.emit(ctx, events.KindVestingCancelled, key, map[string]any{
		"cancelled_by":   caller,
		"beneficiary":    v.Beneficiary,
		"to_beneficiary": settled.ToBeneficiary,
		"to_owner":       settled.ToOwner,
	})
	return settled, nil
}

func (s *Service) emit(ctx context.Context, kind string, key custody.Key, fields map[string]any) {
	if s.emitter == nil {
		return
	}
	if err := s.emitter.Emit(ctx, events.Stamp(kind, key.String(), s.clock.Now(), fields)); err != nil {
		s.logger.Warn("emit event failed", slog.String("kind", kind), slog.String("key", key.String()), slog.Any("error", err))
	}
}

func ref(key custody.Key, op string) string {
	return "vesting:" + key.String() + ":" + op
}
