package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/congo-pay/timelock/internal/accrual"
	"github.com/congo-pay/timelock/internal/asset"
	"github.com/congo-pay/timelock/internal/clock"
	"github.com/congo-pay/timelock/internal/custody"
	"github.com/congo-pay/timelock/internal/events"
)

// Service is the stream ledger: continuous per-second release of escrowed
// funds with pause, resume, withdrawal and bilateral cancellation.
type Service struct {
	repo    Repository
	bank    asset.Bank
	clock   clock.Clock
	emitter events.Emitter
	logger  *slog.Logger
}

// NewService builds a stream service.
func NewService(repo Repository, bank asset.Bank, clk clock.Clock, emitter events.Emitter, logger *slog.Logger) *Service {
	return &Service{repo: repo, bank: bank, clock: clk, emitter: emitter, logger: logger}
}

// CreateInput describes a stream funded with an explicit total. The window is
// either [StartTime, EndTime] or Duration seconds from StartTime; a zero
// StartTime means now.
type CreateInput struct {
	Owner         string
	Beneficiary   string
	Kind          asset.Kind
	TotalAmount   uint64
	StartTime     int64
	EndTime       int64
	Duration      uint64
	CliffDuration uint64
}

// RateInput describes a stream funded by a rate quoted per interval.
type RateInput struct {
	Owner             string
	Beneficiary       string
	Kind              asset.Kind
	AmountPerInterval uint64
	Interval          accrual.Interval
	Duration          uint64
	StartTime         int64
	CliffDuration     uint64
}

type window struct {
	start, end, cliff int64
	duration          uint64
}

// Create escrows TotalAmount from the owner and starts a stream to the beneficiary.
func (s *Service) Create(ctx context.Context, input CreateInput) (Stream, error) {
	if input.TotalAmount == 0 {
		return Stream{}, custody.ErrInvalidAmount
	}
	w, err := s.window(input.StartTime, input.EndTime, input.Duration, input.CliffDuration)
	if err != nil {
		return Stream{}, err
	}
	rate, err := accrual.RateFromTotal(input.TotalAmount, w.duration)
	if err != nil {
		return Stream{}, fmt.Errorf("%w: %v", custody.ErrInvalidDuration, err)
	}
	return s.open(ctx, input.Owner, input.Beneficiary, input.Kind, input.TotalAmount, rate, w)
}

// CreateByRate derives the total from a per-interval rate and starts a stream.
func (s *Service) CreateByRate(ctx context.Context, input RateInput) (Stream, error) {
	if input.AmountPerInterval == 0 {
		return Stream{}, custody.ErrInvalidAmount
	}
	w, err := s.window(input.StartTime, 0, input.Duration, input.CliffDuration)
	if err != nil {
		return Stream{}, err
	}
	total, rate, err := accrual.TotalFromRate(input.AmountPerInterval, input.Interval, w.duration)
	switch {
	case errors.Is(err, accrual.ErrInvalidInterval):
		return Stream{}, fmt.Errorf("%w: %v", custody.ErrInvalidDuration, err)
	case err != nil:
		return Stream{}, fmt.Errorf("%w: %v", custody.ErrInvalidAmount, err)
	}
	return s.open(ctx, input.Owner, input.Beneficiary, input.Kind, total, rate, w)
}

func (s *Service) window(start, end int64, duration, cliff uint64) (window, error) {
	if start == 0 {
		start = s.clock.Now()
	}
	if start < 0 {
		return window{}, custody.ErrInvalidDuration
	}
	if end != 0 {
		if end <= start {
			return window{}, custody.ErrInvalidDuration
		}
		duration = uint64(end - start)
	}
	if duration == 0 || duration > uint64(math.MaxInt64-start) {
		return window{}, custody.ErrInvalidDuration
	}
	if cliff > duration {
		return window{}, custody.ErrInvalidCliff
	}
	return window{
		start:    start,
		end:      start + int64(duration),
		cliff:    start + int64(cliff),
		duration: duration,
	}, nil
}

func (s *Service) open(ctx context.Context, owner, beneficiary string, kind asset.Kind, total uint64, rate sdkmath.Uint, w window) (Stream, error) {
	owner, beneficiary = strings.TrimSpace(owner), strings.TrimSpace(beneficiary)
	if owner == "" || beneficiary == "" {
		return Stream{}, custody.ErrInvalidParty
	}
	if !kind.Valid() {
		return Stream{}, fmt.Errorf("%w: %q", custody.ErrInvalidAssetKind, kind)
	}

	ns := custody.Namespace{Owner: owner, Kind: kind}
	st, err := s.repo.Insert(ctx, ns, func(ctx context.Context, id uint64) (Stream, error) {
		key := custody.Key{Owner: owner, Kind: kind, ID: id}
		escrow, err := s.bank.Withdraw(ctx, owner, kind, total, ref(key, "create"))
		if err != nil {
			return Stream{}, err
		}
		return Stream{
			Schedule: custody.Schedule{
				Key:         key,
				Beneficiary: beneficiary,
				TotalAmount: total,
				StartTime:   w.start,
				EndTime:     w.end,
				CliffTime:   w.cliff,
				Active:      true,
				Escrow:      escrow,
				CreatedAt:   time.Now().UTC(),
			},
			FlowRate: rate,
		}, nil
	})
	if err != nil {
		return Stream{}, err
	}

	s.logger.Info("stream created",
		slog.String("key", st.Key.String()),
		slog.String("beneficiary", st.Beneficiary),
		slog.Uint64("total", st.TotalAmount),
		slog.String("flow_rate", st.FlowRate.String()),
	)
	s.emit(ctx, events.KindStreamCreated, st.Key, map[string]any{
		"owner":       st.Owner,
		"beneficiary": st.Beneficiary,
		"kind":        string(st.Kind),
		"total":       st.TotalAmount,
		"flow_rate":   st.FlowRate.String(),
		"start_time":  st.StartTime,
		"end_time":    st.EndTime,
		"cliff_time":  st.CliffTime,
	})
	return st, nil
}

// Get returns the stream under key.
func (s *Service) Get(ctx context.Context, key custody.Key) (Stream, error) {
	return s.repo.Get(ctx, key)
}

// ListByOwner returns every live stream funded by owner.
func (s *Service) ListByOwner(ctx context.Context, owner string) ([]Stream, error) {
	return s.repo.ListByOwner(ctx, owner)
}

// Claimable returns what the beneficiary of key may withdraw right now.
func (s *Service) Claimable(ctx context.Context, key custody.Key) (uint64, error) {
	st, err := s.repo.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	return ClaimableAmount(st, s.clock.Now()), nil
}

// Withdraw releases everything claimable to the beneficiary. The record is
// destroyed once the whole total has been withdrawn.
func (s *Service) Withdraw(ctx context.Context, caller string, key custody.Key) (Stream, uint64, error) {
	now := s.clock.Now()
	var amount uint64
	st, err := s.repo.Update(ctx, key, func(ctx context.Context, st *Stream) (bool, error) {
		if err := custody.Authorize(caller, st.Beneficiary); err != nil {
			return false, err
		}
		amount = ClaimableAmount(*st, now)
		if amount == 0 {
			return false, custody.ErrNothingToWithdraw
		}
		funds, err := st.Escrow.Withdraw(amount)
		if err != nil {
			return false, err
		}
		st.WithdrawnAmount += amount
		payout := asset.Payout{To: st.Beneficiary, Funds: funds}
		if err := s.bank.Deposit(ctx, ref(st.Key, fmt.Sprintf("withdraw:%d", st.WithdrawnAmount)), payout); err != nil {
			return false, err
		}
		return !st.Exhausted(), nil
	})
	if err != nil {
		return Stream{}, 0, err
	}

	s.logger.Info("stream withdrawn", slog.String("key", key.String()), slog.Uint64("amount", amount))
	s.emit(ctx, events.KindStreamWithdrawn, key, map[string]any{
		"beneficiary": st.Beneficiary,
		"amount":      amount,
		"withdrawn":   st.WithdrawnAmount,
	})
	if st.Exhausted() {
		s.emit(ctx, events.KindStreamCompleted, key, map[string]any{"total": st.TotalAmount})
	}
	return st, amount, nil
}

// Pause freezes accrual at the current instant.
func (s *Service) Pause(ctx context.Context, caller string, key custody.Key) (Stream, error) {
	now := s.clock.Now()
	st, err := s.repo.Update(ctx, key, func(_ context.Context, st *Stream) (bool, error) {
		if err := custody.Authorize(caller, st.Owner); err != nil {
			return false, err
		}
		if !st.Active {
			return false, custody.ErrAlreadyPaused
		}
		st.Active = false
		st.LastPauseTime = now
		return true, nil
	})
	if err != nil {
		return Stream{}, err
	}

	s.logger.Info("stream paused", slog.String("key", key.String()), slog.Int64("at", now))
	s.emit(ctx, events.KindStreamPaused, key, map[string]any{"paused_at": now})
	return st, nil
}

// Resume restarts accrual. The whole window is shifted by the time spent
// paused, so the flow rate and the undelivered amount are preserved.
func (s *Service) Resume(ctx context.Context, caller string, key custody.Key) (Stream, error) {
	now := s.clock.Now()
	var paused int64
	st, err := s.repo.Update(ctx, key, func(_ context.Context, st *Stream) (bool, error) {
		if err := custody.Authorize(caller, st.Owner); err != nil {
			return false, err
		}
		if st.Active {
			return false, custody.ErrAlreadyActive
		}
		if now > st.LastPauseTime {
			paused = now - st.LastPauseTime
		}
		if paused > math.MaxInt64-st.EndTime {
			return false, custody.ErrInvalidDuration
		}
		st.StartTime += paused
		st.CliffTime += paused
		st.EndTime += paused
		st.Active = true
		st.LastPauseTime = 0
		return true, nil
	})
	if err != nil {
		return Stream{}, err
	}

	s.logger.Info("stream resumed", slog.String("key", key.String()), slog.Int64("paused_for", paused))
	s.emit(ctx, events.KindStreamResumed, key, map[string]any{
		"resumed_at": now,
		"paused_for": paused,
		"end_time":   st.EndTime,
	})
	return st, nil
}

// Cancel settles the stream: the beneficiary receives what has accrued, the
// owner receives whatever remains in escrow, and the record is destroyed.
func (s *Service) Cancel(ctx context.Context, caller string, key custody.Key) (custody.Settlement, error) {
	now := s.clock.Now()
	var settled custody.Settlement
	st, err := s.repo.Update(ctx, key, func(ctx context.Context, st *Stream) (bool, error) {
		if err := custody.Authorize(caller, st.Owner, st.Beneficiary); err != nil {
			return false, err
		}
		owed := ClaimableAmount(*st, now)
		toBeneficiary, err := st.Escrow.Withdraw(owed)
		if err != nil {
			return false, err
		}
		toOwner := st.Escrow.DrainAll()
		st.WithdrawnAmount += owed
		err = s.bank.Deposit(ctx, ref(st.Key, "cancel"),
			asset.Payout{To: st.Beneficiary, Funds: toBeneficiary},
			asset.Payout{To: st.Owner, Funds: toOwner},
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

	s.logger.Info("stream cancelled",
		slog.String("key", key.String()),
		slog.String("caller", caller),
		slog.Uint64("to_beneficiary", settled.ToBeneficiary),
		slog.Uint64("to_owner", settled.ToOwner),
	)
	s.emit(ctx, events.KindStreamCancelled, key, map[string]any{
		"cancelled_by":   caller,
		"beneficiary":    st.Beneficiary,
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
	return "stream:" + key.String() + ":" + op
}
