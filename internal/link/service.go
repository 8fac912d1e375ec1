package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/congo-pay/timelock/internal/asset"
	"github.com/congo-pay/timelock/internal/clock"
	"github.com/congo-pay/timelock/internal/custody"
	"github.com/congo-pay/timelock/internal/events"
)

// ExpiryScheduler arranges for NotifyExpired to run once a link has expired.
type ExpiryScheduler interface {
	ScheduleExpiry(ctx context.Context, key Key, at int64) error
}

// Service is the link escrow: one-time transfers claimable by whoever holds
// the commitment, refundable by the sender until claimed.
type Service struct {
	repo      Repository
	bank      asset.Bank
	clock     clock.Clock
	emitter   events.Emitter
	scheduler ExpiryScheduler
	params    custody.Params
	logger    *slog.Logger
}

// NewService builds a link service. scheduler may be nil, in which case no
// expiry notices are produced.
func NewService(repo Repository, bank asset.Bank, clk clock.Clock, emitter events.Emitter, scheduler ExpiryScheduler, params custody.Params, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		bank:      bank,
		clock:     clk,
		emitter:   emitter,
		scheduler: scheduler,
		params:    params,
		logger:    logger,
	}
}

// CreateInput describes a link transfer.
type CreateInput struct {
	Sender         string
	Kind           asset.Kind
	Amount         uint64
	Commitment     []byte
	ExpiryDuration uint64
}

// Create escrows Amount from the sender under the commitment.
func (s *Service) Create(ctx context.Context, input CreateInput) (Transfer, error) {
	if input.Amount == 0 {
		return Transfer{}, custody.ErrInvalidAmount
	}
	if input.ExpiryDuration == 0 || input.ExpiryDuration > s.params.MaxLinkExpiry {
		return Transfer{}, fmt.Errorf("%w: expiry must be within (0, %d] seconds", custody.ErrInvalidDuration, s.params.MaxLinkExpiry)
	}
	commitment, err := CommitmentFromBytes(input.Commitment)
	if err != nil {
		return Transfer{}, err
	}
	sender := strings.TrimSpace(input.Sender)
	if sender == "" {
		return Transfer{}, custody.ErrInvalidParty
	}
	if !input.Kind.Valid() {
		return Transfer{}, fmt.Errorf("%w: %q", custody.ErrInvalidAssetKind, input.Kind)
	}
	now := s.clock.Now()
	if input.ExpiryDuration > uint64(math.MaxInt64-now) {
		return Transfer{}, custody.ErrInvalidDuration
	}

	key := Key{Sender: sender, Commitment: commitment}
	t, err := s.repo.Insert(ctx, key, func(ctx context.Context) (Transfer, error) {
		id := uuid.New()
		escrow, err := s.bank.Withdraw(ctx, sender, input.Kind, input.Amount, ref(key, id, "create"))
		if err != nil {
			return Transfer{}, err
		}
		return Transfer{
			ID:         id,
			Sender:     sender,
			Kind:       input.Kind,
			Amount:     input.Amount,
			Commitment: commitment,
			CreatedAt:  now,
			ExpiresAt:  now + int64(input.ExpiryDuration),
			Escrow:     escrow,
		}, nil
	})
	if err != nil {
		return Transfer{}, err
	}

	s.logger.Info("link created",
		slog.String("sender", t.Sender),
		slog.String("kind", string(t.Kind)),
		slog.Uint64("amount", t.Amount),
		slog.Int64("expires_at", t.ExpiresAt),
	)
	s.emit(ctx, events.KindLinkCreated, t, map[string]any{
		"sender":     t.Sender,
		"kind":       string(t.Kind),
		"amount":     t.Amount,
		"commitment": t.Commitment.String(),
		"expires_at": t.ExpiresAt,
	})
	if s.scheduler != nil {
		// claims are refused once now > ExpiresAt
		if err := s.scheduler.ScheduleExpiry(ctx, key, t.ExpiresAt+1); err != nil {
			s.logger.Warn("schedule link expiry failed", slog.Any("key", key), slog.Any("error", err))
		}
	}
	return t, nil
}

// Get returns the link under key.
func (s *Service) Get(ctx context.Context, key Key) (Transfer, error) {
	return s.repo.Get(ctx, key)
}

// ListBySender returns the links of sender, claimed tombstones included.
func (s *Service) ListBySender(ctx context.Context, sender string) ([]Transfer, error) {
	return s.repo.ListBySender(ctx, sender)
}

// Claim releases the whole escrow to claimant. Knowing the commitment is the
// only authorization required.
func (s *Service) Claim(ctx context.Context, claimant string, key Key) (Transfer, error) {
	claimant = strings.TrimSpace(claimant)
	if claimant == "" {
		return Transfer{}, custody.ErrInvalidParty
	}
	now := s.clock.Now()
	t, err := s.repo.Update(ctx, key, func(ctx context.Context, t *Transfer) (bool, error) {
		if t.Claimed {
			return false, custody.ErrAlreadyClaimed
		}
		if t.Expired(now) {
			return false, custody.ErrLinkExpired
		}
		funds := t.Escrow.DrainAll()
		if err := s.bank.Deposit(ctx, ref(key, t.ID, "claim"), asset.Payout{To: claimant, Funds: funds}); err != nil {
			return false, err
		}
		t.Claimed = true
		t.Claimer = claimant
		return true, nil
	})
	if err != nil {
		return Transfer{}, err
	}

	s.logger.Info("link claimed",
		slog.String("sender", key.Sender),
		slog.String("claimer", claimant),
		slog.Uint64("amount", t.Amount),
	)
	s.emit(ctx, events.KindLinkClaimed, t, map[string]any{
		"sender":  t.Sender,
		"claimer": claimant,
		"amount":  t.Amount,
	})
	return t, nil
}

// Cancel refunds an unclaimed link to its sender and destroys it. It is not
// gated on expiry.
func (s *Service) Cancel(ctx context.Context, caller string, key Key) (uint64, error) {
	var refunded uint64
	t, err := s.repo.Update(ctx, key, func(ctx context.Context, t *Transfer) (bool, error) {
		if err := custody.Authorize(caller, t.Sender); err != nil {
			return false, err
		}
		if t.Claimed {
			return false, custody.ErrAlreadyClaimed
		}
		funds := t.Escrow.DrainAll()
		if err := s.bank.Deposit(ctx, ref(key, t.ID, "cancel"), asset.Payout{To: t.Sender, Funds: funds}); err != nil {
			return false, err
		}
		refunded = funds.Amount
		return false, nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("link cancelled", slog.String("sender", key.Sender), slog.Uint64("refunded", refunded))
	s.emit(ctx, events.KindLinkCancelled, t, map[string]any{
		"sender":   key.Sender,
		"refunded": refunded,
	})
	return refunded, nil
}

// NotifyExpired emits link.expired when the link under key is still open and
// past its expiry. It reports whether the notice was sent; links already
// claimed, cancelled or not yet expired are left alone.
func (s *Service) NotifyExpired(ctx context.Context, key Key) (bool, error) {
	t, err := s.repo.Get(ctx, key)
	if errors.Is(err, custody.ErrLinkNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	now := s.clock.Now()
	if t.Claimed || !t.Expired(now) {
		return false, nil
	}
	s.logger.Info("link expired", slog.String("sender", key.Sender), slog.Int64("expires_at", t.ExpiresAt))
	s.emit(ctx, events.KindLinkExpired, t, map[string]any{
		"sender":     t.Sender,
		"amount":     t.Amount,
		"expires_at": t.ExpiresAt,
	})
	return true, nil
}

// emit publishes a link event. The subject names the incarnation by id so the
// commitment only travels in the link.created fields.
func (s *Service) emit(ctx context.Context, kind string, t Transfer, fields map[string]any) {
	if s.emitter == nil {
		return
	}
	key := t.Key()
	fields["link_id"] = t.ID.String()
	subject := "link:" + t.Sender + "/" + t.ID.String()
	if err := s.emitter.Emit(ctx, events.Stamp(kind, subject, s.clock.Now(), fields)); err != nil {
		s.logger.Warn("emit event failed", slog.String("kind", kind), slog.Any("key", key), slog.Any("error", err))
	}
}

func ref(key Key, id uuid.UUID, op string) string {
	return "link:" + key.Sender + ":" + id.String() + ":" + op
}
