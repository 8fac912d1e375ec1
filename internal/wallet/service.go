package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/timelock/internal/asset"
	"github.com/congo-pay/timelock/internal/custody"
	"github.com/congo-pay/timelock/internal/ledger"
)

const postingKindFund = "treasury_fund"

// Service exposes the balances the escrow ledgers draw on.
type Service struct {
	ledger ledger.Ledger
	bank   asset.Bank
	logger *slog.Logger
}

// NewService builds a wallet service and ensures the treasury account exists.
func NewService(ctx context.Context, l ledger.Ledger, bank asset.Bank, logger *slog.Logger) (*Service, error) {
	if err := l.EnsureAccount(ctx, ledger.TreasuryAccountCode); err != nil {
		return nil, err
	}
	return &Service{ledger: l, bank: bank, logger: logger}, nil
}

// Balance returns owner's balance of kind.
func (s *Service) Balance(ctx context.Context, owner string, kind asset.Kind) (Balance, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return Balance{}, custody.ErrInvalidParty
	}
	amount, err := s.bank.BalanceOf(ctx, owner, kind)
	if err != nil {
		return Balance{}, err
	}
	return Balance{
		Owner:       owner,
		Kind:        kind,
		AccountCode: asset.AccountCode(owner, kind),
		Amount:      amount,
		AsOf:        time.Now().UTC(),
	}, nil
}

// Fund credits owner's balance from the treasury. Replaying a ClientTxID
// returns ledger.ErrDuplicateTransaction.
func (s *Service) Fund(ctx context.Context, input FundInput) (FundResult, error) {
	owner := strings.TrimSpace(input.Owner)
	if owner == "" {
		return FundResult{}, custody.ErrInvalidParty
	}
	if !input.Kind.Valid() {
		return FundResult{}, fmt.Errorf("%w: %q", custody.ErrInvalidAssetKind, input.Kind)
	}
	if input.Amount == 0 || input.Amount > math.MaxInt64 {
		return FundResult{}, custody.ErrInvalidAmount
	}
	if input.ClientTxID == "" {
		input.ClientTxID = uuid.NewString()
	}

	code := asset.AccountCode(owner, input.Kind)
	if err := s.ledger.EnsureAccount(ctx, code); err != nil {
		return FundResult{}, err
	}
	res, err := s.ledger.Transfer(ctx, ledger.TreasuryAccountCode, code, postingKindFund, "fund:"+code+":"+input.ClientTxID, int64(input.Amount))
	if err != nil {
		if !errors.Is(err, ledger.ErrDuplicateTransaction) {
			s.logger.Error("treasury funding failed", slog.String("owner", owner), slog.Any("error", err))
		}
		return FundResult{}, err
	}

	s.logger.Info("balance funded",
		slog.String("owner", owner),
		slog.String("kind", string(input.Kind)),
		slog.Uint64("amount", input.Amount),
		slog.String("transaction_id", res.TransactionID),
	)
	return FundResult{
		TransactionID: res.TransactionID,
		Balance:       uint64(res.ToBalance),
		CompletedAt:   time.Now().UTC(),
	}, nil
}
