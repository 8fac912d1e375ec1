package asset

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/congo-pay/timelock/internal/ledger"
)

const (
	postingKindLock    = "escrow_lock"
	postingKindRelease = "escrow_release"
)

// Bank is the balance abstraction the escrow ledgers consume.
type Bank interface {
	// Withdraw moves amount out of owner's balance into a fresh escrow.
	Withdraw(ctx context.Context, owner string, kind Kind, amount uint64, ref string) (Escrowed, error)
	// Deposit lands released funds in the recipients' balances as one atomic posting.
	Deposit(ctx context.Context, ref string, payouts ...Payout) error
	BalanceOf(ctx context.Context, owner string, kind Kind) (uint64, error)
}

// Payout pairs released funds with their recipient identity.
type Payout struct {
	To    string
	Funds Fungible
}

// Vault implements Bank on top of the double-entry ledger. Coin escrows share
// the CoinPoolAccount; every fungible escrow gets its own sub-account guarded
// by an HMAC capability.
type Vault struct {
	ledger ledger.Ledger
	secret []byte
}

// NewVault builds a Vault. secret keys the capabilities issued for sub-accounts.
func NewVault(l ledger.Ledger, secret []byte) *Vault {
	return &Vault{ledger: l, secret: secret}
}

// Withdraw locks amount of owner's kind balance in escrow.
func (v *Vault) Withdraw(ctx context.Context, owner string, kind Kind, amount uint64, ref string) (Escrowed, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if amount == 0 || amount > math.MaxInt64 {
		return nil, ErrInvalidAmount
	}

	from := AccountCode(owner, kind)
	switch kind {
	case KindCoin:
		if err := v.ledger.EnsureAccount(ctx, CoinPoolAccount); err != nil {
			return nil, err
		}
		if err := v.lock(ctx, from, CoinPoolAccount, ref, amount); err != nil {
			return nil, err
		}
		return NewDirect(amount), nil
	default:
		store := fungibleStorePrefix + uuid.NewString()
		if err := v.ledger.EnsureAccount(ctx, store); err != nil {
			return nil, err
		}
		if err := v.lock(ctx, from, store, ref, amount); err != nil {
			return nil, err
		}
		return NewDelegatedStore(store, v.capability(store), amount), nil
	}
}

func (v *Vault) lock(ctx context.Context, from, to, ref string, amount uint64) error {
	_, err := v.ledger.Transfer(ctx, from, to, postingKindLock, ref, int64(amount))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ledger.ErrInsufficientFunds), errors.Is(err, ledger.ErrAccountNotFound):
		return fmt.Errorf("%s: %w", from, ErrInsufficientBalance)
	default:
		return fmt.Errorf("lock escrow: %w", err)
	}
}

// Deposit credits every payout in one ledger posting. Zero-amount payouts are skipped.
func (v *Vault) Deposit(ctx context.Context, ref string, payouts ...Payout) error {
	entries := make([]ledger.Entry, 0, 2*len(payouts))
	for _, p := range payouts {
		if p.Funds.Amount == 0 {
			continue
		}
		if err := v.authorize(p.Funds); err != nil {
			return err
		}
		to := AccountCode(p.To, p.Funds.Kind)
		if err := v.ledger.EnsureAccount(ctx, to); err != nil {
			return err
		}
		amount := int64(p.Funds.Amount)
		entries = append(entries,
			ledger.Entry{AccountCode: p.Funds.Source, Amount: -amount},
			ledger.Entry{AccountCode: to, Amount: amount},
		)
	}
	if len(entries) == 0 {
		return nil
	}
	if _, err := v.ledger.Post(ctx, postingKindRelease, ref, entries); err != nil {
		return fmt.Errorf("release escrow: %w", err)
	}
	return nil
}

// BalanceOf returns owner's balance of kind; unknown accounts hold nothing.
func (v *Vault) BalanceOf(ctx context.Context, owner string, kind Kind) (uint64, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	balance, err := v.ledger.Balance(ctx, AccountCode(owner, kind))
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if balance < 0 {
		return 0, nil
	}
	return uint64(balance), nil
}

func (v *Vault) authorize(f Fungible) error {
	switch f.Kind {
	case KindCoin:
		if f.Source != CoinPoolAccount {
			return ErrBadCapability
		}
		return nil
	case KindFungible:
		if !hmac.Equal([]byte(f.Capability), []byte(v.capability(f.Source))) {
			return ErrBadCapability
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidKind, f.Kind)
	}
}

func (v *Vault) capability(store string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(store))
	return hex.EncodeToString(mac.Sum(nil))
}
