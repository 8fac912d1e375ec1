// Package asset models the two asset kinds the escrow ledgers hold and the
// handles through which escrowed funds are moved.
package asset

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidKind is returned for an unknown asset kind.
	ErrInvalidKind = errors.New("invalid asset kind")
	// ErrInvalidAmount is returned for zero amounts or amounts the ledger cannot represent.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInsufficientBalance is returned when an account cannot fund a withdrawal.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrEscrowShortfall is returned when more is requested than an escrow holds.
	ErrEscrowShortfall = errors.New("escrow holds less than requested")
	// ErrBadCapability is returned when released funds do not carry a valid capability.
	ErrBadCapability = errors.New("capability does not authorize store")
)

// Kind distinguishes the legacy single-owner coin balance from the shared-store
// fungible asset.
type Kind string

const (
	KindCoin     Kind = "coin"
	KindFungible Kind = "fungible"
)

// CoinPoolAccount holds every directly escrowed coin quantity.
const CoinPoolAccount = "escrow:coin"

const fungibleStorePrefix = "escrow:fungible:"

// ParseKind validates s as an asset kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
	return k, nil
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindCoin || k == KindFungible
}

// AccountCode returns the ledger account holding owner's balance of kind.
func AccountCode(owner string, kind Kind) string {
	return string(kind) + ":" + owner
}

// Fungible is value released from an escrow and not yet deposited anywhere.
// Only a Bank can land it in an account.
type Fungible struct {
	Kind       Kind
	Source     string
	Capability string
	Amount     uint64
}

// Escrowed is the handle a custody record holds over its funds.
type Escrowed interface {
	Kind() Kind
	Value() uint64
	// Withdraw takes exactly amount out of the escrow.
	Withdraw(amount uint64) (Fungible, error)
	// DrainAll empties the escrow, absorbing any rounding dust.
	DrainAll() Fungible
	Clone() Escrowed
}

// Direct is a coin quantity owned outright by the record.
type Direct struct {
	balance uint64
}

// NewDirect wraps balance as a directly held coin quantity.
func NewDirect(balance uint64) *Direct {
	return &Direct{balance: balance}
}

func (d *Direct) Kind() Kind    { return KindCoin }
func (d *Direct) Value() uint64 { return d.balance }

func (d *Direct) Withdraw(amount uint64) (Fungible, error) {
	if amount > d.balance {
		return Fungible{}, ErrEscrowShortfall
	}
	d.balance -= amount
	return Fungible{Kind: KindCoin, Source: CoinPoolAccount, Amount: amount}, nil
}

func (d *Direct) DrainAll() Fungible {
	out := Fungible{Kind: KindCoin, Source: CoinPoolAccount, Amount: d.balance}
	d.balance = 0
	return out
}

func (d *Direct) Clone() Escrowed {
	return &Direct{balance: d.balance}
}

// DelegatedStore references a program-controlled ledger sub-account together
// with the capability needed to move funds out of it.
type DelegatedStore struct {
	store      string
	capability string
	balance    uint64
}

// NewDelegatedStore rebuilds a handle over an existing sub-account.
func NewDelegatedStore(store, capability string, balance uint64) *DelegatedStore {
	return &DelegatedStore{store: store, capability: capability, balance: balance}
}

func (s *DelegatedStore) Kind() Kind         { return KindFungible }
func (s *DelegatedStore) Value() uint64      { return s.balance }
func (s *DelegatedStore) Store() string      { return s.store }
func (s *DelegatedStore) Capability() string { return s.capability }

func (s *DelegatedStore) Withdraw(amount uint64) (Fungible, error) {
	if amount > s.balance {
		return Fungible{}, ErrEscrowShortfall
	}
	s.balance -= amount
	return s.release(amount), nil
}

func (s *DelegatedStore) DrainAll() Fungible {
	out := s.release(s.balance)
	s.balance = 0
	return out
}

func (s *DelegatedStore) Clone() Escrowed {
	c := *s
	return &c
}

func (s *DelegatedStore) release(amount uint64) Fungible {
	return Fungible{Kind: KindFungible, Source: s.store, Capability: s.capability, Amount: amount}
}

// Snapshot is the storable form of an Escrowed handle.
type Snapshot struct {
	Kind       Kind
	Balance    uint64
	Store      string
	Capability string
}

// Snap flattens e for persistence.
func Snap(e Escrowed) Snapshot {
	switch h := e.(type) {
	case *DelegatedStore:
		return Snapshot{Kind: KindFungible, Balance: h.balance, Store: h.store, Capability: h.capability}
	case nil:
		return Snapshot{}
	default:
		return Snapshot{Kind: e.Kind(), Balance: e.Value()}
	}
}

// Restore rebuilds the handle described by s.
func Restore(s Snapshot) (Escrowed, error) {
	switch s.Kind {
	case KindCoin:
		return NewDirect(s.Balance), nil
	case KindFungible:
		if s.Store == "" {
			return nil, fmt.Errorf("restore fungible escrow: missing store")
		}
		return NewDelegatedStore(s.Store, s.Capability, s.Balance), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, s.Kind)
	}
}
