// Package custody holds the record type shared by the stream and vesting
// ledgers, the error taxonomy of the escrow engine and the keyed storage
// helpers the ledgers persist through.
package custody

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/timelock/internal/asset"
)

// Namespace scopes record ids: every (owner, kind) pair counts from 0.
type Namespace struct {
	Owner string
	Kind  asset.Kind
}

// Key addresses one stream or vesting record.
type Key struct {
	Owner string
	Kind  asset.Kind
	ID    uint64
}

func (k Key) Namespace() Namespace { return Namespace{Owner: k.Owner, Kind: k.Kind} }

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%d", k.Owner, k.Kind, k.ID)
}

// ParseKey builds a Key from its path components.
func ParseKey(owner, kind, id string) (Key, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return Key{}, fmt.Errorf("%w: owner is required", ErrInvalidKey)
	}
	k, err := asset.ParseKind(kind)
	if err != nil {
		return Key{}, err
	}
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return Key{}, fmt.Errorf("%w: id %q", ErrInvalidKey, id)
	}
	return Key{Owner: owner, Kind: k, ID: n}, nil
}

// Schedule is the custody record shared by streams and vesting schedules.
// The record owns Escrow exclusively until it is destroyed.
type Schedule struct {
	Key
	Beneficiary     string
	TotalAmount     uint64
	WithdrawnAmount uint64
	StartTime       int64
	EndTime         int64
	CliffTime       int64
	Active          bool
	LastPauseTime   int64
	Escrow          asset.Escrowed
	CreatedAt       time.Time
}

// Clone returns a copy that shares no escrow state with s.
func (s Schedule) Clone() Schedule {
	if s.Escrow != nil {
		s.Escrow = s.Escrow.Clone()
	}
	return s
}

// Remaining is the part of the total not yet released to the beneficiary.
func (s Schedule) Remaining() uint64 { return s.TotalAmount - s.WithdrawnAmount }

// Exhausted reports whether every unit has reached the beneficiary.
func (s Schedule) Exhausted() bool { return s.WithdrawnAmount == s.TotalAmount }

// Authorize returns ErrUnauthorized unless caller is one of roles.
func Authorize(caller string, roles ...string) error {
	for _, r := range roles {
		if caller != "" && caller == r {
			return nil
		}
	}
	return ErrUnauthorized
}

// Settlement is the final split made when a record is cancelled.
type Settlement struct {
	ToBeneficiary uint64 `json:"to_beneficiary"`
	ToOwner       uint64 `json:"to_owner"`
}

// Params carries the administrative limits of the engine.
type Params struct {
	// MaxLinkExpiry bounds the expiry duration of a link transfer, in seconds.
	MaxLinkExpiry uint64
}

// DefaultParams allows links to live for up to 30 days.
func DefaultParams() Params {
	return Params{MaxLinkExpiry: 30 * 24 * 3600}
}

// Progress renders withdrawn/total as a percentage with two decimals.
func Progress(withdrawn, total uint64) string {
	if total == 0 {
		return "0.00"
	}
	pct := decimal.NewFromUint64(withdrawn).
		Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromUint64(total), 2)
	return pct.StringFixed(2)
}
