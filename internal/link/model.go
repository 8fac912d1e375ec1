// Package link implements one-time link transfers: escrowed funds released to
// whoever presents the commitment before the link expires.
package link

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"

	"github.com/congo-pay/timelock/internal/asset"
	"github.com/congo-pay/timelock/internal/custody"
)

// CommitmentSize is the length of a link commitment in bytes.
const CommitmentSize = 32

// Commitment gates the release of a link transfer. It is a bearer token:
// presenting it is the only check made at claim time.
type Commitment [CommitmentSize]byte

// ParseCommitment decodes a hex encoded commitment.
func ParseCommitment(s string) (Commitment, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return Commitment{}, fmt.Errorf("%w: %v", custody.ErrInvalidCommitment, err)
	}
	return CommitmentFromBytes(raw)
}

// CommitmentFromBytes copies raw into a Commitment.
func CommitmentFromBytes(raw []byte) (Commitment, error) {
	var c Commitment
	if len(raw) != CommitmentSize {
		return c, fmt.Errorf("%w: want %d bytes, got %d", custody.ErrInvalidCommitment, CommitmentSize, len(raw))
	}
	copy(c[:], raw)
	return c, nil
}

// CommitmentFor derives the commitment of an off-chain secret with SHA3-256.
func CommitmentFor(secret []byte) Commitment {
	return Commitment(sha3.Sum256(secret))
}

// NewSecret returns 32 random bytes suitable for CommitmentFor.
func NewSecret() ([]byte, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	return secret, nil
}

func (c Commitment) String() string { return hex.EncodeToString(c[:]) }

// Fingerprint identifies the commitment without revealing it.
func (c Commitment) Fingerprint() string {
	sum := sha3.Sum256(c[:])
	return hex.EncodeToString(sum[:16])
}

// Short is a log-safe prefix of the commitment. The full value claims the link.
func (c Commitment) Short() string { return hex.EncodeToString(c[:4]) + "..." }

// Key addresses a link within its sender's table.
type Key struct {
	Sender     string
	Commitment Commitment
}

func (k Key) String() string { return k.Sender + "/" + k.Commitment.String() }

// LogValue keeps the full commitment out of logs.
func (k Key) LogValue() slog.Value {
	return slog.StringValue(k.Sender + "/" + k.Commitment.Short())
}

// Transfer is a single-use link. A claimed transfer stays behind as a drained
// tombstone so the commitment cannot be claimed or reused again.
type Transfer struct {
	// ID tags the ledger postings of this incarnation of the key.
	ID         uuid.UUID
	Sender     string
	Kind       asset.Kind
	Amount     uint64
	Commitment Commitment
	CreatedAt  int64
	ExpiresAt  int64
	Claimed    bool
	Claimer    string
	Escrow     asset.Escrowed
}

// Key returns the lookup key of t.
func (t Transfer) Key() Key { return Key{Sender: t.Sender, Commitment: t.Commitment} }

// Clone returns a copy that shares no escrow state with t.
func (t Transfer) Clone() Transfer {
	if t.Escrow != nil {
		t.Escrow = t.Escrow.Clone()
	}
	return t
}

// Expired reports whether t can no longer be claimed at now.
func (t Transfer) Expired(now int64) bool { return now > t.ExpiresAt }

// Status is open, claimed or expired.
func Status(t Transfer, now int64) string {
	switch {
	case t.Claimed:
		return "claimed"
	case t.Expired(now):
		return "expired"
	default:
		return "open"
	}
}
