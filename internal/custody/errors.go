package custody

import (
	"errors"

	"github.com/congo-pay/timelock/internal/asset"
)

// Validation errors are caller-correctable and raised before any state changes.
var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidDuration     = errors.New("invalid duration")
	ErrInvalidCliff        = errors.New("invalid cliff")
	ErrAmountNotDivisible  = errors.New("amount not divisible by number of periods")
	ErrDuplicateCommitment = errors.New("duplicate commitment")
	ErrInvalidCommitment   = errors.New("invalid commitment")
	ErrInvalidAssetKind    = asset.ErrInvalidKind
	ErrInvalidKey          = errors.New("invalid record key")
	ErrInvalidParty        = errors.New("invalid party")
)

// ErrUnauthorized is returned when the caller does not hold the role an
// operation requires.
var ErrUnauthorized = errors.New("unauthorized")

// State errors: the record's current state forbids the transition.
var (
	ErrAlreadyPaused     = errors.New("already paused")
	ErrAlreadyActive     = errors.New("already active")
	ErrAlreadyClaimed    = errors.New("already claimed")
	ErrLinkExpired       = errors.New("link expired")
	ErrNothingToWithdraw = errors.New("nothing to withdraw")
	ErrLinkNotFound      = errors.New("link not found")
	ErrStreamNotFound    = errors.New("stream not found")
	ErrScheduleNotFound  = errors.New("vesting schedule not found")
)

// ErrInsufficientBalance is returned when the owner cannot fund an escrow.
var ErrInsufficientBalance = asset.ErrInsufficientBalance

// Class groups errors by who can fix them.
type Class int

const (
	ClassInternal Class = iota
	ClassValidation
	ClassAuthorization
	ClassNotFound
	ClassState
	ClassFunds
)

func (c Class) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassAuthorization:
		return "authorization"
	case ClassNotFound:
		return "not_found"
	case ClassState:
		return "state"
	case ClassFunds:
		return "funds"
	default:
		return "internal"
	}
}

// Classify reports the class of err. Unknown errors are internal.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassInternal
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidDuration),
		errors.Is(err, ErrInvalidCliff),
		errors.Is(err, ErrAmountNotDivisible),
		errors.Is(err, ErrDuplicateCommitment),
		errors.Is(err, ErrInvalidCommitment),
		errors.Is(err, ErrInvalidAssetKind),
		errors.Is(err, ErrInvalidKey),
		errors.Is(err, ErrInvalidParty),
		errors.Is(err, asset.ErrInvalidAmount):
		return ClassValidation
	case errors.Is(err, ErrUnauthorized):
		return ClassAuthorization
	case errors.Is(err, ErrLinkNotFound),
		errors.Is(err, ErrStreamNotFound),
		errors.Is(err, ErrScheduleNotFound):
		return ClassNotFound
	case errors.Is(err, ErrAlreadyPaused),
		errors.Is(err, ErrAlreadyActive),
		errors.Is(err, ErrAlreadyClaimed),
		errors.Is(err, ErrLinkExpired),
		errors.Is(err, ErrNothingToWithdraw):
		return ClassState
	case errors.Is(err, ErrInsufficientBalance):
		return ClassFunds
	default:
		return ClassInternal
	}
}
