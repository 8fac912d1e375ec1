// Package accrual converts rates, elapsed time and caps into released amounts.
//
// Every product of a rate and a duration is formed in arbitrary width
// (cosmossdk.io/math.Uint) and narrowed to uint64 only after it has been capped,
// so no intermediate can wrap.
package accrual

import (
	"errors"
	"fmt"
	"math"
	"strings"

	sdkmath "cosmossdk.io/math"
)

var (
	// ErrZeroDuration is returned when a schedule would have no length.
	ErrZeroDuration = errors.New("duration must be positive")
	// ErrZeroAmount is returned when a schedule would release nothing.
	ErrZeroAmount = errors.New("amount must be positive")
	// ErrOverflow is returned when a derived amount does not fit in 64 bits.
	ErrOverflow = errors.New("amount overflows 64 bits")
	// ErrInvalidInterval is returned for an unknown rate interval.
	ErrInvalidInterval = errors.New("invalid interval")
)

var maxUint64 = sdkmath.NewUint(math.MaxUint64)

// Interval is the unit a per-interval rate is quoted in, in seconds.
type Interval uint64

const (
	Hour  Interval = 3600
	Day   Interval = 86400
	Week  Interval = 604800
	Month Interval = 2592000
)

// ParseInterval accepts hour, day, week or month.
func ParseInterval(s string) (Interval, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hour", "hourly":
		return Hour, nil
	case "day", "daily":
		return Day, nil
	case "week", "weekly":
		return Week, nil
	case "month", "monthly":
		return Month, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidInterval, s)
	}
}

func (i Interval) Seconds() uint64 { return uint64(i) }

func (i Interval) String() string {
	switch i {
	case Hour:
		return "hour"
	case Day:
		return "day"
	case Week:
		return "week"
	case Month:
		return "month"
	default:
		return fmt.Sprintf("%ds", uint64(i))
	}
}

// RateFromTotal returns floor(total / duration) per second.
func RateFromTotal(total, duration uint64) (sdkmath.Uint, error) {
	if duration == 0 {
		return sdkmath.ZeroUint(), ErrZeroDuration
	}
	if total == 0 {
		return sdkmath.ZeroUint(), ErrZeroAmount
	}
	return sdkmath.NewUint(total / duration), nil
}

// TotalFromRate derives a schedule from a per-interval rate:
// total = floor(perInterval * duration / interval) and
// rate = floor(perInterval / interval) per second.
func TotalFromRate(perInterval uint64, interval Interval, duration uint64) (uint64, sdkmath.Uint, error) {
	if interval == 0 {
		return 0, sdkmath.ZeroUint(), ErrInvalidInterval
	}
	if duration == 0 {
		return 0, sdkmath.ZeroUint(), ErrZeroDuration
	}
	total := sdkmath.NewUint(perInterval).
		Mul(sdkmath.NewUint(duration)).
		Quo(sdkmath.NewUint(interval.Seconds()))
	if total.IsZero() {
		return 0, sdkmath.ZeroUint(), ErrZeroAmount
	}
	if total.GT(maxUint64) {
		return 0, sdkmath.ZeroUint(), ErrOverflow
	}
	return total.Uint64(), sdkmath.NewUint(perInterval / interval.Seconds()), nil
}

// Streamed returns min(limit, rate*elapsed).
func Streamed(rate sdkmath.Uint, elapsed, limit uint64) uint64 {
	if elapsed == 0 || rate.IsZero() {
		return 0
	}
	earned := rate.Mul(sdkmath.NewUint(elapsed))
	return sdkmath.MinUint(earned, sdkmath.NewUint(limit)).Uint64()
}

// StreamTerms is the accrual-relevant view of a stream.
type StreamTerms struct {
	Total         uint64
	Withdrawn     uint64
	Start         int64
	End           int64
	Cliff         int64
	Active        bool
	LastPauseTime int64
	Rate          sdkmath.Uint
}

// StreamClaimable returns what a stream's beneficiary may withdraw at now.
// A paused stream is evaluated at its pause instant, so nothing it reports
// changes until it is resumed.
func StreamClaimable(t StreamTerms, now int64) uint64 {
	effective := now
	if !t.Active && t.LastPauseTime < now {
		effective = t.LastPauseTime
	}
	if effective < t.Cliff {
		return 0
	}
	if effective >= t.End {
		return remaining(t.Total, t.Withdrawn)
	}
	if effective <= t.Start {
		return 0
	}
	earned := Streamed(t.Rate, uint64(effective-t.Start), t.Total)
	return remaining(earned, t.Withdrawn)
}

// VestingTerms is the accrual-relevant view of a periodic vesting schedule.
type VestingTerms struct {
	Total           uint64
	Withdrawn       uint64
	CliffEnd        int64
	PeriodDuration  uint64
	NumPeriods      uint64
	AmountPerPeriod uint64
}

// End is the instant every period has unlocked.
func (t VestingTerms) End() int64 {
	return t.CliffEnd + int64(t.PeriodDuration*t.NumPeriods)
}

// UnlockedPeriods returns min(numPeriods, floor((now-cliffEnd)/periodDuration)).
func UnlockedPeriods(t VestingTerms, now int64) uint64 {
	if now <= t.CliffEnd || t.PeriodDuration == 0 {
		return 0
	}
	periods := uint64(now-t.CliffEnd) / t.PeriodDuration
	if periods > t.NumPeriods {
		return t.NumPeriods
	}
	return periods
}

// VestingClaimable returns what a vesting beneficiary may claim at now.
func VestingClaimable(t VestingTerms, now int64) uint64 {
	if now < t.CliffEnd {
		return 0
	}
	if now >= t.End() {
		return remaining(t.Total, t.Withdrawn)
	}
	// periods*amountPerPeriod <= numPeriods*amountPerPeriod == total, so this cannot wrap
	unlocked := UnlockedPeriods(t, now) * t.AmountPerPeriod
	return remaining(unlocked, t.Withdrawn)
}

// PeriodsSpan returns numPeriods*periodDuration, failing when the product
// cannot be represented as a unix time offset.
func PeriodsSpan(numPeriods, periodDuration uint64) (uint64, error) {
	if numPeriods == 0 || periodDuration == 0 {
		return 0, ErrZeroDuration
	}
	span := sdkmath.NewUint(numPeriods).Mul(sdkmath.NewUint(periodDuration))
	if span.GT(sdkmath.NewUint(math.MaxInt64)) {
		return 0, ErrOverflow
	}
	return span.Uint64(), nil
}

func remaining(earned, withdrawn uint64) uint64 {
	if earned <= withdrawn {
		return 0
	}
	return earned - withdrawn
}
