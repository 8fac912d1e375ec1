package vesting

import (
	"github.com/congo-pay/timelock/internal/accrual"
	"github.com/congo-pay/timelock/internal/custody"
)

// Schedule unlocks AmountPerPeriod at the end of each of NumPeriods periods,
// counted from the cliff end (CliffTime).
type Schedule struct {
	custody.Schedule
	PeriodDuration  uint64
	NumPeriods      uint64
	AmountPerPeriod uint64
}

// Clone returns a copy that shares no mutable state with v.
func (v Schedule) Clone() Schedule {
	v.Schedule = v.Schedule.Clone()
	return v
}

func (v Schedule) terms() accrual.VestingTerms {
	return accrual.VestingTerms{
		Total:           v.TotalAmount,
		Withdrawn:       v.WithdrawnAmount,
		CliffEnd:        v.CliffTime,
		PeriodDuration:  v.PeriodDuration,
		NumPeriods:      v.NumPeriods,
		AmountPerPeriod: v.AmountPerPeriod,
	}
}

// ClaimableAmount is what the beneficiary of v may claim at now.
func ClaimableAmount(v Schedule, now int64) uint64 {
	return accrual.VestingClaimable(v.terms(), now)
}

// UnlockedPeriods is the number of periods fully elapsed at now.
func UnlockedPeriods(v Schedule, now int64) uint64 {
	return accrual.UnlockedPeriods(v.terms(), now)
}

// NextUnlock returns the instant the next period unlocks, or 0 once every
// period has unlocked.
func NextUnlock(v Schedule, now int64) int64 {
	n := UnlockedPeriods(v, now)
	if n >= v.NumPeriods {
		return 0
	}
	if now < v.CliffTime {
		return v.CliffTime + int64(v.PeriodDuration)
	}
	return v.CliffTime + int64((n+1)*v.PeriodDuration)
}
