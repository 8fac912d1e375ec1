package stream

import (
	sdkmath "cosmossdk.io/math"

	"github.com/congo-pay/timelock/internal/accrual"
	"github.com/congo-pay/timelock/internal/custody"
)

// Stream releases its escrow continuously, one FlowRate per second, between
// StartTime and EndTime.
type Stream struct {
	custody.Schedule
	FlowRate sdkmath.Uint
}

// Clone returns a copy that shares no mutable state with s.
func (s Stream) Clone() Stream {
	s.Schedule = s.Schedule.Clone()
	return s
}

func (s Stream) terms() accrual.StreamTerms {
	return accrual.StreamTerms{
		Total:         s.TotalAmount,
		Withdrawn:     s.WithdrawnAmount,
		Start:         s.StartTime,
		End:           s.EndTime,
		Cliff:         s.CliffTime,
		Active:        s.Active,
		LastPauseTime: s.LastPauseTime,
		Rate:          s.FlowRate,
	}
}

// ClaimableAmount is what the beneficiary of s may withdraw at now.
func ClaimableAmount(s Stream, now int64) uint64 {
	return accrual.StreamClaimable(s.terms(), now)
}

// Status summarises the lifecycle state of s at now.
func Status(s Stream, now int64) string {
	switch {
	case !s.Active:
		return "paused"
	case now >= s.EndTime:
		return "ended"
	case now < s.StartTime:
		return "scheduled"
	default:
		return "active"
	}
}
