package domain

import "time"

// LoanStage is the derived position of a producer in the loan lifecycle.
type LoanStage string

// Loan lifecycle stages. Expiry and maturity are computed, never stored.
const (
	StageIdle           LoanStage = "idle"
	StageFundingOpen    LoanStage = "funding_open"
	StageFundingExpired LoanStage = "funding_expired"
	StageDisbursed      LoanStage = "disbursed"
	StageMatured        LoanStage = "matured"
)

// FundingDeadline returns the end of the open funding round, if any.
func (p Producer) FundingDeadline() (time.Time, bool) {
	if p.FundingRoundStartTime == nil || p.TimeForFundingRoundToExpire == nil {
		return time.Time{}, false
	}
	return p.FundingRoundStartTime.Add(*p.TimeForFundingRoundToExpire), true
}

// MaturityDate returns when the disbursed loan matures, if one was disbursed.
func (p Producer) MaturityDate() (time.Time, bool) {
	if p.LoanStartTime == nil || p.LoanMaturity == nil {
		return time.Time{}, false
	}
	return p.LoanStartTime.Add(*p.LoanMaturity), true
}

// LoanStage derives the lifecycle stage at now.
func (p Producer) LoanStage(now time.Time) LoanStage {
	if p.Loaned {
		if due, ok := p.MaturityDate(); ok && !now.Before(due) {
			return StageMatured
		}
		return StageDisbursed
	}
	if deadline, ok := p.FundingDeadline(); ok {
		if !now.Before(deadline) {
			return StageFundingExpired
		}
		return StageFundingOpen
	}
	return StageIdle
}

// RemainingSeconds returns whole seconds from now until deadline, saturating at zero.
func RemainingSeconds(now, deadline time.Time) uint64 {
	if !now.Before(deadline) {
		return 0
	}
	return uint64(deadline.Sub(now) / time.Second)
}
