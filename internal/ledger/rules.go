package ledger

import "time"

const day = 24 * time.Hour

// Rules are the circulation policy constants. Amounts are in currency minor
// units.
type Rules struct {
	LoanPeriod     time.Duration
	RenewalPeriod  time.Duration
	MaxActiveLoans int
	LateFeePerDay  int64
	LostFee        int64
	DueSoonWindow  time.Duration
}

// DefaultRules returns the library's standard policy.
func DefaultRules() Rules {
	return Rules{
		LoanPeriod:     14 * day,
		RenewalPeriod:  7 * day,
		MaxActiveLoans: 3,
		LateFeePerDay:  1000,
		LostFee:        50000,
		DueSoonWindow:  day,
	}
}

// DaysLate returns how many days after due the instant at falls, counting a
// started day as a whole one. It is zero when at is not after due.
func DaysLate(due, at time.Time) int64 {
	if !at.After(due) {
		return 0
	}
	late := at.Sub(due)
	return int64((late + day - 1) / day)
}

// LateFee is the fine owed for returning at the given instant.
func (r Rules) LateFee(due, at time.Time) int64 {
	return DaysLate(due, at) * r.LateFeePerDay
}
