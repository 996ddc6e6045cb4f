package model

import "time"

// Fine is a monetary penalty attached to exactly one loan. Amounts are in
// currency minor units.
type Fine struct {
	ID          int64      `json:"id"`
	LoanID      int64      `json:"loan_id"`
	UserID      int64      `json:"user_id"`
	AmountTotal int64      `json:"amount_total"`
	AmountPaid  int64      `json:"amount_paid"`
	Status      FineStatus `json:"status"`
	Reason      FineReason `json:"reason"`
	Notes       string     `json:"notes,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	Payments []Payment `json:"payments,omitempty"`
}

// Remaining is the amount still owed.
func (f *Fine) Remaining() int64 {
	if f.Status == FineWaived {
		return 0
	}
	return f.AmountTotal - f.AmountPaid
}

// FineStatus is the settlement state of a fine.
type FineStatus string

// Fine statuses. Paid and waived are terminal.
const (
	FineUnpaid  FineStatus = "unpaid"
	FinePartial FineStatus = "partial"
	FinePaid    FineStatus = "paid"
	FineWaived  FineStatus = "waived"
)

// Valid reports whether s is a known fine status.
func (s FineStatus) Valid() bool {
	switch s {
	case FineUnpaid, FinePartial, FinePaid, FineWaived:
		return true
	}
	return false
}

// Settled reports whether the fine no longer blocks borrowing.
func (s FineStatus) Settled() bool {
	return s == FinePaid || s == FineWaived
}

// SettlementStatus derives a non-waived fine's status from its amounts.
func SettlementStatus(amountPaid, amountTotal int64) FineStatus {
	switch {
	case amountPaid >= amountTotal:
		return FinePaid
	case amountPaid > 0:
		return FinePartial
	default:
		return FineUnpaid
	}
}

// FineReason is why a fine was issued.
type FineReason string

// Fine reasons.
const (
	ReasonLate   FineReason = "late"
	ReasonDamage FineReason = "damage"
	ReasonLost   FineReason = "lost"
	ReasonOther  FineReason = "other"
)

// Valid reports whether r is a known reason.
func (r FineReason) Valid() bool {
	switch r {
	case ReasonLate, ReasonDamage, ReasonLost, ReasonOther:
		return true
	}
	return false
}
