package model

import "time"

// Payment is an immutable settlement record against a fine.
type Payment struct {
	ID         int64         `json:"id"`
	FineID     int64         `json:"fine_id"`
	Amount     int64         `json:"amount"`
	Method     PaymentMethod `json:"method"`
	Notes      string        `json:"notes,omitempty"`
	PaidAt     time.Time     `json:"paid_at"`
	RecordedBy *int64        `json:"recorded_by,omitempty"`

	// Joined fields (not always populated).
	UserID    int64  `json:"user_id,omitempty"`
	LoanID    int64  `json:"loan_id,omitempty"`
	BookTitle string `json:"book_title,omitempty"`
}

// PaymentMethod is how a payment was made.
type PaymentMethod string

// Payment methods.
const (
	MethodCash       PaymentMethod = "cash"
	MethodCreditCard PaymentMethod = "credit_card"
	MethodDebitCard  PaymentMethod = "debit_card"
	MethodTransfer   PaymentMethod = "transfer"
	MethodEWallet    PaymentMethod = "e_wallet"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodCreditCard, MethodDebitCard, MethodTransfer, MethodEWallet:
		return true
	}
	return false
}
