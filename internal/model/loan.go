package model

import "time"

// Loan is one borrowing of one copy by one user.
type Loan struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	CopyID     int64      `json:"copy_id"`
	LoanDate   time.Time  `json:"loan_date"`
	DueDate    time.Time  `json:"due_date"`
	ReturnDate *time.Time `json:"return_date,omitempty"`
	Status     LoanStatus `json:"status"`
	Renewals   int        `json:"renewals"`

	// Joined fields (not always populated).
	CopyCode  string `json:"copy_code,omitempty"`
	BookID    int64  `json:"book_id,omitempty"`
	BookTitle string `json:"book_title,omitempty"`
	UserEmail string `json:"user_email,omitempty"`
	Fine      *Fine  `json:"fine,omitempty"`
}

// LoanStatus is the lifecycle state of a loan.
type LoanStatus string

// Loan statuses. Returned and lost are terminal.
const (
	LoanActive   LoanStatus = "active"
	LoanOverdue  LoanStatus = "overdue"
	LoanReturned LoanStatus = "returned"
	LoanLost     LoanStatus = "lost"
)

// Valid reports whether s is a known loan status.
func (s LoanStatus) Valid() bool {
	switch s {
	case LoanActive, LoanOverdue, LoanReturned, LoanLost:
		return true
	}
	return false
}

// Unresolved reports whether the loan still holds its copy.
func (s LoanStatus) Unresolved() bool {
	return s == LoanActive || s == LoanOverdue
}

// Terminal reports whether no further transitions are allowed.
func (s LoanStatus) Terminal() bool {
	return s == LoanReturned || s == LoanLost
}
