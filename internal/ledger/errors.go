package ledger

import (
	"errors"
	"fmt"
)

// Kind classifies a ledger failure for the caller.
type Kind int

// Error kinds. Internal covers anything that is not a *Error.
const (
	Internal Kind = iota
	NotFound
	Unauthorized
	InvalidState
	InvalidInput
	Conflict
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Unauthorized:
		return "unauthorized"
	case InvalidState:
		return "invalid_state"
	case InvalidInput:
		return "invalid_input"
	case Conflict:
		return "conflict"
	}
	return "internal"
}

// Error is a rule violation with a stable code and a user-facing message.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches errors by code, so a sentinel matches copies with a more
// specific message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func (e *Error) withMessage(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or Internal if err is not a ledger error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

var (
	ErrUserNotFound = &Error{NotFound, "user_not_found", "user not found"}
	ErrCopyNotFound = &Error{NotFound, "copy_not_found", "book copy not found"}
	ErrLoanNotFound = &Error{NotFound, "loan_not_found", "loan not found"}
	ErrFineNotFound = &Error{NotFound, "fine_not_found", "fine not found"}

	ErrNotLoanOwner = &Error{Unauthorized, "not_loan_owner", "you can only manage your own loans"}
	ErrNotFineOwner = &Error{Unauthorized, "not_fine_owner", "you can only pay your own fines"}

	ErrCopyUnavailable         = &Error{InvalidState, "copy_unavailable", "book copy is not available"}
	ErrOutstandingFines        = &Error{InvalidState, "outstanding_fines", "you have unpaid fines, please pay them before borrowing"}
	ErrBorrowLimitExceeded     = &Error{InvalidState, "borrow_limit_exceeded", "you have reached the maximum number of active loans"}
	ErrAlreadyReturned         = &Error{InvalidState, "already_returned", "loan has already been returned"}
	ErrLoanLost                = &Error{InvalidState, "loan_lost", "loan has been marked as lost"}
	ErrCannotRenewOverdue      = &Error{InvalidState, "cannot_renew_overdue", "overdue loans cannot be renewed, please return the book"}
	ErrUnpaidFineBlocksRenewal = &Error{InvalidState, "unpaid_fine_blocks_renewal", "loan has an unpaid fine, please pay it before renewing"}
	ErrLoanNotOverdue          = &Error{InvalidState, "loan_not_overdue", "fines can only be calculated for overdue or returned loans"}
	ErrFineAlreadyExists       = &Error{InvalidState, "fine_already_exists", "a fine already exists for this loan"}
	ErrFineFinalized           = &Error{InvalidState, "fine_finalized", "fine is already paid or waived"}

	ErrInvalidAmount    = &Error{InvalidInput, "invalid_amount", "amount must be greater than zero"}
	ErrExceedsRemaining = &Error{InvalidInput, "exceeds_remaining", "payment amount exceeds remaining balance"}
	ErrInvalidReason    = &Error{InvalidInput, "invalid_reason", "invalid fine reason"}
	ErrInvalidMethod    = &Error{InvalidInput, "invalid_method", "invalid payment method"}

	ErrPaymentConflict = &Error{Conflict, "payment_conflict", "fine was updated concurrently, please retry"}
)
