package ledger

import (
	"context"
	"fmt"

	"github.com/erazemk/knjiznica/internal/model"
	"github.com/erazemk/knjiznica/internal/store"
)

// CreateFineInput is an admin-issued fine.
type CreateFineInput struct {
	LoanID int64
	Amount int64
	Reason model.FineReason
	Notes  string
}

// UpdateFineInput changes an open fine. Zero values leave a field unchanged;
// Notes is replaced when non-nil.
type UpdateFineInput struct {
	FineID      int64
	AmountTotal int64
	Reason      model.FineReason
	Notes       *string
}

// CalculateFine issues the late fine for an overdue or returned loan. If the
// loan already has a fine it is returned unchanged with created false. A nil
// fine means the loan is not late.
func (l *Ledger) CalculateFine(ctx context.Context, loanID int64) (fine *model.Fine, created bool, err error) {
	err = l.run(ctx, func(t *txn) error {
		loan, err := store.GetLoan(ctx, t, loanID)
		if err != nil {
			return err
		}
		if loan == nil {
			return ErrLoanNotFound
		}

		fine, err = store.GetFineByLoan(ctx, t, loan.ID)
		if err != nil || fine != nil {
			return err
		}

		if loan.Status != model.LoanOverdue && loan.Status != model.LoanReturned {
			return ErrLoanNotOverdue
		}

		at := l.Now()
		if loan.ReturnDate != nil {
			at = *loan.ReturnDate
		}
		fee := l.Rules.LateFee(loan.DueDate, at)
		if fee == 0 {
			return nil
		}

		fine, err = store.CreateFine(ctx, t, store.NewFine{
			LoanID: loan.ID,
			UserID: loan.UserID,
			Amount: fee,
			Reason: model.ReasonLate,
			Notes:  fmt.Sprintf("%d days late", DaysLate(loan.DueDate, at)),
			At:     l.Now(),
		})
		if err != nil {
			return err
		}
		created = true
		t.publish(fineIssued(fine, loan.BookTitle))
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return fine, created, nil
}

// CreateFine issues a fine for a loan that has none.
func (l *Ledger) CreateFine(ctx context.Context, in CreateFineInput) (*model.Fine, error) {
	if in.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if !in.Reason.Valid() {
		return nil, ErrInvalidReason
	}

	var fine *model.Fine
	err := l.run(ctx, func(t *txn) error {
		loan, err := store.GetLoan(ctx, t, in.LoanID)
		if err != nil {
			return err
		}
		if loan == nil {
			return ErrLoanNotFound
		}

		existing, err := store.GetFineByLoan(ctx, t, loan.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrFineAlreadyExists
		}

		fine, err = store.CreateFine(ctx, t, store.NewFine{
			LoanID: loan.ID,
			UserID: loan.UserID,
			Amount: in.Amount,
			Reason: in.Reason,
			Notes:  in.Notes,
			At:     l.Now(),
		})
		if store.IsUniqueViolation(err) {
			return ErrFineAlreadyExists
		}
		if err != nil {
			return err
		}

		t.publish(fineIssued(fine, loan.BookTitle))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fine, nil
}

// UpdateFine changes the total, reason or notes of an open fine and derives
// its status again.
func (l *Ledger) UpdateFine(ctx context.Context, in UpdateFineInput) (*model.Fine, error) {
	if in.AmountTotal < 0 {
		return nil, ErrInvalidAmount
	}
	if in.Reason != "" && !in.Reason.Valid() {
		return nil, ErrInvalidReason
	}

	var fine *model.Fine
	err := l.run(ctx, func(t *txn) error {
		current, err := store.GetFine(ctx, t, in.FineID)
		if err != nil {
			return err
		}
		if current == nil {
			return ErrFineNotFound
		}
		if current.Status.Settled() {
			return ErrFineFinalized
		}

		total := current.AmountTotal
		if in.AmountTotal > 0 {
			total = in.AmountTotal
		}
		if total < current.AmountPaid {
			return ErrInvalidAmount.withMessage("amount cannot be less than the %d already paid", current.AmountPaid)
		}
		reason := current.Reason
		if in.Reason != "" {
			reason = in.Reason
		}
		notes := current.Notes
		if in.Notes != nil {
			notes = *in.Notes
		}

		status := model.SettlementStatus(current.AmountPaid, total)
		if err := store.UpdateFineTerms(ctx, t, current.ID, total, reason, notes, status, l.Now()); err != nil {
			return err
		}

		fine, err = store.GetFine(ctx, t, current.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return fine, nil
}

// WaiveFine forgives an open fine. Waiving is terminal.
func (l *Ledger) WaiveFine(ctx context.Context, fineID int64, notes string) (*model.Fine, error) {
	var fine *model.Fine

	err := l.run(ctx, func(t *txn) error {
		current, err := store.GetFine(ctx, t, fineID)
		if err != nil {
			return err
		}
		if current == nil {
			return ErrFineNotFound
		}
		if current.Status.Settled() {
			return ErrFineFinalized
		}

		if err := store.WaiveFine(ctx, t, current.ID, notes, l.Now()); err != nil {
			return err
		}

		fine, err = store.GetFine(ctx, t, current.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return fine, nil
}
