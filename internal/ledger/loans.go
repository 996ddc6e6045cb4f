package ledger

import (
	"context"
	"fmt"

	"github.com/erazemk/knjiznica/internal/model"
	"github.com/erazemk/knjiznica/internal/store"
)

const dateLayout = "2006-01-02"

// BorrowInput identifies who borrows which copy.
type BorrowInput struct {
	UserID int64
	CopyID int64
}

// ReturnInput identifies a loan to close and who is closing it.
type ReturnInput struct {
	LoanID  int64
	ActorID int64
	IsAdmin bool
}

// RenewInput identifies a loan to extend and who is extending it.
type RenewInput struct {
	LoanID  int64
	ActorID int64
	IsAdmin bool
}

// Borrow lends an available copy to a user.
func (l *Ledger) Borrow(ctx context.Context, in BorrowInput) (*model.Loan, error) {
	var loan *model.Loan

	err := l.run(ctx, func(t *txn) error {
		c, err := store.GetCopy(ctx, t, in.CopyID)
		if err != nil {
			return err
		}
		if c == nil {
			return ErrCopyNotFound
		}
		if c.Status != model.CopyAvailable {
			return ErrCopyUnavailable
		}
		held, err := store.CopyHasUnresolvedLoan(ctx, t, c.ID)
		if err != nil {
			return err
		}
		if held {
			return ErrCopyUnavailable
		}

		user, err := store.GetUser(ctx, t, in.UserID)
		if err != nil {
			return err
		}
		if user == nil {
			return ErrUserNotFound
		}

		outstanding, err := store.CountOutstandingFines(ctx, t, in.UserID)
		if err != nil {
			return err
		}
		if outstanding > 0 {
			return ErrOutstandingFines
		}

		active, err := store.CountUnresolvedLoans(ctx, t, in.UserID)
		if err != nil {
			return err
		}
		if active >= l.Rules.MaxActiveLoans {
			return ErrBorrowLimitExceeded.withMessage(
				"you have reached the maximum of %d active loans", l.Rules.MaxActiveLoans)
		}

		claimed, err := store.ClaimCopy(ctx, t, c.ID)
		if err != nil {
			return err
		}
		if !claimed {
			return ErrCopyUnavailable
		}

		now := l.Now()
		loan, err = store.CreateLoan(ctx, t, in.UserID, c.ID, now, now.Add(l.Rules.LoanPeriod))
		if store.IsUniqueViolation(err) {
			return ErrCopyUnavailable
		}
		if err != nil {
			return err
		}

		t.publish(Event{
			UserID:  loan.UserID,
			Type:    model.NotifyLoanCreated,
			Title:   "Book Borrowed",
			Message: fmt.Sprintf("You borrowed %q. It is due on %s.", loan.BookTitle, loan.DueDate.Format(dateLayout)),
			Payload: map[string]any{"loan_id": loan.ID, "book_id": loan.BookID},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// Return closes a loan and issues a late fine when it comes back after its
// due date. The returned loan carries its fine, if it has one.
func (l *Ledger) Return(ctx context.Context, in ReturnInput) (*model.Loan, error) {
	var loan *model.Loan

	err := l.run(ctx, func(t *txn) error {
		current, err := l.loanForActor(ctx, t, in.LoanID, in.ActorID, in.IsAdmin)
		if err != nil {
			return err
		}
		switch current.Status {
		case model.LoanReturned:
			return ErrAlreadyReturned
		case model.LoanLost:
			return ErrLoanLost
		}

		now := l.Now()
		if err := store.MarkLoanReturned(ctx, t, current.ID, now); err != nil {
			return err
		}
		if err := store.SetCopyStatus(ctx, t, current.CopyID, model.CopyAvailable); err != nil {
			return err
		}

		fine, err := store.GetFineByLoan(ctx, t, current.ID)
		if err != nil {
			return err
		}
		if fine == nil {
			if fee := l.Rules.LateFee(current.DueDate, now); fee > 0 {
				fine, err = store.CreateFine(ctx, t, store.NewFine{
					LoanID: current.ID,
					UserID: current.UserID,
					Amount: fee,
					Reason: model.ReasonLate,
					Notes:  fmt.Sprintf("%d days late", DaysLate(current.DueDate, now)),
					At:     now,
				})
				if err != nil {
					return err
				}
				t.publish(fineIssued(fine, current.BookTitle))
			}
		}

		loan, err = store.GetLoan(ctx, t, current.ID)
		if err != nil {
			return err
		}
		loan.Fine = fine

		t.publish(Event{
			UserID:  loan.UserID,
			Type:    model.NotifyLoanReturned,
			Title:   "Book Returned",
			Message: fmt.Sprintf("You returned %q.", loan.BookTitle),
			Payload: map[string]any{"loan_id": loan.ID, "book_id": loan.BookID},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// Renew extends an active loan's due date by the renewal period.
func (l *Ledger) Renew(ctx context.Context, in RenewInput) (*model.Loan, error) {
	var loan *model.Loan

	err := l.run(ctx, func(t *txn) error {
		current, err := l.loanForActor(ctx, t, in.LoanID, in.ActorID, in.IsAdmin)
		if err != nil {
			return err
		}
		switch current.Status {
		case model.LoanReturned:
			return ErrAlreadyReturned
		case model.LoanLost:
			return ErrLoanLost
		case model.LoanOverdue:
			return ErrCannotRenewOverdue
		}
		if l.Now().After(current.DueDate) {
			return ErrCannotRenewOverdue
		}

		fine, err := store.GetFineByLoan(ctx, t, current.ID)
		if err != nil {
			return err
		}
		if fine != nil && !fine.Status.Settled() {
			return ErrUnpaidFineBlocksRenewal
		}

		if err := store.ExtendLoan(ctx, t, current.ID, current.DueDate.Add(l.Rules.RenewalPeriod)); err != nil {
			return err
		}

		loan, err = store.GetLoan(ctx, t, current.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// SweepOverdue moves every active loan past its due date to overdue and
// returns how many changed.
func (l *Ledger) SweepOverdue(ctx context.Context) (int, error) {
	var swept int

	err := l.run(ctx, func(t *txn) error {
		loans, err := store.ListActivePastDue(ctx, t, l.Now())
		if err != nil {
			return err
		}

		for _, loan := range loans {
			changed, err := store.MarkLoanOverdue(ctx, t, loan.ID)
			if err != nil {
				return err
			}
			if !changed {
				continue
			}
			swept++
			t.publish(Event{
				UserID: loan.UserID,
				Type:   model.NotifyLoanOverdue,
				Title:  "Book Overdue Notice",
				Message: fmt.Sprintf("Your loan for %q is overdue since %s. Please return it as soon as possible to avoid further fines.",
					loan.BookTitle, loan.DueDate.Format(dateLayout)),
				Payload: map[string]any{"loan_id": loan.ID, "book_id": loan.BookID},
			})
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return swept, nil
}

// RemindDueSoon notifies borrowers whose loans fall due within the reminder
// window. Each loan is reminded at most once per due date.
func (l *Ledger) RemindDueSoon(ctx context.Context) (int, error) {
	var reminded int

	err := l.run(ctx, func(t *txn) error {
		now := l.Now()
		loans, err := store.ListDueSoon(ctx, t, now, now.Add(l.Rules.DueSoonWindow))
		if err != nil {
			return err
		}

		for _, loan := range loans {
			if err := store.MarkReminded(ctx, t, loan.ID, now); err != nil {
				return err
			}
			reminded++
			t.publish(Event{
				UserID: loan.UserID,
				Type:   model.NotifyLoanDueSoon,
				Title:  "Book Due Tomorrow",
				Message: fmt.Sprintf("Your loan for %q is due on %s.",
					loan.BookTitle, loan.DueDate.Format(dateLayout)),
				Payload: map[string]any{"loan_id": loan.ID, "book_id": loan.BookID},
			})
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return reminded, nil
}

// MarkLost closes a loan as lost, takes the copy out of circulation and
// charges the replacement fee.
func (l *Ledger) MarkLost(ctx context.Context, loanID int64) (*model.Loan, error) {
	var loan *model.Loan

	err := l.run(ctx, func(t *txn) error {
		current, err := store.GetLoan(ctx, t, loanID)
		if err != nil {
			return err
		}
		if current == nil {
			return ErrLoanNotFound
		}
		switch current.Status {
		case model.LoanReturned:
			return ErrAlreadyReturned
		case model.LoanLost:
			return ErrLoanLost
		}

		existing, err := store.GetFineByLoan(ctx, t, current.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrFineAlreadyExists
		}

		fine, err := store.CreateFine(ctx, t, store.NewFine{
			LoanID: current.ID,
			UserID: current.UserID,
			Amount: l.Rules.LostFee,
			Reason: model.ReasonLost,
			Notes:  "book reported lost",
			At:     l.Now(),
		})
		if err != nil {
			return err
		}
		if err := store.SetLoanStatus(ctx, t, current.ID, model.LoanLost); err != nil {
			return err
		}
		if err := store.MarkCopyLost(ctx, t, current.CopyID); err != nil {
			return err
		}

		loan, err = store.GetLoan(ctx, t, current.ID)
		if err != nil {
			return err
		}
		loan.Fine = fine

		t.publish(fineIssued(fine, loan.BookTitle))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// loanForActor loads a loan and checks that the actor may act on it.
func (l *Ledger) loanForActor(ctx context.Context, q store.Querier, loanID, actorID int64, isAdmin bool) (*model.Loan, error) {
	loan, err := store.GetLoan(ctx, q, loanID)
	if err != nil {
		return nil, err
	}
	if loan == nil {
		return nil, ErrLoanNotFound
	}
	if !isAdmin && loan.UserID != actorID {
		return nil, ErrNotLoanOwner
	}
	return loan, nil
}

func fineIssued(f *model.Fine, bookTitle string) Event {
	return Event{
		UserID:  f.UserID,
		Type:    model.NotifyFineIssued,
		Title:   "Fine Added",
		Message: fmt.Sprintf("A fine of %d has been added for %q.", f.AmountTotal, bookTitle),
		Payload: map[string]any{"fine_id": f.ID, "loan_id": f.LoanID},
	}
}
