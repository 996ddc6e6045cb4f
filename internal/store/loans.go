package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/erazemk/knjiznica/internal/model"
)

const loanColumns = `l.id, l.user_id, l.copy_id, l.loan_date, l.due_date, l.return_date,
	l.status, l.renewals, c.copy_code, c.book_id, b.title, u.email`

const loanJoins = ` FROM loans l
	JOIN book_copies c ON c.id = l.copy_id
	JOIN books b ON b.id = c.book_id
	JOIN users u ON u.id = l.user_id`

// LoanFilter narrows ListLoans. OverdueAt, when set, selects loans that are
// overdue or still active past their due date at that instant.
type LoanFilter struct {
	Status    model.LoanStatus
	UserID    int64
	OverdueAt time.Time
}

// CreateLoan records a new active loan.
func CreateLoan(ctx context.Context, q Querier, userID, copyID int64, loanDate, dueDate time.Time) (*model.Loan, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO loans (user_id, copy_id, loan_date, due_date, status) VALUES (?, ?, ?, ?, 'active')`,
		userID, copyID, loanDate.UTC(), dueDate.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating loan: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting loan id: %w", err)
	}

	return GetLoan(ctx, q, id)
}

// GetLoan returns a loan by ID with its copy, book and borrower details.
func GetLoan(ctx context.Context, q Querier, id int64) (*model.Loan, error) {
	l, err := scanLoan(q.QueryRowContext(ctx,
		`SELECT `+loanColumns+loanJoins+` WHERE l.id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting loan: %w", err)
	}
	return l, nil
}

// ListLoans returns a page of loans matching the filter, newest first.
func ListLoans(ctx context.Context, q Querier, f LoanFilter, p Page) ([]model.Loan, Pagination, error) {
	p = p.normalize()

	ds := dialect.From(goqu.T("loans").As("l")).Prepared(true).
		Join(goqu.T("book_copies").As("c"), goqu.On(goqu.I("c.id").Eq(goqu.I("l.copy_id")))).
		Join(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("c.book_id")))).
		Join(goqu.T("users").As("u"), goqu.On(goqu.I("u.id").Eq(goqu.I("l.user_id"))))

	if f.Status != "" {
		ds = ds.Where(goqu.I("l.status").Eq(f.Status))
	}
	if f.UserID != 0 {
		ds = ds.Where(goqu.I("l.user_id").Eq(f.UserID))
	}
	if !f.OverdueAt.IsZero() {
		ds = ds.Where(goqu.Or(
			goqu.I("l.status").Eq(model.LoanOverdue),
			goqu.And(
				goqu.I("l.status").Eq(model.LoanActive),
				goqu.I("l.due_date").Lt(f.OverdueAt.UTC()),
			),
		))
	}

	total, err := count(ctx, q, ds)
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("counting loans: %w", err)
	}

	query, args, err := ds.Select(goqu.L(loanColumns)).
		Order(goqu.I("l.loan_date").Desc(), goqu.I("l.id").Desc()).
		Limit(uint(p.Limit)).Offset(p.offset()).ToSQL()
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("building loan list: %w", err)
	}

	loans, err := queryLoans(ctx, q, query, args...)
	if err != nil {
		return nil, Pagination{}, err
	}
	return loans, newPagination(p, total), nil
}

// CountUnresolvedLoans returns how many copies the user currently holds.
func CountUnresolvedLoans(ctx context.Context, q Querier, userID int64) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM loans WHERE user_id = ? AND status IN ('active', 'overdue')`, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting loans: %w", err)
	}
	return n, nil
}

// MarkLoanReturned closes a loan at the given time.
func MarkLoanReturned(ctx context.Context, q Querier, id int64, at time.Time) error {
	_, err := q.ExecContext(ctx,
		`UPDATE loans SET status = 'returned', return_date = ? WHERE id = ?`, at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("returning loan: %w", err)
	}
	return nil
}

// SetLoanStatus sets a loan's status.
func SetLoanStatus(ctx context.Context, q Querier, id int64, status model.LoanStatus) error {
	_, err := q.ExecContext(ctx, `UPDATE loans SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("setting loan status: %w", err)
	}
	return nil
}

// ExtendLoan moves the due date, counts the renewal and re-arms the due-soon
// reminder.
func ExtendLoan(ctx context.Context, q Querier, id int64, dueDate time.Time) error {
	_, err := q.ExecContext(ctx,
		`UPDATE loans SET due_date = ?, renewals = renewals + 1, reminded_at = NULL WHERE id = ?`,
		dueDate.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("extending loan: %w", err)
	}
	return nil
}

// ListActivePastDue returns active loans whose due date is before now.
func ListActivePastDue(ctx context.Context, q Querier, now time.Time) ([]model.Loan, error) {
	return queryLoans(ctx, q,
		`SELECT `+loanColumns+loanJoins+`
		 WHERE l.status = 'active' AND l.due_date < ? ORDER BY l.due_date, l.id`, now.UTC(),
	)
}

// MarkLoanOverdue flips an active loan to overdue. It reports false when the
// loan was no longer active.
func MarkLoanOverdue(ctx context.Context, q Querier, id int64) (bool, error) {
	result, err := q.ExecContext(ctx,
		`UPDATE loans SET status = 'overdue' WHERE id = ? AND status = 'active'`, id,
	)
	if err != nil {
		return false, fmt.Errorf("marking loan overdue: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("marking loan overdue: %w", err)
	}
	return n == 1, nil
}

// ListDueSoon returns active, not yet reminded loans due in (from, until].
func ListDueSoon(ctx context.Context, q Querier, from, until time.Time) ([]model.Loan, error) {
	return queryLoans(ctx, q,
		`SELECT `+loanColumns+loanJoins+`
		 WHERE l.status = 'active' AND l.reminded_at IS NULL AND l.due_date > ? AND l.due_date <= ?
		 ORDER BY l.due_date, l.id`, from.UTC(), until.UTC(),
	)
}

// MarkReminded records that the due-soon reminder for a loan was sent.
func MarkReminded(ctx context.Context, q Querier, id int64, at time.Time) error {
	_, err := q.ExecContext(ctx, `UPDATE loans SET reminded_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("marking loan reminded: %w", err)
	}
	return nil
}

func queryLoans(ctx context.Context, q Querier, query string, args ...any) ([]model.Loan, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing loans: %w", err)
	}
	defer rows.Close()

	var loans []model.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning loan: %w", err)
		}
		loans = append(loans, *l)
	}
	return loans, rows.Err()
}

func scanLoan(row rowScanner) (*model.Loan, error) {
	l := &model.Loan{}
	var returned sql.NullTime
	if err := row.Scan(&l.ID, &l.UserID, &l.CopyID, &l.LoanDate, &l.DueDate, &returned,
		&l.Status, &l.Renewals, &l.CopyCode, &l.BookID, &l.BookTitle, &l.UserEmail); err != nil {
		return nil, err
	}
	if returned.Valid {
		t := returned.Time
		l.ReturnDate = &t
	}
	return l, nil
}
