package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/erazemk/knjiznica/internal/model"
)

const fineColumns = `id, loan_id, user_id, amount_total, amount_paid, status, reason, notes, created_at, updated_at`

// NewFine is the data needed to issue a fine.
type NewFine struct {
	LoanID int64
	UserID int64
	Amount int64
	Reason model.FineReason
	Notes  string
	At     time.Time
}

// FineFilter narrows ListFines.
type FineFilter struct {
	Status model.FineStatus
	UserID int64
	Reason model.FineReason
}

// FineBucket is a count and sum over a group of fines.
type FineBucket struct {
	Count  int   `json:"count"`
	Amount int64 `json:"amount"`
}

// FineStats summarises all fines.
type FineStats struct {
	Unpaid FineBucket   `json:"unpaid"`
	Paid   FineBucket   `json:"paid"`
	Waived FineBucket   `json:"waived"`
	Recent []model.Fine `json:"recent"`
}

// CreateFine issues an unpaid fine.
func CreateFine(ctx context.Context, q Querier, nf NewFine) (*model.Fine, error) {
	at := nf.At.UTC()
	result, err := q.ExecContext(ctx,
		`INSERT INTO fines (loan_id, user_id, amount_total, amount_paid, status, reason, notes, created_at, updated_at)
		 VALUES (?, ?, ?, 0, 'unpaid', ?, ?, ?, ?)`,
		nf.LoanID, nf.UserID, nf.Amount, nf.Reason, nullString(nf.Notes), at, at,
	)
	if err != nil {
		return nil, fmt.Errorf("creating fine: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting fine id: %w", err)
	}

	return GetFine(ctx, q, id)
}

// GetFine returns a fine by ID.
func GetFine(ctx context.Context, q Querier, id int64) (*model.Fine, error) {
	f, err := scanFine(q.QueryRowContext(ctx,
		`SELECT `+fineColumns+` FROM fines WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting fine: %w", err)
	}
	return f, nil
}

// GetFineByLoan returns the fine attached to a loan, if any.
func GetFineByLoan(ctx context.Context, q Querier, loanID int64) (*model.Fine, error) {
	f, err := scanFine(q.QueryRowContext(ctx,
		`SELECT `+fineColumns+` FROM fines WHERE loan_id = ?`, loanID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting fine by loan: %w", err)
	}
	return f, nil
}

// ListFines returns a page of fines matching the filter, newest first.
func ListFines(ctx context.Context, q Querier, f FineFilter, p Page) ([]model.Fine, Pagination, error) {
	p = p.normalize()

	ds := dialect.From("fines").Prepared(true)
	if f.Status != "" {
		ds = ds.Where(goqu.C("status").Eq(f.Status))
	}
	if f.UserID != 0 {
		ds = ds.Where(goqu.C("user_id").Eq(f.UserID))
	}
	if f.Reason != "" {
		ds = ds.Where(goqu.C("reason").Eq(f.Reason))
	}

	total, err := count(ctx, q, ds)
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("counting fines: %w", err)
	}

	query, args, err := ds.Select(goqu.L(fineColumns)).
		Order(goqu.C("created_at").Desc(), goqu.C("id").Desc()).
		Limit(uint(p.Limit)).Offset(p.offset()).ToSQL()
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("building fine list: %w", err)
	}

	fines, err := queryFines(ctx, q, query, args...)
	if err != nil {
		return nil, Pagination{}, err
	}
	return fines, newPagination(p, total), nil
}

// CountOutstandingFines returns how many of the user's fines are unpaid or
// partially paid.
func CountOutstandingFines(ctx context.Context, q Querier, userID int64) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM fines WHERE user_id = ? AND status IN ('unpaid', 'partial')`, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting outstanding fines: %w", err)
	}
	return n, nil
}

// ApplyFinePayment sets a fine's paid amount and status, provided amount_paid
// still equals expectedPaid. It reports false when another payment got there
// first.
func ApplyFinePayment(ctx context.Context, q Querier, id, expectedPaid, newPaid int64, status model.FineStatus, at time.Time) (bool, error) {
	result, err := q.ExecContext(ctx,
		`UPDATE fines SET amount_paid = ?, status = ?, updated_at = ?
		 WHERE id = ? AND amount_paid = ? AND status IN ('unpaid', 'partial')`,
		newPaid, status, at.UTC(), id, expectedPaid,
	)
	if err != nil {
		return false, fmt.Errorf("applying fine payment: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("applying fine payment: %w", err)
	}
	return n == 1, nil
}

// WaiveFine forgives a fine. Notes replace the existing notes when non-empty.
func WaiveFine(ctx context.Context, q Querier, id int64, notes string, at time.Time) error {
	_, err := q.ExecContext(ctx,
		`UPDATE fines SET status = 'waived', notes = COALESCE(?, notes), updated_at = ? WHERE id = ?`,
		nullString(notes), at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("waiving fine: %w", err)
	}
	return nil
}

// UpdateFineTerms rewrites a fine's total, reason, notes and derived status.
func UpdateFineTerms(ctx context.Context, q Querier, id, amountTotal int64, reason model.FineReason, notes string, status model.FineStatus, at time.Time) error {
	_, err := q.ExecContext(ctx,
		`UPDATE fines SET amount_total = ?, reason = ?, notes = ?, status = ?, updated_at = ? WHERE id = ?`,
		amountTotal, reason, nullString(notes), status, at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating fine: %w", err)
	}
	return nil
}

// FineStatistics aggregates fines by settlement state.
func FineStatistics(ctx context.Context, q Querier) (*FineStats, error) {
	s := &FineStats{}
	err := q.QueryRowContext(ctx,
		`SELECT
		    COUNT(CASE WHEN status IN ('unpaid', 'partial') THEN 1 END),
		    COALESCE(SUM(CASE WHEN status IN ('unpaid', 'partial') THEN amount_total - amount_paid END), 0),
		    COUNT(CASE WHEN status = 'paid' THEN 1 END),
		    COALESCE(SUM(CASE WHEN status = 'paid' THEN amount_paid END), 0),
		    COUNT(CASE WHEN status = 'waived' THEN 1 END),
		    COALESCE(SUM(CASE WHEN status = 'waived' THEN amount_total - amount_paid END), 0)
		 FROM fines`,
	).Scan(&s.Unpaid.Count, &s.Unpaid.Amount, &s.Paid.Count, &s.Paid.Amount, &s.Waived.Count, &s.Waived.Amount)
	if err != nil {
		return nil, fmt.Errorf("aggregating fines: %w", err)
	}

	s.Recent, err = queryFines(ctx, q,
		`SELECT `+fineColumns+` FROM fines ORDER BY created_at DESC, id DESC LIMIT 5`)
	if err != nil {
		return nil, err
	}
	if s.Recent == nil {
		s.Recent = []model.Fine{}
	}
	return s, nil
}

func queryFines(ctx context.Context, q Querier, query string, args ...any) ([]model.Fine, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing fines: %w", err)
	}
	defer rows.Close()

	var fines []model.Fine
	for rows.Next() {
		f, err := scanFine(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning fine: %w", err)
		}
		fines = append(fines, *f)
	}
	return fines, rows.Err()
}

func scanFine(row rowScanner) (*model.Fine, error) {
	f := &model.Fine{}
	var notes sql.NullString
	if err := row.Scan(&f.ID, &f.LoanID, &f.UserID, &f.AmountTotal, &f.AmountPaid,
		&f.Status, &f.Reason, &notes, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	f.Notes = notes.String
	return f, nil
}
