package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/erazemk/knjiznica/internal/model"
)

const paymentColumns = `p.id, p.fine_id, p.amount, p.method, p.notes, p.paid_at, p.recorded_by,
	f.user_id, f.loan_id, b.title`

const paymentJoins = ` FROM payments p
	JOIN fines f ON f.id = p.fine_id
	JOIN loans l ON l.id = f.loan_id
	JOIN book_copies c ON c.id = l.copy_id
	JOIN books b ON b.id = c.book_id`

// NewPayment is the data needed to record a payment.
type NewPayment struct {
	FineID     int64
	Amount     int64
	Method     model.PaymentMethod
	Notes      string
	PaidAt     time.Time
	RecordedBy int64
}

// PaymentFilter narrows ListPayments. From and To bound paid_at inclusively
// when set.
type PaymentFilter struct {
	Method model.PaymentMethod
	FineID int64
	UserID int64
	From   time.Time
	To     time.Time
}

// MethodTotal is a count and sum of payments made with one method.
type MethodTotal struct {
	Method model.PaymentMethod `json:"method"`
	Count  int                 `json:"count"`
	Amount int64               `json:"amount"`
}

// PaymentStats summarises payments in a period.
type PaymentStats struct {
	Count    int             `json:"count"`
	Amount   int64           `json:"amount"`
	ByMethod []MethodTotal   `json:"by_method"`
	Recent   []model.Payment `json:"recent"`
}

// CreatePayment records a payment against a fine.
func CreatePayment(ctx context.Context, q Querier, np NewPayment) (*model.Payment, error) {
	var recordedBy sql.NullInt64
	if np.RecordedBy != 0 {
		recordedBy = sql.NullInt64{Int64: np.RecordedBy, Valid: true}
	}

	result, err := q.ExecContext(ctx,
		`INSERT INTO payments (fine_id, amount, method, notes, paid_at, recorded_by) VALUES (?, ?, ?, ?, ?, ?)`,
		np.FineID, np.Amount, np.Method, nullString(np.Notes), np.PaidAt.UTC(), recordedBy,
	)
	if err != nil {
		return nil, fmt.Errorf("creating payment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting payment id: %w", err)
	}

	return GetPayment(ctx, q, id)
}

// GetPayment returns a payment by ID.
func GetPayment(ctx context.Context, q Querier, id int64) (*model.Payment, error) {
	p, err := scanPayment(q.QueryRowContext(ctx,
		`SELECT `+paymentColumns+paymentJoins+` WHERE p.id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting payment: %w", err)
	}
	return p, nil
}

// ListPaymentsForFine returns a fine's payments in the order they were made.
func ListPaymentsForFine(ctx context.Context, q Querier, fineID int64) ([]model.Payment, error) {
	return queryPayments(ctx, q,
		`SELECT `+paymentColumns+paymentJoins+` WHERE p.fine_id = ? ORDER BY p.paid_at, p.id`, fineID,
	)
}

// ListPayments returns a page of payments matching the filter, newest first.
func ListPayments(ctx context.Context, q Querier, f PaymentFilter, p Page) ([]model.Payment, Pagination, error) {
	p = p.normalize()

	ds := paymentDataset(f)

	total, err := count(ctx, q, ds)
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("counting payments: %w", err)
	}

	query, args, err := ds.Select(goqu.L(paymentColumns)).
		Order(goqu.I("p.paid_at").Desc(), goqu.I("p.id").Desc()).
		Limit(uint(p.Limit)).Offset(p.offset()).ToSQL()
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("building payment list: %w", err)
	}

	payments, err := queryPayments(ctx, q, query, args...)
	if err != nil {
		return nil, Pagination{}, err
	}
	return payments, newPagination(p, total), nil
}

// PaymentStatistics aggregates payments in the filter's period.
func PaymentStatistics(ctx context.Context, q Querier, f PaymentFilter) (*PaymentStats, error) {
	ds := paymentDataset(PaymentFilter{From: f.From, To: f.To})
	s := &PaymentStats{ByMethod: []MethodTotal{}}

	query, args, err := ds.Select(
		goqu.I("p.method"), goqu.COUNT(goqu.Star()), goqu.SUM(goqu.I("p.amount")),
	).GroupBy(goqu.I("p.method")).Order(goqu.I("p.method").Asc()).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("building payment stats: %w", err)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregating payments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var mt MethodTotal
		if err := rows.Scan(&mt.Method, &mt.Count, &mt.Amount); err != nil {
			return nil, fmt.Errorf("scanning payment stats: %w", err)
		}
		s.Count += mt.Count
		s.Amount += mt.Amount
		s.ByMethod = append(s.ByMethod, mt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	query, args, err = ds.Select(goqu.L(paymentColumns)).
		Order(goqu.I("p.paid_at").Desc(), goqu.I("p.id").Desc()).Limit(10).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("building recent payments: %w", err)
	}
	s.Recent, err = queryPayments(ctx, q, query, args...)
	if err != nil {
		return nil, err
	}
	if s.Recent == nil {
		s.Recent = []model.Payment{}
	}
	return s, nil
}

func paymentDataset(f PaymentFilter) *goqu.SelectDataset {
	ds := dialect.From(goqu.T("payments").As("p")).Prepared(true).
		Join(goqu.T("fines").As("f"), goqu.On(goqu.I("f.id").Eq(goqu.I("p.fine_id")))).
		Join(goqu.T("loans").As("l"), goqu.On(goqu.I("l.id").Eq(goqu.I("f.loan_id")))).
		Join(goqu.T("book_copies").As("c"), goqu.On(goqu.I("c.id").Eq(goqu.I("l.copy_id")))).
		Join(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("c.book_id"))))

	if f.Method != "" {
		ds = ds.Where(goqu.I("p.method").Eq(f.Method))
	}
	if f.FineID != 0 {
		ds = ds.Where(goqu.I("p.fine_id").Eq(f.FineID))
	}
	if f.UserID != 0 {
		ds = ds.Where(goqu.I("f.user_id").Eq(f.UserID))
	}
	if !f.From.IsZero() {
		ds = ds.Where(goqu.I("p.paid_at").Gte(f.From.UTC()))
	}
	if !f.To.IsZero() {
		ds = ds.Where(goqu.I("p.paid_at").Lte(f.To.UTC()))
	}
	return ds
}

func queryPayments(ctx context.Context, q Querier, query string, args ...any) ([]model.Payment, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing payments: %w", err)
	}
	defer rows.Close()

	var payments []model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning payment: %w", err)
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

func scanPayment(row rowScanner) (*model.Payment, error) {
	p := &model.Payment{}
	var notes sql.NullString
	var recordedBy sql.NullInt64
	if err := row.Scan(&p.ID, &p.FineID, &p.Amount, &p.Method, &notes, &p.PaidAt, &recordedBy,
		&p.UserID, &p.LoanID, &p.BookTitle); err != nil {
		return nil, err
	}
	p.Notes = notes.String
	if recordedBy.Valid {
		id := recordedBy.Int64
		p.RecordedBy = &id
	}
	return p, nil
}
