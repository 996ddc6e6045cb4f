package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/knjiznica/internal/model"
)

const copyColumns = `c.id, c.book_id, c.copy_code, c.condition, c.status, c.location,
	c.created_at, c.updated_at, b.title`

// CreateCopy adds a physical copy of a book.
func CreateCopy(ctx context.Context, q Querier, bookID int64, copyCode string, condition model.CopyCondition, location string) (*model.BookCopy, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO book_copies (book_id, copy_code, condition, location) VALUES (?, ?, ?, ?)`,
		bookID, copyCode, condition, nullString(location),
	)
	if err != nil {
		return nil, fmt.Errorf("creating copy: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting copy id: %w", err)
	}

	return GetCopy(ctx, q, id)
}

// GetCopy returns a copy by ID.
func GetCopy(ctx context.Context, q Querier, id int64) (*model.BookCopy, error) {
	c, err := scanCopy(q.QueryRowContext(ctx,
		`SELECT `+copyColumns+` FROM book_copies c JOIN books b ON b.id = c.book_id WHERE c.id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting copy: %w", err)
	}
	return c, nil
}

// ListCopies returns a book's copies, optionally only those with the given status.
func ListCopies(ctx context.Context, q Querier, bookID int64, status model.CopyStatus) ([]model.BookCopy, error) {
	query := `SELECT ` + copyColumns + ` FROM book_copies c JOIN books b ON b.id = c.book_id WHERE c.book_id = ?`
	args := []any{bookID}
	if status != "" {
		query += ` AND c.status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY c.copy_code`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing copies: %w", err)
	}
	defer rows.Close()

	var copies []model.BookCopy
	for rows.Next() {
		c, err := scanCopy(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning copy: %w", err)
		}
		copies = append(copies, *c)
	}
	return copies, rows.Err()
}

// UpdateCopy replaces a copy's condition, status and shelf location.
func UpdateCopy(ctx context.Context, q Querier, id int64, condition model.CopyCondition, status model.CopyStatus, location string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE book_copies SET condition = ?, status = ?, location = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		condition, status, nullString(location), id,
	)
	if err != nil {
		return fmt.Errorf("updating copy: %w", err)
	}
	return nil
}

// DeleteCopy deletes a copy. Copies with loan history are protected by the
// loans foreign key.
func DeleteCopy(ctx context.Context, q Querier, id int64) error {
	_, err := q.ExecContext(ctx, `DELETE FROM book_copies WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting copy: %w", err)
	}
	return nil
}

// ClaimCopy flips an available copy to borrowed. It reports false when the
// copy was not available, leaving it untouched.
func ClaimCopy(ctx context.Context, q Querier, id int64) (bool, error) {
	result, err := q.ExecContext(ctx,
		`UPDATE book_copies SET status = 'borrowed', updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = 'available'`, id,
	)
	if err != nil {
		return false, fmt.Errorf("claiming copy: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claiming copy: %w", err)
	}
	return n == 1, nil
}

// SetCopyStatus sets a copy's availability status.
func SetCopyStatus(ctx context.Context, q Querier, id int64, status model.CopyStatus) error {
	_, err := q.ExecContext(ctx,
		`UPDATE book_copies SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("setting copy status: %w", err)
	}
	return nil
}

// MarkCopyLost takes a copy out of circulation as lost.
func MarkCopyLost(ctx context.Context, q Querier, id int64) error {
	_, err := q.ExecContext(ctx,
		`UPDATE book_copies SET status = 'lost', condition = 'lost', updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`, id,
	)
	if err != nil {
		return fmt.Errorf("marking copy lost: %w", err)
	}
	return nil
}

// CopyHasUnresolvedLoan reports whether a loan currently holds the copy.
func CopyHasUnresolvedLoan(ctx context.Context, q Querier, copyID int64) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM loans WHERE copy_id = ? AND status IN ('active', 'overdue')`, copyID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking copy loans: %w", err)
	}
	return n > 0, nil
}

func scanCopy(row rowScanner) (*model.BookCopy, error) {
	c := &model.BookCopy{}
	var location sql.NullString
	if err := row.Scan(&c.ID, &c.BookID, &c.CopyCode, &c.Condition, &c.Status, &location,
		&c.CreatedAt, &c.UpdatedAt, &c.BookTitle); err != nil {
		return nil, err
	}
	c.Location = location.String
	return c, nil
}
