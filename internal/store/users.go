package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/erazemk/knjiznica/internal/model"
)

const userColumns = `id, email, password_hash, full_name, phone, address, role, status, created_at, updated_at`

// CreateUser creates a new user. Emails are stored lower-cased.
func CreateUser(ctx context.Context, q Querier, email, passwordHash, fullName string, role model.Role) (*model.User, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO users (email, password_hash, full_name, role) VALUES (?, ?, ?, ?)`,
		normalizeEmail(email), passwordHash, fullName, role,
	)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting user id: %w", err)
	}

	return GetUser(ctx, q, id)
}

// GetUser returns a user by ID.
func GetUser(ctx context.Context, q Querier, id int64) (*model.User, error) {
	u, err := scanUser(q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// GetUserByEmail returns a user by email.
func GetUserByEmail(ctx context.Context, q Querier, email string) (*model.User, error) {
	u, err := scanUser(q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, normalizeEmail(email),
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by email: %w", err)
	}
	return u, nil
}

// ListUsers returns all users, optionally filtered by role and status.
func ListUsers(ctx context.Context, q Querier, role model.Role, status model.AccountStatus) ([]model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE 1=1`
	var args []any

	if role != "" {
		query += ` AND role = ?`
		args = append(args, role)
	}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY id`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// UpdateProfile updates a user's contact details.
func UpdateProfile(ctx context.Context, q Querier, id int64, fullName, phone, address string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE users SET full_name = ?, phone = ?, address = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		fullName, nullString(phone), nullString(address), id,
	)
	if err != nil {
		return fmt.Errorf("updating profile: %w", err)
	}
	return nil
}

// UpdateUserAccess updates a user's role and account status.
func UpdateUserAccess(ctx context.Context, q Querier, id int64, role model.Role, status model.AccountStatus) error {
	_, err := q.ExecContext(ctx,
		`UPDATE users SET role = ?, status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		role, status, id,
	)
	if err != nil {
		return fmt.Errorf("updating user access: %w", err)
	}
	return nil
}

// UpdateUserPassword updates a user's password hash.
func UpdateUserPassword(ctx context.Context, q Querier, id int64, passwordHash string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		passwordHash, id,
	)
	if err != nil {
		return fmt.Errorf("updating user password: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	u := &model.User{}
	var phone, address sql.NullString
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &phone, &address,
		&u.Role, &u.Status, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Phone = phone.String
	u.Address = address.String
	return u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
