package model

import (
	"errors"
	"time"
)

// User is a library account. Members borrow; admins run the circulation desk.
type User struct {
	ID           int64         `json:"id"`
	Email        string        `json:"email"`
	PasswordHash string        `json:"-"`
	FullName     string        `json:"full_name"`
	Phone        string        `json:"phone,omitempty"`
	Address      string        `json:"address,omitempty"`
	Role         Role          `json:"role"`
	Status       AccountStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

// IsBlocked reports whether the account has been blocked by an admin.
func (u *User) IsBlocked() bool { return u.Status == AccountBlocked }

// Role is a user's authorization role.
type Role string

// Roles.
const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleMember
}

// RoleAtLeast checks if role meets or exceeds the minimum required role.
func RoleAtLeast(role, minimum Role) bool {
	levels := map[Role]int{
		RoleAdmin:  2,
		RoleMember: 1,
	}
	have, ok := levels[role]
	need, known := levels[minimum]
	return ok && known && have >= need
}

// AccountStatus is whether an account may sign in.
type AccountStatus string

// Account statuses.
const (
	AccountActive  AccountStatus = "active"
	AccountBlocked AccountStatus = "blocked"
)

// Valid reports whether s is a known account status.
func (s AccountStatus) Valid() bool {
	return s == AccountActive || s == AccountBlocked
}

// MinPasswordLength is the shortest password accepted.
const MinPasswordLength = 8

// ErrPasswordTooShort is returned by ValidatePassword.
var ErrPasswordTooShort = errors.New("password must be at least 8 characters")

// ValidatePassword checks a new password against the password policy.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}
