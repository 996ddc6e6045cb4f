package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    email         TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    full_name     TEXT NOT NULL DEFAULT '',
    phone         TEXT,
    address       TEXT,
    role          TEXT NOT NULL DEFAULT 'member' CHECK (role IN ('admin', 'member')),
    status        TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'blocked')),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email);

CREATE TABLE IF NOT EXISTS books (
    id             INTEGER PRIMARY KEY,
    title          TEXT NOT NULL,
    authors        TEXT NOT NULL,
    publisher      TEXT,
    published_year INTEGER,
    category       TEXT,
    isbn13         TEXT,
    description    TEXT,
    cover          BLOB,
    cover_mime     TEXT,
    created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_books_isbn13 ON books(isbn13) WHERE isbn13 IS NOT NULL;

CREATE TABLE IF NOT EXISTS book_copies (
    id         INTEGER PRIMARY KEY,
    book_id    INTEGER NOT NULL REFERENCES books(id) ON DELETE CASCADE,
    copy_code  TEXT NOT NULL UNIQUE,
    condition  TEXT NOT NULL DEFAULT 'good' CHECK (condition IN ('new', 'good', 'fair', 'poor', 'damaged', 'lost')),
    status     TEXT NOT NULL DEFAULT 'available' CHECK (status IN ('available', 'borrowed', 'lost')),
    location   TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS loans (
    id          INTEGER PRIMARY KEY,
    user_id     INTEGER NOT NULL REFERENCES users(id),
    copy_id     INTEGER NOT NULL REFERENCES book_copies(id),
    loan_date   DATETIME NOT NULL,
    due_date    DATETIME NOT NULL,
    return_date DATETIME,
    status      TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'overdue', 'returned', 'lost')),
    renewals    INTEGER NOT NULL DEFAULT 0,
    reminded_at DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_loans_copy_unresolved
    ON loans(copy_id) WHERE status IN ('active', 'overdue');
CREATE INDEX IF NOT EXISTS idx_loans_user_status ON loans(user_id, status);
CREATE INDEX IF NOT EXISTS idx_loans_status_due ON loans(status, due_date);

CREATE TABLE IF NOT EXISTS fines (
    id           INTEGER PRIMARY KEY,
    loan_id      INTEGER NOT NULL UNIQUE REFERENCES loans(id),
    user_id      INTEGER NOT NULL REFERENCES users(id),
    amount_total INTEGER NOT NULL CHECK (amount_total > 0),
    amount_paid  INTEGER NOT NULL DEFAULT 0 CHECK (amount_paid >= 0 AND amount_paid <= amount_total),
    status       TEXT NOT NULL DEFAULT 'unpaid' CHECK (status IN ('unpaid', 'partial', 'paid', 'waived')),
    reason       TEXT NOT NULL CHECK (reason IN ('late', 'damage', 'lost', 'other')),
    notes        TEXT,
    created_at   DATETIME NOT NULL,
    updated_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fines_user_status ON fines(user_id, status);

CREATE TABLE IF NOT EXISTS payments (
    id          INTEGER PRIMARY KEY,
    fine_id     INTEGER NOT NULL REFERENCES fines(id),
    amount      INTEGER NOT NULL CHECK (amount > 0),
    method      TEXT NOT NULL CHECK (method IN ('cash', 'credit_card', 'debit_card', 'transfer', 'e_wallet')),
    notes       TEXT,
    paid_at     DATETIME NOT NULL,
    recorded_by INTEGER REFERENCES users(id)
);

CREATE INDEX IF NOT EXISTS idx_payments_fine ON payments(fine_id);

CREATE TABLE IF NOT EXISTS notifications (
    id         INTEGER PRIMARY KEY,
    user_id    INTEGER NOT NULL REFERENCES users(id),
    type       TEXT NOT NULL,
    title      TEXT NOT NULL,
    message    TEXT NOT NULL,
    payload    TEXT,
    is_read    INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, is_read);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
