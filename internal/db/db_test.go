package db

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDSN(t *testing.T) {
	got := dsn("lib.sqlite3")
	if !strings.HasPrefix(got, "file:lib.sqlite3?") {
		t.Errorf("unexpected dsn prefix: %s", got)
	}
	if !strings.Contains(got, "_txlock=immediate") {
		t.Errorf("expected immediate transactions, got %s", got)
	}
	if !strings.Contains(got, "busy_timeout") {
		t.Errorf("expected busy_timeout pragma, got %s", got)
	}
	if !strings.Contains(got, "_time_format=sqlite") {
		t.Errorf("expected sqlite time format, got %s", got)
	}

	got = dsn("file:lib.sqlite3?mode=rwc")
	if !strings.HasPrefix(got, "file:lib.sqlite3?mode=rwc&") {
		t.Errorf("expected params appended to existing query, got %s", got)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	database, err := Open(filepath.Join(t.TempDir(), "m.sqlite3"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer database.Close()

	for i := 0; i < 2; i++ {
		if err := Migrate(database); err != nil {
			t.Fatalf("Migrate run %d: %v", i+1, err)
		}
	}
}

func TestForeignKeysEnforced(t *testing.T) {
	database := NewTestDB(t)

	_, err := database.ExecContext(context.Background(),
		`INSERT INTO book_copies (book_id, copy_code) VALUES (999, 'X-1')`)
	if err == nil {
		t.Error("expected foreign key violation for missing book")
	}
}

func TestUnresolvedLoanIndex(t *testing.T) {
	database := NewTestDB(t)
	ctx := context.Background()

	stmts := []string{
		`INSERT INTO users (id, email, password_hash) VALUES (1, 'a@example.com', 'x')`,
		`INSERT INTO books (id, title, authors) VALUES (1, 'T', 'A')`,
		`INSERT INTO book_copies (id, book_id, copy_code) VALUES (1, 1, 'T-1')`,
		`INSERT INTO loans (user_id, copy_id, loan_date, due_date, status) VALUES (1, 1, '2026-01-01', '2026-01-15', 'returned')`,
		`INSERT INTO loans (user_id, copy_id, loan_date, due_date, status) VALUES (1, 1, '2026-02-01', '2026-02-15', 'active')`,
	}
	for _, s := range stmts {
		if _, err := database.ExecContext(ctx, s); err != nil {
			t.Fatalf("%s: %v", s, err)
		}
	}

	_, err := database.ExecContext(ctx,
		`INSERT INTO loans (user_id, copy_id, loan_date, due_date, status) VALUES (1, 1, '2026-02-02', '2026-02-16', 'overdue')`)
	if err == nil {
		t.Error("expected second unresolved loan on the same copy to be rejected")
	}
}

func TestStoredTimesOrderAsText(t *testing.T) {
	database := NewTestDB(t)
	ctx := context.Background()

	stmts := []string{
		`INSERT INTO users (id, email, password_hash) VALUES (1, 'a@example.com', 'x')`,
		`INSERT INTO books (id, title, authors) VALUES (1, 'T', 'A')`,
		`INSERT INTO book_copies (id, book_id, copy_code) VALUES (1, 1, 'T-1')`,
		`INSERT INTO book_copies (id, book_id, copy_code) VALUES (2, 1, 'T-2')`,
	}
	for _, s := range stmts {
		if _, err := database.ExecContext(ctx, s); err != nil {
			t.Fatalf("%s: %v", s, err)
		}
	}

	early := time.Date(2026, 1, 15, 9, 59, 59, 0, time.UTC)
	late := early.Add(time.Second)
	for i, due := range []time.Time{early, late} {
		if _, err := database.ExecContext(ctx,
			`INSERT INTO loans (user_id, copy_id, loan_date, due_date, status) VALUES (1, ?, ?, ?, 'active')`,
			i+1, due.Add(-14*24*time.Hour), due); err != nil {
			t.Fatalf("inserting loan: %v", err)
		}
	}

	var text string
	if err := database.QueryRowContext(ctx,
		`SELECT due_date || '' FROM loans WHERE copy_id = 1`).Scan(&text); err != nil {
		t.Fatalf("reading due_date: %v", err)
	}
	if text != "2026-01-15 09:59:59+00:00" {
		t.Errorf("stored due_date = %q", text)
	}

	var n int
	if err := database.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM loans WHERE due_date < ?`, late).Scan(&n); err != nil {
		t.Fatalf("counting loans: %v", err)
	}
	if n != 1 {
		t.Errorf("loans due before %s = %d, want 1", late, n)
	}
}
