package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/erazemk/knjiznica/internal/model"
)

var baseTime = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func seedUser(t *testing.T, q Querier, email string) *model.User {
	t.Helper()
	u, err := CreateUser(context.Background(), q, email, "hash", "Test User", model.RoleMember)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func seedCopy(t *testing.T, q Querier, code string) *model.BookCopy {
	t.Helper()
	ctx := context.Background()
	b, err := CreateBook(ctx, q, BookInput{Title: "Book " + code, Authors: "Author"})
	if err != nil {
		t.Fatalf("CreateBook: %v", err)
	}
	c, err := CreateCopy(ctx, q, b.ID, code, model.ConditionGood, "")
	if err != nil {
		t.Fatalf("CreateCopy: %v", err)
	}
	return c
}

func seedLoan(t *testing.T, database *sql.DB, email, code string) *model.Loan {
	t.Helper()
	u := seedUser(t, database, email)
	c := seedCopy(t, database, code)
	l, err := CreateLoan(context.Background(), database, u.ID, c.ID, baseTime, baseTime.Add(14*24*time.Hour))
	if err != nil {
		t.Fatalf("CreateLoan: %v", err)
	}
	return l
}
