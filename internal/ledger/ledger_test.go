package ledger

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/erazemk/knjiznica/internal/db"
	"github.com/erazemk/knjiznica/internal/model"
	"github.com/erazemk/knjiznica/internal/store"
)

var day0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Publish(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []model.NotificationType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var types []model.NotificationType
	for _, e := range r.events {
		types = append(types, e.Type)
	}
	return types
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type fixture struct {
	db     *sql.DB
	ledger *Ledger
	clock  *fakeClock
	events *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database := db.NewTestDB(t)
	clock := &fakeClock{now: day0}
	events := &recorder{}
	l := New(database, events)
	l.Clock = clock.Now
	return &fixture{db: database, ledger: l, clock: clock, events: events}
}

func (f *fixture) user(t *testing.T, email string) int64 {
	t.Helper()
	u, err := store.CreateUser(context.Background(), f.db, email, "hash", "Reader", model.RoleMember)
	require.NoError(t, err)
	return u.ID
}

func (f *fixture) copy(t *testing.T, code string) int64 {
	t.Helper()
	ctx := context.Background()
	b, err := store.CreateBook(ctx, f.db, store.BookInput{Title: "Title " + code, Authors: "Author"})
	require.NoError(t, err)
	c, err := store.CreateCopy(ctx, f.db, b.ID, code, model.ConditionGood, "")
	require.NoError(t, err)
	return c.ID
}

func (f *fixture) borrow(t *testing.T, userID, copyID int64) *model.Loan {
	t.Helper()
	loan, err := f.ledger.Borrow(context.Background(), BorrowInput{UserID: userID, CopyID: copyID})
	require.NoError(t, err)
	return loan
}

func (f *fixture) copyStatus(t *testing.T, copyID int64) model.CopyStatus {
	t.Helper()
	c, err := store.GetCopy(context.Background(), f.db, copyID)
	require.NoError(t, err)
	return c.Status
}

func TestDaysLate(t *testing.T) {
	due := day0
	tests := []struct {
		name string
		at   time.Time
		want int64
	}{
		{"before due", due.Add(-time.Hour), 0},
		{"exactly due", due, 0},
		{"one second late", due.Add(time.Second), 1},
		{"exactly one day", due.Add(24 * time.Hour), 1},
		{"one day and a minute", due.Add(24*time.Hour + time.Minute), 2},
		{"six days", due.Add(6 * 24 * time.Hour), 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, DaysLate(due, tt.at))
		})
	}
}

func TestKindOf(t *testing.T) {
	require.Equal(t, NotFound, KindOf(ErrLoanNotFound))
	require.Equal(t, InvalidState, KindOf(ErrCopyUnavailable))
	require.Equal(t, InvalidInput, KindOf(ErrExceedsRemaining.withMessage("x")))
	require.Equal(t, Internal, KindOf(sql.ErrConnDone))
	require.ErrorIs(t, ErrBorrowLimitExceeded.withMessage("limit %d", 3), ErrBorrowLimitExceeded)
}
